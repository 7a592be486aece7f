package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"announcer/pkg/logx"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	now := time.Now()
	for i, kind := range []string{"player_joined", "game_ended", "scheduled"} {
		e := Entry{At: now.Add(time.Duration(i) * time.Second), Kind: kind, Message: kind + " msg", Total: 2, Failed: i}
		if err := st.Append(context.Background(), e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := st.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != "game_ended" || entries[1].Kind != "scheduled" {
		t.Fatalf("unexpected tail: %+v", entries)
	}
	if entries[1].Failed != 2 {
		t.Fatalf("fields lost on round trip: %+v", entries[1])
	}
}

func TestFileStoreRecentSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if err := st.Append(context.Background(), Entry{Kind: "player_joined", Message: "ok"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	entries, err := st.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "ok" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: expected disabled store, got %v, %v", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenFileRequiresPath(t *testing.T) {
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
