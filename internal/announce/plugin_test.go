package announce

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"announcer/internal/broadcast"
	"announcer/internal/config"
	"announcer/internal/eventbus"
	"announcer/internal/history"
	"announcer/internal/host"
	"announcer/pkg/logx"
)

type fakeInstance struct {
	id string

	mu       sync.Mutex
	received []string
}

func (f *fakeInstance) ID() string { return f.id }

func (f *fakeInstance) SendChat(ctx context.Context, text string) error {
	_ = ctx
	f.mu.Lock()
	f.received = append(f.received, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeInstance) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

// countingSource wraps a bus so tests can assert subscription hygiene.
type countingSource struct {
	host.EventSource
	subscribes   atomic.Int32
	unsubscribes atomic.Int32
}

func (c *countingSource) Subscribe(buffer int) (<-chan host.Event, func()) {
	c.subscribes.Add(1)
	ch, unsub := c.EventSource.Subscribe(buffer)
	var once sync.Once
	return ch, func() {
		once.Do(func() { c.unsubscribes.Add(1) })
		unsub()
	}
}

type fixture struct {
	bus    eventbus.Bus
	src    *countingSource
	store  *config.Store
	base   string
	a, b   *fakeInstance
	plugin *Plugin
}

func newFixture(t *testing.T, hist history.Store) *fixture {
	t.Helper()
	base := t.TempDir()
	bus := eventbus.New()
	src := &countingSource{EventSource: bus}
	a := &fakeInstance{id: "game-1"}
	b := &fakeInstance{id: "game-2"}
	store := config.NewStore(base, logx.Nop())
	bcast := broadcast.New(broadcast.Config{RatePerSec: 1000}, host.NewStaticSource(a, b), logx.Nop())

	p := New(Deps{
		Logger:    logx.Nop(),
		Events:    src,
		Store:     store,
		Broadcast: bcast,
		History:   hist,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Disable(ctx)
	})
	return &fixture{bus: bus, src: src, store: store, base: base, a: a, b: b, plugin: p}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlayerJoinedDefaultTemplate(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.plugin.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}

	f.bus.Publish(host.Event{Type: host.EventPlayerJoined, Data: host.PlayerJoined{Player: "Ann", Room: "Lobby"}})

	waitFor(t, "announcement delivery", func() bool {
		return len(f.a.got()) == 1 && len(f.b.got()) == 1
	})
	want := "欢迎 Ann 加入游戏！"
	if got := f.a.got()[0]; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := f.b.got()[0]; got != want {
		t.Fatalf("second target got %q, want %q", got, want)
	}
}

func TestGameEndedDefaultTemplate(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.plugin.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}

	f.bus.Publish(host.Event{Type: host.EventGameEnded, Data: host.GameEnded{Reason: "HostLeft"}})

	waitFor(t, "announcement delivery", func() bool { return len(f.a.got()) == 1 })
	if got := f.a.got()[0]; got != "游戏结束！原因：HostLeft" {
		t.Fatalf("unexpected announcement: %q", got)
	}
}

func TestReloadThenTimePlaceholder(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.plugin.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}

	edited := `{"playerJoinMessage": "{player} joined {room} at {time}"}`
	path := filepath.Join(f.base, "config", "announcements.json")
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.plugin.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	f.bus.Publish(host.Event{Type: host.EventPlayerJoined, Data: host.PlayerJoined{Player: "Bo", Room: "Hub"}})

	waitFor(t, "announcement delivery", func() bool { return len(f.a.got()) == 1 })
	pat := regexp.MustCompile(`^Bo joined Hub at \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
	if got := f.a.got()[0]; !pat.MatchString(got) {
		t.Fatalf("announcement %q does not match %v", got, pat)
	}
}

func TestMissingPlayerFallsBackToPlaceholder(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.plugin.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}

	f.bus.Publish(host.Event{Type: host.EventPlayerJoined, Data: host.PlayerJoined{Player: "  ", Room: ""}})

	waitFor(t, "announcement delivery", func() bool { return len(f.a.got()) == 1 })
	if got := f.a.got()[0]; got != "欢迎 Unknown 加入游戏！" {
		t.Fatalf("expected placeholder fallback, got %q", got)
	}
}

func TestBlankTemplateSilencesAnnouncement(t *testing.T) {
	f := newFixture(t, nil)
	writeConfig(t, f.base, `{"playerJoinMessage": "  "}`)
	if err := f.plugin.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}

	f.bus.Publish(host.Event{Type: host.EventPlayerJoined, Data: host.PlayerJoined{Player: "Ann", Room: "Lobby"}})
	f.bus.Publish(host.Event{Type: host.EventGameEnded, Data: host.GameEnded{Reason: "done"}})

	// The second event still announces; the blanked one must not.
	waitFor(t, "game-ended delivery", func() bool { return len(f.a.got()) == 1 })
	if got := f.a.got()[0]; got != "游戏结束！原因：done" {
		t.Fatalf("unexpected announcement: %q", got)
	}
}

func TestMalformedPayloadSkipsOneAnnouncement(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.plugin.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}

	f.bus.Publish(host.Event{Type: host.EventPlayerJoined, Data: 42})
	f.bus.Publish(host.Event{Type: host.EventGameEnded, Data: host.GameEnded{Reason: "ok"}})

	waitFor(t, "the well-formed event", func() bool { return len(f.a.got()) == 1 })
	if got := f.a.got()[0]; got != "游戏结束！原因：ok" {
		t.Fatalf("malformed event should be skipped, got %q", got)
	}
}

func TestEnableDisableIdempotentAndSymmetric(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.plugin.Enable(ctx); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := f.plugin.Enable(ctx); err != nil {
		t.Fatalf("second enable: %v", err)
	}
	if n := f.src.subscribes.Load(); n != 1 {
		t.Fatalf("double subscription: %d", n)
	}

	if err := f.plugin.Disable(ctx); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := f.plugin.Disable(ctx); err != nil {
		t.Fatalf("second disable: %v", err)
	}
	if n := f.src.unsubscribes.Load(); n != 1 {
		t.Fatalf("unexpected unsubscribe count: %d", n)
	}

	// Events after disable must not announce.
	f.bus.Publish(host.Event{Type: host.EventGameEnded, Data: host.GameEnded{Reason: "late"}})
	time.Sleep(100 * time.Millisecond)
	if len(f.a.got()) != 0 {
		t.Fatalf("announcement after disable: %v", f.a.got())
	}

	// Re-enable works and subscribes exactly once more.
	if err := f.plugin.Enable(ctx); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	if n := f.src.subscribes.Load(); n != 2 {
		t.Fatalf("re-enable should subscribe once more, got %d", n)
	}
}

func TestAnnouncementsRecordedInHistory(t *testing.T) {
	dir := t.TempDir()
	hist, err := history.Open(history.Config{Driver: "file", Path: filepath.Join(dir, "history.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatalf("history open: %v", err)
	}
	defer hist.Close()

	f := newFixture(t, hist)
	if err := f.plugin.Enable(context.Background()); err != nil {
		t.Fatalf("enable: %v", err)
	}

	f.bus.Publish(host.Event{Type: host.EventPlayerJoined, Data: host.PlayerJoined{Player: "Ann", Room: "Lobby"}})

	waitFor(t, "history entry", func() bool {
		entries, err := hist.Recent(context.Background(), 10)
		return err == nil && len(entries) == 1
	})
	entries, err := hist.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	e := entries[0]
	if e.Kind != "player_joined" || e.Message != "欢迎 Ann 加入游戏！" || e.Total != 2 || e.Failed != 0 {
		t.Fatalf("unexpected history entry: %+v", e)
	}
}

func writeConfig(t *testing.T, base, content string) {
	t.Helper()
	dir := filepath.Join(base, "config")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "announcements.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
