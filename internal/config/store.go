// Package config owns the announcement templates on disk.
//
// The persisted file is config/announcements.json under the plugin's base
// directory: exactly two string fields, written human-readable, read with
// case-insensitive field matching. Load/Reload never fail past this package;
// any I/O or parse problem resolves to the built-in defaults in memory and
// leaves the on-disk file untouched.
package config

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"announcer/pkg/logx"
)

// Built-in announcement templates, used on first run and whenever the
// config file cannot be read.
const (
	DefaultPlayerJoinMessage = "欢迎 {player} 加入游戏！"
	DefaultGameEndedMessage  = "游戏结束！原因：{reason}"
)

// Announcements is the sole persisted entity. Both fields always carry a
// value; a blank template is a valid value meaning "silence this
// announcement".
type Announcements struct {
	PlayerJoinMessage string `json:"playerJoinMessage"`
	GameEndedMessage  string `json:"gameEndedMessage"`
}

func DefaultAnnouncements() Announcements {
	return Announcements{
		PlayerJoinMessage: DefaultPlayerJoinMessage,
		GameEndedMessage:  DefaultGameEndedMessage,
	}
}

// Store loads, defaults, and persists the announcements config and holds
// the single active copy for one plugin instance. Get returns an atomic
// snapshot; Reload supersedes it in place (last-write-wins, no history).
type Store struct {
	path string
	log  logx.Logger

	mu       sync.RWMutex
	cur      Announcements
	lastHash uint64
}

// NewStore computes the fixed on-disk path relative to baseDir.
// Call Load before the first Get.
func NewStore(baseDir string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		path: filepath.Join(baseDir, "config", "announcements.json"),
		cur:  DefaultAnnouncements(),
		log:  log,
	}
}

func (s *Store) Path() string { return s.path }

// Get returns the current configuration as a single snapshot. Concurrent
// event handlers never observe a mix of old and new fields.
func (s *Store) Get() Announcements {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Load reads the config file, creating the directory and a default file on
// first run. Every failure path is absorbed: callers always receive a
// usable configuration.
func (s *Store) Load() Announcements {
	cfg, err := s.read()
	if err != nil {
		// In-memory fallback only. A corrupted file is left as-is so the
		// operator can inspect and fix it.
		s.log.Error("announcements config load failed; using defaults",
			logx.String("path", s.path), logx.Err(err))
		cfg = DefaultAnnouncements()
	}
	s.commit(cfg)
	return cfg
}

// Reload has identical semantics to Load and is safe to call at any time,
// including concurrently with in-flight renders.
func (s *Store) Reload() Announcements { return s.Load() }

func (s *Store) read() (Announcements, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Announcements{}, err
	}

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if werr := s.writeDefault(); werr != nil {
			return Announcements{}, werr
		}
		s.log.Info("wrote default announcements config", logx.String("path", s.path))
	} else if err != nil {
		return Announcements{}, err
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		return Announcements{}, err
	}

	// Field-level defaulting: decode over a pre-filled struct, so a missing
	// key (or an explicit null) keeps its default while present keys win.
	// encoding/json matches field names case-insensitively.
	cfg := DefaultAnnouncements()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Announcements{}, err
	}
	return cfg, nil
}

func (s *Store) writeDefault() error {
	b, err := json.MarshalIndent(DefaultAnnouncements(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(b, '\n'), 0o644)
}

func (s *Store) commit(cfg Announcements) {
	s.mu.Lock()
	s.cur = cfg
	s.lastHash = hashAnnouncements(cfg)
	s.mu.Unlock()
}

func hashAnnouncements(cfg Announcements) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
