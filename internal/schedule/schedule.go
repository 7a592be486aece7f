// Package schedule fires operator-defined timed announcements: each entry
// pairs a cron spec (or "@every" interval) with a message template that is
// rendered and broadcast when the schedule fires.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"announcer/internal/broadcast"
	"announcer/internal/config"
	"announcer/internal/history"
	"announcer/internal/template"
	"announcer/pkg/logx"
)

// specParser accepts crontab.guru-style specs, descriptors ("@hourly"),
// and "@every <duration>".
var specParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSpec reports whether raw is a usable schedule string.
func ValidateSpec(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fmt.Errorf("schedule required")
	}
	if _, err := specParser.Parse(s); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return nil
}

type Service struct {
	log   logx.Logger
	bcast *broadcast.Service
	hist  history.Store

	mu      sync.Mutex
	msgs    []config.ScheduleSettings
	c       *cron.Cron
	runCtx  context.Context
	running bool
}

func New(log logx.Logger, bcast *broadcast.Service, hist history.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, bcast: bcast, hist: hist}
}

// SetMessages validates and stores the timed announcement list. It does not
// affect a running cron; callers Stop/Start around it.
func (s *Service) SetMessages(msgs []config.ScheduleSettings) error {
	for i, m := range msgs {
		if err := ValidateSpec(m.Schedule); err != nil {
			return fmt.Errorf("schedule[%d] (%s): %w", i, m.Name, err)
		}
		if strings.TrimSpace(m.Message) == "" {
			return fmt.Errorf("schedule[%d] (%s): message required", i, m.Name)
		}
	}
	s.mu.Lock()
	s.msgs = append([]config.ScheduleSettings(nil), msgs...)
	s.mu.Unlock()
	return nil
}

// Start registers all entries and starts the cron runner. Starting with no
// entries is a no-op. Idempotent: a second Start does nothing.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if len(s.msgs) == 0 {
		return nil
	}

	c := cron.New(cron.WithParser(specParser))
	for _, m := range s.msgs {
		msg := m
		if _, err := c.AddFunc(m.Schedule, func() { s.fire(msg) }); err != nil {
			return fmt.Errorf("add schedule %q: %w", m.Name, err)
		}
	}
	s.c = c
	s.runCtx = ctx
	s.running = true
	c.Start()
	s.log.Info("timed announcements started", logx.Int("entries", len(s.msgs)))
	return nil
}

// Stop halts the cron runner and waits for an in-flight fire to finish.
// Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.runCtx = nil
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if wasRunning {
		s.log.Info("timed announcements stopped")
	}
}

func (s *Service) fire(m config.ScheduleSettings) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	text := template.Render(m.Message, template.Context{Time: time.Now()})
	res := s.bcast.Broadcast(ctx, text)
	if res.Err != nil || text == "" {
		return
	}
	if s.hist != nil {
		e := history.Entry{At: time.Now(), Kind: "scheduled", Message: text, Total: res.Total, Failed: res.Failed}
		if err := s.hist.Append(ctx, e); err != nil {
			s.log.Warn("history append failed", logx.String("kind", e.Kind), logx.Err(err))
		}
	}
}
