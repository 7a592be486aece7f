// Package broadcast fans one rendered announcement out to every running
// game instance. Delivery is fire-and-forget best-effort: per-target
// failures are logged and counted but never abort the batch, and there is
// no retry, ordering, or acknowledgment.
package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"announcer/internal/host"
	"announcer/pkg/logx"
)

type Config struct {
	// RatePerSec caps sends per second across all targets. <=0 uses a
	// default of 10.
	RatePerSec int
}

// Result summarizes one fan-out call. It exists for logs, history entries,
// and tests; callers get no stronger delivery guarantee than it states.
type Result struct {
	Total    int
	Failed   int
	Failures []string // target IDs that rejected delivery
	// Err is set only when the target set itself could not be enumerated;
	// the broadcast was abandoned for this call.
	Err error
}

type Service struct {
	src host.InstanceSource
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, src host.InstanceSource, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	return &Service{
		src:     src,
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Apply swaps the config at runtime. Safe to call concurrently with Broadcast.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
}

// Broadcast delivers message to every current instance independently.
// A blank message is a no-op: blank announcements are never sent. If the
// instance set cannot be enumerated at all, the call is abandoned (logged
// at error level, reflected in Result.Err) and later calls are unaffected.
func (s *Service) Broadcast(ctx context.Context, message string) Result {
	if strings.TrimSpace(message) == "" {
		return Result{}
	}

	targets, err := s.src.Instances()
	if err != nil {
		s.log.Error("cannot enumerate broadcast targets; announcement dropped", logx.Err(err))
		return Result{Err: err}
	}

	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()

	start := time.Now()
	res := Result{Total: len(targets)}
	for _, t := range targets {
		if err := s.sendOne(ctx, lim, t, message); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, t.ID())
			// Expected, benign: one client losing its copy is not a
			// correctness issue for announcements.
			s.log.Info("announcement delivery failed for target",
				logx.String("target", t.ID()), logx.Err(err))
		}
	}

	if res.Failed > 0 {
		s.log.Warn("broadcast finished with failures",
			logx.Int("total", res.Total), logx.Int("failed", res.Failed),
			logx.Duration("took", time.Since(start)))
	} else {
		s.log.Debug("broadcast finished",
			logx.Int("total", res.Total), logx.Duration("took", time.Since(start)))
	}
	return res
}

func (s *Service) sendOne(ctx context.Context, lim *rate.Limiter, t host.Instance, message string) (err error) {
	// Host instance objects are outside our control; a panicking send must
	// degrade to a per-target failure like any error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in send: %v", r)
		}
	}()
	if lim != nil {
		if werr := lim.Wait(ctx); werr != nil {
			return werr
		}
	}
	return t.SendChat(ctx, message)
}
