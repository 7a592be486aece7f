// Package mirror forwards announcements to a Telegram chat.
//
// The mirror is just one more broadcast target: it implements
// host.Instance, so the fan-out treats it exactly like a game instance and
// a Telegram outage degrades to a per-target delivery failure.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"announcer/pkg/logx"
)

type Config struct {
	Token      string
	ChatID     int64
	RatePerSec int
	// Offline skips the token verification call; used by tests.
	Offline bool
}

type Mirror struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Mirror, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Mirror{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (m *Mirror) ID() string { return fmt.Sprintf("telegram:%d", m.cfg.ChatID) }

func (m *Mirror) SendChat(ctx context.Context, text string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	_, err := m.bot.Send(&tele.Chat{ID: m.cfg.ChatID}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}
	m.log.Debug("announcement mirrored", logx.Int64("chat_id", m.cfg.ChatID), logx.Duration("took", time.Since(start)))
	return nil
}
