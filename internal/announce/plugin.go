// Package announce is the plugin core: it bridges the host's "player
// joined" and "game ended" events onto the template renderer and the
// broadcast fan-out, using the currently loaded announcement templates.
package announce

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"announcer/internal/broadcast"
	"announcer/internal/config"
	"announcer/internal/history"
	"announcer/internal/host"
	"announcer/internal/template"
	"announcer/pkg/logx"
)

// PlaceholderPlayer is substituted when an event carries no usable player
// name; the same text stands in for a missing end reason.
const PlaceholderPlayer = "Unknown"

// Deps are the collaborators the plugin consumes. History may be nil.
type Deps struct {
	Logger    logx.Logger
	Events    host.EventSource
	Store     *config.Store
	Broadcast *broadcast.Service
	History   history.Store
}

// Plugin exposes the lifecycle the host drives: Enable (load config,
// subscribe), Disable (unsubscribe), Reload (re-load config without
// touching subscriptions), plus the two event entry points. Enable and
// Disable are idempotent and symmetric: never a double subscription, never
// a leaked one.
type Plugin struct {
	log  logx.Logger
	deps Deps

	mu      sync.Mutex
	enabled bool
	unsub   func()
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(deps Deps) *Plugin {
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Plugin{log: log.With(logx.String("comp", "announce")), deps: deps}
}

// Enable loads the announcement config and subscribes to the host events.
// Enabling an already-enabled plugin is a no-op.
func (p *Plugin) Enable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return nil
	}
	if p.deps.Events == nil || p.deps.Store == nil || p.deps.Broadcast == nil {
		return fmt.Errorf("announce: missing deps")
	}

	p.deps.Store.Load()

	// The event loop outlives the (possibly call-scoped) enable ctx; it is
	// stopped by Disable, not by the caller's context.
	runCtx, cancel := context.WithCancel(context.Background())
	ch, unsub := p.deps.Events.Subscribe(16)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.loop(runCtx, ch)
	}()

	p.enabled = true
	p.unsub = unsub
	p.cancel = cancel
	p.done = done
	p.log.Info("announcer enabled", logx.String("config", p.deps.Store.Path()))
	return nil
}

// Disable releases the event subscription and joins the event loop,
// bounded by ctx. Disabling a disabled plugin is a no-op.
func (p *Plugin) Disable(ctx context.Context) error {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return nil
	}
	unsub := p.unsub
	cancel := p.cancel
	done := p.done
	p.enabled = false
	p.unsub = nil
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			p.log.Warn("event loop did not stop in time", logx.Err(ctx.Err()))
		}
	}
	p.log.Info("announcer disabled")
	return nil
}

// Reload re-reads the announcement config. It does not resubscribe to
// events; subsequent renders see the new snapshot.
func (p *Plugin) Reload(ctx context.Context) error {
	_ = ctx
	cfg := p.deps.Store.Reload()
	p.log.Info("announcements reloaded",
		logx.String("player_join", cfg.PlayerJoinMessage),
		logx.String("game_ended", cfg.GameEndedMessage))
	return nil
}

func (p *Plugin) loop(ctx context.Context, ch <-chan host.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			p.dispatch(ctx, ev)
		}
	}
}

// dispatch routes one host event. Anything that goes wrong extracting
// fields or rendering degrades to "announcement skipped, error logged":
// the host's event delivery must never be destabilized from here.
func (p *Plugin) dispatch(ctx context.Context, ev host.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic handling host event",
				logx.String("type", string(ev.Type)), logx.Any("panic", r))
		}
	}()

	switch ev.Type {
	case host.EventPlayerJoined:
		data, ok := playerJoinedData(ev.Data)
		if !ok {
			p.log.Error("malformed player-joined payload; announcement skipped",
				logx.Any("data", ev.Data))
			return
		}
		p.OnPlayerJoined(ctx, data.Player, data.Room)
	case host.EventGameEnded:
		data, ok := gameEndedData(ev.Data)
		if !ok {
			p.log.Error("malformed game-ended payload; announcement skipped",
				logx.Any("data", ev.Data))
			return
		}
		p.OnGameEnded(ctx, data.Reason)
	default:
		// Not ours; the host may multiplex other kinds on the same source.
	}
}

// OnPlayerJoined renders and broadcasts the player-join announcement.
func (p *Plugin) OnPlayerJoined(ctx context.Context, player, room string) {
	if strings.TrimSpace(player) == "" {
		player = PlaceholderPlayer
	}
	cfg := p.deps.Store.Get()
	text := template.Render(cfg.PlayerJoinMessage, template.Context{
		Player: player,
		Room:   room,
		Time:   time.Now(),
	})
	p.announce(ctx, "player_joined", text)
}

// OnGameEnded renders and broadcasts the game-ended announcement.
func (p *Plugin) OnGameEnded(ctx context.Context, reason string) {
	if strings.TrimSpace(reason) == "" {
		reason = PlaceholderPlayer
	}
	cfg := p.deps.Store.Get()
	text := template.Render(cfg.GameEndedMessage, template.Context{
		Reason: reason,
		Time:   time.Now(),
	})
	p.announce(ctx, "game_ended", text)
}

func (p *Plugin) announce(ctx context.Context, kind, text string) {
	res := p.deps.Broadcast.Broadcast(ctx, text)
	if text == "" || res.Err != nil {
		return
	}
	if p.deps.History != nil {
		e := history.Entry{At: time.Now(), Kind: kind, Message: text, Total: res.Total, Failed: res.Failed}
		if err := p.deps.History.Append(ctx, e); err != nil {
			p.log.Warn("history append failed", logx.String("kind", kind), logx.Err(err))
		}
	}
}

func playerJoinedData(v any) (host.PlayerJoined, bool) {
	switch d := v.(type) {
	case host.PlayerJoined:
		return d, true
	case *host.PlayerJoined:
		if d == nil {
			return host.PlayerJoined{}, false
		}
		return *d, true
	default:
		return host.PlayerJoined{}, false
	}
}

func gameEndedData(v any) (host.GameEnded, bool) {
	switch d := v.(type) {
	case host.GameEnded:
		return d, true
	case *host.GameEnded:
		if d == nil {
			return host.GameEnded{}, false
		}
		return *d, true
	default:
		return host.GameEnded{}, false
	}
}
