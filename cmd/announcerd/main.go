// Command announcerd runs the announcer plugin against a simulated host:
// an in-memory event bus and a couple of loopback game instances that log
// whatever chat they receive. It exists for manual testing; in production
// the plugin is embedded by a real game server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"announcer/internal/announce"
	"announcer/internal/broadcast"
	"announcer/internal/config"
	"announcer/internal/eventbus"
	"announcer/internal/history"
	"announcer/internal/host"
	"announcer/internal/mirror"
	"announcer/internal/schedule"
	"announcer/pkg/logx"
)

// logInstance is a loopback game instance: chat goes to the log.
type logInstance struct {
	id  string
	log logx.Logger
}

func (i *logInstance) ID() string { return i.id }

func (i *logInstance) SendChat(ctx context.Context, text string) error {
	_ = ctx
	i.log.Info("chat", logx.String("instance", i.id), logx.String("text", text))
	return nil
}

func main() {
	var (
		baseDir      string
		settingsPath string
		demo         bool
	)
	flag.StringVar(&baseDir, "base", ".", "plugin base directory (announcements config lives under <base>/config)")
	flag.StringVar(&settingsPath, "settings", "", "optional settings file (json or yaml)")
	flag.BoolVar(&demo, "demo", true, "publish a few demo events after startup")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		fmt.Println("fatal: settings:", err)
		os.Exit(1)
	}

	logCfg := logx.Config{
		Level:   settings.Logging.Level,
		Console: settings.Logging.Console,
		File: logx.FileConfig{
			Enabled: settings.Logging.File.Enabled,
			Path:    settings.Logging.File.Path,
		},
	}
	logSvc, log := logx.New(logCfg)
	defer logSvc.Close()
	log = log.With(logx.String("comp", "announcerd"))

	bus := eventbus.New()

	instances := host.NewStaticSource(
		&logInstance{id: "game-1", log: log},
		&logInstance{id: "game-2", log: log},
	)
	var src host.InstanceSource = instances
	if settings.Mirror.Enabled {
		m, err := mirror.New(mirror.Config{
			Token:      settings.Mirror.Token,
			ChatID:     settings.Mirror.ChatID,
			RatePerSec: settings.Mirror.RatePerSec,
		}, log.With(logx.String("comp", "mirror")))
		if err != nil {
			fmt.Println("fatal: mirror:", err)
			os.Exit(1)
		}
		src = host.Multi(instances, host.NewStaticSource(m))
	}

	var hist history.Store
	if settings.History.Enabled {
		hist, err = history.Open(history.Config{
			Driver: settings.History.Driver,
			Path:   settings.History.Path,
		}, log.With(logx.String("comp", "history")))
		if err != nil {
			fmt.Println("fatal: history:", err)
			os.Exit(1)
		}
		if hist != nil {
			defer hist.Close()
			log.Info("history enabled", logx.String("driver", settings.History.Driver))
		}
	}

	store := config.NewStore(baseDir, log.With(logx.String("comp", "config")))
	bcast := broadcast.New(
		broadcast.Config{RatePerSec: settings.Broadcast.RatePerSec},
		src,
		log.With(logx.String("comp", "broadcast")),
	)

	plugin := announce.New(announce.Deps{
		Logger:    log,
		Events:    bus,
		Store:     store,
		Broadcast: bcast,
		History:   hist,
	})
	if err := plugin.Enable(ctx); err != nil {
		fmt.Println("fatal: enable:", err)
		os.Exit(1)
	}

	sched := schedule.New(log.With(logx.String("comp", "schedule")), bcast, hist)
	if err := sched.SetMessages(settings.Schedule); err != nil {
		fmt.Println("fatal: schedule:", err)
		os.Exit(1)
	}
	if err := sched.Start(ctx); err != nil {
		fmt.Println("fatal: schedule:", err)
		os.Exit(1)
	}

	// Hot-reload on file edits; the watcher already committed the new
	// snapshot, so this is just operator feedback.
	go store.Watch(ctx, func(cfg config.Announcements) {
		log.Info("announcements hot-reloaded",
			logx.String("player_join", cfg.PlayerJoinMessage),
			logx.String("game_ended", cfg.GameEndedMessage))
	})

	if demo {
		go func() {
			time.Sleep(time.Second)
			bus.Publish(host.Event{Type: host.EventPlayerJoined, Data: host.PlayerJoined{Player: "Ann", Room: "Lobby"}})
			time.Sleep(time.Second)
			bus.Publish(host.Event{Type: host.EventGameEnded, Data: host.GameEnded{Reason: "HostLeft"}})
		}()
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	sched.Stop()
	_ = plugin.Disable(stopCtx)
}
