package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/adapters/audiocache"
	"github.com/cutiefunny/musclecat/internal/adapters/audioplayer"
	"github.com/cutiefunny/musclecat/internal/adapters/clock"
	"github.com/cutiefunny/musclecat/internal/adapters/devstate"
	"github.com/cutiefunny/musclecat/internal/adapters/mqttbus"
	"github.com/cutiefunny/musclecat/internal/jukeboxd"
	"github.com/cutiefunny/musclecat/internal/modules/commandchannel"
	"github.com/cutiefunny/musclecat/internal/modules/devicemode"
	"github.com/cutiefunny/musclecat/internal/modules/embeddedbroker"
	"github.com/cutiefunny/musclecat/internal/modules/librarysync"
	"github.com/cutiefunny/musclecat/internal/modules/playqueue"
	"github.com/cutiefunny/musclecat/internal/modules/statusmirror"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

func main() {
	var (
		configPath string
		broker     string
		topicBase  string
		logLevel   string
		logFormat  string
		setMode    string
		resetMode  bool
	)

	defaultConfig, err := jukeboxd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&topicBase, "topic-base", "", "topic base override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (json|console)")
	flag.StringVar(&setMode, "mode", "", "set device mode before starting (general|branch1|branch2)")
	flag.BoolVar(&resetMode, "reset", false, "reset device mode and exit")
	flag.Parse()

	cfg, err := jukeboxd.LoadConfig(configPath)
	if err != nil && configPath != defaultConfig {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err != nil {
		// No config file: run on defaults, overrides still apply.
		cfg = jukeboxd.Config{}
		cfg.ApplyDefaults()
	}
	applyOverrides(&cfg, broker, topicBase, logLevel, logFormat)

	logger, err := jukeboxd.NewLogger(jukeboxd.LogConfig{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
		Output: cfg.Server.LogOutput,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	modules := []jukeboxd.ModuleRunner{}

	if cfg.Embedded.Enabled {
		mod, err := embeddedbroker.New(logger.With(zap.String("module", "embedded_broker")), embeddedbroker.Config{
			Listen:         cfg.Embedded.Listen,
			AllowAnonymous: cfg.Embedded.AllowAnonymous,
			Username:       cfg.Embedded.Username,
			Password:       cfg.Embedded.Password,
			TLSCA:          cfg.Embedded.TLSCA,
			TLSCert:        cfg.Embedded.TLSCert,
			TLSKey:         cfg.Embedded.TLSKey,
		})
		if err != nil {
			logger.Error("embedded broker failed", zap.Error(err))
			os.Exit(1)
		}
		if cfg.Server.Broker == "" {
			cfg.Server.Broker = mod.URL()
		}
		// The broker must be listening before the bus client dials it,
		// so it runs outside the supervisor.
		go func() {
			if err := mod.Run(ctx); err != nil {
				logger.Error("embedded broker exited", zap.Error(err))
				cancel()
			}
		}()
		time.Sleep(200 * time.Millisecond)
	}
	if cfg.Server.Broker == "" {
		logger.Error("broker is required")
		os.Exit(1)
	}

	logger.Info("jukeboxd starting",
		zap.String("broker", cfg.Server.Broker),
		zap.String("device_id", cfg.Server.DeviceID),
		zap.String("topic_base", cfg.Server.TopicBase),
		zap.Bool("legacy_merge", cfg.Device.LegacyMerge))

	bus, err := mqttbus.NewClient(mqttbus.Options{
		BrokerURL: cfg.Server.Broker,
		ClientID:  fmt.Sprintf("jukeboxd-%s-%d", cfg.Server.DeviceID, time.Now().UnixNano()),
		Username:  cfg.Server.Auth.User,
		Password:  cfg.Server.Auth.Pass,
		TLSCA:     cfg.Server.TLS.CA,
		TLSCert:   cfg.Server.TLS.Cert,
		TLSKey:    cfg.Server.TLS.Key,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("broker connection failed", zap.Error(err))
		os.Exit(1)
	}
	defer bus.Close()

	cache, err := audiocache.New(logger.With(zap.String("module", "audiocache")), cfg.Device.CachePath)
	if err != nil {
		logger.Error("audio cache open failed", zap.Error(err))
		os.Exit(1)
	}
	defer cache.Close()

	var store *devstate.Store
	if cfg.Device.StatePath != "" {
		store = devstate.NewStoreAt(cfg.Device.StatePath)
	} else if store, err = devstate.NewStore(); err != nil {
		logger.Error("device state store failed", zap.Error(err))
		os.Exit(1)
	}

	clk := clock.New()
	player := audioplayer.New(logger.With(zap.String("module", "audioplayer")))
	queue := playqueue.New(logger.With(zap.String("module", "playqueue")), cache, player)
	player.SetOnEnd(queue.HandleSongEnd)

	library := librarysync.New(logger.With(zap.String("module", "librarysync")),
		bus, cfg.Server.TopicBase, cfg.Device.LegacyMerge)
	library.SetOnUpdate(queue.SetLibrary)

	receiver := commandchannel.NewReceiver(logger.With(zap.String("module", "commandchannel")),
		bus, cfg.Server.TopicBase, queue)
	publisher := statusmirror.NewPublisher(logger.With(zap.String("module", "statusmirror")),
		bus, cfg.Server.TopicBase, "", clk)

	controller := devicemode.New(logger.With(zap.String("module", "devicemode")),
		store, library, queue, receiver, publisher)

	if resetMode {
		if err := controller.Init(); err != nil {
			logger.Error("device init failed", zap.Error(err))
			os.Exit(1)
		}
		if err := controller.ResetMode(); err != nil {
			logger.Error("device reset failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	modules = append(modules, jukeboxd.ModuleRunner{
		Name: "device",
		Run: func(ctx context.Context) error {
			if setMode != "" {
				mode, err := jukebox.ParseMode(setMode)
				if err != nil {
					return err
				}
				if err := controller.SetMode(mode); err != nil {
					return err
				}
			} else if err := controller.Init(); err != nil {
				return err
			}
			logger.Info("device ready",
				zap.String("mode", string(controller.Mode())),
				zap.String("status", controller.Label()))

			<-ctx.Done()
			controller.Shutdown()
			return player.Close()
		},
	})

	supervisor := jukeboxd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *jukeboxd.Config, broker, topicBase, logLevel, logFormat string) {
	if broker != "" {
		cfg.Server.Broker = broker
	}
	if topicBase != "" {
		cfg.Server.TopicBase = topicBase
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
}
