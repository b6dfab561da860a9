// Package embeddedbroker runs an in-process MQTT broker so a single
// box can host the document store for all branch devices without any
// external infrastructure. Retained messages are the document store, so
// in production deployments an external broker with on-disk persistence
// is preferred; the embedded broker keeps documents only for its own
// lifetime.
package embeddedbroker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/adapters/mqttbus"
)

// Config configures the embedded broker.
type Config struct {
	Listen         string
	AllowAnonymous bool
	Username       string
	Password       string
	TLSCA          string
	TLSCert        string
	TLSKey         string
}

// Module is the broker lifecycle wrapper.
type Module struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
}

// New creates the broker. Either anonymous access or a credential pair
// must be configured; an open broker with no explicit opt-in is refused.
func New(log *zap.Logger, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:1883"
	}

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       slog.New(&brokerLogHandler{log: log}),
	})

	switch {
	case cfg.AllowAnonymous:
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
	case cfg.Username != "":
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{{
				Username: auth.RString(cfg.Username),
				Password: auth.RString(cfg.Password),
				Allow:    true,
			}},
			ACL: auth.ACLRules{{
				Username: auth.RString(cfg.Username),
				Filters:  auth.Filters{auth.RString("#"): auth.ReadWrite},
			}},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("embedded broker requires allow_anonymous or a username")
	}

	return &Module{log: log, server: server, config: cfg}, nil
}

// Run serves until the context is cancelled.
func (m *Module) Run(ctx context.Context) error {
	listenerConfig := listeners.Config{ID: "jukebox-broker", Address: m.config.Listen}
	if m.config.TLSCert != "" || m.config.TLSKey != "" || m.config.TLSCA != "" {
		tlsConfig, err := mqttbus.BuildTLSConfig(m.config.TLSCA, m.config.TLSCert, m.config.TLSKey)
		if err != nil {
			return err
		}
		listenerConfig.TLSConfig = tlsConfig
	}

	if err := m.server.AddListener(listeners.NewTCP(listenerConfig)); err != nil {
		return err
	}

	go func() {
		_ = m.server.Serve()
	}()
	m.log.Info("embedded broker listening", zap.String("addr", m.config.Listen))

	<-ctx.Done()
	return m.server.Close()
}

// URL returns the broker URL clients should dial.
func (m *Module) URL() string {
	scheme := "mqtt"
	if m.config.TLSCert != "" {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s", scheme, m.config.Listen)
}

// brokerLogHandler adapts the broker's slog output onto zap. Routine
// client disconnects arrive as errors and are demoted to debug.
type brokerLogHandler struct {
	log   *zap.Logger
	attrs []slog.Attr
}

func (h *brokerLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *brokerLogHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zap.Field, 0, len(h.attrs)+record.NumAttrs())
	var errMsg string
	for _, attr := range h.attrs {
		fields = append(fields, attrToField(attr))
	}
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" {
			if err, ok := attr.Value.Any().(error); ok {
				errMsg = err.Error()
			} else {
				errMsg = attr.Value.String()
			}
		}
		fields = append(fields, attrToField(attr))
		return true
	})

	if strings.Contains(errMsg, "EOF") {
		h.log.Debug("broker connection closed", fields...)
		return nil
	}
	switch {
	case record.Level >= slog.LevelError:
		h.log.Error(record.Message, fields...)
	case record.Level >= slog.LevelWarn:
		h.log.Warn(record.Message, fields...)
	case record.Level >= slog.LevelInfo:
		h.log.Info(record.Message, fields...)
	default:
		h.log.Debug(record.Message, fields...)
	}
	return nil
}

func (h *brokerLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	next = append(next, attrs...)
	return &brokerLogHandler{log: h.log, attrs: next}
}

func (h *brokerLogHandler) WithGroup(string) slog.Handler { return h }

func attrToField(attr slog.Attr) zap.Field {
	switch attr.Value.Kind() {
	case slog.KindString:
		return zap.String(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return zap.Int64(attr.Key, attr.Value.Int64())
	case slog.KindBool:
		return zap.Bool(attr.Key, attr.Value.Bool())
	default:
		return zap.Any(attr.Key, attr.Value.Any())
	}
}
