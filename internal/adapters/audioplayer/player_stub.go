//go:build !cgo

package audioplayer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/ports"
)

// Player is the silent fallback used when no audio backend is compiled
// in. State transitions still happen so sync, commands, and status keep
// working end to end.
type Player struct {
	log *zap.Logger

	mu    sync.Mutex
	onEnd func()
}

var _ ports.Player = (*Player)(nil)

// New creates a silent player.
func New(log *zap.Logger) *Player {
	return &Player{log: log}
}

// SetOnEnd installs the natural-end callback. The stub never fires it.
func (p *Player) SetOnEnd(fn func()) {
	p.mu.Lock()
	p.onEnd = fn
	p.mu.Unlock()
}

// Play logs the request and pretends to play.
func (p *Player) Play(src ports.PlaybackSource) error {
	p.log.Info("silent playback",
		zap.String("song", src.SongID),
		zap.Bool("local", src.Local))
	return nil
}

// Pause is a no-op.
func (p *Player) Pause() error { return nil }

// Resume is a no-op.
func (p *Player) Resume() error { return nil }

// Stop is a no-op.
func (p *Player) Stop() error { return nil }

// Close is a no-op.
func (p *Player) Close() error { return nil }
