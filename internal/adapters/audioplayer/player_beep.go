//go:build cgo

// Package audioplayer renders audio on the device's output. The beep
// driver is used when cgo is available; otherwise a silent stub keeps
// the rest of the system (sync, commands, status) fully functional.
package audioplayer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/ports"
)

const sampleRate = beep.SampleRate(44100)

// Player plays mp3 sources through the system speaker.
type Player struct {
	log    *zap.Logger
	client *http.Client

	mu      sync.Mutex
	ctrl    *beep.Ctrl
	closer  io.Closer
	onEnd   func()
	started bool
}

var _ ports.Player = (*Player)(nil)

// New creates a player. The speaker is initialized lazily on first play
// so that headless test runs never touch the audio device.
func New(log *zap.Logger) *Player {
	return &Player{
		log:    log,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// SetOnEnd installs the natural-end callback.
func (p *Player) SetOnEnd(fn func()) {
	p.mu.Lock()
	p.onEnd = fn
	p.mu.Unlock()
}

// Play decodes the source and starts playback, replacing whatever was
// playing before.
func (p *Player) Play(src ports.PlaybackSource) error {
	rc, err := p.open(src)
	if err != nil {
		return err
	}

	streamer, format, err := mp3.Decode(rc)
	if err != nil {
		rc.Close()
		return fmt.Errorf("decode %s: %w", src.SongID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			return fmt.Errorf("speaker init: %w", err)
		}
		p.started = true
	}

	p.stopLocked()

	var out beep.Streamer = streamer
	if format.SampleRate != sampleRate {
		out = beep.Resample(4, format.SampleRate, sampleRate, streamer)
	}

	ctrl := &beep.Ctrl{Streamer: &effects.Volume{Streamer: out, Base: 2}}
	p.ctrl = ctrl
	p.closer = streamer

	done := func() {
		p.mu.Lock()
		onEnd := p.onEnd
		current := p.ctrl == ctrl
		p.mu.Unlock()
		if current && onEnd != nil {
			onEnd()
		}
	}
	speaker.Play(beep.Seq(ctrl, beep.Callback(done)))
	return nil
}

// Pause suspends playback.
func (p *Player) Pause() error {
	return p.setPaused(true)
}

// Resume continues a paused stream.
func (p *Player) Resume() error {
	return p.setPaused(false)
}

// Stop ends the current stream.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// Close stops playback and releases the output.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if p.started {
		speaker.Close()
		p.started = false
	}
	return nil
}

func (p *Player) setPaused(paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil {
		return errors.New("nothing playing")
	}
	speaker.Lock()
	p.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

func (p *Player) stopLocked() {
	if p.ctrl == nil {
		return
	}
	speaker.Clear()
	if p.closer != nil {
		if err := p.closer.Close(); err != nil {
			p.log.Debug("stream close failed", zap.Error(err))
		}
	}
	p.ctrl = nil
	p.closer = nil
}

func (p *Player) open(src ports.PlaybackSource) (io.ReadCloser, error) {
	if src.Local {
		return io.NopCloser(bytes.NewReader(src.Data)), nil
	}

	resp, err := p.client.Get(src.URL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", src.SongID, resp.StatusCode)
	}
	return resp.Body, nil
}
