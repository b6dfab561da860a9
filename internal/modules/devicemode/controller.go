// Package devicemode is the top-level state machine of a device. It
// loads the persisted mode, wires the sync engine, play queue, command
// receiver, and status publisher together, and tears them down again on
// reset or shutdown.
package devicemode

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/adapters/devstate"
	"github.com/cutiefunny/musclecat/internal/modules/commandchannel"
	"github.com/cutiefunny/musclecat/internal/modules/librarysync"
	"github.com/cutiefunny/musclecat/internal/modules/playqueue"
	"github.com/cutiefunny/musclecat/internal/modules/statusmirror"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

// Controller owns the device mode lifecycle.
type Controller struct {
	log       *zap.Logger
	store     *devstate.Store
	library   *librarysync.Engine
	queue     *playqueue.Engine
	receiver  *commandchannel.Receiver
	publisher *statusmirror.Publisher

	// onLabel fires whenever the status label changes.
	onLabel func(label string)

	mu              sync.Mutex
	mode            jukebox.Mode
	isAdmin         bool
	isAuthenticated bool
	label           string
}

// New creates a controller over the given components.
func New(log *zap.Logger, store *devstate.Store, library *librarysync.Engine,
	queue *playqueue.Engine, receiver *commandchannel.Receiver,
	publisher *statusmirror.Publisher) *Controller {
	return &Controller{
		log:       log,
		store:     store,
		library:   library,
		queue:     queue,
		receiver:  receiver,
		publisher: publisher,
		label:     jukebox.StatusLabel(jukebox.ModeUnset, false, false),
	}
}

// SetOnLabel installs the status label listener.
func (c *Controller) SetOnLabel(fn func(label string)) {
	c.mu.Lock()
	c.onLabel = fn
	c.mu.Unlock()
}

// Init loads the persisted mode and applies it. A device with no saved
// state comes up unset and waits for explicit configuration.
func (c *Controller) Init() error {
	state, err := c.store.Load()
	if err != nil {
		return err
	}
	if state.Mode == jukebox.ModeUnset {
		c.recomputeLabel()
		return nil
	}
	return c.SetMode(state.Mode)
}

// SetMode persists and applies a device mode. A fixed mode pins the
// library to its branch with an unconditional resubscribe and starts
// command reception; general mode only picks the default branch when no
// branch is selected yet.
func (c *Controller) SetMode(mode jukebox.Mode) error {
	if _, err := jukebox.ParseMode(string(mode)); err != nil {
		return err
	}
	if err := c.store.Save(devstate.State{Mode: mode}); err != nil {
		return err
	}

	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()

	if mode.Fixed() {
		branch := mode.Branch()
		c.publisher.SetBranch(branch)
		c.queue.SetNotifier(c.publisher.Publish)
		if err := c.library.PinBranch(branch); err != nil {
			return err
		}
		if err := c.receiver.Start(branch); err != nil {
			return err
		}
	} else if mode == jukebox.ModeGeneral && c.library.Branch() == "" {
		if err := c.library.SwitchBranch(jukebox.DefaultBranch); err != nil {
			return err
		}
	}

	c.recomputeLabel()
	c.log.Info("device mode set", zap.String("mode", string(mode)))
	return nil
}

// ResetMode returns the device to the unset state. Fixed devices clear
// their published status first, best-effort, so the admin view stops
// showing a stale connected device. All feeds are unsubscribed and
// playback state dropped.
func (c *Controller) ResetMode() error {
	c.mu.Lock()
	mode := c.mode
	c.mode = jukebox.ModeUnset
	c.mu.Unlock()

	if mode.Fixed() {
		c.publisher.Clear()
		if err := c.receiver.Stop(); err != nil {
			c.log.Warn("command channel stop failed", zap.Error(err))
		}
	}
	c.queue.SetNotifier(nil)
	if err := c.library.Close(); err != nil {
		c.log.Warn("library unsubscribe failed", zap.Error(err))
	}
	c.queue.Reset()

	if err := c.store.Clear(); err != nil {
		return err
	}
	c.recomputeLabel()
	c.log.Info("device mode reset")
	return nil
}

// Shutdown is the teardown hook. Fixed devices run a full reset so an
// abrupt close never leaves a stale connected status behind; other
// devices just drop their subscriptions.
func (c *Controller) Shutdown() {
	if c.Mode().Fixed() {
		if err := c.ResetMode(); err != nil {
			c.log.Warn("reset on shutdown failed", zap.Error(err))
		}
		return
	}
	if err := c.library.Close(); err != nil {
		c.log.Warn("library unsubscribe failed", zap.Error(err))
	}
	c.queue.Reset()
}

// SwitchBranch forwards a user branch selection, clearing playback
// state first. The sync engine enforces the fixed-mode and idempotence
// guards.
func (c *Controller) SwitchBranch(branch string) error {
	current := c.library.Branch()
	if branch != current {
		c.queue.Reset()
	}
	return c.library.SwitchBranch(branch)
}

// SetAuth updates the authentication flags feeding the status label.
func (c *Controller) SetAuth(isAdmin, isAuthenticated bool) {
	c.mu.Lock()
	c.isAdmin = isAdmin
	c.isAuthenticated = isAuthenticated
	c.mu.Unlock()
	c.recomputeLabel()
}

// Mode returns the active device mode.
func (c *Controller) Mode() jukebox.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Label returns the current human-readable status label.
func (c *Controller) Label() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label
}

func (c *Controller) recomputeLabel() {
	c.mu.Lock()
	label := jukebox.StatusLabel(c.mode, c.isAdmin, c.isAuthenticated)
	changed := label != c.label
	c.label = label
	onLabel := c.onLabel
	c.mu.Unlock()

	if changed && onLabel != nil {
		onLabel(label)
	}
}
