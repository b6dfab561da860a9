// Package statusmirror publishes a branch's live playback snapshot as a
// retained document and lets the admin role watch every branch at once.
package statusmirror

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/ports"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

// Publisher overwrites one branch's status document after every
// playback-affecting event. Writes are fire-and-forget: a failed
// publish is logged and playback carries on.
type Publisher struct {
	log       *zap.Logger
	bus       ports.Bus
	topicBase string
	clock     ports.Clock

	mu     sync.Mutex
	branch string
}

// NewPublisher creates a publisher for the given branch.
func NewPublisher(log *zap.Logger, bus ports.Bus, topicBase, branch string, clock ports.Clock) *Publisher {
	return &Publisher{log: log, bus: bus, topicBase: topicBase, branch: branch, clock: clock}
}

// SetBranch repoints the publisher, used when a fixed device is
// reconfigured. The previous branch's retained document is cleared so
// monitors stop listing the device under a branch it left.
func (p *Publisher) SetBranch(branch string) {
	p.mu.Lock()
	old := p.branch
	p.branch = branch
	p.mu.Unlock()

	if old != "" && old != branch {
		p.clearBranch(old)
	}
}

// Publish overwrites the status document with the snapshot, stamped
// with the current time.
func (p *Publisher) Publish(snap jukebox.StatusSnapshot) {
	p.mu.Lock()
	branch := p.branch
	p.mu.Unlock()
	if branch == "" {
		return
	}

	snap.UpdatedAt = p.clock.NowUnixMilli()
	payload, err := json.Marshal(snap)
	if err != nil {
		p.log.Warn("status marshal failed", zap.Error(err))
		return
	}
	topic := jukebox.TopicNowPlaying(p.topicBase, branch)
	if err := p.bus.Publish(topic, 1, true, payload); err != nil {
		p.log.Warn("status publish failed", zap.String("branch", branch), zap.Error(err))
	}
}

// Clear deletes the branch's status document so monitors stop showing
// the device as connected. Best-effort, used during mode reset and
// shutdown.
func (p *Publisher) Clear() {
	p.mu.Lock()
	branch := p.branch
	p.mu.Unlock()
	if branch == "" {
		return
	}

	p.clearBranch(branch)
}

func (p *Publisher) clearBranch(branch string) {
	topic := jukebox.TopicNowPlaying(p.topicBase, branch)
	if err := p.bus.Publish(topic, 1, true, nil); err != nil {
		p.log.Warn("status clear failed", zap.String("branch", branch), zap.Error(err))
	}
}

// Monitor follows the status documents of all branches. A branch whose
// document is absent or deleted reads as nil, meaning no device is
// connected there, which is distinct from a published-but-idle snapshot.
type Monitor struct {
	log       *zap.Logger
	bus       ports.Bus
	topicBase string

	// onChange fires with the branch and its new status (nil when the
	// document was deleted).
	onChange func(branch string, snap *jukebox.StatusSnapshot)

	mu       sync.Mutex
	statuses map[string]*jukebox.StatusSnapshot
	filters  []string
}

// NewMonitor creates a monitor over the bus.
func NewMonitor(log *zap.Logger, bus ports.Bus, topicBase string) *Monitor {
	return &Monitor{
		log:       log,
		bus:       bus,
		topicBase: topicBase,
		statuses:  map[string]*jukebox.StatusSnapshot{},
	}
}

// SetOnChange installs the per-branch status listener.
func (m *Monitor) SetOnChange(fn func(branch string, snap *jukebox.StatusSnapshot)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Start subscribes to every branch's status document.
func (m *Monitor) Start() error {
	for _, branch := range []string{jukebox.Branch1, jukebox.Branch2} {
		branch := branch
		filter := jukebox.TopicNowPlaying(m.topicBase, branch)

		m.mu.Lock()
		m.filters = append(m.filters, filter)
		m.mu.Unlock()

		if err := m.bus.Subscribe(filter, 1, func(_ string, payload []byte) {
			m.handle(branch, payload)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Stop unsubscribes from all status documents.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	filters := m.filters
	m.filters = nil
	m.mu.Unlock()

	if len(filters) == 0 {
		return nil
	}
	return m.bus.Unsubscribe(filters...)
}

// Status returns the latest snapshot for a branch, or nil when no
// device is connected there.
func (m *Monitor) Status(branch string) *jukebox.StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.statuses[branch]
	if snap == nil {
		return nil
	}
	copied := *snap
	return &copied
}

func (m *Monitor) handle(branch string, payload []byte) {
	var snap *jukebox.StatusSnapshot
	if len(payload) > 0 {
		var decoded jukebox.StatusSnapshot
		if err := json.Unmarshal(payload, &decoded); err != nil {
			m.log.Warn("bad status document", zap.String("branch", branch), zap.Error(err))
			return
		}
		snap = &decoded
	}

	m.mu.Lock()
	m.statuses[branch] = snap
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(branch, snap)
	}
}
