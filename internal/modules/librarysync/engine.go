// Package librarysync mirrors a branch's song collection from the
// document bus into an in-memory merged list. Each song is one retained
// document; updates arrive incrementally and the merged list is rebuilt
// in full on every change so it always equals the concatenation of the
// live sources, stably sorted by order.
package librarysync

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/ports"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

// source keeps one collection's songs in arrival order so the stable
// sort has a deterministic baseline for equal order values.
type source struct {
	ids   []string
	songs map[string]jukebox.Song
}

func newSource() *source {
	return &source{songs: map[string]jukebox.Song{}}
}

func (s *source) upsert(song jukebox.Song) {
	if _, seen := s.songs[song.ID]; !seen {
		s.ids = append(s.ids, song.ID)
	}
	s.songs[song.ID] = song
}

func (s *source) remove(id string) {
	if _, seen := s.songs[id]; !seen {
		return
	}
	delete(s.songs, id)
	for i, known := range s.ids {
		if known == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

func (s *source) list() []jukebox.Song {
	out := make([]jukebox.Song, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.songs[id])
	}
	return out
}

// Engine is the library sync engine for one device.
type Engine struct {
	log         *zap.Logger
	bus         ports.Bus
	topicBase   string
	legacyMerge bool

	// onUpdate receives the freshly merged list after every change.
	onUpdate func(songs []jukebox.Song)

	mu          sync.Mutex
	epoch       uint64
	branch      string
	fixedBranch string
	loading     bool
	branchSongs *source
	legacySongs *source
	filters     []string
}

// New creates an engine over the bus. When legacyMerge is set, the
// legacy collection is merged into branch 2's list with each entry
// tagged as old.
func New(log *zap.Logger, bus ports.Bus, topicBase string, legacyMerge bool) *Engine {
	return &Engine{
		log:         log,
		bus:         bus,
		topicBase:   topicBase,
		legacyMerge: legacyMerge,
		branchSongs: newSource(),
		legacySongs: newSource(),
	}
}

// SetOnUpdate installs the merged-list listener.
func (e *Engine) SetOnUpdate(fn func(songs []jukebox.Song)) {
	e.mu.Lock()
	e.onUpdate = fn
	e.mu.Unlock()
}

// PinBranch fixes the engine to one branch and subscribes to it
// unconditionally, bypassing every switch guard. Used by fixed-mode
// devices on startup.
func (e *Engine) PinBranch(branch string) error {
	e.mu.Lock()
	e.fixedBranch = branch
	e.mu.Unlock()
	return e.resubscribe(branch)
}

// Branch returns the branch currently subscribed, or "".
func (e *Engine) Branch() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branch
}

// Loading reports whether the first snapshot is still being awaited.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Songs returns the merged list.
func (e *Engine) Songs() []jukebox.Song {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergedLocked()
}

// SwitchBranch moves the subscription to another branch. On a pinned
// device the request is logged and ignored. Re-selecting the current
// branch is a no-op unless the list is empty or still loading, in which
// case the subscription is rebuilt to recover from a failed load.
func (e *Engine) SwitchBranch(branch string) error {
	e.mu.Lock()
	if e.fixedBranch != "" && branch != e.fixedBranch {
		e.log.Warn("branch switch ignored on pinned device",
			zap.String("pinned", e.fixedBranch),
			zap.String("requested", branch))
		e.mu.Unlock()
		return nil
	}
	if branch == e.branch && len(e.branchSongs.ids)+len(e.legacySongs.ids) > 0 && !e.loading {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	return e.resubscribe(branch)
}

// Close tears down the subscriptions.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.epoch++
	filters := e.filters
	e.filters = nil
	e.branch = ""
	e.mu.Unlock()

	if len(filters) == 0 {
		return nil
	}
	return e.bus.Unsubscribe(filters...)
}

func (e *Engine) resubscribe(branch string) error {
	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	old := e.filters

	e.branch = branch
	e.loading = true
	e.branchSongs = newSource()
	e.legacySongs = newSource()

	filters := []string{jukebox.TopicSongs(e.topicBase, branch)}
	withLegacy := e.legacyMerge && branch == jukebox.Branch2
	if withLegacy {
		filters = append(filters, jukebox.TopicLegacySongs(e.topicBase))
	}
	e.filters = filters
	e.mu.Unlock()

	if len(old) > 0 {
		if err := e.bus.Unsubscribe(old...); err != nil {
			e.log.Warn("unsubscribe failed", zap.Error(err))
		}
	}

	if err := e.bus.Subscribe(filters[0], 1, func(topic string, payload []byte) {
		e.handleSong(epoch, false, topic, payload)
	}); err != nil {
		e.abandonSubscription(epoch)
		return err
	}
	if withLegacy {
		if err := e.bus.Subscribe(filters[1], 1, func(topic string, payload []byte) {
			e.handleSong(epoch, true, topic, payload)
		}); err != nil {
			// Roll back the branch subscription so the engine is never
			// left half-subscribed.
			if uerr := e.bus.Unsubscribe(filters[0]); uerr != nil {
				e.log.Warn("rollback unsubscribe failed", zap.Error(uerr))
			}
			e.abandonSubscription(epoch)
			return err
		}
	}

	e.mu.Lock()
	loaded := epoch == e.epoch
	if loaded {
		e.loading = false
	}
	e.mu.Unlock()
	if loaded {
		e.publishMerged(epoch)
	}

	e.log.Info("library subscribed",
		zap.String("branch", branch),
		zap.Bool("legacy", withLegacy))
	return nil
}

// abandonSubscription resets the engine to the unsubscribed state after
// a failed resubscribe, unless a newer epoch already took over.
func (e *Engine) abandonSubscription(epoch uint64) {
	e.mu.Lock()
	if epoch == e.epoch {
		e.epoch++
		e.filters = nil
		e.branch = ""
		e.loading = false
	}
	e.mu.Unlock()
}

// handleSong applies one document message. Messages from a superseded
// subscription epoch are dropped so a resubscribe can never be polluted
// by late callbacks from the previous branch.
func (e *Engine) handleSong(epoch uint64, legacy bool, topic string, payload []byte) {
	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return
	}

	src := e.branchSongs
	if legacy {
		src = e.legacySongs
	}

	id := jukebox.SongIDFromTopic(topic)
	if len(payload) == 0 {
		src.remove(id)
		e.mu.Unlock()
		e.publishMerged(epoch)
		return
	}

	var song jukebox.Song
	if err := json.Unmarshal(payload, &song); err != nil {
		e.log.Warn("bad song document",
			zap.String("topic", topic),
			zap.Error(err))
		e.mu.Unlock()
		return
	}
	if song.ID == "" {
		song.ID = id
	}
	song.IsOld = legacy
	src.upsert(song)
	e.mu.Unlock()

	e.publishMerged(epoch)
}

func (e *Engine) publishMerged(epoch uint64) {
	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return
	}
	merged := e.mergedLocked()
	onUpdate := e.onUpdate
	e.mu.Unlock()

	if onUpdate != nil {
		onUpdate(merged)
	}
}

func (e *Engine) mergedLocked() []jukebox.Song {
	merged := append(e.branchSongs.list(), e.legacySongs.list()...)
	jukebox.SortSongs(merged)
	return merged
}
