// Package playqueue owns the device's play queue, shuffle and repeat
// state, and the cache-first audio acquisition policy.
package playqueue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/ports"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

// Handle is the locally held playable resource backing the current song
// when it plays from the cache. At most one handle is outstanding at a
// time; it must be released before a new one is created and on teardown.
type Handle struct {
	SongID string
	data   []byte
}

// Release frees the backing memory.
func (h *Handle) Release() {
	if h != nil {
		h.data = nil
	}
}

// Engine drives playback over the merged library.
type Engine struct {
	log    *zap.Logger
	cache  ports.AudioCache
	player ports.Player
	rng    *rand.Rand

	// notify publishes a status snapshot after playback-affecting
	// changes. Nil on devices that do not mirror status.
	notify func(jukebox.StatusSnapshot)

	// editInProgress blocks user-initiated play while an admin edit is
	// open.
	editInProgress func() bool

	mu           sync.Mutex
	songs        []jukebox.Song
	queue        []jukebox.Song
	current      *jukebox.Song
	currentLocal bool
	isPlaying    bool
	shuffle      bool
	repeat       jukebox.RepeatMode
	queueIndex   int
	listIndex    int
	handle       *Handle
}

// New creates an engine playing through the given cache and driver.
func New(log *zap.Logger, cache ports.AudioCache, player ports.Player) *Engine {
	return &Engine{
		log:        log,
		cache:      cache,
		player:     player,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		repeat:     jukebox.RepeatOff,
		queueIndex: -1,
		listIndex:  -1,
	}
}

// SetNotifier installs the status publish hook.
func (e *Engine) SetNotifier(notify func(jukebox.StatusSnapshot)) {
	e.mu.Lock()
	e.notify = notify
	e.mu.Unlock()
}

// SetEditGuard installs the edit-in-progress check.
func (e *Engine) SetEditGuard(guard func() bool) {
	e.mu.Lock()
	e.editInProgress = guard
	e.mu.Unlock()
}

// SetLibrary replaces the merged library. With shuffle off the queue
// follows list order; with shuffle on the queue is left alone and only
// the indices are recomputed (and clamped if the current song vanished).
func (e *Engine) SetLibrary(songs []jukebox.Song) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.songs = append([]jukebox.Song(nil), songs...)
	if !e.shuffle {
		e.queue = append([]jukebox.Song(nil), e.songs...)
	}
	e.queueIndex = e.locateInQueue()
	e.listIndex = e.locateInList()
}

// LoadAndPlay resolves a playable source for the song and starts it.
// Cached bytes win; otherwise playback starts directly from the remote
// URL while a background download fills the cache for next time.
func (e *Engine) LoadAndPlay(song jukebox.Song) {
	e.mu.Lock()

	e.handle.Release()
	e.handle = nil

	data, cached := e.cache.Get(song.ID)
	src := ports.PlaybackSource{SongID: song.ID, URL: song.Src}
	if cached {
		e.handle = &Handle{SongID: song.ID, data: data}
		src.Data = data
		src.Local = true
	} else {
		go e.cache.DownloadAndCache(context.Background(), song)
	}

	if err := e.player.Play(src); err != nil {
		e.log.Warn("playback start failed", zap.String("song", song.ID), zap.Error(err))
		e.isPlaying = false
	} else {
		e.isPlaying = true
	}

	copied := song
	e.current = &copied
	e.currentLocal = cached

	e.notifyLocked()
	e.mu.Unlock()
}

// Play starts a song chosen from the library, rebuilding the queue per
// the current shuffle state. Ignored while an edit is in progress.
func (e *Engine) Play(song jukebox.Song) {
	e.mu.Lock()
	if e.editInProgress != nil && e.editInProgress() {
		e.mu.Unlock()
		return
	}

	if e.shuffle {
		others := lo.Filter(e.songs, func(s jukebox.Song, _ int) bool { return s.ID != song.ID })
		e.shuffleInPlace(others)
		e.queue = append([]jukebox.Song{song}, others...)
		e.queueIndex = 0
	} else {
		e.queue = append([]jukebox.Song(nil), e.songs...)
		e.queueIndex = indexOf(e.songs, song.ID)
	}
	e.listIndex = indexOf(e.songs, song.ID)
	e.mu.Unlock()

	e.LoadAndPlay(song)
}

// ToggleShuffle flips shuffle mode and rebuilds the queue: current song
// first followed by a uniform permutation of the rest, or the library in
// list order when turning shuffle off.
func (e *Engine) ToggleShuffle() {
	e.mu.Lock()
	e.shuffle = !e.shuffle

	if e.shuffle {
		if e.current != nil {
			others := lo.Filter(e.songs, func(s jukebox.Song, _ int) bool { return s.ID != e.current.ID })
			e.shuffleInPlace(others)
			e.queue = append([]jukebox.Song{*e.current}, others...)
		} else {
			e.queue = append([]jukebox.Song(nil), e.songs...)
			e.shuffleInPlace(e.queue)
		}
	} else {
		e.queue = append([]jukebox.Song(nil), e.songs...)
	}
	e.queueIndex = e.locateInQueue()

	e.notifyLocked()
	e.mu.Unlock()
}

// PlayNext advances circularly through the queue.
func (e *Engine) PlayNext() {
	e.step(1)
}

// PlayPrevious steps back circularly through the queue.
func (e *Engine) PlayPrevious() {
	e.step(-1)
}

func (e *Engine) step(delta int) {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	next := e.queueIndex + delta
	if next >= len(e.queue) {
		next = 0
	}
	if next < 0 {
		next = len(e.queue) - 1
	}
	e.queueIndex = next
	song := e.queue[next]
	e.listIndex = indexOf(e.songs, song.ID)
	e.mu.Unlock()

	e.LoadAndPlay(song)
}

// SetRepeat sets the repeat mode explicitly.
func (e *Engine) SetRepeat(mode jukebox.RepeatMode) {
	e.mu.Lock()
	e.repeat = mode
	e.notifyLocked()
	e.mu.Unlock()
}

// CycleRepeat advances off -> one -> all -> off.
func (e *Engine) CycleRepeat() jukebox.RepeatMode {
	e.mu.Lock()
	e.repeat = e.repeat.Next()
	mode := e.repeat
	e.notifyLocked()
	e.mu.Unlock()
	return mode
}

// SetPlaying records a play/pause transition from the audio driver.
func (e *Engine) SetPlaying(playing bool) {
	e.mu.Lock()
	if e.isPlaying == playing {
		e.mu.Unlock()
		return
	}
	e.isPlaying = playing
	var err error
	if playing {
		err = e.player.Resume()
	} else {
		err = e.player.Pause()
	}
	if err != nil {
		e.log.Warn("playback toggle failed", zap.Error(err))
	}
	e.notifyLocked()
	e.mu.Unlock()
}

// HandleSongEnd reacts to a song finishing naturally. Repeat-one replays
// the current song, repeat-all advances with wraparound, repeat-off
// stops at the end of the queue.
func (e *Engine) HandleSongEnd() {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return
	}
	switch e.repeat {
	case jukebox.RepeatOne:
		song := *e.current
		e.mu.Unlock()
		e.LoadAndPlay(song)
		return
	case jukebox.RepeatOff:
		if e.queueIndex >= len(e.queue)-1 {
			e.isPlaying = false
			if err := e.player.Stop(); err != nil {
				e.log.Warn("stop failed", zap.Error(err))
			}
			e.notifyLocked()
			e.mu.Unlock()
			return
		}
	}
	e.mu.Unlock()
	e.PlayNext()
}

// RemoveSong drops a song from the queue ahead of its remote deletion.
// If it is the current song, playback stops and the handle is released
// first. Indices are clamped eagerly so nothing points past the new
// queue length.
func (e *Engine) RemoveSong(songID string) {
	e.mu.Lock()

	wasCurrent := e.current != nil && e.current.ID == songID
	if wasCurrent {
		e.handle.Release()
		e.handle = nil
		e.current = nil
		e.isPlaying = false
		if err := e.player.Stop(); err != nil {
			e.log.Warn("stop failed", zap.Error(err))
		}
	}

	e.queue = lo.Filter(e.queue, func(s jukebox.Song, _ int) bool { return s.ID != songID })

	if wasCurrent {
		e.queueIndex = -1
		e.listIndex = -1
	} else {
		e.queueIndex = e.locateInQueue()
		e.listIndex = e.locateInList()
	}
	if e.queueIndex >= len(e.queue) {
		e.queueIndex = len(e.queue) - 1
	}

	if wasCurrent {
		e.notifyLocked()
	}
	e.mu.Unlock()
}

// Reset clears all playback state and releases held resources. Called on
// branch change and device mode reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.handle.Release()
	e.handle = nil
	e.current = nil
	e.currentLocal = false
	e.isPlaying = false
	e.songs = nil
	e.queue = nil
	e.queueIndex = -1
	e.listIndex = -1
	if err := e.player.Stop(); err != nil {
		e.log.Warn("stop failed", zap.Error(err))
	}
	e.mu.Unlock()
}

// Snapshot projects the playback state for the status mirror.
func (e *Engine) Snapshot() jukebox.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Current returns the current song, if any.
func (e *Engine) Current() (jukebox.Song, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return jukebox.Song{}, false
	}
	return *e.current, true
}

// Queue returns a copy of the play queue.
func (e *Engine) Queue() []jukebox.Song {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]jukebox.Song(nil), e.queue...)
}

// QueueIndex returns the current position within the queue.
func (e *Engine) QueueIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queueIndex
}

// ListIndex returns the current position within the merged library.
func (e *Engine) ListIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listIndex
}

// Shuffle reports whether shuffle is on.
func (e *Engine) Shuffle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shuffle
}

// Repeat returns the repeat mode.
func (e *Engine) Repeat() jukebox.RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeat
}

func (e *Engine) snapshotLocked() jukebox.StatusSnapshot {
	snap := jukebox.StatusSnapshot{
		IsPlaying:  e.isPlaying,
		IsShuffle:  e.shuffle,
		RepeatMode: e.repeat,
	}
	if e.current != nil {
		snap.CurrentSong = &jukebox.NowPlayingSong{
			ID:     e.current.ID,
			Title:  e.current.Title,
			Artist: e.current.Artist,
			IsOld:  e.current.IsOld,
		}
	}
	return snap
}

// notifyLocked publishes synchronously so status writes land in the
// same order as the state changes that caused them.
func (e *Engine) notifyLocked() {
	if e.notify == nil {
		return
	}
	e.notify(e.snapshotLocked())
}

func (e *Engine) locateInQueue() int {
	if e.current == nil {
		return -1
	}
	return indexOf(e.queue, e.current.ID)
}

func (e *Engine) locateInList() int {
	if e.current == nil {
		return -1
	}
	return indexOf(e.songs, e.current.ID)
}

func (e *Engine) shuffleInPlace(songs []jukebox.Song) {
	e.rng.Shuffle(len(songs), func(i, j int) {
		songs[i], songs[j] = songs[j], songs[i]
	})
}

func indexOf(songs []jukebox.Song, id string) int {
	_, idx, _ := lo.FindIndexOf(songs, func(s jukebox.Song) bool { return s.ID == id })
	return idx
}
