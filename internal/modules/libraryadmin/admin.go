// Package libraryadmin implements the admin-side library operations:
// upload, metadata edit, reorder, and delete. All mutations go through
// the document bus as retained song documents, so every subscribed
// device converges on the same library without any direct coupling.
package libraryadmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/modules/librarysync"
	"github.com/cutiefunny/musclecat/internal/modules/playqueue"
	"github.com/cutiefunny/musclecat/internal/ports"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

// Direction moves a song up or down one position in the merged list.
type Direction string

const (
	MoveUp   Direction = "up"
	MoveDown Direction = "down"
)

// Admin performs library mutations against the document bus.
type Admin struct {
	log       *zap.Logger
	bus       ports.Bus
	blobs     ports.BlobStore
	cache     ports.AudioCache
	clock     ports.Clock
	topicBase string
	library   *librarysync.Engine

	// queue is set on devices that both administer and play, so a
	// delete can drop the song from the live queue first. Nil on a
	// pure admin console.
	queue *playqueue.Engine

	mu         sync.Mutex
	editingID  string
	editTitle  string
	editArtist string
}

// New creates an admin over the given library view.
func New(log *zap.Logger, bus ports.Bus, blobs ports.BlobStore, cache ports.AudioCache,
	clock ports.Clock, topicBase string, library *librarysync.Engine) *Admin {
	return &Admin{
		log:       log,
		bus:       bus,
		blobs:     blobs,
		cache:     cache,
		clock:     clock,
		topicBase: topicBase,
		library:   library,
	}
}

// AttachQueue wires the local playback engine for delete interaction.
func (a *Admin) AttachQueue(queue *playqueue.Engine) {
	a.mu.Lock()
	a.queue = queue
	a.mu.Unlock()
}

// ParseFileName splits "Artist - Title.ext" into its parts. Without the
// separator the whole base name becomes the title.
func ParseFileName(fileName string) (artist, title string) {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	parts := strings.SplitN(base, " - ", 2)
	if len(parts) == 2 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return "unknown artist", base
}

// Upload stores the audio file and publishes its song document to the
// branch's collection. The order key is the upload time in unix
// milliseconds, which keeps new songs at the end of the list.
func (a *Admin) Upload(ctx context.Context, branch, fileName string, r io.Reader) (jukebox.Song, error) {
	if a.blobs == nil {
		return jukebox.Song{}, errors.New("no blob store configured")
	}
	artist, title := ParseFileName(fileName)

	src, err := a.blobs.Upload(ctx, fileName, r)
	if err != nil {
		return jukebox.Song{}, fmt.Errorf("upload %s: %w", fileName, err)
	}

	now := a.clock.NowUnixMilli()
	song := jukebox.Song{
		ID:        uuid.NewString(),
		Title:     title,
		Artist:    artist,
		Src:       src,
		Order:     now,
		FileName:  fileName,
		CreatedAt: now,
	}
	if err := a.publishSong(branch, song); err != nil {
		return jukebox.Song{}, err
	}

	a.log.Info("song uploaded",
		zap.String("branch", branch),
		zap.String("song", song.ID),
		zap.String("title", title),
		zap.String("artist", artist))
	return song, nil
}

// StartEdit opens an edit session for one song. Only one session exists
// at a time; starting a new one replaces the old.
func (a *Admin) StartEdit(song jukebox.Song) {
	a.mu.Lock()
	a.editingID = song.ID
	a.editTitle = song.Title
	a.editArtist = song.Artist
	a.mu.Unlock()
}

// CancelEdit abandons the edit session. Also invoked on every merged
// list update, since the edited row may have moved or vanished.
func (a *Admin) CancelEdit() {
	a.mu.Lock()
	a.editingID = ""
	a.editTitle = ""
	a.editArtist = ""
	a.mu.Unlock()
}

// Editing reports whether an edit session is open. Playback and other
// mutations consult this as a guard.
func (a *Admin) Editing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.editingID != ""
}

// SaveEdit writes the new title and artist to the song's document. The
// session is closed whether or not the save succeeds.
func (a *Admin) SaveEdit(branch, songID, title, artist string) error {
	a.mu.Lock()
	editing := a.editingID
	a.mu.Unlock()
	if editing == "" || editing != songID {
		return errors.New("no edit session for this song")
	}
	defer a.CancelEdit()

	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)
	if title == "" || artist == "" {
		return errors.New("title and artist must not be empty")
	}

	song, ok := a.findSong(songID)
	if !ok {
		return fmt.Errorf("song %s not in library", songID)
	}
	song.Title = title
	song.Artist = artist
	return a.publishSong(branch, song)
}

// MoveSong swaps the order keys of the song at index and its neighbor
// in the given direction, then republishes both documents. Out-of-range
// moves and moves during an edit session are no-ops.
func (a *Admin) MoveSong(branch string, index int, dir Direction) error {
	if a.Editing() {
		return nil
	}

	songs := a.library.Songs()
	neighbor := index + 1
	if dir == MoveUp {
		neighbor = index - 1
	}
	if index < 0 || index >= len(songs) || neighbor < 0 || neighbor >= len(songs) {
		return nil
	}

	songA := songs[index]
	songB := songs[neighbor]
	songA.Order, songB.Order = songB.Order, songA.Order

	if err := a.publishSong(branch, songA); err != nil {
		return err
	}
	return a.publishSong(branch, songB)
}

// DeleteSong removes a song everywhere: the live queue, the audio blob,
// the remote document, and the local cache. Blob deletion is
// best-effort; the document delete proceeds regardless so the library
// never keeps a row pointing at storage that may be gone.
func (a *Admin) DeleteSong(ctx context.Context, branch string, song jukebox.Song) error {
	if a.Editing() {
		return nil
	}

	a.mu.Lock()
	queue := a.queue
	a.mu.Unlock()
	if queue != nil {
		queue.RemoveSong(song.ID)
	}

	if song.Src != "" && a.blobs != nil {
		if err := a.blobs.Delete(ctx, song.Src); err != nil {
			a.log.Warn("blob delete failed",
				zap.String("song", song.ID),
				zap.Error(err))
		}
	}

	if err := a.bus.Publish(a.docTopic(branch, song), 1, true, nil); err != nil {
		return fmt.Errorf("delete song %s: %w", song.ID, err)
	}
	a.cache.Remove(song.ID)

	a.log.Info("song deleted",
		zap.String("branch", branch),
		zap.String("song", song.ID),
		zap.String("title", song.Title))
	return nil
}

func (a *Admin) findSong(songID string) (jukebox.Song, bool) {
	for _, song := range a.library.Songs() {
		if song.ID == songID {
			return song, true
		}
	}
	return jukebox.Song{}, false
}

// publishSong overwrites the song's retained document. Legacy songs
// live in their own collection; the tag itself is never written back,
// readers reapply it from the topic.
func (a *Admin) publishSong(branch string, song jukebox.Song) error {
	topic := a.docTopic(branch, song)
	song.IsOld = false

	payload, err := json.Marshal(song)
	if err != nil {
		return err
	}
	return a.bus.Publish(topic, 1, true, payload)
}

func (a *Admin) docTopic(branch string, song jukebox.Song) string {
	if song.IsOld {
		return jukebox.TopicLegacySong(a.topicBase, song.ID)
	}
	return jukebox.TopicSong(a.topicBase, branch, song.ID)
}
