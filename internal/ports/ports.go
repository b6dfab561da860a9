package ports

import (
	"context"
	"io"

	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

// MessageHandler receives one document update from a subscription.
type MessageHandler func(topic string, payload []byte)

// Bus is the remote document store and its push-subscription mechanism.
// Documents are retained messages: publishing overwrites, publishing an
// empty retained payload deletes, and a new subscription is delivered
// the retained snapshot immediately.
type Bus interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
}

// BlobStore hosts uploaded audio files and hands back resolvable URLs.
type BlobStore interface {
	Upload(ctx context.Context, name string, r io.Reader) (url string, err error)
	Delete(ctx context.Context, url string) error
}

// AudioCache is the local persistent store for downloaded audio bytes.
// Every operation degrades gracefully: faults are logged by the
// implementation and surface as a miss or a no-op, never as an error,
// because the cache is a performance optimization and not a correctness
// dependency.
type AudioCache interface {
	Get(songID string) ([]byte, bool)
	Put(songID string, data []byte)
	Remove(songID string)
	ListIDs() []string

	// DownloadAndCache fetches song.Src and stores the bytes. Failures
	// abort silently; playback has already started from the remote URL.
	DownloadAndCache(ctx context.Context, song jukebox.Song)
}

// PlaybackSource describes what the audio driver should play. Data is
// set when the song came from the local cache, URL otherwise.
type PlaybackSource struct {
	SongID string
	URL    string
	Data   []byte
	Local  bool
}

// Player executes playback on the device's audio output.
type Player interface {
	Play(src PlaybackSource) error
	Pause() error
	Resume() error
	Stop() error
	Close() error
}

// Clock returns the current unix time in milliseconds.
type Clock interface {
	NowUnixMilli() int64
}
