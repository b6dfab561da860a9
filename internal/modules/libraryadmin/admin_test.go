package libraryadmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/bustest"
	"github.com/cutiefunny/musclecat/internal/modules/librarysync"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

type fakeBlobs struct {
	mu      sync.Mutex
	uploads map[string][]byte
	deleted []string
	nextID  int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{uploads: map[string][]byte{}}
}

func (b *fakeBlobs) Upload(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	url := fmt.Sprintf("http://blobs/music/%d_%s", b.nextID, name)
	b.uploads[url] = data
	return url, nil
}

func (b *fakeBlobs) Delete(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.uploads, url)
	b.deleted = append(b.deleted, url)
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[id]
	return d, ok
}

func (c *memCache) Put(id string, d []byte) {
	c.mu.Lock()
	c.data[id] = d
	c.mu.Unlock()
}

func (c *memCache) Remove(id string) {
	c.mu.Lock()
	delete(c.data, id)
	c.mu.Unlock()
}

func (c *memCache) ListIDs() []string { return nil }

func (c *memCache) DownloadAndCache(context.Context, jukebox.Song) {}

type tickClock struct {
	mu  sync.Mutex
	now int64
}

func (c *tickClock) NowUnixMilli() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += 1000
	return c.now
}

func newTestAdmin(t *testing.T) (*Admin, *bustest.Bus, *fakeBlobs, *memCache, *librarysync.Engine) {
	t.Helper()
	bus := bustest.New()
	lib := librarysync.New(zap.NewNop(), bus, jukebox.BaseTopic, false)
	if err := lib.SwitchBranch(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}
	blobs := newFakeBlobs()
	cache := newMemCache()
	admin := New(zap.NewNop(), bus, blobs, cache, &tickClock{}, jukebox.BaseTopic, lib)
	return admin, bus, blobs, cache, lib
}

func TestParseFileName(t *testing.T) {
	cases := []struct {
		in             string
		artist, title  string
	}{
		{"Queen - Bohemian Rhapsody.mp3", "Queen", "Bohemian Rhapsody"},
		{"Jazz Mix.mp3", "unknown artist", "Jazz Mix"},
		{"A - B - C.mp3", "A", "B - C"},
		{" - Orphan.mp3", "unknown artist", " - Orphan"},
	}
	for _, tc := range cases {
		artist, title := ParseFileName(tc.in)
		if artist != tc.artist || title != tc.title {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tc.in, artist, title, tc.artist, tc.title)
		}
	}
}

func TestUploadPublishesSongDocument(t *testing.T) {
	admin, _, blobs, _, lib := newTestAdmin(t)

	song, err := admin.Upload(context.Background(), jukebox.Branch1,
		"Queen - Bohemian Rhapsody.mp3", strings.NewReader("bytes"))
	if err != nil {
		t.Fatal(err)
	}

	if song.Artist != "Queen" || song.Title != "Bohemian Rhapsody" {
		t.Fatalf("metadata not parsed: %+v", song)
	}
	if song.Order == 0 || song.Order != song.CreatedAt {
		t.Fatalf("order must be the upload time: %+v", song)
	}

	blobs.mu.Lock()
	stored := len(blobs.uploads)
	blobs.mu.Unlock()
	if stored != 1 {
		t.Fatalf("expected 1 blob upload, got %d", stored)
	}

	songs := lib.Songs()
	if len(songs) != 1 || songs[0].ID != song.ID {
		t.Fatalf("song did not reach the library: %+v", songs)
	}
}

func TestUploadsKeepChronologicalOrder(t *testing.T) {
	admin, _, _, _, lib := newTestAdmin(t)

	for _, name := range []string{"A - one.mp3", "B - two.mp3", "C - three.mp3"} {
		if _, err := admin.Upload(context.Background(), jukebox.Branch1, name, strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}

	songs := lib.Songs()
	if songs[0].Title != "one" || songs[1].Title != "two" || songs[2].Title != "three" {
		t.Fatalf("upload order lost: %+v", songs)
	}
}

func TestMoveSongSwapsOrderKeys(t *testing.T) {
	admin, _, _, _, lib := newTestAdmin(t)
	for _, name := range []string{"X - A.mp3", "X - B.mp3", "X - C.mp3"} {
		if _, err := admin.Upload(context.Background(), jukebox.Branch1, name, strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}

	if err := admin.MoveSong(jukebox.Branch1, 1, MoveUp); err != nil {
		t.Fatal(err)
	}

	songs := lib.Songs()
	if songs[0].Title != "B" || songs[1].Title != "A" || songs[2].Title != "C" {
		t.Fatalf("expected B,A,C got %s,%s,%s", songs[0].Title, songs[1].Title, songs[2].Title)
	}
}

func TestMoveSongOutOfRangeIsNoop(t *testing.T) {
	admin, _, _, _, lib := newTestAdmin(t)
	if _, err := admin.Upload(context.Background(), jukebox.Branch1, "X - A.mp3", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	if err := admin.MoveSong(jukebox.Branch1, 0, MoveUp); err != nil {
		t.Fatal(err)
	}
	if err := admin.MoveSong(jukebox.Branch1, 0, MoveDown); err != nil {
		t.Fatal(err)
	}
	if len(lib.Songs()) != 1 {
		t.Fatal("no-op move changed the library")
	}
}

func TestSaveEditUpdatesMetadata(t *testing.T) {
	admin, _, _, _, lib := newTestAdmin(t)
	song, err := admin.Upload(context.Background(), jukebox.Branch1, "X - A.mp3", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}

	admin.StartEdit(song)
	if !admin.Editing() {
		t.Fatal("edit session not open")
	}
	if err := admin.SaveEdit(jukebox.Branch1, song.ID, "New Title", "New Artist"); err != nil {
		t.Fatal(err)
	}

	if admin.Editing() {
		t.Fatal("edit session must close after save")
	}
	got := lib.Songs()[0]
	if got.Title != "New Title" || got.Artist != "New Artist" {
		t.Fatalf("edit not applied: %+v", got)
	}
	if got.Order != song.Order {
		t.Fatal("edit must not disturb the order key")
	}
}

func TestSaveEditRejectsBlankFields(t *testing.T) {
	admin, _, _, _, _ := newTestAdmin(t)
	song, err := admin.Upload(context.Background(), jukebox.Branch1, "X - A.mp3", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}

	admin.StartEdit(song)
	if err := admin.SaveEdit(jukebox.Branch1, song.ID, "  ", "Someone"); err == nil {
		t.Fatal("blank title must be rejected")
	}
	if admin.Editing() {
		t.Fatal("session must close even on a failed save")
	}
}

func TestDeleteSongRemovesEverywhere(t *testing.T) {
	admin, bus, blobs, cache, lib := newTestAdmin(t)
	song, err := admin.Upload(context.Background(), jukebox.Branch1, "X - A.mp3", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	cache.Put(song.ID, []byte("cached"))

	if err := admin.DeleteSong(context.Background(), jukebox.Branch1, song); err != nil {
		t.Fatal(err)
	}

	if len(lib.Songs()) != 0 {
		t.Fatal("song still in library")
	}
	if _, ok := bus.Retained(jukebox.TopicSong(jukebox.BaseTopic, jukebox.Branch1, song.ID)); ok {
		t.Fatal("song document still retained")
	}
	if _, ok := cache.Get(song.ID); ok {
		t.Fatal("cache entry survived the delete")
	}
	blobs.mu.Lock()
	deleted := len(blobs.deleted)
	blobs.mu.Unlock()
	if deleted != 1 {
		t.Fatal("audio blob not deleted")
	}
}

func TestMutationsBlockedDuringEdit(t *testing.T) {
	admin, _, _, _, lib := newTestAdmin(t)
	for _, name := range []string{"X - A.mp3", "X - B.mp3"} {
		if _, err := admin.Upload(context.Background(), jukebox.Branch1, name, strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}
	songs := lib.Songs()
	admin.StartEdit(songs[0])

	if err := admin.MoveSong(jukebox.Branch1, 0, MoveDown); err != nil {
		t.Fatal(err)
	}
	if err := admin.DeleteSong(context.Background(), jukebox.Branch1, songs[1]); err != nil {
		t.Fatal(err)
	}

	got := lib.Songs()
	if len(got) != 2 || got[0].ID != songs[0].ID {
		t.Fatalf("edit guard did not hold: %+v", got)
	}
}

func TestLegacySongRoutesToLegacyCollection(t *testing.T) {
	bus := bustest.New()
	lib := librarysync.New(zap.NewNop(), bus, jukebox.BaseTopic, true)
	if err := lib.SwitchBranch(jukebox.Branch2); err != nil {
		t.Fatal(err)
	}
	admin := New(zap.NewNop(), bus, newFakeBlobs(), newMemCache(), &tickClock{}, jukebox.BaseTopic, lib)

	legacy := jukebox.Song{ID: "old1", Title: "Old", Artist: "Past", Order: 1, IsOld: true}
	payload, _ := json.Marshal(jukebox.Song{ID: "old1", Title: "Old", Artist: "Past", Order: 1})
	if err := bus.Publish(jukebox.TopicLegacySong(jukebox.BaseTopic, "old1"), 1, true, payload); err != nil {
		t.Fatal(err)
	}

	admin.StartEdit(legacy)
	if err := admin.SaveEdit(jukebox.Branch2, "old1", "Renamed", "Past"); err != nil {
		t.Fatal(err)
	}

	raw, ok := bus.Retained(jukebox.TopicLegacySong(jukebox.BaseTopic, "old1"))
	if !ok {
		t.Fatal("legacy document not updated in the legacy collection")
	}
	var got jukebox.Song
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "Renamed" {
		t.Fatalf("legacy edit lost: %+v", got)
	}
	if got.IsOld {
		t.Fatal("legacy tag must never be written back")
	}
	if _, ok := bus.Retained(jukebox.TopicSong(jukebox.BaseTopic, jukebox.Branch2, "old1")); ok {
		t.Fatal("legacy song leaked into the branch collection")
	}
}
