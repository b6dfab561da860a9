package commandchannel

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/bustest"
	"github.com/cutiefunny/musclecat/internal/modules/playqueue"
	"github.com/cutiefunny/musclecat/internal/ports"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

type stepClock struct {
	mu  sync.Mutex
	now int64
}

func (c *stepClock) NowUnixMilli() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

type nullCache struct{}

func (nullCache) Get(string) ([]byte, bool)                       { return nil, false }
func (nullCache) Put(string, []byte)                              {}
func (nullCache) Remove(string)                                   {}
func (nullCache) ListIDs() []string                               { return nil }
func (nullCache) DownloadAndCache(context.Context, jukebox.Song)  {}

type nullPlayer struct{}

func (nullPlayer) Play(ports.PlaybackSource) error { return nil }
func (nullPlayer) Pause() error                    { return nil }
func (nullPlayer) Resume() error                   { return nil }
func (nullPlayer) Stop() error                     { return nil }
func (nullPlayer) Close() error                    { return nil }

func testPair(t *testing.T) (*bustest.Bus, *Sender, *Receiver, *playqueue.Engine) {
	t.Helper()
	bus := bustest.New()
	engine := playqueue.New(zap.NewNop(), nullCache{}, nullPlayer{})
	sender := NewSender(zap.NewNop(), bus, jukebox.BaseTopic, &stepClock{})
	receiver := NewReceiver(zap.NewNop(), bus, jukebox.BaseTopic, engine)
	return bus, sender, receiver, engine
}

func library(ids ...string) []jukebox.Song {
	songs := make([]jukebox.Song, len(ids))
	for i, id := range ids {
		songs[i] = jukebox.Song{ID: id, Title: id, Order: int64(i + 1)}
	}
	return songs
}

func TestNextCommandAdvancesQueue(t *testing.T) {
	_, sender, receiver, engine := testPair(t)
	engine.SetLibrary(library("a", "b"))
	engine.Play(library("a", "b")[0])

	if err := receiver.Start(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}
	if err := sender.SendNext(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}

	if cur, _ := engine.Current(); cur.ID != "b" {
		t.Fatalf("expected b after next, got %s", cur.ID)
	}
}

func TestStaleTimestampIsDropped(t *testing.T) {
	bus, _, receiver, engine := testPair(t)
	engine.SetLibrary(library("a", "b", "c"))
	engine.Play(library("a", "b", "c")[0])
	if err := receiver.Start(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}

	topic := jukebox.TopicCommands(jukebox.BaseTopic, jukebox.Branch1)
	fresh := []byte(`{"type":"next","timestamp":100}`)
	if err := bus.Publish(topic, 1, true, fresh); err != nil {
		t.Fatal(err)
	}
	if cur, _ := engine.Current(); cur.ID != "b" {
		t.Fatalf("fresh command not applied, current %s", cur.ID)
	}

	// Same timestamp again: must be a no-op.
	if err := bus.Publish(topic, 1, true, fresh); err != nil {
		t.Fatal(err)
	}
	if cur, _ := engine.Current(); cur.ID != "b" {
		t.Fatal("re-delivered command was applied twice")
	}

	// Older timestamp: also a no-op.
	if err := bus.Publish(topic, 1, true, []byte(`{"type":"next","timestamp":50}`)); err != nil {
		t.Fatal(err)
	}
	if cur, _ := engine.Current(); cur.ID != "b" {
		t.Fatal("older command was applied")
	}
	if receiver.LastApplied() != 100 {
		t.Fatalf("last applied should stay 100, got %d", receiver.LastApplied())
	}
}

func TestRetainedCommandAppliesOnSubscribe(t *testing.T) {
	_, sender, receiver, engine := testPair(t)
	engine.SetLibrary(library("a", "b"))
	engine.Play(library("a", "b")[0])

	// Command lands while the receiver is offline.
	if err := sender.SendNext(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}
	if err := receiver.Start(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}

	if cur, _ := engine.Current(); cur.ID != "b" {
		t.Fatalf("retained command must apply on subscribe, got %s", cur.ID)
	}
}

func TestSetRepeatCommandFiresEventSignal(t *testing.T) {
	_, sender, receiver, engine := testPair(t)
	if err := receiver.Start(jukebox.Branch2); err != nil {
		t.Fatal(err)
	}

	var events []jukebox.CommandType
	var mu sync.Mutex
	receiver.SetOnCommand(func(cmd jukebox.Command) {
		mu.Lock()
		events = append(events, cmd.Type)
		mu.Unlock()
	})

	if err := sender.SendSetRepeat(jukebox.Branch2, jukebox.RepeatAll); err != nil {
		t.Fatal(err)
	}
	// Setting the same mode again is a pure state no-op but still an
	// applied command, so the event signal must fire again.
	if err := sender.SendSetRepeat(jukebox.Branch2, jukebox.RepeatAll); err != nil {
		t.Fatal(err)
	}

	if engine.Repeat() != jukebox.RepeatAll {
		t.Fatalf("repeat mode not applied: %s", engine.Repeat())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 command events, got %d", len(events))
	}
}

func TestPlaySongCommandPlaysPayloadDirectly(t *testing.T) {
	_, sender, receiver, engine := testPair(t)
	if err := receiver.Start(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}

	song := jukebox.Song{ID: "direct", Title: "Direct", Src: "http://host/direct"}
	if err := sender.SendPlaySong(jukebox.Branch1, song); err != nil {
		t.Fatal(err)
	}

	cur, ok := engine.Current()
	if !ok || cur.ID != "direct" {
		t.Fatalf("playSong payload not played: %+v ok=%v", cur, ok)
	}
	// Direct play bypasses the queue rebuild.
	if len(engine.Queue()) != 0 {
		t.Fatalf("playSong must not rebuild the queue: %+v", engine.Queue())
	}
}

func TestInvalidCommandIgnored(t *testing.T) {
	bus, _, receiver, engine := testPair(t)
	engine.SetLibrary(library("a", "b"))
	engine.Play(library("a", "b")[0])
	if err := receiver.Start(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}

	topic := jukebox.TopicCommands(jukebox.BaseTopic, jukebox.Branch1)
	if err := bus.Publish(topic, 1, true, []byte(`{"type":"explode","timestamp":999}`)); err != nil {
		t.Fatal(err)
	}

	if cur, _ := engine.Current(); cur.ID != "a" {
		t.Fatal("invalid command changed playback state")
	}
	if receiver.LastApplied() != 0 {
		t.Fatal("invalid command advanced the timestamp filter")
	}
}

func TestStopEndsReception(t *testing.T) {
	_, sender, receiver, engine := testPair(t)
	engine.SetLibrary(library("a", "b"))
	engine.Play(library("a", "b")[0])
	if err := receiver.Start(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}
	if err := receiver.Stop(); err != nil {
		t.Fatal(err)
	}

	if err := sender.SendNext(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}
	if cur, _ := engine.Current(); cur.ID != "a" {
		t.Fatal("command applied after Stop")
	}
}

func TestRestartDetachesPreviousBranch(t *testing.T) {
	_, sender, receiver, engine := testPair(t)
	engine.SetLibrary(library("a", "b"))
	engine.Play(library("a", "b")[0])

	if err := receiver.Start(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}
	if err := receiver.Start(jukebox.Branch2); err != nil {
		t.Fatal(err)
	}

	// The first branch's subscription is gone, so its commands must not
	// reach the engine anymore.
	if err := sender.SendNext(jukebox.Branch1); err != nil {
		t.Fatal(err)
	}
	if cur, _ := engine.Current(); cur.ID != "a" {
		t.Fatal("command for the previous branch was applied")
	}

	if err := sender.SendNext(jukebox.Branch2); err != nil {
		t.Fatal(err)
	}
	if cur, _ := engine.Current(); cur.ID != "b" {
		t.Fatalf("expected b after next on the new branch, got %s", cur.ID)
	}
}
