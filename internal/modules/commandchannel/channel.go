// Package commandchannel carries remote playback commands between the
// admin role and a branch device. Each branch has exactly one retained
// command document; sending overwrites it, so the channel is last-write-
// wins and a reconnecting device observes at most the newest command.
package commandchannel

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/cutiefunny/musclecat/internal/modules/playqueue"
	"github.com/cutiefunny/musclecat/internal/ports"
	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

// Sender publishes commands to a branch's command document.
type Sender struct {
	log       *zap.Logger
	bus       ports.Bus
	topicBase string
	clock     ports.Clock
}

// NewSender creates a command sender.
func NewSender(log *zap.Logger, bus ports.Bus, topicBase string, clock ports.Clock) *Sender {
	return &Sender{log: log, bus: bus, topicBase: topicBase, clock: clock}
}

// Send validates and publishes a command, stamping it with the current
// time. The previous command document is overwritten.
func (s *Sender) Send(branch string, cmdType jukebox.CommandType, payload any) error {
	cmd := jukebox.Command{
		Type:      cmdType,
		Timestamp: s.clock.NowUnixMilli(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		cmd.Payload = raw
	}
	if err := jukebox.ValidateCommand(cmd); err != nil {
		return err
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(jukebox.TopicCommands(s.topicBase, branch), 1, true, data); err != nil {
		return err
	}
	s.log.Info("command sent",
		zap.String("branch", branch),
		zap.String("type", string(cmdType)),
		zap.Int64("ts", cmd.Timestamp))
	return nil
}

// SendNext asks the branch device to advance to the next song.
func (s *Sender) SendNext(branch string) error {
	return s.Send(branch, jukebox.CommandNext, nil)
}

// SendPrev asks the branch device to step back one song.
func (s *Sender) SendPrev(branch string) error {
	return s.Send(branch, jukebox.CommandPrev, nil)
}

// SendToggleShuffle flips shuffle on the branch device.
func (s *Sender) SendToggleShuffle(branch string) error {
	return s.Send(branch, jukebox.CommandToggleShuffle, nil)
}

// SendSetRepeat sets the branch device's repeat mode.
func (s *Sender) SendSetRepeat(branch string, mode jukebox.RepeatMode) error {
	return s.Send(branch, jukebox.CommandSetRepeat, jukebox.SetRepeatPayload{Mode: mode})
}

// SendPlaySong plays one song directly. The full song object travels in
// the payload so the receiver does not need a library lookup.
func (s *Sender) SendPlaySong(branch string, song jukebox.Song) error {
	return s.Send(branch, jukebox.CommandPlaySong, jukebox.PlaySongPayload{Song: song})
}

// Receiver applies incoming commands to the playback engine. The
// timestamp filter is the only duplicate suppression the channel has:
// a command applies iff its timestamp is strictly newer than the last
// applied one. The retained command present at subscribe time therefore
// applies once, which is how commands issued while the device was
// offline still take effect.
type Receiver struct {
	log       *zap.Logger
	bus       ports.Bus
	topicBase string
	engine    *playqueue.Engine

	// onCommand fires after every applied command, even ones that leave
	// the logical state unchanged, so downstream drivers can react.
	onCommand func(cmd jukebox.Command)

	mu          sync.Mutex
	branch      string
	filter      string
	lastApplied int64
}

// NewReceiver creates a receiver driving the given engine.
func NewReceiver(log *zap.Logger, bus ports.Bus, topicBase string, engine *playqueue.Engine) *Receiver {
	return &Receiver{log: log, bus: bus, topicBase: topicBase, engine: engine}
}

// SetOnCommand installs the applied-command listener.
func (r *Receiver) SetOnCommand(fn func(cmd jukebox.Command)) {
	r.mu.Lock()
	r.onCommand = fn
	r.mu.Unlock()
}

// Start subscribes to the branch's command document. Any previous
// subscription is detached first, so a repointed device never keeps
// applying the old branch's commands.
func (r *Receiver) Start(branch string) error {
	if err := r.Stop(); err != nil {
		return err
	}

	filter := jukebox.TopicCommands(r.topicBase, branch)
	r.mu.Lock()
	r.branch = branch
	r.filter = filter
	r.lastApplied = 0
	r.mu.Unlock()

	return r.bus.Subscribe(filter, 1, r.handle)
}

// Stop unsubscribes. No command callback runs after Stop returns.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	filter := r.filter
	r.filter = ""
	r.branch = ""
	r.mu.Unlock()

	if filter == "" {
		return nil
	}
	return r.bus.Unsubscribe(filter)
}

// LastApplied returns the timestamp of the last applied command.
func (r *Receiver) LastApplied() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastApplied
}

func (r *Receiver) handle(topic string, payload []byte) {
	if len(payload) == 0 {
		return
	}

	var cmd jukebox.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		r.log.Warn("bad command document", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := jukebox.ValidateCommand(cmd); err != nil {
		r.log.Warn("invalid command", zap.String("topic", topic), zap.Error(err))
		return
	}

	r.mu.Lock()
	if cmd.Timestamp <= r.lastApplied {
		r.mu.Unlock()
		r.log.Debug("stale command dropped",
			zap.String("type", string(cmd.Type)),
			zap.Int64("ts", cmd.Timestamp))
		return
	}
	r.lastApplied = cmd.Timestamp
	onCommand := r.onCommand
	r.mu.Unlock()

	r.apply(cmd)
	if onCommand != nil {
		onCommand(cmd)
	}
}

func (r *Receiver) apply(cmd jukebox.Command) {
	switch cmd.Type {
	case jukebox.CommandNext:
		r.engine.PlayNext()
	case jukebox.CommandPrev:
		r.engine.PlayPrevious()
	case jukebox.CommandToggleShuffle:
		r.engine.ToggleShuffle()
	case jukebox.CommandSetRepeat:
		var body jukebox.SetRepeatPayload
		if err := json.Unmarshal(cmd.Payload, &body); err != nil {
			r.log.Warn("bad setRepeat payload", zap.Error(err))
			return
		}
		r.engine.SetRepeat(body.Mode)
	case jukebox.CommandPlaySong:
		var body jukebox.PlaySongPayload
		if err := json.Unmarshal(cmd.Payload, &body); err != nil {
			r.log.Warn("bad playSong payload", zap.Error(err))
			return
		}
		// Direct play, no queue rebuild: the payload is the full song
		// as the sender knew it.
		r.engine.LoadAndPlay(body.Song)
	}
	r.log.Info("command applied",
		zap.String("type", string(cmd.Type)),
		zap.Int64("ts", cmd.Timestamp))
}
