package jukebox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// BaseTopic is the default topic prefix for the protocol.
const BaseTopic = "musclecat/v1"

// Branch identifiers. Each branch is one physical playback location with
// its own song collection and status/command documents.
const (
	Branch1 = "branch1"
	Branch2 = "branch2"

	// DefaultBranch is shown to general-mode devices that have not
	// picked a branch yet.
	DefaultBranch = Branch2
)

// Mode is the persisted device configuration.
type Mode string

const (
	ModeUnset   Mode = ""
	ModeGeneral Mode = "general"
	ModeBranch1 Mode = "branch1"
	ModeBranch2 Mode = "branch2"
)

// Fixed reports whether the mode pins the device to a single branch.
func (m Mode) Fixed() bool {
	return m == ModeBranch1 || m == ModeBranch2
}

// Branch returns the branch a fixed mode is pinned to, or "".
func (m Mode) Branch() string {
	switch m {
	case ModeBranch1:
		return Branch1
	case ModeBranch2:
		return Branch2
	}
	return ""
}

// ParseMode validates a persisted mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUnset, ModeGeneral, ModeBranch1, ModeBranch2:
		return Mode(s), nil
	}
	return ModeUnset, fmt.Errorf("unknown device mode %q", s)
}

// RepeatMode controls queue behavior when a song ends.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// Next advances through off -> one -> all -> off.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatOff:
		return RepeatOne
	case RepeatOne:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// ParseRepeatMode validates a repeat mode string.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch RepeatMode(s) {
	case RepeatOff, RepeatOne, RepeatAll:
		return RepeatMode(s), nil
	}
	return RepeatOff, fmt.Errorf("unknown repeat mode %q", s)
}

// Song is the library entry as stored in a branch's song collection.
// Order is assigned at upload time as unix milliseconds and only ever
// mutated by reorder operations that swap two songs' values. IsOld tags
// entries read from the legacy collection and is never written back.
type Song struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album,omitempty"`
	Src       string `json:"src"`
	Order     int64  `json:"order"`
	IsOld     bool   `json:"isOld,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// SortSongs orders songs ascending by Order. The sort is stable so that
// equal order values keep their arrival order.
func SortSongs(songs []Song) {
	sort.SliceStable(songs, func(i, j int) bool {
		return songs[i].Order < songs[j].Order
	})
}

// CommandType enumerates remote playback commands.
type CommandType string

const (
	CommandNext          CommandType = "next"
	CommandPrev          CommandType = "prev"
	CommandToggleShuffle CommandType = "toggleShuffle"
	CommandSetRepeat     CommandType = "setRepeat"
	CommandPlaySong      CommandType = "playSong"
)

// Command is the single retained command document per branch. A new
// command overwrites the previous one; a device that reconnects only
// ever observes the most recent command, never a backlog.
type Command struct {
	Type      CommandType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SetRepeatPayload carries the target mode for setRepeat.
type SetRepeatPayload struct {
	Mode RepeatMode `json:"mode"`
}

// PlaySongPayload is the full song object as known to the sender. The
// receiver plays it directly without a fresh library lookup.
type PlaySongPayload struct {
	Song Song `json:"song"`
}

// ValidateCommand checks required fields before a command is published
// or applied.
func ValidateCommand(cmd Command) error {
	switch cmd.Type {
	case CommandNext, CommandPrev, CommandToggleShuffle:
	case CommandSetRepeat:
		var body SetRepeatPayload
		if err := json.Unmarshal(cmd.Payload, &body); err != nil {
			return errors.New("setRepeat requires a payload")
		}
		if _, err := ParseRepeatMode(string(body.Mode)); err != nil {
			return err
		}
	case CommandPlaySong:
		var body PlaySongPayload
		if err := json.Unmarshal(cmd.Payload, &body); err != nil {
			return errors.New("playSong requires a payload")
		}
		if strings.TrimSpace(body.Song.ID) == "" {
			return errors.New("playSong payload needs a song id")
		}
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
	if cmd.Timestamp <= 0 {
		return errors.New("timestamp must be a positive unix timestamp")
	}
	return nil
}

// NowPlayingSong is the song projection inside a status snapshot.
type NowPlayingSong struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	IsOld  bool   `json:"isOld"`
}

// StatusSnapshot is a branch's retained now-playing document, overwritten
// on every playback-affecting event. Absence of the document means the
// device is not connected, distinct from a published-but-idle state.
type StatusSnapshot struct {
	IsPlaying   bool            `json:"isPlaying"`
	IsShuffle   bool            `json:"isShuffle"`
	RepeatMode  RepeatMode      `json:"repeatMode"`
	CurrentSong *NowPlayingSong `json:"currentSong"`
	UpdatedAt   int64           `json:"updatedAt"`
}

// TopicSong builds the retained document topic for one song.
func TopicSong(topicBase, branch, songID string) string {
	return fmt.Sprintf("%s/library/%s/song/%s", topicBase, branch, songID)
}

// TopicSongs builds the wildcard subscription for a branch's songs.
func TopicSongs(topicBase, branch string) string {
	return fmt.Sprintf("%s/library/%s/song/+", topicBase, branch)
}

// TopicLegacySong builds the retained document topic for a legacy song.
func TopicLegacySong(topicBase, songID string) string {
	return fmt.Sprintf("%s/legacy/song/%s", topicBase, songID)
}

// TopicLegacySongs builds the wildcard subscription for the legacy collection.
func TopicLegacySongs(topicBase string) string {
	return fmt.Sprintf("%s/legacy/song/+", topicBase)
}

// TopicNowPlaying builds a branch's status document topic.
func TopicNowPlaying(topicBase, branch string) string {
	return fmt.Sprintf("%s/library/%s/status/nowplaying", topicBase, branch)
}

// TopicCommands builds a branch's command document topic.
func TopicCommands(topicBase, branch string) string {
	return fmt.Sprintf("%s/library/%s/status/commands", topicBase, branch)
}

// SongIDFromTopic extracts the song id from a song document topic.
func SongIDFromTopic(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return ""
	}
	return topic[idx+1:]
}

// IsLegacyTopic reports whether a song document topic belongs to the
// legacy collection.
func IsLegacyTopic(topicBase, topic string) bool {
	return strings.HasPrefix(topic, topicBase+"/legacy/")
}

// StatusLabel derives the human-readable device status line. Precedence
// is fixed: missing mode beats everything, then a fixed-branch label,
// then admin, then a signed-in listener, then signed-out.
func StatusLabel(mode Mode, isAdmin, isAuthenticated bool) string {
	switch {
	case mode == ModeUnset:
		return "device setup required"
	case mode == ModeBranch1:
		return "branch 1 player"
	case mode == ModeBranch2:
		return "branch 2 player"
	case isAdmin:
		return "admin mode"
	case isAuthenticated:
		return "listening mode"
	default:
		return "signed out"
	}
}
