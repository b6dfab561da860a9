package jukebox

import (
	"encoding/json"
	"testing"
)

func TestSortSongsIsStable(t *testing.T) {
	songs := []Song{
		{ID: "c", Order: 30},
		{ID: "a1", Order: 10},
		{ID: "a2", Order: 10},
		{ID: "b", Order: 20},
	}
	SortSongs(songs)

	want := []string{"a1", "a2", "b", "c"}
	for i, id := range want {
		if songs[i].ID != id {
			t.Fatalf("position %d: want %s got %s", i, id, songs[i].ID)
		}
	}
}

func TestRepeatModeCycle(t *testing.T) {
	mode := RepeatOff
	want := []RepeatMode{RepeatOne, RepeatAll, RepeatOff, RepeatOne}
	for _, expected := range want {
		mode = mode.Next()
		if mode != expected {
			t.Fatalf("want %s got %s", expected, mode)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"", "general", "branch1", "branch2"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("%q should parse: %v", valid, err)
		}
	}
	if _, err := ParseMode("branch3"); err == nil {
		t.Error("branch3 should be rejected")
	}
}

func TestModeBranchPinning(t *testing.T) {
	if !ModeBranch1.Fixed() || !ModeBranch2.Fixed() {
		t.Fatal("branch modes must be fixed")
	}
	if ModeGeneral.Fixed() || ModeUnset.Fixed() {
		t.Fatal("general and unset modes must not be fixed")
	}
	if ModeBranch1.Branch() != Branch1 || ModeBranch2.Branch() != Branch2 {
		t.Fatal("branch mapping broken")
	}
	if ModeGeneral.Branch() != "" {
		t.Fatal("general mode must not pin a branch")
	}
}

func TestValidateCommand(t *testing.T) {
	repeatPayload, _ := json.Marshal(SetRepeatPayload{Mode: RepeatAll})
	songPayload, _ := json.Marshal(PlaySongPayload{Song: Song{ID: "x"}})
	emptySong, _ := json.Marshal(PlaySongPayload{})

	cases := []struct {
		name string
		cmd  Command
		ok   bool
	}{
		{"next", Command{Type: CommandNext, Timestamp: 1}, true},
		{"prev", Command{Type: CommandPrev, Timestamp: 1}, true},
		{"shuffle", Command{Type: CommandToggleShuffle, Timestamp: 1}, true},
		{"setRepeat", Command{Type: CommandSetRepeat, Payload: repeatPayload, Timestamp: 1}, true},
		{"setRepeat no payload", Command{Type: CommandSetRepeat, Timestamp: 1}, false},
		{"playSong", Command{Type: CommandPlaySong, Payload: songPayload, Timestamp: 1}, true},
		{"playSong no id", Command{Type: CommandPlaySong, Payload: emptySong, Timestamp: 1}, false},
		{"unknown type", Command{Type: "explode", Timestamp: 1}, false},
		{"zero timestamp", Command{Type: CommandNext}, false},
	}
	for _, tc := range cases {
		err := ValidateCommand(tc.cmd)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestTopicRoundTrips(t *testing.T) {
	topic := TopicSong(BaseTopic, Branch1, "abc-123")
	if got := SongIDFromTopic(topic); got != "abc-123" {
		t.Fatalf("song id lost: %q", got)
	}
	if IsLegacyTopic(BaseTopic, topic) {
		t.Fatal("branch topic flagged as legacy")
	}

	legacy := TopicLegacySong(BaseTopic, "old-9")
	if got := SongIDFromTopic(legacy); got != "old-9" {
		t.Fatalf("legacy song id lost: %q", got)
	}
	if !IsLegacyTopic(BaseTopic, legacy) {
		t.Fatal("legacy topic not recognized")
	}
}

func TestStatusLabelPrecedence(t *testing.T) {
	cases := []struct {
		mode           Mode
		admin, authed  bool
		want           string
	}{
		{ModeUnset, true, true, "device setup required"},
		{ModeBranch1, true, true, "branch 1 player"},
		{ModeBranch2, false, false, "branch 2 player"},
		{ModeGeneral, true, true, "admin mode"},
		{ModeGeneral, false, true, "listening mode"},
		{ModeGeneral, false, false, "signed out"},
	}
	for _, tc := range cases {
		if got := StatusLabel(tc.mode, tc.admin, tc.authed); got != tc.want {
			t.Errorf("StatusLabel(%q,%v,%v) = %q, want %q", tc.mode, tc.admin, tc.authed, got, tc.want)
		}
	}
}
