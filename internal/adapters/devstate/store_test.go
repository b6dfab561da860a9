package devstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cutiefunny/musclecat/pkg/jukebox"
)

func TestLoadMissingFileYieldsZeroState(t *testing.T) {
	store := NewStoreAt(filepath.Join(t.TempDir(), "device.json"))

	state, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if state.Mode != jukebox.ModeUnset {
		t.Fatalf("expected unset mode, got %q", state.Mode)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStoreAt(filepath.Join(t.TempDir(), "nested", "device.json"))

	if err := store.Save(State{Mode: jukebox.ModeBranch1}); err != nil {
		t.Fatal(err)
	}
	state, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if state.Mode != jukebox.ModeBranch1 {
		t.Fatalf("mode lost: %q", state.Mode)
	}
}

func TestClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	store := NewStoreAt(path)

	if err := store.Save(State{Mode: jukebox.ModeGeneral}); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("state file still present after clear")
	}

	// Clearing again is fine.
	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := NewStoreAt(path)

	if _, err := store.Load(); err == nil {
		t.Fatal("corrupt state must surface an error")
	}
}
