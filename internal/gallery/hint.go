package gallery

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Hint remembers whether this user has ever had photos, so a cold start can
// decide between a loading skeleton and an immediate empty state without
// flashing the wrong one.
type Hint struct {
	path  string
	value bool
}

type hintFile struct {
	HasEverHadPhotos bool `json:"has_ever_had_photos"`
}

// LoadHint reads the persisted flag from stateDir, defaulting to false.
func LoadHint(stateDir string) *Hint {
	h := &Hint{path: filepath.Join(stateDir, "gallery_hint.json")}
	data, err := os.ReadFile(h.path)
	if err != nil {
		return h
	}
	var parsed hintFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return h
	}
	h.value = parsed.HasEverHadPhotos
	return h
}

func (h *Hint) HasEverHadPhotos() bool {
	return h.value
}

// MarkHasPhotos persists the flag. Failures are ignored; the hint is a
// heuristic, not state the app depends on.
func (h *Hint) MarkHasPhotos() {
	if h.value {
		return
	}
	h.value = true
	data, err := json.Marshal(hintFile{HasEverHadPhotos: true})
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(h.path), 0o755)
	_ = os.WriteFile(h.path, data, 0o644)
}
