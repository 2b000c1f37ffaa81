package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/defectscan/defectscan-go/internal/model"
)

// stateKey names the persisted snapshot. It is schema-versioned: changing the
// snapshot shape requires bumping the key, not migrating in place.
const stateKey = "defectscan-state-v2"

// snapshot is the persisted subset of store state. The project list is never
// persisted; it is refetched on every initialization.
type snapshot struct {
	Records         []model.DefectRecord `json:"records"`
	Stats           model.ProjectStats   `json:"stats"`
	ActiveProjectID int64                `json:"activeProjectId"`
}

// persister writes snapshots to a versioned file in the state directory.
// Persistence is best effort: failures are logged, never surfaced.
type persister struct {
	path string
}

func newPersister(dir string) *persister {
	if dir == "" {
		dir = "."
	}
	return &persister{path: filepath.Join(dir, stateKey+".json")}
}

// save writes the snapshot atomically via a temp file rename.
func (p *persister) save(snap snapshot) {
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		logger.Error("Failed to encode state snapshot", "path", p.path, "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		logger.Error("Failed to create state directory", "path", p.path, "error", err)
		return
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Error("Failed to write state snapshot", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, p.path); err != nil {
		logger.Error("Failed to move state snapshot into place", "path", p.path, "error", err)
		return
	}
	logger.Debug("State snapshot saved", "path", p.path, "records", len(snap.Records))
}

// load reads the snapshot if one exists. A missing file is a normal first
// start; a corrupt file is logged and treated as absent.
func (p *persister) load() (snapshot, bool) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("Failed to read state snapshot", "path", p.path, "error", err)
		}
		return snapshot{}, false
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Error("Failed to decode state snapshot, ignoring it", "path", p.path, "error", err)
		return snapshot{}, false
	}
	return snap, true
}
