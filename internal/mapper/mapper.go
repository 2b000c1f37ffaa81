// Package mapper converts backend wire shapes into the view model. All
// conversions are pure and never fail: absent or malformed optional fields
// degrade to defaults.
package mapper

import (
	"strings"
	"time"

	"github.com/defectscan/defectscan-go/internal/model"
)

// StaticPathSegment is the path under which the backend mounts stored images.
const StaticPathSegment = "/static/"

// labelTable maps raw classifier labels to display labels.
var labelTable = map[string]string{
	"wall_crack":    "Wall Crack",
	"leaking_pipe":  "Leaking Pipe",
	"peeling_paint": "Peeling Paint",
	"broken_tile":   "Broken Tile",
	"mold_growth":   "Mold/Moisture",
	"unknown":       "Unknown Defect",
}

// DisplayLabel resolves the display label with the three-level fallback chain:
// model caption if non-empty, then the static label table, then the raw label.
func DisplayLabel(caption, label string) string {
	if caption != "" {
		return caption
	}
	if mapped, ok := labelTable[label]; ok {
		return mapped
	}
	return label
}

// Mapper resolves wire shapes against a configured API base URL.
type Mapper struct {
	apiBaseURL string
}

// New creates a Mapper. The base URL is used to resolve backend-relative
// image paths.
func New(apiBaseURL string) *Mapper {
	return &Mapper{apiBaseURL: strings.TrimRight(apiBaseURL, "/")}
}

// FromInferenceResult builds a completed view record from an inference
// response, keeping the caller-supplied id and preview image URL.
func (m *Mapper) FromInferenceResult(result *model.InferenceResult, id model.RecordID, imageURL string) model.DefectRecord {
	return model.DefectRecord{
		ID:         id,
		ImageURL:   imageURL,
		Label:      DisplayLabel(result.Caption, result.Label),
		Confidence: result.Confidence,
		Room:       model.RoomGeneral,
		Timestamp:  time.Now(),
		Status:     model.StatusDone,
	}
}

// FromBackendRecord builds a view record from a persisted backend record.
func (m *Mapper) FromBackendRecord(record *model.BackendRecord) model.DefectRecord {
	return model.DefectRecord{
		ID:         model.RemoteID(record.ID),
		ImageURL:   m.ResolveImageURL(record.ImagePath),
		Label:      DisplayLabel(record.Caption, record.Label),
		Confidence: record.Confidence,
		Room:       model.ParseRoom(record.Room),
		Severity:   model.Severity(record.Severity),
		Timestamp:  parseTimestamp(record.Timestamp),
		Status:     model.StatusDone,
	}
}

// FromBackendRecords maps a whole backend result set, keeping order.
func (m *Mapper) FromBackendRecords(records []model.BackendRecord) []model.DefectRecord {
	out := make([]model.DefectRecord, 0, len(records))
	for i := range records {
		out = append(out, m.FromBackendRecord(&records[i]))
	}
	return out
}

// ResolveImageURL turns a stored image path into a resolvable URL. Absolute
// URLs pass through unchanged; relative paths are resolved against the API
// base and the static mount.
func (m *Mapper) ResolveImageURL(imagePath string) string {
	if imagePath == "" {
		return ""
	}
	if strings.HasPrefix(imagePath, "http://") || strings.HasPrefix(imagePath, "https://") {
		return imagePath
	}
	return m.apiBaseURL + StaticPathSegment + strings.TrimLeft(imagePath, "/")
}

// FromBackendProject builds a Project from its wire shape.
func FromBackendProject(p *model.BackendProject) model.Project {
	return model.Project{
		ID:        p.ID,
		Name:      p.Name,
		Address:   p.Address,
		CreatedAt: parseTimestamp(p.CreatedAt),
	}
}

// FromBackendProjects maps a project result set, keeping order.
func FromBackendProjects(projects []model.BackendProject) []model.Project {
	out := make([]model.Project, 0, len(projects))
	for i := range projects {
		out = append(out, FromBackendProject(&projects[i]))
	}
	return out
}

// parseTimestamp accepts the timestamp formats the backend is known to emit.
// Unparseable values degrade to the zero time rather than failing.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
