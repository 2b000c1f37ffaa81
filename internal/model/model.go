// Package model defines the view model and backend wire shapes shared by the
// gateway, mapper, store and session packages.
package model

import "time"

// Status is the three-state lifecycle of a defect record. A record never
// transitions back to StatusProcessing once it has left it.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Room is the fixed set of rooms a defect can be assigned to.
type Room string

const (
	RoomGeneral    Room = "General"
	RoomBedroom1   Room = "Bedroom 1"
	RoomBedroom2   Room = "Bedroom 2"
	RoomBathroom   Room = "Bathroom"
	RoomKitchen    Room = "Kitchen"
	RoomLivingRoom Room = "Living Room"
	RoomExterior   Room = "Exterior"
)

var knownRooms = map[Room]struct{}{
	RoomGeneral:    {},
	RoomBedroom1:   {},
	RoomBedroom2:   {},
	RoomBathroom:   {},
	RoomKitchen:    {},
	RoomLivingRoom: {},
	RoomExterior:   {},
}

// ParseRoom maps a backend room string to a known Room, defaulting to
// RoomGeneral for absent or unrecognized values.
func ParseRoom(s string) Room {
	if _, ok := knownRooms[Room(s)]; ok {
		return Room(s)
	}
	return RoomGeneral
}

// Severity is the ordered four-level severity scale. The zero value means the
// severity has not been assessed.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordering of the severity, 0 for unset or unknown values.
func (s Severity) Rank() int {
	return severityRank[s]
}

// View identifies the active UI view. Pure presentation state, persisted only
// for session continuity.
type View string

const (
	ViewHome    View = "home"
	ViewHistory View = "history"
	ViewReport  View = "report"
)

// DefectRecord is the in-memory view model of a single analyzed photo.
type DefectRecord struct {
	ID         RecordID  `json:"id"`
	ImageURL   string    `json:"imageUrl"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Room       Room      `json:"room"`
	Severity   Severity  `json:"severity,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Status     Status    `json:"status"`

	// BatchToken correlates a placeholder with the upload batch that created
	// it. Empty for records loaded from the backend.
	BatchToken string `json:"batchToken,omitempty"`

	// SyncFailed marks a record whose last best-effort remote write failed,
	// i.e. local state may be ahead of the backend until the next reload.
	SyncFailed bool `json:"syncFailed,omitempty"`
}

// Project is an inspection project. The id is always server-assigned.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProjectStats are derived from the current record list and never maintained
// independently of it.
type ProjectStats struct {
	TotalDefects     int          `json:"totalDefects"`
	ProcessedCount   int          `json:"processedCount"`
	RoomDistribution map[Room]int `json:"roomDistribution"`
}

// ComputeStats derives statistics from a record list. Room distribution counts
// only records that have completed analysis.
func ComputeStats(records []DefectRecord) ProjectStats {
	stats := ProjectStats{RoomDistribution: make(map[Room]int)}
	for i := range records {
		stats.TotalDefects++
		if records[i].Status == StatusDone {
			stats.ProcessedCount++
			stats.RoomDistribution[records[i].Room]++
		}
	}
	return stats
}

// InferenceResult is the wire shape returned by the inference endpoint.
type InferenceResult struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Caption    string    `json:"caption,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// BackendRecord is the wire shape of a persisted defect record.
type BackendRecord struct {
	ID         int64   `json:"id"`
	Filename   string  `json:"filename"`
	Caption    string  `json:"caption"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
	ImagePath  string  `json:"image_path"`
	Room       string  `json:"room,omitempty"`
	Severity   string  `json:"severity,omitempty"`
	ProjectID  int64   `json:"project_id,omitempty"`
}

// BackendProject is the wire shape of a project.
type BackendProject struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at"`
}
