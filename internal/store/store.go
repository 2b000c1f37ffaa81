// Package store holds the sole mutable shared state: the project list, the
// active project, the defect records visible under it, and the statistics
// derived from them. Every mutation replaces whole state and recomputes the
// statistics in the same step, so readers never observe a half-updated
// record-list/stats pair.
package store

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/defectscan/defectscan-go/internal/gateway"
	"github.com/defectscan/defectscan-go/internal/logging"
	"github.com/defectscan/defectscan-go/internal/mapper"
	"github.com/defectscan/defectscan-go/internal/model"
)

// Package-level logger specific to the store service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "store.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "store", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize store file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "store")
		closeLogger = func() error { return nil }
	}
}

// DefaultProjectName is created on first run against an empty backend.
const DefaultProjectName = "My Project"

// Store is an explicitly constructed state container. It is safe for
// concurrent use; the analysis session mutates it from multiple goroutines.
type Store struct {
	defects  gateway.DefectAPI
	projects gateway.ProjectAPI
	mapper   *mapper.Mapper

	mu              sync.RWMutex
	projectList     []model.Project
	activeProjectID int64
	records         []model.DefectRecord
	stats           model.ProjectStats
	selectedID      *model.RecordID
	currentView     model.View

	persister *persister
	syncWG    sync.WaitGroup
}

// New constructs a Store wired to its remote collaborators. statePath is the
// directory holding the persisted snapshot; any state found there is restored
// immediately.
func New(defects gateway.DefectAPI, projects gateway.ProjectAPI, m *mapper.Mapper, statePath string) *Store {
	s := &Store{
		defects:     defects,
		projects:    projects,
		mapper:      m,
		stats:       model.ComputeStats(nil),
		currentView: model.ViewHome,
		persister:   newPersister(statePath),
	}
	s.restore()
	return s
}

// Close flushes outstanding best-effort writes and releases the service log.
func (s *Store) Close() {
	s.syncWG.Wait()
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing store logger: %v", err)
		}
	}
}

// WaitSync blocks until all in-flight best-effort remote writes have settled.
// Used by tests and by the CLI before exiting.
func (s *Store) WaitSync() {
	s.syncWG.Wait()
}

// --- read accessors ---

// Records returns a copy of the current record list, newest first.
func (s *Store) Records() []model.DefectRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Stats returns the statistics derived from the current record list.
func (s *Store) Stats() model.ProjectStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Projects returns a copy of the known project list.
func (s *Store) Projects() []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.projectList)
}

// ActiveProjectID returns the id of the active project, 0 if none.
func (s *Store) ActiveProjectID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeProjectID
}

// ActiveProject returns the active project, or nil in the empty state.
func (s *Store) ActiveProject() *model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.projectList {
		if s.projectList[i].ID == s.activeProjectID {
			p := s.projectList[i]
			return &p
		}
	}
	return nil
}

// SelectedID returns the currently selected record id, or nil.
func (s *Store) SelectedID() *model.RecordID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedID == nil {
		return nil
	}
	id := *s.selectedID
	return &id
}

// View returns the current UI view.
func (s *Store) View() model.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentView
}

// --- mutations ---

// AddRecord prepends a record to the list; newest-first ordering is a
// standing invariant.
func (s *Store) AddRecord(record model.DefectRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]model.DefectRecord{record}, s.records...)
	s.recomputeAndPersistLocked()
	logger.Debug("Record added", "id", record.ID.String(), "status", record.Status)
}

// RecordUpdate is a partial update of a record's fields. Nil fields are left
// unchanged.
type RecordUpdate struct {
	Label      *string
	Confidence *float64
	Room       *model.Room
	Severity   *model.Severity
	Status     *model.Status
	ImageURL   *string
	Timestamp  *time.Time
}

// UpdateRecord applies a partial update to the record with the given id. If
// any backend-relevant field (label, room, severity) changed and the record
// has a remote id, a best-effort remote update is fired out of band: its
// failure marks the record sync-failed but is never surfaced and the local
// change is not rolled back.
func (s *Store) UpdateRecord(ctx context.Context, id model.RecordID, update RecordUpdate) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		logger.Warn("Update for unknown record ignored", "id", id.String())
		return
	}

	current := s.records[idx]
	remote := s.remoteUpdateFor(&current, update)

	next := slices.Clone(s.records)
	applyUpdate(&next[idx], update)
	if !remote.IsEmpty() && id.IsRemote() {
		// Cleared again by markSyncResult once the write settles.
		next[idx].SyncFailed = false
	}
	s.records = next
	s.recomputeAndPersistLocked()
	s.mu.Unlock()

	if !remote.IsEmpty() && id.IsRemote() {
		s.syncWG.Add(1)
		go func() {
			defer s.syncWG.Done()
			ok := s.defects.UpdateDefect(ctx, id.Numeric, remote)
			if !ok {
				logger.Error("Best-effort remote update failed, local state may diverge", "id", id.String())
			}
			s.markSyncResult(id, ok)
		}()
	}
}

// DeleteRecord removes a record locally and fires a best-effort remote delete
// for remote ids. The selection pointer is cleared if it pointed at the
// deleted record.
func (s *Store) DeleteRecord(ctx context.Context, id model.RecordID) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		logger.Warn("Delete for unknown record ignored", "id", id.String())
		return
	}

	s.records = slices.Delete(slices.Clone(s.records), idx, idx+1)
	if s.selectedID != nil && *s.selectedID == id {
		s.selectedID = nil
	}
	s.recomputeAndPersistLocked()
	s.mu.Unlock()

	if id.IsRemote() {
		s.syncWG.Add(1)
		go func() {
			defer s.syncWG.Done()
			if !s.defects.DeleteDefect(ctx, id.Numeric) {
				logger.Error("Best-effort remote delete failed, local state may diverge", "id", id.String())
			}
		}()
	}
	logger.Info("Record deleted", "id", id.String())
}

// SetSelected sets the selected record id; nil clears the selection.
func (s *Store) SetSelected(id *model.RecordID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == nil {
		s.selectedID = nil
		return
	}
	v := *id
	s.selectedID = &v
}

// SetView sets the current UI view. No remote effect.
func (s *Store) SetView(view model.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentView = view
}

// Initialize performs the startup sequence: fetch the project list, bootstrap
// a default project when the backend is empty, validate the persisted active
// project id against the fresh list, and switch to the resolved target.
func (s *Store) Initialize(ctx context.Context) {
	fetched := mapper.FromBackendProjects(s.projects.ListProjects(ctx))

	if len(fetched) == 0 {
		logger.Info("No projects on backend, creating default project", "name", DefaultProjectName)
		created := s.projects.CreateProject(ctx, DefaultProjectName, "")
		if created == nil {
			logger.Error("Default project bootstrap failed, starting in empty state")
			s.clearActiveState()
			return
		}
		fetched = []model.Project{mapper.FromBackendProject(created)}
	}

	s.mu.Lock()
	s.projectList = fetched
	target := s.activeProjectID
	if !containsProject(fetched, target) {
		if target != 0 {
			logger.Warn("Persisted active project no longer exists, falling back to first", "persisted_id", target)
		}
		target = fetched[0].ID
	}
	s.mu.Unlock()

	s.SwitchProject(ctx, target)
}

// SwitchProject makes projectID the active scope. The visible record list is
// cleared synchronously before the fetch is issued so a stale project's
// records are never shown under the new project's selector.
func (s *Store) SwitchProject(ctx context.Context, projectID int64) {
	s.mu.Lock()
	s.activeProjectID = projectID
	s.records = nil
	s.selectedID = nil
	s.recomputeAndPersistLocked()
	s.mu.Unlock()

	loaded := s.mapper.FromBackendRecords(s.defects.ListByProject(ctx, projectID))

	s.mu.Lock()
	// The switch may have been superseded while the fetch was in flight.
	if s.activeProjectID == projectID {
		s.records = loaded
		s.recomputeAndPersistLocked()
	}
	s.mu.Unlock()
	logger.Info("Switched project", "project_id", projectID, "records", len(loaded))
}

// AddProject creates a project on the backend and, on success, appends it to
// the local list and switches to it. Returns the created project or nil.
func (s *Store) AddProject(ctx context.Context, name, address string) *model.Project {
	created := s.projects.CreateProject(ctx, name, address)
	if created == nil {
		return nil
	}
	project := mapper.FromBackendProject(created)

	s.mu.Lock()
	s.projectList = append(slices.Clone(s.projectList), project)
	s.mu.Unlock()

	s.SwitchProject(ctx, project.ID)
	return &project
}

// DeleteProject deletes a project remotely and, on success, removes it from
// the local list. If the deleted project was active, the next remaining
// project becomes active, or all active-project state is cleared when none
// remain.
func (s *Store) DeleteProject(ctx context.Context, projectID int64) bool {
	if !s.projects.DeleteProject(ctx, projectID) {
		return false
	}

	s.mu.Lock()
	s.projectList = slices.DeleteFunc(slices.Clone(s.projectList), func(p model.Project) bool {
		return p.ID == projectID
	})
	wasActive := s.activeProjectID == projectID
	var next int64
	if wasActive && len(s.projectList) > 0 {
		next = s.projectList[0].ID
	}
	s.mu.Unlock()

	if wasActive {
		if next != 0 {
			s.SwitchProject(ctx, next)
		} else {
			s.clearActiveState()
		}
	}
	return true
}

// Reconcile replaces locally optimistic records with an authoritative fetch
// of the active project, merging by batch correlation: still-processing
// placeholders that belong to other in-flight batches are preserved ahead of
// the fetched records instead of being dropped by a blind replace.
func (s *Store) Reconcile(ctx context.Context, batchToken string) {
	s.mu.RLock()
	projectID := s.activeProjectID
	s.mu.RUnlock()
	if projectID == 0 {
		logger.Warn("Reconcile skipped, no active project")
		return
	}

	authoritative := s.mapper.FromBackendRecords(s.defects.ListByProject(ctx, projectID))

	s.mu.Lock()
	if s.activeProjectID != projectID {
		s.mu.Unlock()
		logger.Warn("Reconcile discarded, project switched during fetch", "project_id", projectID)
		return
	}
	var preserved []model.DefectRecord
	for i := range s.records {
		r := s.records[i]
		if r.Status == model.StatusProcessing && r.BatchToken != "" && r.BatchToken != batchToken {
			preserved = append(preserved, r)
		}
	}
	s.records = append(preserved, authoritative...)
	s.recomputeAndPersistLocked()
	s.mu.Unlock()

	logger.Info("Reconciled with backend", "project_id", projectID,
		"authoritative", len(authoritative), "preserved_placeholders", len(preserved))
}

// --- internals ---

// clearActiveState drops all project scope: no active project, no records,
// empty statistics.
func (s *Store) clearActiveState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeProjectID = 0
	s.records = nil
	s.selectedID = nil
	s.recomputeAndPersistLocked()
}

// recomputeAndPersistLocked derives stats from the current record list and
// writes the snapshot. Callers must hold the write lock. Stats are always
// recomputed in the same step as the record-list change.
func (s *Store) recomputeAndPersistLocked() {
	s.stats = model.ComputeStats(s.records)
	s.persister.save(snapshot{
		Records:         s.records,
		Stats:           s.stats,
		ActiveProjectID: s.activeProjectID,
	})
}

// restore loads the persisted snapshot, if any.
func (s *Store) restore() {
	snap, ok := s.persister.load()
	if !ok {
		return
	}
	s.records = snap.Records
	s.activeProjectID = snap.ActiveProjectID
	// Derive rather than trust the persisted stats.
	s.stats = model.ComputeStats(s.records)
	logger.Info("Restored persisted state", "records", len(s.records), "active_project_id", s.activeProjectID)
}

func (s *Store) indexOfLocked(id model.RecordID) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

// remoteUpdateFor extracts the backend-relevant fields of an update that
// actually differ from the current record.
func (s *Store) remoteUpdateFor(current *model.DefectRecord, update RecordUpdate) gateway.DefectUpdate {
	var remote gateway.DefectUpdate
	if update.Label != nil && *update.Label != current.Label {
		remote.Caption = update.Label
	}
	if update.Room != nil && *update.Room != current.Room {
		room := string(*update.Room)
		remote.Room = &room
	}
	if update.Severity != nil && *update.Severity != current.Severity {
		severity := string(*update.Severity)
		remote.Severity = &severity
	}
	return remote
}

// markSyncResult records the outcome of a best-effort remote write on the
// affected record, if it still exists.
func (s *Store) markSyncResult(id model.RecordID, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		return
	}
	next := slices.Clone(s.records)
	next[idx].SyncFailed = !ok
	s.records = next
	s.recomputeAndPersistLocked()
}

func applyUpdate(record *model.DefectRecord, update RecordUpdate) {
	if update.Label != nil {
		record.Label = *update.Label
	}
	if update.Confidence != nil {
		record.Confidence = *update.Confidence
	}
	if update.Room != nil {
		record.Room = *update.Room
	}
	if update.Severity != nil {
		record.Severity = *update.Severity
	}
	if update.Status != nil {
		record.Status = *update.Status
	}
	if update.ImageURL != nil {
		record.ImageURL = *update.ImageURL
	}
	if update.Timestamp != nil {
		record.Timestamp = *update.Timestamp
	}
}

func containsProject(projects []model.Project, id int64) bool {
	if id == 0 {
		return false
	}
	for i := range projects {
		if projects[i].ID == id {
			return true
		}
	}
	return false
}
