package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/defectscan/defectscan-go/internal/errors"
	"github.com/defectscan/defectscan-go/internal/gateway"
	"github.com/defectscan/defectscan-go/internal/mapper"
	"github.com/defectscan/defectscan-go/internal/model"
	"github.com/defectscan/defectscan-go/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

// fakeDefects serves a fixed backend view and absorbs writes.
type fakeDefects struct {
	mu      sync.Mutex
	backend []model.BackendRecord
}

func (f *fakeDefects) ListByProject(context.Context, int64) []model.BackendRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.BackendRecord(nil), f.backend...)
}

func (f *fakeDefects) UpdateDefect(context.Context, int64, gateway.DefectUpdate) bool { return true }
func (f *fakeDefects) DeleteDefect(context.Context, int64) bool { return true }

type fakeProjects struct{}

func (fakeProjects) ListProjects(context.Context) []model.BackendProject {
	return []model.BackendProject{{ID: 1, Name: "My Project", CreatedAt: "2026-08-01T12:00:00"}}
}
func (fakeProjects) CreateProject(context.Context, string, string) *model.BackendProject { return nil }
func (fakeProjects) DeleteProject(context.Context, int64) bool { return true }

// fakeProvider fails for configured filenames and records how many store
// records were visible when each call started.
type fakeProvider struct {
	mu             sync.Mutex
	store          *store.Store
	failFilenames  map[string]bool
	visibleAtStart []int
}

func (p *fakeProvider) Analyze(_ context.Context, image gateway.CapturedImage, _ int64) (*model.InferenceResult, error) {
	p.mu.Lock()
	p.visibleAtStart = append(p.visibleAtStart, len(p.store.Records()))
	fail := p.failFilenames[image.Filename]
	p.mu.Unlock()

	if fail {
		return nil, errors.Newf("inference failed: model not loaded").
			Category(errors.CategoryInference).
			Component("gateway").
			Build()
	}
	return &model.InferenceResult{Label: "wall_crack", Confidence: 0.95}, nil
}

func newTestOrchestrator(t *testing.T, defects *fakeDefects, failFilenames map[string]bool) (*Orchestrator, *store.Store, *fakeProvider) {
	t.Helper()
	m := mapper.New("http://backend.test")
	s := store.New(defects, fakeProjects{}, m, t.TempDir())
	t.Cleanup(s.WaitSync)
	s.Initialize(context.Background())

	provider := &fakeProvider{store: s, failFilenames: failFilenames}
	return New(s, provider, m), s, provider
}

func images(names ...string) []gateway.CapturedImage {
	out := make([]gateway.CapturedImage, 0, len(names))
	for _, name := range names {
		out = append(out, gateway.CapturedImage{Filename: name, Data: []byte("jpeg"), SourceURL: "/tmp/" + name})
	}
	return out
}

func TestAnalyze_EmptyBatch(t *testing.T) {
	o, _, provider := newTestOrchestrator(t, &fakeDefects{}, nil)

	result, err := o.Analyze(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, result.Analyzed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, provider.visibleAtStart)
}

func TestAnalyze_NoActiveProjectAbortsWithoutPartialWork(t *testing.T) {
	m := mapper.New("http://backend.test")
	s := store.New(&fakeDefects{}, fakeProjects{}, m, t.TempDir())
	t.Cleanup(s.WaitSync)
	// No Initialize call, so no project is active.

	o := New(s, &fakeProvider{store: s}, m)
	result, err := o.Analyze(context.Background(), images("crack.jpg"))

	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Nil(t, result)
	assert.Empty(t, s.Records())
}

func TestAnalyze_AllPlaceholdersPushedBeforeInference(t *testing.T) {
	o, _, provider := newTestOrchestrator(t, &fakeDefects{}, nil)

	_, err := o.Analyze(context.Background(), images("a.jpg", "b.jpg", "c.jpg"))
	require.NoError(t, err)

	// Every inference call started only after the whole batch was visible.
	require.Len(t, provider.visibleAtStart, 3)
	for _, visible := range provider.visibleAtStart {
		assert.GreaterOrEqual(t, visible, 3)
	}
}

func TestAnalyze_FailureIsolation(t *testing.T) {
	defects := &fakeDefects{backend: []model.BackendRecord{
		{ID: 31, Label: "wall_crack", Timestamp: "2026-08-30T10:00:02"},
		{ID: 30, Label: "wall_crack", Timestamp: "2026-08-30T10:00:01"},
	}}
	o, s, _ := newTestOrchestrator(t, defects, map[string]bool{"b.jpg": true})

	result, err := o.Analyze(context.Background(), images("a.jpg", "b.jpg", "c.jpg"))

	require.NoError(t, err)
	assert.Equal(t, 2, result.Analyzed)
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, result.BatchToken)

	// Reconciliation replaced the batch with the backend's authoritative view.
	records := s.Records()
	require.Len(t, records, 2)
	assert.Equal(t, model.RemoteID(31), records[0].ID)
	assert.Equal(t, model.RemoteID(30), records[1].ID)
}

func TestAnalyze_ReconciliationRunsWhenEveryImageFails(t *testing.T) {
	defects := &fakeDefects{backend: []model.BackendRecord{{ID: 40, Label: "mold_growth"}}}
	o, s, _ := newTestOrchestrator(t, defects, map[string]bool{"a.jpg": true, "b.jpg": true})

	result, err := o.Analyze(context.Background(), images("a.jpg", "b.jpg"))

	require.NoError(t, err)
	assert.Zero(t, result.Analyzed)
	assert.Equal(t, 2, result.Failed)

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, model.RemoteID(40), records[0].ID)
}
