package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/pattern"
	"github.com/sells-group/keying-qc/internal/resilience"
	"github.com/sells-group/keying-qc/internal/source"
	"github.com/sells-group/keying-qc/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)

func row(kv ...string) model.Row {
	r := model.Row{}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i]] = model.FieldValue{Text: kv[i+1]}
	}
	return r
}

func keyed(taskID, key, section, keyer string, min int, rows ...model.Row) model.KeyedEntry {
	return model.KeyedEntry{
		TaskID:      taskID,
		TaskDefKey:  key,
		Section:     section,
		Data:        rows,
		Keyer:       keyer,
		CreatedTime: t0.Add(time.Duration(min) * time.Minute),
	}
}

// document builds a two-step document: an entry step and an approval step.
// When same is false the approval corrects the invoice number.
func document(id string, same bool) *model.SourceDocument {
	final := "INV-1"
	if !same {
		final = "INV-2"
	}
	return &model.SourceDocument{
		ID:           id,
		BatchID:      "b-" + id,
		Status:       source.StatusCompleted,
		ImportedDate: t0,
		CompletedAt:  t0.Add(time.Hour),
		KeyedData: []model.KeyedEntry{
			keyed("t1", "entry", "Header", "alice", 0, row("invoice_no", "INV-1", "vendor", "Acme")),
			keyed("t2", "aqc", "Header", "bob", 10, row("invoice_no", final, "vendor", "Acme")),
		},
		FinalData: []model.Row{row("invoice_no", final, "vendor", "Acme")},
	}
}

type staticPatterns struct{}

func (staticPatterns) Get(context.Context) pattern.Patterns {
	return pattern.Defaults()
}

type staticVersions struct {
	stamp model.VersionStamp
	err   error
}

func (s staticVersions) ActiveVersions(context.Context, string) (model.VersionStamp, error) {
	return s.stamp, s.err
}

// mockSource serves documents from memory.
type mockSource struct {
	mu        sync.Mutex
	docs      map[string][]*model.SourceDocument
	streamErr map[string]error
	since     map[string]model.Checkpoint
}

func (m *mockSource) Stream(ctx context.Context, projectID string, since model.Checkpoint, fn source.DocumentFunc) error {
	m.mu.Lock()
	if m.since == nil {
		m.since = make(map[string]model.Checkpoint)
	}
	m.since[projectID] = since
	docs := m.docs[projectID]
	streamErr := m.streamErr[projectID]
	m.mu.Unlock()

	for _, d := range docs {
		if err := fn(ctx, d); err != nil {
			return err
		}
	}
	return streamErr
}

func (m *mockSource) Get(_ context.Context, projectID, docID string) (*model.SourceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs[projectID] {
		if d.ID == docID {
			return d, nil
		}
	}
	return nil, source.ErrNotFound
}

func (m *mockSource) Close(context.Context) error { return nil }

// mockStore records writes and failed-document queue operations.
type mockStore struct {
	mu          sync.Mutex
	projects    []model.Project
	listErr     error
	ensureErr   map[string]error
	writeErr    error
	writes      map[string][]store.DocumentResult
	writeCalls  int
	enqueued    []resilience.DLQEntry
	due         []resilience.DLQEntry
	incremented []string
	removed     []string
}

func (m *mockStore) WriteResults(_ context.Context, projectID string, results []store.DocumentResult) (store.Written, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.writeErr != nil {
		return store.Written{}, m.writeErr
	}
	if m.writes == nil {
		m.writes = make(map[string][]store.DocumentResult)
	}
	m.writes[projectID] = append(m.writes[projectID], results...)

	var w store.Written
	for _, r := range results {
		if r.Mistakes != nil {
			w.Mistakes += len(r.Mistakes.Mistakes)
		}
		if r.Keying != nil {
			w.Effort++
		}
	}
	return w, nil
}

func (m *mockStore) ListProjects(context.Context, bool) ([]model.Project, error) {
	return m.projects, m.listErr
}

func (m *mockStore) EnsureProjectTables(_ context.Context, projectID string) error {
	return m.ensureErr[projectID]
}

func (m *mockStore) EnqueueFailed(_ context.Context, entry resilience.DLQEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, entry)
	return nil
}

func (m *mockStore) DueFailed(_ context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []resilience.DLQEntry
	for _, e := range m.due {
		if e.ProjectID == filter.ProjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) IncrementFailedRetry(_ context.Context, id string, _ time.Time, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incremented = append(m.incremented, id)
	return nil
}

func (m *mockStore) RemoveFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, id)
	return nil
}

func (m *mockStore) written(projectID string) []store.DocumentResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[projectID]
}

// mockCheckpoints keeps checkpoints in memory.
type mockCheckpoints struct {
	mu       sync.Mutex
	cps      map[string]model.Checkpoint
	advances []model.Checkpoint
	getErr   error
}

func (m *mockCheckpoints) Get(_ context.Context, projectID string) (model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return model.Checkpoint{}, m.getErr
	}
	cp := m.cps[projectID]
	cp.ProjectID = projectID
	return cp, nil
}

func (m *mockCheckpoints) Advance(_ context.Context, cp model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cps == nil {
		m.cps = make(map[string]model.Checkpoint)
	}
	m.cps[cp.ProjectID] = cp
	m.advances = append(m.advances, cp)
	return nil
}

// mockRuns records run log transitions.
type mockRuns struct {
	mu        sync.Mutex
	startErr  error
	completed []*store.RunResult
	failed    []string
	failCtx   context.Context
}

func (m *mockRuns) Start(context.Context, string) (int64, error) {
	if m.startErr != nil {
		return 0, m.startErr
	}
	return 7, nil
}

func (m *mockRuns) Complete(_ context.Context, _ int64, result *store.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, result)
	return nil
}

func (m *mockRuns) Fail(ctx context.Context, _ int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, errMsg)
	m.failCtx = ctx
	return nil
}

var errBoom = errors.New("boom")
