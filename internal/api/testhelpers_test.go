package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/internal/api"
	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/stream"
	"github.com/unhackeddev/nfury/internal/token"
)

// memoryProjectStore is an in-memory ProjectStore for tests.
type memoryProjectStore struct {
	mu       sync.Mutex
	nextID   int64
	projects map[int64]*domain.Project
}

func newMemoryProjectStore() *memoryProjectStore {
	return &memoryProjectStore{projects: make(map[int64]*domain.Project)}
}

func (m *memoryProjectStore) CreateProject(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	copied := *p
	m.projects[p.ID] = &copied
	return nil
}

func (m *memoryProjectStore) ListProjects(_ context.Context) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Project
	for _, p := range m.projects {
		result = append(result, *p)
	}
	return result, nil
}

func (m *memoryProjectStore) GetProject(_ context.Context, id int64) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (m *memoryProjectStore) UpdateProject(_ context.Context, id int64, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Name = name
	p.Description = description
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryProjectStore) SetProjectAuth(_ context.Context, id int64, spec *domain.AuthSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Auth = spec
	return nil
}

func (m *memoryProjectStore) ClearProjectAuth(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Auth = nil
	return nil
}

func (m *memoryProjectStore) DeleteProject(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

// memoryEndpointStore is an in-memory EndpointStore for tests.
type memoryEndpointStore struct {
	mu        sync.Mutex
	nextID    int64
	endpoints map[int64]*domain.Endpoint
}

func newMemoryEndpointStore() *memoryEndpointStore {
	return &memoryEndpointStore{endpoints: make(map[int64]*domain.Endpoint)}
}

func (m *memoryEndpointStore) CreateEndpoint(_ context.Context, e *domain.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	copied := *e
	m.endpoints[e.ID] = &copied
	return nil
}

func (m *memoryEndpointStore) ListEndpoints(_ context.Context, projectID int64) ([]domain.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Endpoint
	for _, e := range m.endpoints {
		if e.ProjectID == projectID {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *memoryEndpointStore) GetEndpoint(_ context.Context, id int64) (*domain.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[id]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (m *memoryEndpointStore) UpdateEndpoint(_ context.Context, e *domain.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[e.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *e
	m.endpoints[e.ID] = &copied
	return nil
}

func (m *memoryEndpointStore) DeleteEndpoint(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.endpoints[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.endpoints, id)
	return nil
}

// memoryRunStore is an in-memory RunStore for tests. The endpoint and
// project stores back the joined run-context lookup.
type memoryRunStore struct {
	mu        sync.Mutex
	runs      map[int64]*domain.Run
	snapshots map[int64][]domain.Snapshot
	stats     *domain.RunStatistics
	endpoints *memoryEndpointStore
	projects  *memoryProjectStore
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{
		runs:      make(map[int64]*domain.Run),
		snapshots: make(map[int64][]domain.Snapshot),
	}
}

func (m *memoryRunStore) addRun(run domain.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = &run
}

func (m *memoryRunStore) GetRun(_ context.Context, id int64) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (m *memoryRunStore) GetRunByToken(_ context.Context, tok string) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.runs {
		if run.Token == tok {
			copied := *run
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryRunStore) GetRunWithSnapshots(_ context.Context, id int64) (*domain.Run, []domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil, nil
	}
	copied := *run
	return &copied, m.snapshots[id], nil
}

func (m *memoryRunStore) GetRunWithContext(ctx context.Context, id int64) (*domain.Run, *domain.Endpoint, *domain.Project, error) {
	run, err := m.GetRun(ctx, id)
	if err != nil || run == nil || run.EndpointID == nil {
		return run, nil, nil, err
	}
	endpoint, err := m.endpoints.GetEndpoint(ctx, *run.EndpointID)
	if err != nil || endpoint == nil {
		return run, nil, nil, err
	}
	project, err := m.projects.GetProject(ctx, endpoint.ProjectID)
	if err != nil {
		return nil, nil, nil, err
	}
	return run, endpoint, project, nil
}

func (m *memoryRunStore) SearchRuns(_ context.Context, filter domain.RunFilter) ([]domain.Run, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Run
	for _, run := range m.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.EndpointID != nil && (run.EndpointID == nil || *run.EndpointID != *filter.EndpointID) {
			continue
		}
		result = append(result, *run)
	}
	return result, len(result), nil
}

func (m *memoryRunStore) ListRecentRuns(_ context.Context, limit int) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Run
	for _, run := range m.runs {
		result = append(result, *run)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *memoryRunStore) DeleteRun(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.runs, id)
	delete(m.snapshots, id)
	return nil
}

func (m *memoryRunStore) Statistics(_ context.Context, _ domain.StatisticsFilter) (*domain.RunStatistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats != nil {
		return m.stats, nil
	}
	return &domain.RunStatistics{RunsByStatus: map[domain.RunStatus]int64{}}, nil
}

// memoryScheduleStore is an in-memory ScheduleStore for tests.
type memoryScheduleStore struct {
	mu        sync.Mutex
	nextID    int64
	schedules map[int64]*domain.Schedule
}

func newMemoryScheduleStore() *memoryScheduleStore {
	return &memoryScheduleStore{schedules: make(map[int64]*domain.Schedule)}
}

func (m *memoryScheduleStore) CreateSchedule(_ context.Context, sched *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sched.ID = m.nextID
	copied := *sched
	m.schedules[sched.ID] = &copied
	return nil
}

func (m *memoryScheduleStore) ListSchedules(_ context.Context) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Schedule
	for _, s := range m.schedules {
		result = append(result, *s)
	}
	return result, nil
}

func (m *memoryScheduleStore) GetSchedule(_ context.Context, id int64) (*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (m *memoryScheduleStore) UpdateSchedule(_ context.Context, sched *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[sched.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *sched
	m.schedules[sched.ID] = &copied
	return nil
}

func (m *memoryScheduleStore) DeleteSchedule(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

// memoryTransferStore is an in-memory TransferStore for tests.
type memoryTransferStore struct {
	mu       sync.Mutex
	exports  map[int64]*domain.ProjectExport
	imported []*domain.ProjectExport
	importErr error
}

func newMemoryTransferStore() *memoryTransferStore {
	return &memoryTransferStore{exports: make(map[int64]*domain.ProjectExport)}
}

func (m *memoryTransferStore) ExportProject(_ context.Context, projectID int64) (*domain.ProjectExport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exports[projectID], nil
}

func (m *memoryTransferStore) ImportProject(_ context.Context, payload *domain.ProjectExport) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.importErr != nil {
		return nil, m.importErr
	}
	m.imported = append(m.imported, payload)
	imported := payload.Project.Project
	imported.ID = 42
	imported.Name = payload.Project.Name + " (Imported)"
	return &imported, nil
}

// stubLoadRunner is a controllable LoadRunner for handler tests.
type stubLoadRunner struct {
	mu          sync.Mutex
	running     bool
	activeToken string
	startErr    error
	authErr     error
	stopped     int
	started     []int64
	adHoc       []domain.RunRequest
}

func (s *stubLoadRunner) StartAdHocRun(_ context.Context, req domain.RunRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return "", s.startErr
	}
	s.adHoc = append(s.adHoc, req)
	return "tok-adhoc", nil
}

func (s *stubLoadRunner) StartEndpointRun(_ context.Context, endpointID int64, _ *int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return "", s.startErr
	}
	s.started = append(s.started, endpointID)
	return "tok-endpoint", nil
}

func (s *stubLoadRunner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func (s *stubLoadRunner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *stubLoadRunner) ActiveToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeToken
}

func (s *stubLoadRunner) TestAuth(_ context.Context, _ *domain.AuthSpec, _ bool) (*token.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authErr != nil {
		return nil, s.authErr
	}
	return &token.Credential{HeaderName: "Authorization", HeaderValue: "Bearer tok", Token: "tok"}, nil
}

var _ api.LoadRunner = (*stubLoadRunner)(nil)

// stubCronValidator accepts everything except "bogus".
type stubCronValidator struct{}

func (stubCronValidator) Validate(expr string) error {
	if expr == "bogus" {
		return fmt.Errorf("invalid cron expression %q", expr)
	}
	return nil
}

// testDeps bundles the in-memory dependencies behind a test router.
type testDeps struct {
	projects  *memoryProjectStore
	endpoints *memoryEndpointStore
	runs      *memoryRunStore
	schedules *memoryScheduleStore
	transfer  *memoryTransferStore
	load      *stubLoadRunner
	hub       *stream.Hub
}

// newTestServer builds a router backed by in-memory stores.
func newTestServer(t *testing.T) (http.Handler, *testDeps) {
	t.Helper()
	deps := &testDeps{
		projects:  newMemoryProjectStore(),
		endpoints: newMemoryEndpointStore(),
		runs:      newMemoryRunStore(),
		schedules: newMemoryScheduleStore(),
		transfer:  newMemoryTransferStore(),
		load:      &stubLoadRunner{},
		hub:       stream.NewHub(),
	}
	deps.runs.endpoints = deps.endpoints
	deps.runs.projects = deps.projects
	srv := &api.Server{
		Projects:  deps.projects,
		Endpoints: deps.endpoints,
		Runs:      deps.runs,
		Schedules: deps.schedules,
		Transfer:  deps.transfer,
		Load:      deps.load,
		Cron:      stubCronValidator{},
		Hub:       deps.hub,
	}
	return api.NewRouter(srv), deps
}

// doJSON performs a request with an optional JSON body and returns the recorder.
func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeBody unmarshals the recorder body into v.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// seedProject creates a project through the API and returns its ID.
func seedProject(t *testing.T, h http.Handler, name string) int64 {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects", api.CreateProjectRequest{Name: name})
	require.Equal(t, http.StatusCreated, rec.Code)
	var p domain.Project
	decodeBody(t, rec, &p)
	return p.ID
}

// seedEndpoint creates an endpoint under a project and returns its ID.
func seedEndpoint(t *testing.T, h http.Handler, projectID int64, name string) int64 {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/v1/projects/%d/endpoints", projectID),
		api.EndpointRequest{Name: name, URL: "http://localhost:9999/api"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var e domain.Endpoint
	decodeBody(t, rec, &e)
	return e.ID
}
