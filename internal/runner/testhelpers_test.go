package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/unhackeddev/nfury/internal/domain"
	"github.com/unhackeddev/nfury/internal/token"
)

// memRunStore is an in-memory RunStore for runner tests.
type memRunStore struct {
	mu            sync.Mutex
	runs          map[string]*domain.Run
	completePanic string // when set, CompleteRun panics with this message
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[string]*domain.Run)}
}

func (s *memRunStore) CreateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.Token] = &copied
	return nil
}

func (s *memRunStore) CompleteRun(_ context.Context, tok string, agg domain.RunAggregate) error {
	if s.completePanic != "" {
		panic(s.completePanic)
	}
	return s.finish(tok, domain.RunStatusCompleted, nil, &agg)
}

func (s *memRunStore) FailRun(_ context.Context, tok, message string, agg *domain.RunAggregate) error {
	return s.finish(tok, domain.RunStatusFailed, &message, agg)
}

func (s *memRunStore) CancelRun(_ context.Context, tok string, agg domain.RunAggregate) error {
	return s.finish(tok, domain.RunStatusCancelled, nil, &agg)
}

func (s *memRunStore) finish(tok string, status domain.RunStatus, message *string, agg *domain.RunAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[tok]
	if !ok {
		return domain.ErrNotFound
	}
	run.Status = status
	run.ErrorMessage = message
	if agg != nil {
		run.ApplyAggregate(*agg)
	}
	return nil
}

func (s *memRunStore) get(tok string) *domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[tok]
	if !ok {
		return nil
	}
	copied := *run
	return &copied
}

// memSnapshotStore records appended snapshots.
type memSnapshotStore struct {
	mu      sync.Mutex
	samples []domain.MetricSample
}

func (s *memSnapshotStore) AppendSnapshot(_ context.Context, _ string, sample domain.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *memSnapshotStore) all() []domain.MetricSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MetricSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// memEndpointStore serves endpoints by id.
type memEndpointStore struct {
	endpoints map[int64]*domain.Endpoint
}

func (s *memEndpointStore) GetEndpoint(_ context.Context, id int64) (*domain.Endpoint, error) {
	e, ok := s.endpoints[id]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

// memProjectStore serves projects by id.
type memProjectStore struct {
	projects map[int64]*domain.Project
}

func (s *memProjectStore) GetProject(_ context.Context, id int64) (*domain.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

// stubFetcher returns a fixed credential or error.
type stubFetcher struct {
	cred  *token.Credential
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, _ *domain.AuthSpec, _ bool) (*token.Credential, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.cred != nil {
		return f.cred, nil
	}
	return nil, errors.New("stubFetcher: no credential configured")
}
