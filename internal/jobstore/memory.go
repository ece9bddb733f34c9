package jobstore

import (
	"context"
	"sort"
	"sync"

	"github.com/prefeitura-rio/app-scim-sync/internal/models"
)

// MemoryStore is an in-memory Store. Units of work are serialised and
// applied atomically on success. Intended for tests and development.
type MemoryStore struct {
	txMu  *sync.Mutex
	mu    sync.Mutex
	jobs  map[string]*models.SyncJob
	opts  options
	inner bool
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		txMu: &sync.Mutex{},
		jobs: make(map[string]*models.SyncJob),
		opts: buildOptions(opts),
	}
}

func (m *MemoryStore) Enqueue(_ context.Context, req EnqueueRequest) (*models.SyncJob, bool, error) {
	if err := validateRequest(req); err != nil {
		return nil, false, err
	}

	defer m.acquire()()

	target := req.Target()
	var existing *models.SyncJob
	for _, j := range m.jobs {
		if j.IsDue(m.opts.ceiling) && j.Target() == target {
			if existing == nil || before(j, existing) {
				existing = j
			}
		}
	}
	if existing != nil {
		return existing.Clone(), false, nil
	}

	job := m.opts.newJob(req)
	m.jobs[job.ID] = job.Clone()
	return job, true, nil
}

func (m *MemoryStore) FetchDue(_ context.Context, limit int) ([]*models.SyncJob, error) {
	defer m.acquire()()
	return m.collect(limit, func(j *models.SyncJob) bool { return j.IsDue(m.opts.ceiling) }), nil
}

func (m *MemoryStore) MarkRetry(_ context.Context, job *models.SyncJob) error {
	defer m.acquire()()

	stored, ok := m.jobs[job.ID]
	if !ok {
		return models.ErrJobNotFound
	}
	stored.RetryCount++
	job.RetryCount = stored.RetryCount
	return nil
}

func (m *MemoryStore) Requeue(_ context.Context, job *models.SyncJob) error {
	defer m.acquire()()

	stored, ok := m.jobs[job.ID]
	if !ok {
		return models.ErrJobNotFound
	}
	stored.RetryCount++
	stored.CreatedAt = m.opts.now()
	job.RetryCount, job.CreatedAt = stored.RetryCount, stored.CreatedAt
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, job *models.SyncJob) error {
	defer m.acquire()()
	delete(m.jobs, job.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.SyncJob, error) {
	defer m.acquire()()

	stored, ok := m.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	return stored.Clone(), nil
}

func (m *MemoryStore) ListAbandoned(_ context.Context, limit int) ([]*models.SyncJob, error) {
	defer m.acquire()()
	return m.collect(limit, func(j *models.SyncJob) bool { return !j.IsDue(m.opts.ceiling) }), nil
}

func (m *MemoryStore) FindAbandoned(_ context.Context, target models.JobTarget) (*models.SyncJob, error) {
	defer m.acquire()()
	found := m.collect(1, func(j *models.SyncJob) bool {
		return !j.IsDue(m.opts.ceiling) && j.Target() == target
	})
	if len(found) == 0 {
		return nil, models.ErrJobNotFound
	}
	return found[0], nil
}

func (m *MemoryStore) Park(_ context.Context, job *models.SyncJob) error {
	defer m.acquire()()

	stored, ok := m.jobs[job.ID]
	if !ok {
		return models.ErrJobNotFound
	}
	stored.RetryCount = m.opts.parkedCount()
	job.RetryCount = stored.RetryCount
	return nil
}

func (m *MemoryStore) Revive(_ context.Context, id string) (*models.SyncJob, error) {
	defer m.acquire()()

	stored, ok := m.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	if stored.IsDue(m.opts.ceiling) {
		return stored.Clone(), nil
	}
	for _, j := range m.jobs {
		if j.ID != id && j.IsDue(m.opts.ceiling) && j.Target() == stored.Target() {
			return nil, ErrDuplicateDue
		}
	}
	stored.RetryCount = 0
	return stored.Clone(), nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	defer m.acquire()()

	var st Stats
	for _, j := range m.jobs {
		if j.IsDue(m.opts.ceiling) {
			st.Due++
		} else {
			st.Abandoned++
		}
	}
	return st, nil
}

// acquire locks the store. Outside a unit of work it also waits for any running one.
func (m *MemoryStore) acquire() func() {
	if !m.inner {
		m.txMu.Lock()
	}
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		if !m.inner {
			m.txMu.Unlock()
		}
	}
}

// InTx runs fn against a private copy of the jobs and publishes it when fn succeeds
func (m *MemoryStore) InTx(ctx context.Context, fn TxFunc) error {
	if m.inner {
		return fn(ctx, m)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	view := &MemoryStore{
		txMu:  m.txMu,
		jobs:  cloneJobs(m.jobs),
		opts:  m.opts,
		inner: true,
	}
	m.mu.Unlock()

	if err := fn(ctx, view); err != nil {
		return err
	}

	m.mu.Lock()
	m.jobs = view.jobs
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of stored rows, due or not
func (m *MemoryStore) Len() int {
	defer m.acquire()()
	return len(m.jobs)
}

// All returns every stored row ordered oldest first
func (m *MemoryStore) All() []*models.SyncJob {
	defer m.acquire()()
	return m.collect(0, func(*models.SyncJob) bool { return true })
}

// collect returns matching jobs, oldest first. Caller holds mu.
func (m *MemoryStore) collect(limit int, match func(*models.SyncJob) bool) []*models.SyncJob {
	out := make([]*models.SyncJob, 0)
	for _, j := range m.jobs {
		if match(j) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return before(out[a], out[b]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func before(a, b *models.SyncJob) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func cloneJobs(src map[string]*models.SyncJob) map[string]*models.SyncJob {
	dst := make(map[string]*models.SyncJob, len(src))
	for id, j := range src {
		dst[id] = j.Clone()
	}
	return dst
}
