package jobstore

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore implements Store with an in-memory map guarded by a single
// RWMutex. Suitable for tests and single-process runs; not durable across
// process restarts.
type memoryStore struct {
	mu       sync.RWMutex
	records  map[string]JobRecord
	statuses map[string]CycledListStatus
}

// NewMemoryStore creates a Store backed by an in-process map. Registered by
// default under the name "memory".
func NewMemoryStore() Store {
	return &memoryStore{
		records:  make(map[string]JobRecord),
		statuses: make(map[string]CycledListStatus),
	}
}

func (m *memoryStore) Create(_ context.Context, name string, metadata map[string]any, scheduledAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.Must(uuid.NewV7()).String()
	m.records[id] = JobRecord{
		ID:          id,
		Name:        name,
		Status:      StatusScheduled,
		ScheduledAt: scheduledAt,
		Metadata:    maps.Clone(metadata),
	}
	return id, nil
}

func (m *memoryStore) Transition(_ context.Context, id string, from, to Status, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	if rec.Status != from {
		return &ErrConflict{ID: id, Expected: from, Observed: rec.Status}
	}

	rec.Status = to
	if patch.MachineName != "" {
		rec.MachineName = patch.MachineName
	}
	if patch.StartedAt != nil {
		rec.StartedAt = patch.StartedAt
	}
	if patch.EndedAt != nil {
		rec.EndedAt = patch.EndedAt
	}
	if patch.Progress != nil {
		rec.Progress = *patch.Progress
	}
	if patch.Result != nil {
		rec.Result = patch.Result
	}
	if patch.Error != "" {
		rec.Error = patch.Error
	}
	if patch.ErrorDetail != nil {
		rec.ErrorDetail = patch.ErrorDetail
	}
	if len(patch.Metadata) > 0 {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any, len(patch.Metadata))
		}
		maps.Copy(rec.Metadata, patch.Metadata)
	}

	m.records[id] = rec
	return nil
}

func (m *memoryStore) AppendLog(_ context.Context, id string, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	rec.Logs = append(rec.Logs, entry)
	m.records[id] = rec
	return nil
}

func (m *memoryStore) SetProgress(_ context.Context, id string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	if value < rec.Progress {
		return &ErrProgressRegression{ID: id, Current: rec.Progress, Proposed: value}
	}
	rec.Progress = value
	m.records[id] = rec
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return JobRecord{}, &ErrNotFound{ID: id}
	}
	return rec, nil
}

func (m *memoryStore) FindByName(_ context.Context, name string, limit int) ([]JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []JobRecord
	for _, rec := range m.records {
		if rec.Name == name {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) FindRunning(_ context.Context) ([]JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []JobRecord
	for _, rec := range m.records {
		if rec.Status == StatusRunning {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryStore) FindRecent(_ context.Context, since time.Time) ([]JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []JobRecord
	for _, rec := range m.records {
		if rec.ScheduledAt.After(since) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return out, nil
}

func (m *memoryStore) FindByCycle(_ context.Context, listName string, cycleNumber int) ([]JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []JobRecord
	for _, rec := range m.records {
		name, ok := rec.CycledListName()
		if !ok || name != listName {
			continue
		}
		n, ok := rec.CycleNumber()
		if !ok || n != cycleNumber {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memoryStore) FindLatestFinished(_ context.Context, name string) (JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest JobRecord
	var found bool
	for _, rec := range m.records {
		if rec.Name != name || !rec.Status.Terminal() {
			continue
		}
		if !found || (rec.EndedAt != nil && latest.EndedAt != nil && rec.EndedAt.After(*latest.EndedAt)) {
			latest = rec
			found = true
		}
	}
	if !found {
		return JobRecord{}, &ErrNotFound{ID: name}
	}
	return latest, nil
}

func (m *memoryStore) UpdateMetadata(_ context.Context, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any, len(patch))
	}
	maps.Copy(rec.Metadata, patch)
	m.records[id] = rec
	return nil
}

func (m *memoryStore) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

func (m *memoryStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]JobRecord)
	return nil
}

func (m *memoryStore) SaveListStatus(_ context.Context, s CycledListStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statuses[s.Name] = s
	return nil
}

func (m *memoryStore) GetListStatus(_ context.Context, name string) (CycledListStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.statuses[name]
	if !ok {
		return CycledListStatus{}, &ErrNotFound{ID: name}
	}
	return s, nil
}
