package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of go-redis, trading PostgresStore's
// durability for lower-latency reads on the findRunning/ad-hoc-lock hot path.
// Records are JSON blobs under "job:{id}"; a "job:running" set tracks ids
// currently in StatusRunning for O(1)-ish FindRunning without a full scan.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(id string) string { return "job:" + id }

const runningSetKey = "job:running"

// transitionScript performs the compare-and-set atomically: it reads the
// stored status, and only if it matches ARGV[1] does it overwrite the blob
// with ARGV[2] and update the running-set membership per ARGV[3]/ARGV[4].
var transitionScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if raw == false then
	return {err = "not_found"}
end
local current = cjson.decode(raw)
if current.status ~= ARGV[1] then
	return {current.status}
end
redis.call("SET", KEYS[1], ARGV[2])
if ARGV[3] == "1" then
	redis.call("SADD", KEYS[2], ARGV[4])
else
	redis.call("SREM", KEYS[2], ARGV[4])
end
return {}
`)

func (r *RedisStore) Create(ctx context.Context, name string, metadata map[string]any, scheduledAt time.Time) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	rec := JobRecord{
		ID:          id,
		Name:        name,
		Status:      StatusScheduled,
		ScheduledAt: scheduledAt,
		Metadata:    metadata,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("jobstore/redis: marshal record: %w", err)
	}
	if err := r.client.Set(ctx, recordKey(id), payload, 0).Err(); err != nil {
		return "", fmt.Errorf("jobstore/redis: create: %w", err)
	}
	return id, nil
}

func (r *RedisStore) Transition(ctx context.Context, id string, from, to Status, patch Patch) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
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
		for k, v := range patch.Metadata {
			rec.Metadata[k] = v
		}
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobstore/redis: marshal record: %w", err)
	}

	isRunning := "0"
	if to == StatusRunning {
		isRunning = "1"
	}
	res, err := transitionScript.Run(ctx, r.client,
		[]string{recordKey(id), runningSetKey},
		string(from), string(payload), isRunning, id,
	).Result()
	if err != nil {
		return fmt.Errorf("jobstore/redis: transition script: %w", err)
	}
	if arr, ok := res.([]any); ok && len(arr) > 0 {
		observed, _ := arr[0].(string)
		return &ErrConflict{ID: id, Expected: from, Observed: Status(observed)}
	}
	return nil
}

func (r *RedisStore) AppendLog(ctx context.Context, id string, entry LogEntry) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Logs = append(rec.Logs, entry)
	return r.put(ctx, rec)
}

func (r *RedisStore) SetProgress(ctx context.Context, id string, value float64) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if value < rec.Progress {
		return &ErrProgressRegression{ID: id, Current: rec.Progress, Proposed: value}
	}
	rec.Progress = value
	return r.put(ctx, rec)
}

func (r *RedisStore) put(ctx context.Context, rec JobRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jobstore/redis: marshal record: %w", err)
	}
	if err := r.client.Set(ctx, recordKey(rec.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("jobstore/redis: put: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (JobRecord, error) {
	raw, err := r.client.Get(ctx, recordKey(id)).Bytes()
	if err == redis.Nil {
		return JobRecord{}, &ErrNotFound{ID: id}
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("jobstore/redis: get: %w", err)
	}
	var rec JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return JobRecord{}, fmt.Errorf("jobstore/redis: unmarshal record: %w", err)
	}
	return rec, nil
}

func (r *RedisStore) scanAll(ctx context.Context) ([]JobRecord, error) {
	var out []JobRecord
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "job:*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("jobstore/redis: scan: %w", err)
		}
		for _, k := range keys {
			if k == runningSetKey {
				continue
			}
			raw, err := r.client.Get(ctx, k).Bytes()
			if err != nil {
				continue
			}
			var rec JobRecord
			if err := json.Unmarshal(raw, &rec); err == nil {
				out = append(out, rec)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (r *RedisStore) FindByName(ctx context.Context, name string, limit int) ([]JobRecord, error) {
	all, err := r.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []JobRecord
	for _, rec := range all {
		if rec.Name == name {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RedisStore) FindRunning(ctx context.Context) ([]JobRecord, error) {
	ids, err := r.client.SMembers(ctx, runningSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstore/redis: find running: %w", err)
	}
	out := make([]JobRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisStore) FindRecent(ctx context.Context, since time.Time) ([]JobRecord, error) {
	all, err := r.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []JobRecord
	for _, rec := range all {
		if rec.ScheduledAt.After(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *RedisStore) FindByCycle(ctx context.Context, listName string, cycleNumber int) ([]JobRecord, error) {
	all, err := r.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []JobRecord
	for _, rec := range all {
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

func (r *RedisStore) FindLatestFinished(ctx context.Context, name string) (JobRecord, error) {
	all, err := r.scanAll(ctx)
	if err != nil {
		return JobRecord{}, err
	}
	var latest JobRecord
	var found bool
	for _, rec := range all {
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

func (r *RedisStore) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		rec.Metadata[k] = v
	}
	return r.put(ctx, rec)
}

func (r *RedisStore) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, recordKey(id)).Err(); err != nil {
		return fmt.Errorf("jobstore/redis: delete: %w", err)
	}
	r.client.SRem(ctx, runningSetKey, id)
	return nil
}

func (r *RedisStore) DeleteAll(ctx context.Context) error {
	all, err := r.scanAll(ctx)
	if err != nil {
		return err
	}
	for _, rec := range all {
		r.client.Del(ctx, recordKey(rec.ID))
	}
	r.client.Del(ctx, runningSetKey)
	return nil
}

func statusKey(name string) string { return "liststatus:" + name }

func (r *RedisStore) SaveListStatus(ctx context.Context, s CycledListStatus) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("jobstore/redis: marshal status: %w", err)
	}
	if err := r.client.Set(ctx, statusKey(s.Name), payload, 0).Err(); err != nil {
		return fmt.Errorf("jobstore/redis: save status: %w", err)
	}
	return nil
}

func (r *RedisStore) GetListStatus(ctx context.Context, name string) (CycledListStatus, error) {
	raw, err := r.client.Get(ctx, statusKey(name)).Bytes()
	if err == redis.Nil {
		return CycledListStatus{}, &ErrNotFound{ID: name}
	}
	if err != nil {
		return CycledListStatus{}, fmt.Errorf("jobstore/redis: get status: %w", err)
	}
	var s CycledListStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return CycledListStatus{}, fmt.Errorf("jobstore/redis: unmarshal status: %w", err)
	}
	return s, nil
}

// AcquireAdHocLock implements the single-instance-per-name guarantee for
// ad-hoc runs using SETNX with a TTL safety net in case the owner crashes
// without releasing it.
func (r *RedisStore) AcquireAdHocLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, "job:adhoc-lock:"+name, "1", ttl).Result()
}

func (r *RedisStore) ReleaseAdHocLock(ctx context.Context, name string) error {
	return r.client.Del(ctx, "job:adhoc-lock:"+name).Err()
}
