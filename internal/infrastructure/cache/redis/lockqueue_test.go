package redis

import (
	"context"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

type fakeSortedSets struct {
	sets      map[string]map[string]float64
	ttls      map[string]time.Duration
	zaddErrs  []error
	zaddCalls int
}

func newFakeSortedSets() *fakeSortedSets {
	return &fakeSortedSets{
		sets: make(map[string]map[string]float64),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeSortedSets) ZAddNX(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.zaddCalls++
	if len(f.zaddErrs) > 0 {
		err := f.zaddErrs[0]
		f.zaddErrs = f.zaddErrs[1:]
		if err != nil {
			cmd.SetErr(err)
			return cmd
		}
	}
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]float64)
		f.sets[key] = set
	}
	var added int64
	for _, m := range members {
		id := m.Member.(string)
		if _, exists := set[id]; exists {
			continue
		}
		set[id] = m.Score
		added++
	}
	cmd.SetVal(added)
	return cmd
}

func (f *fakeSortedSets) ZRank(ctx context.Context, key, member string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	set := f.sets[key]
	if _, ok := set[member]; !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return set[ids[i]] < set[ids[j]] })
	for i, id := range ids {
		if id == member {
			cmd.SetVal(int64(i))
		}
	}
	return cmd
}

func (f *fakeSortedSets) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	for _, m := range members {
		delete(f.sets[key], m.(string))
	}
	return cmd
}

func (f *fakeSortedSets) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	f.ttls[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func newTestQueue(rdb *fakeSortedSets) *WriteLockQueue {
	q := newWriteLockQueue(rdb, Options{})
	tick := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return q
}

func TestEnqueueReturnsArrivalPosition(t *testing.T) {
	rdb := newFakeSortedSets()
	q := newTestQueue(rdb)
	ctx := context.Background()

	for i, id := range []string{"u1", "u2", "u3"} {
		pos, err := q.Enqueue(ctx, "campaign-c1", id)
		if err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
		if pos != i+1 {
			t.Fatalf("Enqueue(%s) position = %d, want %d", id, pos, i+1)
		}
	}
	if rdb.ttls["write_lock_queue:campaign-c1"] != defaultQueueTTL {
		t.Fatalf("expected queue ttl to be refreshed")
	}
}

func TestEnqueueIsIdempotentPerUpload(t *testing.T) {
	rdb := newFakeSortedSets()
	q := newTestQueue(rdb)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, "r", "u1")
	_, _ = q.Enqueue(ctx, "r", "u2")
	pos, err := q.Enqueue(ctx, "r", "u1")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if pos != 1 {
		t.Fatalf("repeated enqueue should keep position 1, got %d", pos)
	}
}

func TestReleaseAdvancesQueue(t *testing.T) {
	rdb := newFakeSortedSets()
	q := newTestQueue(rdb)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, "r", "u1")
	_, _ = q.Enqueue(ctx, "r", "u2")
	if err := q.Release(ctx, "r", "u1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	pos, err := q.Enqueue(ctx, "r", "u2")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if pos != 1 {
		t.Fatalf("expected u2 to move to front, got %d", pos)
	}
}

func TestEnqueueValidatesInput(t *testing.T) {
	q := newTestQueue(newFakeSortedSets())
	_, err := q.Enqueue(context.Background(), "", "u1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEnqueueConnectionErrorIsTemporary(t *testing.T) {
	rdb := newFakeSortedSets()
	rdb.zaddErrs = []error{io.EOF}
	q := newTestQueue(rdb)

	_, err := q.Enqueue(context.Background(), "r", "u1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestClassifyRedisError(t *testing.T) {
	if got := classifyRedisError(context.Canceled); got.Retryable || got.RecordFailure {
		t.Fatalf("canceled should be neither retryable nor recorded: %+v", got)
	}
	if got := classifyRedisError(errors.New("WRONGTYPE")); got.Retryable {
		t.Fatalf("server errors are not retryable: %+v", got)
	}
	if got := classifyRedisError(redis.ErrClosed); !got.Retryable {
		t.Fatalf("closed client should be retryable: %+v", got)
	}
}
