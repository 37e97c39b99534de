package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"streamcode/internal/cache"
	"streamcode/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamCodeRepoStub is a stub for StreamCodeRepository.
type streamCodeRepoStub struct {
	findLiveFn   func(context.Context, time.Time) ([]models.StreamCode, error)
	codeExistsFn func(context.Context, string) (bool, error)
	findByCodeFn func(context.Context, string) (*models.StreamCode, error)
	createFn     func(context.Context, *models.StreamCode) error
	deactivateFn func(context.Context, string) (bool, error)
}

func (s *streamCodeRepoStub) FindLive(ctx context.Context, now time.Time) ([]models.StreamCode, error) {
	return s.findLiveFn(ctx, now)
}
func (s *streamCodeRepoStub) CodeExists(ctx context.Context, code string) (bool, error) {
	return s.codeExistsFn(ctx, code)
}
func (s *streamCodeRepoStub) FindByCode(ctx context.Context, code string) (*models.StreamCode, error) {
	return s.findByCodeFn(ctx, code)
}
func (s *streamCodeRepoStub) Create(ctx context.Context, record *models.StreamCode) error {
	return s.createFn(ctx, record)
}
func (s *streamCodeRepoStub) Deactivate(ctx context.Context, code string) (bool, error) {
	return s.deactivateFn(ctx, code)
}

func newCachedRepo(t *testing.T, inner StreamCodeRepository, now time.Time) (*CachedStreamCodeRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := NewCachedStreamCodeRepository(inner, rdb, 10*time.Minute)
	repo.now = func() time.Time { return now }
	return repo, mr
}

func TestCachedStreamCodeRepository_CachesLiveRecords(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := singleRecord("ABCD", "r1", now.Add(24*time.Hour))

	var loads atomic.Int32
	inner := &streamCodeRepoStub{findByCodeFn: func(context.Context, string) (*models.StreamCode, error) {
		loads.Add(1)
		out := *record
		return &out, nil
	}}
	repo, mr := newCachedRepo(t, inner, now)
	ctx := context.Background()

	first, err := repo.FindByCode(ctx, "ABCD")
	require.NoError(t, err)
	second, err := repo.FindByCode(ctx, "ABCD")
	require.NoError(t, err)

	assert.Equal(t, int32(2), loads.Load(), "one load plus one confirming read, then cache hits")
	assert.Equal(t, first.Descriptor, second.Descriptor)
	assert.Equal(t, 10*time.Minute, mr.TTL(cache.StreamCodeKey("ABCD")))
}

func TestCachedStreamCodeRepository_TTLNeverOutlivesRecord(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := singleRecord("ABCD", "r1", now.Add(90*time.Second))
	inner := &streamCodeRepoStub{findByCodeFn: func(context.Context, string) (*models.StreamCode, error) {
		return record, nil
	}}
	repo, mr := newCachedRepo(t, inner, now)

	_, err := repo.FindByCode(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, mr.TTL(cache.StreamCodeKey("ABCD")))
}

func TestCachedStreamCodeRepository_DoesNotCacheAbsentOrDead(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	expired := singleRecord("DEAD", "r1", now.Add(-time.Second))
	inactive := singleRecord("OFF1", "r2", now.Add(time.Hour))
	inactive.IsActive = false

	inner := &streamCodeRepoStub{findByCodeFn: func(_ context.Context, code string) (*models.StreamCode, error) {
		switch code {
		case "DEAD":
			return expired, nil
		case "OFF1":
			return inactive, nil
		}
		return nil, nil
	}}
	repo, mr := newCachedRepo(t, inner, now)
	ctx := context.Background()

	for _, code := range []string{"DEAD", "OFF1", "NONE"} {
		_, err := repo.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.False(t, mr.Exists(cache.StreamCodeKey(code)), code)
	}

	missing, err := repo.FindByCode(ctx, "NONE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCachedStreamCodeRepository_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("db down")
	inner := &streamCodeRepoStub{findByCodeFn: func(context.Context, string) (*models.StreamCode, error) {
		return nil, boom
	}}
	repo, _ := newCachedRepo(t, inner, time.Now())

	record, err := repo.FindByCode(context.Background(), "ABCD")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, record)
}

func TestCachedStreamCodeRepository_RedisDownFallsBackToStore(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := singleRecord("ABCD", "r1", now.Add(time.Hour))
	inner := &streamCodeRepoStub{findByCodeFn: func(context.Context, string) (*models.StreamCode, error) {
		return record, nil
	}}
	repo, mr := newCachedRepo(t, inner, now)
	mr.Close()

	got, err := repo.FindByCode(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, "ABCD", got.Code)
}

func TestCachedStreamCodeRepository_DeactivateInvalidates(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := singleRecord("ABCD", "r1", now.Add(time.Hour))
	inner := &streamCodeRepoStub{
		findByCodeFn: func(context.Context, string) (*models.StreamCode, error) { return record, nil },
		deactivateFn: func(context.Context, string) (bool, error) { return true, nil },
	}
	repo, mr := newCachedRepo(t, inner, now)
	ctx := context.Background()

	_, err := repo.FindByCode(ctx, "ABCD")
	require.NoError(t, err)
	require.True(t, mr.Exists(cache.StreamCodeKey("ABCD")))

	changed, err := repo.Deactivate(ctx, "ABCD")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, mr.Exists(cache.StreamCodeKey("ABCD")))
}

func TestCachedStreamCodeRepository_CollapsesConcurrentMisses(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := singleRecord("ABCD", "r1", now.Add(time.Hour))

	release := make(chan struct{})
	var loads atomic.Int32
	inner := &streamCodeRepoStub{findByCodeFn: func(context.Context, string) (*models.StreamCode, error) {
		loads.Add(1)
		<-release
		return record, nil
	}}
	repo, _ := newCachedRepo(t, inner, now)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := repo.FindByCode(context.Background(), "ABCD")
			assert.NoError(t, err)
			assert.Equal(t, "ABCD", got.Code)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Less(t, loads.Load(), int32(8), "concurrent misses should share a load")
}

func TestCachedStreamCodeRepository_NilClientPassesThrough(t *testing.T) {
	calls := 0
	inner := &streamCodeRepoStub{findByCodeFn: func(context.Context, string) (*models.StreamCode, error) {
		calls++
		return nil, nil
	}}
	repo := NewCachedStreamCodeRepository(inner, nil, time.Minute)

	_, _ = repo.FindByCode(context.Background(), "ABCD")
	_, _ = repo.FindByCode(context.Background(), "ABCD")
	assert.Equal(t, 2, calls)
}

func TestCachedStreamCodeRepository_CancelledCallerDoesNotFailOthers(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := singleRecord("ABCD", "r1", now.Add(time.Hour))

	started := make(chan struct{}, 4)
	release := make(chan struct{})
	inner := &streamCodeRepoStub{findByCodeFn: func(ctx context.Context, _ string) (*models.StreamCode, error) {
		started <- struct{}{}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return record, nil
	}}
	repo, mr := newCachedRepo(t, inner, now)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := repo.FindByCode(leaderCtx, "ABCD")
		leaderErr <- err
	}()
	<-started

	type result struct {
		record *models.StreamCode
		err    error
	}
	follower := make(chan result, 1)
	go func() {
		got, err := repo.FindByCode(context.Background(), "ABCD")
		follower <- result{got, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	res := <-follower
	require.NoError(t, res.err)
	require.NotNil(t, res.record)
	assert.Equal(t, "ABCD", res.record.Code)
	assert.True(t, mr.Exists(cache.StreamCodeKey("ABCD")))
}

func TestCachedStreamCodeRepository_EvictsRecordDeactivatedDuringLoad(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	// The first read sees the code live; Deactivate commits before the
	// confirming read.
	var reads atomic.Int32
	inner := &streamCodeRepoStub{findByCodeFn: func(context.Context, string) (*models.StreamCode, error) {
		record := singleRecord("ABCD", "r1", now.Add(time.Hour))
		record.IsActive = reads.Add(1) == 1
		return record, nil
	}}
	repo, mr := newCachedRepo(t, inner, now)

	got, err := repo.FindByCode(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Equal(t, "ABCD", got.Code)
	assert.False(t, mr.Exists(cache.StreamCodeKey("ABCD")), "deactivated record must not stay cached")

	got, err = repo.FindByCode(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestCachedStreamCodeRepository_CallersGetIndependentCopies(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	record := &models.StreamCode{
		Code: "MULT",
		Descriptor: models.NewMultiDescriptor(models.MultiStream{
			Members: []models.StreamMember{
				{Platform: models.PlatformIDN, PlaybackRef: "r1"},
				{Platform: models.PlatformIDN, PlaybackRef: "r2"},
			},
			Meta: map[string]any{"group": "jkt48"},
		}),
		IsActive:  true,
		ExpiresAt: now.Add(time.Hour),
	}

	release := make(chan struct{})
	inner := &streamCodeRepoStub{findByCodeFn: func(context.Context, string) (*models.StreamCode, error) {
		<-release
		return record, nil
	}}
	repo, _ := newCachedRepo(t, inner, now)

	results := make(chan *models.StreamCode, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Go(func() {
			got, err := repo.FindByCode(context.Background(), "MULT")
			assert.NoError(t, err)
			results <- got
		})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	a, b := <-results, <-results
	require.NotNil(t, a)
	require.NotNil(t, b)
	a.Descriptor.Multi.Members[0].PlaybackRef = "changed"
	a.Descriptor.Multi.Meta["group"] = "changed"

	assert.Equal(t, "r1", b.Descriptor.Multi.Members[0].PlaybackRef)
	assert.Equal(t, "jkt48", b.Descriptor.Multi.Meta["group"])
	assert.Equal(t, "r1", record.Descriptor.Multi.Members[0].PlaybackRef)
	assert.Equal(t, "jkt48", record.Descriptor.Multi.Meta["group"])
}
