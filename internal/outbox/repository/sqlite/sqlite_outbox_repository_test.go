package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/admissions/internal/database"
	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/outbox/domain"
	"github.com/allisson/admissions/internal/testutil"
)

func newEvent(priority domain.Priority, createdAt time.Time) *domain.OutboxEvent {
	event := domain.NewOutboxEvent("Application", uuid.NewString(), "StateChanged", map[string]any{
		"toState": "PENDING",
	})
	event.Channel = "admissions.events"
	event.RoutingKey = "application.state_changed"
	event.Priority = priority
	event.CreatedAt = createdAt
	event.ScheduledAt = createdAt
	return event
}

// leaseByID leases id and returns the lease token.
func leaseByID(t *testing.T, repo *SQLiteOutboxEventRepository, id uuid.UUID, now time.Time) string {
	t.Helper()
	leased, err := repo.LeaseByID(context.Background(), id, now)
	require.NoError(t, err)
	require.NotNil(t, leased.LeaseToken)
	return *leased.LeaseToken
}

func setupRepo(t *testing.T) (*SQLiteOutboxEventRepository, func()) {
	t.Helper()
	db := testutil.SetupSQLiteDB(t)
	return NewSQLiteOutboxEventRepository(db), func() { testutil.TeardownDB(t, db) }
}

func TestNewSQLiteOutboxEventRepository(t *testing.T) {
	repo, teardown := setupRepo(t)
	defer teardown()

	assert.NotNil(t, repo)
	assert.IsType(t, &SQLiteOutboxEventRepository{}, repo)
}

func TestSQLiteOutboxEventRepository_Append(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Success_RoundTrip", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		event := newEvent(domain.PriorityHigh, now)
		correlationID := "req-1"
		event.CorrelationID = &correlationID
		event.Headers = map[string]string{"tenant": "school-1"}

		stored, err := repo.Append(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, event.ID, stored.ID)

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, event.AggregateType, got.AggregateType)
		assert.Equal(t, event.AggregateID, got.AggregateID)
		assert.Equal(t, "StateChanged", got.EventType)
		assert.Equal(t, "v1", got.EventVersion)
		assert.Equal(t, "PENDING", got.Payload["toState"])
		assert.Equal(t, "school-1", got.Headers["tenant"])
		assert.Equal(t, "admissions.events", got.Channel)
		assert.Equal(t, "application.state_changed", got.RoutingKey)
		assert.Equal(t, domain.PriorityHigh, got.Priority)
		assert.Equal(t, domain.DefaultMaxRetries, got.MaxRetries)
		require.NotNil(t, got.CorrelationID)
		assert.Equal(t, "req-1", *got.CorrelationID)
		assert.Nil(t, got.CausationID)
		assert.False(t, got.Processed)
		assert.False(t, got.Processing)
		assert.Equal(t, now, got.CreatedAt)
		assert.Nil(t, got.ProcessedAt)
		assert.Equal(t, domain.EventStatePending, got.State())
	})

	t.Run("Success_DuplicateIdempotencyKeyReturnsExisting", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		key := "transition:123"
		first := newEvent(domain.PriorityNormal, now)
		first.IdempotencyKey = &key
		second := newEvent(domain.PriorityNormal, now)
		second.IdempotencyKey = &key

		_, err := repo.Append(ctx, first)
		require.NoError(t, err)

		stored, err := repo.Append(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, first.ID, stored.ID)

		events, err := repo.List(ctx, "", 0, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("Success_DuplicateInsideTransaction", func(t *testing.T) {
		db := testutil.SetupSQLiteDB(t)
		defer testutil.TeardownDB(t, db)
		repo := NewSQLiteOutboxEventRepository(db)
		txManager := database.NewTxManager(db)

		key := "dup"
		first := newEvent(domain.PriorityNormal, now)
		first.IdempotencyKey = &key
		_, err := repo.Append(ctx, first)
		require.NoError(t, err)

		err = txManager.WithTx(ctx, func(ctx context.Context) error {
			second := newEvent(domain.PriorityNormal, now)
			second.IdempotencyKey = &key
			stored, err := repo.Append(ctx, second)
			if err != nil {
				return err
			}
			assert.Equal(t, first.ID, stored.ID)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Success_AppendScheduled", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		notBefore := now.Add(time.Hour)
		event := newEvent(domain.PriorityNormal, now)
		_, err := repo.AppendScheduled(ctx, event, notBefore)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, notBefore, got.ScheduledAt)

		leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
		require.NoError(t, err)
		assert.Empty(t, leased)

		leased, err = repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, notBefore)
		require.NoError(t, err)
		assert.Len(t, leased, 1)
	})
}

func TestSQLiteOutboxEventRepository_LeaseBatch(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Success_OrderedByPriorityThenCreatedAt", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		normalOld := newEvent(domain.PriorityNormal, now.Add(-3*time.Minute))
		normalNew := newEvent(domain.PriorityNormal, now.Add(-1*time.Minute))
		critical := newEvent(domain.PriorityCritical, now.Add(-30*time.Second))
		low := newEvent(domain.PriorityLow, now.Add(-5*time.Minute))
		high := newEvent(domain.PriorityHigh, now.Add(-2*time.Minute))

		for _, e := range []*domain.OutboxEvent{normalNew, low, critical, normalOld, high} {
			_, err := repo.Append(ctx, e)
			require.NoError(t, err)
		}

		leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
		require.NoError(t, err)
		require.Len(t, leased, 5)

		gotIDs := []uuid.UUID{leased[0].ID, leased[1].ID, leased[2].ID, leased[3].ID, leased[4].ID}
		assert.Equal(t, []uuid.UUID{critical.ID, high.ID, normalOld.ID, normalNew.ID, low.ID}, gotIDs)

		for _, e := range leased {
			assert.True(t, e.Processing)
			require.NotNil(t, e.LeasedAt)
			assert.Equal(t, now, *e.LeasedAt)
			assert.NotNil(t, e.LeaseToken)
		}
	})

	t.Run("Success_LimitRespectsOrder", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		low := newEvent(domain.PriorityLow, now.Add(-time.Hour))
		high := newEvent(domain.PriorityHigh, now)
		for _, e := range []*domain.OutboxEvent{low, high} {
			_, err := repo.Append(ctx, e)
			require.NoError(t, err)
		}

		leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 1, now)
		require.NoError(t, err)
		require.Len(t, leased, 1)
		assert.Equal(t, high.ID, leased[0].ID)
	})

	t.Run("Success_LeasedRowsAreNotLeasedAgain", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		_, err := repo.Append(ctx, newEvent(domain.PriorityNormal, now))
		require.NoError(t, err)

		first, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
		require.NoError(t, err)
		assert.Len(t, first, 1)

		second, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
		require.NoError(t, err)
		assert.Empty(t, second)
	})

	t.Run("Success_FilterByPriorityAndRetries", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		critical := newEvent(domain.PriorityCritical, now)
		fresh := newEvent(domain.PriorityNormal, now)
		retried := newEvent(domain.PriorityNormal, now)
		for _, e := range []*domain.OutboxEvent{critical, fresh, retried} {
			_, err := repo.Append(ctx, e)
			require.NoError(t, err)
		}

		leased, err := repo.LeaseByID(ctx, retried.ID, now)
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(
			ctx, leased.ID, leased.LeaseTokenValue(), domain.DeliveryFailure{Kind: "transport"}, now, now,
		))

		got, err := repo.LeaseBatch(ctx, domain.LeaseFilter{
			Priorities: domain.NonCriticalPriorities(),
			Retries:    domain.RetriesFresh,
		}, 10, now)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, fresh.ID, got[0].ID)

		got, err = repo.LeaseBatch(ctx, domain.LeaseFilter{Retries: domain.RetriesOnly}, 10, now)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, retried.ID, got[0].ID)

		got, err = repo.LeaseBatch(ctx, domain.LeaseFilter{
			Priorities: []domain.Priority{domain.PriorityCritical},
		}, 10, now)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, critical.ID, got[0].ID)
	})

	t.Run("Success_NonPositiveLimit", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		_, err := repo.Append(ctx, newEvent(domain.PriorityNormal, now))
		require.NoError(t, err)

		leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 0, now)
		require.NoError(t, err)
		assert.NotNil(t, leased)
		assert.Empty(t, leased)
	})

	t.Run("Success_ConcurrentLeasesAreDisjoint", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		const total = 40
		for i := 0; i < total; i++ {
			_, err := repo.Append(ctx, newEvent(domain.PriorityNormal, now.Add(time.Duration(-i)*time.Second)))
			require.NoError(t, err)
		}

		var mu sync.Mutex
		seen := make(map[uuid.UUID]int)
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 3, now)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					for _, e := range leased {
						seen[e.ID]++
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, len(seen), total)
		for id, count := range seen {
			assert.Equal(t, 1, count, "event %s leased more than once", id)
		}
	})
}

func TestSQLiteOutboxEventRepository_LeaseByID(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	repo, teardown := setupRepo(t)
	defer teardown()

	scheduled := newEvent(domain.PriorityNormal, now)
	_, err := repo.AppendScheduled(ctx, scheduled, now.Add(24*time.Hour))
	require.NoError(t, err)

	t.Run("Success_IgnoresSchedule", func(t *testing.T) {
		leased, err := repo.LeaseByID(ctx, scheduled.ID, now)
		require.NoError(t, err)
		assert.True(t, leased.Processing)
	})

	t.Run("Error_AlreadyLeased", func(t *testing.T) {
		_, err := repo.LeaseByID(ctx, scheduled.ID, now)
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})

	t.Run("Error_Processed", func(t *testing.T) {
		current, err := repo.GetByID(ctx, scheduled.ID)
		require.NoError(t, err)
		require.NoError(t, repo.MarkProcessed(ctx, scheduled.ID, current.LeaseTokenValue(), now))
		_, err = repo.LeaseByID(ctx, scheduled.ID, now)
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})

	t.Run("Error_Missing", func(t *testing.T) {
		_, err := repo.LeaseByID(ctx, uuid.Must(uuid.NewV7()), now)
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})
}

func TestSQLiteOutboxEventRepository_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Success_RepeatedByHolder", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		event := newEvent(domain.PriorityNormal, now)
		_, err := repo.Append(ctx, event)
		require.NoError(t, err)

		leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 1, now)
		require.NoError(t, err)
		require.Len(t, leased, 1)
		token := leased[0].LeaseTokenValue()

		require.NoError(t, repo.MarkProcessed(ctx, event.ID, token, now))
		require.NoError(t, repo.MarkProcessed(ctx, event.ID, token, now.Add(time.Minute)))

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.True(t, got.Processed)
		assert.False(t, got.Processing)
		assert.Nil(t, got.LeasedAt)
		assert.Equal(t, token, got.LeaseTokenValue())
		require.NotNil(t, got.ProcessedAt)
		assert.Equal(t, now, *got.ProcessedAt)
		assert.Equal(t, domain.EventStateProcessed, got.State())
	})

	t.Run("Error_WrongToken", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		event := newEvent(domain.PriorityNormal, now)
		_, err := repo.Append(ctx, event)
		require.NoError(t, err)
		leaseByID(t, repo, event.ID, now)

		err = repo.MarkProcessed(ctx, event.ID, "someone-else", now)
		assert.ErrorIs(t, err, domain.ErrLeaseLost)
		assert.ErrorIs(t, err, apperrors.ErrConflict)

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.False(t, got.Processed)
		assert.True(t, got.Processing)
	})

	t.Run("Error_NeverLeased", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		event := newEvent(domain.PriorityNormal, now)
		_, err := repo.Append(ctx, event)
		require.NoError(t, err)

		assert.ErrorIs(t, repo.MarkProcessed(ctx, event.ID, "", now), domain.ErrLeaseLost)
	})
}

// A worker whose lease was reclaimed and handed to another worker must not be able to
// record an outcome over the new holder.
func TestSQLiteOutboxEventRepository_StaleHolderAfterReclaim(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	maxLeaseAge := 5 * time.Minute

	setup := func(t *testing.T) (*SQLiteOutboxEventRepository, *domain.OutboxEvent, string, string, func()) {
		repo, teardown := setupRepo(t)

		event := newEvent(domain.PriorityNormal, now.Add(-time.Hour))
		_, err := repo.Append(ctx, event)
		require.NoError(t, err)

		staleToken := leaseByID(t, repo, event.ID, now.Add(-10*time.Minute))

		reclaimed, err := repo.ReclaimStaleLeases(ctx, maxLeaseAge, now)
		require.NoError(t, err)
		require.Equal(t, int64(1), reclaimed)

		leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
		require.NoError(t, err)
		require.Len(t, leased, 1)
		currentToken := leased[0].LeaseTokenValue()
		require.NotEqual(t, staleToken, currentToken)

		return repo, event, staleToken, currentToken, teardown
	}

	t.Run("StaleMarkFailed", func(t *testing.T) {
		repo, event, staleToken, currentToken, teardown := setup(t)
		defer teardown()

		err := repo.MarkFailed(ctx, event.ID, staleToken, domain.DeliveryFailure{Kind: "timeout"}, now, now)
		assert.ErrorIs(t, err, domain.ErrLeaseLost)

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.True(t, got.Processing)
		assert.Equal(t, 0, got.RetryCount)
		assert.Equal(t, currentToken, got.LeaseTokenValue())

		// The row stays with the current holder, so no third worker can lease it.
		again, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
		require.NoError(t, err)
		assert.Empty(t, again)

		require.NoError(t, repo.MarkProcessed(ctx, event.ID, currentToken, now))
	})

	t.Run("StaleMarkProcessed", func(t *testing.T) {
		repo, event, staleToken, currentToken, teardown := setup(t)
		defer teardown()

		assert.ErrorIs(t, repo.MarkProcessed(ctx, event.ID, staleToken, now), domain.ErrLeaseLost)

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.False(t, got.Processed)
		assert.Equal(t, currentToken, got.LeaseTokenValue())
	})

	t.Run("StaleRelease", func(t *testing.T) {
		repo, event, staleToken, currentToken, teardown := setup(t)
		defer teardown()

		assert.ErrorIs(t, repo.ReleaseLease(ctx, event.ID, staleToken), domain.ErrLeaseLost)
		require.NoError(t, repo.ReleaseLease(ctx, event.ID, currentToken))

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.False(t, got.Processing)
		assert.Nil(t, got.LeaseToken)
		assert.Equal(t, 0, got.RetryCount)
	})
}

func TestSQLiteOutboxEventRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Success_RecordsFailure", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		event := newEvent(domain.PriorityNormal, now)
		_, err := repo.Append(ctx, event)
		require.NoError(t, err)
		leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 1, now)
		require.NoError(t, err)
		require.Len(t, leased, 1)

		next := now.Add(30 * time.Second)
		failure := domain.DeliveryFailure{Kind: domain.ErrorKindTimeout, Message: "deadline exceeded"}
		require.NoError(t, repo.MarkFailed(ctx, event.ID, leased[0].LeaseTokenValue(), failure, now, next))

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.RetryCount)
		assert.False(t, got.Processing)
		assert.Nil(t, got.LeasedAt)
		assert.Nil(t, got.LeaseToken)
		assert.Equal(t, next, got.ScheduledAt)
		require.NotNil(t, got.LastRetryAt)
		assert.Equal(t, now, *got.LastRetryAt)
		require.NotNil(t, got.LastErrorKind)
		assert.Equal(t, "timeout", *got.LastErrorKind)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "deadline exceeded", *got.LastError)
	})

	t.Run("Success_RetryExhaustionIsTerminal", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		event := newEvent(domain.PriorityNormal, now)
		event.MaxRetries = 2
		_, err := repo.Append(ctx, event)
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
			require.NoError(t, err)
			require.Len(t, leased, 1)
			require.NoError(t, repo.MarkFailed(
				ctx, event.ID, leased[0].LeaseTokenValue(), domain.DeliveryFailure{Kind: "transport"}, now, now,
			))
		}

		leased, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, leased)

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.True(t, got.IsTerminallyFailed())
		assert.Equal(t, domain.EventStateFailed, got.State())
	})

	t.Run("Error_AfterProcessed", func(t *testing.T) {
		repo, teardown := setupRepo(t)
		defer teardown()

		event := newEvent(domain.PriorityNormal, now)
		_, err := repo.Append(ctx, event)
		require.NoError(t, err)
		token := leaseByID(t, repo, event.ID, now)
		require.NoError(t, repo.MarkProcessed(ctx, event.ID, token, now))
		err = repo.MarkFailed(ctx, event.ID, token, domain.DeliveryFailure{Kind: "transport"}, now, now)
		assert.ErrorIs(t, err, domain.ErrLeaseLost)

		got, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.RetryCount)
		assert.True(t, got.Processed)
	})
}

func TestSQLiteOutboxEventRepository_ReclaimStaleLeases(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	repo, teardown := setupRepo(t)
	defer teardown()

	stale := newEvent(domain.PriorityHigh, now.Add(-time.Hour))
	fresh := newEvent(domain.PriorityNormal, now.Add(-time.Hour))
	for _, e := range []*domain.OutboxEvent{stale, fresh} {
		_, err := repo.Append(ctx, e)
		require.NoError(t, err)
	}

	_, err := repo.LeaseByID(ctx, stale.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = repo.LeaseByID(ctx, fresh.ID, now.Add(-time.Minute))
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Leased)
	assert.Equal(t, int64(1), stats.StaleLeases)

	reclaimed, err := repo.ReclaimStaleLeases(ctx, 5*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	first, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, stale.ID, first[0].ID)

	second, err := repo.LeaseBatch(ctx, domain.LeaseFilter{}, 10, now)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestSQLiteOutboxEventRepository_PurgeOlderThan(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	setup := func(t *testing.T) (*SQLiteOutboxEventRepository, func()) {
		repo, teardown := setupRepo(t)

		oldProcessed := newEvent(domain.PriorityNormal, now.Add(-30*24*time.Hour))
		newProcessed := newEvent(domain.PriorityNormal, now)
		oldFailed := newEvent(domain.PriorityNormal, now.Add(-30*24*time.Hour))
		oldFailed.MaxRetries = 1
		pending := newEvent(domain.PriorityNormal, now.Add(-30*24*time.Hour))

		for _, e := range []*domain.OutboxEvent{oldProcessed, newProcessed, oldFailed, pending} {
			_, err := repo.Append(ctx, e)
			require.NoError(t, err)
		}
		require.NoError(t, repo.MarkProcessed(
			ctx, oldProcessed.ID, leaseByID(t, repo, oldProcessed.ID, now), now.Add(-10*24*time.Hour),
		))
		require.NoError(t, repo.MarkProcessed(ctx, newProcessed.ID, leaseByID(t, repo, newProcessed.ID, now), now))
		require.NoError(t, repo.MarkFailed(
			ctx, oldFailed.ID, leaseByID(t, repo, oldFailed.ID, now), domain.DeliveryFailure{Kind: "transport"},
			now.Add(-10*24*time.Hour), now.Add(-10*24*time.Hour),
		))
		return repo, teardown
	}

	t.Run("Success_PurgesBothKinds", func(t *testing.T) {
		repo, teardown := setup(t)
		defer teardown()

		result, err := repo.PurgeOlderThan(ctx, 7*24*time.Hour, 7*24*time.Hour, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Processed)
		assert.Equal(t, int64(1), result.Failed)

		events, err := repo.List(ctx, "", 0, 10)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("Success_ZeroRetentionKeepsForever", func(t *testing.T) {
		repo, teardown := setup(t)
		defer teardown()

		result, err := repo.PurgeOlderThan(ctx, 7*24*time.Hour, 0, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Processed)
		assert.Equal(t, int64(0), result.Failed)

		failed, err := repo.List(ctx, domain.EventStateFailed, 0, 10)
		require.NoError(t, err)
		assert.Len(t, failed, 1)
	})
}

func TestSQLiteOutboxEventRepository_ListAndStats(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	repo, teardown := setupRepo(t)
	defer teardown()

	pending := newEvent(domain.PriorityNormal, now.Add(-4*time.Minute))
	critical := newEvent(domain.PriorityCritical, now.Add(-3*time.Minute))
	leased := newEvent(domain.PriorityNormal, now.Add(-2*time.Minute))
	processed := newEvent(domain.PriorityNormal, now.Add(-time.Minute))
	failed := newEvent(domain.PriorityNormal, now)
	failed.MaxRetries = 1

	for _, e := range []*domain.OutboxEvent{pending, critical, leased, processed, failed} {
		_, err := repo.Append(ctx, e)
		require.NoError(t, err)
	}
	_, err := repo.LeaseByID(ctx, leased.ID, now)
	require.NoError(t, err)
	require.NoError(t, repo.MarkProcessed(ctx, processed.ID, leaseByID(t, repo, processed.ID, now), now))
	require.NoError(t, repo.MarkFailed(
		ctx, failed.ID, leaseByID(t, repo, failed.ID, now), domain.DeliveryFailure{Kind: "transport"}, now, now,
	))

	tests := []struct {
		state domain.EventState
		want  []uuid.UUID
	}{
		{state: domain.EventStatePending, want: []uuid.UUID{critical.ID, pending.ID}},
		{state: domain.EventStateLeased, want: []uuid.UUID{leased.ID}},
		{state: domain.EventStateProcessed, want: []uuid.UUID{processed.ID}},
		{state: domain.EventStateFailed, want: []uuid.UUID{failed.ID}},
		{state: "", want: []uuid.UUID{failed.ID, processed.ID, leased.ID, critical.ID, pending.ID}},
	}

	for _, tt := range tests {
		t.Run("List_"+string(tt.state), func(t *testing.T) {
			events, err := repo.List(ctx, tt.state, 0, 10)
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(events))
			for _, e := range events {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	t.Run("List_Pagination", func(t *testing.T) {
		events, err := repo.List(ctx, "", 1, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, processed.ID, events[0].ID)
		assert.Equal(t, leased.ID, events[1].ID)
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := repo.Stats(ctx, now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, domain.OutboxStats{
			Pending:          2,
			Leased:           1,
			TerminallyFailed: 1,
			StaleLeases:      0,
			CriticalPending:  1,
		}, stats)
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})
}

func TestSQLiteOutboxEventRepository_StatsEmpty(t *testing.T) {
	repo, teardown := setupRepo(t)
	defer teardown()

	stats, err := repo.Stats(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStats{}, stats)
}
