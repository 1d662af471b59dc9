package mysql

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/admissions/internal/outbox/domain"
	"github.com/allisson/admissions/internal/testutil"
)

func TestMySQLOutboxEventRepository_CaseSensitiveKeys(t *testing.T) {
	db := testutil.SetupMySQLDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewMySQLOutboxEventRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	newKeyedEvent := func(key string) *domain.OutboxEvent {
		event := domain.NewOutboxEvent("Application", uuid.NewString(), "StateChanged", map[string]any{})
		event.Channel = "admissions.events"
		event.CreatedAt = now
		event.ScheduledAt = now
		event.IdempotencyKey = &key
		return event
	}

	t.Run("IdempotencyKeysDifferingOnlyInCase", func(t *testing.T) {
		upper, err := repo.Append(ctx, newKeyedEvent("Transition-ABC"))
		require.NoError(t, err)
		lower, err := repo.Append(ctx, newKeyedEvent("transition-abc"))
		require.NoError(t, err)

		assert.NotEqual(t, upper.ID, lower.ID)
	})

	t.Run("LeaseTokenDifferingOnlyInCase", func(t *testing.T) {
		event := newKeyedEvent("lease-case")
		_, err := repo.Append(ctx, event)
		require.NoError(t, err)

		leased, err := repo.LeaseByID(ctx, event.ID, now)
		require.NoError(t, err)
		token := leased.LeaseTokenValue()
		require.NotEqual(t, strings.ToUpper(token), token)

		assert.ErrorIs(t, repo.MarkProcessed(ctx, event.ID, strings.ToUpper(token), now), domain.ErrLeaseLost)
		require.NoError(t, repo.MarkProcessed(ctx, event.ID, token, now))
	})
}
