package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPublisher_Publish(t *testing.T) {
	t.Run("Success_LogsEnvelope", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		p := NewLogPublisher("admissions.events", logger)

		err := p.Publish(context.Background(), newTestEvent())
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "outbox event published", entry["msg"])
		assert.Equal(t, "StateChanged.v1", entry["event_type"])
		assert.Equal(t, "admissions.events", entry["channel"])
		assert.Equal(t, "application.state_changed", entry["routing_key"])
		envelope, ok := entry["envelope"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "app-42", envelope["aggregateId"])
	})

	t.Run("Success_NilLogger", func(t *testing.T) {
		p := NewLogPublisher("admissions.events", nil)
		assert.NoError(t, p.Publish(context.Background(), newTestEvent()))
	})
}
