package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/auth-gate/internal/events"
)

func TestAuditServiceLogsLifecycleEvents(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, zap.New(core)).RegisterHandlers()

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTokenIssued, Subject: "alice"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventTokenRevoked, Subject: "alice"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{
		Type:    events.EventTokensPurged,
		Payload: events.TokensPurgedPayload{Before: time.Now(), Removed: 3},
	}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventRegistryInconsistency, Subject: "alice"}))

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, "TokenIssued", entries[0].Message)
	require.Equal(t, "TokenRevoked", entries[1].Message)
	require.Equal(t, "TokensPurged", entries[2].Message)
	require.Equal(t, "RegistryInconsistency", entries[3].Message)
	require.Equal(t, zapcore.WarnLevel, entries[3].Level)
	require.Equal(t, "alice", entries[0].ContextMap()["subject"])
	require.NotEmpty(t, entries[0].ContextMap()["event_id"])
}
