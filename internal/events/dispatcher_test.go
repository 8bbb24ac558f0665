package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcherPublish(t *testing.T) {
	d := NewInMemoryDispatcher()

	var got []Event
	d.Subscribe(EventTokenIssued, func(_ context.Context, e Event) error {
		got = append(got, e)
		return errors.New("first handler failed")
	})
	d.Subscribe(EventTokenIssued, func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTokenIssued, Subject: "alice"})
	require.EqualError(t, err, "first handler failed")
	require.Len(t, got, 2)
	require.NotEmpty(t, got[0].ID)
	require.False(t, got[0].Timestamp.IsZero())

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTokenRevoked}))
	require.Len(t, got, 2)
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher()

	reached := false
	d.Subscribe(EventTokensPurged, func(context.Context, Event) error {
		panic("boom")
	})
	d.Subscribe(EventTokensPurged, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTokensPurged})
	require.ErrorContains(t, err, "panicked: boom")
	require.True(t, reached)
}
