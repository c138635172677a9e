package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/audit"
)

func TestShutdownDeliversEventsFromInFlightRequests(t *testing.T) {
	sink := audit.NewMemorySink()
	publisher, err := audit.NewPublisher(sink)
	require.NoError(t, err)

	signalCtx, signal := context.WithCancel(context.Background())
	publishCtx, stopPublishing := context.WithCancel(context.WithoutCancel(signalCtx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = publisher.Run(publishCtx)
	}()

	signal()
	// A request that finishes while the server drains still emits its event.
	stopServing := func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return publisher.Emit(context.Background(), audit.Event{Action: audit.ActionCheckInRecorded, CandidateID: "c-1"})
	}
	require.NoError(t, shutdownInOrder(time.Second, stopServing, stopPublishing))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not stop after shutdown")
	}
	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "c-1", events[0].CandidateID)
}

func TestShutdownRunsFollowUpsOnError(t *testing.T) {
	ran := false
	err := shutdownInOrder(time.Second,
		func(context.Context) error { return errors.New("deadline") },
		func() { ran = true },
	)
	require.Error(t, err)
	assert.True(t, ran)
}
