package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func blockingConsumer(name string, started *int32) consumer {
	return namedConsumer{name: name, run: func(ctx context.Context) error {
		atomic.AddInt32(started, 1)
		<-ctx.Done()
		return ctx.Err()
	}}
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Logger: testLogger(), Consumers: []consumer{nil}})
	require.Error(t, err)
}

func TestRunStopsAllConsumersOnCancel(t *testing.T) {
	var started int32
	var flushed int32
	svc, err := NewService(ServiceParams{
		Logger:    testLogger(),
		Consumers: []consumer{blockingConsumer("analytics", &started), blockingConsumer("staff-alerts", &started)},
		OnStop:    func(context.Context) { atomic.AddInt32(&flushed, 1) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&flushed))
}

func TestRunCancelsSiblingsWhenOneFails(t *testing.T) {
	var started int32
	failing := namedConsumer{name: "audit", run: func(context.Context) error {
		return errors.New("subscription deleted")
	}}
	svc, err := NewService(ServiceParams{
		Logger:    testLogger(),
		Consumers: []consumer{blockingConsumer("analytics", &started), failing},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")
}

func TestRunFailsFastOnDependency(t *testing.T) {
	var started int32
	svc, err := NewService(ServiceParams{
		Logger:       testLogger(),
		Consumers:    []consumer{blockingConsumer("analytics", &started)},
		Dependencies: []dependency{{name: "bigquery", ping: func(context.Context) error { return errors.New("denied") }}},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bigquery ping failed")
	assert.Zero(t, atomic.LoadInt32(&started))
}
