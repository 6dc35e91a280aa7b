package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnWaitUnregisters(t *testing.T) {
	m := NewManager()
	h, err := m.Spawn(context.Background(), "true", ".", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())

	err = m.Wait(h)
	assert.NoError(t, err)
	assert.Equal(t, 0, m.Count())
}

func TestTerminateEscalatesAndIsIdempotent(t *testing.T) {
	m := NewManager()
	h, err := m.Spawn(context.Background(), "sleep 30", ".", nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = m.Wait(h)
		close(done)
	}()

	m.Terminate(h)

	select {
	case <-done:
	case <-time.After(9 * time.Second):
		t.Fatal("process was not terminated within the escalation window")
	}

	// Idempotent: terminating an already-exited handle must not block or panic.
	m.Terminate(h)
}

func TestCleanupAllEmptiesHandleSet(t *testing.T) {
	m := NewManager()
	for i := 0; i < 3; i++ {
		h, err := m.Spawn(context.Background(), "sleep 30", ".", nil)
		require.NoError(t, err)
		go func(h *Handle) { _ = m.Wait(h) }(h)
	}
	require.Eventually(t, func() bool { return m.Count() == 3 }, time.Second, 10*time.Millisecond)

	m.CleanupAll()
	assert.Equal(t, 0, m.Count())
}
