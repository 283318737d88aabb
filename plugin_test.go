package fins

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlugin struct {
	name        string
	initErr     error
	initialized bool
}

func (p *testPlugin) Name() string { return p.name }

func (p *testPlugin) Initialize(*Client) error {
	p.initialized = true
	return p.initErr
}

func TestPluginRegistration(t *testing.T) {
	client, err := NewClient(NewConfig("203.0.113.1"))
	require.NoError(t, err)
	defer client.Close()

	p := &testPlugin{name: "test"}
	require.NoError(t, client.Use(p))
	assert.True(t, p.initialized)
}

func TestPluginRegistrationErrors(t *testing.T) {
	client, err := NewClient(NewConfig("203.0.113.1"))
	require.NoError(t, err)
	defer client.Close()

	assert.Error(t, client.Use(nil), "nil plugin")
	assert.Error(t, client.Use(&testPlugin{name: ""}), "empty name")

	require.NoError(t, client.Use(&testPlugin{name: "dup"}))
	assert.Error(t, client.Use(&testPlugin{name: "dup"}), "duplicate name")

	// A failed Initialize releases the name for a later attempt.
	failing := &testPlugin{name: "flaky", initErr: errors.New("boom")}
	assert.Error(t, client.Use(failing))
	require.NoError(t, client.Use(&testPlugin{name: "flaky"}))
}

func TestConnectionWatchdog(t *testing.T) {
	_, cfg := startSimulator(t)

	client, err := NewClient(cfg)
	require.NoError(t, err)

	watchdog := NewConnectionWatchdog(4)
	require.NoError(t, client.Use(watchdog))

	require.NoError(t, client.Connect(context.Background()))

	select {
	case evt := <-watchdog.Events():
		assert.Equal(t, ConnectionEventConnected, evt.Type)
		assert.True(t, evt.Connected)
	case <-time.After(time.Second):
		t.Fatal("no connected event")
	}
	assert.True(t, watchdog.Stats().Connected)

	require.NoError(t, client.Close())

	select {
	case evt := <-watchdog.Events():
		assert.Equal(t, ConnectionEventDisconnected, evt.Type)
		assert.False(t, evt.Connected)
	case <-time.After(time.Second):
		t.Fatal("no disconnected event")
	}

	stats := watchdog.Stats()
	assert.False(t, stats.Connected)
	assert.False(t, stats.LastConnected.IsZero())
	assert.False(t, stats.LastDisconnected.IsZero())
}

func TestConnectionWatchdogDropsWhenFull(t *testing.T) {
	watchdog := NewConnectionWatchdog(1)

	// Two events into a one-slot buffer: the second is dropped, not blocked.
	require.NoError(t, watchdog.OnConnected(nil))
	require.NoError(t, watchdog.OnDisconnected(nil, errors.New("lost")))

	evt := <-watchdog.Events()
	assert.Equal(t, ConnectionEventConnected, evt.Type)

	select {
	case evt := <-watchdog.Events():
		t.Fatalf("unexpected buffered event %v", evt.Type)
	default:
	}

	stats := watchdog.Stats()
	assert.False(t, stats.Connected)
	assert.EqualError(t, stats.LastDisconnectErr, "lost")
}
