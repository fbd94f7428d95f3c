package natsbus

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/require"
)

// startTestServer runs an embedded, JetStream-enabled NATS server for the
// duration of the test, matching the way nats.go's own test suite spins up
// an in-process broker rather than requiring a standalone nats-server.
func startTestServer(t *testing.T) string {
	t.Helper()
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not become ready")
	}
	t.Cleanup(srv.Shutdown)

	return srv.ClientURL()
}

func TestFanoutDeliversToEverySubscriber(t *testing.T) {
	url := startTestServer(t)
	bus, err := Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	received1 := make(chan []byte, 1)
	received2 := make(chan []byte, 1)

	unsub1, err := bus.Subscribe("griddfs.test.fanout", func(payload []byte) { received1 <- payload })
	require.NoError(t, err)
	t.Cleanup(unsub1)

	unsub2, err := bus.Subscribe("griddfs.test.fanout", func(payload []byte) { received2 <- payload })
	require.NoError(t, err)
	t.Cleanup(unsub2)

	// Give both durable consumers a moment to bind before publishing.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "griddfs.test.fanout", []byte("hello")))

	select {
	case payload := <-received1:
		require.Equal(t, []byte("hello"), payload)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber 1 never received the fanout message")
	}
	select {
	case payload := <-received2:
		require.Equal(t, []byte("hello"), payload)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber 2 never received the fanout message")
	}
}

func TestDirectRequestReply(t *testing.T) {
	url := startTestServer(t)
	bus, err := Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	unsub, err := bus.Reply("griddfs.test.direct", func(payload []byte) []byte {
		return append([]byte("echo:"), payload...)
	})
	require.NoError(t, err)
	t.Cleanup(unsub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := bus.Request(ctx, "griddfs.test.direct", []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("echo:ping"), reply)
}

func TestRequestTimesOutWhenNoResponder(t *testing.T) {
	url := startTestServer(t)
	bus, err := Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = bus.Request(ctx, "griddfs.test.nobody-listening", []byte("ping"))
	require.Error(t, err)
}
