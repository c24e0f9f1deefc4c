package client_test

import (
	"context"
	goruntime "runtime"
	"testing"
	"time"

	"github.com/replnet/replnet"
	"github.com/replnet/replnet/client"
	"github.com/replnet/replnet/runtime/echolang"
	"github.com/replnet/replnet/server"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	srv, err := server.Start(context.Background(), echolang.New(), 0, 0, server.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func TestClient_SendAndDrain(t *testing.T) {
	srv := startServer(t)
	cl, err := client.Connect("localhost", srv.Port())
	require.NoError(t, err)
	defer func() { _ = cl.Close() }()

	responses, err := cl.Send("(+ 20 22)")
	require.NoError(t, err)
	got := responses.Drain(5 * time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, "42", got[0].Str(replnet.KeyValue))
	assert.Equal(t, replnet.StatusDone, got[1].Status())
}

func TestClient_NextTimeout(t *testing.T) {
	srv := startServer(t)
	cl, err := client.Connect("", srv.Port())
	require.NoError(t, err)
	defer func() { _ = cl.Close() }()

	responses, err := cl.Send("(sleep 60000)", client.WithTimeout(10*time.Second))
	require.NoError(t, err)
	_, ok := responses.Next(50 * time.Millisecond)
	assert.False(t, ok)
	require.NoError(t, responses.Interrupt(5*time.Second))
}

func TestClient_RequestOptions(t *testing.T) {
	srv := startServer(t)
	cl, err := client.Connect("", srv.Port())
	require.NoError(t, err)
	defer func() { _ = cl.Close() }()

	responses, err := cl.Send("(read-line)", client.WithStdin("piped\n"), client.WithNamespace("scratch"))
	require.NoError(t, err)
	got := responses.Drain(5 * time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, `"piped"`, got[0].Str(replnet.KeyValue))
	assert.Equal(t, "scratch", got[0].Str(replnet.KeyNS))
}

func TestClient_CloseWakesBlockedHandle(t *testing.T) {
	srv := startServer(t)
	cl, err := client.Connect("", srv.Port())
	require.NoError(t, err)

	responses, err := cl.Send("(sleep 60000)")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = cl.Close()
	}()
	started := time.Now()
	_, ok := responses.Next(10 * time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(started), 5*time.Second)
}

// sendAndDrop sends a request and lets its handle go out of scope so
// only the weak registry entry remains.
func sendAndDrop(t *testing.T, cl *client.Client) {
	t.Helper()
	_, err := cl.Send("(sleep 200) 1")
	require.NoError(t, err)
}

func TestClient_AbandonedHandleExpires(t *testing.T) {
	srv := startServer(t)
	cl, err := client.Connect("", srv.Port())
	require.NoError(t, err)
	defer func() { _ = cl.Close() }()

	sendAndDrop(t, cl)

	// once the handle is unreachable the registry entry becomes
	// reclaimable and late responses are dropped on the floor
	assert.Eventually(t, func() bool {
		goruntime.GC()
		return cl.Outstanding() == 0
	}, 5*time.Second, 50*time.Millisecond)

	// the connection stays healthy for subsequent requests
	responses, err := cl.Send("(+ 1 2)")
	require.NoError(t, err)
	got := responses.Drain(5 * time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].Str(replnet.KeyValue))
}
