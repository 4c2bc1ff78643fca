//go:build linux || darwin

package eventloop

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocket_CreateServerAndConnectRoundTrip(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	var server *Conn
	var received string
	buf := make([]byte, 5)

	ln, err := CreateServer(loop, "tcp", "127.0.0.1:0", 0, func(c *Conn) {
		// onAccept always runs on the loop goroutine, so it is safe to
		// register further I/O on c here.
		server = c
		readFut := c.ReadAsync(buf)
		readFut.AddDoneCallback(func(f Future) {
			if n, err := f.Result(); err == nil {
				received = string(buf[:n.(int)])
			}
			loop.Stop()
		})
	})
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.Addr().String()

	var client *Conn
	connectFut := SockConnect(loop, "tcp", addr)
	connectFut.AddDoneCallback(func(f Future) {
		v, err := f.Result()
		require.NoError(t, err)
		client = v.(*Conn)
		client.WriteAsync([]byte("hello")).AddDoneCallback(func(Future) {})
	})

	_, err = loop.CallLater(2*time.Second, func() Step {
		loop.Stop()
		return StepDone
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunForever())
	assert.Equal(t, "hello", received)
	if client != nil {
		_ = client.Close()
	}
	if server != nil {
		_ = server.Close()
	}
}

func TestSocket_SockConnectRefusedRejectsFuture(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	// Port 1 is privileged/unused on loopback and should refuse immediately.
	f := SockConnect(loop, "tcp", "127.0.0.1:1")
	f.AddDoneCallback(func(Future) { loop.Stop() })

	_, err = loop.CallLater(2*time.Second, func() Step {
		loop.Stop()
		return StepDone
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunForever())
	_, resultErr := f.Result()
	assert.Error(t, resultErr)
}

func TestSocket_DatagramEndpointRoundTrip(t *testing.T) {
	loop, err := New()
	require.NoError(t, err)
	defer loop.Close()

	server, err := CreateDatagramEndpoint(loop, "udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := CreateDatagramEndpoint(loop, "udp", "")
	require.NoError(t, err)
	defer client.Close()

	serverAddr := server.LocalAddr().(*net.UDPAddr)

	var received string
	buf := make([]byte, 8)
	readFut := server.ReadFromAsync(buf)
	readFut.AddDoneCallback(func(f Future) {
		v, err := f.Result()
		if err == nil {
			pkt := v.(DatagramPacket)
			received = string(buf[:pkt.N])
		}
		loop.Stop()
	})

	writeFut := client.WriteToAsync([]byte("ping"), serverAddr)
	writeFut.AddDoneCallback(func(Future) {})

	_, err = loop.CallLater(2*time.Second, func() Step {
		loop.Stop()
		return StepDone
	})
	require.NoError(t, err)

	require.NoError(t, loop.RunForever())
	assert.Equal(t, "ping", received)
}
