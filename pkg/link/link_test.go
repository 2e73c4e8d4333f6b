package link

import (
	"context"
	"io"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/romreader/pkg/reader"
)

var _ reader.Link = (*Port)(nil)

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPortReceive(t *testing.T) {
	host, dev := net.Pipe()
	p := NewPort(dev)
	defer p.Close()

	require.False(t, p.RxReady())
	_, err := p.Receive()
	require.Equal(t, ErrRxEmpty, err)

	go host.Write([]byte("r\r"))
	waitFor(t, func() bool { return len(p.rxCh) == 2 })
	b, err := p.Receive()
	require.NoError(t, err)
	require.Equal(t, byte('r'), b)
	b, err = p.Receive()
	require.NoError(t, err)
	require.Equal(t, reader.CR, b)
	require.False(t, p.RxReady())
}

func TestPortTransmit(t *testing.T) {
	host, dev := net.Pipe()
	p := NewPortSize(dev, 4, 2)
	defer p.Close()

	require.True(t, p.TxReady())
	require.NoError(t, p.Transmit(1))
	require.NoError(t, p.Transmit(2))

	got := make([]byte, 2)
	_, err := io.ReadFull(host, got)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, got)
	require.NoError(t, p.Drain(context.Background()))
	require.Zero(t, p.Pending())
}

func TestPortTxFull(t *testing.T) {
	_, dev := net.Pipe()
	p := NewPortSize(dev, 1, 1)
	defer p.Close()
	// the write loop holds one byte blocked on the pipe, one more fills the FIFO
	require.NoError(t, p.Transmit(1))
	waitFor(t, func() bool { return len(p.txCh) == 0 })
	require.NoError(t, p.Transmit(2))
	require.False(t, p.TxReady())
	require.Equal(t, ErrTxFull, p.Transmit(3))
	require.Equal(t, 2, p.Pending())
}

func TestPortPeerClosed(t *testing.T) {
	host, dev := net.Pipe()
	p := NewPort(dev)
	defer p.Close()
	host.Close()
	waitFor(t, p.RxReady)
	_, err := p.Receive()
	require.Equal(t, io.EOF, err)
}

func TestPortTransportRoundTrip(t *testing.T) {
	host, dev := net.Pipe()
	p := NewPort(dev)
	defer p.Close()
	tr := reader.NewTransport(p, nil)
	tr.Idle = func() { time.Sleep(10 * time.Microsecond) }

	go host.Write([]byte("l7\r"))
	var buf reader.CommandBuffer
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := reader.ReadCommand(ctx, tr, buf[:], reader.CommandSize)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	go tr.SendByte(ctx, 0x5a)
	got := make([]byte, 1)
	_, err = io.ReadFull(host, got)
	require.NoError(t, err)
	require.Equal(t, byte(0x5a), got[0])
}

func TestSerialConfig(t *testing.T) {
	testCases := []struct {
		url  string
		name string
		baud int
	}{
		{"serial:///dev/ttyUSB0", "/dev/ttyUSB0", DefaultBaud},
		{"serial:///dev/ttyS1?baud=9600", "/dev/ttyS1", 9600},
		{"serial://COM3", "COM3", DefaultBaud},
	}
	for _, tc := range testCases {
		u, err := url.Parse(tc.url)
		require.NoError(t, err)
		conf, err := SerialConfig(u)
		require.NoError(t, err)
		assert.Equal(t, tc.name, conf.Name)
		assert.Equal(t, tc.baud, conf.Baud)
	}
	u, _ := url.Parse("serial:///dev/ttyS1?baud=fast")
	_, err := SerialConfig(u)
	require.Error(t, err)
}

func TestOpenUnknownScheme(t *testing.T) {
	_, err := Open("ftp://host/x")
	require.Error(t, err)
	_, err = Listen("udp://:0")
	require.Error(t, err)
}

func testListenOpen(t *testing.T, listenURL string) {
	ln, err := Listen(listenURL)
	require.NoError(t, err)
	defer ln.Close()

	connCh := make(chan io.ReadWriteCloser, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			connCh <- conn
		}
	}()
	client, err := Open(ln.Addr())
	require.NoError(t, err)
	defer client.Close()

	var server io.ReadWriteCloser
	select {
	case server = <-connCh:
	case <-time.After(time.Second):
		t.Fatal("accept timeout")
	}
	defer server.Close()

	_, err = client.Write([]byte("M5\r"))
	require.NoError(t, err)
	got := make([]byte, 3)
	_, err = io.ReadFull(server, got)
	require.NoError(t, err)
	require.Equal(t, "M5\r", string(got))

	_, err = server.Write([]byte{0xff, 0})
	require.NoError(t, err)
	got = got[:2]
	_, err = io.ReadFull(client, got)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0}, got)
}

func TestListenOpenTCP(t *testing.T) {
	testListenOpen(t, "tcp://127.0.0.1:0")
}

func TestListenOpenWebsocket(t *testing.T) {
	testListenOpen(t, "ws://127.0.0.1:0/link")
}
