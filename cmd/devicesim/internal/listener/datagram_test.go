package listener

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatagramTriggerFiresOnOK(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	d := NewDatagramTrigger(pc, 0)

	fired := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background(), func() { fired <- struct{}{} }) }()

	client, err := net.Dial("udp", d.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("nope"))
	require.NoError(t, err)
	_, err = client.Write([]byte("ok\x00trailing"))
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("toggle not fired")
	}

	require.NoError(t, d.Close())
	assert.NoError(t, <-done)
	assert.Empty(t, fired)
}
