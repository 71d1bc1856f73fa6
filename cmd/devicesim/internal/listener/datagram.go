package listener

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

var datagramToggle = []byte("ok")

// DatagramTrigger listens for UDP datagrams and fires a toggle for every
// payload equal to "ok" (up to the first NUL).
type DatagramTrigger struct {
	conn   net.PacketConn
	size   int
	closed atomic.Bool
}

func ListenDatagram(port, bufferSize int) (*DatagramTrigger, error) {
	conn, err := net.ListenPacket("udp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, &BindError{Port: port, Err: err}
	}
	return NewDatagramTrigger(conn, bufferSize), nil
}

func NewDatagramTrigger(conn net.PacketConn, bufferSize int) *DatagramTrigger {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &DatagramTrigger{conn: conn, size: bufferSize}
}

func (d *DatagramTrigger) Addr() net.Addr { return d.conn.LocalAddr() }

// Serve reads datagrams until Close or ctx is done. A read failure ends the
// loop with a *ListenerFailure.
func (d *DatagramTrigger) Serve(ctx context.Context, fire func()) error {
	log := logger.Component("datagram")
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			d.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, d.size)
	for {
		n, from, err := d.conn.ReadFrom(buf)
		if err != nil {
			if d.closed.Load() {
				return nil
			}
			return &ListenerFailure{Err: &RecvError{Remote: "udp", Err: err}}
		}
		payload := buf[:n]
		if i := bytes.IndexByte(payload, 0); i >= 0 {
			payload = payload[:i]
		}
		if !bytes.Equal(payload, datagramToggle) {
			log.Debug("Ignored datagram", "from", from, "bytes", n)
			continue
		}
		log.Info("Toggle datagram received", "from", from)
		fire()
	}
}

func (d *DatagramTrigger) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.conn.Close()
}
