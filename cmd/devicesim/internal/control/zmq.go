package control

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
	zmq "github.com/pebbe/zmq4"
)

const zmqPollInterval = 500 * time.Millisecond

// ZMQServer answers JSON control requests on a ZeroMQ REP socket.
type ZMQServer struct {
	endpoint string
	handler  *Handler
}

func NewZMQServer(endpoint string, handler *Handler) *ZMQServer {
	return &ZMQServer{endpoint: endpoint, handler: handler}
}

// Serve binds the socket and answers requests until ctx is done. The socket
// is owned by this goroutine only.
func (s *ZMQServer) Serve(ctx context.Context) error {
	sock, err := zmq.NewSocket(zmq.REP)
	if err != nil {
		return fmt.Errorf("create zmq socket: %w", err)
	}
	defer sock.Close()

	if err := sock.SetRcvtimeo(zmqPollInterval); err != nil {
		return fmt.Errorf("set zmq receive timeout: %w", err)
	}
	if err := sock.Bind(s.endpoint); err != nil {
		return fmt.Errorf("bind %s: %w", s.endpoint, err)
	}
	logger.Info("Control zmq socket listening", "endpoint", s.endpoint)

	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := sock.Recv(0)
		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
				continue
			}
			return fmt.Errorf("zmq receive: %w", err)
		}

		var resp Response
		var req Request
		if err := json.Unmarshal([]byte(msg), &req); err != nil {
			resp = Response{Error: "invalid request: " + err.Error()}
		} else {
			resp = s.handler.Handle(req)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			out = []byte(`{"error":"encode response"}`)
		}
		// A REP socket must answer before the next receive.
		if _, err := sock.Send(string(out), 0); err != nil {
			logger.Warn("zmq send failed", "error", err)
		}
	}
}
