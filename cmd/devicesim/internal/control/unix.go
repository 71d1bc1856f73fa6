package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

// UnixServer serves one JSON request per connection on a unix socket.
type UnixServer struct {
	path    string
	handler *Handler
	ln      net.Listener
}

func NewUnixServer(path string, handler *Handler) *UnixServer {
	return &UnixServer{path: path, handler: handler}
}

// Listen creates the socket, replacing a stale one.
func (s *UnixServer) Listen() error {
	os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0700); err != nil {
		logger.Warn("Could not restrict control socket", "path", s.path, "error", err)
	}
	s.ln = ln
	return nil
}

// Serve accepts until ctx is done or Close is called.
func (s *UnixServer) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	logger.Info("Control socket listening", "path", s.path)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			// Listener closed by shutdown.
			return nil
		}
		go s.handleConn(conn)
	}
}

func (s *UnixServer) handleConn(conn net.Conn) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		json.NewEncoder(conn).Encode(Response{Error: "invalid request: " + err.Error()})
		return
	}
	logger.Debug("Control request", "command", req.Command)
	json.NewEncoder(conn).Encode(s.handler.Handle(req))
}

func (s *UnixServer) Close() error {
	defer os.Remove(s.path)
	if s.ln == nil {
		return nil
	}
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Call sends one request to the unix control socket at path.
func Call(path string, req Request) (Response, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("connect to simulator: %w (is `devicesim run` running?)", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
