package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"unicode/utf8"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"golang.org/x/text/encoding/charmap"
)

const (
	DefaultBufferSize  = 1024
	DefaultMaxTokenLen = 50
)

var (
	replyOK       = []byte("OK")
	replyNotFound = []byte("USER NOT FOUND")
)

// Options configures the handshake run on every accepted connection.
type Options struct {
	BufferSize  int
	MaxTokenLen int
	Validator   core.IdentityValidator
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.MaxTokenLen <= 0 {
		o.MaxTokenLen = DefaultMaxTokenLen
	}
	if o.Validator == nil {
		o.Validator = core.AlwaysAccept{}
	}
	return o
}

// Handshake is the per-connection credential exchange. One value is reused
// across connections by the sequential accept loop; it is not safe for
// concurrent use.
type Handshake struct {
	opts Options
	buf  []byte
}

func NewHandshake(opts Options) *Handshake {
	opts = opts.withDefaults()
	return &Handshake{
		opts: opts,
		buf:  make([]byte, opts.BufferSize),
	}
}

// Run reads tokens from conn until the validator has enough of them, replying
// OK after each accepted token. A lookup miss replies USER NOT FOUND and
// starts over on the same connection. Rejected tokens return an error
// without any reply.
func (h *Handshake) Run(ctx context.Context, conn net.Conn) (core.Identity, error) {
	arity := h.opts.Validator.Arity()
	tokens := make([]string, 0, arity)

	for {
		tok, err := h.readToken(conn)
		if err != nil {
			return core.Identity{}, err
		}
		tokens = append(tokens, tok)

		if len(tokens) < arity {
			if err := reply(conn, replyOK); err != nil {
				return core.Identity{}, err
			}
			continue
		}

		id, err := h.opts.Validator.Validate(ctx, tokens)
		if errors.Is(err, core.ErrIdentityNotFound) {
			if err := reply(conn, replyNotFound); err != nil {
				return core.Identity{}, err
			}
			tokens = tokens[:0]
			continue
		}
		if err != nil {
			return core.Identity{}, fmt.Errorf("validate identity: %w", err)
		}

		if err := reply(conn, replyOK); err != nil {
			return core.Identity{}, err
		}
		return id, nil
	}
}

func (h *Handshake) readToken(conn net.Conn) (string, error) {
	n, err := conn.Read(h.buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return "", ErrPeerClosed
		}
		return "", &RecvError{Remote: remoteAddr(conn), Err: err}
	}
	return DecodeToken(h.buf[:n], h.opts.MaxTokenLen)
}

// DecodeToken extracts the NUL-terminated token at the start of data. The
// scan never goes past len(data). Bytes after the terminator are ignored.
func DecodeToken(data []byte, maxLen int) (string, error) {
	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return "", ErrMalformedToken
	}
	if end >= maxLen {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrTokenTooLong, end, maxLen-1)
	}
	raw := data[:end]
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	// Narrow bytes that are not UTF-8 are taken as the Windows ANSI code page.
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return string(decoded), nil
}

func reply(conn net.Conn, msg []byte) error {
	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("send %q to %s: %w", msg, remoteAddr(conn), err)
	}
	return nil
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}
