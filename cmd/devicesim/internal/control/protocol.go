package control

import (
	"fmt"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/eventloop"
)

const (
	CommandStatus = "status"
	CommandToggle = "toggle"
	CommandExit   = "exit"
)

// Request is sent from the CLI client to the running simulator.
type Request struct {
	Command string `json:"command"` // "status" | "toggle" | "exit"
}

// Response is sent back to the CLI client. The password is never included.
type Response struct {
	State     string `json:"state,omitempty"` // "connected", "disconnected", "terminated"
	Connected bool   `json:"connected"`
	Username  string `json:"username,omitempty"`
	Queued    bool   `json:"queued,omitempty"` // toggle/exit accepted into the event loop
	Error     string `json:"error,omitempty"`
}

// Target is the part of the mediator the control surface needs.
type Target interface {
	Snapshot() core.Snapshot
	Phase() eventloop.Phase
	Post(sig core.Signal)
}

// Handler answers control requests against a Target.
type Handler struct {
	Target Target
}

func (h *Handler) Handle(req Request) Response {
	switch req.Command {
	case CommandStatus:
		return h.status(false)
	case CommandToggle:
		h.Target.Post(core.Toggle())
		return h.status(true)
	case CommandExit:
		h.Target.Post(core.Exit(false))
		return h.status(true)
	default:
		return Response{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}

func (h *Handler) status(queued bool) Response {
	snap := h.Target.Snapshot()
	return Response{
		State:     string(h.Target.Phase()),
		Connected: snap.Connected,
		Username:  snap.Identity.Username,
		Queued:    queued,
	}
}
