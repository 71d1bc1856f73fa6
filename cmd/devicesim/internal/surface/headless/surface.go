package headless

import (
	"errors"
	"sync"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

// ErrNotStarted is returned by actions on a surface that was never started.
var ErrNotStarted = errors.New("surface not started")

// Surface is an in-memory toggle control. It keeps the labels a window would
// show and turns Press and CloseWindow into signals.
type Surface struct {
	mu      sync.Mutex
	post    func(core.Signal)
	title   string
	action  string
	visible bool
	closed  bool
	renders int
}

func New() *Surface {
	return &Surface{
		title:  core.StatusLabel(false),
		action: core.ActionLabel(false),
	}
}

func (s *Surface) Start(post func(core.Signal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.post = post
	s.visible = true
	logger.Debug("Headless surface started")
	return nil
}

func (s *Surface) Render(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = core.StatusLabel(connected)
	s.action = core.ActionLabel(connected)
	s.renders++
}

func (s *Surface) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.visible = false
	return nil
}

// Press activates the toggle control.
func (s *Surface) Press() error {
	post, err := s.poster()
	if err != nil {
		return err
	}
	post(core.Toggle())
	return nil
}

// CloseWindow hides the surface and asks the loop to exit, as a user
// closing the window would.
func (s *Surface) CloseWindow() error {
	post, err := s.poster()
	if err != nil {
		return err
	}
	s.Hide()
	post(core.Exit(true))
	return nil
}

// Labels returns the current title and action caption.
func (s *Surface) Labels() (title, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title, s.action
}

func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Surface) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

func (s *Surface) poster() (func(core.Signal), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.post == nil || s.closed {
		return nil, ErrNotStarted
	}
	return s.post, nil
}
