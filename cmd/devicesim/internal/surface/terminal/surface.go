package terminal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
	"github.com/jroimartin/gocui"
)

const (
	viewName     = "toggle"
	viewWidth    = 30
	viewHeight   = 4
	closeTimeout = 2 * time.Second
)

// Surface is a small always-on-top style terminal window: the title shows the
// connection status and the body the toggle caption. Enter or Space toggles,
// q or Ctrl-C closes the window.
type Surface struct {
	g    *gocui.Gui
	post func(core.Signal)

	mu        sync.Mutex
	connected bool
	stopped   bool
	done      chan struct{}
}

var newGui = func() (*gocui.Gui, error) { return gocui.NewGui(gocui.OutputNormal) }

func New() *Surface {
	return &Surface{done: make(chan struct{})}
}

// Start opens the terminal and runs the gocui main loop in the background.
// g and post are only touched under mu.
func (s *Surface) Start(post func(core.Signal)) error {
	g, err := newGui()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	g.SetManagerFunc(s.layout)

	for _, key := range []interface{}{gocui.KeyEnter, gocui.KeySpace} {
		if err := g.SetKeybinding("", key, gocui.ModNone, s.press); err != nil {
			g.Close()
			return fmt.Errorf("bind toggle key: %w", err)
		}
	}
	for _, key := range []interface{}{gocui.KeyCtrlC, 'q'} {
		if err := g.SetKeybinding("", key, gocui.ModNone, s.closeWindow); err != nil {
			g.Close()
			return fmt.Errorf("bind close key: %w", err)
		}
	}

	s.mu.Lock()
	s.g = g
	s.post = post
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		err := g.MainLoop()
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		g.Close()
		if err != nil && !errors.Is(err, gocui.ErrQuit) {
			logger.Error("Terminal surface stopped", "error", err)
		}
	}()
	return nil
}

func (s *Surface) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	x0 := max(0, maxX/2-viewWidth/2)
	y0 := max(0, maxY/2-viewHeight/2)
	v, err := g.SetView(viewName, x0, y0, x0+viewWidth, y0+viewHeight)
	if err != nil && !errors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	draw(v, connected)
	return nil
}

func draw(v *gocui.View, connected bool) {
	v.Title = core.StatusLabel(connected)
	v.Clear()
	fmt.Fprintf(v, "\n [ %s ]", core.ActionLabel(connected))
}

func (s *Surface) press(g *gocui.Gui, v *gocui.View) error {
	if post := s.poster(); post != nil {
		post(core.Toggle())
	}
	return nil
}

func (s *Surface) closeWindow(g *gocui.Gui, v *gocui.View) error {
	if post := s.poster(); post != nil {
		post(core.Exit(true))
	}
	return gocui.ErrQuit
}

func (s *Surface) poster() func(core.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.post
}

// gui returns the running gui, or nil before Start or after the main loop
// ended.
func (s *Surface) gui() *gocui.Gui {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	return s.g
}

func (s *Surface) Render(connected bool) {
	s.mu.Lock()
	s.connected = connected
	g := s.g
	if s.stopped {
		g = nil
	}
	s.mu.Unlock()
	if g == nil {
		return
	}
	g.Update(func(g *gocui.Gui) error {
		v, err := g.View(viewName)
		if err != nil {
			return nil
		}
		draw(v, connected)
		return nil
	})
}

// Hide stops drawing and gives the terminal back.
func (s *Surface) Hide() {
	if g := s.gui(); g != nil {
		g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
	}
}

func (s *Surface) Close() error {
	s.mu.Lock()
	started := s.g != nil
	s.mu.Unlock()
	if !started {
		return nil
	}
	s.Hide()
	select {
	case <-s.done:
		return nil
	case <-time.After(closeTimeout):
		return errors.New("terminal surface did not stop in time")
	}
}
