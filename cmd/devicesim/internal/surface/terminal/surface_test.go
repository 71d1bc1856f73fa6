package terminal

import (
	"errors"
	"sync"
	"testing"

	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/core"
	"github.com/jroimartin/gocui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartFailureLeavesSurfaceIdle(t *testing.T) {
	orig := newGui
	newGui = func() (*gocui.Gui, error) { return nil, errors.New("no tty") }
	defer func() { newGui = orig }()

	s := New()
	err := s.Start(func(core.Signal) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open terminal")
	assert.Contains(t, err.Error(), "no tty")

	s.Render(true)
	s.Hide()
	assert.NoError(t, s.Close())
	assert.Nil(t, s.gui())
	assert.Nil(t, s.poster())
}

func TestRenderHideConcurrentWithStart(t *testing.T) {
	orig := newGui
	started := make(chan struct{})
	newGui = func() (*gocui.Gui, error) {
		close(started)
		return nil, errors.New("no tty")
	}
	defer func() { newGui = orig }()

	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(connected bool) {
			defer wg.Done()
			<-started
			s.Render(connected)
			s.Hide()
		}(i%2 == 0)
	}
	assert.Error(t, s.Start(func(core.Signal) {}))
	wg.Wait()

	assert.NoError(t, s.Close())
}

func TestPressBeforeStartDoesNotPost(t *testing.T) {
	s := New()
	assert.NoError(t, s.press(nil, nil))
	assert.ErrorIs(t, s.closeWindow(nil, nil), gocui.ErrQuit)
}
