package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-depthcam/pkg/display"
	"github.com/teslashibe/go-depthcam/pkg/frame"
)

// State is the lifecycle state of a Loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopRequested
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats counts what happened during the current or last run.
type Stats struct {
	// Frames is the number of frames converted and published.
	Frames uint64 `json:"frames"`
	// StaleFrames were published without a conversion because the raw
	// frame was not ready.
	StaleFrames uint64 `json:"stale_frames"`
	// EmptyPulls returned no frame within the pull timeout.
	EmptyPulls uint64 `json:"empty_pulls"`
}

// Loop pulls frames from a Session on a dedicated goroutine until stopped.
// Only one run is active at a time; a stopped Loop can be started again
// with a new Session.
type Loop struct {
	sink   display.Sink
	logger *slog.Logger

	// OnStateChange, if set, is called on every transition with the loop
	// locked. It must not call back into the Loop. Set it before Start.
	OnStateChange func(State)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	frames atomic.Uint64
	stale  atomic.Uint64
	empty  atomic.Uint64
}

// NewLoop creates an idle loop publishing to sink.
func NewLoop(sink display.Sink, logger *slog.Logger) *Loop {
	if sink == nil {
		sink = display.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		sink:   sink,
		logger: logger.With("component", "capture-loop"),
	}
}

// Start runs the loop on s. The loop owns s from here on and closes it
// when the run ends. Start fails with ErrLoopBusy unless the loop is idle
// or stopped.
func (l *Loop) Start(ctx context.Context, s *Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateRunning || l.state == StateStopRequested {
		return ErrLoopBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	// A finished run goes back through Idle before the next one.
	if l.state == StateStopped {
		l.setState(StateIdle)
	}
	l.setState(StateRunning)
	l.cancel = cancel
	l.done = done
	l.err = nil
	l.frames.Store(0)
	l.stale.Store(0)
	l.empty.Store(0)

	go l.run(runCtx, s, done)
	return nil
}

// Stop asks a running loop to finish after its current iteration.
// It does not wait; use Wait to join.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateRunning {
		return
	}
	l.setState(StateStopRequested)
	l.cancel()
}

// Wait blocks until the current run has ended and returns the error that
// ended it, or nil for a requested stop.
func (l *Loop) Wait() error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return nil
	}
	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done returns a channel closed when the current run ends, or nil if the
// loop never started.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns counters for the current or last run.
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:      l.frames.Load(),
		StaleFrames: l.stale.Load(),
		EmptyPulls:  l.empty.Load(),
	}
}

// setState records a transition. Callers hold l.mu.
func (l *Loop) setState(st State) {
	l.state = st
	if l.OnStateChange != nil {
		l.OnStateChange(st)
	}
}

func (l *Loop) run(ctx context.Context, s *Session, done chan struct{}) {
	defer close(done)

	err := l.capture(ctx, s)
	if err != nil {
		l.logger.Error("capture stopped on error",
			"session", s.ID().String(),
			"kind", s.Kind(),
			"error", err,
		)
	}

	// Leave a blank frame on the display.
	buf := s.Buffer()
	buf.Zero()
	l.sink.Publish(buf.Width, buf.Height, buf.Pix)

	if cerr := s.Close(); cerr != nil {
		l.logger.Warn("session close failed", "session", s.ID().String(), "error", cerr)
	}

	stats := l.Stats()
	l.logger.Info("capture loop finished",
		"session", s.ID().String(),
		"frames", stats.Frames,
		"stale", stats.StaleFrames,
		"empty", stats.EmptyPulls,
	)

	l.mu.Lock()
	l.err = err
	l.setState(StateStopped)
	l.cancel()
	l.mu.Unlock()
}

func (l *Loop) capture(ctx context.Context, s *Session) error {
	buf := s.Buffer()

	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := s.PullFrame()
		if errors.Is(err, ErrNoFrame) {
			l.empty.Add(1)
			continue
		}
		if err != nil {
			return err
		}

		updated, err := frame.Convert(raw, buf)
		s.Release(raw)
		if err != nil {
			return fmt.Errorf("capture: convert %s frame: %w", s.Kind(), err)
		}

		if updated {
			l.frames.Add(1)
		} else {
			l.stale.Add(1)
		}
		l.sink.Publish(buf.Width, buf.Height, buf.Pix)
	}
}
