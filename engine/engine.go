// Package engine runs patterns and playlists on a background worker. Only one
// job drives the table at a time; operators steer it through pause, resume,
// stop and skip flags held in state.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/jt05610/sandtable/broadcast"
	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/kinematics"
	"github.com/jt05610/sandtable/pattern"
	"github.com/jt05610/sandtable/state"
	"go.uber.org/zap"
)

// Transport commits moves to the firmware.
type Transport interface {
	SendMove(ctx context.Context, x, y, feed float64) error
	RefreshPosition(ctx context.Context) error
	WaitIdle(ctx context.Context) error
}

// Saver persists the machine state between runs.
type Saver interface {
	SaveMachine(p state.Persisted) error
}

type Option func(*Engine)

func WithSaver(s Saver) Option {
	return func(e *Engine) {
		e.saver = s
	}
}

func WithBroadcaster(b *broadcast.Broadcaster) Option {
	return func(e *Engine) {
		e.bc = b
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

type Engine struct {
	tr     Transport
	st     *state.Machine
	lib    pattern.Source
	sel    *pattern.Selector
	cal    kinematics.Calibration
	saver  Saver
	bc     *broadcast.Broadcaster
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	job    sync.Mutex
	moveMu sync.Mutex

	mu   sync.Mutex
	done chan struct{}

	wg sync.WaitGroup
}

func New(tr Transport, st *state.Machine, lib pattern.Source, sel *pattern.Selector, cal kinematics.Calibration, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	close(done)
	e := &Engine{
		tr:     tr,
		st:     st,
		lib:    lib,
		sel:    sel,
		cal:    cal,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		done:   done,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) check(name string) error {
	rc, err := e.lib.Open(name)
	if err != nil {
		return err
	}
	return rc.Close()
}

// start runs job on the worker. It fails fast when a job is active.
func (e *Engine) start(job func(ctx context.Context)) error {
	if !e.job.TryLock() {
		return errors.Conflict("a pattern is already running")
	}
	if e.ctx.Err() != nil {
		e.job.Unlock()
		return errors.New(errors.ErrShutdown, "engine is shut down", "")
	}
	done := make(chan struct{})
	e.mu.Lock()
	e.done = done
	e.mu.Unlock()
	e.st.BeginJob()
	go func() {
		defer close(done)
		defer e.job.Unlock()
		job(e.ctx)
	}()
	return nil
}

// RunFile starts a single pattern and returns once it is accepted.
func (e *Engine) RunFile(name string) error {
	if err := e.check(name); err != nil {
		return err
	}
	clearing := e.sel != nil && e.sel.Set().Contains(name)
	return e.start(func(ctx context.Context) {
		e.runFile(ctx, name, clearing)
	})
}

// Busy reports whether a job holds the table.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current job, if any, has finished.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Pause() {
	e.logger.Info("Pausing")
	e.st.RequestPause()
}

func (e *Engine) Resume() {
	e.logger.Info("Resuming")
	e.st.Resume()
}

// Skip ends the running file; a playlist continues with its next step.
func (e *Engine) Skip() bool {
	ok := e.st.RequestSkip()
	e.logger.Info("Skip requested", zap.Bool("running", ok))
	return ok
}

// Stop aborts the running job after at most the move in flight, then
// resynchronizes the machine position in the background.
func (e *Engine) Stop(clearPlaylist bool) {
	e.logger.Info("Stop requested", zap.Bool("clearPlaylist", clearPlaylist))
	e.st.RequestStop(clearPlaylist)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.tr.RefreshPosition(e.ctx); err != nil {
			e.logger.Warn("Failed to resynchronize machine position", zap.Error(err))
		}
		e.persist()
	}()
}

// Exclusive runs fn while holding the table, failing when a job is active.
func (e *Engine) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if !e.job.TryLock() {
		return errors.Conflict("cannot use the table while a pattern is running")
	}
	defer e.job.Unlock()
	return fn(ctx)
}

// MoveTo sends the arm to one polar coordinate outside of any run.
func (e *Engine) MoveTo(ctx context.Context, theta, rho float64) error {
	return e.Exclusive(ctx, func(ctx context.Context) error {
		return e.moveTo(ctx, kinematics.Polar{Theta: theta, Rho: rho})
	})
}

// moveTo plans one move from the current state, commits it through the
// transport and records the new positions once acknowledged.
func (e *Engine) moveTo(ctx context.Context, target kinematics.Polar) error {
	if !target.Finite() {
		return errors.New(errors.ErrParse, "target is not a finite coordinate", "Pass real numbers for theta and rho")
	}
	e.moveMu.Lock()
	defer e.moveMu.Unlock()
	logical, machine := e.st.Positions()
	mv := e.cal.Plan(logical, machine, target)
	if !mv.Command.Finite() {
		return errors.New(errors.ErrParse, "planned move is not finite", "Check the calibration values")
	}
	if err := e.tr.SendMove(ctx, mv.Command.X, mv.Command.Y, e.cal.FeedRate); err != nil {
		return err
	}
	e.st.CommitMove(mv.Target, mv.Absolute)
	return nil
}

func (e *Engine) persist() {
	if e.saver == nil {
		return
	}
	if err := e.saver.SaveMachine(e.st.Persisted()); err != nil {
		e.logger.Warn("Failed to persist machine state", zap.Error(err))
	}
}

// Close stops any job, waits for it until ctx is done, then cancels every
// pending firmware wait.
func (e *Engine) Close(ctx context.Context) error {
	var err error
	if e.Busy() {
		e.Stop(true)
		err = e.Wait(ctx)
	}
	e.cancel()
	_ = e.Wait(context.Background())
	e.wg.Wait()
	e.persist()
	return err
}
