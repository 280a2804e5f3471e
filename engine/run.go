package engine

import (
	"context"
	"time"

	"github.com/jt05610/sandtable/kinematics"
	"github.com/jt05610/sandtable/pattern"
	"github.com/jt05610/sandtable/state"
	"go.uber.org/zap"
)

// runFile drives one pattern to completion or until it is interrupted. It
// reports whether the pattern was long enough to run.
func (e *Engine) runFile(ctx context.Context, name string, clearing bool) bool {
	logger := e.logger.With(zap.String("file", name), zap.Bool("clearing", clearing))
	coords, err := pattern.Load(e.lib, name, e.logger)
	if err != nil {
		logger.Error("Failed to load pattern", zap.Error(err))
		return false
	}
	if len(coords) < 2 {
		logger.Warn("Not enough coordinates to run", zap.Int("coordinates", len(coords)))
		e.st.EndRun(nil)
		return false
	}

	e.st.ResetTheta()
	if err := e.tr.RefreshPosition(ctx); err != nil {
		logger.Warn("Failed to refresh machine position", zap.Error(err))
	}
	total := len(coords)
	e.st.BeginRun(name, clearing, total)
	if e.bc != nil {
		e.bc.Start(ctx)
	}
	logger.Info("Running pattern", zap.Int("coordinates", total))

	est := newEstimator(estimatorWindow)
	start := e.now()
	last := start
	completed := 0
	var final *state.Progress
	for _, c := range coords {
		if e.st.Interrupted() {
			break
		}
		if err := e.st.WaitWhilePaused(ctx); err != nil {
			break
		}
		if e.st.Interrupted() {
			break
		}
		if err := e.moveTo(ctx, kinematics.Polar{Theta: c.Theta, Rho: c.Rho}); err != nil {
			logger.Error("Move failed, aborting pattern", zap.Error(err))
			break
		}
		completed++
		now := e.now()
		est.add(now.Sub(last))
		last = now
		p := state.Progress{
			Completed: completed,
			Total:     total,
			Remaining: est.remaining(total - completed),
			Elapsed:   now.Sub(start).Seconds(),
		}
		e.st.UpdateProgress(name, p)
		final = &p
	}

	if completed == total {
		zero := 0.0
		final = &state.Progress{
			Completed: total,
			Total:     total,
			Remaining: &zero,
			Elapsed:   e.now().Sub(start).Seconds(),
		}
		e.st.UpdateProgress(name, *final)
		logger.Info("Pattern completed", zap.Float64("elapsed", final.Elapsed))
	} else {
		logger.Info("Pattern interrupted",
			zap.Int("completed", completed),
			zap.Bool("stopped", e.st.Stopped()),
			zap.Bool("skipped", e.st.SkipRequested()))
	}

	if err := e.tr.WaitIdle(ctx); err != nil {
		logger.Warn("Failed to wait for idle", zap.Error(err))
	}
	e.st.EndRun(final)
	e.persist()
	return true
}

// pause sleeps between playlist entries. It reports false when the job was
// stopped or cancelled meanwhile.
func (e *Engine) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !e.st.Stopped()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !e.st.Stopped()
	case <-e.st.StopSignal():
		return false
	case <-ctx.Done():
		return false
	}
}
