package engine

import (
	"context"
	"time"

	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/state"
	"go.uber.org/zap"
)

type PlaylistOptions struct {
	// PauseTime separates entries, and passes under ModeIndefinite.
	PauseTime time.Duration `json:"pause_time"`
	// ClearMode selects the clear pattern run before each entry.
	ClearMode string `json:"clear_pattern"`
	Mode      string `json:"run_mode"`
	Shuffle   bool   `json:"shuffle"`
}

func (o *PlaylistOptions) normalize() error {
	switch o.Mode {
	case "":
		o.Mode = state.ModeSingle
	case state.ModeSingle, state.ModeIndefinite:
	default:
		return errors.New(errors.ErrConfig, "unknown run mode: "+o.Mode,
			"Use "+state.ModeSingle+" or "+state.ModeIndefinite)
	}
	if o.PauseTime < 0 {
		return errors.New(errors.ErrConfig, "pause time must not be negative", "")
	}
	return nil
}

// RunFiles starts a playlist over files and returns once it is accepted.
func (e *Engine) RunFiles(files []string, opts PlaylistOptions) error {
	if len(files) == 0 {
		return errors.New(errors.ErrConfig, "playlist is empty", "Add at least one pattern")
	}
	if err := opts.normalize(); err != nil {
		return err
	}
	for _, f := range files {
		if err := e.check(f); err != nil {
			return err
		}
	}
	files = append([]string(nil), files...)
	return e.start(func(ctx context.Context) {
		e.runPlaylist(ctx, files, opts)
	})
}

func (e *Engine) runPlaylist(ctx context.Context, files []string, opts PlaylistOptions) {
	e.st.BeginPlaylist(files, opts.Mode)
	defer e.st.EndPlaylist()
	logger := e.logger.With(zap.String("mode", opts.Mode), zap.Int("files", len(files)))
	logger.Info("Starting playlist", zap.String("clear", opts.ClearMode), zap.Bool("shuffle", opts.Shuffle))

	for pass := 1; ; pass++ {
		if opts.Shuffle {
			e.sel.Shuffle(files)
			e.st.SetPlaylistFiles(files)
		}
		ran := 0
		for i, name := range files {
			if e.st.Stopped() || ctx.Err() != nil {
				logger.Info("Playlist stopped", zap.Int("pass", pass), zap.Int("index", i))
				return
			}
			e.st.SetPlaylistIndex(i)
			if cp := e.sel.Resolve(opts.ClearMode, name); cp != "" {
				e.runFile(ctx, cp, true)
				if e.st.Stopped() || ctx.Err() != nil {
					logger.Info("Playlist stopped", zap.Int("pass", pass), zap.Int("index", i))
					return
				}
			}
			if e.runFile(ctx, name, false) {
				ran++
			}
			if e.st.Stopped() || ctx.Err() != nil {
				logger.Info("Playlist stopped", zap.Int("pass", pass), zap.Int("index", i))
				return
			}
			if i < len(files)-1 || opts.Mode == state.ModeIndefinite {
				if !e.pause(ctx, opts.PauseTime) {
					logger.Info("Playlist stopped while pausing", zap.Int("pass", pass))
					return
				}
			}
		}
		if opts.Mode != state.ModeIndefinite {
			logger.Info("Playlist completed")
			return
		}
		if ran == 0 {
			logger.Error("No playable pattern in playlist, giving up")
			return
		}
		logger.Info("Playlist pass completed, repeating", zap.Int("pass", pass))
	}
}
