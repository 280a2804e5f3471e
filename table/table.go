// Package table is the operator-facing controller. It wires the transport,
// engine, persistence and broadcaster together and exposes the only paths
// by which operators change the table.
package table

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"

	"github.com/jt05610/sandtable/broadcast"
	"github.com/jt05610/sandtable/config"
	"github.com/jt05610/sandtable/couch"
	"github.com/jt05610/sandtable/engine"
	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/grbl"
	"github.com/jt05610/sandtable/pattern"
	"github.com/jt05610/sandtable/state"
	"github.com/jt05610/sandtable/store"
	"github.com/jt05610/sandtable/transport"
	"go.uber.org/zap"
)

// PlaylistStore keeps named playlists.
type PlaylistStore interface {
	ListPlaylists(ctx context.Context) ([]string, error)
	GetPlaylist(ctx context.Context, name string) ([]string, error)
	SavePlaylist(ctx context.Context, name string, files []string) error
	DeletePlaylist(ctx context.Context, name string) error
}

type Option func(*options)

type options struct {
	patterns  fs.FS
	transport []transport.Option
	playlists PlaylistStore
}

// WithPatterns replaces the pattern directory.
func WithPatterns(fsys fs.FS) Option {
	return func(o *options) {
		o.patterns = fsys
	}
}

func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) {
		o.transport = append(o.transport, opts...)
	}
}

// WithPlaylistStore replaces the configured playlist backend.
func WithPlaylistStore(p PlaylistStore) Option {
	return func(o *options) {
		o.playlists = p
	}
}

type Controller struct {
	logger    *zap.Logger
	state     *state.Machine
	store     *store.Store
	library   *pattern.Library
	transport *transport.Transport
	engine    *engine.Engine
	bc        *broadcast.Broadcaster
	playlists PlaylistStore
	closers   []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.patterns == nil {
		o.patterns = os.DirFS(cfg.Patterns.Dir)
	}

	db, err := store.Open(cfg.State.Path)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		logger:  logger,
		state:   state.New(),
		store:   db,
		closers: []func() error{db.Close},
	}
	if saved, ok, err := db.LoadMachine(); err != nil {
		logger.Warn("Failed to load saved machine state", zap.Error(err))
	} else if ok {
		c.state.Restore(saved)
		logger.Info("Restored machine state",
			zap.Any("logical", saved.Logical), zap.Any("machine", saved.Machine))
	}

	switch {
	case o.playlists != nil:
		c.playlists = o.playlists
	case cfg.Playlists.Backend == config.BackendCouch:
		p, err := couch.Open(ctx, cfg.Playlists.CouchURI, cfg.Playlists.CouchDB)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		c.playlists = p
		c.closers = append(c.closers, p.Close)
	default:
		c.playlists = db
	}

	c.library = pattern.NewLibrary(o.patterns, logger.Named("patterns"))
	sel := pattern.NewSelector(cfg.Patterns.ClearSet, c.library, logger.Named("clear"))
	c.transport = transport.New(cfg.TransportConfig(), cfg.Calibration, c.state, logger.Named("transport"), o.transport...)
	c.bc = broadcast.New(c.state, cfg.Broadcast.Interval, logger.Named("broadcast"))
	c.engine = engine.New(c.transport, c.state, c.library, sel, cfg.Calibration, logger.Named("engine"),
		engine.WithSaver(db),
		engine.WithBroadcaster(c.bc),
	)
	return c, nil
}

func (c *Controller) Connect(ctx context.Context, port string) error {
	if err := c.transport.Connect(ctx, port); err != nil {
		return err
	}
	c.persist()
	return nil
}

func (c *Controller) Disconnect() error {
	if c.engine.Busy() {
		c.engine.Stop(true)
	}
	return c.transport.Disconnect()
}

// Home retracts the arm to the center. It is rejected while a pattern runs.
func (c *Controller) Home(ctx context.Context) error {
	err := c.engine.Exclusive(ctx, c.transport.Home)
	if err == nil {
		c.persist()
	}
	return err
}

func (c *Controller) RunFile(name string) error {
	return c.engine.RunFile(name)
}

func (c *Controller) RunFiles(files []string, opts engine.PlaylistOptions) error {
	return c.engine.RunFiles(files, opts)
}

// RunPlaylist runs a stored playlist by name.
func (c *Controller) RunPlaylist(ctx context.Context, name string, opts engine.PlaylistOptions) error {
	files, err := c.playlists.GetPlaylist(ctx, name)
	if err != nil {
		return err
	}
	return c.engine.RunFiles(files, opts)
}

func (c *Controller) Pause() {
	c.engine.Pause()
}

func (c *Controller) Resume() {
	c.engine.Resume()
}

// Stop aborts the running pattern and the playlist around it.
func (c *Controller) Stop() {
	c.engine.Stop(true)
}

func (c *Controller) Skip() bool {
	return c.engine.Skip()
}

func (c *Controller) MoveTo(ctx context.Context, theta, rho float64) error {
	return c.engine.MoveTo(ctx, theta, rho)
}

// Wait blocks until the running job, if any, ends.
func (c *Controller) Wait(ctx context.Context) error {
	return c.engine.Wait(ctx)
}

type Status struct {
	state.Snapshot
	Connected bool            `json:"connected"`
	Port      string          `json:"port,omitempty"`
	Device    grbl.DeviceInfo `json:"device"`
}

func (c *Controller) Status() Status {
	return Status{
		Snapshot:  c.state.Snapshot(),
		Connected: c.transport.Connected(),
		Port:      c.transport.Port(),
		Device:    c.transport.Device(),
	}
}

func (c *Controller) ListFiles() ([]string, error) {
	return c.library.List()
}

func (c *Controller) ListPorts() ([]string, error) {
	return c.transport.Ports()
}

func (c *Controller) Playlists() PlaylistStore {
	return c.playlists
}

// Subscribe registers s for progress snapshots while patterns run.
func (c *Controller) Subscribe(s broadcast.Subscriber) string {
	return c.bc.Subscribe(s)
}

func (c *Controller) Unsubscribe(id string) {
	c.bc.Unsubscribe(id)
}

func (c *Controller) persist() {
	if err := c.store.SaveMachine(c.state.Persisted()); err != nil {
		c.logger.Warn("Failed to persist machine state", zap.Error(err))
	}
}

// Shutdown stops any run, persists the machine state and releases the link
// and stores. Every step runs even when an earlier one failed.
func (c *Controller) Shutdown(ctx context.Context) error {
	var errs []error
	if err := c.engine.Close(ctx); err != nil {
		c.logger.Warn("Run did not stop in time", zap.Error(err))
		errs = append(errs, err)
	}
	if err := c.store.SaveMachine(c.state.Persisted()); err != nil {
		c.logger.Warn("Failed to persist machine state", zap.Error(err))
		errs = append(errs, err)
	}
	if err := c.transport.Disconnect(); err != nil {
		c.logger.Warn("Failed to release link", zap.Error(err))
		errs = append(errs, err)
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.WrapWithCode(stderrors.Join(errs...), errors.ErrShutdown,
			"shutdown completed with errors", "")
	}
	c.logger.Info("Shut down")
	return nil
}
