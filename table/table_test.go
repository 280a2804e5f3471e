package table_test

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jt05610/sandtable/config"
	"github.com/jt05610/sandtable/engine"
	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/store"
	"github.com/jt05610/sandtable/table"
	"github.com/jt05610/sandtable/transport"
	"github.com/jt05610/sandtable/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var patterns = fstest.MapFS{
	"e2e.thr":            {Data: []byte("0 0\n1.57 0.5\n3.14 1.0\n")},
	"custom/spiral.thr":  {Data: []byte("0 0.1\n3 0.5\n6 0.9\n")},
	"clear_from_in.thr":  {Data: []byte("0 0\n10 1\n")},
	"clear_from_out.thr": {Data: []byte("0 1\n10 0\n")},
	"clear_sideway.thr":  {Data: []byte("0 0\n0 1\n")},
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	chdir(t, dir)
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.State.Path = filepath.Join(dir, "sandtable.db")
	cfg.Transport.AckTimeout = 200 * time.Millisecond
	cfg.Transport.RetryInterval = 5 * time.Millisecond
	cfg.Transport.StatusInterval = 20 * time.Millisecond
	cfg.Transport.BannerWait = 10 * time.Millisecond
	cfg.Broadcast.Interval = 10 * time.Millisecond
	return cfg
}

func newController(t *testing.T, cfg *config.Config, fw *transporttest.Firmware) *table.Controller {
	t.Helper()
	c, err := table.New(context.Background(), cfg, zaptest.NewLogger(t),
		table.WithPatterns(patterns),
		table.WithTransportOptions(
			transport.WithDialer(fw.Dial),
			transport.WithPortLister(func([]string) ([]string, error) {
				return []string{"/dev/ttyTEST0"}, nil
			}),
		),
	)
	require.NoError(t, err)
	return c
}

func wait(t *testing.T, c *table.Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestControllerRunAndRestore(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	fw := transporttest.New("Table: Dune Weaver")
	c := newController(t, cfg, fw)

	require.NoError(t, c.Connect(context.Background(), ""))
	status := c.Status()
	assert.True(t, status.Connected)
	assert.Equal(t, "/dev/ttyTEST0", status.Port)
	assert.Equal(t, "Dune Weaver", status.Device.Table)

	files, err := c.ListFiles()
	require.NoError(t, err)
	assert.Contains(t, files, "custom/spiral.thr")

	require.NoError(t, c.RunFile("e2e.thr"))
	wait(t, c)
	assert.Equal(t, 3, fw.Count("G1"))
	status = c.Status()
	require.NotNil(t, status.LastRun)
	assert.Equal(t, 3, status.LastRun.Completed)
	assert.False(t, status.Running)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, c.Status().Connected)

	db, err := store.Open(cfg.State.Path)
	require.NoError(t, err)
	saved, ok, err := db.LoadMachine()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, db.Close())
	x, y := fw.Position()
	assert.InDelta(t, x, saved.Machine.X, 1e-9)
	assert.InDelta(t, y, saved.Machine.Y, 1e-9)

	fw2 := transporttest.New()
	fw2.SetPosition(x, y)
	c2 := newController(t, cfg, fw2)
	defer c2.Shutdown(context.Background())
	require.NoError(t, c2.Connect(context.Background(), ""))
	assert.Zero(t, fw2.Count("$J"), "restored position should skip homing")
	assert.Equal(t, saved.Logical, c2.Status().Position)
}

func TestControllerPlaylists(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	fw := transporttest.New()
	c := newController(t, cfg, fw)
	defer c.Shutdown(context.Background())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, ""))

	require.NoError(t, c.Playlists().SavePlaylist(ctx, "evening", []string{"e2e.thr", "custom/spiral.thr"}))
	require.NoError(t, c.RunPlaylist(ctx, "evening", engine.PlaylistOptions{ClearMode: "clear_from_in"}))
	wait(t, c)
	assert.Equal(t, 2+3+2+3, fw.Count("G1"))
	assert.Nil(t, c.Status().Playlist)

	err := c.RunPlaylist(ctx, "missing", engine.PlaylistOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestControllerHomeAndMove(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	fw := transporttest.New()
	c := newController(t, cfg, fw)
	defer c.Shutdown(context.Background())
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, ""))

	require.NoError(t, c.MoveTo(ctx, 3.14, 0.5))
	assert.Equal(t, 1, fw.Count("G1"))
	assert.Equal(t, 0.5, c.Status().Position.Rho)

	require.NoError(t, c.Home(ctx))
	assert.Equal(t, 1, fw.Count("$J"))
	assert.Zero(t, c.Status().Position.Rho)
}

func TestControllerNotConnected(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	c := newController(t, cfg, transporttest.New())
	defer c.Shutdown(context.Background())

	err := c.MoveTo(context.Background(), 1, 0.5)
	assert.True(t, errors.IsCode(err, errors.ErrConnection))
	c.Stop()
	assert.False(t, c.Skip())
	assert.False(t, c.Status().Running)
}
