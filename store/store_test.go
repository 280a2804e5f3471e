package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/kinematics"
	"github.com/jt05610/sandtable/state"
	"github.com/jt05610/sandtable/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "sandtable.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	return s, path
}

func TestMachineState(t *testing.T) {
	s, path := open(t)
	_, ok, err := s.LoadMachine()
	require.NoError(t, err)
	assert.False(t, ok)

	want := state.Persisted{
		Logical: kinematics.Polar{Theta: 12.5, Rho: 0.3},
		Machine: kinematics.Position{X: -994.869, Y: -321.861},
	}
	require.NoError(t, s.SaveMachine(want))
	require.NoError(t, s.Close())

	s, err = store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, ok, err := s.LoadMachine()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestPlaylists(t *testing.T) {
	s, _ := open(t)
	defer s.Close()
	ctx := context.Background()

	names, err := s.ListPlaylists(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.SavePlaylist(ctx, "night", []string{"star.thr", "custom/spiral.thr"}))
	require.NoError(t, s.SavePlaylist(ctx, "morning", []string{"star.thr"}))
	require.NoError(t, s.SavePlaylist(ctx, "night", []string{"custom/spiral.thr"}))

	names, err = s.ListPlaylists(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"morning", "night"}, names)

	files, err := s.GetPlaylist(ctx, "night")
	require.NoError(t, err)
	assert.Equal(t, []string{"custom/spiral.thr"}, files)

	_, err = s.GetPlaylist(ctx, "noon")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	require.NoError(t, s.DeletePlaylist(ctx, "night"))
	err = s.DeletePlaylist(ctx, "night")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	err = s.SavePlaylist(ctx, "", nil)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
