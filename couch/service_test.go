package couch_test

import (
	"context"
	"os"
	"testing"

	"github.com/go-kivik/kivik/v3"
	"github.com/jt05610/sandtable/couch"
	"github.com/jt05610/sandtable/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setUp(t *testing.T, name string) *couch.Playlists {
	uri, ok := os.LookupEnv("SANDTABLE_PLAYLISTS_COUCH_URI")
	if !ok {
		t.Skip("SANDTABLE_PLAYLISTS_COUCH_URI not set")
	}
	client, err := kivik.New("couch", uri)
	require.NoError(t, err)
	_ = client.DestroyDB(context.Background(), name)

	p, err := couch.Open(context.Background(), uri, name)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.DestroyDB(context.Background(), name)
		_ = p.Close()
	})
	return p
}

func TestPlaylists(t *testing.T) {
	p := setUp(t, "sandtable_test_playlists")
	ctx := context.Background()

	require.NoError(t, p.SavePlaylist(ctx, "night", []string{"star.thr"}))
	require.NoError(t, p.SavePlaylist(ctx, "night", []string{"star.thr", "custom/spiral.thr"}))
	require.NoError(t, p.SavePlaylist(ctx, "morning", []string{"star.thr"}))

	names, err := p.ListPlaylists(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"morning", "night"}, names)

	files, err := p.GetPlaylist(ctx, "night")
	require.NoError(t, err)
	assert.Equal(t, []string{"star.thr", "custom/spiral.thr"}, files)

	require.NoError(t, p.DeletePlaylist(ctx, "night"))
	_, err = p.GetPlaylist(ctx, "night")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
	assert.True(t, errors.IsCode(p.DeletePlaylist(ctx, "night"), errors.ErrNotFound))
}
