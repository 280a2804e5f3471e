// Package couch stores named playlists in a CouchDB database, one document per playlist.
package couch

import (
	"context"
	"net/http"
	"sort"
	"strings"

	_ "github.com/go-kivik/couchdb/v3"
	"github.com/go-kivik/kivik/v3"
	"github.com/jt05610/sandtable/errors"
)

type Playlists struct {
	cancel func()
	db     *kivik.DB
}

type playlistDoc struct {
	ID    string   `json:"_id"`
	Rev   string   `json:"_rev,omitempty"`
	Files []string `json:"files"`
}

// Open connects to uri and creates the database name when missing.
func Open(ctx context.Context, uri string, name string) (*Playlists, error) {
	client, err := kivik.New("couch", uri)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to create CouchDB client", "Check playlists.couch_uri")
	}
	dbs, err := client.AllDBs(ctx)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to reach CouchDB", "Check that CouchDB is running and the credentials are valid")
	}
	found := false
	for _, db := range dbs {
		if db == name {
			found = true
			break
		}
	}
	if !found {
		err = client.CreateDB(ctx, name)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to create database "+name, "")
		}
	}
	dbCtx, cancel := context.WithCancel(context.Background())
	db := client.DB(dbCtx, name)
	if err := db.Err(); err != nil {
		cancel()
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to open database "+name, "")
	}
	return &Playlists{cancel: cancel, db: db}, nil
}

func (p *Playlists) Close() error {
	p.cancel()
	return nil
}

func (p *Playlists) ListPlaylists(ctx context.Context) ([]string, error) {
	rows, err := p.db.AllDocs(ctx)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to list playlists", "")
	}
	defer rows.Close()
	names := make([]string, 0)
	for rows.Next() {
		if strings.HasPrefix(rows.ID(), "_design/") {
			continue
		}
		names = append(names, rows.ID())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to list playlists", "")
	}
	sort.Strings(names)
	return names, nil
}

func (p *Playlists) get(ctx context.Context, name string) (*playlistDoc, error) {
	var doc playlistDoc
	row := p.db.Get(ctx, name)
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.StatusCode(err) == http.StatusNotFound {
			return nil, errors.NotFound("playlist", name)
		}
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to read playlist "+name, "")
	}
	doc.Rev = row.Rev
	return &doc, nil
}

func (p *Playlists) GetPlaylist(ctx context.Context, name string) ([]string, error) {
	doc, err := p.get(ctx, name)
	if err != nil {
		return nil, err
	}
	return doc.Files, nil
}

func (p *Playlists) SavePlaylist(ctx context.Context, name string, files []string) error {
	if name == "" {
		return errors.New(errors.ErrConfig, "playlist name is empty", "")
	}
	doc := &playlistDoc{ID: name, Files: files}
	if cur, err := p.get(ctx, name); err == nil {
		doc.Rev = cur.Rev
	} else if !errors.IsCode(err, errors.ErrNotFound) {
		return err
	}
	if _, err := p.db.Put(ctx, name, doc); err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "failed to save playlist "+name, "")
	}
	return nil
}

func (p *Playlists) DeletePlaylist(ctx context.Context, name string) error {
	doc, err := p.get(ctx, name)
	if err != nil {
		return err
	}
	if _, err := p.db.Delete(ctx, name, doc.Rev); err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "failed to delete playlist "+name, "")
	}
	return nil
}
