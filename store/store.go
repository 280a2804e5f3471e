// Package store persists the machine state and named playlists in a bolt database.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/state"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketMachine   = []byte("machine")
	bucketPlaylists = []byte("playlists")
)

var keyMachine = []byte("state")

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to create state directory", "")
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to open state database "+path,
			"Check that no other sandtable process holds the database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketMachine, bucketPlaylists} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to create buckets", "")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(bucket, key []byte, dest interface{}) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get(key); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return false, errors.WrapWithCode(err, errors.ErrStore, "failed to read "+string(key), "")
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrStore, "corrupt record "+string(key), "")
	}
	return true, nil
}

func (s *Store) put(bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "failed to encode "+string(key), "")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "failed to write "+string(key), "")
	}
	return nil
}

// LoadMachine returns the saved machine state, if any.
func (s *Store) LoadMachine() (state.Persisted, bool, error) {
	var p state.Persisted
	ok, err := s.get(bucketMachine, keyMachine, &p)
	return p, ok, err
}

func (s *Store) SaveMachine(p state.Persisted) error {
	return s.put(bucketMachine, keyMachine, p)
}

type playlistRecord struct {
	Files   []string  `json:"files"`
	Updated time.Time `json:"updated"`
}

func (s *Store) ListPlaylists(context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPlaylists).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "failed to list playlists", "")
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) GetPlaylist(_ context.Context, name string) ([]string, error) {
	var rec playlistRecord
	ok, err := s.get(bucketPlaylists, []byte(name), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NotFound("playlist", name)
	}
	return rec.Files, nil
}

func (s *Store) SavePlaylist(_ context.Context, name string, files []string) error {
	if name == "" {
		return errors.New(errors.ErrConfig, "playlist name is empty", "")
	}
	return s.put(bucketPlaylists, []byte(name), playlistRecord{Files: files, Updated: time.Now().UTC()})
}

func (s *Store) DeletePlaylist(_ context.Context, name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlaylists)
		if b.Get([]byte(name)) == nil {
			return errors.NotFound("playlist", name)
		}
		return b.Delete([]byte(name))
	})
	if errors.IsCode(err, errors.ErrNotFound) {
		return err
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore, "failed to delete playlist "+name, "")
	}
	return nil
}
