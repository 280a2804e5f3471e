package pattern

import (
	stderrors "errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jt05610/sandtable/errors"
	"go.uber.org/zap"
)

// Source resolves pattern references to readable content.
type Source interface {
	Open(name string) (io.ReadCloser, error)
}

// Library is a Source backed by a file system tree of pattern files.
type Library struct {
	fsys   fs.FS
	logger *zap.Logger
}

var _ Source = (*Library)(nil)

func NewLibrary(fsys fs.FS, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{fsys: fsys, logger: logger}
}

func clean(name string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
}

// Open returns the content of a pattern. Missing references yield a NOT_FOUND error.
func (l *Library) Open(name string) (io.ReadCloser, error) {
	f, err := l.fsys.Open(clean(name))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, fs.ErrInvalid) {
			return nil, errors.NotFound("pattern", name)
		}
		return nil, errors.WrapWithCode(err, errors.ErrNotFound, "Cannot open pattern "+name, "")
	}
	st, err := f.Stat()
	if err == nil && st.IsDir() {
		_ = f.Close()
		return nil, errors.NotFound("pattern", name)
	}
	return f, nil
}

// List returns every pattern in the tree as sorted slash-separated paths.
func (l *Library) List() ([]string, error) {
	files := make([]string, 0)
	err := fs.WalkDir(l.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrNotFound, "Cannot list patterns", "Check the patterns directory exists")
	}
	sort.Strings(files)
	l.logger.Debug("Found theta-rho files", zap.Int("count", len(files)))
	return files, nil
}

// Load opens and parses a pattern from src.
func Load(src Source, name string, logger *zap.Logger) ([]Coordinate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc, err := src.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logger.Warn("Failed to close pattern", zap.String("file", name), zap.Error(err))
		}
	}()
	coords, err := Parse(rc, logger.With(zap.String("file", name)))
	if err != nil {
		logger.Error("Error reading file", zap.String("file", name), zap.Error(err))
		return coords, nil
	}
	logger.Debug("Parsed coordinates", zap.String("file", name), zap.Int("count", len(coords)))
	return coords, nil
}
