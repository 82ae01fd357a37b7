package storage

import (
	"context"
	"io"
	"os"
	"path"
	"sort"

	"github.com/spf13/afero"
)

// AferoStore implements Store over an afero filesystem.
type AferoStore struct {
	fs afero.Fs
}

var _ Store = (*AferoStore)(nil)

// NewAferoStore creates a new AferoStore.
func NewAferoStore(fs afero.Fs) *AferoStore {
	return &AferoStore{fs: fs}
}

// New returns a store rooted at root on the OS filesystem, or an in-memory
// store when root is empty.
func New(root string) *AferoStore {
	if root == "" {
		return NewAferoStore(afero.NewMemMapFs())
	}
	return NewAferoStore(afero.NewBasePathFs(afero.NewOsFs(), root))
}

// Save writes the content of the reader to the given path, creating parent
// directories as needed.
func (s *AferoStore) Save(ctx context.Context, p string, reader io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.fs.MkdirAll(path.Dir(p), 0755); err != nil {
		return 0, err
	}
	f, err := s.fs.Create(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, reader)
}

// Get opens a file for reading.
func (s *AferoStore) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	return s.fs.OpenFile(p, os.O_RDONLY, 0)
}

// Exists reports whether a file or directory exists at p.
func (s *AferoStore) Exists(ctx context.Context, p string) (bool, error) {
	return afero.Exists(s.fs, p)
}

// List returns the sorted names of the entries directly under dir.
func (s *AferoStore) List(ctx context.Context, dir string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a file, or a directory and everything below it.
func (s *AferoStore) Delete(ctx context.Context, p string) error {
	return s.fs.RemoveAll(p)
}
