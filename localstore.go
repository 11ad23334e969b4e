package blogvault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalDocumentStore keeps collection documents as JSON files in a data
// directory. It is the development and single-box deployment backend.
type LocalDocumentStore struct {
	dir string

	// Serializes conditional saves so the revision check and the write are
	// one step. This only protects against racing writers inside this
	// process; the blob backend has the same caveat at the storage level.
	mu sync.Mutex
}

// NewLocalDocumentStore creates the data directory if needed.
func NewLocalDocumentStore(dir string) (*LocalDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &LocalDocumentStore{dir: dir}, nil
}

func (s *LocalDocumentStore) Load(_ context.Context, name string, def []byte) ([]byte, Revision, error) {
	path := filepath.Join(s.dir, filepath.Base(name))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// First access creates the document with its default value.
		if werr := writeFileAtomic(path, def); werr != nil {
			return nil, AnyRevision, fmt.Errorf("%w: init %s: %v", ErrStorageUnavailable, name, werr)
		}
		return def, contentRevision(def), nil
	}
	if err != nil {
		return nil, AnyRevision, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, name, err)
	}
	return data, contentRevision(data), nil
}

func (s *LocalDocumentStore) Save(_ context.Context, name string, data []byte, rev Revision) (Revision, error) {
	path := filepath.Join(s.dir, filepath.Base(name))

	s.mu.Lock()
	defer s.mu.Unlock()

	if rev != AnyRevision {
		current, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return AnyRevision, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, name, err)
		}
		if err == nil && contentRevision(current) != rev {
			return AnyRevision, fmt.Errorf("%w: %s", ErrConflict, name)
		}
	}

	if err := writeFileAtomic(path, data); err != nil {
		return AnyRevision, fmt.Errorf("%w: write %s: %v", ErrStorageUnavailable, name, err)
	}
	return contentRevision(data), nil
}

// contentRevision derives a revision token from the document bytes, standing
// in for the ETag the blob backend gets from its store.
func contentRevision(data []byte) Revision {
	sum := sha256.Sum256(data)
	return Revision(hex.EncodeToString(sum[:]))
}

// writeFileAtomic replaces path in one rename so readers never observe a
// partially written document.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// localObjectStore stores image objects under <dataDir>/images and serves
// them through the app's /images/:name route.
type localObjectStore struct {
	dir     string
	baseURL string
}

func newLocalObjectStore(dataDir, publicURL string) (*localObjectStore, error) {
	dir := filepath.Join(dataDir, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &localObjectStore{
		dir:     dir,
		baseURL: strings.TrimRight(publicURL, "/") + "/images",
	}, nil
}

func (s *localObjectStore) Put(_ context.Context, name string, data []byte, _, _ string) error {
	if err := os.WriteFile(filepath.Join(s.dir, filepath.Base(name)), data, 0o644); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStorageUnavailable, name, err)
	}
	return nil
}

func (s *localObjectStore) Get(_ context.Context, name string) ([]byte, string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if os.IsNotExist(err) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: get %s: %v", ErrStorageUnavailable, name, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

func (s *localObjectStore) Remove(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %v", ErrStorageUnavailable, name, err)
	}
	return nil
}

func (s *localObjectStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list images: %v", ErrStorageUnavailable, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *localObjectStore) URL(name string) string {
	return s.baseURL + "/" + name
}
