package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ktr0731/dynpb/meta"
	"github.com/pkg/errors"
	xdgbasedir "github.com/zchee/go-xdgbasedir"
)

var indexFileName = "index.toml"

// ErrCacheMiss is returned by Load if no entry matches the key.
var ErrCacheMiss = errors.New("cache miss")

// Entry is the index record of one stored descriptor set.
type Entry struct {
	File      string    `toml:"file"`
	Sources   []string  `toml:"sources"`
	CreatedAt time.Time `toml:"createdAt"`
}

type index struct {
	Entries map[string]Entry `toml:"entries"`
}

// Key computes the cache key for the passed proto source files. The key
// covers the import paths, the file names and the file contents, so that
// edits to any source invalidate previously stored entries.
func Key(importPaths, fnames []string) (string, error) {
	h := sha256.New()
	for _, p := range importPaths {
		io.WriteString(h, p)
		h.Write([]byte{0})
	}
	for _, fname := range fnames {
		resolved, err := resolveSource(importPaths, fname)
		if err != nil {
			return "", err
		}
		b, err := os.ReadFile(resolved)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read the proto file %s", resolved)
		}
		io.WriteString(h, fname)
		h.Write([]byte{0})
		h.Write(b)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolveSource finds the actual location of fname the same way the
// compiler does: absolute names are used as is, relative names are tried
// against each import path, then against the working directory.
func resolveSource(importPaths []string, fname string) (string, error) {
	if filepath.IsAbs(fname) {
		if _, err := os.Stat(fname); err != nil {
			return "", errors.Wrapf(err, "failed to resolve the proto file %s", fname)
		}
		return fname, nil
	}
	for _, p := range importPaths {
		candidate := filepath.Join(p, fname)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if _, err := os.Stat(fname); err == nil {
		return fname, nil
	}
	return "", errors.Errorf("failed to resolve the proto file %s", fname)
}

// Load returns the descriptor set bytes stored under key.
// It returns ErrCacheMiss if no entry matches key.
func Load(key string) ([]byte, error) {
	idx, err := loadIndex()
	if err != nil {
		return nil, err
	}
	e, ok := idx.Entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	b, err := os.ReadFile(filepath.Join(resolveDir(), e.File))
	if os.IsNotExist(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the cached descriptor set")
	}
	return b, nil
}

// Store writes data under key and records the originating sources in the
// index.
func Store(key string, sources []string, data []byte) error {
	idx, err := loadIndex()
	if err != nil {
		return err
	}

	dir := resolveDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create the cache dir")
	}
	fname := key + ".bin"
	if err := os.WriteFile(filepath.Join(dir, fname), data, 0644); err != nil {
		return errors.Wrap(err, "failed to write the descriptor set")
	}

	idx.Entries[key] = Entry{
		File:      fname,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
	return saveIndex(idx)
}

// Clear removes the cache dir with all stored descriptor sets.
func Clear() error {
	return os.RemoveAll(resolveDir())
}

func resolveDir() string {
	return filepath.Join(xdgbasedir.CacheHome(), meta.AppName)
}

func indexPath() string {
	return filepath.Join(resolveDir(), indexFileName)
}

func loadIndex() (*index, error) {
	idx := &index{Entries: map[string]Entry{}}
	if _, err := toml.DecodeFile(indexPath(), idx); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to decode the cache index")
	}
	if idx.Entries == nil {
		idx.Entries = map[string]Entry{}
	}
	return idx, nil
}

func saveIndex(idx *index) error {
	f, err := os.Create(indexPath())
	if err != nil {
		return errors.Wrap(err, "failed to create the cache index")
	}
	defer f.Close()
	return errors.Wrap(toml.NewEncoder(f).Encode(idx), "failed to encode the cache index")
}
