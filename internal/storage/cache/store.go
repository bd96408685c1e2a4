package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
)

// gzip member header magic, used to sniff compressed values on read.
var gzipMagic = []byte{0x1f, 0x8b}

// Recorder receives cache-level metric events. Nil is allowed.
type Recorder interface {
	IncCacheWrites()
	IncCacheCorruptions()
}

// Store is a namespaced key-value store backed by one file per
// (namespace, key). It is the gateway's analogue of the browser's
// localStorage: the transcript lives ONLY here, and clearing a namespace
// permanently loses conversation history even though lineage survives
// on the backend. That asymmetry is intentional.
//
// Reads are fail-open: a malformed value is reported as absent, never
// as an error, and heals on the next write. There is no cross-process
// locking; concurrent writers follow last-write-wins.
type Store struct {
	root      string
	threshold int
	metrics   Recorder
}

// New creates a store rooted at dir. Values larger than
// compressThreshold bytes are gzip-compressed transparently.
func New(dir string, compressThreshold int, metrics Recorder) *Store {
	return &Store{
		root:      dir,
		threshold: compressThreshold,
		metrics:   metrics,
	}
}

// Get reads the value for key in namespace ns into v. It returns false
// when the key is absent or the stored value is malformed.
func (s *Store) Get(ns, key string, v interface{}) bool {
	data, err := os.ReadFile(s.path(ns, key))
	if err != nil {
		return false
	}

	if bytes.HasPrefix(data, gzipMagic) {
		data, err = gunzip(data)
		if err != nil {
			s.corrupted()
			return false
		}
	}

	if err := sonic.Unmarshal(data, v); err != nil {
		s.corrupted()
		return false
	}
	return true
}

// Put writes the value for key in namespace ns. The write is atomic
// (temp file + rename) so a crash never leaves a half-written value.
func (s *Store) Put(ns, key string, v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	if s.threshold > 0 && len(data) > s.threshold {
		data, err = gzipBytes(data)
		if err != nil {
			return fmt.Errorf("failed to compress cache value: %w", err)
		}
	}

	path := s.path(ns, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache value: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit cache value: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncCacheWrites()
	}
	return nil
}

// Delete removes the value for key in namespace ns. Deleting an absent
// key is not an error.
func (s *Store) Delete(ns, key string) error {
	err := os.Remove(s.path(ns, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache value: %w", err)
	}
	return nil
}

func (s *Store) path(ns, key string) string {
	return filepath.Join(s.root, url.PathEscape(ns), url.PathEscape(key)+".json")
}

func (s *Store) corrupted() {
	if s.metrics != nil {
		s.metrics.IncCacheCorruptions()
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
