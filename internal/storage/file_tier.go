package storage

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/minio/crc64nvme"
)

const entryExt = ".entry"

// FileTier is a DurableTier backed by one file per key. Values are framed
// with a CRC64-NVMe checksum so torn or tampered writes are detected on
// read. Files are written via temp-file + atomic rename. Multiple
// processes may share a directory; pair with Watcher for convergence.
type FileTier struct {
	dir string
}

var _ DurableTier = (*FileTier)(nil)

// NewFileTier creates a file tier rooted at dir, creating it if needed.
func NewFileTier(dir string) (*FileTier, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", classifyFSError(err))
	}
	return &FileTier{dir: dir}, nil
}

// Dir returns the backing directory.
func (t *FileTier) Dir() string {
	return t.dir
}

func (t *FileTier) path(key string) string {
	return filepath.Join(t.dir, url.PathEscape(key)+entryExt)
}

func keyFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, entryExt) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, entryExt))
	if err != nil {
		return "", false
	}
	return key, true
}

// Get reads and verifies the value for key.
func (t *FileTier) Get(key string) (string, error) {
	data, err := os.ReadFile(t.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", classifyFSError(err)
	}
	return unframe(data)
}

// Set writes the framed value for key atomically.
func (t *FileTier) Set(key, value string) error {
	path := t.path(key)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, frame(value), 0600); err != nil {
		return classifyFSError(err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return classifyFSError(err)
	}

	return nil
}

// Remove deletes the entry for key. Removing an absent key is not an
// error.
func (t *FileTier) Remove(key string) error {
	if err := os.Remove(t.path(key)); err != nil && !os.IsNotExist(err) {
		return classifyFSError(err)
	}
	return nil
}

// Keys lists stored keys carrying the given prefix.
func (t *FileTier) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, classifyFSError(err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := keyFromFilename(entry.Name())
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// Close is a no-op; files are flushed on every write.
func (t *FileTier) Close() error {
	return nil
}

// computeCRC64 computes the CRC64-NVME checksum of data.
func computeCRC64(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}

// frame prepends a hex CRC64-NVME checksum and a newline to the value.
func frame(value string) []byte {
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], computeCRC64([]byte(value)))

	framed := make([]byte, 0, 17+len(value))
	framed = append(framed, hex.EncodeToString(sum[:])...)
	framed = append(framed, '\n')
	framed = append(framed, value...)
	return framed
}

// unframe verifies the checksum and returns the value.
func unframe(data []byte) (string, error) {
	if len(data) < 17 || data[16] != '\n' {
		return "", ErrCorrupt
	}

	sumBytes, err := hex.DecodeString(string(data[:16]))
	if err != nil {
		return "", ErrCorrupt
	}

	value := data[17:]
	if computeCRC64(value) != binary.BigEndian.Uint64(sumBytes) {
		return "", ErrCorrupt
	}

	return string(value), nil
}

// classifyFSError maps filesystem failures onto the tier sentinels so
// the adapter can tell "disk full" from "not allowed".
func classifyFSError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case errors.Is(err, fs.ErrPermission),
		errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.EPERM):
		return fmt.Errorf("%w: %v", ErrRestricted, err)
	}

	return err
}
