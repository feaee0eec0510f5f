package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "previews.index"

// diskTier keeps one file per entry plus a gob index.
type diskTier struct {
	mu       sync.Mutex
	dir      string
	capacity int64
	size     int64
	index    map[string]*diskEntry
	stats    TierStats

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// diskEntry is persisted in the index, so its fields are exported.
type diskEntry struct {
	Key        string
	File       string // relative to dir
	DiskSize   int64
	RawSize    int64
	Stored     time.Time
	LastAccess time.Time
	Compressed bool
}

func newDiskTier(dir string, capacity int64, level int) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	d := &diskTier{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
	}
	if level > 0 {
		var err error
		d.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		d.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := d.loadIndex(); err != nil {
		log.Warn("Discarding unreadable preview cache index", "dir", dir, "error", err)
		d.index = make(map[string]*diskEntry)
	}
	for _, e := range d.index {
		d.size += e.DiskSize
	}
	return d, nil
}

func (d *diskTier) get(key string, now time.Time) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(d.dir, e.File))
	if err == nil && e.Compressed {
		if d.decoder == nil {
			err = errors.New("compressed entry but compression is disabled")
		} else {
			data, err = d.decoder.DecodeAll(data, nil)
		}
	}
	if err != nil {
		log.Debug("Dropping unreadable cache entry", "key", key, "error", err)
		d.removeLocked(e)
		d.stats.Misses++
		return nil, false
	}

	e.LastAccess = now
	d.stats.Hits++
	return data, true
}

func (d *diskTier) put(key string, value []byte, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, compressed := value, false
	if d.encoder != nil {
		// WAV headers and silence compress well, speech much less so
		if z := d.encoder.EncodeAll(value, nil); len(z) < len(value) {
			data, compressed = z, true
		}
	}

	n := int64(len(data))
	if n > d.capacity {
		return ErrItemTooLarge
	}
	if old, ok := d.index[key]; ok {
		d.removeLocked(old)
	}
	d.evictLocked(d.capacity - n)

	e := &diskEntry{
		Key:        key,
		File:       fileName(key),
		DiskSize:   n,
		RawSize:    int64(len(value)),
		Stored:     now,
		LastAccess: now,
		Compressed: compressed,
	}
	if err := writeAtomic(filepath.Join(d.dir, e.File), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	d.index[key] = e
	d.size += n
	return d.saveIndexLocked()
}

func (d *diskTier) remove(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.index[key]; ok {
		d.removeLocked(e)
		return d.saveIndexLocked()
	}
	return nil
}

func (d *diskTier) clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.index {
		d.removeLocked(e)
	}
	return d.saveIndexLocked()
}

// removeOlderThan drops entries stored before cutoff.
func (d *diskTier) removeOlderThan(cutoff time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, e := range d.index {
		if e.Stored.Before(cutoff) {
			d.removeLocked(e)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, d.saveIndexLocked()
}

func (d *diskTier) snapshot() TierStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Capacity = d.capacity
	s.Size = d.size
	s.Items = len(d.index)
	return s
}

func (d *diskTier) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.encoder != nil {
		_ = d.encoder.Close()
		d.encoder = nil
	}
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder = nil
	}
	return d.saveIndexLocked()
}

// evictLocked drops least recently used entries until size <= target.
func (d *diskTier) evictLocked(target int64) {
	if d.size <= target {
		return
	}
	entries := make([]*diskEntry, 0, len(d.index))
	for _, e := range d.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	for _, e := range entries {
		if d.size <= target {
			break
		}
		d.removeLocked(e)
		d.stats.Evictions++
	}
}

func (d *diskTier) removeLocked(e *diskEntry) {
	if err := os.Remove(filepath.Join(d.dir, e.File)); err != nil && !os.IsNotExist(err) {
		log.Debug("Failed to remove cache file", "file", e.File, "error", err)
	}
	delete(d.index, e.Key)
	d.size -= e.DiskSize
}

func (d *diskTier) loadIndex() error {
	f, err := os.Open(filepath.Join(d.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close() //nolint:errcheck
	return gob.NewDecoder(f).Decode(&d.index)
}

func (d *diskTier) saveIndexLocked() error {
	f, err := os.CreateTemp(d.dir, indexFile+".*")
	if err != nil {
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	tmp := f.Name()
	if err := gob.NewEncoder(f).Encode(d.index); err != nil {
		f.Close()      //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	return os.Rename(tmp, filepath.Join(d.dir, indexFile))
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".wav.cache"
}

// writeAtomic writes to a temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()      //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	return os.Rename(tmp, path)
}
