package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/85Ryan/Nebula/internal/ttypes"
	"github.com/charmbracelet/log"
)

// Manager coordinates the memory and disk tiers. Reads fall through from
// memory to disk and promote disk hits. Writes go to both tiers; the last
// write for a key wins.
type Manager struct {
	memory *memoryTier
	disk   *diskTier
	config Config
	now    func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New creates a Manager and starts the cleanup loop if configured.
func New(config Config) (*Manager, error) {
	if config.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	d := DefaultConfig(config.Dir)
	if config.MemoryCapacity <= 0 {
		config.MemoryCapacity = d.MemoryCapacity
	}
	if config.DiskCapacity <= 0 {
		config.DiskCapacity = d.DiskCapacity
	}

	disk, err := newDiskTier(config.Dir, config.DiskCapacity, config.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	m := &Manager{
		memory: newMemoryTier(config.MemoryCapacity),
		disk:   disk,
		config: config,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		m.wg.Add(1)
		go m.cleanupLoop(config.CleanupInterval)
	}

	log.Debug("Preview cache opened", "dir", config.Dir, "entries", disk.snapshot().Items)
	return m, nil
}

// PreviewKey is the cache key of a voice preview.
func PreviewKey(voice ttypes.Voice) string {
	return "preview:" + string(voice) + ":" + ttypes.PreviewText
}

// Get returns the value for key or ErrCacheMiss.
func (m *Manager) Get(key string) ([]byte, error) {
	if data, ok := m.memory.get(key); ok {
		m.count(true, false)
		return data, nil
	}
	if data, ok := m.disk.get(key, m.now()); ok {
		m.count(true, true)
		if err := m.memory.put(key, data, m.now()); err != nil && !errors.Is(err, ErrItemTooLarge) {
			log.Debug("Failed to promote cache entry", "key", key, "error", err)
		}
		return data, nil
	}
	m.count(false, false)
	return nil, ErrCacheMiss
}

// Put stores value under key in both tiers.
func (m *Manager) Put(key string, value []byte) error {
	now := m.now()
	memErr := m.memory.put(key, value, now)
	if memErr != nil && !errors.Is(memErr, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", memErr)
	}
	if err := m.disk.put(key, value, now); err != nil {
		if errors.Is(err, ErrItemTooLarge) && memErr == nil {
			return nil
		}
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) error {
	m.memory.remove(key)
	return m.disk.remove(key)
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	m.memory.clear()
	return m.disk.clear()
}

// GetPreview returns the cached preview WAV for voice.
func (m *Manager) GetPreview(_ context.Context, voice ttypes.Voice) ([]byte, bool) {
	data, err := m.Get(PreviewKey(voice))
	return data, err == nil
}

// PutPreview stores a preview WAV for voice.
func (m *Manager) PutPreview(_ context.Context, voice ttypes.Voice, wav []byte) error {
	return m.Put(PreviewKey(voice), wav)
}

// DeletePreview forgets the preview for voice.
func (m *Manager) DeletePreview(voice ttypes.Voice) error {
	return m.Delete(PreviewKey(voice))
}

// Stats returns a snapshot of the counters of both tiers.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := m.stats
	m.mu.Unlock()
	s.Memory = m.memory.snapshot()
	s.Disk = m.disk.snapshot()
	return s
}

// Cleanup removes entries older than the TTL.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	m.stats.Cleanups++
	m.stats.LastClean = m.now()
	m.mu.Unlock()

	if m.config.TTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.config.TTL)
	m.memory.prune(cutoff)
	n, err := m.disk.removeOlderThan(cutoff)
	if err != nil {
		log.Warn("Preview cache cleanup failed", "error", err)
	}
	if n > 0 {
		log.Debug("Removed expired previews", "count", n)
	}
	return n
}

// Close stops the cleanup loop and saves the disk index.
func (m *Manager) Close() error {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.wg.Wait()

	if err := m.disk.close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}

func (m *Manager) cleanupLoop(every time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) count(hit, promoted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.stats.Hits++
	} else {
		m.stats.Misses++
	}
	if promoted {
		m.stats.Promotions++
	}
}
