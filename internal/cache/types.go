package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the tier capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheMiss is returned when an item is not found in any tier
	ErrCacheMiss = errors.New("cache miss")
)

// Level identifies a cache tier.
type Level int

const (
	// LevelMemory is the in-process LRU tier
	LevelMemory Level = iota

	// LevelDisk is the persistent tier
	LevelDisk
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// TierStats holds the counters of one tier.
type TierStats struct {
	Capacity  int64
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRate returns hits / (hits + misses).
func (s TierStats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Stats aggregates both tiers.
type Stats struct {
	Memory     TierStats
	Disk       TierStats
	Hits       int64
	Misses     int64
	Promotions int64
	Cleanups   int64
	LastClean  time.Time
}

// Config holds cache configuration.
type Config struct {
	// Dir holds the disk tier. Required.
	Dir string

	// MemoryCapacity and DiskCapacity are in bytes
	MemoryCapacity int64
	DiskCapacity   int64

	// CompressionLevel is the zstd level (1-22). 0 disables compression.
	CompressionLevel int

	// TTL is how long an entry lives. 0 keeps entries forever.
	TTL time.Duration

	// CleanupInterval is how often expired entries are removed. 0 disables
	// the background cleanup.
	CleanupInterval time.Duration
}

// DefaultConfig returns the defaults for a cache rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		MemoryCapacity:   32 << 20,
		DiskCapacity:     256 << 20,
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}
