// Package cache stores synthesized voice previews. An in-memory LRU tier
// sits in front of a zstd-compressed disk tier that survives restarts.
package cache
