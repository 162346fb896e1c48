// Package kv is the process-local cache behind quote lookups, API rate limits
// and the indexer's feed cursor.
package kv

import (
	"errors"
	"time"
)

var (
	ErrKeyTooLong     = errors.New("key exceeds maximum length")
	ErrKeyEmpty       = errors.New("key cannot be empty")
	ErrNamespaceEmpty = errors.New("namespace cannot be empty")
	ErrValueTooLarge  = errors.New("value exceeds maximum size")
	ErrMemoryLimit    = errors.New("memory limit exceeded")
	ErrKeyNotFound    = errors.New("key not found")
	ErrNamespaceQuota = errors.New("namespace quota exceeded")
	ErrClosed         = errors.New("store closed")
)

const (
	NamespaceQuotes     = "quotes"
	NamespaceRateLimits = "rate_limits"
	NamespaceSeen       = "seen"
	NamespaceSystem     = "system"
)

type Store interface {
	Get(namespace, key string) ([]byte, bool)
	Set(namespace, key string, value []byte, ttl time.Duration) error
	Delete(namespace, key string) error
	GetQuote(hash [32]byte) ([]byte, bool)
	SetQuote(hash [32]byte, quote []byte, ttl time.Duration) error
	IncrementRateLimit(principal string, window time.Duration) (int64, time.Time, error)
	Remember(namespace, key string, ttl time.Duration) (bool, error)
	Stats() Stats
	Close() error
}

type Stats struct {
	TotalKeys       int64
	CurrentBytes    int64
	MaxBytes        int64
	Evictions       int64
	Hits            int64
	Misses          int64
	NamespaceCounts map[string]int64
}
