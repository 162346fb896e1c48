package kv

import (
	"container/list"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultMaxBytes        = 64 * 1024 * 1024
	DefaultMaxKeyLength    = 256
	DefaultMaxValueSize    = 256 * 1024
	DefaultCleanupInterval = 30 * time.Second
)

// Quotas cap how many live keys one namespace may hold so a flood of quote
// requests cannot evict every rate-limit counter.
var DefaultQuotas = map[string]int64{
	NamespaceQuotes:     50000,
	NamespaceRateLimits: 100000,
	NamespaceSeen:       200000,
	NamespaceSystem:     64,
}

type Options struct {
	MaxBytes        int64
	MaxKeyLength    int
	MaxValueSize    int
	CleanupInterval time.Duration
	Quotas          map[string]int64
}

type item struct {
	namespace string
	key       string
	value     []byte
	expiresAt time.Time
	size      int64
	elem      *list.Element
}

func (it *item) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// MemoryStore is an LRU-bounded map with per-entry TTLs and per-namespace quotas.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]*item
	lru     *list.List
	counts  map[string]int64
	bytes   int64
	opts    Options
	now     func() time.Time
	stopCh  chan struct{}
	stopped atomic.Bool
	hits    atomic.Int64
	misses  atomic.Int64
	evicted atomic.Int64
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithOptions(Options{})
}

func NewMemoryStoreWithOptions(opts Options) *MemoryStore {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxKeyLength <= 0 {
		opts.MaxKeyLength = DefaultMaxKeyLength
	}
	if opts.MaxValueSize <= 0 {
		opts.MaxValueSize = DefaultMaxValueSize
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Quotas == nil {
		opts.Quotas = DefaultQuotas
	}

	s := &MemoryStore{
		items:  make(map[string]*item),
		lru:    list.New(),
		counts: make(map[string]int64),
		opts:   opts,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) Get(namespace, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.liveLocked(namespace, key)
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	s.lru.MoveToFront(it.elem)

	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, true
}

func (s *MemoryStore) Set(namespace, key string, value []byte, ttl time.Duration) error {
	if err := s.check(namespace, key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(namespace, key, value, ttl)
}

func (s *MemoryStore) Delete(namespace, key string) error {
	if namespace == "" || key == "" {
		return ErrKeyEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[fullKey(namespace, key)]
	if !ok {
		return ErrKeyNotFound
	}
	s.removeLocked(it)
	return nil
}

func (s *MemoryStore) GetQuote(hash [32]byte) ([]byte, bool) {
	return s.Get(NamespaceQuotes, hex.EncodeToString(hash[:]))
}

func (s *MemoryStore) SetQuote(hash [32]byte, quote []byte, ttl time.Duration) error {
	return s.Set(NamespaceQuotes, hex.EncodeToString(hash[:]), quote, ttl)
}

// IncrementRateLimit counts a hit in principal's fixed window and returns the
// count so far plus when the window resets. The first hit opens the window.
func (s *MemoryStore) IncrementRateLimit(principal string, window time.Duration) (int64, time.Time, error) {
	if principal == "" {
		return 0, time.Time{}, ErrKeyEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.liveLocked(NamespaceRateLimits, principal); ok {
		count, err := strconv.ParseInt(string(it.value), 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("corrupt rate limit counter: %w", err)
		}
		count++
		it.value = []byte(strconv.FormatInt(count, 10))
		return count, it.expiresAt, nil
	}

	if err := s.putLocked(NamespaceRateLimits, principal, []byte("1"), window); err != nil {
		return 0, time.Time{}, err
	}
	return 1, s.items[fullKey(NamespaceRateLimits, principal)].expiresAt, nil
}

// Remember records key for ttl and reports whether it was new. Used to refuse
// replayed request ids.
func (s *MemoryStore) Remember(namespace, key string, ttl time.Duration) (bool, error) {
	if err := s.check(namespace, key, nil); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveLocked(namespace, key); ok {
		return false, nil
	}
	if err := s.putLocked(namespace, key, []byte{1}, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// SetLastSeq stores the indexer's feed cursor.
func (s *MemoryStore) SetLastSeq(seq uint64) error {
	return s.Set(NamespaceSystem, "last_seq", []byte(strconv.FormatUint(seq, 10)), 0)
}

func (s *MemoryStore) LastSeq() (uint64, bool) {
	raw, ok := s.Get(NamespaceSystem, "last_seq")
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func (s *MemoryStore) Keys(namespace string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var keys []string
	for _, it := range s.items {
		if it.namespace == namespace && !it.expired(now) {
			keys = append(keys, it.key)
		}
	}
	return keys
}

func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64, len(s.counts))
	var total int64
	for ns, n := range s.counts {
		counts[ns] = n
		total += n
	}

	return Stats{
		TotalKeys:       total,
		CurrentBytes:    s.bytes,
		MaxBytes:        s.opts.MaxBytes,
		Evictions:       s.evicted.Load(),
		Hits:            s.hits.Load(),
		Misses:          s.misses.Load(),
		NamespaceCounts: counts,
	}
}

func (s *MemoryStore) Close() error {
	if s.stopped.Swap(true) {
		return nil
	}
	close(s.stopCh)
	return nil
}

func (s *MemoryStore) check(namespace, key string, value []byte) error {
	switch {
	case namespace == "":
		return ErrNamespaceEmpty
	case key == "":
		return ErrKeyEmpty
	case len(key) > s.opts.MaxKeyLength:
		return ErrKeyTooLong
	case len(value) > s.opts.MaxValueSize:
		return ErrValueTooLarge
	}
	return nil
}

// liveLocked returns the entry if present and unexpired, dropping it otherwise.
func (s *MemoryStore) liveLocked(namespace, key string) (*item, bool) {
	it, ok := s.items[fullKey(namespace, key)]
	if !ok {
		return nil, false
	}
	if it.expired(s.now()) {
		s.removeLocked(it)
		return nil, false
	}
	return it, true
}

func (s *MemoryStore) putLocked(namespace, key string, value []byte, ttl time.Duration) error {
	fk := fullKey(namespace, key)
	size := int64(len(fk) + len(value) + 64)

	if old, ok := s.items[fk]; ok {
		s.removeLocked(old)
	} else if quota, ok := s.opts.Quotas[namespace]; ok && s.counts[namespace] >= quota {
		return ErrNamespaceQuota
	}

	for s.bytes+size > s.opts.MaxBytes {
		if !s.evictLocked() {
			return ErrMemoryLimit
		}
	}

	it := &item{
		namespace: namespace,
		key:       key,
		value:     append([]byte(nil), value...),
		size:      size,
	}
	if ttl > 0 {
		it.expiresAt = s.now().Add(ttl)
	}
	it.elem = s.lru.PushFront(it)
	s.items[fk] = it
	s.counts[namespace]++
	s.bytes += size
	return nil
}

func (s *MemoryStore) evictLocked() bool {
	back := s.lru.Back()
	if back == nil {
		return false
	}
	s.removeLocked(back.Value.(*item))
	s.evicted.Add(1)
	return true
}

func (s *MemoryStore) removeLocked(it *item) {
	s.lru.Remove(it.elem)
	delete(s.items, fullKey(it.namespace, it.key))
	s.bytes -= it.size
	s.counts[it.namespace]--
	if s.counts[it.namespace] <= 0 {
		delete(s.counts, it.namespace)
	}
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, it := range s.items {
		if it.expired(now) {
			s.removeLocked(it)
			removed++
		}
	}
	return removed
}

func fullKey(namespace, key string) string {
	return namespace + ":" + key
}
