package store

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/clock"
)

type memoryEntry struct {
	raw      []byte
	expireAt time.Time // zero means no expiry
}

type memorySortedSet struct {
	scores map[string]float64
}

// MemoryStore is an in-process Store, the Go equivalent of the original
// MockRedisClient: a map-backed key/value and set store with TTL, used in
// tests and anywhere a real Redis isn't available.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	sets map[string]map[string]struct{}
	zset map[string]*memorySortedSet

	subsMu sync.Mutex
	subs   map[string][]chan string

	published []PublishedMessage
	clk       clock.Clock
}

// PublishedMessage records one Publish call, for test assertions.
type PublishedMessage struct {
	Channel string
	Payload []byte
}

// NewMemoryStore returns an empty in-memory Store. clk drives TTL
// expiration so tests can advance time deterministically.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]memoryEntry),
		sets: make(map[string]map[string]struct{}),
		zset: make(map[string]*memorySortedSet),
		subs: make(map[string][]chan string),
		clk:  clk,
	}
}

// PublishedMessages returns every message published so far, for test
// verification, mirroring the original mock's get_published_messages.
func (s *MemoryStore) PublishedMessages() []PublishedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PublishedMessage, len(s.published))
	copy(out, s.published)
	return out
}

// ClearAll wipes every key, set, sorted set, and published message.
func (s *MemoryStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]memoryEntry)
	s.sets = make(map[string]map[string]struct{})
	s.zset = make(map[string]*memorySortedSet)
	s.published = nil
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expireAt.IsZero() && !s.clk.Now().Before(e.expireAt)
}

func (s *MemoryStore) Get(_ context.Context, key string, dst any) error {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok || s.expired(e) {
		return apperr.Wrap(apperr.KindNotFound, "key "+key, nil)
	}
	if err := msgpack.Unmarshal(e.raw, dst); err != nil {
		return apperr.Wrap(apperr.KindStoreError, "decode value", err)
	}
	return nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreError, "encode value", err)
	}
	entry := memoryEntry{raw: raw}
	if ttl > 0 {
		entry.expireAt = s.clk.Now().Add(ttl)
	}
	s.mu.Lock()
	s.data[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[key]; ok && !s.expired(e) {
		return false, nil
	}
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreError, "encode value", err)
	}
	entry := memoryEntry{raw: raw}
	if ttl > 0 {
		entry.expireAt = s.clk.Now().Add(ttl)
	}
	s.data[key] = entry
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	delete(s.sets, key)
	delete(s.zset, key)
	return ok, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, by int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if e, ok := s.data[key]; ok && !s.expired(e) {
		_ = msgpack.Unmarshal(e.raw, &current)
	}
	current += by

	raw, err := msgpack.Marshal(current)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreError, "encode counter", err)
	}
	s.data[key] = memoryEntry{raw: raw}
	return current, nil
}

func (s *MemoryStore) AddToSet(_ context.Context, key string, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	if _, exists := set[member]; exists {
		return false, nil
	}
	set[member] = struct{}{}
	return true, nil
}

func (s *MemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[key]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) SortedSetAdd(_ context.Context, key string, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zset[key]
	if !ok {
		z = &memorySortedSet{scores: make(map[string]float64)}
		s.zset[key] = z
	}
	z.scores[member] = score
	return nil
}

func (s *MemoryStore) SortedSetRangeByScore(_ context.Context, key string, min, max float64) ([]ScoredMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zset[key]
	if !ok {
		return nil, nil
	}
	out := make([]ScoredMember, 0, len(z.scores))
	for m, sc := range z.scores {
		if sc >= min && sc <= max {
			out = append(out, ScoredMember{Member: m, Score: sc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out, nil
}

func (s *MemoryStore) SortedSetTrimToRank(_ context.Context, key string, keepCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zset[key]
	if !ok || keepCount < 0 {
		return nil
	}
	type pair struct {
		member string
		score  float64
	}
	pairs := make([]pair, 0, len(z.scores))
	for m, sc := range z.scores {
		pairs = append(pairs, pair{m, sc})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })
	if len(pairs) <= keepCount {
		return nil
	}
	kept := make(map[string]float64, keepCount)
	for _, p := range pairs[:keepCount] {
		kept[p.member] = p.score
	}
	z.scores = kept
	return nil
}

func (s *MemoryStore) KeysByPattern(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.data {
		if ok, _ := filepath.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Publish(_ context.Context, channel string, message any) (int64, error) {
	raw, err := msgpack.Marshal(message)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreError, "encode message", err)
	}

	s.mu.Lock()
	s.published = append(s.published, PublishedMessage{Channel: channel, Payload: raw})
	s.mu.Unlock()

	s.subsMu.Lock()
	subscribers := s.subs[channel]
	s.subsMu.Unlock()

	// Subscribers receive the encoded payload verbatim, matching how a
	// real Redis client delivers whatever bytes were published.
	payload := string(raw)
	for _, ch := range subscribers {
		select {
		case ch <- payload:
		default:
		}
	}
	return int64(len(subscribers)), nil
}

func (s *MemoryStore) Subscribe(_ context.Context, channel string) (Subscription, error) {
	ch := make(chan string, 64)
	s.subsMu.Lock()
	s.subs[channel] = append(s.subs[channel], ch)
	s.subsMu.Unlock()
	return &memorySubscription{store: s, channel: channel, ch: ch}, nil
}

func (s *MemoryStore) HealthCheck(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

type memorySubscription struct {
	store   *MemoryStore
	channel string
	ch      chan string
	once    sync.Once
}

func (m *memorySubscription) Channel() <-chan string { return m.ch }

func (m *memorySubscription) Close() error {
	m.once.Do(func() {
		m.store.subsMu.Lock()
		defer m.store.subsMu.Unlock()
		subs := m.store.subs[m.channel]
		for i, c := range subs {
			if c == m.ch {
				m.store.subs[m.channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(m.ch)
	})
	return nil
}
