package numbering

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/tenderflow-backend/pkg/errors"
	"github.com/angelmondragon/tenderflow-backend/pkg/redis"
)

const (
	PrefixTender        = "TND"
	PrefixPurchaseOrder = "PO"

	sequenceModulo    = 1_000_000
	defaultMaxProbes  = 5
	defaultCounterTTL = 400 * 24 * time.Hour
)

// Sequence yields increasing (or at least rarely repeating) positive numbers per scope.
type Sequence interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// ExistsFunc reports whether a candidate number is already taken.
type ExistsFunc func(ctx context.Context, number string) (bool, error)

// Allocator formats PREFIX-YYYY-NNNNNN numbers.
type Allocator struct {
	prefix    string
	seq       Sequence
	maxProbes int
	now       func() time.Time
}

// NewAllocator builds an allocator for the given prefix.
func NewAllocator(prefix string, seq Sequence) (*Allocator, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, fmt.Errorf("number prefix required")
	}
	if seq == nil {
		return nil, fmt.Errorf("number sequence required")
	}
	return &Allocator{
		prefix:    prefix,
		seq:       seq,
		maxProbes: defaultMaxProbes,
		now:       time.Now,
	}, nil
}

// WithClock overrides the clock used for the year segment.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	if now != nil {
		a.now = now
	}
	return a
}

// Next formats the next number without checking for collisions.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	year := a.now().UTC().Year()
	scope := fmt.Sprintf("%s:%d", strings.ToLower(a.prefix), year)
	n, err := a.seq.Next(ctx, scope)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate sequence number")
	}
	if n <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "sequence returned a non-positive number")
	}
	return Format(a.prefix, year, n), nil
}

// Allocate draws numbers until exists reports a free one.
func (a *Allocator) Allocate(ctx context.Context, exists ExistsFunc) (string, error) {
	for probe := 0; probe < a.maxProbes; probe++ {
		number, err := a.Next(ctx)
		if err != nil {
			return "", err
		}
		if exists == nil {
			return number, nil
		}
		taken, err := exists(ctx, number)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check number availability")
		}
		if !taken {
			return number, nil
		}
	}
	return "", pkgerrors.Newf(pkgerrors.CodeConflict, "no free %s number after %d attempts", a.prefix, a.maxProbes)
}

// Format renders a number. Values past the six digit range wrap back to 1.
func Format(prefix string, year int, n int64) string {
	if n >= sequenceModulo {
		n = (n-1)%(sequenceModulo-1) + 1
	}
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, n)
}

// RedisSequence increments a namespaced redis counter per scope.
type RedisSequence struct {
	client redis.Sequencer
	ttl    time.Duration
}

// NewRedisSequence wraps a redis sequencer. Counters expire after ttl of
// inactivity; zero uses roughly one year.
func NewRedisSequence(client redis.Sequencer, ttl time.Duration) (*RedisSequence, error) {
	if client == nil {
		return nil, fmt.Errorf("redis sequencer required")
	}
	if ttl <= 0 {
		ttl = defaultCounterTTL
	}
	return &RedisSequence{client: client, ttl: ttl}, nil
}

func (s *RedisSequence) Next(ctx context.Context, scope string) (int64, error) {
	return s.client.IncrWithTTL(ctx, s.client.CounterKey(scope), s.ttl)
}

// RandomSequence draws uniformly from the six digit range. Used when redis is
// disabled; callers rely on the existence check to resolve collisions.
type RandomSequence struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSequence(seed int64) *RandomSequence {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSequence{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSequence) Next(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63n(sequenceModulo-1) + 1, nil
}

// SequenceFor prefers the shared redis counter and falls back to random draws
// when redis numbering is disabled or unavailable.
func SequenceFor(useRedis bool, client redis.Sequencer) (Sequence, error) {
	if !useRedis || client == nil {
		return NewRandomSequence(0), nil
	}
	seq, err := NewRedisSequence(client, 0)
	if err != nil {
		return nil, err
	}
	return seq, nil
}
