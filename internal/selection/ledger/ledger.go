// Package ledger remembers recent selections so outcome reports can be tied
// back to the round and score that produced them.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultLedgerSize = 4096
	defaultLedgerTTL  = 10 * time.Minute
)

var (
	// ErrSelectionNotFound means the id was never issued, was evicted or expired.
	ErrSelectionNotFound = errors.New("selection not found")
	// ErrNotSelected means the candidate was not part of the selection.
	ErrNotSelected = errors.New("candidate not part of selection")
)

// Config bounds the ledger.
type Config struct {
	// Size is the maximum number of selections retained.
	Size int `yaml:"size" mapstructure:"size"`
	// TTL is how long a selection accepts outcome reports.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// DefaultConfig returns the default ledger bounds.
func DefaultConfig() Config {
	return Config{Size: defaultLedgerSize, TTL: defaultLedgerTTL}
}

// Pick is one chosen candidate and the utility it was chosen with.
type Pick struct {
	ID      string
	Utility float64
}

// Entry is a recorded selection.
type Entry struct {
	ID        string
	Mode      string
	CreatedAt time.Time
	Picks     []Pick
	// Reported counts outcome reports received per candidate.
	Reported map[string]int
}

func (e *Entry) pick(id string) (Pick, bool) {
	for _, p := range e.Picks {
		if p.ID == id {
			return p, true
		}
	}
	return Pick{}, false
}

// Ledger is a bounded LRU of selections keyed by a generated id.
type Ledger struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Entry]
	ttl   time.Duration
	now   func() time.Time
}

// New creates a ledger. Zero config values fall back to DefaultConfig.
func New(config Config, now func() time.Time) (*Ledger, error) {
	if config.Size <= 0 {
		config.Size = defaultLedgerSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultLedgerTTL
	}
	if now == nil {
		now = time.Now
	}
	cache, err := lru.New[string, *Entry](config.Size)
	if err != nil {
		return nil, fmt.Errorf("create ledger cache: %w", err)
	}
	return &Ledger{cache: cache, ttl: config.TTL, now: now}, nil
}

// NewID returns a fresh selection id.
func NewID() string {
	return uuid.NewString()
}

// Record stores a selection under id, generating one when id is empty, and
// returns the id used.
func (l *Ledger) Record(id, mode string, picks []Pick) string {
	if id == "" {
		id = NewID()
	}
	entry := &Entry{
		ID:        id,
		Mode:      mode,
		CreatedAt: l.now(),
		Picks:     append([]Pick(nil), picks...),
		Reported:  make(map[string]int, len(picks)),
	}
	l.cache.Add(id, entry)
	return id
}

// Resolve marks an outcome report for candidate against selection id and
// returns the pick it refers to.
func (l *Ledger) Resolve(id, candidate string) (Pick, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.cache.Get(id)
	if !ok {
		return Pick{}, fmt.Errorf("%w: %s", ErrSelectionNotFound, id)
	}
	if l.now().Sub(entry.CreatedAt) > l.ttl {
		l.cache.Remove(id)
		return Pick{}, fmt.Errorf("%w: %s expired", ErrSelectionNotFound, id)
	}
	pick, ok := entry.pick(candidate)
	if !ok {
		return Pick{}, fmt.Errorf("%w: %s in %s", ErrNotSelected, candidate, id)
	}
	entry.Reported[candidate]++
	return pick, nil
}

// Get returns a copy of the entry for id.
func (l *Ledger) Get(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.cache.Peek(id)
	if !ok {
		return Entry{}, false
	}
	out := *entry
	out.Picks = append([]Pick(nil), entry.Picks...)
	out.Reported = make(map[string]int, len(entry.Reported))
	for k, v := range entry.Reported {
		out.Reported[k] = v
	}
	return out, true
}

// Len returns the number of retained selections.
func (l *Ledger) Len() int {
	return l.cache.Len()
}
