package addr

import (
	"sync"
	"time"
)

// DefaultBatchTTL bounds how long a memoized parse result stays valid.
const DefaultBatchTTL = 60 * time.Second

// pruneThreshold is the map size at which expired entries are swept.
const pruneThreshold = 512

type docResult struct {
	at   time.Time
	addr DocumentAddress
	err  error
}

type secResult struct {
	at   time.Time
	addr SectionAddress
	err  error
}

// Batch memoizes parse results for the lifetime of one logical batch of
// operations, so a multi-step tool call does not re-validate the same
// address on every step. Entries expire after the TTL; Clear ends the
// batch early. Task parses are never memoized because their validity
// depends on the document's current heading tree.
type Batch struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	docs map[string]docResult
	secs map[string]secResult
}

// NewBatch creates a Batch with the given TTL; ttl <= 0 selects
// DefaultBatchTTL.
func NewBatch(ttl time.Duration) *Batch {
	if ttl <= 0 {
		ttl = DefaultBatchTTL
	}
	return &Batch{
		ttl:  ttl,
		now:  time.Now,
		docs: make(map[string]docResult),
		secs: make(map[string]secResult),
	}
}

// ParseDocument is ParseDocument memoized on the raw input.
func (b *Batch) ParseDocument(input string) (DocumentAddress, error) {
	now := b.now()
	b.mu.Lock()
	if r, ok := b.docs[input]; ok && now.Sub(r.at) < b.ttl {
		b.mu.Unlock()
		return r.addr, r.err
	}
	b.mu.Unlock()

	a, err := ParseDocument(input)

	b.mu.Lock()
	if len(b.docs) >= pruneThreshold {
		b.pruneLocked(now)
	}
	b.docs[input] = docResult{at: now, addr: a, err: err}
	b.mu.Unlock()
	return a, err
}

// ParseSection is ParseSection memoized on the raw input plus the
// document path it was resolved against.
func (b *Batch) ParseSection(input string, doc DocumentAddress) (SectionAddress, error) {
	key := input + "\x00" + doc.Path
	now := b.now()
	b.mu.Lock()
	if r, ok := b.secs[key]; ok && now.Sub(r.at) < b.ttl {
		b.mu.Unlock()
		return r.addr, r.err
	}
	b.mu.Unlock()

	a, err := ParseSection(input, doc)

	b.mu.Lock()
	if len(b.secs) >= pruneThreshold {
		b.pruneLocked(now)
	}
	b.secs[key] = secResult{at: now, addr: a, err: err}
	b.mu.Unlock()
	return a, err
}

// Clear drops all memoized results.
func (b *Batch) Clear() {
	b.mu.Lock()
	b.docs = make(map[string]docResult)
	b.secs = make(map[string]secResult)
	b.mu.Unlock()
}

// Len reports how many results are currently memoized.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs) + len(b.secs)
}

func (b *Batch) pruneLocked(now time.Time) {
	for k, r := range b.docs {
		if now.Sub(r.at) >= b.ttl {
			delete(b.docs, k)
		}
	}
	for k, r := range b.secs {
		if now.Sub(r.at) >= b.ttl {
			delete(b.secs, k)
		}
	}
}
