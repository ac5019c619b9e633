// Package cache keeps parsed documents resident so repeated tool calls do
// not re-parse markdown on every access. Entries are evicted LRU-first,
// with reference- and search-driven loads weighted to stay resident longer
// than one-shot direct reads.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/addr"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/fingerprint"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// AccessContext describes why a document is being loaded. It sets the
// entry's eviction weight: higher weights resist eviction longer.
type AccessContext int

const (
	// Direct is a one-shot read requested by a caller.
	Direct AccessContext = iota
	// Reference is a load performed while walking @reference links.
	Reference
	// Search is a load driven by search or relevance scanning.
	Search
)

// Weight returns the eviction weight for the access context.
func (a AccessContext) Weight() int {
	switch a {
	case Reference:
		return 2
	case Search:
		return 3
	default:
		return 1
	}
}

func (a AccessContext) String() string {
	switch a {
	case Reference:
		return "reference"
	case Search:
		return "search"
	default:
		return "direct"
	}
}

// Defaults for New when a limit is given as zero.
const (
	DefaultMaxEntries = 1000
	DefaultResistance = 1
)

type entry struct {
	doc      *models.Document
	keywords []string
	weight   int
	bytes    int64
}

// Cache is the process-wide document cache. Documents it hands out are
// immutable: a mutation re-parses the file into a fresh Document instead of
// patching the cached one, so shared pointers are safe.
type Cache struct {
	store      storage.Provider
	maxEntries int
	maxBytes   int64
	resistance int

	mu        sync.Mutex
	usedBytes int64
	lru       *list.List // front = most recently used
	elems     map[string]*list.Element
}

// New creates a Cache reading through store. maxEntries <= 0 selects
// DefaultMaxEntries; maxBytes <= 0 disables the byte bound; resistance is
// the highest eviction weight still treated as evictable before the
// plain-LRU fallback kicks in.
func New(store storage.Provider, maxEntries int, maxBytes int64, resistance int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if resistance < 0 {
		resistance = DefaultResistance
	}
	return &Cache{
		store:      store,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		resistance: resistance,
		lru:        list.New(),
		elems:      make(map[string]*list.Element),
	}
}

// Get returns the parsed document at path, loading and parsing it on a
// miss. On a hit the entry is re-weighted by access and moved to the front
// of the recency order. A failed load never leaves a partial entry behind.
func (c *Cache) Get(path string, access AccessContext) (*models.Document, error) {
	da, err := addr.ParseDocument(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if elem, ok := c.elems[da.Path]; ok {
		c.lru.MoveToFront(elem)
		ent := elem.Value.(*entry)
		ent.weight = access.Weight()
		doc := ent.doc
		c.mu.Unlock()
		return doc, nil
	}
	c.mu.Unlock()

	// Load outside the lock; concurrent misses for the same path parse
	// twice and the last insert wins, which is harmless for an immutable
	// value.
	ent, err := c.load(da)
	if err != nil {
		return nil, err
	}
	ent.weight = access.Weight()

	// A document bigger than the whole byte budget is served but never
	// cached; inserting it would only churn every other entry out.
	if c.maxBytes > 0 && ent.bytes > c.maxBytes {
		return ent.doc, nil
	}

	c.mu.Lock()
	if old, ok := c.elems[da.Path]; ok {
		c.usedBytes -= old.Value.(*entry).bytes
		c.lru.Remove(old)
		delete(c.elems, da.Path)
	}
	c.elems[da.Path] = c.lru.PushFront(ent)
	c.usedBytes += ent.bytes
	c.evictLocked()
	c.mu.Unlock()

	return ent.doc, nil
}

// load reads path through a storage snapshot and parses it into a fresh
// Document.
func (c *Cache) load(da addr.DocumentAddress) (*entry, error) {
	snap, err := c.store.Snapshot(da.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("cache: %s: %w", da.Path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("cache: %s: %w: %w", da.Path, apperr.ErrReadFailed, err)
	}
	if !utf8.Valid(snap.Content) {
		return nil, fmt.Errorf("cache: %s: invalid UTF-8: %w", da.Path, apperr.ErrReadFailed)
	}

	res := parser.Parse(snap.Content)
	meta := models.Metadata{
		Path:      da.Path,
		Title:     res.Title,
		Namespace: da.Namespace,
		Checksum:  fingerprint.Hash(snap.Content),
		UpdatedAt: snap.ModTime,
	}
	doc := models.NewDocument(meta, res.Headings, string(snap.Content))
	return &entry{
		doc:      doc,
		keywords: fingerprint.Keywords(res.Title, res.Headings),
		bytes:    int64(len(snap.Content)),
	}, nil
}

// evictLocked removes entries until both bounds hold. Each round walks from
// the LRU end and takes the first entry whose weight does not exceed the
// resistance threshold; when every entry is above it, the plain LRU tail
// goes.
func (c *Cache) evictLocked() {
	for c.overLocked() && c.lru.Len() > 0 {
		victim := c.lru.Back()
		for e := c.lru.Back(); e != nil; e = e.Prev() {
			if e.Value.(*entry).weight <= c.resistance {
				victim = e
				break
			}
		}
		ent := victim.Value.(*entry)
		delete(c.elems, ent.doc.Meta.Path)
		c.usedBytes -= ent.bytes
		c.lru.Remove(victim)
	}
}

func (c *Cache) overLocked() bool {
	if c.lru.Len() > c.maxEntries {
		return true
	}
	return c.maxBytes > 0 && c.usedBytes > c.maxBytes
}

// Invalidate removes the entry for path, if resident. Called after every
// successful mutation, move, or delete, and on watcher events for external
// changes.
func (c *Cache) Invalidate(path string) {
	key := path
	if da, err := addr.ParseDocument(path); err == nil {
		key = da.Path
	}
	c.mu.Lock()
	if elem, ok := c.elems[key]; ok {
		c.usedBytes -= elem.Value.(*entry).bytes
		c.lru.Remove(elem)
		delete(c.elems, key)
	}
	c.mu.Unlock()
}

// Fingerprints returns lightweight summaries for every resident entry, in
// recency order. Cheap change checks across the whole workspace go through
// the index; this covers only what is already parsed.
func (c *Cache) Fingerprints() []models.Fingerprint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Fingerprint, 0, c.lru.Len())
	for e := c.lru.Front(); e != nil; e = e.Next() {
		ent := e.Value.(*entry)
		out = append(out, models.Fingerprint{
			Path:      ent.doc.Meta.Path,
			Title:     ent.doc.Meta.Title,
			Namespace: ent.doc.Meta.Namespace,
			Keywords:  ent.keywords,
			Checksum:  ent.doc.Meta.Checksum,
			UpdatedAt: ent.doc.Meta.UpdatedAt,
		})
	}
	return out
}

// Len reports the number of resident entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes reports the total raw content bytes held by resident entries.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}
