package refs

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/addr"
	"github.com/starford/ansuz/internal/cache"
)

// Traversal bounds. Depth is configurable per call within [MinDepth,
// MaxDepth]; the node budget and soft deadline are fixed backstops against
// runaway reference graphs.
const (
	MinDepth        = 1
	MaxDepth        = 5
	DefaultMaxDepth = 3

	maxNodes     = 1000
	softDeadline = 30 * time.Second
)

// Resolver loads reference trees through the document cache.
type Resolver struct {
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver reading through c.
func NewResolver(c *cache.Cache, logger *slog.Logger) *Resolver {
	return &Resolver{cache: c, logger: logger, now: time.Now}
}

// ClampDepth normalizes a requested traversal depth into the supported
// range; zero or negative selects the default.
func ClampDepth(d int) int {
	if d <= 0 {
		return DefaultMaxDepth
	}
	if d < MinDepth {
		return MinDepth
	}
	if d > MaxDepth {
		return MaxDepth
	}
	return d
}

type workItem struct {
	ref    Reference
	depth  int
	parent *Node
}

// Load walks the reference graph breadth-first from refs, loading every
// target through the cache with reference weighting and collecting nested
// references one level per visit. Roots sit at depth 0; a reference at
// depth d is followed while d < maxDepth.
//
// The walk is bounded three ways: a visited set keyed by document path
// truncates cycles, a node budget caps the tree size, and a soft deadline
// abandons slow traversals. Hitting any bound, or a reference that fails
// to load, shrinks the result; it never fails the call.
func (r *Resolver) Load(ctx context.Context, refs []Reference, maxDepth int) []*Node {
	maxDepth = ClampDepth(maxDepth)
	start := r.now()

	visited := make(map[string]bool)
	var roots []*Node
	nodeCount := 0

	queue := make([]workItem, 0, len(refs))
	for _, ref := range refs {
		queue = append(queue, workItem{ref: ref, depth: 0})
	}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			r.logger.Warn("refs: traversal cancelled", slog.Int("nodes", nodeCount))
			break
		}
		if r.now().Sub(start) > softDeadline {
			r.logger.Warn("refs: soft deadline hit, returning partial tree",
				slog.Int("nodes", nodeCount))
			break
		}
		if nodeCount >= maxNodes {
			r.logger.Warn("refs: node budget exhausted, returning partial tree",
				slog.Int("nodes", nodeCount))
			break
		}

		it := queue[0]
		queue = queue[1:]

		if it.depth >= maxDepth {
			continue
		}
		path := it.ref.Doc.Path
		if visited[path] {
			r.logger.Debug("refs: cycle truncated", slog.String("path", path))
			continue
		}
		visited[path] = true

		doc, err := r.cache.Get(path, cache.Reference)
		if err != nil {
			r.logger.Warn("refs: reference dropped",
				slog.String("path", path), slog.String("error", err.Error()))
			continue
		}

		content := doc.Content
		if it.ref.Section != "" {
			h, ok := doc.ResolveSection(it.ref.Section)
			if !ok {
				r.logger.Warn("refs: section not found, reference dropped",
					slog.String("path", path), slog.String("section", it.ref.Section))
				continue
			}
			content = doc.SectionBody(h)
		}

		node := &Node{
			Path:    path,
			Section: it.ref.Section,
			Depth:   it.depth,
			Content: content,
		}
		if it.parent == nil {
			roots = append(roots, node)
		} else {
			it.parent.Children = append(it.parent.Children, node)
		}
		nodeCount++

		// One level of nested references per visit.
		from, err := addr.ParseDocument(path)
		if err != nil {
			continue
		}
		for _, child := range Normalize(Extract(content), from) {
			queue = append(queue, workItem{ref: child, depth: it.depth + 1, parent: node})
		}
	}

	return roots
}
