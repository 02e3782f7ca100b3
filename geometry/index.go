package geometry

import (
	"sync"

	"github.com/dhconnelly/rtreego"
)

// zero-size rectangles are rejected by rtreego
const minExtent = 0.0001

type indexEntry struct {
	id  string
	env Envelope
}

func (e *indexEntry) Bounds() rtreego.Rect {
	return toRect(e.env)
}

func toRect(env Envelope) rtreego.Rect {
	w := env.Width()
	if w < minExtent {
		w = minExtent
	}
	h := env.Height()
	if h < minExtent {
		h = minExtent
	}
	rect, _ := rtreego.NewRect(rtreego.Point{env.MinX, env.MinY}, []float64{w, h})
	return rect
}

// Index is an R-tree over envelopes keyed by string ids.
// It is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	tree    *rtreego.Rtree
	entries map[string]*indexEntry
}

func NewIndex() *Index {
	return &Index{
		tree:    rtreego.NewTree(2, 25, 50),
		entries: make(map[string]*indexEntry),
	}
}

// Insert adds or replaces the envelope stored under id.
// Empty envelopes are ignored.
func (idx *Index) Insert(id string, env Envelope) {
	if env.IsEmpty() {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if old, ok := idx.entries[id]; ok {
		idx.tree.Delete(old)
	}
	e := &indexEntry{id: id, env: env}
	idx.entries[id] = e
	idx.tree.Insert(e)
}

func (idx *Index) Delete(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[id]
	if !ok {
		return false
	}
	delete(idx.entries, id)
	return idx.tree.Delete(e)
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Search returns the ids whose envelopes intersect env.
func (idx *Index) Search(env Envelope) []string {
	if env.IsEmpty() {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var ids []string
	for _, s := range idx.tree.SearchIntersect(toRect(env)) {
		e := s.(*indexEntry)
		// padding of zero-size rectangles can create false hits
		if e.env.Intersects(env) {
			ids = append(ids, e.id)
		}
	}
	return ids
}
