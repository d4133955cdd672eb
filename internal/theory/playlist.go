package theory

import (
	"sort"
	"sync"

	"chordcast/internal/render"
)

type entry struct {
	start int64
	meta  render.TrackMeta
}

// Playlist maps stream sample positions to the tracks queued at them. It
// satisfies render.MetadataLookup.
type Playlist struct {
	mu      sync.RWMutex
	entries []entry
	end     int64
}

// Append queues t after the previously appended tracks and returns the
// stream position where it starts.
func (p *Playlist) Append(t *Track) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.end
	p.entries = append(p.entries, entry{start: start, meta: t.Meta()})
	p.end += t.Len()
	return start
}

// Len is the total number of samples appended.
func (p *Playlist) Len() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.end
}

// MetadataAt returns the track playing at position and the offset into it.
// Positions past the end resolve to the last track, clamped to its length.
func (p *Playlist) MetadataAt(position int64) (render.TrackMeta, int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.entries) == 0 {
		return render.TrackMeta{}, 0
	}
	position = max(position, 0)
	idx := sort.Search(len(p.entries), func(i int) bool {
		return p.entries[i].start > position
	}) - 1
	idx = max(idx, 0)
	e := p.entries[idx]
	return e.meta, min(position-e.start, e.meta.Samples)
}
