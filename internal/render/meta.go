package render

import "image/color"

// Chord is one region of the progression as the renderer sees it.
type Chord struct {
	Name  string
	Color color.RGBA
	Scale string
}

// TrackMeta is the per-track metadata shown on screen.
type TrackMeta struct {
	Samples     int64
	Chords      []Chord
	Bassline    string
	RhythmScore float64
	ChordsLabel string
	Dist        int
	RootName    string
	ScaleName   string
	BassDecay   float64
}

// Progress locates one frame within its track.
type Progress struct {
	Frame        int64
	Sample       int64
	TrackSamples int64
}

// MetadataLookup resolves a stream sample position to the track playing
// there and the offset within that track.
type MetadataLookup interface {
	MetadataAt(position int64) (TrackMeta, int64)
}
