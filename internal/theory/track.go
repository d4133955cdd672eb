package theory

import (
	"math"
	"strings"

	"chordcast/internal/render"
)

// Track is a rendered progression: mono float32 samples plus the metadata
// shown while it plays.
type Track struct {
	Progression Progression
	SampleRate  int
	Samples     []float32
	BassDecay   float64
	RhythmScore float64
}

// NewTrack synthesises prog with each chord held for chordSeconds.
func NewTrack(prog Progression, sampleRate int, chordSeconds float64, bassDecay, rhythmScore float64) *Track {
	chords := prog.Chords()
	perChord := int(float64(sampleRate) * chordSeconds)
	samples := make([]float32, perChord*len(chords))
	for i, chord := range chords {
		synthChord(samples[i*perChord:(i+1)*perChord], chord, sampleRate, bassDecay)
	}
	return &Track{
		Progression: prog,
		SampleRate:  sampleRate,
		Samples:     samples,
		BassDecay:   bassDecay,
		RhythmScore: rhythmScore,
	}
}

func frequency(n Note, octave int) float64 {
	semis := float64(n.norm()-9) + float64(octave-4)*12
	return 440 * math.Pow(2, semis/12)
}

func synthChord(dst []float32, chord Chord, sampleRate int, bassDecay float64) {
	rate := float64(sampleRate)
	bass := frequency(chord.Root, 2)
	for i := range dst {
		t := float64(i) / rate
		var v float64
		for _, n := range chord.Notes {
			v += 0.12 * math.Sin(2*math.Pi*frequency(n, 4)*t)
		}
		v += 0.3 * math.Exp(-bassDecay*t) * math.Sin(2*math.Pi*bass*t)
		dst[i] = float32(v)
	}
}

// Len is the track length in samples.
func (t *Track) Len() int64 {
	return int64(len(t.Samples))
}

// Chunks splits the samples into consecutive slices of at most size samples.
// The slices alias the track buffer.
func (t *Track) Chunks(size int) [][]float32 {
	if size <= 0 {
		size = len(t.Samples)
	}
	out := make([][]float32, 0, len(t.Samples)/max(size, 1)+1)
	for start := 0; start < len(t.Samples); start += size {
		end := min(start+size, len(t.Samples))
		out = append(out, t.Samples[start:end])
	}
	return out
}

// Meta describes the track for the frame renderer.
func (t *Track) Meta() render.TrackMeta {
	chords := t.Progression.Chords()
	scale := t.Progression.Scale
	regions := make([]render.Chord, len(chords))
	names := make([]string, len(chords))
	for i, chord := range chords {
		regions[i] = render.Chord{
			Name:  chord.Name(),
			Color: scale.ColorAt(chord.Root),
			Scale: scale.ModeAt(chord.Root),
		}
		names[i] = chord.Name()
	}
	return render.TrackMeta{
		Samples:     t.Len(),
		Chords:      regions,
		Bassline:    strings.Join(names, " "),
		RhythmScore: t.RhythmScore,
		ChordsLabel: t.Progression.Numerals(),
		Dist:        t.Progression.Distance(),
		RootName:    scale.Root.String(),
		ScaleName:   scale.Name,
		BassDecay:   t.BassDecay,
	}
}
