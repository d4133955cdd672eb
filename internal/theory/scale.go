package theory

import (
	"fmt"
	"image/color"
	"strings"
)

// Note is a pitch class, 0 = C.
type Note int

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func (n Note) String() string {
	return noteNames[n.norm()]
}

func (n Note) norm() int {
	return ((int(n) % 12) + 12) % 12
}

// Add transposes n by semitones.
func (n Note) Add(semitones int) Note {
	return Note((int(n) + semitones%12 + 12) % 12)
}

// ParseNote accepts a chromatic note name such as "C#" or "a".
func ParseNote(name string) (Note, error) {
	name = strings.TrimSpace(name)
	for i, candidate := range noteNames {
		if strings.EqualFold(candidate, name) {
			return Note(i), nil
		}
	}
	return 0, fmt.Errorf("unknown note %q", name)
}

// Diatonic modes in degree order; rotating major by i gives Modes[i].
var Modes = []string{"major", "dorian", "phrygian", "lydian", "mixolydian", "minor", "locrian"}

var modeBits = map[string]string{
	"major":      "101011010101",
	"dorian":     "101101010110",
	"phrygian":   "110101011010",
	"lydian":     "101010110101",
	"mixolydian": "101011010110",
	"minor":      "101101011010",
	"locrian":    "110101101010",
}

var modeColors = map[string]color.RGBA{
	"major":      {R: 255, G: 255, B: 255, A: 255},
	"dorian":     {R: 104, G: 195, B: 94, A: 255},
	"phrygian":   {R: 221, G: 127, B: 86, A: 255},
	"lydian":     {R: 255, G: 221, B: 87, A: 255},
	"mixolydian": {R: 118, G: 170, B: 236, A: 255},
	"minor":      {R: 167, G: 120, B: 207, A: 255},
	"locrian":    {R: 234, G: 96, B: 111, A: 255},
}

// Scale is a diatonic scale rooted at Root.
type Scale struct {
	Root  Note
	Name  string
	Notes []Note
}

// NewScale builds the scale named name on root.
func NewScale(root Note, name string) (Scale, error) {
	bits, ok := modeBits[name]
	if !ok {
		return Scale{}, fmt.Errorf("unknown scale %q", name)
	}
	notes := make([]Note, 0, 7)
	for i, bit := range bits {
		if bit == '1' {
			notes = append(notes, root.Add(i))
		}
	}
	return Scale{Root: root, Name: name, Notes: notes}, nil
}

func (s Scale) degree(n Note) (int, bool) {
	for i, note := range s.Notes {
		if note.norm() == n.norm() {
			return i, true
		}
	}
	return 0, false
}

// ModeAt names the mode that starts on scale note n, e.g. dorian on the
// second degree of a major scale.
func (s Scale) ModeAt(n Note) string {
	deg, ok := s.degree(n)
	if !ok {
		return ""
	}
	start := 0
	for i, mode := range Modes {
		if mode == s.Name {
			start = i
			break
		}
	}
	return Modes[(start+deg)%len(Modes)]
}

// ColorAt is the color of the mode starting on n.
func (s Scale) ColorAt(n Note) color.RGBA {
	if c, ok := modeColors[s.ModeAt(n)]; ok {
		return c
	}
	return color.RGBA{R: 200, G: 200, B: 200, A: 255}
}

// Triads returns the chord built on each degree.
func (s Scale) Triads() []Chord {
	n := len(s.Notes)
	chords := make([]Chord, n)
	for i := range s.Notes {
		chords[i] = Chord{
			Root:  s.Notes[i],
			Notes: [3]Note{s.Notes[i], s.Notes[(i+2)%n], s.Notes[(i+4)%n]},
		}
	}
	return chords
}

// Chord is a three-note chord.
type Chord struct {
	Root  Note
	Notes [3]Note
}

// Quality classifies the triad from its intervals.
func (c Chord) Quality() string {
	third := (c.Notes[1].norm() - c.Root.norm() + 12) % 12
	fifth := (c.Notes[2].norm() - c.Root.norm() + 12) % 12
	switch {
	case third == 4 && fifth == 7:
		return "major"
	case third == 3 && fifth == 7:
		return "minor"
	case third == 3 && fifth == 6:
		return "diminished"
	case third == 4 && fifth == 8:
		return "augmented"
	}
	return "other"
}

// Name is the chord symbol, such as "C", "Dm" or "Bdim".
func (c Chord) Name() string {
	switch c.Quality() {
	case "minor":
		return c.Root.String() + "m"
	case "diminished":
		return c.Root.String() + "dim"
	case "augmented":
		return c.Root.String() + "aug"
	}
	return c.Root.String()
}
