package theory

import (
	"math/rand/v2"
	"strings"
)

var romanNumerals = []string{"I", "II", "III", "IV", "V", "VI", "VII"}

// Progression is a sequence of chords drawn from one scale.
type Progression struct {
	Scale   Scale
	Degrees []int
}

// Chords resolves the degrees against the scale's triads.
func (p Progression) Chords() []Chord {
	triads := p.Scale.Triads()
	out := make([]Chord, len(p.Degrees))
	for i, deg := range p.Degrees {
		out[i] = triads[deg%len(triads)]
	}
	return out
}

// Numerals renders the progression in roman numerals, lower case for minor
// and diminished chords.
func (p Progression) Numerals() string {
	chords := p.Chords()
	parts := make([]string, len(chords))
	for i, chord := range chords {
		numeral := romanNumerals[p.Degrees[i]%len(romanNumerals)]
		switch chord.Quality() {
		case "minor":
			numeral = strings.ToLower(numeral)
		case "diminished":
			numeral = strings.ToLower(numeral) + "°"
		}
		parts[i] = numeral
	}
	return strings.Join(parts, " ")
}

// Distance sums the smallest root movement between consecutive chords,
// wrapping from the last chord back to the first.
func (p Progression) Distance() int {
	chords := p.Chords()
	n := len(chords)
	total := 0
	for i := range chords {
		a := chords[i].Root.norm()
		b := chords[(i+1)%n].Root.norm()
		d := (a - b + 12) % 12
		total += min(d, 12-d)
	}
	return total
}

// RandomProgression picks a scale and n chords. The first chord is always the
// tonic.
func RandomProgression(rng *rand.Rand, n int) Progression {
	if n < 1 {
		n = 1
	}
	root := Note(rng.IntN(12))
	name := Modes[rng.IntN(len(Modes))]
	scale, _ := NewScale(root, name)
	degrees := make([]int, n)
	for i := 1; i < n; i++ {
		degrees[i] = rng.IntN(len(scale.Notes))
	}
	return Progression{Scale: scale, Degrees: degrees}
}
