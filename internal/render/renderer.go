package render

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"runtime"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Overlay coordinates are laid out on this reference canvas and scaled to
// the actual frame size.
const (
	layoutWidth  = 426
	layoutHeight = 240
)

const glitchLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	backgroundColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	textColor       = color.RGBA{A: 255}
)

// Renderer draws fixed-size frames.
type Renderer struct {
	Width    int
	Height   int
	Site     string
	Platform string

	face font.Face
}

// NewRenderer returns a renderer for width x height frames labelled with site.
func NewRenderer(width, height int, site string) *Renderer {
	return &Renderer{
		Width:    width,
		Height:   height,
		Site:     site,
		Platform: runtime.GOOS,
		face:     basicfont.Face7x13,
	}
}

// FrameBytes is the size of every frame Render returns.
func (r *Renderer) FrameBytes() int {
	return r.Width * r.Height * 4
}

// Render draws one frame and returns its RGBA pixels, row-major, exactly
// FrameBytes long. The returned slice is never reused by the renderer.
func (r *Renderer) Render(p Progress, meta TrackMeta) []byte {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	playhead := r.playhead(p)
	r.fillChords(img, meta.Chords, playhead)

	r.text(img, 120, 0, meta.Bassline)
	r.text(img, 0, 0, fmt.Sprintf("score%.2f", meta.RhythmScore))
	r.text(img, 0, 60, meta.ChordsLabel)
	r.text(img, 250, 60, fmt.Sprintf("dist%d", meta.Dist))
	if meta.RootName != "" || meta.ScaleName != "" {
		r.text(img, 0, 160, fmt.Sprintf("root scale: %s %s", meta.RootName, r.titleCase(meta.ScaleName)))
	}
	if current, start, ok := currentChord(meta.Chords, r.Width, playhead); ok {
		r.textAt(img, start, r.scaleY(180), r.titleCase(current.Scale))
	}
	r.text(img, 0, 30, fmt.Sprintf("bass_decay%.2f", meta.BassDecay))
	r.text(img, 0, 200, r.Site)
	r.text(img, 200, 205, r.Platform)

	letter, gx, gy := glitchGlyph(p.Frame, r.Width, r.Height)
	r.textAt(img, gx, gy, letter)

	return img.Pix
}

func (r *Renderer) playhead(p Progress) int {
	if p.TrackSamples <= 0 || p.Sample <= 0 {
		return 0
	}
	sample := min(p.Sample, p.TrackSamples)
	return int(sample * int64(r.Width) / p.TrackSamples)
}

// fillChords colors every chord region the playhead has entered, up to the
// playhead.
func (r *Renderer) fillChords(img *image.RGBA, chords []Chord, playhead int) {
	n := len(chords)
	for i, chord := range chords {
		start := i * r.Width / n
		if start >= playhead {
			return
		}
		end := min((i+1)*r.Width/n, playhead)
		draw.Draw(img, image.Rect(start, 0, end, r.Height), image.NewUniform(chord.Color), image.Point{}, draw.Src)
	}
}

// currentChord returns the chord under the playhead and the x where its
// region begins.
func currentChord(chords []Chord, width, playhead int) (Chord, int, bool) {
	n := len(chords)
	if n == 0 || width <= 0 {
		return Chord{}, 0, false
	}
	idx := min(playhead*n/width, n-1)
	return chords[idx], idx * width / n, true
}

func (r *Renderer) text(img *image.RGBA, x, y int, s string) {
	r.textAt(img, r.scaleX(x), r.scaleY(y), s)
}

func (r *Renderer) textAt(img *image.RGBA, x, y int, s string) {
	if s == "" {
		return
	}
	face := r.face
	if face == nil {
		face = basicfont.Face7x13
	}
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func (r *Renderer) titleCase(s string) string {
	if s == "" {
		return s
	}
	return cases.Title(language.English).String(s)
}

func (r *Renderer) scaleX(x int) int { return x * r.Width / layoutWidth }

func (r *Renderer) scaleY(y int) int { return y * r.Height / layoutHeight }

// glitchGlyph picks a letter and position from the frame index alone, so a
// given frame always carries the same glyph.
func glitchGlyph(frame int64, width, height int) (string, int, int) {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(frame))
	_, _ = h.Write(buf[:])
	v := h.Sum64()
	letter := string(glitchLetters[v%uint64(len(glitchLetters))])
	x, y := 0, 0
	if width > 0 {
		x = int((v >> 8) % uint64(width))
	}
	if height > 0 {
		y = int((v >> 32) % uint64(height))
	}
	return letter, x, y
}
