// Package fonts measures text by shaping it with HarfBuzz over a TrueType
// face. The default face is Go Regular, whose advances are close enough to
// the standard sans-serif PDF fonts to size and wrap text drawn with them.
package fonts

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"sync"

	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// Metrics measures text set in one face. It is safe for concurrent use.
type Metrics struct {
	face *gofont.Face

	mu     sync.Mutex
	shaper shaping.HarfbuzzShaper
}

// New parses a TrueType or OpenType font.
func New(ttf []byte) (*Metrics, error) {
	face, err := gofont.ParseTTF(bytes.NewReader(ttf))
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Metrics{face: face}, nil
}

var defaultMetrics = sync.OnceValues(func() (*Metrics, error) {
	return New(goregular.TTF)
})

// Default returns metrics for Go Regular.
func Default() *Metrics {
	m, err := defaultMetrics()
	if err != nil {
		panic(fmt.Sprintf("fonts: embedded Go Regular: %v", err))
	}
	return m
}

// Width returns the advance of text at size, in the same unit as size.
func (m *Metrics) Width(text string, size float64) float64 {
	if text == "" || size <= 0 {
		return 0
	}
	runes := []rune(text)
	script := DetectScript(runes)
	in := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      m.face,
		Size:      fixed.Int26_6(math.Round(size * 64)),
		Script:    script,
		Language:  language.DefaultLanguage(),
	}
	m.mu.Lock()
	out := m.shaper.Shape(in)
	m.mu.Unlock()
	adv := out.Advance
	if adv < 0 {
		adv = -adv
	}
	return float64(adv) / 64
}

// FitSize returns the largest size in [min, max] at which text fits in
// maxWidth. It returns min when even that does not fit.
func (m *Metrics) FitSize(text string, maxWidth, min, max float64) float64 {
	if max < min {
		min, max = max, min
	}
	w := m.Width(text, 1000)
	if w == 0 {
		return max
	}
	size := math.Floor(maxWidth*1000/w*10) / 10
	return math.Max(min, math.Min(max, size))
}

// Wrap breaks text into lines no wider than maxWidth at size. Words longer
// than a line are kept whole. Existing newlines are honoured.
func (m *Metrics) Wrap(text string, size, maxWidth float64) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if m.Width(candidate, size) <= maxWidth {
				line = candidate
				continue
			}
			lines = append(lines, line)
			line = w
		}
		lines = append(lines, line)
	}
	return lines
}
