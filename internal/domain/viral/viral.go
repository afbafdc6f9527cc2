// Package viral scores transcript windows to pick highlight spans for
// short-form clips. Scoring is a deterministic weighted heuristic; keyword
// lists and weights are configuration, not code.
package viral

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dubclip/dubclip/internal/types"
)

// ErrNoWindow is returned when no transcript window fits the platform's
// duration bounds.
var ErrNoWindow = errors.New("no transcript window fits the duration bounds")

type Weights struct {
	Keywords map[string]float64
	Emphasis float64
	Position float64
}

type Params struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	// Stride controls how far consecutive window starts are apart. Zero
	// means one window per transcript segment boundary.
	Stride  time.Duration
	Weights Weights
}

// Detect returns the highest-scoring window within the duration bounds.
// Ties break toward the earliest start. Selection is independent per
// platform because bounds differ.
func Detect(tr types.Transcript, p Params) (types.ViralSegment, error) {
	if p.MinDuration <= 0 || p.MaxDuration < p.MinDuration {
		return types.ViralSegment{}, errors.New("duration bounds must satisfy 0 < min <= max")
	}
	cands := candidates(tr, p)
	if len(cands) == 0 {
		return types.ViralSegment{}, ErrNoWindow
	}
	best := cands[0]
	for _, c := range cands[1:] {
		// Strict comparison keeps the earliest window on equal scores since
		// candidates are generated in start order.
		if c.Score > best.Score {
			best = c
		}
	}
	return best, nil
}

func candidates(tr types.Transcript, p Params) []types.ViralSegment {
	segs := tr.Segments
	if len(segs) == 0 {
		return nil
	}
	var out []types.ViralSegment
	lastStart := time.Duration(-1)
	for i := 0; i < len(segs); i++ {
		start := types.Dur(segs[i].Start)
		if lastStart >= 0 && p.Stride > 0 && start-lastStart < p.Stride {
			continue
		}
		before := len(out)
		var parts []string
		for j := i; j < len(segs); j++ {
			if t := strings.TrimSpace(segs[j].Text); t != "" {
				parts = append(parts, t)
			}
			end := types.Dur(segs[j].End)
			win := end - start
			if win > p.MaxDuration {
				break
			}
			if win < p.MinDuration {
				continue
			}
			text := strings.Join(parts, " ")
			if text == "" {
				continue
			}
			score, signals := Score(text, segs[i].Text, p.Weights)
			out = append(out, types.ViralSegment{
				Start:   start,
				End:     end,
				Score:   score,
				Text:    text,
				Signals: signals,
			})
		}
		// Only a start that produced candidates consumes the stride window.
		if len(out) > before {
			lastStart = start
		}
	}
	return out
}

// Score rates one window. The returned signal list is ordered by match and
// justifies the score for later audit.
func Score(text, opening string, w Weights) (float64, []string) {
	lower := strings.ToLower(text)
	var score float64
	var signals []string

	for _, kv := range sortedKeywords(w.Keywords) {
		n := strings.Count(lower, kv.k)
		if n == 0 {
			continue
		}
		score += float64(n) * kv.v
		signals = append(signals, fmt.Sprintf("keyword:%s x%d", kv.k, n))
	}

	if n := strings.Count(text, "!"); n > 0 {
		score += float64(n) * w.Emphasis
		signals = append(signals, fmt.Sprintf("emphasis:exclamation x%d", n))
	}
	if n := strings.Count(text, "?"); n > 0 {
		score += float64(n) * w.Emphasis * 0.8
		signals = append(signals, fmt.Sprintf("emphasis:question x%d", n))
	}
	if n := countShoutedWords(text); n > 0 {
		score += float64(n) * w.Emphasis * 0.5
		signals = append(signals, fmt.Sprintf("emphasis:caps x%d", n))
	}

	if strongOpening(opening, w.Keywords) {
		score += w.Position
		signals = append(signals, "position:strong-opening")
	}

	return score, signals
}

type kv struct {
	k string
	v float64
}

// Map iteration order is random; keyword signals must be stable for audit.
func sortedKeywords(m map[string]float64) []kv {
	out := make([]kv, 0, len(m))
	for k, v := range m {
		out = append(out, kv{strings.ToLower(k), v})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].k < out[j-1].k; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func strongOpening(opening string, keywords map[string]float64) bool {
	lower := strings.ToLower(strings.TrimSpace(opening))
	if lower == "" {
		return false
	}
	if strings.ContainsAny(opening, "!?") {
		return true
	}
	for kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func countShoutedWords(text string) int {
	n := 0
	for _, word := range strings.Fields(text) {
		letters := 0
		upper := 0
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upper++
				}
			}
		}
		if letters >= 3 && upper == letters {
			n++
		}
	}
	return n
}
