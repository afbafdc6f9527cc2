// Package captions turns translated text into a timed cue track for a
// fixed-duration video: a literal hook window, content cues that exactly tile
// the content window, and a literal CTA window.
package captions

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dubclip/dubclip/internal/types"
)

type Params struct {
	Target time.Duration
	Hook   time.Duration
	CTA    time.Duration

	HookText string
	CTAText  string

	// Rate is the words-per-second estimate used for initial cue durations
	// before the window correction factor is applied.
	Rate   float64
	MinCue time.Duration
	MaxCue time.Duration
}

func (p Params) validate() error {
	if p.Target <= 0 {
		return errors.New("target duration must be > 0")
	}
	if p.Hook < 0 || p.CTA < 0 || p.Hook+p.CTA >= p.Target {
		return errors.New("hook + cta must leave a non-empty content window")
	}
	if p.Rate <= 0 {
		return errors.New("caption rate must be > 0")
	}
	if p.MinCue <= 0 || p.MaxCue < p.MinCue {
		return errors.New("cue bounds must satisfy 0 < min <= max")
	}
	return nil
}

// Generate emits the full cue track for one composed video. Content cue
// durations are estimated proportionally to word count, clamped to
// [MinCue, MaxCue], then rescaled by a single factor so their sum exactly
// fills [Hook, Target-CTA): no gap, no overlap, monotonic.
func Generate(text string, p Params) ([]types.CaptionCue, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil, errors.New("empty translation text")
	}

	contentStart := p.Hook
	contentEnd := p.Target - p.CTA
	window := contentEnd - contentStart

	// Over-long sentences are split at clause boundaries so no single cue
	// would exceed MaxCue before correction.
	var units []string
	for _, s := range sentences {
		units = append(units, splitToFit(s, p.Rate, p.MaxCue)...)
	}

	est := make([]time.Duration, len(units))
	var sum time.Duration
	for i, u := range units {
		d := time.Duration(float64(wordCount(u)) / p.Rate * float64(time.Second))
		if d < p.MinCue {
			d = p.MinCue
		}
		if d > p.MaxCue {
			d = p.MaxCue
		}
		est[i] = d
		sum += d
	}
	if sum <= 0 {
		return nil, errors.New("no timable caption content")
	}

	// Single correction factor reconciles the word-count estimate with the
	// authoritative window length.
	scale := float64(window) / float64(sum)

	cues := make([]types.CaptionCue, 0, len(units)+2)
	cues = append(cues, types.CaptionCue{Start: 0, End: p.Hook, Text: p.HookText, Role: types.RoleHook})

	cursor := contentStart
	for i, u := range units {
		end := cursor + time.Duration(float64(est[i])*scale)
		if i == len(units)-1 || end > contentEnd {
			// Absorb rounding drift into the final cue so the tiling is exact.
			end = contentEnd
		}
		cues = append(cues, types.CaptionCue{Start: cursor, End: end, Text: u, Role: types.RoleContent})
		cursor = end
	}
	if cursor != contentEnd {
		return nil, fmt.Errorf("content cues do not tile the window: end %s != %s", cursor, contentEnd)
	}

	cues = append(cues, types.CaptionCue{Start: contentEnd, End: p.Target, Text: p.CTAText, Role: types.RoleCTA})
	return cues, nil
}

// SplitSentences breaks text on terminal punctuation, dropping fragments too
// short to be worth a cue.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if len([]rune(s)) > 3 {
			out = append(out, s)
		}
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

// splitToFit divides a sentence whose raw estimate exceeds maxCue at clause
// boundaries, falling back to an even word split when no punctuation helps.
func splitToFit(sentence string, rate float64, maxCue time.Duration) []string {
	if estimate(sentence, rate) <= maxCue {
		return []string{sentence}
	}
	for _, sep := range []string{";", ":", ",", " - ", " — "} {
		if !strings.Contains(sentence, sep) {
			continue
		}
		parts := strings.Split(sentence, sep)
		var out []string
		ok := true
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			sub := splitToFit(p, rate, maxCue)
			if len(sub) == 1 && estimate(sub[0], rate) > maxCue {
				ok = false
				break
			}
			out = append(out, sub...)
		}
		if ok && len(out) > 1 {
			return out
		}
	}
	// No usable clause boundary: halve on words.
	words := strings.Fields(sentence)
	if len(words) < 2 {
		return []string{sentence}
	}
	mid := len(words) / 2
	left := strings.Join(words[:mid], " ")
	right := strings.Join(words[mid:], " ")
	return append(splitToFit(left, rate, maxCue), splitToFit(right, rate, maxCue)...)
}

func estimate(s string, rate float64) time.Duration {
	return time.Duration(float64(wordCount(s)) / rate * float64(time.Second))
}

func wordCount(s string) int { return len(strings.Fields(s)) }
