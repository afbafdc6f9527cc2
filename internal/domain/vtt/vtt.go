// Package vtt parses WebVTT caption tracks and measures how much of an
// item's runtime they cover. Coverage drives the fast-path translation
// decision.
package vtt

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dubclip/dubclip/internal/types"
)

// Parse reads a WebVTT document into transcript segments. Cue identifiers,
// NOTE blocks and styling are skipped; only timed text survives.
func Parse(content string, language string) (types.Transcript, error) {
	tr := types.Transcript{Language: language}
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur *types.Segment
	flush := func() {
		if cur != nil {
			cur.Text = strings.TrimSpace(cur.Text)
			if cur.Text != "" {
				tr.Segments = append(tr.Segments, *cur)
			}
			cur = nil
		}
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.Contains(line, "-->"):
			flush()
			start, end, err := parseCueTiming(line)
			if err != nil {
				return types.Transcript{}, err
			}
			cur = &types.Segment{Start: start, End: end, Confidence: 1}
		case line == "" || strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE"):
			if line == "" {
				flush()
			}
		case isCueIdentifier(line, cur):
			// numeric cue counter before the timing line
		default:
			if cur != nil {
				if cur.Text != "" {
					cur.Text += " "
				}
				cur.Text += stripTags(line)
			}
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return types.Transcript{}, fmt.Errorf("scan vtt: %w", err)
	}
	return tr, nil
}

// Coverage returns the fraction of total that carries caption text. Segments
// are merged before summing so overlapping cues do not double-count.
func Coverage(tr types.Transcript, total time.Duration) float64 {
	if total <= 0 || len(tr.Segments) == 0 {
		return 0
	}
	var covered time.Duration
	curStart, curEnd := types.Dur(tr.Segments[0].Start), types.Dur(tr.Segments[0].End)
	for _, s := range tr.Segments[1:] {
		st, en := types.Dur(s.Start), types.Dur(s.End)
		if st > curEnd {
			covered += curEnd - curStart
			curStart, curEnd = st, en
			continue
		}
		if en > curEnd {
			curEnd = en
		}
	}
	covered += curEnd - curStart
	frac := float64(covered) / float64(total)
	if frac > 1 {
		frac = 1
	}
	return frac
}

func parseCueTiming(line string) (float64, float64, error) {
	// Trailing cue settings ("align:start position:0%") follow the end time.
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed cue timing %q", line)
	}
	start, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("malformed cue timing %q", line)
	}
	end, err := parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("cue ends before it starts: %q", line)
	}
	return start, end, nil
}

// parseTimestamp accepts HH:MM:SS.mmm and MM:SS.mmm, comma or dot separated.
func parseTimestamp(ts string) (float64, error) {
	ts = strings.ReplaceAll(ts, ",", ".")
	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		total = total*60 + v
	}
	return total, nil
}

func isCueIdentifier(line string, cur *types.Segment) bool {
	if cur != nil {
		return false
	}
	_, err := strconv.Atoi(line)
	return err == nil
}

func stripTags(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
