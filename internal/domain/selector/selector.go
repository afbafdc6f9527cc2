// Package selector implements the hybrid translation method choice: reuse an
// existing caption track when it covers enough of the runtime, otherwise run
// speech recognition over the full audio.
package selector

import "github.com/dubclip/dubclip/internal/types"

// Decision explains one method choice, for audit logging.
type Decision struct {
	Method    types.Method
	Coverage  float64
	Threshold float64
}

// Choose is deterministic: identical inputs always yield the same method.
// Coverage meeting the threshold takes the caption fast path; everything else
// falls back to transcript-based translation.
func Choose(hasCaptions bool, coverage, threshold float64) Decision {
	d := Decision{Coverage: coverage, Threshold: threshold, Method: types.MethodTranscriptTranslate}
	if hasCaptions && coverage >= threshold {
		d.Method = types.MethodCaptionTranslate
	}
	return d
}
