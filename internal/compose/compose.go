// Package compose plans the assembly of a fixed-duration video from variable
// length inputs. Planning is pure and fully testable; execution is delegated
// to the media compositor port.
//
// Policy for under-length speech: the voice track is padded with trailing
// silence inside the content window, never time-stretched. Padding keeps the
// caption timing derived from word counts honest; stretching would desync
// cues from the audio.
package compose

import (
	"time"

	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/types"
)

type Inputs struct {
	Target time.Duration
	Hook   time.Duration
	CTA    time.Duration

	Voice              types.VoiceAsset
	BackgroundDuration time.Duration

	// Optional pre-rendered audio for the fixed hook/CTA windows.
	HookAudioPath string
	CTAAudioPath  string

	Cues []types.CaptionCue
}

// Plan describes exactly how the compositor must assemble the output so that
// its duration equals Target regardless of input lengths.
type Plan struct {
	Target        time.Duration
	ContentWindow time.Duration

	// BackgroundLoops is how many times the background footage plays back to
	// back before the hard trim at Target. Always >= 1.
	BackgroundLoops int

	// VoiceOffset delays the speech track past the hook window.
	VoiceOffset time.Duration
	// SilencePad is appended after the speech so voice + pad fills the
	// content window exactly.
	SilencePad time.Duration

	HookAudioPath string
	CTAAudioPath  string
	Cues          []types.CaptionCue
}

// BuildPlan validates inputs against the fixed-duration contract.
// Over-length speech is a structural failure: composition never silently
// truncates voice.
func BuildPlan(in Inputs) (Plan, error) {
	if in.Target <= 0 {
		return Plan{}, faults.Newf(types.StageComposed, faults.AssemblyFailure, "target duration must be > 0")
	}
	window := in.Target - in.Hook - in.CTA
	if window <= 0 {
		return Plan{}, faults.Newf(types.StageComposed, faults.AssemblyFailure,
			"hook %s + cta %s leave no content window in %s", in.Hook, in.CTA, in.Target)
	}
	if in.Voice.Duration > window {
		return Plan{}, faults.Newf(types.StageComposed, faults.AssemblyFailure,
			"voice %s exceeds content window %s", in.Voice.Duration, window)
	}
	if in.BackgroundDuration <= 0 {
		return Plan{}, faults.Newf(types.StageComposed, faults.InsufficientBackground,
			"no background footage available")
	}
	if err := checkCues(in.Cues, in.Target); err != nil {
		return Plan{}, err
	}

	return Plan{
		Target:          in.Target,
		ContentWindow:   window,
		BackgroundLoops: LoopCount(in.BackgroundDuration, in.Target),
		VoiceOffset:     in.Hook,
		SilencePad:      window - in.Voice.Duration,
		HookAudioPath:   in.HookAudioPath,
		CTAAudioPath:    in.CTAAudioPath,
		Cues:            in.Cues,
	}, nil
}

// LoopCount returns how many back-to-back plays of a source of length src
// cover needed. Shared by the composer and the short assembler so both
// extend footage with the same policy.
func LoopCount(src, needed time.Duration) int {
	if src <= 0 {
		return 0
	}
	n := int(needed / src)
	if needed%src != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// checkCues enforces the caption track invariants the generator guarantees:
// ordered, non-overlapping, ending exactly at Target.
func checkCues(cues []types.CaptionCue, target time.Duration) error {
	if len(cues) == 0 {
		return faults.Newf(types.StageComposed, faults.AssemblyFailure, "empty caption track")
	}
	for i := 1; i < len(cues); i++ {
		if cues[i].Start < cues[i-1].End {
			return faults.Newf(types.StageComposed, faults.AssemblyFailure,
				"caption cues overlap at index %d", i)
		}
	}
	last := cues[len(cues)-1]
	if last.End != target {
		return faults.Newf(types.StageComposed, faults.AssemblyFailure,
			"caption track ends at %s, want %s", last.End, target)
	}
	return nil
}
