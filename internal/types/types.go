package types

import (
	"strings"
	"time"
)

// Stage identifies one step of the per-item pipeline. Stages advance strictly
// in Order; an item resumes at the first stage whose artifact is missing.
type Stage string

const (
	StageIngested    Stage = "ingested"
	StageClassified  Stage = "classified"
	StageTranscribed Stage = "transcribed"
	StageTranslated  Stage = "translated"
	StageVoiced      Stage = "voiced"
	StageComposed    Stage = "composed"
	StageShorted     Stage = "shorted"
)

// Order lists pipeline stages in execution order.
func Order() []Stage {
	return []Stage{
		StageIngested,
		StageClassified,
		StageTranscribed,
		StageTranslated,
		StageVoiced,
		StageComposed,
		StageShorted,
	}
}

type StageState string

const (
	StatePending StageState = "pending"
	StateDone    StageState = "done"
	StateFailed  StageState = "failed"
)

// Item is the per-video record owned by the orchestrator.
type Item struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	SourceURL      string                `json:"source_url"`
	SourceDuration time.Duration         `json:"source_duration"`
	Theme          string                `json:"theme,omitempty"`
	AudioPath      string                `json:"audio_path,omitempty"`
	CaptionPath    string                `json:"caption_path,omitempty"`
	Stages         map[Stage]StageState  `json:"stages"`
	FailedStage    Stage                 `json:"failed_stage,omitempty"`
	FailureReason  string                `json:"failure_reason,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// StageState returns the recorded state for a stage, defaulting to pending.
func (it *Item) StageState(s Stage) StageState {
	if st, ok := it.Stages[s]; ok {
		return st
	}
	return StatePending
}

// Transcript is an ordered sequence of timed source-language segments,
// produced either by ASR or by parsing an existing caption track. Immutable
// once written.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Text joins the segment texts with single spaces.
func (tr Transcript) Text() string {
	parts := make([]string, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// Duration returns the span covered by the transcript.
func (tr Transcript) Duration() time.Duration {
	if len(tr.Segments) == 0 {
		return 0
	}
	return Dur(tr.Segments[len(tr.Segments)-1].End)
}

// Method records which translation path produced a Translation.
type Method string

const (
	MethodCaptionTranslate    Method = "caption-translate"
	MethodTranscriptTranslate Method = "transcript-translate"
)

// Translation is the target-language text for one (item, language) pair.
type Translation struct {
	ItemID           string  `json:"item_id"`
	Language         string  `json:"language"`
	OriginalLanguage string  `json:"original_language"`
	Method           Method  `json:"method"`
	Text             string  `json:"text"`
	SegmentCount     int     `json:"segment_count"`
	FileSize         int64   `json:"file_size"`
}

// VoiceAsset is the synthesized speech track for a Translation. The recorded
// duration is authoritative for caption timing and composition.
type VoiceAsset struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
}

type CueRole string

const (
	RoleHook    CueRole = "hook"
	RoleContent CueRole = "content"
	RoleCTA     CueRole = "cta"
)

// CaptionCue is a single timed on-screen text unit. Cue sequences are ordered
// and non-overlapping; content cues lie strictly between the hook window and
// the CTA window.
type CaptionCue struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
	Role  CueRole       `json:"role"`
}

// ComposedVideo is the fixed-duration final artifact plus the cue track
// realized in it.
type ComposedVideo struct {
	ItemID   string        `json:"item_id"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
	Cues     []CaptionCue  `json:"cues"`
}

// ViralSegment is a scored candidate window over a transcript. Signals lists
// the matched scoring signals in match order, for audit.
type ViralSegment struct {
	Start   time.Duration `json:"start"`
	End     time.Duration `json:"end"`
	Score   float64       `json:"score"`
	Text    string        `json:"text"`
	Signals []string      `json:"signals"`
}

// Short is one exported platform clip derived from a ViralSegment.
type Short struct {
	ID            string        `json:"id"`
	ItemID        string        `json:"item_id"`
	Platform      string        `json:"platform"`
	Start         time.Duration `json:"start"`
	End           time.Duration `json:"end"`
	Path          string        `json:"path"`
	ThumbnailPath string        `json:"thumbnail_path,omitempty"`
	Title         string        `json:"title"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Dur converts float seconds (the JSON boundary representation) to a Duration.
func Dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }

// Sec converts a Duration back to float seconds.
func Sec(d time.Duration) float64 { return float64(d) / float64(time.Second) }
