// Package ports declares the narrow contracts the pipeline consumes. The
// core never embeds collaborator behavior; adapters live one package down.
package ports

import (
	"context"
	"time"

	"github.com/dubclip/dubclip/internal/compose"
	"github.com/dubclip/dubclip/internal/types"
)

// Fetched describes the raw media a MediaSource produced for one item.
type Fetched struct {
	SourceID    string
	Title       string
	Duration    time.Duration
	AudioPath   string
	CaptionPath string // empty when the source has no caption track
	Language    string
}

// MediaSource acquires raw audio, optional captions and metadata for a URL.
type MediaSource interface {
	Fetch(ctx context.Context, url, destDir string) (Fetched, error)
}

// ASR turns an audio file into a transcript.
type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// Translator converts text segments between languages. Segment boundaries
// are preserved: output has the same length and order as input.
type Translator interface {
	Translate(ctx context.Context, segments []string, source, target string) ([]string, error)
}

// SpeechSynth renders text to speech and reports the exact track duration.
type SpeechSynth interface {
	Synthesize(ctx context.Context, text, voice, outPath string) (types.VoiceAsset, error)
}

// FootageSource retrieves one background clip for a theme.
type FootageSource interface {
	FetchBackground(ctx context.Context, theme, destDir string) (path string, duration time.Duration, err error)
}

// ShortSpec is everything the compositor needs to export one platform clip.
type ShortSpec struct {
	Input        string
	Start        time.Duration
	End          time.Duration
	AspectRatio  string
	Effects      []string
	SubtitlePath string // optional burned-in track
	CTAAudioPath string // appended after the clip audio
	// Loops extends under-length footage with the composer's looping policy
	// before trimming. 1 means play once.
	Loops  int
	Output string
}

// Compositor drives the media encoder. Implementations must honor plan and
// spec timings frame-accurately.
type Compositor interface {
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	ProbeDuration(ctx context.Context, in string) (time.Duration, error)
	Compose(ctx context.Context, plan compose.Plan, backgroundPath, voicePath, subtitlePath, outPath string) error
	RenderShort(ctx context.Context, spec ShortSpec) error
	Thumbnail(ctx context.Context, videoPath string, at time.Duration, outPath string) error
}

// AnalyticsEvent is one counter increment recorded alongside artifacts.
type AnalyticsEvent struct {
	ItemID    string
	Platform  string
	Kind      string
	SizeBytes int64
	CreatedAt time.Time
}

// Store is the persisted datastore for items and their derived artifacts.
// Absence of an artifact (nil, false) is how the orchestrator decides what
// still needs to run.
type Store interface {
	Close() error

	CreateItem(ctx context.Context, it *types.Item) error
	GetItem(ctx context.Context, id string) (*types.Item, error)
	ListItems(ctx context.Context) ([]types.Item, error)
	UpdateItem(ctx context.Context, it *types.Item) error
	DeleteItem(ctx context.Context, id string) error

	SaveTranscript(ctx context.Context, itemID string, tr types.Transcript) error
	GetTranscript(ctx context.Context, itemID string) (types.Transcript, bool, error)

	SaveTranslation(ctx context.Context, tl types.Translation) error
	GetTranslation(ctx context.Context, itemID, language string) (types.Translation, bool, error)

	SaveVoiceAsset(ctx context.Context, itemID string, va types.VoiceAsset) error
	GetVoiceAsset(ctx context.Context, itemID string) (types.VoiceAsset, bool, error)

	SaveComposedVideo(ctx context.Context, cv types.ComposedVideo) error
	GetComposedVideo(ctx context.Context, itemID string) (types.ComposedVideo, bool, error)

	SaveShort(ctx context.Context, sh types.Short) error
	ListShorts(ctx context.Context, itemID string) ([]types.Short, error)
	DeleteShorts(ctx context.Context, itemID, platform string) error

	AddAnalytics(ctx context.Context, ev AnalyticsEvent) error
	CountAnalytics(ctx context.Context, platform, kind string) (int64, error)
}
