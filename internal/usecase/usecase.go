// Package usecase implements the per-stage operations the orchestrator
// drives. Every stage checks for its artifact before doing work, so a rerun
// resumes instead of recomputing.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dubclip/dubclip/internal/compose"
	"github.com/dubclip/dubclip/internal/config"
	"github.com/dubclip/dubclip/internal/domain/captions"
	"github.com/dubclip/dubclip/internal/domain/selector"
	"github.com/dubclip/dubclip/internal/domain/theme"
	"github.com/dubclip/dubclip/internal/domain/vtt"
	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/ports"
	"github.com/dubclip/dubclip/internal/shorts"
	"github.com/dubclip/dubclip/internal/types"
)

type Deps struct {
	Source  ports.MediaSource
	ASR     ports.ASR
	Trans   ports.Translator
	Synth   ports.SpeechSynth
	Footage ports.FootageSource
	Comp    ports.Compositor
	Store   ports.Store
	Shorts  *shorts.Assembler
}

type Usecase struct {
	d   Deps
	cfg *config.Config
	log *slog.Logger
}

func New(d Deps, cfg *config.Config, log *slog.Logger) Usecase {
	if log == nil {
		log = slog.Default()
	}
	return Usecase{d: d, cfg: cfg, log: log}
}

// RunStage executes one already-ingested stage for the item.
func (u Usecase) RunStage(ctx context.Context, it *types.Item, st types.Stage) error {
	switch st {
	case types.StageClassified:
		return u.Classify(ctx, it)
	case types.StageTranscribed:
		return u.Transcribe(ctx, it)
	case types.StageTranslated:
		return u.Translate(ctx, it)
	case types.StageVoiced:
		return u.Voice(ctx, it)
	case types.StageComposed:
		return u.Compose(ctx, it)
	case types.StageShorted:
		return u.Shorts(ctx, it)
	default:
		return fmt.Errorf("unknown stage %q", st)
	}
}

// Ingest fetches source media and registers the item. A URL already in the
// store resumes its existing item instead of creating a duplicate.
func (u Usecase) Ingest(ctx context.Context, url string) (*types.Item, error) {
	existing, err := u.d.Store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].SourceURL == url {
			u.log.Info("item already ingested", "item", existing[i].ID, "url", url)
			return &existing[i], nil
		}
	}

	id := uuid.NewString()
	destDir := filepath.Join(u.cfg.Paths.Media, "source", id)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	fetched, err := u.d.Source.Fetch(ctx, url, destDir)
	if err != nil {
		return nil, err
	}

	it := &types.Item{
		ID:             id,
		Title:          fetched.Title,
		SourceURL:      url,
		SourceDuration: fetched.Duration,
		AudioPath:      fetched.AudioPath,
		CaptionPath:    fetched.CaptionPath,
		Stages:         map[types.Stage]types.StageState{types.StageIngested: types.StateDone},
		CreatedAt:      time.Now(),
	}
	if err := u.d.Store.CreateItem(ctx, it); err != nil {
		// A concurrent run may have registered the URL between the scan and
		// the insert; the unique index on source_url rejects the second row.
		if items, lerr := u.d.Store.ListItems(ctx); lerr == nil {
			for i := range items {
				if items[i].SourceURL == url {
					u.log.Info("lost ingest race, resuming existing item",
						"item", items[i].ID, "url", url)
					os.RemoveAll(destDir)
					return &items[i], nil
				}
			}
		}
		return nil, err
	}
	u.log.Info("ingested", "item", it.ID, "title", it.Title,
		"duration", it.SourceDuration, "captions", it.CaptionPath != "")
	return it, nil
}

// Classify tags the item with a background theme from its title, plus the
// transcript when a prior run already produced one. Falls back to the
// configured default when nothing matches.
func (u Usecase) Classify(ctx context.Context, it *types.Item) error {
	if it.Theme != "" {
		return nil
	}
	// Transcript text joins the signal when a prior run already produced it.
	text := it.Title
	if tr, ok, err := u.d.Store.GetTranscript(ctx, it.ID); err == nil && ok {
		text += " " + tr.Text()
	}
	it.Theme = theme.Classify(text, u.cfg.Themes.Keywords, u.cfg.Themes.Default)
	u.log.Info("classified", "item", it.ID, "theme", it.Theme)
	return u.d.Store.UpdateItem(ctx, it)
}

// Transcribe produces the source-language transcript. When the source
// carries captions covering enough of the runtime, they are parsed directly
// and ASR is skipped.
func (u Usecase) Transcribe(ctx context.Context, it *types.Item) error {
	if _, ok, err := u.d.Store.GetTranscript(ctx, it.ID); err != nil {
		return err
	} else if ok {
		return nil
	}

	if tr, ok := u.captionTranscript(it); ok {
		u.log.Info("transcribed from captions", "item", it.ID, "segments", len(tr.Segments))
		return u.d.Store.SaveTranscript(ctx, it.ID, tr)
	}

	tr, err := u.runASR(ctx, it)
	if err != nil {
		return err
	}
	u.log.Info("transcribed", "item", it.ID, "language", tr.Language, "segments", len(tr.Segments))
	return u.d.Store.SaveTranscript(ctx, it.ID, tr)
}

// captionTrack parses the item's caption file and reports its coverage. ok
// is false when the item has no captions or the track cannot be parsed.
func (u Usecase) captionTrack(it *types.Item) (types.Transcript, float64, bool) {
	if it.CaptionPath == "" {
		return types.Transcript{}, 0, false
	}
	b, err := os.ReadFile(it.CaptionPath)
	if err != nil {
		u.log.Warn("caption track unreadable", "item", it.ID, "error", err)
		return types.Transcript{}, 0, false
	}
	tr, err := vtt.Parse(string(b), "")
	if err != nil {
		u.log.Warn("caption track unparsable", "item", it.ID, "error", err)
		return types.Transcript{}, 0, false
	}
	return tr, vtt.Coverage(tr, it.SourceDuration), true
}

// captionTranscript parses the caption track when its coverage clears the
// configured threshold.
func (u Usecase) captionTranscript(it *types.Item) (types.Transcript, bool) {
	tr, cov, ok := u.captionTrack(it)
	if !ok {
		return types.Transcript{}, false
	}
	if cov < u.cfg.Translate.CoverageThreshold {
		u.log.Info("caption coverage below threshold",
			"item", it.ID, "coverage", cov, "threshold", u.cfg.Translate.CoverageThreshold)
		return types.Transcript{}, false
	}
	return tr, true
}

func (u Usecase) runASR(ctx context.Context, it *types.Item) (types.Transcript, error) {
	cacheDir := filepath.Join(u.cfg.Paths.Cache, "runs", it.ID)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return types.Transcript{}, err
	}
	wav := it.AudioPath
	if !strings.HasSuffix(wav, ".wav") {
		converted := filepath.Join(cacheDir, "audio.wav")
		if err := u.d.Comp.ExtractAudioMono16k(ctx, it.AudioPath, converted); err != nil {
			return types.Transcript{}, faults.Newf(types.StageTranscribed, faults.TranscriptionFailure,
				"convert audio: %v", err)
		}
		wav = converted
	}
	return u.d.ASR.Transcribe(ctx, wav, cacheDir)
}

// Translate converts the transcript into the target language. The caption
/// fast path gets exactly one fallback: on failure the item is re-transcribed
// with ASR and translated from that.
func (u Usecase) Translate(ctx context.Context, it *types.Item) error {
	lang := u.cfg.Translate.TargetLanguage
	if _, ok, err := u.d.Store.GetTranslation(ctx, it.ID, lang); err != nil {
		return err
	} else if ok {
		return nil
	}

	tr, ok, err := u.d.Store.GetTranscript(ctx, it.ID)
	if err != nil {
		return err
	}
	if !ok {
		return faults.Newf(types.StageTranslated, faults.TranslationFailure,
			"no transcript for item %s", it.ID)
	}

	// Coverage must come from the caption track itself. The stored transcript
	// may already be ASR output and would always look fully covered.
	_, coverage, hasCaptions := u.captionTrack(it)
	dec := selector.Choose(hasCaptions, coverage, u.cfg.Translate.CoverageThreshold)
	u.log.Info("translation method selected",
		"item", it.ID, "method", dec.Method, "coverage", dec.Coverage, "threshold", dec.Threshold)

	tl, err := u.translateTranscript(ctx, it, tr, dec.Method)
	if err != nil && dec.Method == types.MethodCaptionTranslate && !faults.IsTransient(err) {
		u.log.Warn("caption translation failed, falling back to transcript",
			"item", it.ID, "error", err)
		asrTr, asrErr := u.runASR(ctx, it)
		if asrErr != nil {
			return asrErr
		}
		if saveErr := u.d.Store.SaveTranscript(ctx, it.ID, asrTr); saveErr != nil {
			return saveErr
		}
		tl, err = u.translateTranscript(ctx, it, asrTr, types.MethodTranscriptTranslate)
	}
	if err != nil {
		return err
	}
	u.log.Info("translated", "item", it.ID, "method", tl.Method, "segments", tl.SegmentCount)
	return u.d.Store.SaveTranslation(ctx, tl)
}

func (u Usecase) translateTranscript(ctx context.Context, it *types.Item, tr types.Transcript, method types.Method) (types.Translation, error) {
	segs := make([]string, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		segs = append(segs, s.Text)
	}
	if len(segs) == 0 {
		return types.Translation{}, faults.Newf(types.StageTranslated, faults.TranslationFailure,
			"transcript for item %s is empty", it.ID)
	}

	out, err := u.d.Trans.Translate(ctx, segs, tr.Language, u.cfg.Translate.TargetLanguage)
	if err != nil {
		return types.Translation{}, err
	}
	if len(out) != len(segs) {
		return types.Translation{}, faults.Newf(types.StageTranslated, faults.TranslationFailure,
			"translator returned %d segments, want %d", len(out), len(segs))
	}

	text := strings.TrimSpace(strings.Join(out, " "))
	return types.Translation{
		ItemID:           it.ID,
		Language:         u.cfg.Translate.TargetLanguage,
		OriginalLanguage: tr.Language,
		Method:           method,
		Text:             text,
		SegmentCount:     len(out),
		FileSize:         int64(len(text)),
	}, nil
}

// Voice synthesizes the translated text into a single speech track.
func (u Usecase) Voice(ctx context.Context, it *types.Item) error {
	if _, ok, err := u.d.Store.GetVoiceAsset(ctx, it.ID); err != nil {
		return err
	} else if ok {
		return nil
	}

	tl, ok, err := u.d.Store.GetTranslation(ctx, it.ID, u.cfg.Translate.TargetLanguage)
	if err != nil {
		return err
	}
	if !ok {
		return faults.Newf(types.StageVoiced, faults.SynthesisFailure,
			"no translation for item %s", it.ID)
	}

	dir := filepath.Join(u.cfg.Paths.Media, "voice")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	va, err := u.d.Synth.Synthesize(ctx, tl.Text, u.cfg.Engines.SynthesisVoice,
		filepath.Join(dir, it.ID+".mp3"))
	if err != nil {
		return err
	}
	u.log.Info("voiced", "item", it.ID, "duration", va.Duration)
	return u.d.Store.SaveVoiceAsset(ctx, it.ID, va)
}

// Compose assembles the fixed-duration output video.
func (u Usecase) Compose(ctx context.Context, it *types.Item) error {
	if _, ok, err := u.d.Store.GetComposedVideo(ctx, it.ID); err != nil {
		return err
	} else if ok {
		return nil
	}

	tl, ok, err := u.d.Store.GetTranslation(ctx, it.ID, u.cfg.Translate.TargetLanguage)
	if err != nil {
		return err
	}
	if !ok {
		return faults.Newf(types.StageComposed, faults.AssemblyFailure, "no translation for item %s", it.ID)
	}
	va, ok, err := u.d.Store.GetVoiceAsset(ctx, it.ID)
	if err != nil {
		return err
	}
	if !ok {
		return faults.Newf(types.StageComposed, faults.AssemblyFailure, "no voice asset for item %s", it.ID)
	}

	cues, err := captions.Generate(tl.Text, captions.Params{
		Target:   u.cfg.TargetDuration(),
		Hook:     u.cfg.HookDuration(),
		CTA:      u.cfg.CTADuration(),
		HookText: u.cfg.Compose.HookText,
		CTAText:  u.cfg.Compose.CTAText,
		Rate:     u.cfg.Captions.RateWordsPerSec,
		MinCue:   u.cfg.MinCue(),
		MaxCue:   u.cfg.MaxCue(),
	})
	if err != nil {
		return err
	}

	bgDir := filepath.Join(u.cfg.Paths.Media, "background")
	if err := os.MkdirAll(bgDir, 0o755); err != nil {
		return err
	}
	bgPath, bgDur, err := u.d.Footage.FetchBackground(ctx, it.Theme, bgDir)
	if err != nil {
		return err
	}

	hookAudio, err := u.bumperAudio(ctx, "hook", u.cfg.Compose.HookText)
	if err != nil {
		return err
	}
	ctaAudio, err := u.bumperAudio(ctx, "cta", u.cfg.Compose.CTAText)
	if err != nil {
		return err
	}

	plan, err := compose.BuildPlan(compose.Inputs{
		Target:             u.cfg.TargetDuration(),
		Hook:               u.cfg.HookDuration(),
		CTA:                u.cfg.CTADuration(),
		Voice:              va,
		BackgroundDuration: bgDur,
		HookAudioPath:      hookAudio,
		CTAAudioPath:       ctaAudio,
		Cues:               cues,
	})
	if err != nil {
		return err
	}

	runDir := filepath.Join(u.cfg.Paths.Cache, "runs", it.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	assPath := filepath.Join(runDir, "captions.ass")
	if err := os.WriteFile(assPath, []byte(captions.RenderASS(cues)), 0o644); err != nil {
		return err
	}

	outDir := filepath.Join(u.cfg.Paths.Media, "final")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	outPath := filepath.Join(outDir, it.ID+".mp4")
	if err := u.d.Comp.Compose(ctx, plan, bgPath, va.Path, assPath, outPath); err != nil {
		return faults.Newf(types.StageComposed, faults.AssemblyFailure, "compose: %v", err)
	}

	u.log.Info("composed", "item", it.ID, "path", outPath, "duration", plan.Target)
	return u.d.Store.SaveComposedVideo(ctx, types.ComposedVideo{
		ItemID:   it.ID,
		Path:     outPath,
		Duration: plan.Target,
		Cues:     cues,
	})
}

// bumperAudio renders the hook or CTA line once and caches the file across
// items.
func (u Usecase) bumperAudio(ctx context.Context, name, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	dir := filepath.Join(u.cfg.Paths.Cache, "bumpers")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".mp3")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	va, err := u.d.Synth.Synthesize(ctx, text, u.cfg.Engines.SynthesisVoice, path)
	if err != nil {
		return "", err
	}
	return va.Path, nil
}

// Shorts derives the per-platform clips from the composed video.
func (u Usecase) Shorts(ctx context.Context, it *types.Item) error {
	existing, err := u.d.Store.ListShorts(ctx, it.ID)
	if err != nil {
		return err
	}
	if len(existing) >= len(u.cfg.Platforms) {
		return nil
	}

	cv, ok, err := u.d.Store.GetComposedVideo(ctx, it.ID)
	if err != nil {
		return err
	}
	if !ok {
		return faults.Newf(types.StageShorted, faults.AssemblyFailure, "no composed video for item %s", it.ID)
	}

	made, err := u.d.Shorts.Generate(ctx, it, cv)
	if err != nil {
		return err
	}
	u.log.Info("shorts generated", "item", it.ID, "count", len(made))
	return nil
}
