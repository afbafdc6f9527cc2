// Package shorts turns a composed video into per-platform clips around its
// highest scoring highlight window.
package shorts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dubclip/dubclip/internal/compose"
	"github.com/dubclip/dubclip/internal/config"
	"github.com/dubclip/dubclip/internal/domain/viral"
	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/ports"
	"github.com/dubclip/dubclip/internal/types"
)

type Deps struct {
	Synth ports.SpeechSynth
	Comp  ports.Compositor
	Store ports.Store
}

type Assembler struct {
	d   Deps
	cfg *config.Config
	log *slog.Logger

	// CTA audio is rendered once per platform line and reused across items.
	mu       sync.Mutex
	ctaCache map[string]string
}

func New(d Deps, cfg *config.Config, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{d: d, cfg: cfg, log: log, ctaCache: make(map[string]string)}
}

// Generate selects one highlight window per platform and renders the clip,
// thumbnail and record for each. A platform whose duration bounds no window
// can satisfy is skipped with a logged failure; the others still render.
func (a *Assembler) Generate(ctx context.Context, it *types.Item, cv types.ComposedVideo) ([]types.Short, error) {
	tr := cueTranscript(cv.Cues)
	if len(tr.Segments) == 0 {
		return nil, faults.Newf(types.StageShorted, faults.SegmentSelectionFailure,
			"composed video %s has no content cues", cv.ItemID)
	}

	outDir := filepath.Join(a.cfg.Paths.Media, "shorts", it.ID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	var out []types.Short
	var firstErr error
	for _, platform := range sortedPlatforms(a.cfg.Platforms) {
		sh, err := a.generateOne(ctx, it, cv, tr, platform, outDir)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			a.log.Warn("short generation failed",
				"item", it.ID, "platform", platform, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, sh)
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (a *Assembler) generateOne(ctx context.Context, it *types.Item, cv types.ComposedVideo, tr types.Transcript, platform, outDir string) (types.Short, error) {
	pc := a.cfg.Platforms[platform]

	seg, err := viral.Detect(tr, viral.Params{
		MinDuration: pc.MinDuration(),
		MaxDuration: pc.MaxDuration(),
		Stride:      time.Duration(a.cfg.Viral.StrideSec * float64(time.Second)),
		Weights: viral.Weights{
			Keywords: a.cfg.Viral.KeywordWeights,
			Emphasis: a.cfg.Viral.EmphasisWeight,
			Position: a.cfg.Viral.PositionWeight,
		},
	})
	switch {
	case err == nil:
		a.log.Info("highlight selected",
			"item", it.ID, "platform", platform,
			"start", seg.Start, "end", seg.End,
			"score", seg.Score, "signals", seg.Signals)
	case errors.Is(err, viral.ErrNoWindow):
		// The content track is shorter than the platform minimum. Loop the
		// source to fill the minimum instead of dropping the platform.
		seg, err = extendedWindow(tr, pc.MinDuration())
		if err != nil {
			return types.Short{}, faults.Newf(types.StageShorted, faults.SegmentSelectionFailure,
				"%s: %v", platform, err)
		}
		a.log.Info("highlight window extended",
			"item", it.ID, "platform", platform,
			"start", seg.Start, "end", seg.End)
	default:
		return types.Short{}, faults.Newf(types.StageShorted, faults.SegmentSelectionFailure,
			"%s: %v", platform, err)
	}

	ctaAudio, err := a.ctaAudio(ctx, platform, pc.CTALine)
	if err != nil {
		return types.Short{}, err
	}

	clipPath := filepath.Join(outDir, platform+".mp4")
	spec := ports.ShortSpec{
		Input:        cv.Path,
		Start:        seg.Start,
		End:          seg.End,
		AspectRatio:  pc.AspectRatio,
		Effects:      pc.Effects,
		CTAAudioPath: ctaAudio,
		Loops:        compose.LoopCount(cv.Duration, seg.End),
		Output:       clipPath,
	}
	if err := a.d.Comp.RenderShort(ctx, spec); err != nil {
		return types.Short{}, faults.Newf(types.StageShorted, faults.AssemblyFailure,
			"render %s: %v", platform, err)
	}

	thumbPath := filepath.Join(outDir, platform+".jpg")
	if err := a.d.Comp.Thumbnail(ctx, clipPath, 500*time.Millisecond, thumbPath); err != nil {
		// A missing thumbnail does not invalidate the clip.
		a.log.Warn("thumbnail failed", "item", it.ID, "platform", platform, "error", err)
		thumbPath = ""
	}

	sh := types.Short{
		ID:            uuid.NewString(),
		ItemID:        it.ID,
		Platform:      platform,
		Start:         seg.Start,
		End:           seg.End,
		Path:          clipPath,
		ThumbnailPath: thumbPath,
		Title:         shortTitle(it.Title, seg.Text),
		CreatedAt:     time.Now(),
	}
	if err := a.d.Store.SaveShort(ctx, sh); err != nil {
		return types.Short{}, err
	}
	a.recordAnalytics(ctx, it.ID, platform, "short_created", clipPath)
	if thumbPath != "" {
		a.recordAnalytics(ctx, it.ID, platform, "thumbnail_created", thumbPath)
	}
	return sh, nil
}

// ctaAudio returns the rendered CTA line for the platform, synthesizing it
// on first use.
func (a *Assembler) ctaAudio(ctx context.Context, platform, line string) (string, error) {
	if line == "" {
		return "", nil
	}
	a.mu.Lock()
	cached, ok := a.ctaCache[platform]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	dir := filepath.Join(a.cfg.Paths.Cache, "cta")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, platform+".mp3")
	va, err := a.d.Synth.Synthesize(ctx, line, a.cfg.Engines.SynthesisVoice, path)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.ctaCache[platform] = va.Path
	a.mu.Unlock()
	return va.Path, nil
}

func (a *Assembler) recordAnalytics(ctx context.Context, itemID, platform, kind, path string) {
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	ev := ports.AnalyticsEvent{
		ItemID:    itemID,
		Platform:  platform,
		Kind:      kind,
		SizeBytes: size,
		CreatedAt: time.Now(),
	}
	if err := a.d.Store.AddAnalytics(ctx, ev); err != nil {
		a.log.Warn("analytics write failed", "item", itemID, "kind", kind, "error", err)
	}
}

// cueTranscript projects the composed video's content cues into a transcript
// so highlight detection scores the text the viewer actually sees.
func cueTranscript(cues []types.CaptionCue) types.Transcript {
	var tr types.Transcript
	for _, c := range cues {
		if c.Role != types.RoleContent {
			continue
		}
		tr.Segments = append(tr.Segments, types.Segment{
			Start: types.Sec(c.Start),
			End:   types.Sec(c.End),
			Text:  c.Text,
		})
	}
	return tr
}

// extendedWindow covers the whole content track and pads it to min by looping
// the source. It only applies when the track itself cannot fill the minimum.
func extendedWindow(tr types.Transcript, min time.Duration) (types.ViralSegment, error) {
	segs := tr.Segments
	if len(segs) == 0 {
		return types.ViralSegment{}, viral.ErrNoWindow
	}
	start := types.Dur(segs[0].Start)
	span := types.Dur(segs[len(segs)-1].End) - start
	if span >= min {
		return types.ViralSegment{}, viral.ErrNoWindow
	}
	var parts []string
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return types.ViralSegment{
		Start:   start,
		End:     start + min,
		Text:    strings.Join(parts, " "),
		Signals: []string{"window:extended-to-minimum"},
	}, nil
}

func sortedPlatforms(m map[string]config.PlatformConfig) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func shortTitle(itemTitle, segText string) string {
	if itemTitle == "" {
		return "Short"
	}
	// Truncate on a rune boundary; the text is usually accented French.
	if r := []rune(segText); len(r) > 40 {
		segText = string(r[:40])
	}
	if segText == "" {
		return itemTitle
	}
	return fmt.Sprintf("%s - %s", itemTitle, segText)
}
