package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dubclip/dubclip/internal/compose"
	"github.com/dubclip/dubclip/internal/config"
	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/ports"
	"github.com/dubclip/dubclip/internal/shorts"
	"github.com/dubclip/dubclip/internal/types"
)

type memStore struct {
	items        map[string]*types.Item
	transcripts  map[string]types.Transcript
	translations map[string]types.Translation
	voices       map[string]types.VoiceAsset
	composed     map[string]types.ComposedVideo
	shorts       []types.Short
	analytics    []ports.AnalyticsEvent
}

func newMemStore() *memStore {
	return &memStore{
		items:        map[string]*types.Item{},
		transcripts:  map[string]types.Transcript{},
		translations: map[string]types.Translation{},
		voices:       map[string]types.VoiceAsset{},
		composed:     map[string]types.ComposedVideo{},
	}
}

func (m *memStore) Close() error { return nil }
func (m *memStore) CreateItem(ctx context.Context, it *types.Item) error {
	cp := *it
	m.items[it.ID] = &cp
	return nil
}
func (m *memStore) GetItem(ctx context.Context, id string) (*types.Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s not found", id)
	}
	cp := *it
	return &cp, nil
}
func (m *memStore) ListItems(ctx context.Context) ([]types.Item, error) {
	var out []types.Item
	for _, it := range m.items {
		out = append(out, *it)
	}
	return out, nil
}
func (m *memStore) UpdateItem(ctx context.Context, it *types.Item) error {
	if _, ok := m.items[it.ID]; !ok {
		return fmt.Errorf("item %s not found", it.ID)
	}
	cp := *it
	m.items[it.ID] = &cp
	return nil
}
func (m *memStore) DeleteItem(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}
func (m *memStore) SaveTranscript(ctx context.Context, itemID string, tr types.Transcript) error {
	m.transcripts[itemID] = tr
	return nil
}
func (m *memStore) GetTranscript(ctx context.Context, itemID string) (types.Transcript, bool, error) {
	tr, ok := m.transcripts[itemID]
	return tr, ok, nil
}
func (m *memStore) SaveTranslation(ctx context.Context, tl types.Translation) error {
	m.translations[tl.ItemID+"|"+tl.Language] = tl
	return nil
}
func (m *memStore) GetTranslation(ctx context.Context, itemID, language string) (types.Translation, bool, error) {
	tl, ok := m.translations[itemID+"|"+language]
	return tl, ok, nil
}
func (m *memStore) SaveVoiceAsset(ctx context.Context, itemID string, va types.VoiceAsset) error {
	m.voices[itemID] = va
	return nil
}
func (m *memStore) GetVoiceAsset(ctx context.Context, itemID string) (types.VoiceAsset, bool, error) {
	va, ok := m.voices[itemID]
	return va, ok, nil
}
func (m *memStore) SaveComposedVideo(ctx context.Context, cv types.ComposedVideo) error {
	m.composed[cv.ItemID] = cv
	return nil
}
func (m *memStore) GetComposedVideo(ctx context.Context, itemID string) (types.ComposedVideo, bool, error) {
	cv, ok := m.composed[itemID]
	return cv, ok, nil
}
func (m *memStore) SaveShort(ctx context.Context, sh types.Short) error {
	m.shorts = append(m.shorts, sh)
	return nil
}
func (m *memStore) ListShorts(ctx context.Context, itemID string) ([]types.Short, error) {
	var out []types.Short
	for _, sh := range m.shorts {
		if sh.ItemID == itemID {
			out = append(out, sh)
		}
	}
	return out, nil
}
func (m *memStore) DeleteShorts(ctx context.Context, itemID, platform string) error { return nil }
func (m *memStore) AddAnalytics(ctx context.Context, ev ports.AnalyticsEvent) error {
	m.analytics = append(m.analytics, ev)
	return nil
}
func (m *memStore) CountAnalytics(ctx context.Context, platform, kind string) (int64, error) {
	return int64(len(m.analytics)), nil
}

type fakeSource struct {
	fetched ports.Fetched
	calls   int
}

func (f *fakeSource) Fetch(ctx context.Context, url, destDir string) (ports.Fetched, error) {
	f.calls++
	return f.fetched, nil
}

type fakeASR struct {
	tr    types.Transcript
	calls int
}

func (f *fakeASR) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	f.calls++
	return f.tr, nil
}

type fakeTrans struct {
	calls    int
	failNext int
}

func (f *fakeTrans) Translate(ctx context.Context, segments []string, source, target string) ([]string, error) {
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return nil, faults.Newf(types.StageTranslated, faults.TranslationFailure, "boom")
	}
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = target + ":" + s
	}
	return out, nil
}

type fakeSynth struct {
	calls    int
	duration time.Duration
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice, outPath string) (types.VoiceAsset, error) {
	f.calls++
	if err := os.WriteFile(outPath, []byte("audio"), 0o644); err != nil {
		return types.VoiceAsset{}, err
	}
	return types.VoiceAsset{Path: outPath, Duration: f.duration}, nil
}

type fakeFootage struct {
	duration time.Duration
}

func (f *fakeFootage) FetchBackground(ctx context.Context, theme, destDir string) (string, time.Duration, error) {
	path := filepath.Join(destDir, "bg.mp4")
	if err := os.WriteFile(path, []byte("bg"), 0o644); err != nil {
		return "", 0, err
	}
	return path, f.duration, nil
}

type fakeComp struct {
	plans    []compose.Plan
	rendered []ports.ShortSpec
}

func (f *fakeComp) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	return os.WriteFile(outWav, []byte("wav"), 0o644)
}
func (f *fakeComp) ProbeDuration(ctx context.Context, in string) (time.Duration, error) {
	return 0, nil
}
func (f *fakeComp) Compose(ctx context.Context, plan compose.Plan, backgroundPath, voicePath, subtitlePath, outPath string) error {
	f.plans = append(f.plans, plan)
	return os.WriteFile(outPath, []byte("video"), 0o644)
}
func (f *fakeComp) RenderShort(ctx context.Context, spec ports.ShortSpec) error {
	f.rendered = append(f.rendered, spec)
	return os.WriteFile(spec.Output, []byte("clip"), 0o644)
}
func (f *fakeComp) Thumbnail(ctx context.Context, videoPath string, at time.Duration, outPath string) error {
	return os.WriteFile(outPath, []byte("jpg"), 0o644)
}

type env struct {
	uc      Usecase
	cfg     *config.Config
	store   *memStore
	source  *fakeSource
	asr     *fakeASR
	trans   *fakeTrans
	synth   *fakeSynth
	footage *fakeFootage
	comp    *fakeComp
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Paths.Media = filepath.Join(dir, "media")
	cfg.Paths.Cache = filepath.Join(dir, "cache")
	cfg.Paths.Data = filepath.Join(dir, "data")

	e := &env{
		cfg:     cfg,
		store:   newMemStore(),
		source:  &fakeSource{},
		asr:     &fakeASR{tr: sampleTranscript()},
		trans:   &fakeTrans{},
		synth:   &fakeSynth{duration: 50 * time.Second},
		footage: &fakeFootage{duration: 25 * time.Second},
		comp:    &fakeComp{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := Deps{
		Source:  e.source,
		ASR:     e.asr,
		Trans:   e.trans,
		Synth:   e.synth,
		Footage: e.footage,
		Comp:    e.comp,
		Store:   e.store,
	}
	deps.Shorts = shorts.New(shorts.Deps{Synth: e.synth, Comp: e.comp, Store: e.store}, cfg, log)
	e.uc = New(deps, cfg, log)
	return e
}

func sampleTranscript() types.Transcript {
	var segs []types.Segment
	for i := 0; i < 10; i++ {
		segs = append(segs, types.Segment{
			Start: float64(i * 9),
			End:   float64(i*9 + 9),
			Text:  fmt.Sprintf("Source sentence number %d with several spoken words here.", i),
		})
	}
	return types.Transcript{Language: "en", Segments: segs}
}

func seedItem(t *testing.T, e *env, captionPath string) *types.Item {
	t.Helper()
	it := &types.Item{
		ID:             "item-1",
		Title:          "How to invest money in a startup",
		SourceURL:      "https://example.com/watch?v=1",
		SourceDuration: 90 * time.Second,
		AudioPath:      filepath.Join(t.TempDir(), "audio.wav"),
		CaptionPath:    captionPath,
		Stages:         map[types.Stage]types.StageState{types.StageIngested: types.StateDone},
		CreatedAt:      time.Now(),
	}
	if err := e.store.CreateItem(context.Background(), it); err != nil {
		t.Fatal(err)
	}
	return it
}

func writeVTT(t *testing.T, upTo int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i := 0; i < upTo; i++ {
		fmt.Fprintf(&b, "00:%02d:%02d.000 --> 00:%02d:%02d.000\nCaption line %d here.\n\n",
			(i*9)/60, (i*9)%60, (i*9+9)/60, (i*9+9)%60, i)
	}
	path := filepath.Join(t.TempDir(), "caps.vtt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestIsIdempotentPerURL(t *testing.T) {
	e := newEnv(t)
	e.source.fetched = ports.Fetched{Title: "T", Duration: 90 * time.Second, AudioPath: "/a.wav"}
	ctx := context.Background()

	first, err := e.uc.Ingest(ctx, "https://example.com/v")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	second, err := e.uc.Ingest(ctx, "https://example.com/v")
	if err != nil {
		t.Fatalf("Ingest again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("second ingest created a new item: %s vs %s", first.ID, second.ID)
	}
	if e.source.calls != 1 {
		t.Fatalf("source fetch called %d times, want 1", e.source.calls)
	}
}

func TestClassifyUsesThemeKeywords(t *testing.T) {
	e := newEnv(t)
	it := seedItem(t, e, "")
	if err := e.uc.Classify(context.Background(), it); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	// Title mentions money and startup.
	if it.Theme != "business" {
		t.Fatalf("theme = %q, want business", it.Theme)
	}
}

func TestTranscribeUsesCaptionsWhenCovered(t *testing.T) {
	e := newEnv(t)
	// 10 cues of 9s over a 90s source: full coverage.
	it := seedItem(t, e, writeVTT(t, 10))
	if err := e.uc.Transcribe(context.Background(), it); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if e.asr.calls != 0 {
		t.Fatalf("ASR ran despite caption coverage")
	}
	tr, ok, _ := e.store.GetTranscript(context.Background(), it.ID)
	if !ok || len(tr.Segments) != 10 {
		t.Fatalf("transcript = ok=%v segments=%d", ok, len(tr.Segments))
	}
}

func TestTranscribeFallsBackToASRBelowThreshold(t *testing.T) {
	e := newEnv(t)
	// 4 cues of 9s over 90s: coverage 0.4 < 0.8.
	it := seedItem(t, e, writeVTT(t, 4))
	if err := e.uc.Transcribe(context.Background(), it); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if e.asr.calls != 1 {
		t.Fatalf("ASR calls = %d, want 1", e.asr.calls)
	}
}

func TestTranscribeSkipsWhenArtifactExists(t *testing.T) {
	e := newEnv(t)
	it := seedItem(t, e, "")
	e.store.SaveTranscript(context.Background(), it.ID, sampleTranscript())
	if err := e.uc.Transcribe(context.Background(), it); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if e.asr.calls != 0 {
		t.Fatalf("ASR ran for existing transcript")
	}
}

func TestTranslateCaptionMethodFallsBackOnce(t *testing.T) {
	e := newEnv(t)
	it := seedItem(t, e, writeVTT(t, 10))
	ctx := context.Background()
	if err := e.uc.Transcribe(ctx, it); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	e.trans.failNext = 1
	if err := e.uc.Translate(ctx, it); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if e.asr.calls != 1 {
		t.Fatalf("fallback did not re-transcribe: asr calls = %d", e.asr.calls)
	}
	tl, ok, _ := e.store.GetTranslation(ctx, it.ID, "fr")
	if !ok {
		t.Fatal("translation missing")
	}
	if tl.Method != types.MethodTranscriptTranslate {
		t.Fatalf("method = %v, want transcript-translate after fallback", tl.Method)
	}
}

func TestTranslateTranscriptMethod(t *testing.T) {
	e := newEnv(t)
	it := seedItem(t, e, "")
	ctx := context.Background()
	if err := e.uc.Transcribe(ctx, it); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if err := e.uc.Translate(ctx, it); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	tl, ok, _ := e.store.GetTranslation(ctx, it.ID, "fr")
	if !ok || tl.Method != types.MethodTranscriptTranslate {
		t.Fatalf("translation = ok=%v method=%v", ok, tl.Method)
	}
	if tl.SegmentCount != 10 || !strings.Contains(tl.Text, "fr:") {
		t.Fatalf("translation content = %+v", tl)
	}
}

func TestTranslateLowCoverageCaptionsUsesTranscriptMethod(t *testing.T) {
	e := newEnv(t)
	// 4 cues of 9s over 90s: coverage 0.4, so ASR supplies the transcript.
	it := seedItem(t, e, writeVTT(t, 4))
	ctx := context.Background()
	if err := e.uc.Transcribe(ctx, it); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if e.asr.calls != 1 {
		t.Fatalf("asr calls after transcribe = %d, want 1", e.asr.calls)
	}
	if err := e.uc.Translate(ctx, it); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	tl, ok, _ := e.store.GetTranslation(ctx, it.ID, "fr")
	if !ok || tl.Method != types.MethodTranscriptTranslate {
		t.Fatalf("translation = ok=%v method=%v, want transcript-translate", ok, tl.Method)
	}
	if e.asr.calls != 1 {
		t.Fatalf("translate re-ran ASR: calls = %d", e.asr.calls)
	}
}

func TestTranslateTranscriptMethodFailureSkipsFallback(t *testing.T) {
	e := newEnv(t)
	it := seedItem(t, e, writeVTT(t, 4))
	ctx := context.Background()
	if err := e.uc.Transcribe(ctx, it); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	e.trans.failNext = 1
	if err := e.uc.Translate(ctx, it); err == nil {
		t.Fatal("want translation error")
	}
	// The caption fallback must not arm for a translation that already came
	// from the transcript.
	if e.asr.calls != 1 {
		t.Fatalf("failure triggered another ASR run: calls = %d", e.asr.calls)
	}
}

func TestComposeBuildsSeventySecondVideo(t *testing.T) {
	e := newEnv(t)
	it := seedItem(t, e, "")
	ctx := context.Background()
	for _, st := range []types.Stage{types.StageClassified, types.StageTranscribed, types.StageTranslated, types.StageVoiced, types.StageComposed} {
		if err := e.uc.RunStage(ctx, it, st); err != nil {
			t.Fatalf("stage %s: %v", st, err)
		}
	}

	cv, ok, _ := e.store.GetComposedVideo(ctx, it.ID)
	if !ok {
		t.Fatal("composed video missing")
	}
	if cv.Duration != 70*time.Second {
		t.Fatalf("duration = %v, want 70s", cv.Duration)
	}
	if len(cv.Cues) == 0 || cv.Cues[len(cv.Cues)-1].End != 70*time.Second {
		t.Fatalf("cue track does not end at target: %+v", cv.Cues[len(cv.Cues)-1])
	}

	if len(e.comp.plans) != 1 {
		t.Fatalf("compose calls = %d", len(e.comp.plans))
	}
	plan := e.comp.plans[0]
	if plan.VoiceOffset != 5*time.Second {
		t.Fatalf("voice offset = %v", plan.VoiceOffset)
	}
	// 50s voice in a 60s window leaves 10s of silence.
	if plan.SilencePad != 10*time.Second {
		t.Fatalf("silence pad = %v", plan.SilencePad)
	}
	// 25s background needs 3 loops to cover 70s.
	if plan.BackgroundLoops != 3 {
		t.Fatalf("background loops = %v", plan.BackgroundLoops)
	}
	if plan.HookAudioPath == "" || plan.CTAAudioPath == "" {
		t.Fatal("bumper audio missing from plan")
	}
}

func TestComposeRejectsOverlongVoice(t *testing.T) {
	e := newEnv(t)
	e.synth.duration = 65 * time.Second
	it := seedItem(t, e, "")
	ctx := context.Background()
	for _, st := range []types.Stage{types.StageClassified, types.StageTranscribed, types.StageTranslated, types.StageVoiced} {
		if err := e.uc.RunStage(ctx, it, st); err != nil {
			t.Fatalf("stage %s: %v", st, err)
		}
	}
	err := e.uc.Compose(ctx, it)
	if err == nil {
		t.Fatal("want error for 65s voice in 60s window")
	}
	if faults.KindOf(err) != faults.AssemblyFailure {
		t.Fatalf("kind = %v", faults.KindOf(err))
	}
}

func TestBumperAudioCachedAcrossItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, id := range []string{"item-1", "item-2"} {
		it := &types.Item{
			ID: id, Title: "t", SourceURL: "u-" + id,
			SourceDuration: 90 * time.Second,
			AudioPath:      filepath.Join(t.TempDir(), "a.wav"),
			Stages:         map[types.Stage]types.StageState{},
			CreatedAt:      time.Now(),
		}
		e.store.CreateItem(ctx, it)
		for _, st := range []types.Stage{types.StageClassified, types.StageTranscribed, types.StageTranslated, types.StageVoiced, types.StageComposed} {
			if err := e.uc.RunStage(ctx, it, st); err != nil {
				t.Fatalf("%s stage %s: %v", id, st, err)
			}
		}
	}
	// Per item: one voice synthesis. Bumpers (hook, cta) render once total.
	if e.synth.calls != 2+2 {
		t.Fatalf("synth calls = %d, want 4", e.synth.calls)
	}
}

func TestShortsStage(t *testing.T) {
	e := newEnv(t)
	it := seedItem(t, e, "")
	ctx := context.Background()
	for _, st := range []types.Stage{types.StageClassified, types.StageTranscribed, types.StageTranslated, types.StageVoiced, types.StageComposed, types.StageShorted} {
		if err := e.uc.RunStage(ctx, it, st); err != nil {
			t.Fatalf("stage %s: %v", st, err)
		}
	}
	made, _ := e.store.ListShorts(ctx, it.ID)
	if len(made) != len(e.cfg.Platforms) {
		t.Fatalf("shorts = %d, want %d", len(made), len(e.cfg.Platforms))
	}
	// Rerun is a no-op.
	before := len(e.comp.rendered)
	if err := e.uc.Shorts(ctx, it); err != nil {
		t.Fatalf("Shorts rerun: %v", err)
	}
	if len(e.comp.rendered) != before {
		t.Fatal("rerun re-rendered shorts")
	}
}
