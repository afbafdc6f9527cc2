package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dubclip/dubclip/internal/ports"
	"github.com/dubclip/dubclip/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dubclip.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(id string) *types.Item {
	return &types.Item{
		ID:             id,
		Title:          "Sample video",
		SourceURL:      "https://example.com/watch?v=" + id,
		SourceDuration: 95 * time.Second,
		Stages:         map[types.Stage]types.StageState{types.StageIngested: types.StateDone},
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestItemRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	it := testItem("item-1")
	if err := s.CreateItem(ctx, it); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	got, err := s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Title != it.Title || got.SourceDuration != it.SourceDuration {
		t.Fatalf("got %+v, want %+v", got, it)
	}
	if got.StageState(types.StageIngested) != types.StateDone {
		t.Fatalf("ingested state = %v", got.StageState(types.StageIngested))
	}
	if got.StageState(types.StageVoiced) != types.StatePending {
		t.Fatalf("unset stage state = %v", got.StageState(types.StageVoiced))
	}

	got.Theme = "nature"
	got.Stages[types.StageClassified] = types.StateDone
	if err := s.UpdateItem(ctx, got); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	again, err := s.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("GetItem after update: %v", err)
	}
	if again.Theme != "nature" || again.StageState(types.StageClassified) != types.StateDone {
		t.Fatalf("update not persisted: %+v", again)
	}
}

func TestCreateItemRejectsDuplicateSourceURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testItem("item-1")
	if err := s.CreateItem(ctx, first); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	second := testItem("item-2")
	second.SourceURL = first.SourceURL
	if err := s.CreateItem(ctx, second); err == nil {
		t.Fatal("want unique constraint error for duplicate source_url")
	}
	items, err := s.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestGetItemMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetItem(context.Background(), "nope"); err == nil {
		t.Fatal("want error for missing item")
	}
	if err := s.UpdateItem(context.Background(), testItem("nope")); err == nil {
		t.Fatal("want error updating missing item")
	}
}

func TestArtifactAbsenceReportsFalse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateItem(ctx, testItem("item-1")); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	if _, ok, err := s.GetTranscript(ctx, "item-1"); err != nil || ok {
		t.Fatalf("GetTranscript = ok=%v err=%v, want absent", ok, err)
	}
	if _, ok, err := s.GetTranslation(ctx, "item-1", "fr"); err != nil || ok {
		t.Fatalf("GetTranslation = ok=%v err=%v, want absent", ok, err)
	}
	if _, ok, err := s.GetVoiceAsset(ctx, "item-1"); err != nil || ok {
		t.Fatalf("GetVoiceAsset = ok=%v err=%v, want absent", ok, err)
	}
	if _, ok, err := s.GetComposedVideo(ctx, "item-1"); err != nil || ok {
		t.Fatalf("GetComposedVideo = ok=%v err=%v, want absent", ok, err)
	}
}

func TestTranscriptAndTranslationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateItem(ctx, testItem("item-1")); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	tr := types.Transcript{
		Language: "en",
		Segments: []types.Segment{
			{Start: 0, End: 4.5, Text: "Hello.", Confidence: 0.9},
			{Start: 4.5, End: 9, Text: "World.", Confidence: 0.8},
		},
	}
	if err := s.SaveTranscript(ctx, "item-1", tr); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	gotTr, ok, err := s.GetTranscript(ctx, "item-1")
	if err != nil || !ok {
		t.Fatalf("GetTranscript = ok=%v err=%v", ok, err)
	}
	if gotTr.Language != "en" || len(gotTr.Segments) != 2 || gotTr.Segments[1].Text != "World." {
		t.Fatalf("transcript = %+v", gotTr)
	}

	tl := types.Translation{
		ItemID:           "item-1",
		Language:         "fr",
		OriginalLanguage: "en",
		Method:           types.MethodCaptionTranslate,
		Text:             "Bonjour. Monde.",
		SegmentCount:     2,
		FileSize:         15,
	}
	if err := s.SaveTranslation(ctx, tl); err != nil {
		t.Fatalf("SaveTranslation: %v", err)
	}
	gotTl, ok, err := s.GetTranslation(ctx, "item-1", "fr")
	if err != nil || !ok {
		t.Fatalf("GetTranslation = ok=%v err=%v", ok, err)
	}
	if gotTl.Method != types.MethodCaptionTranslate || gotTl.Text != tl.Text {
		t.Fatalf("translation = %+v", gotTl)
	}

	// Saving again replaces, not duplicates.
	tl.Method = types.MethodTranscriptTranslate
	if err := s.SaveTranslation(ctx, tl); err != nil {
		t.Fatalf("SaveTranslation upsert: %v", err)
	}
	gotTl, _, _ = s.GetTranslation(ctx, "item-1", "fr")
	if gotTl.Method != types.MethodTranscriptTranslate {
		t.Fatalf("upsert method = %v", gotTl.Method)
	}
}

func TestShortsAndAnalytics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateItem(ctx, testItem("item-1")); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	for _, platform := range []string{"tiktok", "youtube_shorts"} {
		sh := types.Short{
			ID:        "short-" + platform,
			ItemID:    "item-1",
			Platform:  platform,
			Start:     10 * time.Second,
			End:       40 * time.Second,
			Path:      "/out/" + platform + ".mp4",
			Title:     "Clip",
			CreatedAt: time.Now(),
		}
		if err := s.SaveShort(ctx, sh); err != nil {
			t.Fatalf("SaveShort: %v", err)
		}
		if err := s.AddAnalytics(ctx, ports.AnalyticsEvent{ItemID: "item-1", Platform: platform, Kind: "short_created", SizeBytes: 1000}); err != nil {
			t.Fatalf("AddAnalytics: %v", err)
		}
	}

	shorts, err := s.ListShorts(ctx, "item-1")
	if err != nil {
		t.Fatalf("ListShorts: %v", err)
	}
	if len(shorts) != 2 {
		t.Fatalf("shorts = %d, want 2", len(shorts))
	}
	if shorts[0].Start != 10*time.Second || shorts[0].End != 40*time.Second {
		t.Fatalf("short timing = %+v", shorts[0])
	}

	n, err := s.CountAnalytics(ctx, "tiktok", "short_created")
	if err != nil || n != 1 {
		t.Fatalf("CountAnalytics(tiktok) = %d, %v", n, err)
	}
	n, err = s.CountAnalytics(ctx, "", "short_created")
	if err != nil || n != 2 {
		t.Fatalf("CountAnalytics(all platforms) = %d, %v", n, err)
	}

	if err := s.DeleteShorts(ctx, "item-1", "tiktok"); err != nil {
		t.Fatalf("DeleteShorts: %v", err)
	}
	shorts, _ = s.ListShorts(ctx, "item-1")
	if len(shorts) != 1 || shorts[0].Platform != "youtube_shorts" {
		t.Fatalf("after delete shorts = %+v", shorts)
	}
}

func TestDeleteItemCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateItem(ctx, testItem("item-1")); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := s.SaveVoiceAsset(ctx, "item-1", types.VoiceAsset{Path: "/v.mp3", Duration: 55 * time.Second}); err != nil {
		t.Fatalf("SaveVoiceAsset: %v", err)
	}
	if err := s.DeleteItem(ctx, "item-1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, ok, err := s.GetVoiceAsset(ctx, "item-1"); err != nil || ok {
		t.Fatalf("voice asset survived delete: ok=%v err=%v", ok, err)
	}
}
