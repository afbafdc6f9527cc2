package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dubclip/dubclip/internal/config"
	"github.com/dubclip/dubclip/internal/ports"
	"github.com/dubclip/dubclip/internal/ports/adapters/elevenlabs"
	"github.com/dubclip/dubclip/internal/ports/adapters/ffmpeg"
	"github.com/dubclip/dubclip/internal/ports/adapters/libretranslate"
	"github.com/dubclip/dubclip/internal/ports/adapters/pexels"
	"github.com/dubclip/dubclip/internal/ports/adapters/sqlite"
	"github.com/dubclip/dubclip/internal/ports/adapters/whispercpp"
	"github.com/dubclip/dubclip/internal/ports/adapters/ytdlp"
	"github.com/dubclip/dubclip/internal/shorts"
	"github.com/dubclip/dubclip/internal/usecase"
)

// Secrets carries the API keys the remote adapters need. The CLI reads them
// from the environment.
type Secrets struct {
	TranslateKey string
	SynthesisKey string
	FootageKey   string
}

// Build wires the real adapters into an orchestrator. The returned store is
// open; callers own closing it.
func Build(cfg *config.Config, sec Secrets, log *slog.Logger) (*Orchestrator, *sqlite.Store, error) {
	if err := os.MkdirAll(cfg.Paths.Data, 0o755); err != nil {
		return nil, nil, err
	}
	store, err := sqlite.Open(filepath.Join(cfg.Paths.Data, "dubclip.db"))
	if err != nil {
		return nil, nil, err
	}

	comp := ffmpeg.New(cfg.Engines.FFmpegPath, cfg.Engines.FFprobePath)
	trans, err := libretranslate.New(sec.TranslateKey, cfg.Engines.TranslateURL)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	synth, err := elevenlabs.New(sec.SynthesisKey, "", cfg.Engines.SynthesisURL, comp.ProbeDuration)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	footage, err := pexels.New(sec.FootageKey, cfg.Engines.FootageURL)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	deps := usecase.Deps{
		Source:  ytdlp.New(cfg.Engines.YtdlpPath),
		ASR:     whispercpp.New(cfg.Engines.WhisperBin, cfg.Engines.WhisperModel),
		Trans:   trans,
		Synth:   synth,
		Footage: footage,
		Comp:    comp,
		Store:   store,
	}
	deps.Shorts = shorts.New(shorts.Deps{Synth: synth, Comp: comp, Store: store}, cfg, log)

	uc := usecase.New(deps, cfg, log)
	return New(uc, store, cfg, log), store, nil
}

// ensure adapters implement ports
var _ ports.MediaSource = (*ytdlp.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.Translator = (*libretranslate.Adapter)(nil)
var _ ports.SpeechSynth = (*elevenlabs.Adapter)(nil)
var _ ports.FootageSource = (*pexels.Adapter)(nil)
var _ ports.Compositor = (*ffmpeg.Adapter)(nil)
var _ ports.Store = (*sqlite.Store)(nil)
