// Package elevenlabs adapts the ElevenLabs text-to-speech API to the speech
// synthesis port.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/ports/adapters/httpx"
	"github.com/dubclip/dubclip/internal/types"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
	requestTimeout = 3 * time.Minute
)

// ProbeFunc reports the duration of a rendered audio file. The compositor
// adapter provides one; synthesis reports exact track length through it.
type ProbeFunc func(ctx context.Context, path string) (time.Duration, error)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
	probe   ProbeFunc
}

func New(apiKey, model, baseURL string, probe ProbeFunc) (*Adapter, error) {
	if model == "" {
		model = defaultModel
	}
	baseURL = httpx.NormalizeBaseURL(baseURL, defaultBaseURL)
	if err := httpx.ValidateBaseURL("elevenlabs", baseURL); err != nil {
		return nil, err
	}
	if probe == nil {
		return nil, fmt.Errorf("elevenlabs: probe func is required")
	}
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
		probe:   probe,
	}, nil
}

func (a *Adapter) Synthesize(ctx context.Context, text, voice string, outPath string) (types.VoiceAsset, error) {
	payload := map[string]any{
		"text":     text,
		"model_id": a.model,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.VoiceAsset{}, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := a.baseURL + "/v1/text-to-speech/" + voice
	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return types.VoiceAsset{}, err
	}
	req.Header.Set("xi-api-key", a.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return types.VoiceAsset{}, faults.Transient(faults.Newf(types.StageVoiced, faults.SynthesisFailure,
				"elevenlabs timeout after %s", requestTimeout))
		}
		return types.VoiceAsset{}, faults.Transient(faults.Newf(types.StageVoiced, faults.SynthesisFailure,
			"elevenlabs request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		msg := httpx.Truncate(httpx.RedactSecret(string(rb), a.key), 400)
		ferr := faults.Newf(types.StageVoiced, faults.SynthesisFailure,
			"elevenlabs status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return types.VoiceAsset{}, faults.Transient(ferr)
		}
		return types.VoiceAsset{}, ferr
	}

	f, err := os.Create(outPath)
	if err != nil {
		return types.VoiceAsset{}, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(outPath)
		return types.VoiceAsset{}, faults.Transient(faults.Newf(types.StageVoiced, faults.SynthesisFailure,
			"write audio: %v", err))
	}
	if err := f.Close(); err != nil {
		return types.VoiceAsset{}, err
	}

	d, err := a.probe(ctx, outPath)
	if err != nil {
		return types.VoiceAsset{}, faults.Newf(types.StageVoiced, faults.SynthesisFailure,
			"probe synthesized audio: %v", err)
	}
	return types.VoiceAsset{Path: outPath, Duration: d}, nil
}
