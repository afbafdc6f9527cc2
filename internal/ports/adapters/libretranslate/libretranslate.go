// Package libretranslate adapts a LibreTranslate server to the translator
// port. Works against the hosted API or a self-hosted instance.
package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/ports/adapters/httpx"
	"github.com/dubclip/dubclip/internal/types"
)

const (
	defaultBaseURL = "https://libretranslate.com"
	requestTimeout = 60 * time.Second
)

type Adapter struct {
	key     string
	baseURL string
	client  *http.Client
}

func New(apiKey, baseURL string) (*Adapter, error) {
	baseURL = httpx.NormalizeBaseURL(baseURL, defaultBaseURL)
	if err := httpx.ValidateBaseURL("libretranslate", baseURL); err != nil {
		return nil, err
	}
	return &Adapter{key: apiKey, baseURL: baseURL, client: &http.Client{Timeout: 2 * time.Minute}}, nil
}

// Translate sends all segments in one request. The server returns one
// translation per input string, so segment count and order survive.
func (a *Adapter) Translate(ctx context.Context, segments []string, source, target string) ([]string, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	if source == "" {
		source = "auto"
	}

	payload := map[string]any{
		"q":      segments,
		"source": source,
		"target": target,
		"format": "text",
	}
	if a.key != "" {
		payload["api_key"] = a.key
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", a.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, faults.Transient(faults.Newf(types.StageTranslated, faults.TranslationFailure,
				"libretranslate timeout after %s", requestTimeout))
		}
		return nil, faults.Transient(faults.Newf(types.StageTranslated, faults.TranslationFailure,
			"libretranslate request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		msg := httpx.Truncate(httpx.RedactSecret(string(rb), a.key), 400)
		ferr := faults.Newf(types.StageTranslated, faults.TranslationFailure,
			"libretranslate status %d: %s", resp.StatusCode, msg)
		if retryable(resp.StatusCode) {
			return nil, faults.Transient(ferr)
		}
		return nil, ferr
	}

	var raw struct {
		TranslatedText []string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, faults.Newf(types.StageTranslated, faults.TranslationFailure,
			"decode libretranslate response: %v", err)
	}
	if len(raw.TranslatedText) != len(segments) {
		return nil, faults.Newf(types.StageTranslated, faults.TranslationFailure,
			"libretranslate returned %d segments, want %d", len(raw.TranslatedText), len(segments))
	}
	return raw.TranslatedText, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
