// Package pexels adapts the Pexels video search API to the footage port.
package pexels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/ports/adapters/httpx"
	"github.com/dubclip/dubclip/internal/types"
)

const (
	defaultBaseURL = "https://api.pexels.com"
	requestTimeout = 60 * time.Second
	perPage        = 10
	minHeight      = 1080
)

type Adapter struct {
	key     string
	baseURL string
	client  *http.Client
}

func New(apiKey, baseURL string) (*Adapter, error) {
	baseURL = httpx.NormalizeBaseURL(baseURL, defaultBaseURL)
	if err := httpx.ValidateBaseURL("pexels", baseURL); err != nil {
		return nil, err
	}
	return &Adapter{key: apiKey, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}, nil
}

// FetchBackground searches portrait stock footage for the theme and
// downloads the longest usable result. The result going shorter than the
// output is fine, the composer loops it.
func (a *Adapter) FetchBackground(ctx context.Context, theme, destDir string) (string, time.Duration, error) {
	body, err := a.search(ctx, theme)
	if err != nil {
		return "", 0, err
	}

	fileURL, duration, videoID := pickVideo(body)
	if fileURL == "" {
		return "", 0, faults.Newf(types.StageComposed, faults.InsufficientBackground,
			"no portrait footage found for theme %q", theme)
	}

	out := filepath.Join(destDir, fmt.Sprintf("background-%s.mp4", videoID))
	if err := a.download(ctx, fileURL, out); err != nil {
		return "", 0, err
	}
	return out, duration, nil
}

func (a *Adapter) search(ctx context.Context, theme string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("query", theme)
	q.Set("orientation", "portrait")
	q.Set("per_page", fmt.Sprint(perPage))

	req, err := http.NewRequestWithContext(reqCtx, "GET", a.baseURL+"/videos/search?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", faults.Transient(faults.Newf(types.StageComposed, faults.InsufficientBackground,
				"pexels timeout after %s", requestTimeout))
		}
		return "", faults.Transient(faults.Newf(types.StageComposed, faults.InsufficientBackground,
			"pexels request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		msg := httpx.Truncate(httpx.RedactSecret(string(rb), a.key), 400)
		ferr := faults.Newf(types.StageComposed, faults.InsufficientBackground,
			"pexels status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", faults.Transient(ferr)
		}
		return "", ferr
	}

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", faults.Transient(faults.Newf(types.StageComposed, faults.InsufficientBackground,
			"read pexels response: %v", err))
	}
	return string(rb), nil
}

// pickVideo scans the search results for the longest clip that carries a
// file rendition tall enough for the portrait canvas.
func pickVideo(body string) (fileURL string, duration time.Duration, videoID string) {
	var bestDur float64
	for _, v := range gjson.Get(body, "videos").Array() {
		d := v.Get("duration").Float()
		if d <= bestDur {
			continue
		}
		var link string
		for _, f := range v.Get("video_files").Array() {
			if f.Get("height").Int() >= minHeight && f.Get("file_type").String() == "video/mp4" {
				link = f.Get("link").String()
				break
			}
		}
		if link == "" {
			continue
		}
		bestDur = d
		fileURL = link
		duration = time.Duration(d * float64(time.Second))
		videoID = v.Get("id").String()
	}
	return fileURL, duration, videoID
}

func (a *Adapter) download(ctx context.Context, fileURL, outPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return faults.Transient(faults.Newf(types.StageComposed, faults.InsufficientBackground,
			"download footage: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return faults.Transient(faults.Newf(types.StageComposed, faults.InsufficientBackground,
			"download footage: status %d", resp.StatusCode))
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(outPath)
		return faults.Transient(faults.Newf(types.StageComposed, faults.InsufficientBackground,
			"write footage: %v", err))
	}
	return f.Close()
}
