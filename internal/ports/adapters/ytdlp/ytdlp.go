// Package ytdlp acquires source media through the yt-dlp CLI.
package ytdlp

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/ports"
	"github.com/dubclip/dubclip/internal/types"
)

type Adapter struct {
	bin string
}

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Adapter{bin: binPath}
}

// Fetch probes metadata first, then downloads extracted audio plus the
// manual caption track when the source carries one. Auto-generated captions
// are ignored, their timing is too loose to translate from.
func (a *Adapter) Fetch(ctx context.Context, url, destDir string) (ports.Fetched, error) {
	meta, err := a.probe(ctx, url)
	if err != nil {
		return ports.Fetched{}, err
	}

	args := []string{
		"--no-playlist",
		"-x", "--audio-format", "wav",
		"--write-subs",
		"--sub-format", "vtt",
		"--convert-subs", "vtt",
		"-o", filepath.Join(destDir, "%(id)s.%(ext)s"),
		url,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	if b, err := cmd.CombinedOutput(); err != nil {
		return ports.Fetched{}, faults.Transient(faults.Newf(types.StageIngested, faults.SourceUnavailable,
			"yt-dlp download failed: %v\n%s", err, string(b)))
	}

	meta.AudioPath = filepath.Join(destDir, meta.SourceID+".wav")
	if _, err := os.Stat(meta.AudioPath); err != nil {
		return ports.Fetched{}, faults.Newf(types.StageIngested, faults.SourceUnavailable,
			"yt-dlp produced no audio at %s", meta.AudioPath)
	}
	meta.CaptionPath = findCaption(destDir, meta.SourceID)
	return meta, nil
}

func (a *Adapter) probe(ctx context.Context, url string) (ports.Fetched, error) {
	cmd := exec.CommandContext(ctx, a.bin, "--no-playlist", "--dump-json", "--no-download", url)
	b, err := cmd.Output()
	if err != nil {
		detail := ""
		if ee, ok := err.(*exec.ExitError); ok {
			detail = string(ee.Stderr)
		}
		ferr := faults.Newf(types.StageIngested, faults.SourceUnavailable,
			"yt-dlp probe failed: %v\n%s", err, detail)
		if permanent(detail) {
			return ports.Fetched{}, ferr
		}
		return ports.Fetched{}, faults.Transient(ferr)
	}

	data := string(b)
	if !gjson.Valid(data) {
		return ports.Fetched{}, faults.Newf(types.StageIngested, faults.SourceUnavailable,
			"yt-dlp probe returned invalid JSON")
	}
	id := gjson.Get(data, "id").String()
	if id == "" {
		return ports.Fetched{}, faults.Newf(types.StageIngested, faults.SourceUnavailable,
			"yt-dlp probe returned no id")
	}
	return ports.Fetched{
		SourceID: id,
		Title:    gjson.Get(data, "title").String(),
		Duration: time.Duration(gjson.Get(data, "duration").Float() * float64(time.Second)),
		Language: gjson.Get(data, "language").String(),
	}, nil
}

// findCaption returns the downloaded VTT track for the source, if any.
// yt-dlp names them <id>.<lang>.vtt.
func findCaption(destDir, sourceID string) string {
	matches, err := filepath.Glob(filepath.Join(destDir, sourceID+".*.vtt"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// permanent recognizes failures retrying cannot fix.
func permanent(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{
		"video unavailable",
		"private video",
		"removed",
		"account associated with this video has been terminated",
		"is not a valid url",
		"unsupported url",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
