// Package whispercpp shells out to the whisper.cpp CLI for transcription.
package whispercpp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/types"
)

type Adapter struct {
	bin   string
	model string
}

func New(binPath, modelPath string) *Adapter {
	return &Adapter{bin: binPath, model: modelPath}
}

func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, faults.Newf(types.StageTranscribed, faults.TranscriptionFailure,
			"whisper.cpp failed: %v\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, faults.Newf(types.StageTranscribed, faults.TranscriptionFailure,
			"read whisper output: %v", err)
	}
	return parseOutput(string(jb))
}

// parseOutput maps the whisper.cpp JSON report onto a transcript. Offsets
// are milliseconds. Segment confidence is the mean token probability when
// the report carries tokens, 1 otherwise.
func parseOutput(data string) (types.Transcript, error) {
	if !gjson.Valid(data) {
		return types.Transcript{}, fmt.Errorf("invalid whisper.cpp JSON output")
	}
	tr := types.Transcript{
		Language: gjson.Get(data, "result.language").String(),
	}
	for _, seg := range gjson.Get(data, "transcription").Array() {
		text := strings.TrimSpace(seg.Get("text").String())
		if text == "" {
			continue
		}
		conf := 1.0
		if tokens := seg.Get("tokens").Array(); len(tokens) > 0 {
			sum := 0.0
			for _, tok := range tokens {
				sum += tok.Get("p").Float()
			}
			conf = sum / float64(len(tokens))
		}
		tr.Segments = append(tr.Segments, types.Segment{
			Start:      seg.Get("offsets.from").Float() / 1000,
			End:        seg.Get("offsets.to").Float() / 1000,
			Text:       text,
			Confidence: conf,
		})
	}
	if len(tr.Segments) == 0 {
		return types.Transcript{}, fmt.Errorf("whisper.cpp produced no segments")
	}
	return tr, nil
}
