// Package ffmpeg adapts the ffmpeg encoder to the compositor port.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	ffmpeg_go "github.com/u2takey/ffmpeg-go"

	"github.com/dubclip/dubclip/internal/compose"
	"github.com/dubclip/dubclip/internal/ports"
)

// Portrait canvas shared by the composed video and the vertical shorts.
const (
	canvasWidth  = 1080
	canvasHeight = 1920
)

type Adapter struct {
	ffmpegPath  string
	ffprobePath string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// run executes a compiled filter graph with the configured binary. Stream
// graphs are compiled to a plain exec.Cmd so the binary path and stderr
// capture stay under our control.
func (a *Adapter) run(ctx context.Context, s *ffmpeg_go.Stream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := s.OverWriteOutput().Compile()
	if a.ffmpegPath != "ffmpeg" {
		path, err := exec.LookPath(a.ffmpegPath)
		if err != nil {
			return err
		}
		cmd.Path = path
		cmd.Err = nil
	}
	var stderr bytes.Buffer
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w\n%s", err, stderr.String())
	}
	return nil
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	err := a.run(ctx, ffmpeg_go.Input(in).
		Output(outWav, ffmpeg_go.KwArgs{
			"vn": "",
			"ac": 1,
			"ar": 16000,
			"f":  "wav",
		}))
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio from %s: %w", in, err)
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, in string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cmd := exec.CommandContext(ctx, a.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		in,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", in, err)
	}
	d := gjson.GetBytes(out, "format.duration")
	if !d.Exists() {
		return 0, fmt.Errorf("ffprobe %s: no format duration", in)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(d.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", d.String(), err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// Compose renders the fixed-duration video: looped background under the
// burned caption track, speech delayed past the hook, hook and CTA audio in
// their windows, and a hard trim at the planned target.
func (a *Adapter) Compose(ctx context.Context, plan compose.Plan, backgroundPath, voicePath, subtitlePath, outPath string) error {
	inputs := []*ffmpeg_go.Stream{
		ffmpeg_go.Input(backgroundPath, ffmpeg_go.KwArgs{"stream_loop": plan.BackgroundLoops - 1}),
		ffmpeg_go.Input(voicePath),
	}

	var fc []string
	fc = append(fc, fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,subtitles=%s[v]",
		canvasWidth, canvasHeight, canvasWidth, canvasHeight, escapeFilterPath(subtitlePath)))

	offsetMS := plan.VoiceOffset.Milliseconds()
	fc = append(fc, fmt.Sprintf("[1:a]adelay=%d|%d,apad=pad_dur=%s[va]",
		offsetMS, offsetMS, fmtSeconds(plan.SilencePad)))
	mix := []string{"[va]"}

	if plan.HookAudioPath != "" {
		idx := len(inputs)
		inputs = append(inputs, ffmpeg_go.Input(plan.HookAudioPath))
		fc = append(fc, fmt.Sprintf("[%d:a]acopy[ha]", idx))
		mix = append(mix, "[ha]")
	}
	if plan.CTAAudioPath != "" {
		idx := len(inputs)
		ctaMS := (plan.VoiceOffset + plan.ContentWindow).Milliseconds()
		inputs = append(inputs, ffmpeg_go.Input(plan.CTAAudioPath))
		fc = append(fc, fmt.Sprintf("[%d:a]adelay=%d|%d[ca]", idx, ctaMS, ctaMS))
		mix = append(mix, "[ca]")
	}

	if len(mix) > 1 {
		fc = append(fc, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[a]",
			strings.Join(mix, ""), len(mix)))
	} else {
		fc = append(fc, "[va]acopy[a]")
	}

	err := a.run(ctx, ffmpeg_go.Output(inputs, outPath, ffmpeg_go.KwArgs{
		"filter_complex": strings.Join(fc, ";"),
		"map":            []string{"[v]", "[a]"},
		"t":              fmtSeconds(plan.Target),
		"c:v":            "libx264",
		"preset":         "veryfast",
		"crf":            18,
		"pix_fmt":        "yuv420p",
		"c:a":            "aac",
		"b:a":            "192k",
		"movflags":       "+faststart",
	}))
	if err != nil {
		return fmt.Errorf("ffmpeg compose %s: %w", outPath, err)
	}
	return nil
}

// RenderShort cuts the platform clip. The source loops before the trim when
// the selected window outlasts the footage, so Start and End always address
// an existing timeline position.
func (a *Adapter) RenderShort(ctx context.Context, spec ports.ShortSpec) error {
	loops := spec.Loops
	if loops < 1 {
		loops = 1
	}
	inputs := []*ffmpeg_go.Stream{
		ffmpeg_go.Input(spec.Input, ffmpeg_go.KwArgs{"stream_loop": loops - 1}),
	}

	startSec := fmtSeconds(spec.Start)
	clipDur := spec.End - spec.Start

	vf := []string{fmt.Sprintf("trim=start=%s:duration=%s,setpts=PTS-STARTPTS", startSec, fmtSeconds(clipDur))}
	vf = append(vf, aspectFilter(spec.AspectRatio))
	for _, e := range spec.Effects {
		if f := effectFilter(e); f != "" {
			vf = append(vf, f)
		}
	}
	if spec.SubtitlePath != "" {
		vf = append(vf, "subtitles="+escapeFilterPath(spec.SubtitlePath))
	}

	var fc []string
	fc = append(fc, "[0:v]"+strings.Join(vf, ",")+"[v]")
	fc = append(fc, fmt.Sprintf("[0:a]atrim=start=%s:duration=%s,asetpts=PTS-STARTPTS[clipa]",
		startSec, fmtSeconds(clipDur)))

	audioOut := "[clipa]"
	if spec.CTAAudioPath != "" {
		inputs = append(inputs, ffmpeg_go.Input(spec.CTAAudioPath))
		ctaDur, err := a.ProbeDuration(ctx, spec.CTAAudioPath)
		if err != nil {
			return err
		}
		delay := clipDur - ctaDur
		if delay < 0 {
			delay = 0
		}
		ms := delay.Milliseconds()
		fc = append(fc, fmt.Sprintf("[1:a]adelay=%d|%d[cta]", ms, ms))
		fc = append(fc, "[clipa][cta]amix=inputs=2:duration=first:normalize=0[a]")
		audioOut = "[a]"
	}

	err := a.run(ctx, ffmpeg_go.Output(inputs, spec.Output, ffmpeg_go.KwArgs{
		"filter_complex": strings.Join(fc, ";"),
		"map":            []string{"[v]", audioOut},
		"c:v":            "libx264",
		"preset":         "veryfast",
		"crf":            20,
		"pix_fmt":        "yuv420p",
		"c:a":            "aac",
		"b:a":            "128k",
		"movflags":       "+faststart",
	}))
	if err != nil {
		return fmt.Errorf("ffmpeg render short %s: %w", spec.Output, err)
	}
	return nil
}

func (a *Adapter) Thumbnail(ctx context.Context, videoPath string, at time.Duration, outPath string) error {
	err := a.run(ctx, ffmpeg_go.Input(videoPath, ffmpeg_go.KwArgs{"ss": fmtSeconds(at)}).
		Output(outPath, ffmpeg_go.KwArgs{
			"frames:v": 1,
			"q:v":      2,
		}))
	if err != nil {
		return fmt.Errorf("ffmpeg thumbnail %s: %w", outPath, err)
	}
	return nil
}

// aspectFilter scales into the platform canvas without distortion, padding
// the remainder with black.
func aspectFilter(aspect string) string {
	w, h := canvasWidth, canvasHeight
	switch aspect {
	case "16:9":
		w, h = 1920, 1080
	case "1:1":
		w, h = 1080, 1080
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1", w, h, w, h)
}

func effectFilter(name string) string {
	switch name {
	case "zoom":
		return fmt.Sprintf("scale=%d:%d,crop=%d:%d",
			int(float64(canvasWidth)*1.05), int(float64(canvasHeight)*1.05), canvasWidth, canvasHeight)
	case "contrast":
		return "eq=contrast=1.1:saturation=1.2"
	case "fade":
		return "fade=t=in:st=0:d=0.5"
	default:
		return ""
	}
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
