package captions

import (
	"fmt"
	"strings"
	"time"

	"github.com/dubclip/dubclip/internal/types"
)

// RenderASS serializes a cue track as an Advanced SubStation Alpha document
// with one style per cue role, matching how the compositor burns it in.
func RenderASS(cues []types.CaptionCue) string {
	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range cues {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(c.Start))
		b.WriteString(",")
		b.WriteString(assTime(c.End))
		b.WriteString(",")
		b.WriteString(styleFor(c.Role))
		b.WriteString(",,0,0,0,,")
		b.WriteString(sanitizeASS(c.Text))
		b.WriteString("\n")
	}
	return b.String()
}

func styleFor(role types.CueRole) string {
	switch role {
	case types.RoleHook:
		return "Hook"
	case types.RoleCTA:
		return "CTA"
	default:
		return "Content"
	}
}

func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1080
PlayResY: 1920
WrapStyle: 1
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Hook, Arial, 64, &H0000FFFF, &H000000FF, &H00000000, &H80000000, 1,0,0,0,100,100,0,0,1,4,2,5, 20,20,20,1
Style: Content, Arial, 48, &H00FFFFFF, &H000000FF, &H00000000, &H80000000, 1,0,0,0,100,100,0,0,1,3,2,2, 40,40,60,1
Style: CTA, Arial, 56, &H0000FF00, &H000000FF, &H00000000, &H80000000, 1,0,0,0,100,100,0,0,1,4,2,2, 20,20,20,1
`)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
