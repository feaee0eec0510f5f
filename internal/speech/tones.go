package speech

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Tone is an inline acting direction, written as [TAG] in a script.
type Tone string

// Supported tones.
const (
	ToneExplosive   Tone = "EXPLOSIVE"
	ToneSpeedRun    Tone = "SPEED_RUN"
	ToneEmphasize   Tone = "EMPHASIZE"
	ToneAmazed      Tone = "AMAZED"
	ToneSecretive   Tone = "SECRETIVE"
	ToneSarcastic   Tone = "SARCASTIC"
	ToneCasual      Tone = "CASUAL"
	ToneWarning     Tone = "WARNING"
	ToneChallenging Tone = "CHALLENGING"
	ToneSincere     Tone = "SINCERE"
)

// ToneInfo describes a tone for pickers and help output.
type ToneInfo struct {
	Tone        Tone
	Label       string
	Description string
}

var tones = []ToneInfo{
	{ToneExplosive, "爆发感", "High volume, high pitch, maximum excitement. Start with a bang!"},
	{ToneSpeedRun, "倍速解说", "Very fast, rhythmic, no pauses. Demonstrate quick steps."},
	{ToneEmphasize, "重点强调", "Slow down slightly, punch every word, distinct separation. Focus on key features."},
	{ToneAmazed, "惊叹", `"Wow" factor, breathless, higher pitch. Describe seeing results.`},
	{ToneSecretive, "神秘耳语", "Lower volume, closer to mic, whispery tone. Share a secret."},
	{ToneSarcastic, "讽刺/吐槽", "Playful, rolling eyes, slightly mocking tone. Roast old ideas."},
	{ToneCasual, "轻松随圆", `Relaxed, breezy, "it's easy" tone. After a complex task.`},
	{ToneWarning, "警告/紧急", "Sudden drop in pitch, serious, urgent. Critical alerts."},
	{ToneChallenging, "挑战/互动", "Upward inflection, direct address to audience. Hook the viewer."},
	{ToneSincere, "真诚呼吁", "Warm, direct, normal speed. Call to action."},
}

// Tones returns the tone catalog in toolbar order.
func Tones() []ToneInfo {
	out := make([]ToneInfo, len(tones))
	copy(out, tones)
	return out
}

// ParseTone accepts a tag with or without brackets, in any case.
func ParseTone(s string) (Tone, error) {
	s = strings.ToUpper(strings.Trim(strings.TrimSpace(s), "[]"))
	for _, t := range tones {
		if string(t.Tone) == s {
			return t.Tone, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", s)
}

// Tag returns the inline form of the tone.
func (t Tone) Tag() string {
	return "[" + string(t) + "]"
}

// InsertTone inserts the tone tag followed by a space at rune offset pos.
// Offsets outside the text are clamped.
func InsertTone(text string, pos int, t Tone) string {
	n := utf8.RuneCountInString(text)
	pos = min(max(pos, 0), n)

	i := 0
	for r := 0; r < pos; r++ {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return text[:i] + t.Tag() + " " + text[i:]
}

// Pronounce annotates a character with its pinyin reading, e.g. 更[geng 1].
// A tone of 0 is the neutral tone.
func Pronounce(char, pinyin string, tone int) (string, error) {
	if utf8.RuneCountInString(char) == 0 {
		return "", fmt.Errorf("no character to annotate")
	}
	pinyin = strings.ToLower(strings.TrimSpace(pinyin))
	if pinyin == "" {
		return "", fmt.Errorf("pinyin is empty")
	}
	if tone < 0 || tone > 4 {
		return "", fmt.Errorf("tone must be between 0 and 4, got %d", tone)
	}
	if tone == 0 {
		return fmt.Sprintf("%s[%s]", char, pinyin), nil
	}
	return fmt.Sprintf("%s[%s %d]", char, pinyin, tone), nil
}
