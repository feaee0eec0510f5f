package speech

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const toneGuide = `
### DIRECTOR'S NOTES - EMOTION & TONE GUIDE
You are a professional voice actor. When you see the following tags in the script, act them out as described.
If the user provides their own system instructions, combine them with these definitions.

`

const toneInstructions = `
INSTRUCTIONS:
1. Apply the tone specified in the tags to the enclosed text.
2. If no tag is present, use a natural, engaging professional tone.
3. DO NOT read the tags aloud in the final audio. They are for your acting direction only.
`

// PronunciationGuide explains the Character[pinyin tone] annotation.
const PronunciationGuide = `
[PRONUNCIATION CORRECTION GUIDE]
You may encounter text in the format: "Character[pinyin tone]".
- "Character" is the Chinese character to be read.
- "[pinyin tone]" dictates EXACTLY how it should be pronounced.
- Tones are digits 1-4 (1=flat, 2=rising, 3=dipping, 4=falling). No digit means neutral tone.
- EXAMPLE: "更[geng 1]新" -> Read "更" as "gēng".
- EXAMPLE: "漂[piao 4]亮" -> Read "漂" as "piào".
- CRITICAL: Do NOT read the brackets or the pinyin text aloud. Only read the character with the specified pronunciation.
`

// ToneGuide returns the director's notes listing every tone.
func ToneGuide() string {
	var b strings.Builder
	b.WriteString(toneGuide)
	for _, t := range tones {
		b.WriteString("*   **")
		b.WriteString(t.Tone.Tag())
		b.WriteString("**: ")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	b.WriteString(toneInstructions)
	return b.String()
}

// BuildPrompt wraps a script and optional user instructions in the director's
// notes and pronunciation guide.
func BuildPrompt(text, instructions string) string {
	text = norm.NFC.String(text)
	instructions = norm.NFC.String(strings.TrimSpace(instructions))

	var b strings.Builder
	b.WriteString(ToneGuide())
	b.WriteString("\n\n")
	b.WriteString(PronunciationGuide)
	b.WriteString("\n\n")
	if instructions != "" {
		b.WriteString("### USER INSTRUCTIONS\n")
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("### SCRIPT TO READ\n")
	b.WriteString(text)
	return b.String()
}
