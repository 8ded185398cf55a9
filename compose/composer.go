package compose

import (
	"strings"

	"github.com/bytedance/sonic"

	"conversekit/core"
)

// systemPreamble is the fixed persona and behavioral contract prepended
// to every generation request. It carries the image-generation trigger
// convention the generation client parses for ([IMAGE: ...]) and the
// language-matching rule, so changing the wording here changes observable
// behavior.
const systemPreamble = "You are Converse, a friendly conversational assistant. " +
	"Respond in a natural, human-like manner, varying responses to avoid repetition. " +
	"Use the conversation history to stay in context and keep answers coherent, relevant, and concise. " +
	"If interrupted (e.g. by \"stop\" or a new query), acknowledge the interruption gracefully, drop the current response, and address the new input immediately. " +
	"Match the user's language unless instructed otherwise. " +
	"Ignore your own voice output and only process user speech. " +
	"For image generation requests (e.g. \"create image\", \"generate image\", \"make image\", \"draw\", \"picture\", \"image of\"), write a detailed image prompt with enhancements such as \"high resolution, detailed, realistic\" and respond only with [IMAGE: your_detailed_prompt_here]. " +
	"If the user asks whether you can generate images without giving a description, answer affirmatively and ask what image they want. " +
	"If the user explicitly requests the prompt text itself, return only the detailed prompt text. " +
	"Conversation history: "

// promptRequestKeywords triggers the show-me-the-prompt policy branch:
// when the user asks to see the image prompt, the raw description is
// returned as text instead of triggering image synthesis.
var promptRequestKeywords = []string{
	"show prompt",
	"give prompt",
	"what is the prompt",
	"tell me the prompt",
	"image prompt",
}

// UserContent merges the typed text with attachment captions and
// extracted texts into the single user-visible content block.
func UserContent(typed string, captions, extracts []string) string {
	content := typed
	if joined := joinNonEmpty(captions); joined != "" {
		content += "\nImage descriptions: " + joined
	}
	if joined := joinNonEmpty(extracts); joined != "" {
		content += "\nExtracted texts: " + joined
	}
	return content
}

// Compose builds the full prompt: fixed preamble, serialized history and
// the new user content. Identical inputs always yield identical output —
// no timestamps, no randomness — so requests stay deterministic for
// testing.
func Compose(content string, history []core.HistoryEntry) string {
	serialized, err := sonic.MarshalString(history)
	if err != nil || len(history) == 0 {
		serialized = "[]"
	}
	return systemPreamble + serialized + "\nUser: " + content
}

// ClassifyExtract frames extracted attachment text by a lightweight
// heuristic. The trigger conditions are deliberate, not inferred: text
// containing arithmetic symbols is framed as an equation, long text as a
// story, anything else as a generic question.
func ClassifyExtract(text string) string {
	if strings.ContainsAny(text, "+-*/=^") {
		return "Solve the following mathematical equation:\n" + text
	}
	if len(strings.Fields(text)) > 50 {
		return "Continue or analyze the following story:\n" + text
	}
	return "Provide information or answer based on the following text:\n" + text
}

// IsPromptRequest reports whether the user's message asks to reveal the
// image prompt rather than to create the image.
func IsPromptRequest(msg string) bool {
	lowered := strings.ToLower(msg)
	for _, kw := range promptRequestKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func joinNonEmpty(parts []string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
