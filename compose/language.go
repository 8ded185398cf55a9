package compose

// DetectLanguage guesses a BCP-47 tag for a transcript by Unicode script
// ranges. The tag biases the synthesis voice for the reply; anything the
// heuristic cannot place falls back to en-IN.
func DetectLanguage(text string) string {
	if len([]rune(text)) < 3 {
		return "en-IN"
	}
	for _, r := range text {
		switch {
		case r >= 0x0900 && r <= 0x097F: // Devanagari
			return "hi-IN"
		case r >= 0x0980 && r <= 0x09FF: // Bengali
			return "bn-IN"
		case r >= 0x0B80 && r <= 0x0BFF: // Tamil
			return "ta-IN"
		case r >= 0x0C00 && r <= 0x0C7F: // Telugu
			return "te-IN"
		}
	}
	return "en-IN"
}
