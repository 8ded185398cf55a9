package speech

import "strings"

// preferredVoices maps a language tag to voice-name fragments tried in
// order before falling back to any voice with a matching tag.
var preferredVoices = map[string][]string{
	"hi-IN": {"Google हिंदी", "Google Hindi Female"},
	"en-IN": {"Google US English", "Male"},
}

// SelectVoice picks the synthesis voice for a language: preferred names
// first, then any voice matching the language tag, then the first
// available voice. ok is false only when no voices exist at all.
func SelectVoice(voices []Voice, language string) (Voice, bool) {
	for _, fragment := range preferredVoices[language] {
		for _, v := range voices {
			if strings.Contains(v.Name, fragment) {
				return v, true
			}
		}
	}
	for _, v := range voices {
		if v.Language == language {
			return v, true
		}
	}
	if len(voices) > 0 {
		return voices[0], true
	}
	return Voice{}, false
}
