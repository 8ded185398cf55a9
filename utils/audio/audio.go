package audio

import (
	"errors"

	"github.com/zaf/g711"
)

// Browser microphone capture parameters. Mic frames arrive over the
// gateway as 8 kHz mono µ-law and are expanded to 16-bit PCM before
// reaching a recognition engine.
const (
	MicSampleRate = 8000
	MicChannels   = 1
)

// ULawToPCM converts an 8-bit µ-law byte to a 16-bit PCM sample using
// the ITU-T G.711 standard.
func ULawToPCM(u byte) int16 {
	return g711.DecodeUlawFrame(u)
}

// PCMToULaw converts a 16-bit PCM sample to an 8-bit µ-law byte.
func PCMToULaw(sample int16) byte {
	return g711.EncodeUlawFrame(sample)
}

// DecodeMicFrame expands a µ-law microphone frame to 16-bit little
// endian PCM.
func DecodeMicFrame(ulaw []byte) ([]byte, error) {
	if len(ulaw) == 0 {
		return nil, errors.New("empty audio frame")
	}
	return g711.DecodeUlaw(ulaw), nil
}

// EncodeMicFrame compresses 16-bit PCM back to µ-law, the inverse of
// DecodeMicFrame.
func EncodeMicFrame(pcm []byte) ([]byte, error) {
	if err := ValidatePCM(pcm); err != nil {
		return nil, err
	}
	return g711.EncodeUlaw(pcm), nil
}

// ValidatePCM checks a PCM byte buffer for basic integrity.
func ValidatePCM(pcm []byte) error {
	if len(pcm) == 0 {
		return errors.New("PCM data is empty")
	}
	if len(pcm)%2 != 0 {
		return errors.New("PCM data must have even length (16-bit samples)")
	}
	return nil
}

// FrameDurationSeconds returns the playback duration of a mono PCM
// frame at the mic sample rate.
func FrameDurationSeconds(pcm []byte) (float64, error) {
	if err := ValidatePCM(pcm); err != nil {
		return 0, err
	}
	return float64(len(pcm)/2) / float64(MicSampleRate), nil
}
