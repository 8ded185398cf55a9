package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMicFrame(t *testing.T) {
	pcm, err := DecodeMicFrame([]byte{0x00, 0x7F, 0xFF})
	require.NoError(t, err)
	// Each µ-law byte expands to one 16-bit sample.
	assert.Len(t, pcm, 6)
}

func TestDecodeMicFrameEmpty(t *testing.T) {
	_, err := DecodeMicFrame(nil)
	assert.Error(t, err)
}

func TestEncodeDecodeFrameFuncs(t *testing.T) {
	// µ-law is lossy, but silence survives a round trip exactly.
	assert.Equal(t, int16(0), ULawToPCM(PCMToULaw(0)))
}

func TestEncodeMicFrameValidates(t *testing.T) {
	_, err := EncodeMicFrame(nil)
	assert.Error(t, err)
	_, err = EncodeMicFrame([]byte{0x01})
	assert.Error(t, err)

	ulaw, err := EncodeMicFrame([]byte{0x00, 0x00})
	require.NoError(t, err)
	assert.Len(t, ulaw, 1)
}

func TestValidatePCM(t *testing.T) {
	assert.Error(t, ValidatePCM(nil))
	assert.Error(t, ValidatePCM([]byte{0x01}))
	assert.NoError(t, ValidatePCM([]byte{0x01, 0x02}))
}

func TestFrameDurationSeconds(t *testing.T) {
	// One second of 16-bit mono audio at the mic sample rate.
	pcm := make([]byte, MicSampleRate*2)
	dur, err := FrameDurationSeconds(pcm)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dur, 1e-9)

	_, err = FrameDurationSeconds(nil)
	assert.Error(t, err)
}
