package audio

import (
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/book-expert/speech-synthesizer/internal/core"
)

const (
	bytesPerSample = 2
	pcmAudioFormat = 1

	stagingFileName = "encode.wav"
)

// ErrOddSampleData is returned when the PCM payload is not a whole number
// of 16-bit samples.
var ErrOddSampleData = errors.New("pcm data is not a whole number of 16-bit samples")

// EncodePCM16 wraps raw little-endian 16-bit PCM samples in a WAV
// container. The WAV encoder needs an io.WriteSeeker to finalize its
// header, so the container is staged on an in-memory filesystem and read
// back once the encoder has closed.
func EncodePCM16(pcm []byte, format core.AudioFormat) ([]byte, error) {
	if len(pcm)%bytesPerSample != 0 {
		return nil, ErrOddSampleData
	}

	buffer := &goaudio.IntBuffer{
		Data: pcm16ToIntSlice(pcm),
		Format: &goaudio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		SourceBitDepth: 16,
	}

	memFs := afero.NewMemMapFs()

	staging, createErr := memFs.Create(stagingFileName)
	if createErr != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", createErr)
	}

	encoder := wav.NewEncoder(
		staging,
		format.SampleRate,
		16,
		format.Channels,
		pcmAudioFormat,
	)

	writeErr := encoder.Write(buffer)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to encode pcm samples: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to finalize wav header: %w", closeErr)
	}

	fileCloseErr := staging.Close()
	if fileCloseErr != nil {
		return nil, fmt.Errorf("failed to close staging file: %w", fileCloseErr)
	}

	encoded, readErr := afero.ReadFile(memFs, stagingFileName)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read encoded wav: %w", readErr)
	}

	return encoded, nil
}

// pcm16ToIntSlice decodes little-endian 16-bit samples into the int slice
// the wav encoder consumes.
func pcm16ToIntSlice(pcm []byte) []int {
	samples := make([]int, len(pcm)/bytesPerSample)
	for i := range samples {
		samples[i] = int(int16(pcm[2*i]) | int16(pcm[2*i+1])<<8)
	}

	return samples
}
