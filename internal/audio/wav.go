package audio

import (
	"encoding/binary"
	"io"
)

// Gemini speech output is 16-bit little-endian mono PCM
const (
	geminiSampleRate = 24000
	wavChannels      = 1
	wavBitsPerSample = 16
)

// WriteWAV wraps raw 16-bit mono PCM in a RIFF/WAVE header
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	blockAlign := wavChannels * wavBitsPerSample / 8
	byteRate := sampleRate * blockAlign

	header := struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   wavChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(byteRate),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: wavBitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
