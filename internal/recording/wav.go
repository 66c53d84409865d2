package recording

import (
	"bytes"
	"encoding/binary"

	"github.com/zaf/g711"
)

// wavHeader is a canonical 44-byte PCM WAV header.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// BuildWAV wraps 16-bit mono little-endian PCM in a WAV container.
func BuildWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)

	hdr := wavHeader{
		ChunkSize:     uint32(36 + len(pcm)),
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2Size: uint32(len(pcm)),
	}
	copy(hdr.ChunkID[:], "RIFF")
	copy(hdr.Format[:], "WAVE")
	copy(hdr.Subchunk1ID[:], "fmt ")
	copy(hdr.Subchunk2ID[:], "data")

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	_ = binary.Write(buf, binary.LittleEndian, hdr)
	buf.Write(pcm)
	return buf.Bytes()
}

// ULawToWAV converts raw 8kHz mu-law audio into a 16-bit PCM WAV suitable for
// the transcription API, which does not accept companded audio directly.
func ULawToWAV(ulaw []byte) []byte {
	pcm := g711.DecodeUlaw(ulaw)
	return BuildWAV(pcm, 8000)
}
