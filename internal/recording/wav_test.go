package recording

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/zaf/g711"
)

func TestBuildWAVHeader(t *testing.T) {
	pcm := make([]byte, 320)
	wav := BuildWAV(pcm, 8000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) {
		t.Errorf("chunk id = %q", wav[0:4])
	}
	if !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Errorf("format = %q", wav[8:12])
	}
	if !bytes.Equal(wav[36:40], []byte("data")) {
		t.Errorf("data id = %q", wav[36:40])
	}

	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}
	if channels := binary.LittleEndian.Uint16(wav[22:24]); channels != 1 {
		t.Errorf("channels = %d, want 1", channels)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", size, len(pcm))
	}
	if chunk := binary.LittleEndian.Uint32(wav[4:8]); chunk != uint32(36+len(pcm)) {
		t.Errorf("chunk size = %d, want %d", chunk, 36+len(pcm))
	}
}

func TestULawToWAVExpandsSamples(t *testing.T) {
	ulaw := make([]byte, 160)
	for i := range ulaw {
		ulaw[i] = byte(i)
	}
	wav := ULawToWAV(ulaw)

	// Each companded byte expands to one 16-bit sample.
	wantData := len(g711.DecodeUlaw(ulaw))
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(wantData) {
		t.Errorf("data size = %d, want %d", got, wantData)
	}
	if len(wav) != 44+wantData {
		t.Errorf("len = %d, want %d", len(wav), 44+wantData)
	}
}
