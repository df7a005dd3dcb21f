package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewGeminiProvider_MissingKey(t *testing.T) {
	_, err := NewGeminiProvider(&Config{})
	if err == nil || err.Error() != "Gemini API key is required" {
		t.Errorf("NewGeminiProvider() error = %v", err)
	}
}

func TestGeminiGenerateAudio(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"` +
			base64.StdEncoding.EncodeToString(pcm) + `"}}]}}]}`))
	}))
	defer server.Close()

	p, err := NewGeminiProvider(&Config{
		GeminiKey:     "test-key",
		GeminiBaseURL: server.URL,
		GeminiModel:   "gemini-2.5-flash-preview-tts",
	})
	if err != nil {
		t.Fatalf("NewGeminiProvider() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.wav")
	if err := p.GenerateAudio(context.Background(), "猫", out); err != nil {
		t.Fatalf("GenerateAudio() error = %v", err)
	}

	if !strings.Contains(path, "gemini-2.5-flash-preview-tts") {
		t.Errorf("request path = %q, want model name", path)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(data), 44+len(pcm))
	}
	if !bytes.Equal(data[44:], pcm) {
		t.Errorf("pcm payload = %v", data[44:])
	}
}

func TestWriteWAV(t *testing.T) {
	var buf bytes.Buffer
	pcm := make([]byte, 100)
	if err := WriteWAV(&buf, pcm, 24000); err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}

	data := buf.Bytes()
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Errorf("bad header: %q", data[:44])
	}
	if size := binary.LittleEndian.Uint32(data[4:8]); size != 136 {
		t.Errorf("chunk size = %d, want 136", size)
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 24000 {
		t.Errorf("sample rate = %d", rate)
	}
	if byteRate := binary.LittleEndian.Uint32(data[28:32]); byteRate != 48000 {
		t.Errorf("byte rate = %d", byteRate)
	}
	if n := binary.LittleEndian.Uint32(data[40:44]); n != 100 {
		t.Errorf("data size = %d", n)
	}
}
