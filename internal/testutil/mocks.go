package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

// MockYomitan is a yomitan-api server answering from canned responses
type MockYomitan struct {
	Server *httptest.Server

	mu        sync.Mutex
	responses map[string]string
	status    map[string]int
	requests  []yomitan.Request
}

// NewMockYomitan starts a mock server that is closed with the test. Terms
// without a canned response get HTTP 500 like a missing handlebar.
func NewMockYomitan(t *testing.T) *MockYomitan {
	t.Helper()

	m := &MockYomitan{
		responses: make(map[string]string),
		status:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/yomitanVersion", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version": "mock"}`))
	})
	mux.HandleFunc("/ankiFields", m.handleAnkiFields)

	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockYomitan) handleAnkiFields(w http.ResponseWriter, r *http.Request) {
	var req yomitan.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	body, ok := m.responses[req.Text]
	status := m.status[req.Text]
	m.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.Error(w, "no entry", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

// URL returns the server base URL
func (m *MockYomitan) URL() string {
	return m.Server.URL
}

// SetResponse sets the raw JSON body returned for a term
func (m *MockYomitan) SetResponse(text, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[text] = body
}

// SetStatus makes lookups of a term answer with a bare status code
func (m *MockYomitan) SetStatus(text string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[text] = status
}

// Requests returns the ankiFields requests received so far
func (m *MockYomitan) Requests() []yomitan.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]yomitan.Request(nil), m.requests...)
}

// MockSpeechProvider writes fixed audio bytes instead of calling a TTS API
type MockSpeechProvider struct {
	Data  []byte
	Err   error
	Calls []string
}

// GenerateAudio records the call and writes Data to outputFile
func (m *MockSpeechProvider) GenerateAudio(ctx context.Context, text string, outputFile string) error {
	m.Calls = append(m.Calls, text)
	if m.Err != nil {
		return m.Err
	}
	data := m.Data
	if data == nil {
		data = GenerateAudioData()
	}
	return os.WriteFile(outputFile, data, 0644)
}

// Name returns the provider name
func (m *MockSpeechProvider) Name() string {
	return "mock"
}

// Extension returns the audio file extension
func (m *MockSpeechProvider) Extension() string {
	return "mp3"
}

// IsAvailable always succeeds
func (m *MockSpeechProvider) IsAvailable() error {
	return nil
}

// GenerateAudioData generates mock audio data
func GenerateAudioData() []byte {
	// Simple mock MP3 header
	return []byte{0xFF, 0xFB, 0x90, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// AnkiFieldsBody renders a canned ankiFields response body
func AnkiFieldsBody(entries []map[string]string, media ...yomitan.MediaFile) string {
	resp := struct {
		Fields          []map[string]string `json:"fields"`
		DictionaryMedia []yomitan.MediaFile `json:"dictionaryMedia"`
		AudioMedia      []yomitan.MediaFile `json:"audioMedia"`
	}{Fields: entries, DictionaryMedia: []yomitan.MediaFile{}, AudioMedia: []yomitan.MediaFile{}}

	for _, f := range media {
		if strings.HasSuffix(f.AnkiFilename, ".mp3") {
			resp.AudioMedia = append(resp.AudioMedia, f)
		} else {
			resp.DictionaryMedia = append(resp.DictionaryMedia, f)
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		panic(fmt.Sprintf("testutil: cannot marshal ankiFields body: %v", err))
	}
	return string(data)
}
