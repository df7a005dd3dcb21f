package yomitan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTermRequest(t *testing.T) {
	req := NewTermRequest("食べる", []string{"glossary-brief", "audio", "glossary-brief", ""}, 4)

	assert.Equal(t, "食べる", req.Text)
	assert.Equal(t, "term", req.Type)
	assert.Equal(t, []string{"glossary-brief", "audio", "reading"}, req.Markers)
	assert.Equal(t, 4, req.MaxEntries)
	assert.True(t, req.IncludeMedia)

	req = NewTermRequest("x", nil, 0)
	assert.Equal(t, []string{"reading"}, req.Markers)
	assert.Equal(t, 1, req.MaxEntries)
}

func TestAnkiFields(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ankiFields", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Write([]byte(`{
			"fields": [{"reading": "たべる", "glossary-brief": "to eat"}],
			"dictionaryMedia": [{"ankiFilename": "yomitan_dict.png", "content": "aGk="}],
			"audioMedia": [{"ankiFilename": "yomitan_audio.mp3", "content": "aGk="}]
		}`))
	}))
	defer server.Close()

	c := NewClient(&Config{URL: server.URL + "/"}, nil)
	resp, err := c.AnkiFields(context.Background(), NewTermRequest("食べる", []string{"glossary-brief"}, 1))
	require.NoError(t, err)

	assert.Equal(t, []string{"glossary-brief", "reading"}, got.Markers)
	require.Len(t, resp.Fields, 1)
	v, ok := resp.Fields[0].Value("glossary-brief")
	assert.True(t, ok)
	assert.Equal(t, "to eat", v)

	media := resp.Media()
	require.Len(t, media, 2)
	assert.Equal(t, "yomitan_dict.png", media[0].AnkiFilename)
	assert.Equal(t, "yomitan_audio.mp3", media[1].AnkiFilename)
}

func TestAnkiFields_Status(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"missing handlebar", http.StatusInternalServerError, ErrNoEntry},
		{"bad request", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", tt.status)
			}))
			defer server.Close()

			c := NewClient(&Config{URL: server.URL}, nil)
			_, err := c.AnkiFields(context.Background(), NewTermRequest("x", nil, 1))
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.Code)
			assert.Equal(t, "boom", statusErr.Body)
		})
	}
}

func TestAnkiFields_CircuitOpens(t *testing.T) {
	// Closed listener: every request fails at the transport level
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := NewClient(&Config{URL: url, FailureThreshold: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.AnkiFields(ctx, NewTermRequest("x", nil, 1))
		assert.ErrorIs(t, err, ErrUnreachable)
	}

	_, err := c.AnkiFields(ctx, NewTermRequest("x", nil, 1))
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestAnkiFields_NoEntryKeepsCircuitClosed(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(&Config{URL: server.URL, FailureThreshold: 1}, nil)
	for i := 0; i < 3; i++ {
		_, err := c.AnkiFields(context.Background(), NewTermRequest("x", nil, 1))
		assert.ErrorIs(t, err, ErrNoEntry)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAnkiFields_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(&Config{URL: server.URL}, nil)
	_, err := c.AnkiFields(ctx, NewTermRequest("x", nil, 1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnreachable)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/yomitanVersion", r.URL.Path)
		w.Write([]byte(`{"version": "25.4.1"}`))
	}))
	defer server.Close()

	version, err := NewClient(&Config{URL: server.URL}, nil).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "25.4.1", version)
}

func TestPing_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(&Config{URL: url}, nil).Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.True(t, IsUnreachable(err))
}

func TestIsUnreachable(t *testing.T) {
	assert.True(t, IsUnreachable(fmt.Errorf("note 1: %w", ErrCircuitOpen)))
	assert.True(t, IsUnreachable(fmt.Errorf("%w: connection refused", ErrUnreachable)))
	assert.False(t, IsUnreachable(ErrNoEntry))
	assert.False(t, IsUnreachable(&StatusError{Code: 404}))
	assert.False(t, IsUnreachable(nil))
}
