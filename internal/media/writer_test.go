package media

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/snonux/yomibackfill/internal/testutil"
	"codeberg.org/snonux/yomibackfill/internal/yomitan"
)

func mediaFile(name, content string) yomitan.MediaFile {
	return yomitan.MediaFile{
		AnkiFilename: name,
		Content:      base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

func TestWriteReferenced(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "collection.media")
	w := NewWriter(dir)

	files := []yomitan.MediaFile{
		mediaFile("yomitan_audio_taberu.mp3", "audio"),
		mediaFile("yomitan_dict_img.png", "image"),
		mediaFile("", "nameless"),
	}

	written, err := w.WriteReferenced("[sound:yomitan_audio_taberu.mp3]", files)
	if err != nil {
		t.Fatalf("WriteReferenced() error = %v", err)
	}
	if written != 1 {
		t.Errorf("WriteReferenced() = %d, want 1", written)
	}

	testutil.AssertFileContent(t, filepath.Join(dir, "yomitan_audio_taberu.mp3"), []byte("audio"))
	testutil.AssertFileNotExists(t, filepath.Join(dir, "yomitan_dict_img.png"))
}

func TestWrite_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.png")
	testutil.CreateTestFile(t, existing, []byte("original"))

	w := NewWriter(dir)
	ok, err := w.Write(mediaFile("a.png", "replacement"))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if ok {
		t.Error("Write() should report existing files as not written")
	}
	testutil.AssertFileContent(t, existing, []byte("original"))

	if !w.Exists("a.png") || w.Exists("b.png") {
		t.Error("Exists() returned unexpected results")
	}
}

func TestWrite_InvalidName(t *testing.T) {
	w := NewWriter(t.TempDir())

	for _, name := range []string{"", "../evil.png", "sub/dir.png", ".."} {
		if _, err := w.Write(mediaFile(name, "x")); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Write(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestWriteReferenced_BadContent(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	files := []yomitan.MediaFile{
		{AnkiFilename: "broken.mp3", Content: "not base64!"},
		mediaFile("good.mp3", "ok"),
	}

	written, err := w.WriteReferenced("broken.mp3 good.mp3", files)
	if err == nil {
		t.Error("Expected error for undecodable content")
	}
	if written != 1 {
		t.Errorf("WriteReferenced() = %d, want 1", written)
	}
	testutil.AssertFileNotExists(t, filepath.Join(dir, "broken.mp3"))
	testutil.AssertFileExists(t, filepath.Join(dir, "good.mp3"))

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Expected only good.mp3 in media folder, found %d entries", len(entries))
	}
}
