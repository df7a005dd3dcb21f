package batch

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestReadNoteIDFile(t *testing.T) {
	tests := []struct {
		name        string
		fileContent string
		want        []int64
		wantErr     bool
	}{
		{
			name:        "empty file",
			fileContent: "",
			want:        nil,
		},
		{
			name:        "only whitespace",
			fileContent: "   \n\t\r\n   ",
			want:        nil,
		},
		{
			name: "plain ids",
			fileContent: `1700000000001
1700000000002
1700000000003`,
			want: []int64{1700000000001, 1700000000002, 1700000000003},
		},
		{
			name: "comments and blank lines",
			fileContent: `# selected in the browser

1700000000002   # 食べる
  1700000000001

`,
			want: []int64{1700000000002, 1700000000001},
		},
		{
			name:        "windows line endings",
			fileContent: "1\r\n2\r\n",
			want:        []int64{1, 2},
		},
		{
			name:        "duplicates keep first position",
			fileContent: "3\n1\n3\n2\n1",
			want:        []int64{3, 1, 2},
		},
		{
			name:        "not a number",
			fileContent: "1\n食べる\n",
			wantErr:     true,
		},
		{
			name:        "negative id",
			fileContent: "-5",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create temp file
			tmpDir := t.TempDir()
			tmpFile := filepath.Join(tmpDir, "notes.txt")

			if err := os.WriteFile(tmpFile, []byte(tt.fileContent), 0644); err != nil {
				t.Fatalf("Failed to create temp file: %v", err)
			}

			got, err := ReadNoteIDFile(tmpFile)
			if (err != nil) != tt.wantErr {
				t.Errorf("ReadNoteIDFile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReadNoteIDFile() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadNoteIDFile_Missing(t *testing.T) {
	_, err := ReadNoteIDFile(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Error("ReadNoteIDFile() expected error for a missing file")
	}
}
