package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteJSONL encodes each row as one line of path, creating parent
// directories as needed.
func WriteJSONL(t testing.TB, path string, rows ...any) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

// PromptRows builds prompt_column rows for the given prompts.
func PromptRows(prompts ...string) []any {
	rows := make([]any, 0, len(prompts))
	for _, prompt := range prompts {
		rows = append(rows, map[string]string{"prompt": prompt})
	}
	return rows
}
