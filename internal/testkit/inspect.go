package testkit

import (
	"os"
	"path/filepath"
	"strings"
)

// CountStoredParcels returns how many committed parcel files exist under the
// parcel directory. Staged temp files are not counted.
func CountStoredParcels(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dat") {
			continue
		}
		n++
	}
	return n, nil
}

// CountStagedFiles returns how many leftover files sit in the staging
// directory. A clean store has zero after all writes settle.
func CountStagedFiles(dir string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "staging"))
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
