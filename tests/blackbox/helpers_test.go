//go:build blackbox

package blackbox

import (
	"encoding/csv"
	"os"
	"strings"
	"testing"
)

func contains(s, sub string) bool { return strings.Contains(s, sub) }

// readCSV parses a journal file into header and rows.
func readCSV(t *testing.T, path string) ([]string, [][]string) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) == 0 {
		t.Fatalf("empty csv: %s", path)
	}
	return records[0], records[1:]
}
