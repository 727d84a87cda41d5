package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/corvid-labs/tideline/internal/record"
)

func rec(dest record.Destination, id string) record.Record {
	return record.Record{
		Source:      "test",
		IdentityKey: id,
		Destination: dest,
		Payload:     map[string]any{"id": id},
	}
}

func readDestination(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", path, err)
	}
	return out
}

func TestSaveDedupesAcrossBatches(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	dest := record.Destination{Buckets: []string{"alpha"}, Filename: "listings.json"}
	batch := []record.Record{rec(dest, "A"), rec(dest, "B")}

	n, err := s.Save(batch)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 2 {
		t.Fatalf("first Save wrote %d, want 2", n)
	}

	n, err = s.Save(batch)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 0 {
		t.Fatalf("second Save wrote %d new, want 0", n)
	}

	rows := readDestination(t, filepath.Join(root, "alpha", "listings.json"))
	if len(rows) != 2 {
		t.Fatalf("destination has %d rows, want 2", len(rows))
	}
}

func TestSaveGroupsByDestination(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	destA := record.Destination{Buckets: []string{"alpha"}, Filename: "listings.json"}
	destB := record.Destination{Buckets: []string{"beta"}, Filename: "listings.json"}

	n, err := s.Save([]record.Record{rec(destA, "A1"), rec(destB, "B1"), rec(destA, "A2")})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 3 {
		t.Fatalf("wrote %d, want 3", n)
	}

	rowsA := readDestination(t, filepath.Join(root, "alpha", "listings.json"))
	rowsB := readDestination(t, filepath.Join(root, "beta", "listings.json"))
	if len(rowsA) != 2 {
		t.Errorf("alpha has %d rows, want 2", len(rowsA))
	}
	if len(rowsB) != 1 {
		t.Errorf("beta has %d rows, want 1", len(rowsB))
	}
}

func TestSaveIncludesKindInPathAndGrouping(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	destA := record.Destination{Kind: "odds", Buckets: []string{"alpha"}, Filename: "listings.json"}
	destB := record.Destination{Kind: "results", Buckets: []string{"alpha"}, Filename: "listings.json"}

	n, err := s.Save([]record.Record{rec(destA, "A1"), rec(destB, "B1")})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n != 2 {
		t.Fatalf("wrote %d, want 2", n)
	}

	rowsOdds := readDestination(t, filepath.Join(root, "odds", "alpha", "listings.json"))
	if len(rowsOdds) != 1 {
		t.Errorf("odds destination has %d rows, want 1", len(rowsOdds))
	}
	rowsResults := readDestination(t, filepath.Join(root, "results", "alpha", "listings.json"))
	if len(rowsResults) != 1 {
		t.Errorf("results destination has %d rows, want 1", len(rowsResults))
	}
}

func TestConcurrentSavesToSameDestinationUnionRecords(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	dest := record.Destination{Buckets: []string{"shared"}, Filename: "listings.json"}

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			batch := []record.Record{
				rec(dest, idFor(worker, 0)),
				rec(dest, idFor(worker, 1)),
				rec(dest, idFor(worker, 2)),
			}
			if _, err := s.Save(batch); err != nil {
				t.Errorf("Save: %v", err)
			}
		}(w)
	}
	wg.Wait()

	rows := readDestination(t, filepath.Join(root, "shared", "listings.json"))
	if len(rows) != 6 {
		t.Fatalf("destination has %d rows, want 6 (union of both writers)", len(rows))
	}
}

func idFor(worker, i int) string {
	return string(rune('A'+worker)) + string(rune('0'+i))
}
