package utils_test

import (
	"testing"

	"polymath/pkg/utils"
)

func TestGenerateID_UniqueAndHex(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := utils.GenerateID()
		if len(id) != 24 {
			t.Fatalf("unexpected length %d for %q", len(id), id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewDebugID_Length(t *testing.T) {
	if got := utils.NewDebugID(); len(got) != 6 {
		t.Fatalf("unexpected debug id %q", got)
	}
}
