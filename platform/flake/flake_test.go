package flake

import "testing"

func TestNextIDDistinct(t *testing.T) {
	a, err := NextID("test")
	if err != nil {
		t.Skipf("no machine id available: %s", err)
	}

	b, err := NextID("test")
	if err != nil {
		t.Fatal(err)
	}

	if a == b {
		t.Errorf("have %v twice, want distinct ids", a)
	}
}
