package device

import "testing"

func TestApproxEqual(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1.0001, 1.9999, 3.0002}
	if !ApproxEqual(a, b, 1e-3) {
		t.Fatalf("expected %v ~= %v within 1e-3", a, b)
	}
	if ApproxEqual(a, b, 1e-6) {
		t.Fatalf("did not expect %v ~= %v within 1e-6", a, b)
	}
	if ApproxEqual(a, []float32{1, 2}, 1) {
		t.Fatalf("different-length slices must not compare equal")
	}
}
