package scratch

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"terrain-build/internal/errors"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	img := s.NewImage("lake-mask-1", 4, 3)
	img.Pix[3] = 255
	s.NewImage("lake-mask-0", 2, 2)

	if diff := cmp.Diff([]string{"lake-mask-0", "lake-mask-1"}, s.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	if err := s.SavePNG("lake-mask-1", &buf); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("decoded size = %v, want 4x3", b)
	}

	s.Release("lake-mask-0")
	if _, ok := s.Image("lake-mask-0"); ok {
		t.Error("released image still stored")
	}

	if err := s.SavePNG("missing", &buf); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(s.Names()) != 0 {
		t.Error("Close kept images")
	}
}

func TestSaveAll(t *testing.T) {
	s := NewMemoryStorage()
	s.NewImage("a", 1, 1)
	s.NewImage("b", 1, 1)

	dir := filepath.Join(t.TempDir(), "masks")
	if err := SaveAll(s, dir); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	for _, name := range []string{"a.png", "b.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}
