package geometry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func square(x0, y0, size float64) *Polygon {
	return NewPolygon([]Point{
		Pt(x0, y0), Pt(x0+size, y0), Pt(x0+size, y0+size), Pt(x0, y0+size),
	})
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestPathResample(t *testing.T) {
	tests := []struct {
		name string
		path *Path
		step float64
		want []Point
	}{
		{
			name: "exact multiple",
			path: NewPath(Pt(0, 0), Pt(10, 0)),
			step: 2,
			want: []Point{Pt(0, 0), Pt(2, 0), Pt(4, 0), Pt(6, 0), Pt(8, 0), Pt(10, 0)},
		},
		{
			name: "last point kept",
			path: NewPath(Pt(0, 0), Pt(5, 0)),
			step: 2,
			want: []Point{Pt(0, 0), Pt(2, 0), Pt(4, 0), Pt(5, 0)},
		},
		{
			name: "spacing carries over corners",
			path: NewPath(Pt(0, 0), Pt(3, 0), Pt(3, 3)),
			step: 2,
			want: []Point{Pt(0, 0), Pt(2, 0), Pt(3, 1), Pt(3, 3)},
		},
		{
			name: "single point",
			path: NewPath(Pt(1, 1)),
			step: 2,
			want: []Point{Pt(1, 1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.path.Resample(tt.step)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("Resample mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPathClipToRect(t *testing.T) {
	rect := NewRect(Pt(0, 0), Pt(10, 10))
	path := NewPath(Pt(-5, 5), Pt(5, 5), Pt(5, 15), Pt(8, 15), Pt(8, 5))

	got := path.ClipToRect(rect)
	want := []*Path{
		NewPath(Pt(0, 5), Pt(5, 5), Pt(5, 10)),
		NewPath(Pt(8, 10), Pt(8, 5)),
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("ClipToRect mismatch (-want +got):\n%s", diff)
	}

	if outside := NewPath(Pt(20, 20), Pt(30, 30)).ClipToRect(rect); len(outside) != 0 {
		t.Errorf("expected no pieces, got %d", len(outside))
	}
}

func TestPathSubtract(t *testing.T) {
	lake := square(4, -1, 2)
	path := NewPath(Pt(0, 0), Pt(10, 0))

	got := path.Subtract(lake)
	want := []*Path{
		NewPath(Pt(0, 0), Pt(4, 0)),
		NewPath(Pt(6, 0), Pt(10, 0)),
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Subtract mismatch (-want +got):\n%s", diff)
	}
}

func TestPolygonMeasures(t *testing.T) {
	poly := NewPolygon(
		[]Point{Pt(0, 0), Pt(10, 0), Pt(10, 10), Pt(0, 10), Pt(0, 0)},
		[]Point{Pt(2, 2), Pt(4, 2), Pt(4, 4), Pt(2, 4)},
	)

	if got := poly.Area(); math.Abs(got-96) > 1e-9 {
		t.Errorf("Area = %v, want 96", got)
	}
	if len(poly.Shell) != 4 {
		t.Errorf("closing point not dropped: %d points", len(poly.Shell))
	}

	tests := []struct {
		name   string
		pt     Point
		inside bool
	}{
		{"interior", Pt(7, 7), true},
		{"hole", Pt(3, 3), false},
		{"outside", Pt(12, 5), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := poly.Contains(tt.pt); got != tt.inside {
				t.Errorf("Contains(%v) = %v, want %v", tt.pt, got, tt.inside)
			}
		})
	}

	if d := square(0, 0, 10).SignedDistance(Pt(5, 5)); math.Abs(d-5) > 1e-6 {
		t.Errorf("SignedDistance(center) = %v, want 5", d)
	}
	if d := square(0, 0, 10).SignedDistance(Pt(13, 5)); math.Abs(d+3) > 1e-6 {
		t.Errorf("SignedDistance(outside) = %v, want -3", d)
	}
}

func TestPolygonClipToRect(t *testing.T) {
	rect := NewRect(Pt(0, 0), Pt(10, 10))

	clipped := square(5, 5, 10).ClipToRect(rect)
	if clipped == nil {
		t.Fatal("expected a clipped polygon")
	}
	if got := clipped.Area(); math.Abs(got-25) > 1e-9 {
		t.Errorf("clipped area = %v, want 25", got)
	}

	if square(20, 20, 5).ClipToRect(rect) != nil {
		t.Error("expected nil for a polygon outside the rect")
	}
}

func TestPolygonOffset(t *testing.T) {
	poly := square(0, 0, 10)

	inset := poly.InsetArea(2, 0.1)
	if math.Abs(inset-36) > 2 {
		t.Errorf("inset area = %v, want about 36", inset)
	}

	if area := poly.InsetArea(6, 0.1); area != 0 {
		t.Errorf("inset beyond the half width left %v", area)
	}

	var grown float64
	for _, p := range poly.Offset(1, 0.1) {
		grown += p.Area()
	}
	want := 100 + 40 + math.Pi
	if math.Abs(grown-want) > 3 {
		t.Errorf("buffered area = %v, want about %v", grown, want)
	}
}

func TestInnerCrownHasHole(t *testing.T) {
	crowns := square(0, 0, 20).InnerCrown(2, 0.1)
	if len(crowns) != 1 {
		t.Fatalf("got %d crowns, want 1", len(crowns))
	}
	if len(crowns[0].Holes) != 1 {
		t.Fatalf("got %d holes, want 1", len(crowns[0].Holes))
	}
	// 400 - 16*16
	if got := crowns[0].Area(); math.Abs(got-144) > 6 {
		t.Errorf("crown area = %v, want about 144", got)
	}
}

func TestMergeAll(t *testing.T) {
	t.Run("disjoint polygons are kept", func(t *testing.T) {
		a, b := square(0, 0, 5), square(10, 0, 5)
		got := MergeAll([]*Polygon{a, b}, 0.1)
		if len(got) != 2 || got[0] != a || got[1] != b {
			t.Errorf("MergeAll changed disjoint polygons: %d", len(got))
		}
	})

	t.Run("overlapping polygons are merged", func(t *testing.T) {
		got := MergeAll([]*Polygon{square(0, 0, 10), square(5, 0, 10)}, 0.1)
		if len(got) != 1 {
			t.Fatalf("got %d polygons, want 1", len(got))
		}
		if area := got[0].Area(); math.Abs(area-150) > 4 {
			t.Errorf("merged area = %v, want about 150", area)
		}
	})
}

func TestIndexWithin(t *testing.T) {
	points := []Point{Pt(0, 0), Pt(1, 0), Pt(5, 5), Pt(1, 0)}
	items := []string{"a", "b", "c", "d"}
	idx := NewIndex(points, items)

	got := idx.Within(Pt(0, 0), 2)
	if diff := cmp.Diff([]string{"a", "b", "d"}, got, cmpopts.SortSlices(func(x, y string) bool { return x < y })); diff != "" {
		t.Errorf("Within mismatch (-want +got):\n%s", diff)
	}
	if idx.Len() != 3 {
		t.Errorf("Len = %d, want 3", idx.Len())
	}

	empty := NewIndex[string](nil, nil)
	if got := empty.Within(Pt(0, 0), 10); got != nil {
		t.Errorf("empty index returned %v", got)
	}
}
