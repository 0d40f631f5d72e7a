package roads

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"terrain-build/core/area"
	"terrain-build/core/build"
	"terrain-build/core/geometry"
	"terrain-build/core/source"
	"terrain-build/internal/config"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want TypeID
		ok   bool
	}{
		{"TwoLanesMotorway", TwoLanesMotorway, true},
		{"Trail", Trail, true},
		{"5", SingleLaneDirtRoad, true},
		{"8", 0, false},
		{"highway", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseType(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseType(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	src := source.NewMemorySource(
		source.Feature{
			ID:         "main",
			Category:   source.CategoryRoad,
			Attributes: map[string]string{"type": "TwoLanesPrimaryRoad", "special": "bridge"},
			Path:       geometry.NewPath(geometry.Pt(-10, 20), geometry.Pt(30, 20)),
		},
		source.Feature{
			ID:         "track",
			Category:   source.CategoryRoad,
			Attributes: map[string]string{"type": "Trail", "width": "2.5"},
			Path:       geometry.NewPath(geometry.Pt(5, 5), geometry.Pt(5, 35)),
		},
		source.Feature{
			ID:         "unknown",
			Category:   source.CategoryRoad,
			Attributes: map[string]string{"type": "Autobahn"},
			Path:       geometry.NewPath(geometry.Pt(0, 0), geometry.Pt(10, 10)),
		},
		source.Feature{
			ID:         "outside",
			Category:   source.CategoryRoad,
			Attributes: map[string]string{"type": "Trail"},
			Path:       geometry.NewPath(geometry.Pt(100, 100), geometry.Pt(110, 100)),
		},
	)

	reg := build.NewRegistry()
	build.MustRegister(reg, Key, NewBuilder(config.DefaultRoadTypes()))
	bc := build.NewContext(reg,
		build.WithArea(area.New(geometry.Pt(0, 0), 5, 9)),
		build.WithSource(src),
	)
	defer bc.Close()

	data, err := build.Get(context.Background(), bc, Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	type summary struct {
		ID      string
		Type    TypeID
		Width   float64
		Special Special
		Length  float64
	}
	var got []summary
	for _, r := range data.Roads {
		got = append(got, summary{r.ID, r.Type, r.Width, r.Special, r.Path.Length()})
	}
	want := []summary{
		{"main", TwoLanesPrimaryRoad, 8, SpecialBridge, 30},
		{"track", Trail, 2.5, SpecialNone, 30},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("roads mismatch (-want +got):\n%s", diff)
	}

	if graded := data.Graded(SingleLaneDirtRoad); len(graded) != 1 || graded[0].ID != "main" {
		t.Errorf("Graded = %v", graded)
	}
	if trails := data.OfType(Trail); len(trails) != 1 {
		t.Errorf("OfType(Trail) = %d roads", len(trails))
	}
}
