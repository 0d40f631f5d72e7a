package source

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"terrain-build/core/geometry"
)

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(
		Feature{ID: "b", Category: CategoryRoad},
		Feature{ID: "pond", Category: CategoryLake},
	)
	src.Add(Feature{ID: "a", Category: CategoryRoad})

	var ids []string
	for _, f := range src.Features(CategoryRoad) {
		ids = append(ids, f.ID)
	}
	if diff := cmp.Diff([]string{"b", "a"}, ids); diff != "" {
		t.Errorf("road order mismatch (-want +got):\n%s", diff)
	}
	if got := src.Features(CategoryForest); len(got) != 0 {
		t.Errorf("got %d forests from an empty category", len(got))
	}
	if diff := cmp.Diff([]Category{CategoryLake, CategoryRoad}, src.SortedCategories()); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[Category]int{CategoryRoad: 2, CategoryLake: 1}, src.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	// the returned slice is a copy
	roads := src.Features(CategoryRoad)
	roads[0].ID = "changed"
	if src.Features(CategoryRoad)[0].ID != "b" {
		t.Error("Features exposed the stored slice")
	}
}

func TestFeatureAttributes(t *testing.T) {
	f := Feature{
		ID:       "main",
		Category: CategoryRoad,
		Path:     geometry.NewPath(geometry.Pt(0, 0), geometry.Pt(10, 0)),
		Attributes: map[string]string{
			"type":    "Trail",
			"special": "",
			"tunnel":  "true",
			"bridge":  "yes",
		},
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"present", f.Attr("type", "SingleLaneDirtPath"), "Trail"},
		{"empty falls back", f.Attr("special", "none"), "none"},
		{"absent falls back", f.Attr("width", "4"), "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	bools := []struct {
		name string
		want bool
	}{
		{"tunnel", true},
		{"bridge", false},
		{"missing", false},
	}
	for _, tt := range bools {
		t.Run("bool "+tt.name, func(t *testing.T) {
			if got := f.BoolAttr(tt.name); got != tt.want {
				t.Errorf("BoolAttr(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
