package elevation

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"terrain-build/core/area"
	"terrain-build/core/build"
	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/raster"
	"terrain-build/core/roads"
	"terrain-build/core/source"
	"terrain-build/core/water"
	"terrain-build/internal/config"
)

// plane returns a size x size grid with 1 m cells filled by fn
func plane(size int, fn func(x, y float64) float64) *raster.Grid {
	g := raster.New(size, size, 1, geometry.Pt(0, 0))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g.Set(x, y, float32(fn(float64(x), float64(y))))
		}
	}
	return g
}

func square(x0, y0, size float64) *geometry.Polygon {
	return geometry.NewPolygon([]geometry.Point{
		geometry.Pt(x0, y0), geometry.Pt(x0+size, y0), geometry.Pt(x0+size, y0+size), geometry.Pt(x0, y0+size),
	})
}

func testOptions() *config.Processing {
	opts := config.DefaultProcessing()
	opts.MinLakeCells = 0
	opts.LakeInsetCells = 0
	return &opts
}

func road(special roads.Special, from, to geometry.Point) *roads.Road {
	return &roads.Road{
		Type:    roads.SingleLaneDirtRoad,
		Width:   4,
		Special: special,
		Path:    geometry.NewPath(from, to),
	}
}

func TestCarveLakeIsDeterministic(t *testing.T) {
	raw := plane(20, func(x, y float64) float64 { return 0.1*x + 0.05*y })
	opts := testOptions()
	opts.BasinShallowDepth = 1
	opts.BasinDeepDepth = 3
	opts.BasinDrop = 2
	lake := square(5, 5, 10)

	carve := func() (*raster.Grid, []LakeWithElevation) {
		grid := raw.Clone()
		lakes, err := NewCarver(opts).CarveLakes(context.Background(), grid, []*geometry.Polygon{lake}, progress.Nop().CreateStep("", 1))
		if err != nil {
			t.Fatalf("CarveLakes: %v", err)
		}
		return grid, lakes
	}

	first, lakes := carve()
	second, _ := carve()
	if diff := cmp.Diff(first.Values, second.Values); diff != "" {
		t.Errorf("carving differs between runs (-first +second):\n%s", diff)
	}

	if len(lakes) != 1 {
		t.Fatalf("got %d lakes, want 1", len(lakes))
	}
	if got := lakes[0].BorderElevation; math.Abs(got-0.75) > 1e-4 {
		t.Errorf("border = %v, want 0.75", got)
	}
	if got := first.At(10, 10); math.Abs(float64(got)-(0.75-2)) > 1e-4 {
		t.Errorf("lake center = %v, want %v", got, 0.75-2)
	}
	if got := first.At(7, 10); math.Abs(float64(got)-(0.75-1)) > 1e-4 {
		t.Errorf("lake slope at depth 2 = %v, want %v", got, 0.75-1)
	}
	if first.At(3, 3) != raw.At(3, 3) || first.At(17, 12) != raw.At(17, 12) {
		t.Error("nodes outside the lake were modified")
	}
}

func TestCarverMasks(t *testing.T) {
	grid := plane(20, func(x, y float64) float64 { return 5 })
	lake := LakeWithElevation{Polygon: square(5, 5, 10), BorderElevation: 5}

	c := NewCarver(testOptions())
	if err := c.CarveLake(context.Background(), grid, lake, "lake"); err != nil {
		t.Fatalf("CarveLake: %v", err)
	}
	if names := c.Scratch.Names(); len(names) != 0 {
		t.Errorf("mask not released: %v", names)
	}

	c.KeepMasks = true
	if err := c.CarveLake(context.Background(), grid, lake, "lake"); err != nil {
		t.Fatalf("CarveLake: %v", err)
	}
	img, ok := c.Scratch.Image("lake")
	if !ok {
		t.Fatal("mask not kept")
	}
	// nodes 5..15 on both axes
	if img.Bounds().Dx() != 11 || img.Bounds().Dy() != 11 {
		t.Errorf("mask bounds = %v", img.Bounds())
	}
	if img.RGBAAt(5, 5).A != 255 {
		t.Error("lake center not in mask")
	}
}

func TestCarverAccept(t *testing.T) {
	opts := config.DefaultProcessing()
	c := NewCarver(&opts)
	grid := raster.New(64, 64, 5, geometry.Pt(0, 0))

	tests := []struct {
		name    string
		polygon *geometry.Polygon
		want    bool
	}{
		{"large", square(0, 0, 100), true},
		{"below minimum area", square(0, 0, 20), false},
		{"too thin to survive the inset", geometry.NewRectPolygon(geometry.NewRect(geometry.Pt(0, 0), geometry.Pt(200, 15))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Accept(grid, tt.polygon); got != tt.want {
				t.Errorf("Accept = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCarverDrop(t *testing.T) {
	c := NewCarver(testOptions())
	tests := []struct {
		depth, want float64
	}{
		{0, 0},
		{10, 0},
		{15, 1.25},
		{20, 2.5},
		{50, 2.5},
	}
	for _, tt := range tests {
		if got := c.Drop(tt.depth); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Drop(%v) = %v, want %v", tt.depth, got, tt.want)
		}
	}
}

func TestNormalRoadIsFlat(t *testing.T) {
	raw := plane(21, func(x, y float64) float64 { return 0.5 * y })
	r := road(roads.SpecialNone, geometry.Pt(2, 10), geometry.Pt(18, 10))

	cg := NewConstraintGrid(raw, nil)
	ProcessRoads(cg, []*roads.Road{r}, testOptions(), progress.Nop())
	out, _, err := cg.Solve(context.Background(), 2)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			want := raw.At(x, y)
			if r.Path.Distance(raw.ToTerrain(x, y)) <= r.Width/2 {
				want = 5
			}
			if got := out.At(x, y); got != want {
				t.Errorf("node (%d, %d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestWideRoadIsFlatAcrossCells(t *testing.T) {
	raw := raster.New(30, 30, 5, geometry.Pt(0, 0))
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			raw.Set(x, y, float32(0.5*float64(y)))
		}
	}
	r := &roads.Road{
		Type:  roads.SingleLaneDirtRoad,
		Width: 20,
		Path:  geometry.NewPath(geometry.Pt(20, 50.1), geometry.Pt(120, 50.1)),
	}

	cg := NewConstraintGrid(raw, nil)
	ProcessRoads(cg, []*roads.Road{r}, testOptions(), progress.Nop())
	out, _, err := cg.Solve(context.Background(), 2)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	var covered int
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			if r.Path.Distance(raw.ToTerrain(x, y)) > r.Width/2 {
				continue
			}
			covered++
			if got := out.At(x, y); got != 25 {
				t.Errorf("node (%d, %d) = %v, want 25", x, y, got)
			}
		}
	}
	if covered == 0 {
		t.Fatal("no node under the road")
	}
}

func TestEmbankmentInterpolatesBetweenEnds(t *testing.T) {
	raw := plane(21, func(x, y float64) float64 { return 0.25*x + 0.5*y })
	raw.Set(10, 10, raw.At(10, 10)+3)
	r := road(roads.SpecialEmbankment, geometry.Pt(2, 10), geometry.Pt(18, 10))

	cg := NewConstraintGrid(raw, nil)
	ProcessRoads(cg, []*roads.Road{r}, testOptions(), progress.Nop())
	out, report, err := cg.Solve(context.Background(), 0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	// resampled centers, the bump at x = 10 included
	for x := 2; x <= 18; x += 2 {
		if got, want := out.At(x, 10), float32(0.25*float64(x)+5); got != want {
			t.Errorf("node (%d, 10) = %v, want %v", x, got, want)
		}
	}
	if report.Pinned != 9 || report.Conflicts != 0 {
		t.Errorf("report = %+v, want 9 pins and no conflicts", report)
	}
}

func TestBridgePinsOnlyItsEnds(t *testing.T) {
	raw := plane(21, func(x, y float64) float64 { return 0.3*x + 0.5*y })
	r := road(roads.SpecialBridge, geometry.Pt(2, 10), geometry.Pt(18, 10))

	cg := NewConstraintGrid(raw, nil)
	ProcessRoads(cg, []*roads.Road{r}, testOptions(), progress.Nop())
	out, report, err := cg.Solve(context.Background(), 0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if diff := cmp.Diff(raw.Values, out.Values); diff != "" {
		t.Errorf("bridge changed the terrain (-raw +solved):\n%s", diff)
	}
	if report.Pinned != 2 || report.FlatSegments != 0 || report.SmoothSegments != 0 {
		t.Errorf("report = %+v, want only the two end pins", report)
	}
	if !cg.Node(2, 10).IsPinned() || !cg.Node(18, 10).IsPinned() || cg.Node(10, 10).IsPinned() {
		t.Error("wrong nodes pinned")
	}
}

func TestWaterwayFlowsDownhill(t *testing.T) {
	tests := []struct {
		name string
		fn   func(x, y float64) float64
	}{
		{"uphill survey", func(x, y float64) float64 { return 0.5 * x }},
		{"downhill survey", func(x, y float64) float64 { return 10 - 0.5*x }},
		{"noisy survey", func(x, y float64) float64 { return 3 * math.Sin(x) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := plane(21, tt.fn)
			way := &water.Waterway{Kind: water.River, Path: geometry.NewPath(geometry.Pt(0, 10), geometry.Pt(20, 10))}
			opts := testOptions()

			cg := NewConstraintGrid(raw, nil)
			ProcessWaterways(cg, []*water.Waterway{way}, opts, progress.Nop())
			out, report, err := cg.Solve(context.Background(), 0)
			if err != nil {
				t.Fatalf("Solve: %v", err)
			}
			if report.Relations != 10 || report.Unresolved != 0 {
				t.Errorf("report = %+v", report)
			}

			points := way.Path.Resample(opts.ResampleStep)
			for i := 1; i < len(points); i++ {
				ux, uy := out.Nearest(points[i-1])
				dx, dy := out.Nearest(points[i])
				if out.At(dx, dy) > out.At(ux, uy) {
					t.Errorf("node %d at %v is above its upstream node %v", i, out.At(dx, dy), out.At(ux, uy))
				}
				if lowest := raw.At(ux, uy) - float32(opts.WaterwayMaxDepth); out.At(ux, uy) < lowest-1e-5 {
					t.Errorf("node %d dug below its lower limit: %v < %v", i-1, out.At(ux, uy), lowest)
				}
			}
			if out.At(0, 0) != raw.At(0, 0) || out.At(5, 15) != raw.At(5, 15) {
				t.Error("nodes away from the waterway were modified")
			}
		})
	}
}

func TestWaterwayDropsBelowSurvey(t *testing.T) {
	raw := plane(21, func(x, y float64) float64 { return 10 - 0.5*x })
	way := &water.Waterway{Kind: water.Stream, Path: geometry.NewPath(geometry.Pt(0, 10), geometry.Pt(20, 10))}

	cg := NewConstraintGrid(raw, nil)
	ProcessWaterways(cg, []*water.Waterway{way}, testOptions(), progress.Nop())
	out, _, err := cg.Solve(context.Background(), 0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for x := 0; x < 20; x += 2 {
		if got, want := out.At(x, 10), raw.At(x, 10)-1; got != want {
			t.Errorf("node (%d, 10) = %v, want %v", x, got, want)
		}
	}
}

func TestShortWaterwayIgnored(t *testing.T) {
	raw := plane(21, func(x, y float64) float64 { return 0.5 * x })
	way := &water.Waterway{Path: geometry.NewPath(geometry.Pt(0, 10), geometry.Pt(8, 10))}

	cg := NewConstraintGrid(raw, nil)
	ProcessWaterways(cg, []*water.Waterway{way}, testOptions(), progress.Nop())
	out, report, err := cg.Solve(context.Background(), 0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if report.Relations != 0 {
		t.Errorf("got %d relations for a short waterway", report.Relations)
	}
	if diff := cmp.Diff(raw.Values, out.Values); diff != "" {
		t.Errorf("short waterway changed the terrain (-raw +solved):\n%s", diff)
	}
}

// TestLakeProtection covers a 3x3 grid with a lake over the center node
func TestLakeProtection(t *testing.T) {
	newGrid := func() *raster.Grid {
		g := raster.New(3, 3, 10, geometry.Pt(0, 0))
		for i := range g.Values {
			g.Values[i] = 10
		}
		g.Set(1, 1, 15)
		return g
	}
	lake := LakeWithElevation{Polygon: square(5, 5, 10), BorderElevation: 10}
	opts := testOptions()

	carve := func(t *testing.T) *raster.Grid {
		grid := newGrid()
		if err := NewCarver(opts).CarveLake(context.Background(), grid, lake, "lake"); err != nil {
			t.Fatalf("CarveLake: %v", err)
		}
		if got := grid.At(1, 1); got != 10 {
			t.Fatalf("carved center = %v, want 10", got)
		}
		return grid
	}

	t.Run("pin after protection is clamped", func(t *testing.T) {
		cg := NewConstraintGrid(carve(t), nil)
		ProtectLakes(cg, []LakeWithElevation{lake}, opts, progress.Nop())
		center := cg.Node(1, 1)
		if !center.IsProtected() {
			t.Fatal("center not protected")
		}
		center.SetElevation(5)

		out, report, err := cg.Solve(context.Background(), 0)
		if err != nil {
			t.Fatalf("Solve: %v", err)
		}
		if got := out.At(1, 1); got != 10 {
			t.Errorf("center = %v, want 10", got)
		}
		if report.Clamped != 1 {
			t.Errorf("Clamped = %d, want 1", report.Clamped)
		}
	})

	t.Run("pin before protection is floored", func(t *testing.T) {
		cg := NewConstraintGrid(carve(t), nil)
		cg.Node(1, 1).SetElevation(5)
		ProtectLakes(cg, []LakeWithElevation{lake}, opts, progress.Nop())

		out, _, err := cg.Solve(context.Background(), 0)
		if err != nil {
			t.Fatalf("Solve: %v", err)
		}
		if got := out.At(1, 1); got != 10 {
			t.Errorf("center = %v, want 10", got)
		}
	})
}

func TestConflictingPinsKeepLastWrite(t *testing.T) {
	cg := NewConstraintGrid(plane(5, func(x, y float64) float64 { return 1 }), nil)
	n := cg.NodeAt(geometry.Pt(2.2, 1.9))
	if n.X != 2 || n.Y != 2 {
		t.Fatalf("NodeAt = (%d, %d), want (2, 2)", n.X, n.Y)
	}
	n.SetElevation(3)
	n.SetElevation(7)

	out, report, err := cg.Solve(context.Background(), 0)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := out.At(2, 2); got != 7 {
		t.Errorf("node = %v, want the last pin 7", got)
	}
	if report.Conflicts != 1 || report.Pinned != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestSearch(t *testing.T) {
	cg := NewConstraintGrid(plane(10, func(x, y float64) float64 { return 0 }), nil)

	var got [][2]int
	for _, n := range cg.Search(geometry.Pt(1.5, 2), geometry.Pt(3, 3.9)) {
		got = append(got, [2]int{n.X, n.Y})
	}
	want := [][2]int{{2, 2}, {3, 2}, {2, 3}, {3, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search mismatch (-want +got):\n%s", diff)
	}

	if nodes := cg.Search(geometry.Pt(-5, -5), geometry.Pt(-1, -1)); len(nodes) != 0 {
		t.Errorf("Search outside the grid returned %d nodes", len(nodes))
	}
}

func TestUnconstrainedGridKeepsRaw(t *testing.T) {
	raw := plane(8, func(x, y float64) float64 { return x*y - 3 })
	out, report, err := NewConstraintGrid(raw, nil).Solve(context.Background(), 3)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if diff := cmp.Diff(raw.Values, out.Values); diff != "" {
		t.Errorf("solve changed an unconstrained grid (-raw +solved):\n%s", diff)
	}
	if !out.SameShape(raw) || report.Nodes != 64 {
		t.Errorf("shape or report mismatch: %+v", report)
	}
}

func TestBuilder(t *testing.T) {
	a := area.New(geometry.Pt(0, 0), 5, 9)
	raw := a.NewGrid()
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			raw.Set(x, y, float32(20+0.1*raw.ToTerrain(x, y).X))
		}
	}
	src := source.NewMemorySource(
		source.Feature{ID: "pond", Category: source.CategoryLake, Polygon: square(10, 10, 20)},
		source.Feature{
			ID:         "lane",
			Category:   source.CategoryRoad,
			Attributes: map[string]string{"type": "TwoLanesConcreteRoad"},
			Path:       geometry.NewPath(geometry.Pt(0, 37), geometry.Pt(40, 37)),
		},
	)

	reg := build.NewRegistry()
	build.MustRegister(reg, RawKey, RawBuilder{Source: GridSource{Grid: raw}})
	build.MustRegister(reg, roads.Key, roads.NewBuilder(config.DefaultRoadTypes()))
	build.MustRegister(reg, water.LakesKey, water.LakesBuilder{})
	build.MustRegister(reg, water.WaterwaysKey, water.WaterwaysBuilder{})
	build.MustRegister(reg, Key, Builder{})
	bc := build.NewContext(reg,
		build.WithArea(a),
		build.WithSource(src),
		build.WithOptions(*testOptions()),
	)
	defer bc.Close()

	data, err := build.Get(context.Background(), bc, Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !a.Matches(data.Grid) {
		t.Fatal("solved grid does not match the area")
	}
	if len(data.Lakes) != 1 || math.Abs(data.Lakes[0].BorderElevation-21) > 1e-4 {
		t.Fatalf("lakes = %+v", data.Lakes)
	}
	// x = 25 m, y = 20 m lies inside the pond
	if got := data.Grid.At(5, 4); math.Abs(float64(got)-21) > 1e-4 {
		t.Errorf("lake node = %v, want 21", got)
	}
	if got := raw.At(5, 4); math.Abs(float64(got)-22.5) > 1e-4 {
		t.Errorf("raw artifact was modified: %v", got)
	}
	if data.Report.FlatSegments == 0 {
		t.Error("graded road left no flat segments")
	}
	if names := bc.Scratch().Names(); len(names) != 0 {
		t.Errorf("lake masks left in scratch: %v", names)
	}
	for _, kind := range []build.Kind{RawKey.Kind(), roads.Key.Kind(), water.LakesKey.Kind(), water.WaterwaysKey.Kind()} {
		if bc.State(kind) != build.Ready {
			t.Errorf("%s not ready", kind)
		}
	}
}

func TestRawBuilderResamples(t *testing.T) {
	coarse := raster.New(3, 3, 20, geometry.Pt(0, 0))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			coarse.Set(x, y, float32(x*10+y))
		}
	}
	a := area.New(geometry.Pt(0, 0), 10, 5)

	reg := build.NewRegistry()
	build.MustRegister(reg, RawKey, RawBuilder{Source: GridSource{Grid: coarse}})
	bc := build.NewContext(reg, build.WithArea(a))
	defer bc.Close()

	data, err := build.Get(context.Background(), bc, RawKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !a.Matches(data.Grid) {
		t.Fatalf("raw grid %dx%d does not match the area", data.Grid.Width, data.Grid.Height)
	}
	// (10, 10) m is halfway between coarse nodes on both axes
	if got := data.Grid.At(1, 1); math.Abs(float64(got)-5.5) > 1e-5 {
		t.Errorf("resampled node = %v, want 5.5", got)
	}
}
