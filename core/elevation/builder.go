package elevation

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"terrain-build/core/build"
	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/raster"
	"terrain-build/core/roads"
	"terrain-build/core/water"
	"terrain-build/internal/config"
)

// Data is the corrected elevation of the area
type Data struct {
	// Grid has the shape of the raw raster
	Grid *raster.Grid

	// Lakes are the carved lakes with their rim elevation
	Lakes []LakeWithElevation

	// Report describes the constraints the grid was solved with
	Report SolveReport
}

// Key is the data kind of the corrected elevation
var Key = build.NewKey[*Data]("Elevation")

// Builder runs the constraint solver over the raw elevation
type Builder struct {
	// SaveMasks keeps lake masks in scratch storage for export
	SaveMasks bool
}

// Produce implements build.Stage
func (b Builder) Produce(ctx context.Context, bc *build.Context, scope progress.Scope) (*Data, error) {
	var (
		raw       *RawData
		roadsData *roads.Data
		waterways *water.WaterwaysData
		lakes     *water.LakesData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { raw, err = build.Get(gctx, bc, RawKey, scope); return })
	g.Go(func() (err error) { roadsData, err = build.Get(gctx, bc, roads.Key, scope); return })
	g.Go(func() (err error) { waterways, err = build.Get(gctx, bc, water.WaterwaysKey, scope); return })
	g.Go(func() (err error) { lakes, err = build.Get(gctx, bc, water.LakesKey, scope); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts := bc.Options()
	logger := bc.Logger().With(zap.String("kind", string(Key.Kind())))

	// the raw artifact is shared, carving works on a copy
	grid := raw.Grid.Clone()
	carver := &Carver{Options: opts, Scratch: bc.Scratch(), KeepMasks: b.SaveMasks, Logger: logger}
	step := scope.CreateStep("DigLakes", len(lakes.Polygons))
	carved, err := carver.CarveLakes(ctx, grid, lakes.Polygons, step)
	step.Close()
	if err != nil {
		return nil, err
	}

	cg := NewConstraintGrid(grid, logger)
	graded := roadsData.Graded(roads.TypeID(opts.MaxGradedRoadType))
	ProcessRoads(cg, graded, opts, scope)
	ProcessWaterways(cg, waterways.Surface(), opts, scope)
	ProtectLakes(cg, carved, opts, scope)

	out, report, err := cg.Solve(ctx, opts.Workers)
	if err != nil {
		return nil, err
	}
	logger.Info("elevation built",
		zap.Int("lakes", len(carved)),
		zap.Int("roads", len(graded)),
		zap.Int("conflicts", report.Conflicts))
	return &Data{Grid: out, Lakes: carved, Report: report}, nil
}

// ProcessRoads adds the grading constraints of roads, in order
func ProcessRoads(cg *ConstraintGrid, rs []*roads.Road, opts *config.Processing, scope progress.Scope) {
	step := scope.CreateStep("Roads", len(rs))
	defer step.Close()

	for _, road := range rs {
		if len(road.Path.Points) >= 2 {
			switch road.Special {
			case roads.SpecialBridge:
				processBridge(cg, road)
			case roads.SpecialEmbankment:
				processEmbankment(cg, road, opts)
			default:
				processNormalRoad(cg, road, opts)
			}
		}
		step.ReportOneDone()
	}
}

// processBridge pins the bridge ends; the ground under the deck is left alone
func processBridge(cg *ConstraintGrid, road *roads.Road) {
	cg.NodeAt(road.Path.First()).PinToInitial()
	cg.NodeAt(road.Path.Last()).PinToInitial()
}

// processEmbankment pins the ends and interpolates a flat road between them
func processEmbankment(cg *ConstraintGrid, road *roads.Road, opts *config.Processing) {
	start := cg.NodeAt(road.Path.First()).PinToInitial()
	stop := cg.NodeAt(road.Path.Last()).PinToInitial()
	from, _ := start.Elevation()
	to, _ := stop.Elevation()

	points := road.Path.Resample(opts.ResampleStep)
	total := geometry.NewPath(points...).Length()
	smooth := cg.CreateSmoothSegment(start, road.Width*opts.SmoothingWidthFactor)

	var distance float64
	runStart := points[0]
	for i := 0; i+1 < len(points); i++ {
		a, b := cg.NodeAt(points[i]), cg.NodeAt(points[i+1])
		if a != b {
			cg.AddFlatSegment(a, runStart, points[i+1], road.Width)
			runStart = points[i]
			if !a.IsPinned() && total > 0 {
				a.SetElevation(from + (to-from)*distance/total)
			}
		}
		distance += geometry.Distance(points[i], points[i+1])
		if a != b {
			smooth.Add(distance, b)
		}
	}
	last := points[len(points)-1]
	cg.AddFlatSegment(cg.NodeAt(last), runStart, last, road.Width)
}

// processNormalRoad flattens the road cross-section, following the smoothed raster
func processNormalRoad(cg *ConstraintGrid, road *roads.Road, opts *config.Processing) {
	points := road.Path.Resample(opts.ResampleStep)
	smooth := cg.CreateSmoothSegment(cg.NodeAt(road.Path.First()), road.Width*opts.SmoothingWidthFactor)

	var distance float64
	runStart := points[0]
	for i := 0; i+1 < len(points); i++ {
		a, b := cg.NodeAt(points[i]), cg.NodeAt(points[i+1])
		if a != b {
			cg.AddFlatSegment(a, runStart, points[i+1], road.Width)
			runStart = points[i]
		}
		distance += geometry.Distance(points[i], points[i+1])
		if a != b {
			smooth.Add(distance, b)
		}
	}
	last := points[len(points)-1]
	cg.AddFlatSegment(cg.NodeAt(last), runStart, last, road.Width)
}

// ProcessWaterways makes every waterway long enough flow downhill
func ProcessWaterways(cg *ConstraintGrid, ways []*water.Waterway, opts *config.Processing, scope progress.Scope) {
	var kept []*water.Waterway
	for _, w := range ways {
		if w.Path.Length() > opts.MinWaterwayLength {
			kept = append(kept, w)
		}
	}

	step := scope.CreateStep("Waterways", len(kept))
	defer step.Close()

	for _, w := range kept {
		points := w.Path.Resample(opts.ResampleStep)
		for i := 0; i+1 < len(points); i++ {
			up, down := cg.NodeAt(points[i]), cg.NodeAt(points[i+1])
			if up == down {
				continue
			}
			down.MustBeLowerThan(up)
			up.SetWantedRelativeElevation(-opts.WaterwayDrop)
			up.SetLowerLimitRelativeElevation(-opts.WaterwayMaxDepth)
		}
		step.ReportOneDone()
	}
}

// ProtectLakes floors every node near a carved lake at the lake rim elevation
func ProtectLakes(cg *ConstraintGrid, lakes []LakeWithElevation, opts *config.Processing, scope progress.Scope) {
	step := scope.CreateStep("LakeLimit", len(lakes))
	defer step.Close()

	buffer := opts.LakeProtectionCells * cg.Grid().CellSize
	for _, lake := range lakes {
		env := lake.Polygon.Envelope().ExpandedByMargin(buffer)
		for _, n := range cg.SearchRect(env) {
			if lake.Polygon.SignedDistance(n.Point) >= -buffer {
				n.SetNotBelow(lake.BorderElevation)
				n.Protect()
			}
		}
		step.ReportOneDone()
	}
}
