// Package asc reads and writes ESRI ASCII grids.
// Grid nodes are point samples, so headers use xllcenter/yllcenter on write;
// xllcorner/yllcorner are accepted on read and shifted by half a cell.
package asc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"terrain-build/core/geometry"
	"terrain-build/core/raster"
	"terrain-build/internal/errors"
)

// DefaultNoData is written in headers and marks missing samples
const DefaultNoData = -9999

// maxCells bounds ncols x nrows
const maxCells = 1 << 28

// Header is the parsed ESRI ASCII header
type Header struct {
	Columns  int
	Rows     int
	Origin   geometry.Point
	CellSize float64
	NoData   float64
}

// Read parses an ESRI ASCII grid. Rows are stored north first in the file and
// south first in the grid. Missing samples take the lowest valid elevation.
func Read(r io.Reader) (*raster.Grid, error) {
	words := bufio.NewScanner(r)
	words.Buffer(make([]byte, 64*1024), 1024*1024)
	words.Split(bufio.ScanWords)

	header, pending, err := readHeader(words)
	if err != nil {
		return nil, err
	}
	next := func() (string, bool) {
		if pending != "" {
			word := pending
			pending = ""
			return word, true
		}
		if !words.Scan() {
			return "", false
		}
		return words.Text(), true
	}

	grid := raster.New(header.Columns, header.Rows, header.CellSize, header.Origin)
	var missing []int
	lowest := math.Inf(1)
	for row := 0; row < header.Rows; row++ {
		y := header.Rows - 1 - row
		for x := 0; x < header.Columns; x++ {
			word, ok := next()
			if !ok {
				if err := words.Err(); err != nil {
					return nil, errors.Parsing("failed to read grid values", err)
				}
				return nil, errors.Newf(errors.TypeParsing, "grid ends after %d of %d values",
					row*header.Columns+x, header.Columns*header.Rows)
			}
			v, err := parseNumber(word)
			if err != nil {
				return nil, errors.Parsing(fmt.Sprintf("invalid value at row %d column %d", row, x), err)
			}
			i := grid.Index(x, y)
			if v == header.NoData {
				missing = append(missing, i)
				continue
			}
			lowest = math.Min(lowest, v)
			grid.Values[i] = float32(v)
		}
	}

	if len(missing) > 0 {
		if math.IsInf(lowest, 1) {
			return nil, errors.Input("grid holds no elevation samples")
		}
		for _, i := range missing {
			grid.Values[i] = float32(lowest)
		}
	}
	return grid, nil
}

// readHeader consumes the header. nodata_value is optional; when it is absent
// the first grid value has already been read and is returned as pending.
func readHeader(words *bufio.Scanner) (h Header, pending string, err error) {
	h.NoData = DefaultNoData
	var corner bool
	seen := make(map[string]bool)

	for len(seen) < 6 && words.Scan() {
		key := strings.ToLower(words.Text())
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		default:
			if len(seen) == 5 && !seen["nodata_value"] {
				pending = words.Text()
				return h, pending, validateHeader(&h, corner)
			}
			return h, "", errors.Newf(errors.TypeParsing, "unexpected header key %q", words.Text())
		}
		if !words.Scan() {
			return h, "", errors.Newf(errors.TypeParsing, "missing value for %s", key)
		}
		v, err := parseNumber(words.Text())
		if err != nil {
			return h, "", errors.Parsing("invalid header value for "+key, err)
		}

		switch key {
		case "ncols", "nrows":
			n, err := dimension(key, v)
			if err != nil {
				return h, "", err
			}
			if key == "ncols" {
				h.Columns = n
			} else {
				h.Rows = n
			}
		case "xllcorner":
			corner = true
			h.Origin.X = v
		case "yllcorner":
			corner = true
			h.Origin.Y = v
		case "xllcenter":
			h.Origin.X = v
		case "yllcenter":
			h.Origin.Y = v
		case "cellsize":
			h.CellSize = v
		case "nodata_value":
			h.NoData = v
		}
		seen[strings.TrimSuffix(strings.TrimSuffix(key, "corner"), "center")] = true
	}
	if err := words.Err(); err != nil {
		return h, "", errors.Parsing("failed to read header", err)
	}
	return h, "", validateHeader(&h, corner)
}

func validateHeader(h *Header, corner bool) error {
	if h.Columns <= 0 || h.Rows <= 0 {
		return errors.Newf(errors.TypeParsing, "invalid grid size %dx%d", h.Columns, h.Rows)
	}
	if h.Columns > maxCells/h.Rows {
		return errors.Newf(errors.TypeParsing, "grid size %dx%d exceeds %d cells", h.Columns, h.Rows, maxCells)
	}
	if h.CellSize <= 0 {
		return errors.Newf(errors.TypeParsing, "invalid cell size %g", h.CellSize)
	}
	if corner {
		h.Origin = geometry.Pt(h.Origin.X+h.CellSize/2, h.Origin.Y+h.CellSize/2)
	}
	return nil
}

// dimension converts a header size to an int, rejecting fractions and values past maxCells
func dimension(key string, v float64) (int, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, errors.Newf(errors.TypeParsing, "%s must be an integer, got %g", key, v)
	}
	if v > maxCells {
		return 0, errors.Newf(errors.TypeParsing, "%s %g exceeds %d", key, v, maxCells)
	}
	return int(v), nil
}

func parseNumber(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// Write encodes g with two decimals per value, north row first
func Write(w io.Writer, g *raster.Grid) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "ncols %d\n", g.Width)
	fmt.Fprintf(bw, "nrows %d\n", g.Height)
	fmt.Fprintf(bw, "xllcenter %s\n", decimal.NewFromFloat(g.Origin.X).String())
	fmt.Fprintf(bw, "yllcenter %s\n", decimal.NewFromFloat(g.Origin.Y).String())
	fmt.Fprintf(bw, "cellsize %s\n", decimal.NewFromFloat(g.CellSize).String())
	fmt.Fprintf(bw, "NODATA_value %d\n", DefaultNoData)

	for y := g.Height - 1; y >= 0; y-- {
		for x := 0; x < g.Width; x++ {
			if x > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(decimal.NewFromFloat32(g.At(x, y)).StringFixed(2))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteFile writes g to path, creating the parent directory
func WriteFile(path string, g *raster.Grid) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FileSource loads the raw elevation raster from an ASC file
type FileSource struct {
	Path string
}

// Load implements elevation.Source
func (s FileSource) Load(ctx context.Context) (*raster.Grid, error) {
	if s.Path == "" {
		return nil, errors.Input("no elevation file given")
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("elevation file", s.Path)
		}
		return nil, err
	}
	defer f.Close()

	grid, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeParsing, err, "failed to read %s", s.Path)
	}
	return grid, nil
}
