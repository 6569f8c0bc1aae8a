package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	truthColor    = color.RGBA{R: 255, B: 128, A: 255}
	measuredColor = color.RGBA{G: 255, A: 128}
	filteredColor = color.RGBA{R: 64, G: 64, B: 200, A: 255}
)

func checkData(cols int, data ...*mat.Dense) error {
	rows := -1
	for _, m := range data {
		if m == nil {
			return fmt.Errorf("invalid data supplied")
		}

		r, c := m.Dims()
		if c < cols {
			return fmt.Errorf("invalid data dimensions: [%d x %d]", r, c)
		}

		if rows >= 0 && r != rows {
			return fmt.Errorf("data row count mismatch: %d != %d", r, rows)
		}
		rows = r
	}

	return nil
}

// NewTrackPlot creates new top-down plot of the tracking simulation from three data sources,
// each storing one [x y z] position per row:
// truth:    true target positions
// measured: measured positions
// filtered: tracker estimates
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * either of the supplied data matrices is nil
// * either of the supplied data matrices does not have at least 2 columns
// * the data matrices have different number of rows
// * gonum plot fails to be created
func NewTrackPlot(truth, measured, filtered *mat.Dense, title string) (*plot.Plot, error) {
	if err := checkData(2, truth, measured, filtered); err != nil {
		return nil, err
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	p.Legend = plot.NewLegend()
	p.Legend.Top = true

	if err := addSeries(p, makePoints(truth, 0, 1), makePoints(measured, 0, 1), makePoints(filtered, 0, 1)); err != nil {
		return nil, err
	}

	return p, nil
}

// NewAxisPlot creates new plot of a single position coordinate over time.
// ts holds sampling times, axis selects the plotted data column.
// It returns error if the data is invalid or gonum plot fails to be created.
func NewAxisPlot(ts []float64, truth, measured, filtered *mat.Dense, axis int, title string) (*plot.Plot, error) {
	if axis < 0 {
		return nil, fmt.Errorf("invalid axis: %d", axis)
	}

	if err := checkData(axis+1, truth, measured, filtered); err != nil {
		return nil, err
	}

	if r, _ := truth.Dims(); r != len(ts) {
		return nil, fmt.Errorf("time and data length mismatch: %d != %d", len(ts), r)
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "t [s]"
	p.Y.Label.Text = fmt.Sprintf("%c", "XYZ"[axis%3])

	p.Legend = plot.NewLegend()
	p.Legend.Top = true

	if err := addSeries(p, timePoints(ts, truth, axis), timePoints(ts, measured, axis), timePoints(ts, filtered, axis)); err != nil {
		return nil, err
	}

	return p, nil
}

func addSeries(p *plot.Plot, truth, measured, filtered plotter.XYs) error {
	// Make a line plotter for true trajectory
	truthLine, err := plotter.NewLine(truth)
	if err != nil {
		return err
	}
	truthLine.LineStyle.Color = truthColor
	truthLine.LineStyle.Width = vg.Points(1)

	p.Add(truthLine)
	p.Legend.Add("truth", truthLine)

	// Make a scatter plotter for measurement data
	measScatter, err := plotter.NewScatter(measured)
	if err != nil {
		return err
	}
	measScatter.GlyphStyle.Color = measuredColor
	measScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(measScatter)
	p.Legend.Add("measurement", measScatter)

	// Make a scatter plotter for filter data
	filterScatter, err := plotter.NewScatter(filtered)
	if err != nil {
		return fmt.Errorf("failed to create scatter: %v", err)
	}
	filterScatter.GlyphStyle.Color = filteredColor
	filterScatter.Shape = draw.CrossGlyph{}
	filterScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(filterScatter)
	p.Legend.Add("filtered", filterScatter)

	return nil
}

func makePoints(m *mat.Dense, xc, yc int) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, xc)
		pts[i].Y = m.At(i, yc)
	}

	return pts
}

func timePoints(ts []float64, m *mat.Dense, c int) plotter.XYs {
	pts := make(plotter.XYs, len(ts))
	for i := range ts {
		pts[i].X = ts[i]
		pts[i].Y = m.At(i, c)
	}

	return pts
}
