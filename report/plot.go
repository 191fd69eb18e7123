// Package report renders the progress of a selection run.
package report

import (
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	_ "gonum.org/v1/plot/vg/vgimg" // png, jpg, tiff
	_ "gonum.org/v1/plot/vg/vgsvg" // svg

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
	"github.com/YuminosukeSato/stepwise/sfo"
)

// Default image size.
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// GainPlot builds a plot of the best selected gain per round, with every
// selected candidate drawn as a point.
func GainPlot(history []sfo.RoundSummary) (*plot.Plot, error) {
	if len(history) == 0 {
		return nil, sfoerrors.NewValidationError("history", "at least one round is required", 0)
	}

	best := make(plotter.XYs, len(history))
	var selected plotter.XYs
	for i, s := range history {
		best[i].X = float64(s.Round)
		best[i].Y = s.BestGain()
		for _, g := range s.Selected {
			selected = append(selected, plotter.XY{X: float64(s.Round), Y: g.Gain})
		}
	}

	p := plot.New()
	p.Title.Text = "Forward selection"
	p.X.Label.Text = "Round"
	p.Y.Label.Text = "Gain"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(best)
	if err != nil {
		return nil, sfoerrors.Wrap(err, "best gain line")
	}
	p.Add(line)
	p.Legend.Add("best gain", line)

	if len(selected) > 0 {
		points, err := plotter.NewScatter(selected)
		if err != nil {
			return nil, sfoerrors.Wrap(err, "selected points")
		}
		p.Add(points)
		p.Legend.Add("selected", points)
	}
	return p, nil
}

// PlotGains saves the gain plot to path. The image format follows the file
// extension (png, svg, pdf, ...).
func PlotGains(history []sfo.RoundSummary, path string) error {
	p, err := GainPlot(history)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return sfoerrors.Wrapf(err, "save plot %s", path)
	}
	return nil
}

// WriteGains renders the gain plot in format ("png", "svg", ...) to w.
func WriteGains(w io.Writer, history []sfo.RoundSummary, format string) error {
	p, err := GainPlot(history)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Width, Height, format)
	if err != nil {
		return sfoerrors.Wrapf(err, "render %s", format)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return sfoerrors.Wrap(err, "write plot")
	}
	return nil
}
