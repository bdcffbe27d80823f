// Package chart draws the trajectories of memory coefficients.
package chart

import (
	"errors"
	"fmt"
	"io"

	"github.com/hammal/hippo/memory"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Record collects the memory coefficients of one channel of batch element 0
// over a sequence.
type Record struct {
	Title   string
	Channel int
	Width   vg.Length
	Height  vg.Length
	steps   [][]float64
}

// NewRecord returns an empty record for channel.
func NewRecord(title string, channel int) *Record {
	return &Record{Title: title, Channel: channel, Width: 6 * vg.Inch, Height: 4 * vg.Inch}
}

// Add appends the coefficients of state.
func (r *Record) Add(state memory.State) error {
	rows, _ := state.M.Dims()
	if r.Channel < 0 || r.Channel >= rows {
		return fmt.Errorf("chart: channel %d out of %d memory rows", r.Channel, rows)
	}
	r.steps = append(r.steps, append([]float64(nil), state.M.RawRowView(r.Channel)...))
	return nil
}

// Len is the number of recorded steps.
func (r *Record) Len() int {
	return len(r.steps)
}

func (r *Record) plot() (*plot.Plot, error) {
	if len(r.steps) == 0 {
		return nil, errors.New("chart: nothing recorded")
	}
	p := plot.New()
	p.Title.Text = r.Title
	p.X.Label.Text = "step"
	p.Y.Label.Text = "coefficient"

	var lines []interface{}
	for n, xys := range plottify(r.steps) {
		lines = append(lines, fmt.Sprintf("c%d", n), xys)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return nil, err
	}
	return p, nil
}

// Render writes the chart as PNG.
func (r *Record) Render(w io.Writer) error {
	p, err := r.plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(r.Width, r.Height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save writes the chart to path, the format following the extension.
func (r *Record) Save(path string) error {
	p, err := r.plot()
	if err != nil {
		return err
	}
	return p.Save(r.Width, r.Height, path)
}

// plottify turns samples (step by coefficient) into one line per coefficient.
func plottify(data [][]float64) []plotter.XYs {
	res := make([]plotter.XYs, len(data[0]))
	for index := range res {
		pts := make(plotter.XYs, len(data))
		for i := range pts {
			pts[i].X = float64(i)
			pts[i].Y = data[i][index]
		}
		res[index] = pts
	}
	return res
}
