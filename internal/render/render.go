// Package render draws the history table as trend charts.
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/cochaviz/kernelsize/internal/history"
	"github.com/cochaviz/kernelsize/internal/logging"
)

// Renderer saves charts as "<SavePath>_<n>.png". The counter n is owned by
// the renderer and increases with every chart saved, across calls.
type Renderer struct {
	Logger   *slog.Logger
	SavePath string
	Width    float64
	Height   float64

	counter int
}

type chart struct {
	title  string
	series []series
}

type series struct {
	name  string
	value func(history.Entry) float64
}

func charts() []chart {
	return []chart{
		{
			title: "Execute in place",
			series: []series{
				{name: "ROM", value: func(e history.Entry) float64 { return e.ROMXIP }},
				{name: "RAM", value: func(e history.Entry) float64 { return e.RAMXIP }},
			},
		},
		{
			title: "Compressed image",
			series: []series{
				{name: "ROM", value: func(e history.Entry) float64 { return e.ROMCompressed }},
				{name: "RAM", value: func(e history.Entry) float64 { return e.RAMCompressed }},
			},
		},
	}
}

// Render writes the XIP chart and the compressed image chart and returns
// their paths in that order.
func (r *Renderer) Render(table *history.Table) ([]string, error) {
	if table == nil || len(table.Entries) == 0 {
		return nil, errors.New("history table is empty")
	}
	if r.SavePath == "" {
		return nil, errors.New("save path is not configured")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("invalid figure size %vx%v", r.Width, r.Height)
	}
	if dir := filepath.Dir(r.SavePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create plot directory: %w", err)
		}
	}

	logger := logging.Ensure(r.Logger)
	labels := make([]string, len(table.Entries))
	for i, e := range table.Entries {
		labels[i] = e.Version.String()
	}

	var paths []string
	for _, c := range charts() {
		p := plot.New()
		p.Title.Text = c.title
		p.X.Label.Text = "Version"
		p.Y.Label.Text = "Size (" + table.Unit + ")"
		p.Legend.Top = true
		p.Add(plotter.NewGrid())

		var lines []any
		for _, s := range c.series {
			pts := make(plotter.XYs, len(table.Entries))
			for i, e := range table.Entries {
				pts[i].X = float64(i)
				pts[i].Y = s.value(e)
			}
			lines = append(lines, s.name, pts)
		}
		if err := plotutil.AddLinePoints(p, lines...); err != nil {
			return nil, fmt.Errorf("plot %s: %w", c.title, err)
		}
		p.NominalX(labels...)

		path := r.nextPath()
		if err := p.Save(vg.Length(r.Width)*vg.Inch, vg.Length(r.Height)*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("save %s: %w", path, err)
		}
		logger.Info("chart saved", "chart", c.title, "path", path)
		paths = append(paths, path)
	}
	return paths, nil
}

func (r *Renderer) nextPath() string {
	path := fmt.Sprintf("%s_%d.png", r.SavePath, r.counter)
	r.counter++
	return path
}
