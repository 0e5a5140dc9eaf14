package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/fogleman/gg"
)

const ContentTypePNG = "image/png"

// Point is one labelled value of a chart series.
type Point struct {
	Label string
	Value float64
}

// ChartOptions sizes and titles a chart.
type ChartOptions struct {
	Title  string
	Width  int
	Height int
	// Color is a hex colour for the series, e.g. "#1f77b4".
	Color string
}

func (o *ChartOptions) defaults() {
	if o.Width <= 0 {
		o.Width = 800
	}
	if o.Height <= 0 {
		o.Height = 400
	}
	if o.Color == "" {
		o.Color = "#1f77b4"
	}
}

const (
	marginLeft   = 60.0
	marginRight  = 20.0
	marginTop    = 40.0
	marginBottom = 70.0
)

type plotArea struct {
	x0, y0, x1, y1 float64
	max            float64
}

func (p plotArea) y(v float64) float64 {
	return p.y1 - (v/p.max)*(p.y1-p.y0)
}

func newCanvas(points []Point, opts ChartOptions) (*gg.Context, plotArea) {
	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	area := plotArea{
		x0: marginLeft, y0: marginTop,
		x1: float64(opts.Width) - marginRight, y1: float64(opts.Height) - marginBottom,
	}
	for _, p := range points {
		if p.Value > area.max {
			area.max = p.Value
		}
	}
	if area.max <= 0 {
		area.max = 1
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(opts.Title, float64(opts.Width)/2, marginTop/2, 0.5, 0.5)

	// axes
	dc.SetLineWidth(1)
	dc.DrawLine(area.x0, area.y0, area.x0, area.y1)
	dc.DrawLine(area.x0, area.y1, area.x1, area.y1)
	dc.Stroke()

	// y ticks
	const ticks = 4
	for i := 0; i <= ticks; i++ {
		v := area.max * float64(i) / ticks
		y := area.y(v)
		dc.SetRGB(0.85, 0.85, 0.85)
		dc.DrawLine(area.x0, y, area.x1, y)
		dc.Stroke()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(strconv.FormatFloat(v, 'f', 0, 64), area.x0-6, y, 1, 0.5)
	}
	return dc, area
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawXLabel(dc *gg.Context, label string, x, y float64) {
	dc.Push()
	dc.RotateAbout(gg.Radians(-35), x, y)
	dc.DrawStringAnchored(label, x, y, 1, 0.5)
	dc.Pop()
}

// LineChart renders points as a line with markers, in order.
func LineChart(points []Point, opts ChartOptions) ([]byte, error) {
	opts.defaults()
	dc, area := newCanvas(points, opts)
	if len(points) == 0 {
		dc.DrawStringAnchored("No data", (area.x0+area.x1)/2, (area.y0+area.y1)/2, 0.5, 0.5)
		return encode(dc)
	}

	step := (area.x1 - area.x0) / float64(len(points))
	xAt := func(i int) float64 { return area.x0 + step*(float64(i)+0.5) }

	dc.SetHexColor(opts.Color)
	dc.SetLineWidth(2)
	for i, p := range points {
		if i == 0 {
			dc.MoveTo(xAt(i), area.y(p.Value))
		} else {
			dc.LineTo(xAt(i), area.y(p.Value))
		}
	}
	dc.Stroke()
	for i, p := range points {
		dc.DrawCircle(xAt(i), area.y(p.Value), 3)
		dc.Fill()
	}

	dc.SetRGB(0, 0, 0)
	for i, p := range points {
		drawXLabel(dc, p.Label, xAt(i), area.y1+12)
	}
	return encode(dc)
}

// BarChart renders one vertical bar per point, in order.
func BarChart(points []Point, opts ChartOptions) ([]byte, error) {
	opts.defaults()
	for _, p := range points {
		if p.Value < 0 {
			return nil, errors.New("bar chart values must not be negative")
		}
	}
	dc, area := newCanvas(points, opts)
	if len(points) == 0 {
		dc.DrawStringAnchored("No data", (area.x0+area.x1)/2, (area.y0+area.y1)/2, 0.5, 0.5)
		return encode(dc)
	}

	step := (area.x1 - area.x0) / float64(len(points))
	barW := step * 0.7
	for i, p := range points {
		x := area.x0 + step*float64(i) + (step-barW)/2
		y := area.y(p.Value)
		dc.SetHexColor(opts.Color)
		dc.DrawRectangle(x, y, barW, area.y1-y)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(strconv.FormatFloat(p.Value, 'f', -1, 64), x+barW/2, y-6, 0.5, 0.5)
		drawXLabel(dc, p.Label, x+barW/2, area.y1+12)
	}
	return encode(dc)
}
