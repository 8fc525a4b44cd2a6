package view

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ChartPoint 是剂量历史图上的一个数据点
type ChartPoint struct {
	Date   time.Time
	DoseMg float64
}

// ChartMarker 标注一次方案切换的位置
type ChartMarker struct {
	Date  time.Time
	Label string
}

var (
	chartBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	chartAxis       = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
	chartBar        = color.RGBA{R: 0x4f, G: 0x86, B: 0xf7, A: 0xff}
	chartMarkerLine = color.RGBA{R: 0xe0, G: 0x66, B: 0x3d, A: 0xff}
	chartText       = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
)

const chartPadding = 32

// RenderDoseChart 把剂量历史渲染为 PNG 柱状图
// 横轴按日期线性分布，纵轴为单针剂量；方案切换画竖线标注
func RenderDoseChart(w io.Writer, points []ChartPoint, markers []ChartMarker, width, height int) error {
	if width <= 2*chartPadding {
		width = 640
	}
	if height <= 2*chartPadding {
		height = 320
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, img.Bounds(), chartBackground)

	plot := image.Rect(chartPadding, chartPadding, width-chartPadding, height-chartPadding)

	// 坐标轴
	drawHLine(img, plot.Min.X, plot.Max.X, plot.Max.Y, chartAxis)
	drawVLine(img, plot.Min.X, plot.Min.Y, plot.Max.Y, chartAxis)

	if len(points) == 0 {
		drawLabel(img, plot.Min.X+8, plot.Min.Y+16, "no data", chartText)
		return png.Encode(w, img)
	}

	minDate, maxDate := points[0].Date, points[0].Date
	maxDose := 0.0
	for _, p := range points {
		if p.Date.Before(minDate) {
			minDate = p.Date
		}
		if p.Date.After(maxDate) {
			maxDate = p.Date
		}
		if p.DoseMg > maxDose {
			maxDose = p.DoseMg
		}
	}
	if maxDose <= 0 {
		maxDose = 1
	}

	spanDays := int(maxDate.Sub(minDate).Hours()/24) + 1

	barWidth := plot.Dx() / (spanDays + 1)
	if barWidth < 2 {
		barWidth = 2
	}
	if barWidth > 16 {
		barWidth = 16
	}

	for _, p := range points {
		x := plotX(plot, minDate, spanDays, p.Date)
		barHeight := int(float64(plot.Dy()) * p.DoseMg / maxDose)
		if barHeight < 1 {
			barHeight = 1
		}
		bar := image.Rect(x-barWidth/2, plot.Max.Y-barHeight, x+barWidth/2, plot.Max.Y)
		fill(img, bar.Intersect(plot), chartBar)
	}

	for _, m := range markers {
		if m.Date.Before(minDate) || m.Date.After(maxDate) {
			continue
		}
		x := plotX(plot, minDate, spanDays, m.Date)
		drawVLine(img, x, plot.Min.Y, plot.Max.Y, chartMarkerLine)
		drawLabel(img, x+3, plot.Min.Y+12, m.Label, chartText)
	}

	drawLabel(img, plot.Min.X, plot.Min.Y-6, fmt.Sprintf("%.0f mg", maxDose), chartText)
	drawLabel(img, plot.Min.X, plot.Max.Y+14, minDate.Format("2006-01-02"), chartText)
	drawLabel(img, plot.Max.X-70, plot.Max.Y+14, maxDate.Format("2006-01-02"), chartText)

	return png.Encode(w, img)
}

func plotX(plot image.Rectangle, minDate time.Time, spanDays int, date time.Time) int {
	offset := int(date.Sub(minDate).Hours() / 24)
	return plot.Min.X + (offset+1)*plot.Dx()/(spanDays+1)
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawHLine(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y, c)
	}
}

func drawVLine(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, c)
	}
}

func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}
