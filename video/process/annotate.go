package process

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

var (
	colorTime = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorBG   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// palette cycles per class id so the same class keeps its colour.
var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
}

func classColor(id int) color.RGBA {
	if id < 0 {
		id = -id
	}
	return palette[id%len(palette)]
}

// DrawDetections draws a labelled box for every detection onto img.
func DrawDetections(img *gocv.Mat, dets []Detection) {
	font := gocv.FontHersheySimplex
	scale := 0.5
	thickness := 1
	pad := 2

	for _, d := range dets {
		c := classColor(d.ClassID)
		r := image.Rect(int(d.Box.X1), int(d.Box.Y1), int(d.Box.X2), int(d.Box.Y2))
		gocv.Rectangle(img, r, c, 2)

		text := fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
		sz := gocv.GetTextSize(text, font, scale, thickness)
		top := r.Min.Y - sz.Y - pad*2
		if top < 0 {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+sz.X+pad*2, top+sz.Y+pad*2)
		gocv.Rectangle(img, bg, c, -1)
		gocv.PutText(img, text, image.Point{X: r.Min.X + pad, Y: top + sz.Y + pad}, font, scale, colorTime, thickness)
	}
}

// DrawTimestamp draws the given time, prefixed with name, in the top-left
// corner of img.
func DrawTimestamp(img *gocv.Mat, name string, t time.Time) {
	text := name + " - " + t.Format("2006-01-02 15:04:05 MST")

	font := gocv.FontHersheySimplex
	scale := 0.5
	thickness := 1

	sz := gocv.GetTextSize(text, font, scale, thickness)

	pad := 2

	gocv.Rectangle(img, image.Rectangle{Min: image.Point{X: 0, Y: 0}, Max: image.Point{X: sz.X + pad*2, Y: sz.Y + pad*2}}, colorBG, -1)

	gocv.PutText(img, text, image.Point{X: pad, Y: sz.Y + pad}, font, scale, colorTime, thickness)
}
