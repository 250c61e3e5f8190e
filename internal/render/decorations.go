package render

import (
	"fmt"
	"image/color"

	"github.com/fogleman/gg"
)

// drawDecorations adds the title, colorbar, scale bar and north arrow.
func drawDecorations(dc *gg.Context, f *frame, opts Options) error {
	if opts.Title != "" {
		if err := setFace(dc, titlePt*f.pt); err != nil {
			return err
		}
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(opts.Title, f.axX+f.axW/2, f.axY/2, 0.5, 0.5)
	}
	if err := drawColorbar(dc, f, opts); err != nil {
		return err
	}
	if opts.ScaleBarMeters > 0 {
		if err := drawScaleBar(dc, f, opts); err != nil {
			return err
		}
	}
	return drawNorthArrow(dc, f)
}

func setFace(dc *gg.Context, sizePx float64) error {
	ff, err := face(sizePx)
	if err != nil {
		return err
	}
	dc.SetFontFace(ff)
	return nil
}

// drawColorbar draws a vertical 0..1 ramp beside the axes at 70% of
// their height.
func drawColorbar(dc *gg.Context, f *frame, opts Options) error {
	barH := f.axH * colorbarShrink
	barW := 0.025 * f.axW
	x := f.axX + f.axW + 0.04*f.axW
	top := f.axY + (f.axH-barH)/2

	steps := max(int(barH), 2)
	for i := 0; i < steps; i++ {
		v := 1 - float64(i)/float64(steps-1)
		dc.SetColor(opts.Colormap.At(v))
		dc.DrawRectangle(x, top+float64(i), barW, 1.5)
		dc.Fill()
	}
	dc.SetColor(color.Black)
	dc.SetLineWidth(0.8 * f.pt)
	dc.DrawRectangle(x, top, barW, barH)
	dc.Stroke()

	if err := setFace(dc, tickPt*f.pt); err != nil {
		return err
	}
	tick := 3.5 * f.pt
	for i := 0; i <= 5; i++ {
		v := float64(i) / 5
		y := top + (1-v)*barH
		dc.DrawLine(x+barW, y, x+barW+tick, y)
		dc.Stroke()
		dc.DrawStringAnchored(fmt.Sprintf("%.1f", v), x+barW+tick+2*f.pt, y, 0, 0.35)
	}

	if opts.ColorbarLabel != "" {
		if err := setFace(dc, colorbarPt*f.pt); err != nil {
			return err
		}
		lx := x + barW + tick + 28*f.pt
		ly := top + barH/2
		dc.Push()
		dc.RotateAbout(gg.Radians(90), lx, ly)
		dc.DrawStringAnchored(opts.ColorbarLabel, lx, ly, 0.5, 0.5)
		dc.Pop()
	}
	return nil
}

// drawScaleBar draws a filled bar of ScaleBarMeters in the lower right of
// the axes with its label above.
func drawScaleBar(dc *gg.Context, f *frame, opts Options) error {
	length := opts.ScaleBarMeters * f.scale
	height := 1000 * f.scale
	if height < f.pt {
		height = f.pt
	}
	pad := 0.5 * scaleBarPt * f.pt
	right := f.axX + f.axW - pad
	bottom := f.axY + f.axH - pad

	dc.SetColor(color.Black)
	dc.DrawRectangle(right-length, bottom-height, length, height)
	dc.Fill()

	if opts.ScaleBarLabel == "" {
		return nil
	}
	if err := setFace(dc, scaleBarPt*f.pt); err != nil {
		return err
	}
	dc.DrawStringAnchored(opts.ScaleBarLabel, right-length/2, bottom-height-pad, 0.5, 0)
	return nil
}

// drawNorthArrow draws an arrow from 0.87 to 0.93 of the axes height with
// an "N" above it, at 0.97 of the axes width.
func drawNorthArrow(dc *gg.Context, f *frame) error {
	x := f.axX + 0.97*f.axW
	axesY := func(frac float64) float64 { return f.axY + (1-frac)*f.axH }

	tail, tip := axesY(0.87), axesY(0.93)
	head := 8 * f.pt
	dc.SetColor(color.Black)
	dc.SetLineWidth(2 * f.pt)
	dc.DrawLine(x, tail, x, tip+head*0.8)
	dc.Stroke()
	dc.MoveTo(x, tip)
	dc.LineTo(x-head/2, tip+head)
	dc.LineTo(x+head/2, tip+head)
	dc.ClosePath()
	dc.Fill()

	if err := setFace(dc, northPt*f.pt); err != nil {
		return err
	}
	dc.DrawStringAnchored("N", x, axesY(0.97), 0.5, 0.5)
	return nil
}
