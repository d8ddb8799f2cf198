package generator

import (
	"bytes"
	"encoding/base64"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	placeholderWidth  = 640
	placeholderHeight = 360
	// labels are drawn on a canvas this many times smaller, then scaled up
	labelScale    = 4
	labelMaxLines = 5
)

// PNGDataURIPrefix prefixes every inline image reference produced here.
const PNGDataURIPrefix = "data:image/png;base64,"

// PlaceholderImage renders a deterministic PNG for key with label written across
// it, returned as a data URI. The same key and label always give the same bytes.
func PlaceholderImage(key, label string) (string, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	sum := h.Sum64()
	from := hueColor(float64(sum % 360))
	to := hueColor(float64((sum >> 20) % 360))

	dst := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	span := float64(placeholderWidth + placeholderHeight)
	for y := 0; y < placeholderHeight; y++ {
		for x := 0; x < placeholderWidth; x++ {
			dst.SetRGBA(x, y, lerp(from, to, float64(x+y)/span))
		}
	}

	w, hgt := placeholderWidth/labelScale, placeholderHeight/labelScale
	layer := image.NewRGBA(image.Rect(0, 0, w, hgt))
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: layer, Src: image.NewUniform(color.White), Face: face}
	lines := wrapLabel(label, (w-8)/face.Advance)
	lineHeight := face.Height
	top := (hgt-len(lines)*lineHeight)/2 + face.Ascent
	for i, line := range lines {
		x := (w - d.MeasureString(line).Ceil()) / 2
		d.Dot = fixed.P(x, top+i*lineHeight)
		d.DrawString(line)
	}
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), layer, layer.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", err
	}
	return PNGDataURIPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func wrapLabel(label string, width int) []string {
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(label) {
		if len(word) > width {
			word = word[:width]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	if len(lines) > labelMaxLines {
		lines = lines[:labelMaxLines]
		last := lines[labelMaxLines-1]
		if len(last)+3 > width {
			last = last[:width-3]
		}
		lines[labelMaxLines-1] = last + "..."
	}
	return lines
}

// hueColor maps a hue in degrees to a muted color dark enough for white text.
func hueColor(hue float64) color.RGBA {
	const s, v = 0.55, 0.55
	c := v * s
	x := c * (1 - math.Abs(math.Mod(hue/60, 2)-1))
	m := v - c
	var r, g, b float64
	switch {
	case hue < 60:
		r, g, b = c, x, 0
	case hue < 120:
		r, g, b = x, c, 0
	case hue < 180:
		r, g, b = 0, c, x
	case hue < 240:
		r, g, b = 0, x, c
	case hue < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{R: uint8((r + m) * 255), G: uint8((g + m) * 255), B: uint8((b + m) * 255), A: 255}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
