package view

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/pdevine/tensor"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// White is the flat background objects are matted onto.
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Decode reads a PNG, JPEG or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Load reads and decodes the image at path.
func Load(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(bytes.NewReader(data))
}

// Composite pastes img onto a flat background using its own alpha channel
// as the mask.
func Composite(img image.Image, bg color.Color) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, &image.Uniform{C: bg}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Over)
	return dst
}

// FillTransparent replaces fully transparent pixels with bg and drops the
// alpha channel everywhere else, as rendered datasets expect.
func FillTransparent(img image.Image, bg color.Color) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				dst.Set(x-b.Min.X, y-b.Min.Y, bg)
				continue
			}
			c.A = 255
			dst.Set(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return dst
}

// Resize scales img to exactly w×h.
func Resize(img image.Image, h, w int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Rect, img, img.Bounds(), draw.Src, nil)
	return dst
}

// FromImage resizes img to h×w and converts it into a [3, h, w] tensor with
// values in [-1, 1].
func FromImage(img image.Image, h, w int) *tensor.Dense {
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		img = Resize(img, h, w)
	}

	b := img.Bounds()
	plane := h * w
	data := make([]float32, Channels*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = float32(r>>8)/255*2 - 1
			data[plane+i] = float32(g>>8)/255*2 - 1
			data[2*plane+i] = float32(bl>>8)/255*2 - 1
		}
	}

	return tensor.New(tensor.WithShape(Channels, h, w), tensor.WithBacking(data))
}

// ToImage converts a [3, H, W] (or [1, 3, H, W]) tensor in [-1, 1] back to
// 8-bit RGB.
func ToImage(t *tensor.Dense) (*image.RGBA, error) {
	h, w, err := Size(t)
	if err != nil {
		return nil, err
	}

	data, err := Pixels(t)
	if err != nil {
		return nil, err
	}

	plane := h * w
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	pix := img.Pix
	for i := 0; i < plane; i++ {
		pix[4*i+0] = toByte(data[i])
		pix[4*i+1] = toByte(data[plane+i])
		pix[4*i+2] = toByte(data[2*plane+i])
		pix[4*i+3] = 255
	}
	return img, nil
}

func toByte(v float32) uint8 {
	f := (v/2 + 0.5) * 255
	switch {
	case math.IsNaN(float64(f)), f < 0:
		return 0
	case f > 255:
		return 255
	}
	return uint8(f)
}

// SavePNG writes t as a PNG file at path.
func SavePNG(t *tensor.Dense, path string) error {
	img, err := ToImage(t)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return err
	}
	return f.Close()
}
