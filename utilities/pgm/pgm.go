// Package pgm builds binary grayscale images in the netpbm "P5" format. The
// whole image is built in memory so it can be written to a volume in one call.
package pgm

import (
	"bytes"
	"fmt"

	"github.com/sdfat/sdfat"
)

// MaxGray is the brightest pixel value in the images this package produces.
const MaxGray = 255

// Encode returns a P5 image of `width` by `height` pixels. `pixels` holds one
// byte per pixel, row by row from the top left.
func Encode(width, height int, pixels []byte) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid image dimensions: %dx%d", width, height))
	}
	if len(pixels) != width*height {
		return nil, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"a %dx%d image needs %d pixels, got %d",
				width,
				height,
				width*height,
				len(pixels)))
	}

	header := fmt.Sprintf("P5\n%d %d\n%d\n", width, height, MaxGray)
	var buffer bytes.Buffer
	buffer.Grow(len(header) + len(pixels))
	buffer.WriteString(header)
	buffer.Write(pixels)
	return buffer.Bytes(), nil
}

// MaxMandelbrotSize is the largest width and height Mandelbrot renders.
const MaxMandelbrotSize = 8192

// Mandelbrot renders the Mandelbrot set over [-2, 1] x [-1.5, 1.5] as a
// `size` by `size` grayscale image. Points inside the set are white; points
// outside are shaded by how quickly they escape.
func Mandelbrot(size, maxIterations int) ([]byte, error) {
	if size <= 0 || maxIterations <= 0 {
		return nil, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"size and iterations must be positive, got %d and %d",
				size,
				maxIterations))
	}
	if size > MaxMandelbrotSize {
		return nil, sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("size can't be more than %d, got %d", MaxMandelbrotSize, size))
	}

	pixels := make([]byte, size*size)
	step := 3.0 / float64(size)
	for row := 0; row < size; row++ {
		ci := -1.5 + step*float64(row)
		for col := 0; col < size; col++ {
			cr := -2.0 + step*float64(col)

			var zr, zi float64
			iteration := 0
			for ; iteration < maxIterations && zr*zr+zi*zi < 4.0; iteration++ {
				zr, zi = zr*zr-zi*zi+cr, 2*zr*zi+ci
			}

			if iteration == maxIterations {
				pixels[row*size+col] = MaxGray
			} else {
				pixels[row*size+col] = byte(iteration * (MaxGray - 1) / maxIterations)
			}
		}
	}
	return pixels, nil
}
