package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrBufferSize is returned when a buffer's data does not match its dimensions
var ErrBufferSize = errors.New("buffer size does not match dimensions")

// PixelBuffer is one reflectance band over a rectangular grid, row-major.
// NaN marks a pixel with no value.
type PixelBuffer struct {
	Width  int
	Height int
	Data   []float32
}

// NewPixelBuffer allocates a width × height buffer filled with NaN
func NewPixelBuffer(width, height int) PixelBuffer {
	data := make([]float32, width*height)
	nan := float32(math.NaN())
	for i := range data {
		data[i] = nan
	}
	return PixelBuffer{Width: width, Height: height, Data: data}
}

// Len returns the number of pixels
func (b PixelBuffer) Len() int { return len(b.Data) }

// Validate checks the data length against the dimensions
func (b PixelBuffer) Validate() error {
	if b.Width < 0 || b.Height < 0 || len(b.Data) != b.Width*b.Height {
		return fmt.Errorf("%w: %dx%d with %d values", ErrBufferSize, b.Width, b.Height, len(b.Data))
	}
	return nil
}

// ClassBuffer is a categorical band (scene classification codes), row-major
type ClassBuffer struct {
	Width  int
	Height int
	Data   []uint8
}

// Len returns the number of pixels
func (b ClassBuffer) Len() int { return len(b.Data) }

// Validate checks the data length against the dimensions
func (b ClassBuffer) Validate() error {
	if b.Width < 0 || b.Height < 0 || len(b.Data) != b.Width*b.Height {
		return fmt.Errorf("%w: %dx%d with %d values", ErrBufferSize, b.Width, b.Height, len(b.Data))
	}
	return nil
}
