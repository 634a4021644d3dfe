package raster

import "math"

// ResampleNearest upscales a classification buffer to tw × th pixels by
// nearest neighbour. Class codes are categorical so they are copied, never
// interpolated. A source with no pixels yields a zero-filled target.
func ResampleNearest(src ClassBuffer, tw, th int) ClassBuffer {
	out := ClassBuffer{Width: tw, Height: th, Data: make([]uint8, tw*th)}
	if src.Width == 0 || src.Height == 0 || tw == 0 || th == 0 {
		return out
	}
	if src.Width == tw && src.Height == th {
		copy(out.Data, src.Data)
		return out
	}

	scaleX := float64(tw) / float64(src.Width)
	scaleY := float64(th) / float64(src.Height)

	for y := 0; y < th; y++ {
		srcY := min(int(math.Floor(float64(y)/scaleY)), src.Height-1)
		row := srcY * src.Width
		for x := 0; x < tw; x++ {
			srcX := min(int(math.Floor(float64(x)/scaleX)), src.Width-1)
			out.Data[y*tw+x] = src.Data[row+srcX]
		}
	}
	return out
}
