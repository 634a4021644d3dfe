package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/chrissnell/remotendvi/pkg/utm"
	"golang.org/x/image/tiff"
)

// TIFF tags and GeoKeys needed to geo-reference an asset
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	geoKeyGeographic   = 2048
	geoKeyProjectedCS  = 3072
	tiffTypeShort      = 3
	tiffTypeLong       = 4
	tiffTypeDouble     = 12
	tiffClassicMagic   = 42
	tiffIFDEntryLength = 12
	tiffHeaderLength   = 8
	geoKeyEntryLength  = 4
	userDefinedGeoKey  = 32767
)

var (
	// ErrNotGeoTIFF is returned for files that are not classic TIFFs
	ErrNotGeoTIFF = errors.New("not a GeoTIFF")
	// ErrNoGeoKeys is returned when a TIFF lacks tie point or pixel scale tags
	ErrNoGeoKeys = errors.New("GeoTIFF has no tie point or pixel scale")
)

// Asset is one opened raster band, decoded and resident in memory
type Asset struct {
	Href string
	ref  GeoRef
	img  image.Image
}

// NewAsset wraps an already-decoded image with its geo-referencing
func NewAsset(href string, ref GeoRef, img image.Image) *Asset {
	b := img.Bounds()
	ref.Width, ref.Height = b.Dx(), b.Dy()
	return &Asset{Href: href, ref: ref, img: img}
}

// GeoRef returns the asset's geo-referencing
func (a *Asset) GeoRef() GeoRef { return a.ref }

// HasGeoKeys reports whether the asset carried a usable tie point and scale
func (a *Asset) HasGeoKeys() bool { return a.ref.ResX != 0 && a.ref.ResY != 0 }

// ReadPixels returns the window as reflectance values. The window is
// clipped to the raster first.
func (a *Asset) ReadPixels(w Window) (PixelBuffer, error) {
	cw, err := w.Clamp(a.ref.Width, a.ref.Height)
	if err != nil {
		return PixelBuffer{}, err
	}
	out := PixelBuffer{Width: cw.Width(), Height: cw.Height(), Data: make([]float32, cw.Pixels())}
	origin := a.img.Bounds().Min
	i := 0
	for y := cw.Y0; y <= cw.Y1; y++ {
		for x := cw.X0; x <= cw.X1; x++ {
			out.Data[i] = float32(gray16(a.img, origin.X+x, origin.Y+y))
			i++
		}
	}
	return out, nil
}

// ReadClasses returns the window as categorical codes
func (a *Asset) ReadClasses(w Window) (ClassBuffer, error) {
	cw, err := w.Clamp(a.ref.Width, a.ref.Height)
	if err != nil {
		return ClassBuffer{}, err
	}
	out := ClassBuffer{Width: cw.Width(), Height: cw.Height(), Data: make([]uint8, cw.Pixels())}
	origin := a.img.Bounds().Min
	i := 0
	for y := cw.Y0; y <= cw.Y1; y++ {
		for x := cw.X0; x <= cw.X1; x++ {
			out.Data[i] = class8(a.img, origin.X+x, origin.Y+y)
			i++
		}
	}
	return out, nil
}

func gray16(img image.Image, x, y int) uint16 {
	switch m := img.(type) {
	case *image.Gray16:
		return m.Gray16At(x, y).Y
	case *image.Gray:
		return uint16(m.GrayAt(x, y).Y)
	}
	return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
}

func class8(img image.Image, x, y int) uint8 {
	switch m := img.(type) {
	case *image.Gray:
		return m.GrayAt(x, y).Y
	case *image.Gray16:
		return uint8(m.Gray16At(x, y).Y)
	case *image.Paletted:
		return m.ColorIndexAt(x, y)
	}
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}

// Decoder opens raster assets by reference
type Decoder interface {
	Open(ctx context.Context, href string) (*Asset, error)
}

// GeoTIFFDecoder decodes GeoTIFF assets fetched through a Fetcher
type GeoTIFFDecoder struct {
	fetcher Fetcher
}

// NewGeoTIFFDecoder creates a decoder reading through f
func NewGeoTIFFDecoder(f Fetcher) *GeoTIFFDecoder {
	return &GeoTIFFDecoder{fetcher: f}
}

// Open fetches and decodes the asset at href
func (d *GeoTIFFDecoder) Open(ctx context.Context, href string) (*Asset, error) {
	rc, err := d.fetcher.Fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", href, err)
	}
	return DecodeGeoTIFF(href, data)
}

// DecodeGeoTIFF decodes pixel data and geo-referencing from an in-memory
// GeoTIFF. A TIFF without geo tags still decodes; its GeoRef then has zero
// resolution and callers fall back to the scene bounding box.
func DecodeGeoTIFF(href string, data []byte) (*Asset, error) {
	ref, err := ParseGeoRef(data)
	if err != nil && !errors.Is(err, ErrNoGeoKeys) {
		return nil, fmt.Errorf("%s: %w", href, err)
	}
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", href, err)
	}
	return NewAsset(href, ref, img), nil
}

// ParseGeoRef reads the tie point, pixel scale and coordinate system from
// the first IFD of a classic (non-Big) TIFF.
func ParseGeoRef(data []byte) (GeoRef, error) {
	if len(data) < tiffHeaderLength {
		return GeoRef{}, ErrNotGeoTIFF
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return GeoRef{}, ErrNotGeoTIFF
	}
	if order.Uint16(data[2:4]) != tiffClassicMagic {
		return GeoRef{}, fmt.Errorf("%w: only classic TIFF is supported", ErrNotGeoTIFF)
	}

	ifd := int(order.Uint32(data[4:8]))
	if ifd+2 > len(data) {
		return GeoRef{}, fmt.Errorf("%w: IFD offset out of range", ErrNotGeoTIFF)
	}
	n := int(order.Uint16(data[ifd : ifd+2]))

	var (
		ref      GeoRef
		scale    []float64
		tiepoint []float64
		geoKeys  []uint16
	)
	for i := 0; i < n; i++ {
		e := ifd + 2 + i*tiffIFDEntryLength
		if e+tiffIFDEntryLength > len(data) {
			return GeoRef{}, fmt.Errorf("%w: truncated IFD", ErrNotGeoTIFF)
		}
		tag := order.Uint16(data[e : e+2])
		typ := order.Uint16(data[e+2 : e+4])
		count := int(order.Uint32(data[e+4 : e+8]))

		switch tag {
		case tagImageWidth, tagImageLength:
			v, err := readUint(data, order, e, typ)
			if err != nil {
				return GeoRef{}, err
			}
			if tag == tagImageWidth {
				ref.Width = v
			} else {
				ref.Height = v
			}
		case tagModelPixelScale:
			vals, err := readDoubles(data, order, e, typ, count)
			if err != nil {
				return GeoRef{}, err
			}
			scale = vals
		case tagModelTiepoint:
			vals, err := readDoubles(data, order, e, typ, count)
			if err != nil {
				return GeoRef{}, err
			}
			tiepoint = vals
		case tagGeoKeyDirectory:
			vals, err := readShorts(data, order, e, typ, count)
			if err != nil {
				return GeoRef{}, err
			}
			geoKeys = vals
		}
	}

	ref.EPSG = epsgFromGeoKeys(geoKeys)
	if len(scale) < 2 || len(tiepoint) < 6 {
		return ref, ErrNoGeoKeys
	}
	// tie point maps raster (i,j) to model (x,y)
	ref.ResX = scale[0]
	ref.ResY = -scale[1]
	ref.OriginX = tiepoint[3] - tiepoint[0]*scale[0]
	ref.OriginY = tiepoint[4] + tiepoint[1]*scale[1]
	return ref, nil
}

func epsgFromGeoKeys(keys []uint16) int {
	if len(keys) < geoKeyEntryLength {
		return 0
	}
	numKeys := int(keys[3])
	geographic := 0
	for k := 1; k <= numKeys; k++ {
		base := k * geoKeyEntryLength
		if base+geoKeyEntryLength > len(keys) {
			break
		}
		id, location, value := keys[base], keys[base+1], keys[base+3]
		if location != 0 || value == 0 || value == userDefinedGeoKey {
			continue
		}
		switch id {
		case geoKeyProjectedCS:
			return int(value)
		case geoKeyGeographic:
			geographic = int(value)
		}
	}
	if geographic != 0 {
		return geographic
	}
	return utm.EPSGGeographic
}

func valueOffset(data []byte, order binary.ByteOrder, entry, size, count int) (int, error) {
	if size*count <= 4 {
		return entry + 8, nil
	}
	off := int(order.Uint32(data[entry+8 : entry+12]))
	if off < 0 || off+size*count > len(data) {
		return 0, fmt.Errorf("%w: tag value out of range", ErrNotGeoTIFF)
	}
	return off, nil
}

func readUint(data []byte, order binary.ByteOrder, entry int, typ uint16) (int, error) {
	switch typ {
	case tiffTypeShort:
		return int(order.Uint16(data[entry+8 : entry+10])), nil
	case tiffTypeLong:
		return int(order.Uint32(data[entry+8 : entry+12])), nil
	}
	return 0, fmt.Errorf("%w: unexpected dimension type %d", ErrNotGeoTIFF, typ)
}

func readDoubles(data []byte, order binary.ByteOrder, entry int, typ uint16, count int) ([]float64, error) {
	if typ != tiffTypeDouble {
		return nil, fmt.Errorf("%w: expected DOUBLE values, got type %d", ErrNotGeoTIFF, typ)
	}
	off, err := valueOffset(data, order, entry, 8, count)
	if err != nil {
		return nil, err
	}
	out := make([]float64, count)
	for i := range out {
		bits := order.Uint64(data[off+i*8 : off+i*8+8])
		out[i] = math.Float64frombits(bits)
	}
	return out, nil
}

func readShorts(data []byte, order binary.ByteOrder, entry int, typ uint16, count int) ([]uint16, error) {
	if typ != tiffTypeShort {
		return nil, fmt.Errorf("%w: expected SHORT values, got type %d", ErrNotGeoTIFF, typ)
	}
	off, err := valueOffset(data, order, entry, 2, count)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = order.Uint16(data[off+i*2 : off+i*2+2])
	}
	return out, nil
}
