package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"strings"
	"testing"

	"golang.org/x/image/tiff"
)

// buildGeoTIFFHeader writes a little-endian TIFF header and IFD carrying
// only the tags ParseGeoRef reads.
func buildGeoTIFFHeader(t *testing.T, epsg uint16) []byte {
	t.Helper()
	const (
		ifdOffset  = 8
		entries    = 5
		dataOffset = ifdOffset + 2 + entries*12 + 4
		scaleOff   = dataOffset
		tieOff     = scaleOff + 3*8
		keysOff    = tieOff + 6*8
	)

	var buf bytes.Buffer
	le := binary.LittleEndian
	w := func(v any) {
		if err := binary.Write(&buf, le, v); err != nil {
			t.Fatal(err)
		}
	}
	entry := func(tag, typ uint16, count, value uint32) {
		w(tag)
		w(typ)
		w(count)
		w(value)
	}

	buf.WriteString("II")
	w(uint16(42))
	w(uint32(ifdOffset))

	w(uint16(entries))
	entry(256, 3, 1, 400)
	entry(257, 3, 1, 300)
	entry(33550, 12, 3, scaleOff)
	entry(33922, 12, 6, tieOff)
	entry(34735, 3, 8, keysOff)
	w(uint32(0))

	for _, v := range []float64{10, 10, 0} {
		w(math.Float64bits(v))
	}
	for _, v := range []float64{0, 0, 0, 600000, 5000040, 0} {
		w(math.Float64bits(v))
	}
	for _, v := range []uint16{1, 1, 0, 1, 3072, 0, 1, epsg} {
		w(v)
	}
	return buf.Bytes()
}

func TestParseGeoRef(t *testing.T) {
	ref, err := ParseGeoRef(buildGeoTIFFHeader(t, 32632))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := GeoRef{OriginX: 600000, OriginY: 5000040, ResX: 10, ResY: -10, EPSG: 32632, Width: 400, Height: 300}
	if ref != want {
		t.Errorf("GeoRef = %+v, expected %+v", ref, want)
	}
}

func TestParseGeoRefErrors(t *testing.T) {
	if _, err := ParseGeoRef([]byte("GIF89a..")); !errors.Is(err, ErrNotGeoTIFF) {
		t.Errorf("expected ErrNotGeoTIFF, got %v", err)
	}

	big := []byte{'I', 'I', 43, 0, 8, 0, 0, 0}
	if _, err := ParseGeoRef(big); !errors.Is(err, ErrNotGeoTIFF) {
		t.Errorf("expected ErrNotGeoTIFF for BigTIFF, got %v", err)
	}
}

func encodeGray16(t *testing.T, w, h int, fill func(x, y int) uint16) []byte {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: fill(x, y)})
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeGeoTIFFWithoutGeoKeys(t *testing.T) {
	data := encodeGray16(t, 6, 4, func(x, y int) uint16 { return uint16(y*100 + x) })

	asset, err := DecodeGeoTIFF("mem://red.tif", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.HasGeoKeys() {
		t.Errorf("plain TIFF should not report geo keys")
	}
	if ref := asset.GeoRef(); ref.Width != 6 || ref.Height != 4 {
		t.Errorf("size = %dx%d, expected 6x4", ref.Width, ref.Height)
	}

	px, err := asset.ReadPixels(Window{X0: 1, Y0: 2, X1: 3, Y1: 3})
	if err != nil {
		t.Fatalf("ReadPixels: %v", err)
	}
	want := []float32{201, 202, 203, 301, 302, 303}
	if px.Width != 3 || px.Height != 2 {
		t.Fatalf("window size = %dx%d, expected 3x2", px.Width, px.Height)
	}
	for i := range want {
		if px.Data[i] != want[i] {
			t.Errorf("pixel %d = %v, expected %v", i, px.Data[i], want[i])
		}
	}
}

func TestReadClasses(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(img.Pix, []uint8{4, 8, 9, 3, 6, 4})
	asset := NewAsset("mem://scl.tif", GeoRef{ResX: 20, ResY: -20}, img)

	cls, err := asset.ReadClasses(Window{X0: -1, Y0: 0, X1: 1, Y1: 5})
	if err != nil {
		t.Fatalf("ReadClasses: %v", err)
	}
	if !bytes.Equal(cls.Data, []uint8{4, 8, 3, 6}) {
		t.Errorf("classes = %v", cls.Data)
	}
}

type memFetcher map[string][]byte

func (m memFetcher) Fetch(_ context.Context, href string) (io.ReadCloser, error) {
	data, ok := m[href]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestGeoTIFFDecoderOpen(t *testing.T) {
	data := encodeGray16(t, 2, 2, func(x, y int) uint16 { return 1000 })
	d := NewGeoTIFFDecoder(memFetcher{"b04.tif": data})

	asset, err := d.Open(context.Background(), "b04.tif")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.Href != "b04.tif" {
		t.Errorf("href = %q", asset.Href)
	}

	if _, err := d.Open(context.Background(), "missing.tif"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestSourceFetcherLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/band.tif"
	if err := os.WriteFile(path, []byte("tiff"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewSourceFetcher(nil)
	for _, href := range []string{path, "file://" + path} {
		rc, err := f.Fetch(context.Background(), href)
		if err != nil {
			t.Fatalf("Fetch(%q): %v", href, err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		if string(b) != "tiff" {
			t.Errorf("Fetch(%q) = %q", href, b)
		}
	}

	if _, err := f.Fetch(context.Background(), dir+"/nope.tif"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), "ftp://example.com/a.tif"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported scheme error, got %v", err)
	}
}

func TestStripQuery(t *testing.T) {
	got := stripQuery("https://acct.blob.core.windows.net/c/b04.tif?sv=2021&sig=secret")
	if got != "https://acct.blob.core.windows.net/c/b04.tif" {
		t.Errorf("stripQuery = %q", got)
	}
}
