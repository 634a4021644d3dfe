// Package pipeline turns a region and a list of scenes into NDVI series:
// it reads the bands of each scene, masks and aggregates them, and keeps
// the latest complete run of each context.
package pipeline

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/raster"
	"github.com/chrissnell/remotendvi/internal/scene"
)

// Settings are the per-scene quality parameters of a run
type Settings struct {
	CoverageThreshold float64
	Filter            ndvi.FilterKind
	RejectSet         ndvi.RejectSet
}

// DefaultSettings returns an 80% coverage threshold, no outlier filter and
// the strict reject set
func DefaultSettings() Settings {
	return Settings{
		CoverageThreshold: 80,
		Filter:            ndvi.FilterNone,
		RejectSet:         ndvi.StrictRejectSet,
	}
}

// Bands are the resident red, near-infrared and classification windows of
// one scene. SCL may be coarser than the reflectance bands.
type Bands struct {
	Red raster.PixelBuffer
	NIR raster.PixelBuffer
	SCL raster.ClassBuffer
}

// ProcessScene computes the sample of one scene from resident bands. It
// does no I/O. The outcome tells whether the sample belongs to the valid
// or the rejected series; an error means the bands were unusable.
func ProcessScene(meta ndvi.SceneMeta, bands Bands, s Settings) (ndvi.Sample, ndvi.Outcome, error) {
	scl := bands.SCL
	if scl.Width != bands.Red.Width || scl.Height != bands.Red.Height {
		scl = raster.ResampleNearest(scl, bands.Red.Width, bands.Red.Height)
	}
	diag, err := ndvi.Mask(bands.Red, bands.NIR, scl, s.RejectSet)
	if err != nil {
		return ndvi.Sample{}, nil, err
	}
	sample, outcome := ndvi.Process(meta, diag, s.CoverageThreshold, s.Filter)
	return sample, outcome, nil
}

// Processor reads scene bands through a raster decoder
type Processor struct {
	decoder  raster.Decoder
	settings Settings
	logger   *zap.SugaredLogger
}

// NewProcessor creates a Processor applying settings to every scene
func NewProcessor(decoder raster.Decoder, settings Settings, logger *zap.SugaredLogger) *Processor {
	return &Processor{decoder: decoder, settings: settings, logger: logger}
}

// Settings returns the quality parameters in force
func (p *Processor) Settings() Settings { return p.settings }

// LoadBands opens the three band assets of d and reads the window each one
// needs to cover vertices. Each band is windowed on its own grid, so a 20 m
// classification band yields a smaller buffer than the 10 m bands.
func (p *Processor) LoadBands(ctx context.Context, d scene.Descriptor, vertices []orb.Point) (Bands, error) {
	var bands Bands

	red, err := p.open(ctx, d.Assets.Red)
	if err != nil {
		return bands, err
	}
	if bands.Red, err = readPixels(red, d, vertices); err != nil {
		return bands, fmt.Errorf("red band of %s: %w", d.ID, err)
	}

	nir, err := p.open(ctx, d.Assets.NIR)
	if err != nil {
		return bands, err
	}
	if bands.NIR, err = readPixels(nir, d, vertices); err != nil {
		return bands, fmt.Errorf("nir band of %s: %w", d.ID, err)
	}

	scl, err := p.open(ctx, d.Assets.SCL)
	if err != nil {
		return bands, err
	}
	w, err := windowFor(scl, d, vertices)
	if err != nil {
		return bands, fmt.Errorf("scl band of %s: %w", d.ID, err)
	}
	if bands.SCL, err = scl.ReadClasses(w); err != nil {
		return bands, fmt.Errorf("scl band of %s: %w", d.ID, err)
	}
	return bands, nil
}

func (p *Processor) open(ctx context.Context, href string) (*raster.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	asset, err := p.decoder.Open(ctx, href)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", href, err)
	}
	return asset, nil
}

func readPixels(a *raster.Asset, d scene.Descriptor, vertices []orb.Point) (raster.PixelBuffer, error) {
	w, err := windowFor(a, d, vertices)
	if err != nil {
		return raster.PixelBuffer{}, err
	}
	return a.ReadPixels(w)
}

// windowFor uses the asset's own geo-keys, or the scene bbox when it has none
func windowFor(a *raster.Asset, d scene.Descriptor, vertices []orb.Point) (raster.Window, error) {
	if a.HasGeoKeys() {
		return raster.ExtractWindow(vertices, a.GeoRef())
	}
	ref := a.GeoRef()
	return raster.ExtractWindowFromBBox(vertices, d.BBox, ref.Width, ref.Height)
}

// Scene loads and processes one scene. Panics in decoding or computation
// are recovered and reported as errors so sibling scenes carry on.
func (p *Processor) Scene(ctx context.Context, meta ndvi.SceneMeta, d scene.Descriptor, vertices []orb.Point) (sample ndvi.Sample, outcome ndvi.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("scene %s panic recovered: %v", d.ID, r)
			err = fmt.Errorf("scene %s: panic: %v", d.ID, r)
		}
	}()

	bands, err := p.LoadBands(ctx, d, vertices)
	if err != nil {
		return ndvi.Sample{}, nil, err
	}
	return ProcessScene(meta, bands, p.settings)
}
