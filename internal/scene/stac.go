package scene

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// DefaultSearchURL is the Planetary Computer STAC search endpoint
const DefaultSearchURL = "https://planetarycomputer.microsoft.com/api/stac/v1/search"

// stacItem is the subset of a STAC item the pipeline reads
type stacItem struct {
	ID         string               `json:"id"`
	Collection string               `json:"collection"`
	BBox       []float64            `json:"bbox"`
	Properties stacProperties       `json:"properties"`
	Assets     map[string]stacAsset `json:"assets"`
}

type stacProperties struct {
	Datetime   string  `json:"datetime"`
	CloudCover float64 `json:"eo:cloud_cover"`
	SnowCover  float64 `json:"s2:snow_ice_percentage"`
}

type stacAsset struct {
	Href string `json:"href"`
}

type stacLink struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type itemCollection struct {
	Type     string     `json:"type"`
	Features []stacItem `json:"features"`
	Links    []stacLink `json:"links"`
}

func (c itemCollection) next() (stacLink, bool) {
	for _, l := range c.Links {
		if l.Rel == "next" && l.Href != "" {
			return l, true
		}
	}
	return stacLink{}, false
}

func (it stacItem) descriptor(keys AssetKeys) (Descriptor, error) {
	d := Descriptor{
		ID:         it.ID,
		Collection: it.Collection,
		Datetime:   it.Properties.Datetime,
		CloudCover: it.Properties.CloudCover,
		SnowCover:  it.Properties.SnowCover,
		Assets: Assets{
			Red:     it.Assets[keys.Red].Href,
			NIR:     it.Assets[keys.NIR].Href,
			SCL:     it.Assets[keys.SCL].Href,
			Preview: it.Assets[keys.Preview].Href,
		},
	}
	if len(it.BBox) >= 4 {
		d.BBox = orb.Bound{
			Min: orb.Point{it.BBox[0], it.BBox[1]},
			Max: orb.Point{it.BBox[len(it.BBox)/2], it.BBox[len(it.BBox)/2+1]},
		}
	}
	switch {
	case d.Assets.Red == "":
		return d, fmt.Errorf("%w: %s has no %q asset", ErrMissingAsset, it.ID, keys.Red)
	case d.Assets.NIR == "":
		return d, fmt.Errorf("%w: %s has no %q asset", ErrMissingAsset, it.ID, keys.NIR)
	case d.Assets.SCL == "":
		return d, fmt.Errorf("%w: %s has no %q asset", ErrMissingAsset, it.ID, keys.SCL)
	}
	return d, nil
}

// SearchRequest is the CQL2-JSON body posted to a STAC search endpoint
type SearchRequest struct {
	SortBy      []SortBy   `json:"sortby"`
	Collections []string   `json:"collections"`
	FilterLang  string     `json:"filter-lang"`
	Filter      Expression `json:"filter"`
	Datetime    string     `json:"datetime"`
	Limit       int        `json:"limit"`
}

// SortBy is one STAC sort clause
type SortBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Expression is a CQL2 operator applied to its arguments
type Expression struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

// Property references an item property inside an expression
type Property struct {
	Property string `json:"property"`
}

// Polygon is a GeoJSON polygon literal
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// NewSearchRequest builds the search body for q: cloud and snow cover
// limits, a spatial predicate against the closed region ring, and
// ascending datetime order.
func NewSearchRequest(collection string, q Query) SearchRequest {
	ring := make([][2]float64, 0, len(q.Region)+1)
	for _, p := range q.Region {
		ring = append(ring, [2]float64{p.Lon(), p.Lat()})
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}

	return SearchRequest{
		SortBy:      []SortBy{{Field: "properties.datetime", Direction: "asc"}},
		Collections: []string{collection},
		FilterLang:  "cql2-json",
		Filter: Expression{
			Op: "and",
			Args: []any{
				Expression{Op: "<=", Args: []any{Property{"eo:cloud_cover"}, q.CloudCover}},
				Expression{Op: "<=", Args: []any{Property{"s2:snow_ice_percentage"}, q.SnowCover}},
				Expression{Op: string(q.Spatial), Args: []any{
					Property{"geometry"},
					Polygon{Type: "Polygon", Coordinates: [][][2]float64{ring}},
				}},
			},
		},
		Datetime: q.Interval(),
		Limit:    q.Limit,
	}
}

// STACClient searches a STAC API and follows next links up to MaxPages
type STACClient struct {
	SearchURL  string
	Collection string
	Keys       AssetKeys
	MaxPages   int
	Signer     *TokenSigner
	HTTPClient *http.Client
	logger     *zap.SugaredLogger
}

// NewSTACClient returns a client for searchURL with Sentinel-2 defaults
func NewSTACClient(searchURL string, signer *TokenSigner, logger *zap.SugaredLogger) *STACClient {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &STACClient{
		SearchURL:  searchURL,
		Collection: DefaultCollection,
		Keys:       DefaultAssetKeys(),
		MaxPages:   1,
		Signer:     signer,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Search posts the query and returns the scenes of every page read. Items
// missing a required band are skipped and logged.
func (c *STACClient) Search(ctx context.Context, q Query) ([]Descriptor, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(NewSearchRequest(c.Collection, q))
	if err != nil {
		return nil, fmt.Errorf("error encoding search request: %w", err)
	}

	var scenes []Descriptor
	method, href := http.MethodPost, c.SearchURL
	for page := 0; page < max(c.MaxPages, 1); page++ {
		c.logger.Debugf("STAC search page %d: %s %s", page+1, method, href)
		coll, err := c.fetchPage(ctx, method, href, body)
		if err != nil {
			return nil, err
		}
		for _, it := range coll.Features {
			d, err := it.descriptor(c.Keys)
			if err != nil {
				c.logger.Warnf("skipping scene: %v", err)
				continue
			}
			if c.Signer != nil {
				if d, err = c.Signer.SignDescriptor(ctx, d); err != nil {
					return nil, err
				}
			}
			scenes = append(scenes, d)
		}

		link, ok := coll.next()
		if !ok {
			break
		}
		href = link.Href
		method = http.MethodGet
		if link.Method != "" {
			method = link.Method
		}
		body = link.Body
	}

	SortByDatetime(scenes)
	c.logger.Infof("STAC search returned %d scene(s)", len(scenes))
	return scenes, nil
}

func (c *STACClient) fetchPage(ctx context.Context, method, href string, body []byte) (itemCollection, error) {
	var reader io.Reader
	if method == http.MethodPost && len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, href, reader)
	if err != nil {
		return itemCollection{}, fmt.Errorf("error creating STAC request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return itemCollection{}, fmt.Errorf("%w: %v", ErrCatalogRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return itemCollection{}, fmt.Errorf("%w: %s: %s", ErrCatalogRequest, resp.Status, bytes.TrimSpace(msg))
	}

	var coll itemCollection
	if err := json.NewDecoder(resp.Body).Decode(&coll); err != nil {
		return itemCollection{}, fmt.Errorf("unable to decode STAC response: %w", err)
	}
	return coll, nil
}
