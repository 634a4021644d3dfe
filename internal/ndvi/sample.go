package ndvi

// Status tells whether a sample contributes to the series statistics
type Status string

const (
	StatusIncluded Status = "Included"
	StatusExcluded Status = "Excluded"
)

// SceneMeta identifies the scene a sample was taken from. ID is the
// position in the chronologically sorted series and starts at 1.
type SceneMeta struct {
	FeatureID string
	ID        int
	Datetime  string
	Preview   string
}

// Sample is one dated NDVI observation of a region. It is immutable once
// built except for the smoothed fields, which the smoother recomputes.
type Sample struct {
	FeatureID          string             `json:"featureId"`
	ID                 int                `json:"id"`
	Datetime           string             `json:"datetime"`
	Preview            string             `json:"preview"`
	NDVI               []float32          `json:"-"`
	MeanNDVI           *float64           `json:"meanNDVI"`
	MeanNDVISmoothed   *float64           `json:"meanNDVISmoothed"`
	MedianNDVI         *float64           `json:"medianNDVI"`
	MedianNDVISmoothed *float64           `json:"medianNDVISmoothed"`
	ValidPixels        int                `json:"n_valid"`
	ValidFraction      float64            `json:"valid_fraction"`
	Rejection          RejectionBreakdown `json:"not_valid_fraction"`
	Filter             FilterKind         `json:"filter"`
	FilterFraction     float64            `json:"filter_fraction"`
}

// Status returns Included when the sample has a mean
func (s Sample) Status() Status {
	if s.MeanNDVI != nil {
		return StatusIncluded
	}
	return StatusExcluded
}

// Valid reports whether the sample belongs to the valid series
func (s Sample) Valid() bool { return s.MeanNDVI != nil }

// Aggregate packages an accepted scene. Mean and median are taken from the
// masked, unfiltered pixels; the filter only contributes its retained
// fraction. Smoothed fields start equal to the raw statistics.
func Aggregate(meta SceneMeta, diag Diagnostics, kind FilterKind, filtered FilterResult) Sample {
	mean := MeanNDVI(diag.NDVI)
	median := MedianNDVI(diag.NDVI)
	return Sample{
		FeatureID:          meta.FeatureID,
		ID:                 meta.ID,
		Datetime:           meta.Datetime,
		Preview:            meta.Preview,
		NDVI:               diag.NDVI,
		MeanNDVI:           mean,
		MeanNDVISmoothed:   copyFloat(mean),
		MedianNDVI:         median,
		MedianNDVISmoothed: copyFloat(median),
		ValidPixels:        diag.ValidCount,
		ValidFraction:      diag.ValidFraction,
		Rejection:          diag.Breakdown,
		Filter:             kind,
		FilterFraction:     filtered.Fraction,
	}
}

// RejectedSample builds the "not valid" record for a scene that failed the
// coverage check. It keeps the diagnostics but has no statistics.
func RejectedSample(meta SceneMeta, diag Diagnostics, kind FilterKind) Sample {
	return Sample{
		FeatureID:     meta.FeatureID,
		ID:            meta.ID,
		Datetime:      meta.Datetime,
		Preview:       meta.Preview,
		NDVI:          diag.NDVI,
		ValidPixels:   diag.ValidCount,
		ValidFraction: diag.ValidFraction,
		Rejection:     diag.Breakdown,
		Filter:        kind,
	}
}

// Process runs mask evaluation, filtering and aggregation for one scene
// whose bands are already resident and co-registered. An accepted scene
// without a mean is rejected: the valid series only holds samples with one.
func Process(meta SceneMeta, diag Diagnostics, threshold float64, kind FilterKind) (Sample, Outcome) {
	outcome := Evaluate(diag, threshold)
	if _, rejected := outcome.(Rejected); rejected {
		return RejectedSample(meta, diag, kind), outcome
	}
	sample := Aggregate(meta, diag, kind, ApplyFilter(kind, diag.NDVI))
	if sample.MeanNDVI == nil {
		return RejectedSample(meta, diag, kind), Rejected{Diag: diag, Threshold: threshold, Empty: true}
	}
	return sample, outcome
}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
