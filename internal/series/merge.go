package series

import (
	"slices"

	"github.com/chrissnell/remotendvi/internal/ndvi"
)

// Context names one of the two parallel series
type Context string

const (
	ContextMain       Context = "main"
	ContextComparison Context = "comparison"
)

// Valid reports whether c is a known context
func (c Context) Valid() bool { return c == ContextMain || c == ContextComparison }

// Collection is one context's samples, split into scenes that passed the
// coverage check and scenes that did not.
type Collection struct {
	Valid    []ndvi.Sample `json:"valid"`
	Rejected []ndvi.Sample `json:"rejected"`
}

// Len returns the number of samples in both halves
func (c Collection) Len() int { return len(c.Valid) + len(c.Rejected) }

// All returns valid and rejected samples merged and sorted by id
func (c Collection) All() []ndvi.Sample { return AllSamples(c.Valid, c.Rejected) }

// AllSamples merges valid and rejected samples into one id-ordered slice
func AllSamples(valid, rejected []ndvi.Sample) []ndvi.Sample {
	all := make([]ndvi.Sample, 0, len(valid)+len(rejected))
	all = append(all, valid...)
	all = append(all, rejected...)
	slices.SortStableFunc(all, func(a, b ndvi.Sample) int { return a.ID - b.ID })
	return all
}

// SideStats carries one context's statistics at a chart point. Gap fields
// hold the last non-null value while the primary field is null.
type SideStats struct {
	ID                 *int     `json:"id,omitempty"`
	MeanNDVI           *float64 `json:"meanNDVI"`
	MeanNDVISmoothed   *float64 `json:"meanNDVISmoothed"`
	MedianNDVI         *float64 `json:"medianNDVI"`
	MedianNDVISmoothed *float64 `json:"medianNDVISmoothed"`
	MeanNDVIGap        *float64 `json:"meanNDVI_gap"`
	MedianNDVIGap      *float64 `json:"medianNDVI_gap"`
}

// ChartPoint is one observation date of the main series with the matching
// comparison observation, if any. Comparison is nil when there is no
// comparison series at all.
type ChartPoint struct {
	FeatureID  string      `json:"featureId"`
	ID         int         `json:"id"`
	Datetime   string      `json:"datetime"`
	Preview    string      `json:"preview"`
	Status     ndvi.Status `json:"status"`
	Main       SideStats   `json:"main"`
	Comparison *SideStats  `json:"comparison,omitempty"`
	Note       *string     `json:"note"`
}

// Merge builds one chart point per main sample, in id order. Comparison
// samples are matched by identical datetime string; several comparison
// samples on the same datetime are handed out in order, one per main
// point, and never reused. Annotations attach by feature id.
func Merge(main, comparison Collection, annotations []Annotation) []ChartPoint {
	mainSamples := main.All()
	comparisonSamples := comparison.All()
	hasComparison := len(comparisonSamples) > 0

	byDatetime := make(map[string][]ndvi.Sample)
	for _, c := range comparisonSamples {
		byDatetime[c.Datetime] = append(byDatetime[c.Datetime], c)
	}
	notes := make(map[string]string, len(annotations))
	for _, a := range annotations {
		notes[a.FeatureID] = a.Note
	}

	points := make([]ChartPoint, 0, len(mainSamples))
	for _, m := range mainSamples {
		p := ChartPoint{
			FeatureID: m.FeatureID,
			ID:        m.ID,
			Datetime:  m.Datetime,
			Preview:   m.Preview,
			Status:    m.Status(),
			Main:      sideStats(&m),
		}
		if hasComparison {
			var match *ndvi.Sample
			if queue := byDatetime[m.Datetime]; len(queue) > 0 {
				match = &queue[0]
				byDatetime[m.Datetime] = queue[1:]
			}
			side := sideStats(match)
			p.Comparison = &side
		}
		if note, ok := notes[m.FeatureID]; ok {
			p.Note = &note
		}
		points = append(points, p)
	}

	return WithGaps(points)
}

func sideStats(s *ndvi.Sample) SideStats {
	if s == nil {
		return SideStats{}
	}
	id := s.ID
	return SideStats{
		ID:                 &id,
		MeanNDVI:           s.MeanNDVI,
		MeanNDVISmoothed:   s.MeanNDVISmoothed,
		MedianNDVI:         s.MedianNDVI,
		MedianNDVISmoothed: s.MedianNDVISmoothed,
	}
}

// Slice returns points[start:end+1], with nil bounds meaning the start or
// the end of the sequence. Bounds are clipped to the slice.
func Slice(points []ChartPoint, start, end *int) []ChartPoint {
	lo, hi := 0, len(points)
	if start != nil {
		lo = min(max(*start, 0), len(points))
	}
	if end != nil {
		hi = min(max(*end+1, 0), len(points))
	}
	if lo >= hi {
		return []ChartPoint{}
	}
	return points[lo:hi]
}
