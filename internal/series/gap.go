package series

// WithGaps returns a copy of points with the gap fields filled: for each of
// main mean, main median, comparison mean and comparison median, a point
// whose value is null carries the last non-null value seen before it. The
// primary fields are never changed.
func WithGaps(points []ChartPoint) []ChartPoint {
	out := make([]ChartPoint, len(points))
	copy(out, points)
	for i := range out {
		if out[i].Comparison != nil {
			c := *out[i].Comparison
			out[i].Comparison = &c
		}
	}

	fillGaps(out, func(p *ChartPoint) (*float64, **float64) {
		return p.Main.MeanNDVI, &p.Main.MeanNDVIGap
	})
	fillGaps(out, func(p *ChartPoint) (*float64, **float64) {
		return p.Main.MedianNDVI, &p.Main.MedianNDVIGap
	})
	fillGaps(out, func(p *ChartPoint) (*float64, **float64) {
		if p.Comparison == nil {
			return nil, nil
		}
		return p.Comparison.MeanNDVI, &p.Comparison.MeanNDVIGap
	})
	fillGaps(out, func(p *ChartPoint) (*float64, **float64) {
		if p.Comparison == nil {
			return nil, nil
		}
		return p.Comparison.MedianNDVI, &p.Comparison.MedianNDVIGap
	})
	return out
}

// fillGaps walks points tracking the last non-null value of one field
func fillGaps(points []ChartPoint, field func(*ChartPoint) (value *float64, gap **float64)) {
	var last *float64
	for i := range points {
		value, gap := field(&points[i])
		if gap == nil {
			continue
		}
		if value != nil {
			last = value
			*gap = nil
			continue
		}
		*gap = last
	}
}
