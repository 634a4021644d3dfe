// Package export renders NDVI series as delimited text reports for
// download and provenance tracking.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/series"
)

const (
	Delimiter = ";"
	NotAvail  = "N/A"

	MainTitle       = "MAIN SAMPLES"
	ComparisonTitle = "COMPARISON SAMPLES"
)

// Columns is the report header, in order. The sample columns match the
// sample's JSON keys without the pixel buffer and preview.
var Columns = []string{
	"featureId",
	"id",
	"datetime",
	"meanNDVI",
	"meanNDVISmoothed",
	"medianNDVI",
	"medianNDVISmoothed",
	"n_valid",
	"valid_fraction",
	"not_valid_fraction",
	"filter",
	"filter_fraction",
	"Change point",
	"Z-Score",
	"Annotation",
	"Status",
}

// FileName returns the download name of a report generated at t
func FileName(t time.Time) string {
	return "exportedScenes_" + t.Format("2006-01-02T15:04:05") + ".csv"
}

// Section is one titled table of the report
type Section struct {
	Title        string
	Samples      []ndvi.Sample
	ChangePoints []series.ChangePoint
	Annotations  []series.Annotation
}

// Report renders the main section followed, after two blank lines, by the
// comparison section when it has samples.
func Report(main, comparison Section) string {
	sections := []string{Table(main)}
	if len(comparison.Samples) > 0 {
		sections = append(sections, "", "", Table(comparison))
	}
	return strings.Join(sections, "\n")
}

// Table renders one section. An empty section renders as "".
func Table(s Section) string {
	if len(s.Samples) == 0 {
		return ""
	}

	changes := make(map[int]series.ChangePoint, len(s.ChangePoints))
	for _, cp := range s.ChangePoints {
		changes[cp.ID] = cp
	}

	rows := make([]string, 0, len(s.Samples)+2)
	rows = append(rows, fmt.Sprintf("### %s ###", s.Title), strings.Join(Columns, Delimiter))
	for _, sample := range s.Samples {
		cp, isChange := changes[sample.ID]
		annotation, _ := series.FindAnnotation(s.Annotations, sample.FeatureID)
		rows = append(rows, strings.Join(row(sample, cp, isChange, annotation.Note), Delimiter))
	}
	return strings.Join(rows, "\n")
}

func row(s ndvi.Sample, cp series.ChangePoint, isChange bool, note string) []string {
	zscore := NotAvail
	if isChange {
		zscore = signed(cp.ZScore)
	}
	if note == "" {
		note = NotAvail
	}

	return []string{
		quote(s.FeatureID),
		quote(strconv.Itoa(s.ID)),
		quote(s.Datetime),
		number(s.MeanNDVI),
		number(s.MeanNDVISmoothed),
		number(s.MedianNDVI),
		number(s.MedianNDVISmoothed),
		quote(strconv.Itoa(s.ValidPixels)),
		quote(percentage(s.ValidFraction)),
		quote(breakdown(s.Rejection)),
		quote(string(s.Filter)),
		quote(percentage(s.FilterFraction)),
		quote(strconv.FormatBool(isChange)),
		quote(zscore),
		quote(note),
		quote(string(s.Status())),
	}
}

// quote wraps a cell in double quotes, doubling any it contains
func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func number(v *float64) string {
	if v == nil {
		return NotAvail
	}
	return quote(strconv.FormatFloat(*v, 'f', -1, 64))
}

func percentage(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func signed(z float64) string {
	if z >= 0 {
		return fmt.Sprintf("+%.2f", z)
	}
	return fmt.Sprintf("%.2f", z)
}

// breakdown lists the non-zero rejection reasons one per line
func breakdown(b ndvi.RejectionBreakdown) string {
	var lines []string
	for _, r := range b.Reasons() {
		if r.Percent == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %.2f%%", r.Code, r.Percent))
	}
	if len(lines) == 0 {
		return "0%"
	}
	return strings.Join(lines, "\r\n")
}
