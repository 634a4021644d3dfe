package export

import (
	"encoding/csv"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/remotendvi/internal/ndvi"
	"github.com/chrissnell/remotendvi/internal/series"
)

func sampleFixture() []ndvi.Sample {
	return []ndvi.Sample{
		{
			FeatureID:          "S2A_MSIL2A_20250101",
			ID:                 1,
			Datetime:           "2025-01-01T10:00:00Z",
			Preview:            "https://example.invalid/preview.png",
			NDVI:               []float32{0.5, 0.6},
			MeanNDVI:           ndvi.Float(0.55),
			MeanNDVISmoothed:   ndvi.Float(0.5),
			MedianNDVI:         ndvi.Float(0.55),
			MedianNDVISmoothed: ndvi.Float(0.52),
			ValidPixels:        2,
			ValidFraction:      50,
			Rejection: ndvi.RejectionBreakdown{
				ndvi.CloudShadows:         25,
				ndvi.Water:                25,
				ndvi.CloudHighProbability: 0,
			},
			Filter:         ndvi.FilterIQR,
			FilterFraction: 50,
		},
		{
			FeatureID:     "S2B_MSIL2A_20250106",
			ID:            2,
			Datetime:      "2025-01-06T10:00:00Z",
			ValidFraction: 12.5,
			Rejection:     ndvi.RejectionBreakdown{ndvi.CloudShadows: 0},
			Filter:        ndvi.FilterNone,
		},
	}
}

func parse(t *testing.T, text string) [][]string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	return records
}

// sampleKeys returns the JSON keys of a sample minus the pixel buffer and preview
func sampleKeys() []string {
	var keys []string
	typ := reflect.TypeOf(ndvi.Sample{})
	for i := 0; i < typ.NumField(); i++ {
		name, _, _ := strings.Cut(typ.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" || name == "preview" {
			continue
		}
		keys = append(keys, name)
	}
	return keys
}

func TestHeaderMatchesSampleKeys(t *testing.T) {
	records := parse(t, Table(Section{Title: MainTitle, Samples: sampleFixture()}))
	require.GreaterOrEqual(t, len(records), 2)

	assert.Equal(t, []string{"### MAIN SAMPLES ###"}, records[0])
	header := records[1]
	extra := []string{"Change point", "Z-Score", "Annotation", "Status"}
	if diff := cmp.Diff(append(sampleKeys(), extra...), header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestTableRows(t *testing.T) {
	section := Section{
		Title:        MainTitle,
		Samples:      sampleFixture(),
		ChangePoints: []series.ChangePoint{{ID: 1, ZScore: 3.14159, Reason: series.ReasonZScore}},
		Annotations:  []series.Annotation{{FeatureID: "S2A_MSIL2A_20250101", Note: `said "hi"`}},
	}
	text := Table(section)

	// breakdown lines are separated by CRLF inside one quoted cell
	assert.Contains(t, text, `"CLOUD_SHADOWS: 25.00%`+"\r\nWATER: 25.00%\"")
	assert.Contains(t, text, `"said ""hi"""`)

	records := parse(t, text)
	require.Len(t, records, 4)

	first := records[2]
	assert.Equal(t, []string{
		"S2A_MSIL2A_20250101", "1", "2025-01-01T10:00:00Z",
		"0.55", "0.5", "0.55", "0.52",
		"2", "50.00%", "CLOUD_SHADOWS: 25.00%\nWATER: 25.00%", "IQR", "50.00%",
		"true", "+3.14", `said "hi"`, "Included",
	}, first)

	second := records[3]
	assert.Equal(t, []string{
		"S2B_MSIL2A_20250106", "2", "2025-01-06T10:00:00Z",
		"N/A", "N/A", "N/A", "N/A",
		"0", "12.50%", "0%", "none", "0.00%",
		"false", "N/A", "N/A", "Excluded",
	}, second)
}

func TestNullsAreBareAndValuesQuoted(t *testing.T) {
	text := Table(Section{Title: MainTitle, Samples: sampleFixture()[1:]})
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], `"S2B_MSIL2A_20250106";"2";"2025-01-06T10:00:00Z";N/A;N/A;N/A;N/A;"0"`))
	assert.True(t, strings.HasSuffix(lines[2], `"false";"N/A";"N/A";"Excluded"`))
}

func TestNegativeZScore(t *testing.T) {
	text := Table(Section{
		Title:        MainTitle,
		Samples:      sampleFixture()[:1],
		ChangePoints: []series.ChangePoint{{ID: 1, ZScore: -2.5}},
	})
	records := parse(t, text)
	assert.Equal(t, "-2.50", records[2][13])
}

func TestReport(t *testing.T) {
	samples := sampleFixture()

	mainOnly := Report(Section{Title: MainTitle, Samples: samples}, Section{Title: ComparisonTitle})
	assert.NotContains(t, mainOnly, ComparisonTitle)
	assert.True(t, strings.HasPrefix(mainOnly, "### MAIN SAMPLES ###\n"))

	both := Report(Section{Title: MainTitle, Samples: samples}, Section{Title: ComparisonTitle, Samples: samples[:1]})
	main, comparison, found := strings.Cut(both, "\n\n\n### COMPARISON SAMPLES ###\n")
	require.True(t, found)
	assert.Equal(t, Table(Section{Title: MainTitle, Samples: samples}), main)
	assert.True(t, strings.HasPrefix(comparison, strings.Join(Columns, Delimiter)))

	assert.Equal(t, "", Report(Section{Title: MainTitle}, Section{Title: ComparisonTitle}))
}

func TestSceneList(t *testing.T) {
	samples := sampleFixture()

	assert.Equal(t,
		"=== Main Samples ===\n\nItemID,Date\nS2A_MSIL2A_20250101,2025-01-01T10:00:00Z\nS2B_MSIL2A_20250106,2025-01-06T10:00:00Z",
		SceneList(samples, nil))

	assert.Equal(t,
		"=== Comparison Samples ===\n\nItemID,Date\nS2A_MSIL2A_20250101,2025-01-01T10:00:00Z",
		SceneList(nil, samples[:1]))

	both := SceneList(samples[:1], samples[1:])
	assert.Contains(t, both, "2025-01-01T10:00:00Z\n\n=== Comparison Samples ===\n\nItemID,Date\nS2B_MSIL2A_20250106")

	assert.Equal(t, "", SceneList(nil, nil))
}
