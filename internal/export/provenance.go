package export

import (
	"strings"

	"github.com/chrissnell/remotendvi/internal/ndvi"
)

// SceneList renders the scene ids and dates of both series as comma
// separated lists under "=== Main Samples ===" and "=== Comparison Samples ==="
// headings. Empty series are left out.
func SceneList(main, comparison []ndvi.Sample) string {
	var sections []string
	if len(main) > 0 {
		sections = append(sections, "=== Main Samples ===", sceneRows(main))
	}
	if len(comparison) > 0 {
		sections = append(sections, "=== Comparison Samples ===", sceneRows(comparison))
	}
	return strings.Join(sections, "\n\n")
}

func sceneRows(samples []ndvi.Sample) string {
	rows := make([]string, 0, len(samples)+1)
	rows = append(rows, "ItemID,Date")
	for _, s := range samples {
		rows = append(rows, s.FeatureID+","+s.Datetime)
	}
	return strings.Join(rows, "\n")
}
