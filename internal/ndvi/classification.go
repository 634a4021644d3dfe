package ndvi

import (
	"fmt"
	"slices"
	"strings"
)

// Classification is a Sentinel-2 L2A scene classification (SCL) code
type Classification uint8

const (
	NoData Classification = iota
	SaturatedOrDefective
	DarkArea
	CloudShadows
	Vegetation
	NotVegetated
	Water
	Unclassified
	CloudMediumProbability
	CloudHighProbability
	ThinCirrus
	SnowIce
)

var classificationNames = [...]string{
	NoData:                 "NO_DATA",
	SaturatedOrDefective:   "SATURATED_OR_DEFECTIVE",
	DarkArea:               "DARK_AREA",
	CloudShadows:           "CLOUD_SHADOWS",
	Vegetation:             "VEGETATION",
	NotVegetated:           "NOT_VEGETATED",
	Water:                  "WATER",
	Unclassified:           "UNCLASSIFIED",
	CloudMediumProbability: "CLOUD_MEDIUM_PROBABILITY",
	CloudHighProbability:   "CLOUD_HIGH_PROBABILITY",
	ThinCirrus:             "THIN_CIRRUS",
	SnowIce:                "SNOW_ICE",
}

func (c Classification) String() string {
	if int(c) < len(classificationNames) {
		return classificationNames[c]
	}
	return fmt.Sprintf("SCL_%d", uint8(c))
}

// MarshalText implements encoding.TextMarshaler so breakdown maps encode
// with readable keys.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Classification) UnmarshalText(text []byte) error {
	s := string(text)
	for i, name := range classificationNames {
		if name == s {
			*c = Classification(i)
			return nil
		}
	}
	var n uint8
	if _, err := fmt.Sscanf(s, "SCL_%d", &n); err == nil {
		*c = Classification(n)
		return nil
	}
	return fmt.Errorf("unknown scene classification %q", s)
}

// RejectSet is the ordered set of classification codes masked out of NDVI
type RejectSet []Classification

var (
	// StrictRejectSet masks no-data, defective, shadow, water, cloud and cirrus pixels
	StrictRejectSet = RejectSet{NoData, SaturatedOrDefective, CloudShadows, Water,
		CloudMediumProbability, CloudHighProbability, ThinCirrus}
	// NarrowRejectSet masks only shadow, water and high-probability cloud
	NarrowRejectSet = RejectSet{CloudShadows, Water, CloudHighProbability}
)

// Contains reports whether c is rejected
func (s RejectSet) Contains(c Classification) bool {
	return slices.Contains(s, c)
}

// lookup returns a 256-entry table for the per-pixel hot loop
func (s RejectSet) lookup() [256]bool {
	var t [256]bool
	for _, c := range s {
		t[c] = true
	}
	return t
}

// RejectPolicy names which reject set a run masks with
type RejectPolicy string

const (
	PolicyStrict RejectPolicy = "strict"
	PolicyNarrow RejectPolicy = "narrow"
)

// ParseRejectPolicy parses a policy name, case-insensitively. Empty means strict.
func ParseRejectPolicy(s string) (RejectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyStrict):
		return PolicyStrict, nil
	case string(PolicyNarrow):
		return PolicyNarrow, nil
	}
	return "", fmt.Errorf("unknown reject policy %q (expected strict or narrow)", s)
}

// Set returns the reject set for the policy
func (p RejectPolicy) Set() RejectSet {
	if p == PolicyNarrow {
		return NarrowRejectSet
	}
	return StrictRejectSet
}
