package series

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNoteLength is the longest annotation note accepted, in characters
const MaxNoteLength = 120

// ErrInvalidAnnotation is returned for annotations with missing fields or
// an overlong note
var ErrInvalidAnnotation = errors.New("invalid annotation")

// Annotation is a user note attached to one sample of a series
type Annotation struct {
	FeatureID string `json:"featureId"`
	Datetime  string `json:"datetime"`
	Note      string `json:"note"`
}

// Validate checks every field is non-blank and the note fits
func (a Annotation) Validate() error {
	switch {
	case strings.TrimSpace(a.FeatureID) == "":
		return fmt.Errorf("%w: featureId is required", ErrInvalidAnnotation)
	case strings.TrimSpace(a.Datetime) == "":
		return fmt.Errorf("%w: datetime is required", ErrInvalidAnnotation)
	case strings.TrimSpace(a.Note) == "":
		return fmt.Errorf("%w: note is required", ErrInvalidAnnotation)
	case utf8.RuneCountInString(a.Note) > MaxNoteLength:
		return fmt.Errorf("%w: note exceeds %d characters", ErrInvalidAnnotation, MaxNoteLength)
	}
	return nil
}

// UpsertAnnotation returns a new slice with a replacing any annotation of the
// same feature id, or appended when there was none.
func UpsertAnnotation(list []Annotation, a Annotation) []Annotation {
	out := make([]Annotation, 0, len(list)+1)
	replaced := false
	for _, existing := range list {
		if existing.FeatureID == a.FeatureID {
			out = append(out, a)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, a)
	}
	return out
}

// FindAnnotation returns the annotation for a feature id
func FindAnnotation(list []Annotation, featureID string) (Annotation, bool) {
	for _, a := range list {
		if a.FeatureID == featureID {
			return a, true
		}
	}
	return Annotation{}, false
}
