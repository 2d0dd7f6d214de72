package models

import (
	"path/filepath"
	"strings"
)

// Subject is one scan participant: an identifier plus the path to the
// primary (FA) image the identifier resolved to.
type Subject struct {
	// ID is the subject identifier from the subject list.
	ID string `json:"id"`
	// FAPath is the absolute path to the subject's FA image.
	FAPath string `json:"fa_path"`
}

// Stem returns the subject's data stem: the FA filename with the FA
// suffix stripped. Sibling measure images share this stem.
func (s Subject) Stem() string {
	base := filepath.Base(s.FAPath)
	return strings.TrimSuffix(base, MeasureFA.Suffix())
}

// ArtifactPath returns the expected path of this subject's image for the
// given measure. Sibling measures live in the same directory as the FA
// image, located by swapping the measurement suffix.
func (s Subject) ArtifactPath(m Measure) string {
	if m == MeasureFA {
		return s.FAPath
	}
	return filepath.Join(filepath.Dir(s.FAPath), s.Stem()+m.Suffix())
}
