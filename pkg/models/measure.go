package models

// Measure identifies a diffusion-derived scalar measurement type.
type Measure string

const (
	// MeasureFA is fractional anisotropy, the primary measurement every
	// pipeline run processes.
	MeasureFA Measure = "FA"
	// MeasureAD is axial diffusivity.
	MeasureAD Measure = "AD"
	// MeasureMD is mean diffusivity.
	MeasureMD Measure = "MD"
	// MeasureRD is radial diffusivity.
	MeasureRD Measure = "RD"
)

// SecondaryMeasures lists the derived measurements processed alongside FA
// when secondary-measure analysis is enabled.
var SecondaryMeasures = []Measure{MeasureAD, MeasureMD, MeasureRD}

// Valid returns true if the measure is a known value.
func (m Measure) Valid() bool {
	switch m {
	case MeasureFA, MeasureAD, MeasureMD, MeasureRD:
		return true
	default:
		return false
	}
}

// Suffix returns the filename suffix that locates this measure's image
// next to its siblings (e.g. "_FA.nii.gz").
func (m Measure) Suffix() string {
	return "_" + string(m) + ".nii.gz"
}

// String returns the measure name.
func (m Measure) String() string {
	return string(m)
}
