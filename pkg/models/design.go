package models

import "path/filepath"

// Design is one named statistical hypothesis: a subject subset, a design
// matrix, and a contrast.
type Design struct {
	// Group is the name of the group the design belongs to.
	Group string `json:"group" yaml:"group"`
	// Name is the design name, unique within its group.
	Name string `json:"name" yaml:"name"`
	// Dir is the directory holding the design's files and output tree.
	Dir string `json:"dir" yaml:"-"`
	// SubjectsFile is the subject-inclusion list, one identifier per line.
	SubjectsFile string `json:"subjects_file" yaml:"subjects"`
	// MatrixFile is the plain-text design matrix (subjects x covariates).
	MatrixFile string `json:"matrix_file" yaml:"matrix"`
	// ContrastFile is the plain-text contrast definition.
	ContrastFile string `json:"contrast_file" yaml:"contrast"`
}

// QualifiedName returns "group/name", the label used in logs and job names.
func (d Design) QualifiedName() string {
	return d.Group + "/" + d.Name
}

// RunDir returns the pipeline run directory for this design.
func (d Design) RunDir() string {
	return filepath.Join(d.Dir, "tbss")
}
