package design

import (
	"fmt"
	"os"
	"strings"
)

// matrixHeaderLines is the number of fixed header lines in a design
// matrix file (/NumWaves, /NumPoints, /Matrix).
const matrixHeaderLines = 3

// ConsistencyError reports a subject-count mismatch between a subject
// list and a design matrix. It is a hard validation failure.
type ConsistencyError struct {
	Matrix   string
	Rows     int
	Subjects int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("design matrix %s has %d data rows but the subject list has %d subjects",
		e.Matrix, e.Rows, e.Subjects)
}

// CheckConsistency verifies that the design matrix's row count (total
// lines minus the fixed header) equals the subject count. Only the line
// count is inspected; field contents are opaque to the pipeline.
func CheckConsistency(matrixPath string, subjectCount int) error {
	data, err := os.ReadFile(matrixPath)
	if err != nil {
		return fmt.Errorf("read design matrix: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)
	if total > 0 && lines[total-1] == "" {
		total--
	}

	rows := total - matrixHeaderLines
	if rows != subjectCount {
		return &ConsistencyError{Matrix: matrixPath, Rows: rows, Subjects: subjectCount}
	}
	return nil
}
