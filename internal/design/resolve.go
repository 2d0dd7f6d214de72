package design

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mfarrell/tractus/internal/logging"
	"github.com/mfarrell/tractus/pkg/models"
)

// Resolver turns subject identifiers into subjects with existing FA
// images, using the fixed <root>/<id>/<id>_FA.nii.gz naming convention.
type Resolver struct {
	// DataRoot is the subject-data root directory.
	DataRoot string
	// Log receives omission messages for unresolvable subjects.
	Log *logging.Logger
}

// ReadSubjectList reads a subject list: one identifier per line, blank
// lines and '#' comments ignored.
func ReadSubjectList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open subject list: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read subject list: %w", err)
	}
	return ids, nil
}

// Resolve maps identifiers to subjects whose FA image exists on disk.
// A missing artifact is a soft failure: the subject is omitted and
// logged, the rest of the list is still processed. The omitted ids are
// returned for reporting.
func (r *Resolver) Resolve(ids []string) (subjects []models.Subject, omitted []string) {
	for _, id := range ids {
		fa := filepath.Join(r.DataRoot, id, id+models.MeasureFA.Suffix())
		if _, err := os.Stat(fa); err != nil {
			r.Log.Log("omitting subject %s: %s not found", id, fa)
			omitted = append(omitted, id)
			continue
		}
		subjects = append(subjects, models.Subject{ID: id, FAPath: fa})
	}
	return subjects, omitted
}

// WriteResolvedList writes the resolved subject ids to path, one per
// line. Idempotent: an existing file is left untouched.
func WriteResolvedList(path string, subjects []models.Subject) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	var b strings.Builder
	for _, s := range subjects {
		b.WriteString(s.ID)
		b.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("write resolved list: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write resolved list: %w", err)
	}
	return nil
}
