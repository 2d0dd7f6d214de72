// Package design discovers experiment designs and drives one pipeline
// run per design. A design hierarchy is two levels deep: named groups,
// each containing named designs with a subject list, a design matrix,
// and a contrast.
package design

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mfarrell/tractus/pkg/models"
)

// hierarchy is the YAML form of a design tree (designs.yaml).
type hierarchy struct {
	Groups []struct {
		Name    string `yaml:"name"`
		Designs []struct {
			Name     string `yaml:"name"`
			Subjects string `yaml:"subjects"`
			Matrix   string `yaml:"matrix"`
			Contrast string `yaml:"contrast"`
		} `yaml:"designs"`
	} `yaml:"groups"`
}

// LoadFile reads a designs.yaml hierarchy. Relative file paths inside
// the file are resolved against root/<group>/<design>/.
func LoadFile(path, root string) ([]models.Design, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read design file: %w", err)
	}

	var h hierarchy
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse design file %s: %w", path, err)
	}

	var designs []models.Design
	for _, g := range h.Groups {
		for _, d := range g.Designs {
			dir := filepath.Join(root, g.Name, d.Name)
			designs = append(designs, models.Design{
				Group:        g.Name,
				Name:         d.Name,
				Dir:          dir,
				SubjectsFile: resolvePath(dir, d.Subjects, "subjects.txt"),
				MatrixFile:   resolvePath(dir, d.Matrix, "design.mat"),
				ContrastFile: resolvePath(dir, d.Contrast, "design.con"),
			})
		}
	}
	return designs, nil
}

// Discover walks a two-level directory hierarchy under root: every
// <root>/<group>/<design> directory containing a design matrix is one
// design. Results are ordered by group, then design name.
func Discover(root string) ([]models.Design, error) {
	groups, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read design root: %w", err)
	}

	var designs []models.Design
	for _, g := range groups {
		if !g.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, g.Name()))
		if err != nil {
			return nil, fmt.Errorf("read group %s: %w", g.Name(), err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(root, g.Name(), e.Name())
			if _, err := os.Stat(filepath.Join(dir, "design.mat")); err != nil {
				continue
			}
			designs = append(designs, models.Design{
				Group:        g.Name(),
				Name:         e.Name(),
				Dir:          dir,
				SubjectsFile: filepath.Join(dir, "subjects.txt"),
				MatrixFile:   filepath.Join(dir, "design.mat"),
				ContrastFile: filepath.Join(dir, "design.con"),
			})
		}
	}

	sort.Slice(designs, func(i, j int) bool {
		if designs[i].Group != designs[j].Group {
			return designs[i].Group < designs[j].Group
		}
		return designs[i].Name < designs[j].Name
	})
	return designs, nil
}

func resolvePath(dir, p, fallback string) string {
	if p == "" {
		p = fallback
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
