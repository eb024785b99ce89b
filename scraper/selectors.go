package scraper

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadSelectors decodes the selector set for source into dst. A file named
// <source>.yaml in dir replaces the embedded default when present.
func LoadSelectors(source string, embedded []byte, dir string, dst any) error {
	data := embedded
	if dir != "" {
		path := filepath.Join(dir, source+".yaml")
		override, err := os.ReadFile(path)
		switch {
		case err == nil:
			data = override
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read selectors %q: %w", path, err)
		}
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse selectors for %s: %w", source, err)
	}
	return nil
}
