package igc

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FindHTMLFiles walks root and returns every .igc file that holds an HTML
// page instead of a track log. A missing root yields no files.
func FindHTMLFiles(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".igc") {
			return nil
		}
		if IsHTMLFile(path) {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}
