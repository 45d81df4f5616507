package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dErrors "mailanon/pkg/domain-errors"
	strs "mailanon/pkg/platform/strings"
)

// DiscoverInputs expands directories in paths to the files with extension
// ext they contain (not recursive). Files under exclude, typically the output
// directory, are left out. Blank arguments are ignored.
func DiscoverInputs(paths []string, ext, exclude string) ([]string, error) {
	paths = strs.DedupeAndTrim(paths)
	var excludeAbs string
	if exclude != "" {
		abs, err := filepath.Abs(exclude)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", exclude, err)
		}
		excludeAbs = abs
	}

	var files []string
	seen := make(map[string]struct{})
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		if excludeAbs != "" && (abs == excludeAbs || strings.HasPrefix(abs, excludeAbs+string(filepath.Separator))) {
			return nil
		}
		if _, dup := seen[abs]; dup {
			return nil
		}
		seen[abs] = struct{}{}
		files = append(files, path)
		return nil
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "input "+p)
		}
		if !info.IsDir() {
			if err := add(p); err != nil {
				return nil, err
			}
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "read input directory "+p)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
				continue
			}
			if err := add(filepath.Join(p, e.Name())); err != nil {
				return nil, err
			}
		}
	}
	if len(files) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no input files found")
	}
	return files, nil
}
