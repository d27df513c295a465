package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempFilePrefix marks the temporary files of in-flight writes. Files left
// behind by a crash are ignored when the repository is loaded.
const TempFilePrefix = "strata-tmp-"

// writeFileAtomic replaces filename with data through a temporary file in
// the same directory, so readers see either the old or the new content.
// Missing parent directories are created.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Chmod(name, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(name, filename); err != nil {
		return fmt.Errorf("renaming into %s: %w", filename, err)
	}
	return nil
}
