package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/strata/pkg/adapters/fs"
)

// FindRoot walks up from startDir to the first directory holding a
// repository marker: the system directory or a types directory.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for dir := abs; ; {
		if isDir(dir, fs.DefaultSystemDir) || isDir(dir, fs.TypesDir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("no repository found above %s", abs)
}

func isDir(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && info.IsDir()
}
