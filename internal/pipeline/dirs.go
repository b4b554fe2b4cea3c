package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Dirs resolves the fixed directory layout under the data root.
type Dirs struct {
	Root string
}

// NewDirs returns the directory layout rooted at root.
func NewDirs(root string) Dirs {
	return Dirs{Root: root}
}

// Unprocessed is where incoming files land.
func (d Dirs) Unprocessed() string { return filepath.Join(d.Root, "unprocessed") }

// Stage returns the artifact directory for a stage (stage_input, ...).
// The index stage has no artifact directory of its own.
func (d Dirs) Stage(s spmedge.Stage) string {
	return filepath.Join(d.Root, "stage_"+string(s))
}

// Archive holds optional copies of originals.
func (d Dirs) Archive() string { return filepath.Join(d.Root, "archive") }

// Logs holds per-component log files.
func (d Dirs) Logs() string { return filepath.Join(d.Root, "logs") }

// Input is a legacy drop directory searched by the loader fallback chain.
func (d Dirs) Input() string { return filepath.Join(d.Root, "input") }

// EnsureAll creates the full layout.
func (d Dirs) EnsureAll() error {
	dirs := []string{
		d.Unprocessed(),
		d.Archive(),
		d.Logs(),
		d.Input(),
	}
	for _, s := range []spmedge.Stage{spmedge.StageInput, spmedge.StageLoad, spmedge.StageClean, spmedge.StageProcess} {
		dirs = append(dirs, d.Stage(s))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
