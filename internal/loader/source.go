package loader

import (
	"os"
	"path/filepath"

	"github.com/spm-edge/spmedge/internal/pipeline"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

// findSource locates the on-disk source file for a document. Candidates
// are tried in order: the canonical copy in stage_input, then the legacy
// input and unprocessed directories, then stage_load (including the
// original_ backup), and finally any file in those directories whose name
// contains the document's short ID.
func findSource(dirs pipeline.Dirs, doc *spmedge.Document) string {
	candidates := []string{
		filepath.Join(dirs.Stage(spmedge.StageInput), doc.Name),
		filepath.Join(dirs.Input(), doc.Name),
		filepath.Join(dirs.Input(), doc.OriginalName),
		filepath.Join(dirs.Unprocessed(), doc.OriginalName),
		filepath.Join(dirs.Unprocessed(), doc.Name),
		filepath.Join(dirs.Stage(spmedge.StageLoad), doc.Name),
		filepath.Join(dirs.Stage(spmedge.StageLoad), "original_"+doc.OriginalName),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c
		}
	}

	searchDirs := []string{
		dirs.Stage(spmedge.StageInput),
		dirs.Input(),
		dirs.Unprocessed(),
		dirs.Stage(spmedge.StageLoad),
	}
	for _, dir := range searchDirs {
		if match := pipeline.FindStageFile(dir, doc.ID); match != "" {
			return match
		}
	}
	return ""
}
