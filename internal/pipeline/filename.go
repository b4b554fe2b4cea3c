package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// StageFilename builds the artifact name for one document at one stage:
// pipeline_<stage>_doc<12-hex>_batch<batch>_<base>_<YYYYMMDD_HHMMSS><ext>.
// base is sanitized and stripped of its extension; ext includes the dot.
func StageFilename(stage spmedge.Stage, docID, batchID, base string, at time.Time, ext string) string {
	base = spmedge.SanitizeFilename(base)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		base = spmedge.FallbackName(docID)
	}
	return fmt.Sprintf("pipeline_%s_doc%s_batch%s_%s_%s%s",
		stage, spmedge.ShortID(docID), batchID, base, at.Format("20060102_150405"), ext)
}

// FindStageFile returns the newest file in dir whose name contains the
// document's short ID, or "" when none exists.
func FindStageFile(dir, docID string) string {
	matches, err := filepath.Glob(filepath.Join(dir, "*doc"+spmedge.ShortID(docID)+"*"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	newest := matches[0]
	var newestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = m
			newestMod = info.ModTime()
		}
	}
	return newest
}

// RemoveStageFiles deletes a stage's artifacts, scoped to a batch when
// batchID is non-empty. Returns the number of files removed.
func RemoveStageFiles(dir string, stage spmedge.Stage, batchID string) (int, error) {
	pattern := fmt.Sprintf("pipeline_%s_*", stage)
	if batchID != "" {
		pattern = fmt.Sprintf("pipeline_%s_*batch%s_*", stage, batchID)
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("glob stage files: %w", err)
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return removed, fmt.Errorf("remove %s: %w", m, err)
		}
		removed++
	}
	return removed, nil
}
