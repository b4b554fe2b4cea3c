package loader

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spm-edge/spmedge/internal/extract"
	"github.com/spm-edge/spmedge/internal/rag"
)

// Artifact is the canonical LOAD output for one document. The top-level
// content field is what downstream stages consume; rag_document carries
// the retrieval-ready view.
type Artifact struct {
	DocumentID   string         `json:"document_id"`
	Name         string         `json:"name"`
	OriginalName string         `json:"original_name"`
	FileType     string         `json:"file_type"`
	Content      string         `json:"content"`
	Extraction   Extraction     `json:"extraction"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Structure    Structure      `json:"structure"`
	RAGDocument  RAGDocument    `json:"rag_document"`
	Stats        Stats          `json:"stats"`
	LoadedAt     time.Time      `json:"loaded_at"`
}

// Extraction records how the content was produced and how much to trust it.
type Extraction struct {
	Method   string  `json:"method"`
	Quality  float64 `json:"quality"`
	NeedsOCR bool    `json:"needs_ocr,omitempty"`
	Error    string  `json:"error,omitempty"`
	Format   string  `json:"detected_format"`
}

// Structure summarizes the shape the extractor found.
type Structure struct {
	Pages    int               `json:"pages,omitempty"`
	Slides   int               `json:"slides,omitempty"`
	Sheets   int               `json:"sheets,omitempty"`
	Tables   int               `json:"tables,omitempty"`
	Headings []extract.Heading `json:"headings,omitempty"`
	Parsed   any               `json:"parsed,omitempty"`
}

// RAGDocument is the retrieval-ready view embedded in the artifact.
type RAGDocument struct {
	DocType    string         `json:"doc_type"`
	Confidence float64        `json:"type_confidence"`
	Metadata   map[string]any `json:"metadata"`
	Chunks     []rag.Chunk    `json:"chunks"`
}

// Stats is the artifact's summary block.
type Stats struct {
	WordCount         int     `json:"word_count"`
	ChunkCount        int     `json:"chunk_count"`
	ExtractionQuality float64 `json:"extraction_quality"`
}

// typePattern maps a filename or content regexp to a document type guess.
type typePattern struct {
	re         *regexp.Regexp
	docType    string
	confidence float64
}

var filenamePatterns = []typePattern{
	{regexp.MustCompile(`(?i)comp(ensation)?[_ -]?plan`), "comp_plan", 0.9},
	{regexp.MustCompile(`(?i)incentive|commission`), "comp_plan", 0.8},
	{regexp.MustCompile(`(?i)quota`), "quota_sheet", 0.8},
	{regexp.MustCompile(`(?i)policy`), "policy", 0.8},
	{regexp.MustCompile(`(?i)terms|t&c`), "terms", 0.7},
}

var contentPatterns = []typePattern{
	{regexp.MustCompile(`(?i)target\s+incentive|on[- ]target\s+earnings`), "comp_plan", 0.6},
	{regexp.MustCompile(`(?i)payout\s+schedule|commission\s+rate`), "comp_plan", 0.6},
	{regexp.MustCompile(`(?i)quota\s+(attainment|credit)`), "quota_sheet", 0.5},
	{regexp.MustCompile(`(?i)terms\s+(and|&)\s+conditions`), "terms", 0.5},
}

// detectDocType guesses a document type from the filename first, then from
// content patterns, returning the guess and a confidence in [0,1].
func detectDocType(filename, content string) (string, float64) {
	for _, p := range filenamePatterns {
		if p.re.MatchString(filename) {
			return p.docType, p.confidence
		}
	}
	head := content
	if len(head) > 4000 {
		head = head[:4000]
	}
	best := ""
	conf := 0.0
	for _, p := range contentPatterns {
		if p.re.MatchString(head) && p.confidence > conf {
			best, conf = p.docType, p.confidence
		}
	}
	if best == "" {
		return "unknown", 0
	}
	return best, conf
}

// buildArtifact assembles the LOAD artifact from an extraction result.
func buildArtifact(docID, name, original, fileType string, res *extract.Result, at time.Time) *Artifact {
	chunks := rag.SplitChunks(docID, res.Content, rag.DefaultChunkSize, rag.DefaultChunkOverlap)
	docType, confidence := detectDocType(original, res.Content)

	ragMeta := map[string]any{
		"detected_format": res.Format,
		"source_file":     original,
	}
	for k, v := range res.Metadata {
		ragMeta[k] = v
	}

	return &Artifact{
		DocumentID:   docID,
		Name:         name,
		OriginalName: original,
		FileType:     fileType,
		Content:      res.Content,
		Extraction: Extraction{
			Method:   res.Method,
			Quality:  res.Quality,
			NeedsOCR: res.NeedsOCR,
			Error:    res.Error,
			Format:   res.Format,
		},
		Metadata: res.Metadata,
		Structure: Structure{
			Pages:    len(res.Pages),
			Slides:   len(res.Slides),
			Sheets:   len(res.Sheets),
			Tables:   len(res.Tables),
			Headings: res.Headings,
			Parsed:   res.Structure,
		},
		RAGDocument: RAGDocument{
			DocType:    docType,
			Confidence: confidence,
			Metadata:   ragMeta,
			Chunks:     chunks,
		},
		Stats: Stats{
			WordCount:         len(strings.Fields(res.Content)),
			ChunkCount:        len(chunks),
			ExtractionQuality: res.Quality,
		},
		LoadedAt: at.UTC(),
	}
}

// Render serializes the artifact in the requested output format and
// returns the bytes plus the artifact file extension.
func (a *Artifact) Render(format string) ([]byte, string, error) {
	switch format {
	case "", "json":
		data, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal artifact: %w", err)
		}
		return data, ".json", nil
	case "text":
		return []byte(a.Content), ".txt", nil
	case "markdown":
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", a.OriginalName)
		keys := make([]string, 0, len(a.Metadata))
		for k := range a.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s**: %v\n", k, a.Metadata[k])
		}
		fmt.Fprintf(&b, "- **extraction_quality**: %.2f\n\n", a.Extraction.Quality)
		b.WriteString(a.Content)
		b.WriteString("\n")
		return []byte(b.String()), ".md", nil
	default:
		return nil, "", fmt.Errorf("unknown output format %q", format)
	}
}
