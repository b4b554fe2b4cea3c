// Package rag provides chunking, embedding, and vector retrieval for the
// index stage.
package rag

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Chunking defaults: target chunk size and overlap budget, in characters.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// Chunk is one retrieval unit of a document. Overlap is the length of the
// prefix carried over from the previous chunk, including the paragraph
// joiner; stripping it recovers the chunk's new content.
type Chunk struct {
	ID      string `json:"chunk_id"`
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Overlap int    `json:"overlap"`
}

var paragraphSplit = regexp.MustCompile(`\n[ \t]*\n`)

// SplitChunks divides content into chunks of roughly target characters,
// breaking only at paragraph boundaries. Each chunk after the first starts
// with the tail paragraphs of its predecessor whose cumulative length fits
// the overlap budget. A single paragraph longer than target becomes its
// own chunk.
func SplitChunks(docID, content string, target, overlap int) []Chunk {
	if target <= 0 {
		target = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}

	var paras []string
	for _, p := range paragraphSplit.Split(content, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	if len(paras) == 0 {
		return nil
	}

	short := spmedge.ShortID(docID)
	var chunks []Chunk
	var cur []string
	curLen := 0
	overlapLen := 0
	fresh := 0 // paragraphs in cur that are not carried overlap

	flush := func() {
		if fresh == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			ID:      fmt.Sprintf("%s_chunk_%03d", short, len(chunks)),
			Index:   len(chunks),
			Text:    strings.Join(cur, "\n\n"),
			Overlap: overlapLen,
		})
	}

	for _, p := range paras {
		if fresh > 0 && curLen+len(p) > target {
			flush()
			// seed the next chunk with trailing paragraphs of this one
			var carry []string
			carryLen := 0
			for i := len(cur) - 1; i >= 0; i-- {
				if carryLen+len(cur[i]) > overlap {
					break
				}
				carryLen += len(cur[i]) + 2
				carry = append([]string{cur[i]}, carry...)
			}
			cur = carry
			curLen = carryLen
			overlapLen = carryLen
			fresh = 0
		}
		cur = append(cur, p)
		curLen += len(p) + 2
		fresh++
	}
	flush()
	return chunks
}

// JoinChunks reverses SplitChunks: it concatenates chunk texts in order
// with each chunk's overlap prefix removed.
func JoinChunks(chunks []Chunk) string {
	var b strings.Builder
	for i, c := range chunks {
		text := c.Text
		if c.Overlap > 0 && c.Overlap <= len(text) {
			text = text[c.Overlap:]
		}
		if i > 0 && text != "" {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String()
}
