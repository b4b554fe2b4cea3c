package rag

import (
	"strings"
	"testing"
)

func TestSplitChunksSingleParagraph(t *testing.T) {
	chunks := SplitChunks("doc-1", "one short paragraph", 512, 50)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ID != "doc1_chunk_000" {
		t.Errorf("unexpected chunk id %q", chunks[0].ID)
	}
	if chunks[0].Overlap != 0 {
		t.Errorf("first chunk must have no overlap, got %d", chunks[0].Overlap)
	}
}

func TestSplitChunksEmpty(t *testing.T) {
	if got := SplitChunks("doc-1", "  \n\n \t\n\n", 512, 50); got != nil {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
}

func TestSplitChunksOverlapCarry(t *testing.T) {
	p1 := strings.Repeat("a", 100)
	p2 := strings.Repeat("b", 10)
	p3 := strings.Repeat("c", 100)
	content := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := SplitChunks("doc-1", content, 120, 40)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != p1+"\n\n"+p2 {
		t.Errorf("unexpected first chunk text %q", chunks[0].Text)
	}
	// the second chunk starts with the carried tail paragraph
	if !strings.HasPrefix(chunks[1].Text, p2+"\n\n") {
		t.Errorf("second chunk missing carried prefix: %q", chunks[1].Text[:20])
	}
	if want := len(p2) + 2; chunks[1].Overlap != want {
		t.Errorf("overlap = %d, want %d", chunks[1].Overlap, want)
	}
	if chunks[1].Text[chunks[1].Overlap:] != p3 {
		t.Errorf("stripping overlap should leave fresh content")
	}
}

func TestSplitChunksOverlapBudget(t *testing.T) {
	// every paragraph exceeds the overlap budget, so nothing carries
	paras := []string{strings.Repeat("a", 100), strings.Repeat("b", 100), strings.Repeat("c", 100)}
	chunks := SplitChunks("doc-1", strings.Join(paras, "\n\n"), 120, 40)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Overlap != 0 {
			t.Errorf("chunk %d overlap = %d, want 0", i, c.Overlap)
		}
		if c.Text != paras[i] {
			t.Errorf("chunk %d text mismatch", i)
		}
	}
}

func TestJoinChunksRoundTrip(t *testing.T) {
	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, strings.Repeat(string(rune('a'+i)), 20+i*13))
	}
	content := strings.Join(paras, "\n\n")

	chunks := SplitChunks("doc-1", content, 150, 60)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	if got := JoinChunks(chunks); got != content {
		t.Errorf("round trip mismatch:\ngot  %q\nwant %q", got, content)
	}
}

func TestSplitChunksStableIDs(t *testing.T) {
	content := strings.Repeat("x", 80) + "\n\n" + strings.Repeat("y", 80)
	chunks := SplitChunks("3f8a2c1d-9b4e-4f6a-8c2d-1e5f7a9b3c0d", content, 90, 10)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ID != "3f8a2c1d9b4e_chunk_000" || chunks[1].ID != "3f8a2c1d9b4e_chunk_001" {
		t.Errorf("unexpected ids %q, %q", chunks[0].ID, chunks[1].ID)
	}
	if chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Errorf("unexpected indices %d, %d", chunks[0].Index, chunks[1].Index)
	}
}
