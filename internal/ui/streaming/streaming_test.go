package streaming

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/charmbracelet/glamour"
)

// renderFull renders markdown in one pass.
func renderFull(t *testing.T, input string) string {
	t.Helper()
	var buf bytes.Buffer
	r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	r.Write([]byte(input))
	r.Close()
	return buf.String()
}

// renderChunked renders markdown byte-by-byte.
func renderChunked(t *testing.T, input string) string {
	t.Helper()
	var buf bytes.Buffer
	r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	for i := 0; i < len(input); i++ {
		r.Write([]byte{input[i]})
	}
	r.Close()
	return buf.String()
}

// renderRandomChunks renders markdown with random chunk sizes.
func renderRandomChunks(t *testing.T, input string, maxChunkSize int) string {
	t.Helper()
	var buf bytes.Buffer
	r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}
	pos := 0
	for pos < len(input) {
		chunkSize := rand.Intn(maxChunkSize) + 1
		if pos+chunkSize > len(input) {
			chunkSize = len(input) - pos
		}
		r.Write([]byte(input[pos : pos+chunkSize]))
		pos += chunkSize
	}
	r.Close()
	return buf.String()
}

// assertChunkingInvariant verifies that chunked output matches full output.
func assertChunkingInvariant(t *testing.T, name, input string) {
	t.Helper()

	full := renderFull(t, input)
	chunked := renderChunked(t, input)

	if full != chunked {
		t.Errorf("%s: chunking invariant FAILED\nInput:\n%s\n\nFull output (%d bytes):\n%q\n\nChunked output (%d bytes):\n%q",
			name, input, len(full), full, len(chunked), chunked)
	}
}

func TestChunkingInvariantHeading(t *testing.T) {
	assertChunkingInvariant(t, "ATX heading", "# Hello World\n")
	assertChunkingInvariant(t, "ATX heading H2", "## Subheading\n")
	assertChunkingInvariant(t, "ATX heading H6", "###### Deep heading\n")
}

func TestChunkingInvariantSetextHeading(t *testing.T) {
	assertChunkingInvariant(t, "setext H1", "Heading\n=======\n")
	assertChunkingInvariant(t, "setext H2", "Heading\n-------\n")
}

func TestChunkingInvariantParagraph(t *testing.T) {
	assertChunkingInvariant(t, "simple paragraph", "This is a paragraph.\n\n")
	assertChunkingInvariant(t, "multi-line paragraph", "Line one.\nLine two.\nLine three.\n\n")
}

func TestChunkingInvariantFencedCode(t *testing.T) {
	assertChunkingInvariant(t, "fenced code backticks", "```\ncode here\n```\n")
	assertChunkingInvariant(t, "fenced code with lang", "```go\nfmt.Println(\"hello\")\n```\n")
	assertChunkingInvariant(t, "fenced code tildes", "~~~\ncode here\n~~~\n")
	assertChunkingInvariant(t, "fenced code 4 backticks", "````\n```\nnested\n```\n````\n")
}

func TestChunkingInvariantList(t *testing.T) {
	assertChunkingInvariant(t, "unordered list", "- Item 1\n- Item 2\n- Item 3\n\nAfter list.\n")
	assertChunkingInvariant(t, "ordered list", "1. First\n2. Second\n3. Third\n\nAfter.\n")
}

func TestChunkingInvariantTable(t *testing.T) {
	assertChunkingInvariant(t, "simple table",
		"| Col A | Col B |\n|-------|-------|\n| 1     | 2     |\n\nAfter.\n")
}

func TestChunkingInvariantBlockquote(t *testing.T) {
	assertChunkingInvariant(t, "blockquote", "> Quoted text.\n> More quote.\n\nAfter.\n")
}

func TestChunkingInvariantThematicBreak(t *testing.T) {
	assertChunkingInvariant(t, "dashes", "Before.\n\n---\n\nAfter.\n")
	assertChunkingInvariant(t, "asterisks", "Before.\n\n***\n\nAfter.\n")
}

func TestChunkingInvariantHeadingInterruptsParagraph(t *testing.T) {
	assertChunkingInvariant(t, "heading after prose", "Some text.\n# Heading\nMore text.\n\n")
}

func TestChunkingInvariantFenceInterruptsParagraph(t *testing.T) {
	assertChunkingInvariant(t, "fence after prose", "Intro line:\n```sh\nls -la\n```\nDone.\n\n")
}

func TestChunkingInvariantMixedDocument(t *testing.T) {
	input := "# Release notes\n\n" +
		"The streaming layer now reconnects automatically.\n" +
		"Retries use exponential backoff.\n\n" +
		"## Details\n\n" +
		"- faster uploads\n" +
		"- smaller payloads\n\n" +
		"```go\nclient.Send(ctx, msg)\n```\n\n" +
		"> Upgrade before the old endpoint is removed.\n\n" +
		"---\n\n" +
		"| Flag | Default |\n|------|---------|\n| retry | 3 |\n\nDone.\n"

	assertChunkingInvariant(t, "mixed document", input)

	full := renderFull(t, input)
	for i := 0; i < 20; i++ {
		random := renderRandomChunks(t, input, 7)
		if random != full {
			t.Fatalf("random chunking diverged on iteration %d\nFull: %q\nRandom: %q", i, full, random)
		}
	}
}

// TestGlamourParity verifies streaming output exactly matches a one-shot
// glamour render of the same document.
func TestGlamourParity(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"simple heading", "# Hello\n"},
		{"heading and paragraph", "# Hello\n\nWorld\n"},
		{"two paragraphs", "Hello\n\nWorld\n"},
		{"heading paragraph list", "# Title\n\nParagraph\n\n- Item 1\n- Item 2\n\nDone.\n"},
		{"code block", "```go\nfmt.Println(\"hi\")\n```\n"},
		{"mixed content", "# Heading\n\nThis is a paragraph.\n\n- Item 1\n- Item 2\n\n```\ncode\n```\n\nDone.\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"))
			if err != nil {
				t.Fatalf("failed to create glamour renderer: %v", err)
			}
			direct, err := tr.RenderBytes([]byte(tt.input))
			if err != nil {
				t.Fatalf("glamour render failed: %v", err)
			}

			var buf bytes.Buffer
			r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
			if err != nil {
				t.Fatalf("failed to create streaming renderer: %v", err)
			}
			r.Write([]byte(tt.input))
			r.Close()

			if buf.String() != string(direct) {
				t.Errorf("parity failed\nInput: %q\nGlamour: %q\nStreaming: %q",
					tt.input, direct, buf.String())
			}
		})
	}
}

func TestNoOutputBeforeBlockCompletes(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	r.Write([]byte("Hello wor"))
	if buf.Len() != 0 {
		t.Errorf("expected no output for a partial line, got %q", buf.String())
	}

	r.Write([]byte("ld.\n"))
	if buf.Len() != 0 {
		t.Errorf("expected no output for an open paragraph, got %q", buf.String())
	}

	r.Write([]byte("\n"))
	if !strings.Contains(buf.String(), "Hello") {
		t.Errorf("expected paragraph after blank line, got %q", buf.String())
	}
}

func TestFlushRendersIncompleteBlocks(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	// No trailing newline and no blank line: nothing is complete yet
	r.Write([]byte("Streaming stopped mid-sent"))
	if buf.Len() != 0 {
		t.Fatalf("expected no output before flush, got %q", buf.String())
	}

	if err := r.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if !strings.Contains(buf.String(), "mid-sent") {
		t.Errorf("expected flushed text in output, got %q", buf.String())
	}
}

func TestFlushRendersUnterminatedFence(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	r.Write([]byte("```python\nprint('hi')\n"))
	if buf.Len() != 0 {
		t.Fatalf("expected no output for an open fence, got %q", buf.String())
	}

	if err := r.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if !strings.Contains(buf.String(), "print") {
		t.Errorf("expected fence contents after flush, got %q", buf.String())
	}
}

func TestFlushEmptyRendererIsNoop(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	if err := r.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output from empty flush, got %q", buf.String())
	}
}

func TestHeadingRendersImmediately(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRenderer(&buf, glamour.WithStandardStyle("dark"))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	r.Write([]byte("# Deploy summary\n"))
	if !strings.Contains(buf.String(), "Deploy") {
		t.Errorf("expected heading output without waiting for more input, got %q", buf.String())
	}
}

func TestFencePredicates(t *testing.T) {
	char, length, indent := parseFence("```go")
	if char != '`' || length != 3 || indent != 0 {
		t.Errorf("parseFence(```go) = %q %d %d", char, length, indent)
	}

	char, length, indent = parseFence("  ~~~~")
	if char != '~' || length != 4 || indent != 2 {
		t.Errorf("parseFence(  ~~~~) = %q %d %d", char, length, indent)
	}

	if !isClosingFence("```", '`', 3, 0) {
		t.Error("``` should close a 3-backtick fence")
	}
	if isClosingFence("``", '`', 3, 0) {
		t.Error("`` should not close a 3-backtick fence")
	}
	if isClosingFence("~~~", '`', 3, 0) {
		t.Error("~~~ should not close a backtick fence")
	}
	if isClosingFence("```go", '`', 3, 0) {
		t.Error("a fence with an info string should not count as closing")
	}
	if !isClosingFence("````", '`', 3, 0) {
		t.Error("a longer fence should close a shorter one")
	}
}

func TestHeadingPredicate(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"# Heading", true},
		{"###### Deep", true},
		{"####### Too deep", false},
		{"#NoSpace", false},
		{"##", true},
		{"plain text", false},
	}
	for _, tc := range cases {
		if got := isHeadingLine(tc.line); got != tc.want {
			t.Errorf("isHeadingLine(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}
