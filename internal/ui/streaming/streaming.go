// Package streaming provides a markdown renderer for content that arrives in
// chunks. It buffers input into lines, tracks block boundaries, and renders
// through glamour so the bytes written downstream always match a one-shot
// render of the same document, no matter how the input was split.
package streaming

import (
	"bytes"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
)

// mode tracks what kind of block the renderer is currently buffering.
type mode int

const (
	modeReady mode = iota // between blocks
	modeProse             // paragraph, list, table or quote text
	modeFence             // inside ``` ... ```
)

// Renderer buffers markdown and writes rendered output block by block.
// Single-line blocks (headings, thematic breaks) render as soon as their
// line is complete; prose renders at the next blank line or block start;
// fenced code renders when the closing fence arrives. Every emit re-renders
// the full accumulated document and writes only the stable new suffix, so
// the final output is identical to rendering the document in one pass.
type Renderer struct {
	tr     *glamour.TermRenderer
	output io.Writer

	// Incoming bytes until a complete line is available
	lineBuf bytes.Buffer

	// All markdown committed so far (re-rendered on every emit)
	doc bytes.Buffer

	// Bytes of rendered output already written downstream
	emitted int

	mode mode

	// Open fence, valid while mode == modeFence
	fenceChar   rune
	fenceLen    int
	fenceIndent int

	// Lines of the current incomplete block
	pending []string
}

// NewRenderer creates a streaming markdown renderer.
// Options are passed directly to glamour.NewTermRenderer.
func NewRenderer(w io.Writer, opts ...glamour.TermRendererOption) (*Renderer, error) {
	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		tr:     tr,
		output: w,
	}, nil
}

// Write accepts markdown chunks and renders completed blocks.
// It implements io.Writer.
func (r *Renderer) Write(p []byte) (int, error) {
	r.lineBuf.Write(p)

	for {
		line, err := r.lineBuf.ReadString('\n')
		if err != nil {
			// No complete line yet, put back what we read
			r.lineBuf.WriteString(line)
			break
		}
		if err := r.processLine(line); err != nil {
			return len(p), err
		}
	}

	return len(p), nil
}

// processLine handles a single complete line of input.
func (r *Renderer) processLine(raw string) error {
	content := strings.TrimSuffix(raw, "\n")
	content = strings.TrimSuffix(content, "\r")

	switch r.mode {
	case modeProse:
		return r.handleProse(content, raw)
	case modeFence:
		return r.handleFence(content, raw)
	default:
		return r.handleReady(content, raw)
	}
}

// handleReady processes a line while between blocks.
func (r *Renderer) handleReady(content, raw string) error {
	if isBlankLine(content) {
		// Inter-block spacing, committed without an emit
		r.doc.WriteString(raw)
		return nil
	}

	trimmed := strings.TrimLeft(content, " \t")

	switch {
	case isFenceDelimiter(trimmed):
		r.mode = modeFence
		r.fenceChar, r.fenceLen, r.fenceIndent = parseFence(content)
		r.pending = append(r.pending, raw)
		return nil

	case isHeadingLine(trimmed), isThematicBreak(trimmed):
		// Single-line blocks are complete immediately
		r.doc.WriteString(raw)
		return r.emit()

	default:
		r.mode = modeProse
		r.pending = append(r.pending, raw)
		return nil
	}
}

// handleProse processes a line while accumulating prose.
func (r *Renderer) handleProse(content, raw string) error {
	if isBlankLine(content) {
		r.commitPending()
		r.doc.WriteString(raw)
		r.mode = modeReady
		return r.emit()
	}

	// Setext underline converts the accumulated text to a heading. This must
	// be checked before thematic breaks because --- is ambiguous.
	if isSetextUnderline(content) && len(r.pending) > 0 {
		r.commitPending()
		r.doc.WriteString(raw)
		r.mode = modeReady
		return r.emit()
	}

	trimmed := strings.TrimLeft(content, " \t")
	if isFenceDelimiter(trimmed) || isHeadingLine(trimmed) || isThematicBreak(trimmed) {
		// A new block interrupts the prose run
		r.commitPending()
		r.mode = modeReady
		if err := r.emit(); err != nil {
			return err
		}
		return r.handleReady(content, raw)
	}

	r.pending = append(r.pending, raw)
	return nil
}

// handleFence processes a line while inside a fenced code block.
func (r *Renderer) handleFence(content, raw string) error {
	r.pending = append(r.pending, raw)

	if isClosingFence(content, r.fenceChar, r.fenceLen, r.fenceIndent) {
		r.commitPending()
		r.mode = modeReady
		r.fenceChar = 0
		r.fenceLen = 0
		r.fenceIndent = 0
		return r.emit()
	}

	return nil
}

// commitPending moves buffered block lines into the document.
func (r *Renderer) commitPending() {
	for _, l := range r.pending {
		r.doc.WriteString(l)
	}
	r.pending = nil
}

// emit renders the full document and writes only the new portion.
// Trailing newlines are excluded because they change as more blocks are
// added (document margin vs inter-block spacing).
func (r *Renderer) emit() error {
	if r.doc.Len() == 0 {
		return nil
	}

	rendered, err := r.tr.RenderBytes(r.doc.Bytes())
	if err != nil {
		return err
	}

	stable := len(rendered)
	for stable > 0 && rendered[stable-1] == '\n' {
		stable--
	}

	if stable > r.emitted {
		if _, err := r.output.Write(rendered[r.emitted:stable]); err != nil {
			return err
		}
		r.emitted = stable
	}

	return nil
}

// Flush renders any buffered content, treating incomplete blocks as complete.
func (r *Renderer) Flush() error {
	if r.lineBuf.Len() > 0 {
		remaining := r.lineBuf.String()
		r.lineBuf.Reset()
		if !strings.HasSuffix(remaining, "\n") {
			remaining += "\n"
		}
		r.pending = append(r.pending, remaining)
	}

	r.commitPending()
	r.mode = modeReady

	if r.doc.Len() == 0 {
		return nil
	}

	rendered, err := r.tr.RenderBytes(r.doc.Bytes())
	if err != nil {
		return err
	}

	// Final flush includes the trailing newlines
	if len(rendered) > r.emitted {
		if _, err := r.output.Write(rendered[r.emitted:]); err != nil {
			return err
		}
		r.emitted = len(rendered)
	}

	return nil
}

// Close flushes any remaining content.
func (r *Renderer) Close() error {
	return r.Flush()
}

// isBlankLine returns true if the line contains only whitespace.
func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// isFenceDelimiter returns true if the trimmed line opens a fenced code block.
func isFenceDelimiter(trimmed string) bool {
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// isHeadingLine returns true if the trimmed line is an ATX heading.
func isHeadingLine(trimmed string) bool {
	if trimmed == "" || trimmed[0] != '#' {
		return false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n > 6 {
		return false
	}
	return n == len(trimmed) || trimmed[n] == ' ' || trimmed[n] == '\t'
}

// isThematicBreak returns true if the trimmed line is a thematic break
// (---, ***, ___ with optional interior spaces).
func isThematicBreak(trimmed string) bool {
	if len(trimmed) < 3 {
		return false
	}

	char := rune(trimmed[0])
	if char != '-' && char != '*' && char != '_' {
		return false
	}

	count := 0
	for _, c := range trimmed {
		if c == char {
			count++
		} else if c != ' ' && c != '\t' {
			return false
		}
	}

	return count >= 3
}

// isSetextUnderline returns true if the line is a setext heading underline.
func isSetextUnderline(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}

	char := trimmed[0]
	if char != '=' && char != '-' {
		return false
	}

	for _, c := range trimmed {
		if byte(c) != char {
			return false
		}
	}

	return true
}

// parseFence extracts fence info from a fence opening line.
func parseFence(line string) (char rune, length int, indent int) {
	indent = countLeadingSpaces(line)
	trimmed := strings.TrimLeft(line, " \t")

	if trimmed == "" {
		return 0, 0, 0
	}

	char = rune(trimmed[0])
	for _, c := range trimmed {
		if c != char {
			break
		}
		length++
	}

	return char, length, indent
}

// isClosingFence returns true if the line closes the open fence. The closing
// fence must use the same character and be at least as long as the opener.
func isClosingFence(line string, openChar rune, openLen int, openIndent int) bool {
	indent := countLeadingSpaces(line)
	if indent > 3 && indent > openIndent+3 {
		return false
	}

	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return false
	}

	if rune(trimmed[0]) != openChar {
		return false
	}

	fenceLen := 0
	for _, c := range trimmed {
		if c == openChar {
			fenceLen++
		} else if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			break
		} else {
			// An info string after the fence chars means a new opener, not a close
			return false
		}
	}

	return fenceLen >= openLen
}

// countLeadingSpaces returns the number of leading whitespace characters.
// Tabs count as 1, which is enough for indent comparisons here.
func countLeadingSpaces(line string) int {
	count := 0
	for _, c := range line {
		if c != ' ' && c != '\t' {
			break
		}
		count++
	}
	return count
}
