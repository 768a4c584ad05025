package input

import (
	"fmt"
	"strconv"
	"strings"
)

// FileSpec is a file path with an optional 1-indexed line region.
type FileSpec struct {
	Path      string
	StartLine int // 0 means from the first line
	EndLine   int // 0 means through the last line
	HasRegion bool
}

// ParseFileSpec parses an attachment argument of the form "path[:start-end]".
// Accepted forms:
//
//	notes.md        whole file
//	notes.md:11-22  lines 11 through 22
//	notes.md:11-    line 11 through the end
//	notes.md:-22    start of file through line 22
//
// A colon suffix that does not look like a line range stays part of the
// path, so file names containing colons still resolve.
func ParseFileSpec(spec string) (FileSpec, error) {
	if spec == "" {
		return FileSpec{}, fmt.Errorf("empty file spec")
	}

	idx := strings.LastIndex(spec, ":")
	if idx <= 0 {
		return FileSpec{Path: spec}, nil
	}

	start, end, ok := parseLineRange(spec[idx+1:])
	if !ok {
		return FileSpec{Path: spec}, nil
	}

	return FileSpec{
		Path:      spec[:idx],
		StartLine: start,
		EndLine:   end,
		HasRegion: true,
	}, nil
}

// parseLineRange parses "11-22", "11-" or "-22". An empty side leaves that
// end open. Anything else is not a range.
func parseLineRange(s string) (start, end int, ok bool) {
	dash := strings.IndexByte(s, '-')
	if dash < 0 {
		return 0, 0, false
	}

	left, right := s[:dash], s[dash+1:]
	if left == "" && right == "" {
		return 0, 0, false
	}
	if left != "" {
		n, err := strconv.Atoi(left)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		start = n
	}
	if right != "" {
		n, err := strconv.Atoi(right)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		end = n
	}
	return start, end, true
}

// ExtractLines returns the 1-indexed inclusive line range of content.
// A zero start means from the beginning, a zero end means through the end.
func ExtractLines(content string, startLine, endLine int) string {
	lines := strings.Split(content, "\n")
	total := len(lines)

	start := 0
	if startLine > 0 {
		start = startLine - 1
	}
	if start >= total {
		return ""
	}

	end := total
	if endLine > 0 && endLine < total {
		end = endLine
	}
	if start >= end {
		return ""
	}

	return strings.Join(lines[start:end], "\n")
}

// LabelFor returns the display path for a file resolved from this spec,
// with the line region appended when one was given. Open ends stay open,
// so the label parses back to the same spec.
func (fs FileSpec) LabelFor(path string) string {
	if !fs.HasRegion {
		return path
	}
	var start, end string
	if fs.StartLine > 0 {
		start = strconv.Itoa(fs.StartLine)
	}
	if fs.EndLine > 0 {
		end = strconv.Itoa(fs.EndLine)
	}
	return fmt.Sprintf("%s:%s-%s", path, start, end)
}
