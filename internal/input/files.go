// Package input collects prompt attachments: files named on the command
// line, glob expansions, line regions, clipboard text and piped stdin.
package input

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"golang.org/x/term"

	"github.com/samsaffron/term-agent/internal/clipboard"
)

// FileContent is one attachment ready to embed in a prompt or upload.
type FileContent struct {
	Path    string // Display path, or "clipboard"
	Content string
}

// Options control attachment collection.
type Options struct {
	Exclude   []string // Glob patterns dropped from expansion results
	MaxSizeKB int      // Per-file cap, 0 means unlimited
}

// ReadFiles resolves attachment specs into file contents.
//
// Each spec may be a literal path, a glob pattern ("**" recurses), a path
// with a line region ("main.go:11-22"), or the word "clipboard" which pulls
// the system clipboard. Matches are filtered through opts.Exclude; exclude
// patterns without a slash apply to the base name, the rest to the whole
// path. A file over opts.MaxSizeKB is an error, not a silent skip.
func ReadFiles(specs []string, opts Options) ([]FileContent, error) {
	excludes, err := compileExcludes(opts.Exclude)
	if err != nil {
		return nil, err
	}

	var result []FileContent

	for _, raw := range specs {
		if strings.EqualFold(raw, "clipboard") {
			content, err := clipboard.ReadText()
			if err != nil {
				return nil, fmt.Errorf("failed to read clipboard: %w", err)
			}
			result = append(result, FileContent{Path: "clipboard", Content: content})
			continue
		}

		spec, err := ParseFileSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid file spec %q: %w", raw, err)
		}

		pattern := expandPath(spec.Path)
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", spec.Path, err)
		}

		if len(matches) == 0 {
			if containsGlobChars(pattern) {
				// Pattern matched nothing, leave it out
				continue
			}
			matches = []string{pattern}
		}

		for _, match := range matches {
			if excludes.match(match) {
				continue
			}

			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %q: %w", match, err)
			}
			if info.IsDir() {
				continue
			}
			if opts.MaxSizeKB > 0 && info.Size() > int64(opts.MaxSizeKB)*1024 {
				return nil, fmt.Errorf("%s is %dKB, over the files.max_size_kb limit of %dKB",
					match, info.Size()/1024, opts.MaxSizeKB)
			}

			data, err := os.ReadFile(match)
			if err != nil {
				return nil, fmt.Errorf("failed to read %q: %w", match, err)
			}

			content := string(data)
			if spec.HasRegion {
				content = ExtractLines(content, spec.StartLine, spec.EndLine)
			}

			result = append(result, FileContent{
				Path:    spec.LabelFor(match),
				Content: content,
			})
		}
	}

	return result, nil
}

// excludeRule is one compiled files.exclude pattern. Patterns without a
// path separator match the base name only.
type excludeRule struct {
	g        glob.Glob
	basename bool
}

type excludeSet []excludeRule

func compileExcludes(patterns []string) (excludeSet, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	rules := make(excludeSet, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid files.exclude pattern %q: %w", p, err)
		}
		rules = append(rules, excludeRule{g: g, basename: !strings.Contains(p, "/")})
	}
	return rules, nil
}

func (s excludeSet) match(path string) bool {
	if len(s) == 0 {
		return false
	}
	full := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, r := range s {
		if r.basename {
			if r.g.Match(base) {
				return true
			}
		} else if r.g.Match(full) {
			return true
		}
	}
	return false
}

// HasStdin returns true if stdin has data available (not a TTY)
func HasStdin() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	// Check if stdin is a pipe or has data
	return (fi.Mode()&os.ModeCharDevice) == 0 || fi.Size() > 0
}

// ReadStdin reads all content from stdin.
// Returns empty string if stdin is a TTY or has no data.
func ReadStdin() (string, error) {
	if !HasStdin() {
		return "", nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}

	return string(data), nil
}

// FormatFilesXML formats file contents with prompt-safe delimiters.
func FormatFilesXML(files []FileContent, stdin string) string {
	if len(files) == 0 && stdin == "" {
		return ""
	}

	var sb strings.Builder

	for _, f := range files {
		sb.WriteString("<<<<< FILE: ")
		sb.WriteString(f.Path)
		sb.WriteString(" >>>>>\n")
		sb.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("<<<<< END FILE >>>>>\n")
	}

	if stdin != "" {
		sb.WriteString("<<<<< STDIN >>>>>\n")
		sb.WriteString(stdin)
		if !strings.HasSuffix(stdin, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("<<<<< END STDIN >>>>>\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// expandPath expands a leading ~/ to the home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// containsGlobChars reports whether path has glob metacharacters,
// including the {a,b} alternates doublestar accepts.
func containsGlobChars(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
