package ui

import (
	"strings"
	"testing"
)

func TestRenderMarkdownEmpty(t *testing.T) {
	if got := RenderMarkdown("", 80); got != "" {
		t.Errorf("expected empty output for empty input, got %q", got)
	}
}

func TestRenderMarkdownWithError(t *testing.T) {
	out, err := RenderMarkdownWithError("# Title\n\nSome *emphasis* here.", 80)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(out, "Title") {
		t.Errorf("expected heading text in output, got %q", out)
	}
	if out != strings.TrimSpace(out) {
		t.Errorf("expected trimmed output, got %q", out)
	}
}

func TestRenderMarkdownReusesRenderer(t *testing.T) {
	first := RenderMarkdown("plain text", 60)
	second := RenderMarkdown("plain text", 60)
	if first != second {
		t.Errorf("expected identical output across calls: %q vs %q", first, second)
	}
	if _, ok := rendererCache.Load(60); !ok {
		t.Errorf("expected a cached renderer for width 60")
	}
}
