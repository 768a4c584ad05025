package ui

import (
	"bytes"
	goimage "image"
	"testing"
)

func clearImageEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KITTY_WINDOW_ID", "")
	t.Setenv("TERM", "")
	t.Setenv("TERM_PROGRAM", "")
	t.Setenv("LC_TERMINAL", "")
}

func TestDetectImageCapability(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want ImageCapability
	}{
		{"kitty window id", map[string]string{"KITTY_WINDOW_ID": "1"}, CapKitty},
		{"kitty term", map[string]string{"TERM": "xterm-kitty"}, CapKitty},
		{"iterm", map[string]string{"TERM_PROGRAM": "iTerm.app"}, CapITerm},
		{"lc terminal", map[string]string{"LC_TERMINAL": "iTerm2"}, CapITerm},
		{"wezterm", map[string]string{"TERM_PROGRAM": "WezTerm"}, CapITerm},
		{"ghostty", map[string]string{"TERM_PROGRAM": "ghostty"}, CapKitty},
		{"sixel term", map[string]string{"TERM": "mlterm"}, CapSixel},
		{"plain xterm", map[string]string{"TERM": "xterm-256color"}, CapNone},
		{"nothing set", nil, CapNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearImageEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := DetectImageCapability(); got != tt.want {
				t.Errorf("DetectImageCapability() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestImageCapabilityString(t *testing.T) {
	tests := []struct {
		c    ImageCapability
		want string
	}{
		{CapNone, "none"},
		{CapKitty, "kitty"},
		{CapITerm, "iterm"},
		{CapSixel, "sixel"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestWriteInlineImageWithoutCapability(t *testing.T) {
	clearImageEnv(t)

	var buf bytes.Buffer
	if err := WriteInlineImage(&buf, "/no/such/image.png"); err != nil {
		t.Fatalf("expected nil error without image support, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output without image support, got %d bytes", buf.Len())
	}
}

func TestScaleImageIfNeeded(t *testing.T) {
	big := goimage.NewRGBA(goimage.Rect(0, 0, 1600, 800))
	scaled := scaleImageIfNeeded(big, 800)
	if scaled.Bounds().Dx() != 800 || scaled.Bounds().Dy() != 400 {
		t.Errorf("expected 800x400 after scaling, got %dx%d",
			scaled.Bounds().Dx(), scaled.Bounds().Dy())
	}

	small := goimage.NewRGBA(goimage.Rect(0, 0, 200, 100))
	if got := scaleImageIfNeeded(small, 800); got != small {
		t.Error("expected small image returned unchanged")
	}
}
