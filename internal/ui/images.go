package ui

import (
	"fmt"
	goimage "image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/BourgeoisBear/rasterm"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageCapability represents the terminal's inline image support
type ImageCapability int

const (
	CapNone  ImageCapability = iota // No image support
	CapKitty                        // Kitty graphics protocol
	CapITerm                        // iTerm2 inline images
	CapSixel                        // Sixel graphics
)

// String returns the capability name
func (c ImageCapability) String() string {
	switch c {
	case CapKitty:
		return "kitty"
	case CapITerm:
		return "iterm"
	case CapSixel:
		return "sixel"
	default:
		return "none"
	}
}

// DetectImageCapability sniffs the terminal's image protocol from the
// environment. Detection order: Kitty, iTerm, Sixel.
func DetectImageCapability() ImageCapability {
	// Check Kitty first (KITTY_WINDOW_ID or TERM)
	if os.Getenv("KITTY_WINDOW_ID") != "" {
		return CapKitty
	}
	if strings.Contains(os.Getenv("TERM"), "kitty") {
		return CapKitty
	}

	// Check iTerm2 (TERM_PROGRAM or LC_TERMINAL)
	termProgram := os.Getenv("TERM_PROGRAM")
	if termProgram == "iTerm.app" {
		return CapITerm
	}
	if os.Getenv("LC_TERMINAL") == "iTerm2" {
		return CapITerm
	}

	// WezTerm supports the iTerm protocol
	if termProgram == "WezTerm" {
		return CapITerm
	}

	// Ghostty supports the Kitty protocol
	if termProgram == "ghostty" {
		return CapKitty
	}

	// Sixel support via TERM
	term := os.Getenv("TERM")
	if strings.Contains(term, "sixel") || strings.Contains(term, "mlterm") {
		return CapSixel
	}

	return CapNone
}

// maxPreviewWidth caps the pixel width of inline previews
const maxPreviewWidth = 800

// WriteInlineImage renders the image at path as terminal escape sequences.
// Oversized images are scaled down first. On terminals without image support
// it writes nothing and returns nil.
func WriteInlineImage(w io.Writer, path string) error {
	c := DetectImageCapability()
	if c == CapNone {
		return nil
	}

	img, err := loadImage(path)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	img = scaleImageIfNeeded(img, maxPreviewWidth)

	switch c {
	case CapKitty:
		return rasterm.KittyWriteImage(w, img, rasterm.KittyImgOpts{})
	case CapITerm:
		return rasterm.ItermWriteImage(w, img)
	case CapSixel:
		// Sixel requires a paletted image
		return rasterm.SixelWriteImage(w, convertToPaletted(img))
	default:
		return nil
	}
}

// loadImage loads an image from a file path
func loadImage(path string) (goimage.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := goimage.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// scaleImageIfNeeded scales the image down if it exceeds maxWidth
func scaleImageIfNeeded(img goimage.Image, maxWidth int) goimage.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxWidth {
		return img
	}

	newWidth := maxWidth
	newHeight := (height * maxWidth) / width

	dst := goimage.NewRGBA(goimage.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// convertToPaletted converts an image to a paletted image for Sixel output
func convertToPaletted(img goimage.Image) *goimage.Paletted {
	bounds := img.Bounds()

	// 6x6x6 color cube (216 colors) plus 40 grays
	palette := make(color.Palette, 256)
	idx := 0
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				palette[idx] = color.RGBA{
					R: uint8(r * 51),
					G: uint8(g * 51),
					B: uint8(b * 51),
					A: 255,
				}
				idx++
			}
		}
	}
	for i := 0; i < 40; i++ {
		gray := uint8(i * 255 / 39)
		palette[idx] = color.RGBA{R: gray, G: gray, B: gray, A: 255}
		idx++
	}

	paletted := goimage.NewPaletted(bounds, palette)
	draw.FloydSteinberg.Draw(paletted, bounds, img, bounds.Min)
	return paletted
}
