package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/samsaffron/term-agent/internal/input"
	"github.com/samsaffron/term-agent/internal/signal"
	"github.com/samsaffron/term-agent/internal/ui"
)

var (
	filesSession string
	filesLimit   int
	filesOffset  int
	filesOutput  string
	filesForce   bool
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage uploaded files",
	Long: `Upload files for the agent to read, and inspect what is already on
the server. Running 'files' with no subcommand lists them.`,
	RunE: runFilesList,
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <files...>",
	Short: "Upload files to the server",
	Long: `Upload one or more files. Specs accept globs ('**' recurses) and the
word "clipboard"; config exclude patterns and the size cap apply.

Examples:
  term-agent files upload report.pdf
  term-agent files upload "docs/**/*.md" --session 4f2a...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFilesUpload,
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded files",
	RunE:  runFilesList,
}

var filesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Preview or download an uploaded file",
	Long: `Fetch a file's content. Text is printed with syntax highlighting and
images render inline on capable terminals; --output saves to disk instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilesGet,
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an uploaded file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesDelete,
}

func init() {
	filesCmd.PersistentFlags().StringVar(&filesSession, "session", "", "Scope to a conversation id")
	filesListCmd.Flags().IntVar(&filesLimit, "limit", 50, "Maximum number of files")
	filesListCmd.Flags().IntVar(&filesOffset, "offset", 0, "Skip this many files")
	filesGetCmd.Flags().StringVarP(&filesOutput, "output", "o", "", "Save to this path instead of previewing")
	filesDeleteCmd.Flags().BoolVarP(&filesForce, "force", "f", false, "Skip the confirmation prompt")

	filesCmd.AddCommand(filesUploadCmd, filesListCmd, filesGetCmd, filesDeleteCmd)
	rootCmd.AddCommand(filesCmd)
}

func runFilesUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	files, err := input.ReadFiles(args, input.Options{
		Exclude:   cfg.Files.Exclude,
		MaxSizeKB: cfg.Files.MaxSizeKB,
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files matched")
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	styles := ui.DefaultStyles()
	failed := 0
	for _, f := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		uploaded, err := client.UploadFile(ctx, filesSession, f.Path, strings.NewReader(f.Content))
		if err != nil {
			failed++
			fmt.Println(styles.FormatResult(false, fmt.Sprintf("%s: %v", f.Path, err)))
			continue
		}
		fmt.Println(styles.FormatResult(true,
			fmt.Sprintf("%s (%s) id=%s", f.Path, formatBytes(int64(len(f.Content))), uploaded.ID)))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(files))
	}
	return nil
}

func runFilesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	files, err := client.ListFiles(ctx, filesSession, filesLimit, filesOffset)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No files uploaded.")
		return nil
	}

	fmt.Printf("%-36s %-28s %9s %-10s %s\n", "ID", "FILENAME", "SIZE", "STATUS", "UPLOADED")
	fmt.Println(strings.Repeat("-", 98))
	for _, f := range files {
		fmt.Printf("%-36s %s %9s %-10s %s\n",
			f.ID, truncateCell(f.Filename, 28), formatBytes(f.FileSize),
			f.ProcessingStatus, formatRelativeTime(parseServerTime(f.UploadedAt)))
	}
	return nil
}

func runFilesGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	meta, err := client.GetFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("file %s: %w", args[0], err)
	}
	data, contentType, err := client.FileContent(ctx, meta.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch content: %w", err)
	}

	if filesOutput != "" {
		if err := os.WriteFile(filesOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		fmt.Println(ui.DefaultStyles().FormatResult(true,
			fmt.Sprintf("Saved %s (%s)", filesOutput, formatBytes(int64(len(data))))))
		return nil
	}

	styles := ui.DefaultStyles()
	fmt.Println(styles.Title.Render(meta.Filename))
	fmt.Println(styles.Muted.Render(fmt.Sprintf("%s | %s | %s | uploaded %s",
		displayContentType(contentType, meta.FileType), formatBytes(int64(len(data))),
		meta.ProcessingStatus, formatRelativeTime(parseServerTime(meta.UploadedAt)))))
	fmt.Println()

	switch {
	case isImageContent(contentType, meta.Filename):
		return previewImage(meta.Filename, data, styles)
	case looksBinary(data):
		fmt.Println(styles.Muted.Render("binary content; rerun with --output to save it"))
		return nil
	default:
		previewText(meta.Filename, data, styles)
		return nil
	}
}

// previewImage renders fetched image bytes inline. The renderer reads
// from a path, so the bytes take a detour through a temp file.
func previewImage(filename string, data []byte, styles *ui.Styles) error {
	if ui.DetectImageCapability() == ui.CapNone {
		fmt.Println(styles.Muted.Render("this terminal cannot show images; rerun with --output to save it"))
		return nil
	}
	tmp, err := os.CreateTemp("", "term-agent-*"+filepath.Ext(filename))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := ui.WriteInlineImage(os.Stdout, tmp.Name()); err != nil {
		return fmt.Errorf("image preview failed: %w", err)
	}
	fmt.Println()
	return nil
}

// filePreviewLines caps how much of a text file the preview prints.
const filePreviewLines = 200

func previewText(filename string, data []byte, styles *ui.Styles) {
	h := ui.HighlighterForFile(filename)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	shown := lines
	if len(shown) > filePreviewLines {
		shown = shown[:filePreviewLines]
	}
	for _, line := range shown {
		fmt.Println(h.HighlightLine(line))
	}
	if rest := len(lines) - len(shown); rest > 0 {
		fmt.Println(styles.Muted.Render(fmt.Sprintf("... (%d more lines; use --output for the whole file)", rest)))
	}
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	meta, err := client.GetFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("file %s: %w", args[0], err)
	}

	if !filesForce {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q from the server?", meta.Filename)).
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := client.DeleteFile(ctx, meta.ID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Println(ui.DefaultStyles().FormatResult(true, "Deleted "+meta.Filename))
	return nil
}

func displayContentType(contentType, fileType string) string {
	if contentType != "" {
		if idx := strings.IndexByte(contentType, ';'); idx > 0 {
			contentType = contentType[:idx]
		}
		return contentType
	}
	if fileType != "" {
		return fileType
	}
	return "unknown type"
}

func isImageContent(contentType, filename string) bool {
	if strings.HasPrefix(contentType, "image/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

func looksBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data)
}

// formatBytes formats a size in human units.
func formatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%dB", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(n)/1024)
	case n < 1024*1024*1024:
		return fmt.Sprintf("%.1fMB", float64(n)/(1024*1024))
	default:
		return fmt.Sprintf("%.1fGB", float64(n)/(1024*1024*1024))
	}
}
