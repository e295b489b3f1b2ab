package tools

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammad-safakhou/parsec/internal/stream"
)

// Reports backs generate_report: writes rendered report content into the
// reports directory and hands a download locator back over the stream.
type Reports struct {
	dir string
	// signURL builds the client-facing download URL for a saved report.
	signURL func(filename string) string
	logger  *log.Logger
}

func NewReports(dir string, signURL func(filename string) string) *Reports {
	if signURL == nil {
		signURL = func(filename string) string { return "/api/reports/" + filename }
	}
	return &Reports{
		dir:     dir,
		signURL: signURL,
		logger:  log.New(log.Writer(), "[REPORT] ", log.LstdFlags),
	}
}

func (r *Reports) Tool() Tool {
	return Tool{
		Def: defGenerateReport,
		Run: r.run,
		Side: func(result map[string]any) *stream.Event {
			filename, _ := result["filename"].(string)
			format, _ := result["format"].(string)
			if filename == "" {
				return nil
			}
			ev := stream.Report(filename, format, r.signURL(filename))
			return &ev
		},
	}
}

func (r *Reports) run(ctx context.Context, input map[string]any) map[string]any {
	title := strArg(input, "title", "")
	if title == "" {
		return map[string]any{"error": "title is required"}
	}
	content := strArg(input, "content", "")
	if content == "" {
		return map[string]any{"error": "content is required"}
	}
	format := strArg(input, "format", "markdown")
	if format != "markdown" && format != "asciidoc" {
		return map[string]any{"error": fmt.Sprintf("Invalid format: %s. Use markdown or asciidoc.", format)}
	}
	ext := ".md"
	if format == "asciidoc" {
		ext = ".adoc"
	}

	filename := strArg(input, "filename", "")
	if filename == "" {
		filename = "investigation_report_" + time.Now().UTC().Format("2006-01-02")
	}
	// Keep generated names inside the reports dir.
	filename = filepath.Base(strings.TrimSuffix(filename, ext))
	if filename == "." || filename == string(filepath.Separator) {
		return map[string]any{"error": "Invalid report filename"}
	}
	fullName := filename + ext

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return map[string]any{"error": fmt.Sprintf("Report save failed: %v", err)}
	}
	path := filepath.Join(r.dir, fullName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return map[string]any{"error": fmt.Sprintf("Report save failed: %v", err)}
	}
	r.logger.Printf("report saved: %s", path)

	return map[string]any{
		"filename":   fullName,
		"format":     format,
		"title":      title,
		"path":       path,
		"size_bytes": len(content),
	}
}

var defGenerateReport = toolDef("generate_report",
	"Generate a formatted report file the investigator can download. "+
		"Write the full report content; it is saved as-is. Only use when the user "+
		"asks for a report.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":    map[string]any{"type": "string", "description": "Report title."},
			"content":  map[string]any{"type": "string", "description": "Full report body in the chosen format."},
			"format":   map[string]any{"type": "string", "enum": []string{"markdown", "asciidoc"}, "description": "Output format. Default: markdown."},
			"filename": map[string]any{"type": "string", "description": "Base filename without extension. Default: investigation_report_<date>."},
		},
		"required": []string{"title", "content"},
	})
