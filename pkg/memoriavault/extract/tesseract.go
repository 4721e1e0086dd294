package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// TesseractConfig configures the tesseract OCR adapter.
type TesseractConfig struct {
	Path     string `yaml:"tesseract_path"`
	Language string `yaml:"language"`
}

// Tesseract runs the tesseract binary on image bytes.
type Tesseract struct {
	config TesseractConfig
	logger *slog.Logger
}

// NewTesseract creates a tesseract OCR adapter.
func NewTesseract(cfg TesseractConfig, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{config: cfg, logger: logger.With("component", "ocr", "engine", "tesseract")}
}

// Available reports whether the tesseract binary can be found.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.config.Path)
	return err == nil
}

// ExtractText implements TextExtractor. The image is piped through stdin so
// nothing is written to disk.
func (t *Tesseract) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	bin, err := exec.LookPath(t.config.Path)
	if err != nil {
		return "", fmt.Errorf("%w: tesseract not found (install tesseract-ocr)", ErrUnavailable)
	}

	// --oem 3: default engine, --psm 6: assume a uniform block of text.
	cmd := exec.CommandContext(ctx, bin, "stdin", "stdout", "--oem", "3", "--psm", "6", "-l", t.config.Language)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := CleanText(stdout.String())
	t.logger.Debug("ocr complete", "mime", mimeType, "chars", len(text))
	return text, nil
}

// CleanText normalizes extracted text: lines are trimmed, empty lines
// dropped, and runs of whitespace collapsed to one space.
func CleanText(s string) string {
	var parts []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
