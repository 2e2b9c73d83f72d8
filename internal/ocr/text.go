package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// TextExtractor turns a PDF into one text blob, pages in order
type TextExtractor interface {
	Extract(ctx context.Context, pdf []byte) (string, error)
}

// TextConfig configures rasterization and tesseract
type TextConfig struct {
	Tesseract   string
	Lang        string
	TessdataDir string
	DPI         float64
	// MaxPages limits how many pages are OCRed; 0 means all
	MaxPages int
}

func (c TextConfig) withDefaults() TextConfig {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Lang == "" {
		c.Lang = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}

// PDFTextExtractor rasterizes pages with MuPDF and OCRs each one with tesseract
type PDFTextExtractor struct {
	cfg    TextConfig
	runner Runner
	logger *zap.Logger
}

// NewPDFTextExtractor creates a text extractor
func NewPDFTextExtractor(cfg TextConfig, runner Runner, logger *zap.Logger) *PDFTextExtractor {
	return &PDFTextExtractor{
		cfg:    cfg.withDefaults(),
		runner: runner,
		logger: logger,
	}
}

// Extract returns entity.ErrUnsupportedFormat when the buffer cannot be
// opened or rasterized. Tesseract failures are returned as is.
func (e *PDFTextExtractor) Extract(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", fmt.Errorf("%w: empty document", entity.ErrUnsupportedFormat)
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", entity.ErrUnsupportedFormat, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return "", fmt.Errorf("%w: document has no pages", entity.ErrUnsupportedFormat)
	}
	if e.cfg.MaxPages > 0 && pageCount > e.cfg.MaxPages {
		e.logger.Debug("Truncating pages", zap.Int("pages", pageCount), zap.Int("max_pages", e.cfg.MaxPages))
		pageCount = e.cfg.MaxPages
	}

	tmpDir, err := os.MkdirTemp("", "ocr-pages-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	var b strings.Builder
	for page := 0; page < pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		img, err := doc.ImagePNG(page, e.cfg.DPI)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", entity.ErrUnsupportedFormat, page+1, err)
		}

		path := filepath.Join(tmpDir, fmt.Sprintf("page-%03d.png", page+1))
		if err := os.WriteFile(path, img, 0600); err != nil {
			return "", fmt.Errorf("failed to write page image: %w", err)
		}

		txt, err := e.tesseract(ctx, path)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page+1, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(txt)
	}

	e.logger.Debug("Extracted document text",
		zap.Int("pages", pageCount),
		zap.Int("chars", b.Len()))
	return b.String(), nil
}

// tesseract <file> stdout -l <lang>
func (e *PDFTextExtractor) tesseract(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return strings.TrimSpace(string(out)), nil
}
