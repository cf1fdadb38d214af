package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

const defaultDPI = 150

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// PDFRenderer turns a PDF into one JPEG per page. Image files pass through as a single page.
type PDFRenderer struct {
	dpi      float64
	maxPages int
	logger   *zap.Logger
}

// NewPDFRenderer creates a renderer. maxPages <= 0 renders every page.
func NewPDFRenderer(dpi float64, maxPages int, logger *zap.Logger) *PDFRenderer {
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return &PDFRenderer{
		dpi:      dpi,
		maxPages: maxPages,
		logger:   logger,
	}
}

// IsSupported reports whether path has a renderable extension
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".pdf" || imageExtensions[ext]
}

// Pages renders the document at path
func (r *PDFRenderer) Pages(ctx context.Context, path string) ([]port.Page, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("document not found: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if imageExtensions[ext] {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		return []port.Page{{Number: 1, Image: data}}, nil
	}
	if ext != ".pdf" {
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if r.maxPages > 0 && pageCount > r.maxPages {
		r.logger.Info("Limiting rendered pages",
			zap.String("path", path),
			zap.Int("page_count", pageCount),
			zap.Int("max_pages", r.maxPages))
		pageCount = r.maxPages
	}

	pages := make([]port.Page, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		img, err := doc.ImageDPI(i, r.dpi)
		if err != nil {
			r.logger.Warn("Failed to render page", zap.Int("page", i+1), zap.Error(err))
			continue
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
			r.logger.Warn("Failed to encode page", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		pages = append(pages, port.Page{Number: i + 1, Image: buf.Bytes()})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages rendered from %s", filepath.Base(path))
	}

	r.logger.Debug("Rendered document", zap.String("path", path), zap.Int("pages", len(pages)))
	return pages, nil
}

var _ port.DocumentRenderer = (*PDFRenderer)(nil)
