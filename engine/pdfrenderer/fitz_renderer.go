package pdfrenderer

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// FitzOpener opens documents using go-fitz (requires CGo and MuPDF)
type FitzOpener struct {
	// Validate runs a pdfcpu structural validation before handing the file
	// to MuPDF, so corrupt documents fail at open time rather than at the
	// first rasterize.
	Validate bool
}

// Open opens a PDF document and returns a rasterizable handle
func (opener FitzOpener) Open(path string) (Document, error) {
	if opener.Validate {
		if err := api.ValidateFile(path, nil); err != nil {
			return nil, fmt.Errorf("document failed validation: %w", err)
		}
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	return &fitzDocument{doc: doc, pages: doc.NumPage()}, nil
}

// fitzDocument wraps a fitz.Document, which is not safe for concurrent use,
// behind a mutex. The page count is read once at open time.
type fitzDocument struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func (d *fitzDocument) PageCount() int {
	return d.pages
}

func (d *fitzDocument) PageSize(pageIndex int) (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, 0, ErrDocumentClosed
	}
	if pageIndex < 0 || pageIndex >= d.pages {
		return 0, 0, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, pageIndex, d.pages)
	}
	bounds, err := d.doc.Bound(pageIndex)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to measure page %d: %w", pageIndex, err)
	}
	return float64(bounds.Dx()), float64(bounds.Dy()), nil
}

// Rasterize renders one page via MuPDF. The DPI is derived from the page's
// native bounds so the output fits inside targetWidth x targetHeight.
func (d *fitzDocument) Rasterize(pageIndex, targetWidth, targetHeight int) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	if pageIndex < 0 || pageIndex >= d.pages {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, pageIndex, d.pages)
	}

	bounds, err := d.doc.Bound(pageIndex)
	if err != nil {
		return nil, fmt.Errorf("unable to measure page %d: %w", pageIndex, err)
	}

	// Page bounds come back at 72 DPI, one pixel per point.
	dpi := 72.0
	if bounds.Dx() > 0 && bounds.Dy() > 0 && targetWidth > 0 && targetHeight > 0 {
		scale := math.Min(
			float64(targetWidth)/float64(bounds.Dx()),
			float64(targetHeight)/float64(bounds.Dy()))
		dpi = 72.0 * scale
	}

	img, err := d.doc.ImageDPI(pageIndex, dpi)
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", pageIndex, err)
	}
	return img, nil
}

// Close releases the MuPDF document. Safe to call more than once.
func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}
