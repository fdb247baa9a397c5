package pdfrenderer

import (
	"errors"
	"image"
)

// Errors returned by document handles.
var (
	// ErrPageOutOfRange reports a page index outside [0, PageCount).
	ErrPageOutOfRange = errors.New("page index out of range")
	// ErrDocumentClosed reports a render request after Close.
	ErrDocumentClosed = errors.New("document is closed")
)

// Document is an open document session: a fixed page count plus a per-page
// rasterization operation. Implementations must be safe for concurrent use;
// the underlying decoder is an exclusively-owned resource, so calls may be
// serialized internally.
type Document interface {
	// PageCount reports the number of pages. Fixed for the document's lifetime.
	PageCount() int

	// PageSize returns the native size of a page in points.
	PageSize(pageIndex int) (width, height float64, err error)

	// Rasterize decodes one page into a bitmap that fits the given pixel
	// size (aspect ratio of the page is preserved). Returns
	// ErrPageOutOfRange for a bad index and ErrDocumentClosed after Close.
	Rasterize(pageIndex, targetWidth, targetHeight int) (*image.RGBA, error)

	// Close releases the underlying decoder. Idempotent; renders after
	// Close fail with ErrDocumentClosed.
	Close() error
}

// Opener opens a document from a file path.
type Opener interface {
	Open(path string) (Document, error)
}

// NewOpener creates the default MuPDF-backed opener.
func NewOpener(validate bool) Opener {
	return FitzOpener{Validate: validate}
}
