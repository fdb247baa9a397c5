package main

import (
	"flag"
	"fmt"
	"image/png"
	"os"

	"github.com/drummonds/goPageTurn/engine/pdfrenderer"
)

// render rasterizes a single PDF page to a PNG file. Handy for checking a
// document before serving it, without starting the server.
func main() {
	input := flag.String("in", "", "Path to the PDF document")
	output := flag.String("out", "page.png", "Path for the PNG output")
	page := flag.Int("page", 0, "Zero-based page index")
	scale := flag.Float64("scale", 2.0, "Render scale relative to the page's natural size")
	validate := flag.Bool("validate", true, "Validate the PDF before rendering")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: render -in document.pdf [-out page.png] [-page 0] [-scale 2.0]")
		os.Exit(2)
	}

	opener := pdfrenderer.NewOpener(*validate)
	doc, err := opener.Open(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *input, err)
		os.Exit(1)
	}
	defer doc.Close()

	width, height, err := doc.PageSize(*page)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read page %d of %d: %v\n", *page, doc.PageCount(), err)
		os.Exit(1)
	}

	img, err := doc.Rasterize(*page, int(width**scale), int(height**scale))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to rasterize page %d: %v\n", *page, err)
		os.Exit(1)
	}

	file, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", *output, err)
		os.Exit(1)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode PNG: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s (%dx%d, page %d of %d)\n",
		*output, img.Bounds().Dx(), img.Bounds().Dy(), *page, doc.PageCount())
}
