package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// PageText is the text recovered from one page.
type PageText struct {
	PageNumber int
	Text       string
}

// Extraction is everything the later stages need from a PDF.
type Extraction struct {
	// Text is the page texts joined by a blank line.
	Text      string
	Pages     []PageText
	Images    []models.ImageRecord
	PageCount int
	// Tagged is true when the catalog carries a structure tree.
	Tagged bool
}

// ExtractorOptions tunes image admission.
type ExtractorOptions struct {
	// MaxImageBytes drops re-encoded images larger than this. 0 means no limit.
	MaxImageBytes int
}

// Extractor recovers text and raster images from PDF bytes.
type Extractor struct {
	opts ExtractorOptions
}

// NewExtractor returns an extractor with the given options.
func NewExtractor(opts ExtractorOptions) *Extractor {
	return &Extractor{opts: opts}
}

// Extract parses pdf. A document that cannot be read at all yields an
// *models.ExtractionError; a page or image that cannot be decoded is logged
// and skipped.
func (e *Extractor) Extract(ctx context.Context, pdf []byte) (result *Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &models.ExtractionError{Op: "parse", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	pdfCtx, err := readContext(pdf)
	if err != nil {
		return nil, err
	}

	out := &Extraction{
		PageCount: pdfCtx.PageCount,
		Tagged:    hasStructTree(pdfCtx),
	}
	texts := make([]string, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		logCtx := slog.With("page", pageNr)

		pageDict, _, inherited, err := pdfCtx.PageDict(pageNr, false)
		if err != nil || pageDict == nil {
			logCtx.Warn("Could not resolve page; continuing without it.", "error", err)
			out.Pages = append(out.Pages, PageText{PageNumber: pageNr})
			texts = append(texts, "")
			continue
		}
		var resources types.Dict
		if inherited != nil {
			resources = inherited.Resources
		}

		text, err := pageText(logCtx, pdfCtx, pageDict, resources, pageNr)
		if err != nil {
			logCtx.Warn("Could not read page content; continuing without its text.", "error", err)
		}
		out.Pages = append(out.Pages, PageText{PageNumber: pageNr, Text: text})
		texts = append(texts, text)

		out.Images = append(out.Images, e.pageImages(logCtx, pdfCtx, resources, pageNr, text)...)
	}
	out.Text = strings.Join(texts, "\n\n")
	return out, nil
}

func readContext(pdf []byte) (*model.Context, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(pdf), cfg)
	if err != nil {
		return nil, &models.ExtractionError{Op: "read", Err: err}
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		// Readers accept plenty of files that fail validation; only a
		// missing page tree is fatal.
		slog.Warn("PDF failed validation; extracting anyway.", "error", err)
		if err := pdfCtx.EnsurePageCount(); err != nil {
			return nil, &models.ExtractionError{Op: "page count", Err: err}
		}
	}
	if pdfCtx.PageCount < 1 {
		return nil, &models.ExtractionError{Op: "page count", Err: fmt.Errorf("document has no pages")}
	}
	return pdfCtx, nil
}

func hasStructTree(pdfCtx *model.Context) bool {
	root, err := pdfCtx.Catalog()
	if err != nil || root == nil {
		return false
	}
	_, found := root.Find("StructTreeRoot")
	return found
}

// resourceDict resolves the sub dictionary d[key], or nil.
func resourceDict(pdfCtx *model.Context, d types.Dict, key string) types.Dict {
	if d == nil {
		return nil
	}
	o, found := d.Find(key)
	if !found || o == nil {
		return nil
	}
	sub, err := pdfCtx.DereferenceDict(o)
	if err != nil {
		return nil
	}
	return sub
}

func pageText(logCtx *slog.Logger, pdfCtx *model.Context, pageDict, resources types.Dict, pageNr int) (string, error) {
	content, err := pdfCtx.PageContent(pageDict, pageNr)
	if errors.Is(err, model.ErrNoContent) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return scanContentText(content, pageFonts(logCtx, pdfCtx, resources)), nil
}

// pageFonts builds decoders for the page fonts that need one: fonts with a
// ToUnicode CMap, and composite fonts, whose codes are never plain bytes.
func pageFonts(logCtx *slog.Logger, pdfCtx *model.Context, resources types.Dict) map[string]*fontDecoder {
	fontDicts := resourceDict(pdfCtx, resources, "Font")
	fonts := make(map[string]*fontDecoder, len(fontDicts))
	for name, obj := range fontDicts {
		fontDict, err := pdfCtx.DereferenceDict(obj)
		if err != nil || fontDict == nil {
			continue
		}
		subtype := fontDict.Subtype()
		composite := subtype != nil && *subtype == "Type0"

		var cmap []byte
		if o, found := fontDict.Find("ToUnicode"); found {
			sd, _, err := pdfCtx.DereferenceStreamDict(o)
			switch {
			case err != nil || sd == nil:
				// Predefined CMap names carry no table.
			case sd.Decode() != nil:
				logCtx.Debug("Skipping undecodable ToUnicode CMap.", "font", name)
			default:
				cmap = sd.Content
			}
		}
		if cmap == nil && !composite {
			continue
		}
		fonts[name] = parseToUnicode(cmap, composite)
	}
	return fonts
}

// maxFormDepth bounds the descent into nested form XObjects.
const maxFormDepth = 8

type imageRef struct {
	name  string
	objNr int
	sd    *types.StreamDict
}

// imageXObjects lists the image XObjects a page can draw, including those
// inside form XObjects, ordered by object number. Each object is listed once,
// so byte-identical images stored as separate objects keep separate entries.
func imageXObjects(pdfCtx *model.Context, resources types.Dict) []imageRef {
	var refs []imageRef
	seen := make(map[int]bool)
	var walk func(res types.Dict, depth int)
	walk = func(res types.Dict, depth int) {
		for name, obj := range resourceDict(pdfCtx, res, "XObject") {
			objNr := 0
			if ir, ok := obj.(types.IndirectRef); ok {
				objNr = ir.ObjectNumber.Value()
				if seen[objNr] {
					continue
				}
				seen[objNr] = true
			}
			sd, _, err := pdfCtx.DereferenceStreamDict(obj)
			if err != nil || sd == nil {
				continue
			}
			subtype := sd.Subtype()
			switch {
			case subtype == nil:
			case *subtype == "Image":
				refs = append(refs, imageRef{name: name, objNr: objNr, sd: sd})
			case *subtype == "Form" && depth < maxFormDepth:
				walk(resourceDict(pdfCtx, sd.Dict, "Resources"), depth+1)
			}
		}
	}
	walk(resources, 0)
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].objNr != refs[j].objNr {
			return refs[i].objNr < refs[j].objNr
		}
		return refs[i].name < refs[j].name
	})
	return refs
}

// pageImages decodes every image XObject on a page in object-number order.
// An image that fails to decode is skipped on its own; only admitted images
// consume an index in the image id.
func (e *Extractor) pageImages(logCtx *slog.Logger, pdfCtx *model.Context, resources types.Dict, pageNr int, text string) []models.ImageRecord {
	var records []models.ImageRecord
	for _, ref := range imageXObjects(pdfCtx, resources) {
		imgLog := logCtx.With("objNr", ref.objNr, "resource", ref.name)
		img, err := pdfcpu.ExtractImage(pdfCtx, ref.sd, false, ref.name, ref.objNr, false)
		if err != nil {
			imgLog.Warn("Skipping undecodable image.", "error", err)
			continue
		}
		if img == nil || img.Reader == nil {
			imgLog.Info("Skipping image with an unsupported filter.")
			continue
		}
		pngBytes, bounds, err := reencodePNG(img.Reader)
		if err != nil {
			imgLog.Warn("Skipping undecodable image.", "fileType", img.FileType, "error", err)
			continue
		}
		if e.opts.MaxImageBytes > 0 && len(pngBytes) > e.opts.MaxImageBytes {
			imgLog.Info("Skipping oversized image.", "bytes", len(pngBytes), "limit", e.opts.MaxImageBytes)
			continue
		}
		records = append(records, models.ImageRecord{
			PageNumber:  pageNr,
			ID:          models.ImageID(pageNr, len(records)),
			Data:        pngBytes,
			Format:      "png",
			Width:       bounds.Dx(),
			Height:      bounds.Dy(),
			ContextText: text,
		})
	}
	return records
}

func reencodePNG(r io.Reader) ([]byte, image.Rectangle, error) {
	decoded, _, err := image.Decode(r)
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), decoded.Bounds(), nil
}
