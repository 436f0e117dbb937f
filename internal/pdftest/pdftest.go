// Package pdftest builds small, well-formed PDFs for tests.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"unicode/utf16"
)

// Page describes one page of a generated PDF.
type Page struct {
	// Lines are shown top to bottom; an empty string leaves a blank line.
	Lines []string
	// Images are embedded as DCTDecode image XObjects, in order.
	Images [][]byte
	// RawImages follow Images, each with its own filter.
	RawImages []Image
	// UnicodeLines follow Lines and are shown in a Type0 Identity-H font
	// whose glyph codes only a ToUnicode CMap can map back to text.
	UnicodeLines []string
}

// Image is an image XObject with an explicit filter.
type Image struct {
	Width, Height int
	// Filter names the stream filter, e.g. "FlateDecode". Empty means raw samples.
	Filter string
	Data   []byte
}

// Options controls document-level features.
type Options struct {
	// Tagged adds a /StructTreeRoot to the catalog.
	Tagged bool
	// PageMode sets the catalog /PageMode. An unknown mode makes the file
	// fail validation while staying readable.
	PageMode string
}

// FlateRGB returns a w by h solid-colour DeviceRGB image compressed with zlib.
func FlateRGB(w, h int, c color.RGBA) Image {
	raw := make([]byte, 0, w*h*3)
	for i := 0; i < w*h; i++ {
		raw = append(raw, c.R, c.G, c.B)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return Image{Width: w, Height: h, Filter: "FlateDecode", Data: buf.Bytes()}
}

// Build renders pages into a PDF with a correct cross-reference table.
func Build(pages []Page, opts Options) []byte {
	w := &writer{}
	glyphs := newGlyphTable(pages)

	// Object numbers: 1 catalog, 2 pages, 3 font, then the optional struct
	// tree and Type0 font objects, then per page: page, content, images.
	next := 4
	structTree := 0
	if opts.Tagged {
		structTree = next
		next++
	}
	type0 := 0
	if glyphs.used() {
		type0 = next
		next += 4
	}

	type pageObjs struct {
		page, content int
		images        []int
	}
	layout := make([]pageObjs, len(pages))
	for i, p := range pages {
		layout[i].page = next
		layout[i].content = next + 1
		next += 2
		for range len(p.Images) + len(p.RawImages) {
			layout[i].images = append(layout[i].images, next)
			next++
		}
	}

	w.header()

	catalog := "<< /Type /Catalog /Pages 2 0 R"
	if opts.Tagged {
		catalog += fmt.Sprintf(" /StructTreeRoot %d 0 R /MarkInfo << /Marked true >>", structTree)
	}
	if opts.PageMode != "" {
		catalog += " /PageMode /" + opts.PageMode
	}
	catalog += " >>"
	w.object(1, catalog)

	kids := make([]string, len(layout))
	for i, l := range layout {
		kids[i] = fmt.Sprintf("%d 0 R", l.page)
	}
	w.object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), len(layout)))
	w.object(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	if opts.Tagged {
		w.object(structTree, "<< /Type /StructTreeRoot >>")
	}
	fonts := "/F1 3 0 R"
	if type0 != 0 {
		fonts += fmt.Sprintf(" /F2 %d 0 R", type0)
		w.object(type0, fmt.Sprintf("<< /Type /Font /Subtype /Type0 /BaseFont /NotoSans /Encoding /Identity-H /DescendantFonts [%d 0 R] /ToUnicode %d 0 R >>", type0+1, type0+3))
		w.object(type0+1, fmt.Sprintf("<< /Type /Font /Subtype /CIDFontType2 /BaseFont /NotoSans /CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> /FontDescriptor %d 0 R /DW 1000 /CIDToGIDMap /Identity >>", type0+2))
		w.object(type0+2, "<< /Type /FontDescriptor /FontName /NotoSans /Flags 32 /FontBBox [0 -200 1000 900] /ItalicAngle 0 /Ascent 900 /Descent -200 /CapHeight 700 /StemV 80 >>")
		w.stream(type0+3, "", []byte(glyphs.cmap()))
	}

	for i, p := range pages {
		l := layout[i]
		var xobjects []string
		for j, obj := range l.images {
			xobjects = append(xobjects, fmt.Sprintf("/Im%d %d 0 R", j+1, obj))
		}
		resources := "/Font << " + fonts + " >>"
		if len(xobjects) > 0 {
			resources += " /XObject << " + strings.Join(xobjects, " ") + " >>"
		}
		w.object(l.page, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << %s >> /Contents %d 0 R >>", resources, l.content))
		w.stream(l.content, "", []byte(contentStream(p, glyphs)))
		for j, obj := range l.images {
			if j < len(p.Images) {
				width, height := jpegSize(p.Images[j])
				dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode", width, height)
				w.stream(obj, dict, p.Images[j])
				continue
			}
			img := p.RawImages[j-len(p.Images)]
			dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8", img.Width, img.Height)
			if img.Filter != "" {
				dict += " /Filter /" + img.Filter
			}
			w.stream(obj, dict, img.Data)
		}
	}

	w.trailer(next)
	return w.buf.Bytes()
}

func contentStream(p Page, glyphs *glyphTable) string {
	var sb strings.Builder
	if len(p.Lines) > 0 || len(p.UnicodeLines) > 0 {
		sb.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
		for _, line := range p.Lines {
			if line != "" {
				fmt.Fprintf(&sb, "(%s) Tj\n", escape(line))
			}
			sb.WriteString("T*\n")
		}
		if len(p.UnicodeLines) > 0 {
			sb.WriteString("/F2 12 Tf\n")
			for _, line := range p.UnicodeLines {
				if line != "" {
					fmt.Fprintf(&sb, "<%s> Tj\n", glyphs.encode(line))
				}
				sb.WriteString("T*\n")
			}
		}
		sb.WriteString("ET\n")
	}
	for j := range len(p.Images) + len(p.RawImages) {
		fmt.Fprintf(&sb, "q 100 0 0 100 72 %d cm /Im%d Do Q\n", 400-j*110, j+1)
	}
	return sb.String()
}

// glyphTable assigns two-byte codes, starting at 1, to the runes of every
// UnicodeLines entry in order of first use.
type glyphTable struct {
	codes map[rune]uint16
	order []rune
}

func newGlyphTable(pages []Page) *glyphTable {
	g := &glyphTable{codes: make(map[rune]uint16)}
	for _, p := range pages {
		for _, line := range p.UnicodeLines {
			for _, r := range line {
				if _, ok := g.codes[r]; !ok {
					g.order = append(g.order, r)
					g.codes[r] = uint16(len(g.order))
				}
			}
		}
	}
	return g
}

func (g *glyphTable) used() bool {
	return len(g.order) > 0
}

func (g *glyphTable) encode(line string) string {
	var sb strings.Builder
	for _, r := range line {
		fmt.Fprintf(&sb, "%04X", g.codes[r])
	}
	return sb.String()
}

func (g *glyphTable) cmap() string {
	var sb strings.Builder
	sb.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	sb.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	sb.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	sb.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	fmt.Fprintf(&sb, "%d beginbfchar\n", len(g.order))
	for _, r := range g.order {
		units := utf16.Encode([]rune{r})
		dst := make([]byte, 0, 2*len(units))
		for _, u := range units {
			dst = append(dst, byte(u>>8), byte(u))
		}
		fmt.Fprintf(&sb, "<%04X> <%s>\n", g.codes[r], strings.ToUpper(hex.EncodeToString(dst)))
	}
	sb.WriteString("endbfchar\nendcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return sb.String()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// JPEG returns a w by h solid-colour JPEG.
func JPEG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// jpegSize reads the dimensions of data, falling back to 1x1 for bytes that
// are not a JPEG (used to embed deliberately broken images).
func jpegSize(data []byte) (int, int) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 1, 1
	}
	return cfg.Width, cfg.Height
}

type writer struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func (w *writer) header() {
	w.offsets = make(map[int]int)
	w.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
}

func (w *writer) object(num int, body string) {
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (w *writer) stream(num int, dict string, data []byte) {
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

func (w *writer) trailer(size int) {
	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", size)
	w.buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < size; num++ {
		off, ok := w.offsets[num]
		if !ok {
			w.buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
}
