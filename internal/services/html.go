package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

const defaultDocumentTitle = "Accessible Document"

var blankLine = regexp.MustCompile(`\n\s*\n`)

// BlockClassifier decides which element a block of text renders as.
type BlockClassifier interface {
	Classify(block string) atom.Atom
}

// HeuristicClassifier treats short blocks that start with a digit, or start
// uppercase and carry no period, as headings. It is a guess, not a parser:
// short sentences without punctuation come out as headings too.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(block string) atom.Atom {
	if utf8.RuneCountInString(block) >= 100 {
		return atom.P
	}
	first, _ := utf8.DecodeRuneInString(block)
	if unicode.IsDigit(first) || (unicode.IsUpper(first) && !strings.Contains(block, ".")) {
		return atom.H2
	}
	return atom.P
}

// HTMLSynthesizer rebuilds a document as semantic HTML.
type HTMLSynthesizer struct {
	Classifier BlockClassifier
}

// NewHTMLSynthesizer returns a synthesizer using HeuristicClassifier.
func NewHTMLSynthesizer() *HTMLSynthesizer {
	return &HTMLSynthesizer{Classifier: HeuristicClassifier{}}
}

// SplitBlocks breaks text on blank lines, dropping empty blocks.
func SplitBlocks(text string) []string {
	var blocks []string
	for _, b := range blankLine.Split(text, -1) {
		if b = strings.TrimSpace(b); b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// Synthesize renders one section per page: its text blocks, then its figures.
// Every text and attribute value goes through the HTML renderer, so markup
// characters in the source come out entity-escaped.
func (s *HTMLSynthesizer) Synthesize(title string, pages []PageText, images []models.ImageRecord, altText []models.AltTextResult) (string, error) {
	classifier := s.Classifier
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	if strings.TrimSpace(title) == "" {
		title = defaultDocumentTitle
	}

	byID := make(map[string]models.AltTextResult, len(altText))
	for _, r := range altText {
		byID[r.ImageID] = r
	}
	byPage := make(map[int][]models.ImageRecord)
	for _, img := range images {
		byPage[img.PageNumber] = append(byPage[img.PageNumber], img)
	}

	mainEl := element(atom.Main)
	for _, page := range pages {
		section := element(atom.Section, html.Attribute{Key: "aria-label", Val: fmt.Sprintf("Page %d", page.PageNumber)})
		for _, block := range SplitBlocks(page.Text) {
			tag := classifier.Classify(block)
			section.AppendChild(withText(element(tag), block))
		}
		for _, img := range byPage[page.PageNumber] {
			section.AppendChild(figure(img, byID))
		}
		if section.FirstChild != nil {
			mainEl.AppendChild(section)
		}
	}

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, html.Attribute{Key: "charset", Val: "UTF-8"}))
	head.AppendChild(element(atom.Meta,
		html.Attribute{Key: "name", Val: "viewport"},
		html.Attribute{Key: "content", Val: "width=device-width, initial-scale=1.0"}))
	head.AppendChild(withText(element(atom.Title), title))

	body := element(atom.Body)
	body.AppendChild(mainEl)

	root := element(atom.Html, html.Attribute{Key: "lang", Val: "en"})
	root.AppendChild(head)
	root.AppendChild(body)

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(root)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}
	return buf.String(), nil
}

func figure(img models.ImageRecord, byID map[string]models.AltTextResult) *html.Node {
	alt := fmt.Sprintf(placeholderAltTemplate, img.PageNumber)
	longdesc := ""
	if r, ok := byID[img.ID]; ok {
		alt = r.Alt
		longdesc = r.Longdesc
	}

	fig := element(atom.Figure)
	fig.AppendChild(element(atom.Img,
		html.Attribute{Key: "src", Val: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.Data)},
		html.Attribute{Key: "alt", Val: alt}))
	if longdesc != "" {
		fig.AppendChild(withText(element(atom.Figcaption), longdesc))
	}
	return fig
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func withText(n *html.Node, text string) *html.Node {
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}
