package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html/atom"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

func TestHeuristicClassifier(t *testing.T) {
	tests := []struct {
		block string
		want  atom.Atom
	}{
		{"Introduction", atom.H2},
		{"1 Scope", atom.H2},
		{"2.1 Definitions", atom.H2},
		{"Results and discussion", atom.H2},
		{"This sentence ends with a period.", atom.P},
		{"lowercase start", atom.P},
		{"Émile Zola", atom.H2},
		{strings.Repeat("A", 99), atom.H2},
		{strings.Repeat("A", 100), atom.P},
		{"", atom.P},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, HeuristicClassifier{}.Classify(tc.block), tc.block)
	}
}

func TestSplitBlocks(t *testing.T) {
	assert.Equal(t, []string{"a\nb", "c", "d"}, SplitBlocks("a\nb\n\nc\n   \n\n d \n"))
	assert.Nil(t, SplitBlocks("  \n\n "))
}

func TestSynthesize_Structure(t *testing.T) {
	pages := []PageText{
		{PageNumber: 1, Text: "Introduction\n\nThis is a paragraph."},
		{PageNumber: 2, Text: "Results"},
	}
	images := []models.ImageRecord{{PageNumber: 2, ID: "img_2_0", Data: []byte("hi")}}
	alt := []models.AltTextResult{{ImageID: "img_2_0", Alt: "A chart", Longdesc: "Bars rising"}}

	out, err := NewHTMLSynthesizer().Synthesize("report", pages, images, alt)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, `<html lang="en">`)
	assert.Contains(t, out, `<meta charset="UTF-8"/>`)
	assert.Contains(t, out, `<title>report</title>`)
	assert.Contains(t, out, `<section aria-label="Page 1"><h2>Introduction</h2><p>This is a paragraph.</p></section>`)
	assert.Contains(t, out, `<section aria-label="Page 2"><h2>Results</h2><figure><img src="data:image/png;base64,aGk=" alt="A chart"/><figcaption>Bars rising</figcaption></figure></section>`)
	assert.Contains(t, out, "<main>")
}

func TestSynthesize_EscapesMarkup(t *testing.T) {
	pages := []PageText{{PageNumber: 1, Text: `a <b> & "c" 'd' is lowercase.`}}
	images := []models.ImageRecord{{PageNumber: 1, ID: "img_1_0", Data: []byte("x")}}
	alt := []models.AltTextResult{{ImageID: "img_1_0", Alt: `"><script>alert(1)</script>`, Longdesc: "<i>&</i>"}}

	out, err := NewHTMLSynthesizer().Synthesize(`T<i>`, pages, images, alt)
	require.NoError(t, err)

	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, `<p>a &lt;b&gt; &amp; &#34;c&#34; &#39;d&#39; is lowercase.</p>`)
	assert.Contains(t, out, `alt="&#34;&gt;&lt;script&gt;alert(1)&lt;/script&gt;"`)
	assert.Contains(t, out, `<figcaption>&lt;i&gt;&amp;&lt;/i&gt;</figcaption>`)
	assert.Contains(t, out, `<title>T&lt;i&gt;</title>`)
}

func TestSynthesize_MissingAltFallsBackAndNoEmptyCaption(t *testing.T) {
	images := []models.ImageRecord{{PageNumber: 3, ID: "img_3_0", Data: []byte("x")}}
	out, err := NewHTMLSynthesizer().Synthesize("", []PageText{{PageNumber: 3}}, images, nil)
	require.NoError(t, err)

	assert.Contains(t, out, `alt="Image on page 3"`)
	assert.NotContains(t, out, "<figcaption>")
	assert.Contains(t, out, "<title>Accessible Document</title>")
}

func TestSynthesize_SkipsEmptyPages(t *testing.T) {
	out, err := NewHTMLSynthesizer().Synthesize("t", []PageText{{PageNumber: 1}, {PageNumber: 2, Text: "Body text here."}}, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, out, `aria-label="Page 1"`)
	assert.Contains(t, out, `aria-label="Page 2"`)
}

type everythingIsAParagraph struct{}

func (everythingIsAParagraph) Classify(string) atom.Atom { return atom.P }

func TestSynthesize_CustomClassifier(t *testing.T) {
	s := &HTMLSynthesizer{Classifier: everythingIsAParagraph{}}
	out, err := s.Synthesize("t", []PageText{{PageNumber: 1, Text: "Heading Like"}}, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "<p>Heading Like</p>")
	assert.NotContains(t, out, "<h2>")
}
