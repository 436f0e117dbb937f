package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanContentText(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "simple Tj",
			content:  "BT /F1 12 Tf 72 720 Td (Hello World) Tj ET",
			expected: "Hello World",
		},
		{
			name:     "T* starts new lines",
			content:  "BT (First) Tj T* (Second) Tj ET",
			expected: "First\nSecond",
		},
		{
			name:     "blank line between blocks",
			content:  "BT 14 TL (Title) Tj T* T* (Body text.) Tj T* ET",
			expected: "Title\n\nBody text.",
		},
		{
			name:     "TJ with kerning and word gap",
			content:  "BT [(Hel) -20 (lo) -350 (there)] TJ ET",
			expected: "Hello there",
		},
		{
			name:     "vertical Td is a newline, horizontal Td a space",
			content:  "BT (a) Tj 0 -14 Td (b) Tj 50 0 Td (c) Tj ET",
			expected: "a\nb c",
		},
		{
			name:     "quote operators move to next line",
			content:  "BT (one) Tj (two) ' 1 2 (three) \" ET",
			expected: "one\ntwo\nthree",
		},
		{
			name:     "escapes in literal strings",
			content:  `BT (a\(b\) \\ c\101) Tj ET`,
			expected: `a(b) \ cA`,
		},
		{
			name:     "nested parentheses",
			content:  "BT (f(x) = y) Tj ET",
			expected: "f(x) = y",
		},
		{
			name:     "hex string",
			content:  "BT <48656C6C6F> Tj ET",
			expected: "Hello",
		},
		{
			name:     "utf16 hex string",
			content:  "BT <FEFF00E9007400E9> Tj ET",
			expected: "été",
		},
		{
			name:     "text objects separated by a newline",
			content:  "BT (one) Tj ET BT (two) Tj ET",
			expected: "one\ntwo",
		},
		{
			name:     "inline image payload is skipped",
			content:  "BT (before) Tj ET BI /W 2 /H 2 /BPC 8 /CS /G ID \x00(Tj)\xff EI BT (after) Tj ET",
			expected: "before\nafter",
		},
		{
			name:     "marked content dictionaries ignored",
			content:  "/P <</MCID 0>> BDC BT (tagged) Tj ET EMC",
			expected: "tagged",
		},
		{
			name:     "comments ignored",
			content:  "% a comment (not text) Tj\nBT (real) Tj ET",
			expected: "real",
		},
		{
			name:     "control characters dropped",
			content:  "BT (a\001b) Tj ET",
			expected: "ab",
		},
		{
			name:     "no text operators",
			content:  "q 100 0 0 100 0 0 cm /Im1 Do Q",
			expected: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, scanContentText([]byte(tc.content), nil))
		})
	}
}

func TestScanContentText_Truncated(t *testing.T) {
	// Unterminated constructs must not panic or loop.
	for _, content := range []string{"BT (unterminated", "BT <4142", "BT [(a) (b", "BI /W 1 ID abc"} {
		assert.NotPanics(t, func() { scanContentText([]byte(content), nil) }, content)
	}
}

const identityCMap = `/CIDInit /ProcSet findresource begin
12 dict begin
begincmap
/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def
/CMapName /Adobe-Identity-UCS def
/CMapType 2 def
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
3 beginbfchar
<0001> <0048>
<0002> <0065>
<0003> <006C>
endbfchar
2 beginbfrange
<0004> <0005> <006F>
<0010> <0011> [<00660069> <D83DDE00>]
endbfrange
endcmap
CMapName currentdict /CMap defineresource pop
end
end`

func TestParseToUnicode(t *testing.T) {
	f := parseToUnicode([]byte(identityCMap), true)

	assert.Equal(t, "Hello", string(f.decode([]byte{0, 1, 0, 2, 0, 3, 0, 3, 0, 4})))
	assert.Equal(t, "p", string(f.decode([]byte{0, 5})))
	assert.Equal(t, "fi😀", string(f.decode([]byte{0, 0x10, 0, 0x11})))
	// Unmapped codes in a composite font are dropped, not guessed.
	assert.Equal(t, "HH", string(f.decode([]byte{0, 1, 0x7F, 0x7F, 0, 1})))
}

func TestParseToUnicode_SimpleFontFallsBackToLatin1(t *testing.T) {
	f := parseToUnicode([]byte("1 beginbfchar <41> <00C5> endbfchar"), false)
	assert.Equal(t, "ÅBC", string(f.decode([]byte("ABC"))))
}

func TestParseToUnicode_MixedCodespace(t *testing.T) {
	cmap := `2 begincodespacerange <00> <80> <8140> <9FFC> endcodespacerange
2 beginbfchar <41> <0041> <8140> <3000> endbfchar`
	f := parseToUnicode([]byte(cmap), true)
	assert.Equal(t, "A\u3000A", string(f.decode([]byte{0x41, 0x81, 0x40, 0x41})))
}

func TestScanContentText_FontEncodedText(t *testing.T) {
	fonts := map[string]*fontDecoder{"F2": parseToUnicode([]byte(identityCMap), true)}
	content := "BT /F1 12 Tf (Plain) Tj T* /F2 12 Tf <00010002000300030004> Tj T* /F1 12 Tf (Again) Tj ET"
	assert.Equal(t, "Plain\nHello\nAgain", scanContentText([]byte(content), fonts))
}

func TestScanContentText_CompositeFontWithoutCMap(t *testing.T) {
	fonts := map[string]*fontDecoder{"F2": parseToUnicode(nil, true)}
	assert.Equal(t, "", scanContentText([]byte("BT /F2 12 Tf <00010002> Tj ET"), fonts))
}
