package services

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"
)

// Kerning adjustments inside a TJ array wider than this (in thousandths of
// an em) are rendered as a word break.
const tjSpaceThreshold = -200

type operandKind int

const (
	operandOther operandKind = iota
	operandString
	operandNumber
	operandArray
	operandName
)

type operand struct {
	kind  operandKind
	str   []byte
	num   float64
	items []operand
}

// tokenizer splits PDF content syntax into operands and operators. It serves
// both page content streams and ToUnicode CMaps.
type tokenizer struct {
	data     []byte
	pos      int
	operands []operand
}

// tokenize calls handle for every operator with the operands preceding it.
func (t *tokenizer) tokenize(handle func(op string, operands []operand)) {
	for {
		t.skipSpace()
		if t.pos >= len(t.data) {
			return
		}
		c := t.data[t.pos]
		switch {
		case c == '(':
			t.push(operand{kind: operandString, str: t.literalString()})
		case c == '<' && t.peek(1) == '<':
			t.pos += 2
		case c == '>' && t.peek(1) == '>':
			t.pos += 2
		case c == '<':
			t.push(operand{kind: operandString, str: t.hexString()})
		case c == '[':
			t.pos++
			t.push(operand{kind: operandArray, items: t.array()})
		case c == ']', c == '{', c == '}', c == '>', c == ')':
			t.pos++
		case c == '/':
			t.pos++
			t.push(operand{kind: operandName, str: []byte(t.word())})
		case isNumberStart(c):
			t.push(t.number())
		default:
			op := t.word()
			if op == "" {
				t.pos++
				continue
			}
			if op == "BI" {
				t.skipInlineImage()
			}
			handle(op, t.operands)
			t.operands = t.operands[:0]
		}
	}
}

func (t *tokenizer) push(o operand) {
	t.operands = append(t.operands, o)
}

// contentScanner collects the text shown by the text operators of a page
// content stream. Glyph positioning is approximated: vertical moves start a
// new line, horizontal moves insert a space.
type contentScanner struct {
	fonts map[string]*fontDecoder
	font  *fontDecoder
	out   strings.Builder
}

// scanContentText returns the text shown by a page content stream. fonts maps
// the page's font resource names to their decoders; strings shown in any
// other font are read as Latin-1 or UTF-16BE.
func scanContentText(content []byte, fonts map[string]*fontDecoder) string {
	s := &contentScanner{fonts: fonts}
	t := &tokenizer{data: content}
	t.tokenize(s.operator)
	return normalizeText(s.out.String())
}

func (s *contentScanner) operator(op string, operands []operand) {
	last := func() (operand, bool) {
		if len(operands) == 0 {
			return operand{}, false
		}
		return operands[len(operands)-1], true
	}
	showLast := func() {
		if o, ok := last(); ok && o.kind == operandString {
			s.show(o.str)
		}
	}

	switch op {
	case "Tf":
		if n := len(operands); n >= 2 && operands[n-2].kind == operandName {
			s.font = s.fonts[string(operands[n-2].str)]
		}
	case "Tj":
		showLast()
	case "'", "\"":
		s.newline()
		showLast()
	case "TJ":
		if o, ok := last(); ok && o.kind == operandArray {
			for _, item := range o.items {
				switch item.kind {
				case operandString:
					s.show(item.str)
				case operandNumber:
					if item.num < tjSpaceThreshold {
						s.space()
					}
				}
			}
		}
	case "T*", "ET", "Tm":
		s.newline()
	case "Td", "TD":
		if n := len(operands); n >= 2 && operands[n-1].kind == operandNumber && operands[n-1].num != 0 {
			s.newline()
		} else {
			s.space()
		}
	}
}

func (s *contentScanner) show(raw []byte) {
	var runes []rune
	if s.font != nil {
		runes = s.font.decode(raw)
	} else {
		runes = decodeTextString(raw)
	}
	for _, r := range runes {
		if r == '\t' || !unicode.IsControl(r) {
			s.out.WriteRune(r)
		}
	}
}

func (s *contentScanner) newline() {
	if s.out.Len() > 0 {
		s.out.WriteByte('\n')
	}
}

func (s *contentScanner) space() {
	str := s.out.String()
	if str != "" && !strings.HasSuffix(str, " ") && !strings.HasSuffix(str, "\n") {
		s.out.WriteByte(' ')
	}
}

func (t *tokenizer) peek(offset int) byte {
	if t.pos+offset < len(t.data) {
		return t.data[t.pos+offset]
	}
	return 0
}

func (t *tokenizer) skipSpace() {
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		if c == '%' {
			for t.pos < len(t.data) && t.data[t.pos] != '\n' && t.data[t.pos] != '\r' {
				t.pos++
			}
			continue
		}
		if !isPDFSpace(c) {
			return
		}
		t.pos++
	}
}

// word reads a run of regular characters.
func (t *tokenizer) word() string {
	start := t.pos
	for t.pos < len(t.data) && !isPDFSpace(t.data[t.pos]) && !isDelimiter(t.data[t.pos]) {
		t.pos++
	}
	return string(t.data[start:t.pos])
}

func (t *tokenizer) number() operand {
	w := t.word()
	n, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return operand{kind: operandOther}
	}
	return operand{kind: operandNumber, num: n}
}

func (t *tokenizer) array() []operand {
	var items []operand
	for {
		t.skipSpace()
		if t.pos >= len(t.data) {
			return items
		}
		c := t.data[t.pos]
		switch {
		case c == ']':
			t.pos++
			return items
		case c == '(':
			items = append(items, operand{kind: operandString, str: t.literalString()})
		case c == '<' && t.peek(1) != '<':
			items = append(items, operand{kind: operandString, str: t.hexString()})
		case isNumberStart(c):
			items = append(items, t.number())
		default:
			if t.word() == "" {
				t.pos++
			}
		}
	}
}

// literalString reads a balanced (...) string, resolving escapes.
func (t *tokenizer) literalString() []byte {
	t.pos++ // (
	var buf bytes.Buffer
	depth := 1
	for t.pos < len(t.data) {
		c := t.data[t.pos]
		t.pos++
		switch c {
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return buf.Bytes()
			}
			buf.WriteByte(c)
		case '\\':
			if t.pos >= len(t.data) {
				return buf.Bytes()
			}
			e := t.data[t.pos]
			t.pos++
			switch e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if t.peek(0) == '\n' {
					t.pos++
				}
			case '\n':
				// Line continuation.
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && t.pos < len(t.data) && t.data[t.pos] >= '0' && t.data[t.pos] <= '7'; i++ {
						v = v*8 + int(t.data[t.pos]-'0')
						t.pos++
					}
					buf.WriteByte(byte(v))
				} else {
					buf.WriteByte(e)
				}
			}
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// hexString reads a <...> string. An odd final digit is padded with 0.
func (t *tokenizer) hexString() []byte {
	t.pos++ // <
	var digits []byte
	for t.pos < len(t.data) && t.data[t.pos] != '>' {
		if isHexDigit(t.data[t.pos]) {
			digits = append(digits, t.data[t.pos])
		}
		t.pos++
	}
	t.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		v, _ := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
		out[i] = byte(v)
	}
	return out
}

// skipInlineImage jumps past the binary payload of a BI ... ID ... EI block.
func (t *tokenizer) skipInlineImage() {
	id := bytes.Index(t.data[t.pos:], []byte("ID"))
	if id < 0 {
		t.pos = len(t.data)
		return
	}
	t.pos += id + 2
	for t.pos < len(t.data) {
		ei := bytes.Index(t.data[t.pos:], []byte("EI"))
		if ei < 0 {
			t.pos = len(t.data)
			return
		}
		at := t.pos + ei
		before := at == 0 || isPDFSpace(t.data[at-1])
		after := at+2 >= len(t.data) || isPDFSpace(t.data[at+2])
		t.pos = at + 2
		if before && after {
			return
		}
	}
}

// decodeTextString maps a shown string to runes: UTF-16BE when it carries a
// byte order mark, single-byte Latin-1 otherwise.
func decodeTextString(raw []byte) []rune {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		return decodeUTF16BE(raw[2:])
	}
	out := make([]rune, len(raw))
	for i, b := range raw {
		out[i] = rune(b)
	}
	return out
}

// normalizeText trims trailing spaces from every line and the text as a whole.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isNumberStart(c byte) bool {
	return c >= '0' && c <= '9' || c == '-' || c == '+' || c == '.'
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
