package services

import "unicode/utf16"

// maxBFRangeCodes bounds a single bfrange so a hostile CMap cannot blow up
// the glyph table.
const maxBFRangeCodes = 1 << 16

type codespaceRange struct {
	low, high []byte
}

func (r codespaceRange) contains(code []byte) bool {
	if len(code) != len(r.low) {
		return false
	}
	for i, b := range code {
		if b < r.low[i] || b > r.high[i] {
			return false
		}
	}
	return true
}

// fontDecoder maps the character codes shown in one font to Unicode through
// the font's ToUnicode CMap.
type fontDecoder struct {
	// composite fonts (Type0) use two-byte codes unless the CMap says
	// otherwise, and have no meaningful single-byte fallback.
	composite  bool
	codespaces []codespaceRange
	glyphs     map[string][]rune
}

// parseToUnicode reads the codespace, bfchar and bfrange sections of a
// ToUnicode CMap. A nil or unreadable CMap yields a decoder with no glyphs.
func parseToUnicode(cmap []byte, composite bool) *fontDecoder {
	f := &fontDecoder{composite: composite, glyphs: make(map[string][]rune)}
	t := &tokenizer{data: cmap}
	t.tokenize(func(op string, operands []operand) {
		switch op {
		case "endcodespacerange":
			for i := 0; i+1 < len(operands); i += 2 {
				lo, hi := operands[i], operands[i+1]
				if lo.kind == operandString && hi.kind == operandString && len(lo.str) > 0 && len(lo.str) == len(hi.str) {
					f.codespaces = append(f.codespaces, codespaceRange{low: lo.str, high: hi.str})
				}
			}
		case "endbfchar":
			for i := 0; i+1 < len(operands); i += 2 {
				src, dst := operands[i], operands[i+1]
				if src.kind == operandString && dst.kind == operandString {
					f.glyphs[string(src.str)] = decodeUTF16BE(dst.str)
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(operands); i += 3 {
				f.addRange(operands[i], operands[i+1], operands[i+2])
			}
		}
	})
	return f
}

func (f *fontDecoder) addRange(lo, hi, dst operand) {
	if lo.kind != operandString || hi.kind != operandString {
		return
	}
	width := len(lo.str)
	if width == 0 || width > 4 || width != len(hi.str) {
		return
	}
	start, end := codeValue(lo.str), codeValue(hi.str)
	if end < start || end-start >= maxBFRangeCodes {
		return
	}
	for off := uint32(0); off <= end-start; off++ {
		key := string(codeBytes(start+off, width))
		switch dst.kind {
		case operandString:
			runes := decodeUTF16BE(dst.str)
			if len(runes) > 0 {
				runes[len(runes)-1] += rune(off)
			}
			f.glyphs[key] = runes
		case operandArray:
			if int(off) < len(dst.items) && dst.items[off].kind == operandString {
				f.glyphs[key] = decodeUTF16BE(dst.items[off].str)
			}
		}
	}
}

// decode maps a shown string to runes. Codes without a mapping are dropped for
// composite fonts and read as Latin-1 for simple fonts.
func (f *fontDecoder) decode(raw []byte) []rune {
	var out []rune
	for i := 0; i < len(raw); {
		n := f.codeLength(raw[i:])
		code := raw[i : i+n]
		i += n
		if r, ok := f.glyphs[string(code)]; ok {
			out = append(out, r...)
			continue
		}
		if !f.composite && n == 1 {
			out = append(out, rune(code[0]))
		}
	}
	return out
}

func (f *fontDecoder) codeLength(b []byte) int {
	for _, cs := range f.codespaces {
		if n := len(cs.low); n <= len(b) && cs.contains(b[:n]) {
			return n
		}
	}
	if f.composite && len(b) >= 2 {
		return 2
	}
	return 1
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func codeBytes(v uint32, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func decodeUTF16BE(b []byte) []rune {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return utf16.Decode(units)
}
