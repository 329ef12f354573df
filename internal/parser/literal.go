package parser

import (
	"strconv"
	"strings"
)

// parseNumberValue decodes a NumberLiteral token's raw text (0x/0b/0o
// prefixes, decimal/exponent, `_` digit separators already present in the
// source) into a float64, mirroring the lexer's own numeric grammar.
func (p *Parser) parseNumberValue(raw string) (float64, error) {
	clean := strings.ReplaceAll(raw, "_", "")
	switch {
	case strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X"):
		v, err := strconv.ParseUint(clean[2:], 16, 64)
		if err != nil {
			return 0, p.errorf(p.location(), "invalid number: %s", raw)
		}
		return float64(v), nil
	case strings.HasPrefix(clean, "0b") || strings.HasPrefix(clean, "0B"):
		v, err := strconv.ParseUint(clean[2:], 2, 64)
		if err != nil {
			return 0, p.errorf(p.location(), "invalid number: %s", raw)
		}
		return float64(v), nil
	case strings.HasPrefix(clean, "0o") || strings.HasPrefix(clean, "0O"):
		v, err := strconv.ParseUint(clean[2:], 8, 64)
		if err != nil {
			return 0, p.errorf(p.location(), "invalid number: %s", raw)
		}
		return float64(v), nil
	default:
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, p.errorf(p.location(), "invalid number: %s", raw)
		}
		return v, nil
	}
}

// parseTemplateString decodes one template-literal segment (head/middle/
// tail/plain) and returns its cooked form; the caller keeps raw itself as
// the raw form. raw has its surrounding backtick/`${`/`}` delimiters
// already stripped by the caller.
func parseTemplateString(raw string) string {
	var cooked strings.Builder
	i := 0
	for i < len(raw) {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			cooked.WriteByte(c)
			i++
			continue
		}
		next := raw[i+1]
		switch next {
		case 'n':
			cooked.WriteByte('\n')
		case 'r':
			cooked.WriteByte('\r')
		case 't':
			cooked.WriteByte('\t')
		case '\\':
			cooked.WriteByte('\\')
		case '`':
			cooked.WriteByte('`')
		case '$':
			cooked.WriteByte('$')
		default:
			cooked.WriteByte(c)
			i++
			continue
		}
		i += 2
	}
	return cooked.String()
}

// strconvFloat renders a numeric property key the way JS coerces it to a
// string property name (e.g. `{ 1.5: x }`'s key is the string "1.5").
func strconvFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// stripTemplateDelims removes the lexer's delimiter text from a template
// token. TemplateLiteral/TemplateHead carry a leading backtick; all four
// kinds carry a trailing backtick (closing) or `${` (substitution start).
// The `}` that closes a substitution is its own separate RightBrace token,
// so it is never part of this text.
func stripTemplateDelims(text string) string {
	s := strings.TrimPrefix(text, "`")
	if strings.HasSuffix(s, "${") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "`")
}
