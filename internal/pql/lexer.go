package pql

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/portalql/internal/qerr"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokComma
	tokStar
	tokPlus
	tokMinus
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokStar:
		return "'*'"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	default:
		return "unknown token"
	}
}

// token is a lexeme with its byte offset in the input.
type token struct {
	kind tokenKind
	text string
	val  Value
	pos  int
}

// lex splits PQL text into tokens. Whitespace is insignificant.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '*':
			toks = append(toks, token{kind: tokStar, text: "*", pos: i})
			i++
		case c == '+':
			toks = append(toks, token{kind: tokPlus, text: "+", pos: i})
			i++
		case c == '\'' || c == '"':
			tok, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case c == '-':
			// A minus directly followed by a digit is a negative number;
			// otherwise it is a sort direction.
			if i+1 < len(src) && isDigit(src[i+1]) {
				tok, next, err := lexNumber(src, i)
				if err != nil {
					return nil, err
				}
				toks = append(toks, tok)
				i = next
				continue
			}
			toks = append(toks, token{kind: tokMinus, text: "-", pos: i})
			i++
		case isDigit(c):
			tok, next, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			return nil, qerr.Syntax(i, "unexpected character %q", rune(c))
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func lexString(src string, start int) (token, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\\':
			if i+1 >= len(src) {
				return token{}, 0, qerr.Syntax(i, "unterminated escape in string")
			}
			b.WriteByte(src[i+1])
			i += 2
		case c == quote:
			s := norm.NFC.String(b.String())
			return token{kind: tokString, text: src[start : i+1], val: s, pos: start}, i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, 0, qerr.Syntax(start, "unterminated string")
}

func lexNumber(src string, start int) (token, int, error) {
	i := start
	if src[i] == '-' {
		i++
	}
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	float := false
	if i < len(src) && src[i] == '.' {
		float = true
		i++
		if i >= len(src) || !isDigit(src[i]) {
			return token{}, 0, qerr.Syntax(i, "expected digit after decimal point")
		}
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		float = true
		i++
		if i < len(src) && (src[i] == '+' || src[i] == '-') {
			i++
		}
		if i >= len(src) || !isDigit(src[i]) {
			return token{}, 0, qerr.Syntax(i, "expected digit in exponent")
		}
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && isIdentStart(src[i]) {
		return token{}, 0, qerr.Syntax(i, "unexpected character %q after number", rune(src[i]))
	}

	text := src[start:i]
	if float {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, 0, qerr.Syntax(start, "invalid number %s", text)
		}
		return token{kind: tokNumber, text: text, val: f, pos: start}, i, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, 0, qerr.Syntax(start, "integer %s out of range", text)
	}
	return token{kind: tokNumber, text: text, val: n, pos: start}, i, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
