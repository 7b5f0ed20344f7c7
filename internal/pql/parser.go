package pql

import (
	"github.com/roach88/portalql/internal/qerr"
)

// Parse parses PQL text into a Statement.
//
// Malformed text fails with a SYNTAX_ERROR carrying the byte offset of the
// offending token. Well-formed text that breaks a statement rule (count
// combined with select, a negative limit) fails with INVALID_QUERY.
func Parse(text string) (*Statement, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.statement()
}

// MustParse parses text or panics. Intended for tests and fixed queries.
func MustParse(text string) *Statement {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseFilter parses a single filter expression such as eq(a,1).
func ParseFilter(text string) (Filter, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	f, err := p.filter()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, qerr.Syntax(t.pos, "unexpected %s after filter", t.kind)
	}
	return f, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, qerr.Syntax(t.pos, "expected %s, found %s", kind, describe(t))
	}
	return t, nil
}

func describe(t token) string {
	if t.text == "" {
		return t.kind.String()
	}
	return t.kind.String() + " " + t.text
}

func (p *parser) statement() (*Statement, error) {
	s := &Statement{}
	var filters []Filter
	var seenSort, seenLimit bool
	var countPos = -1
	var selectPos, facetsPos, sortPos, limitPos = -1, -1, -1, -1

	if p.peek().kind == tokEOF {
		return nil, qerr.Syntax(0, "empty statement")
	}

	for {
		t := p.peek()
		if t.kind != tokIdent {
			return nil, qerr.Syntax(t.pos, "expected clause, found %s", describe(t))
		}

		switch t.text {
		case "count":
			if countPos >= 0 {
				return nil, qerr.Syntax(t.pos, "duplicate count clause")
			}
			countPos = t.pos
			if err := p.emptyCall(); err != nil {
				return nil, err
			}
			s.Count = true
		case "select":
			proj, err := p.projection()
			if err != nil {
				return nil, err
			}
			s.Select = merge(s.Select, proj)
			selectPos = t.pos
		case "facets":
			proj, err := p.projection()
			if err != nil {
				return nil, err
			}
			s.Facets = merge(s.Facets, proj)
			facetsPos = t.pos
		case "sort":
			if seenSort {
				return nil, qerr.Syntax(t.pos, "duplicate sort clause")
			}
			seenSort = true
			sortPos = t.pos
			fields, err := p.sort()
			if err != nil {
				return nil, err
			}
			s.Sort = fields
		case "limit":
			if seenLimit {
				return nil, qerr.Syntax(t.pos, "duplicate limit clause")
			}
			seenLimit = true
			limitPos = t.pos
			l, err := p.limit()
			if err != nil {
				return nil, err
			}
			s.Limit = l
		default:
			f, err := p.filter()
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}

		if p.peek().kind == tokEOF {
			break
		}
		if _, err := p.expect(tokComma); err != nil {
			return nil, err
		}
	}

	switch len(filters) {
	case 0:
	case 1:
		s.Filter = filters[0]
	default:
		s.Filter = &And{Filters: filters}
	}

	if s.Count {
		switch {
		case selectPos >= 0:
			return nil, countConflict("select", selectPos)
		case facetsPos >= 0:
			return nil, countConflict("facets", facetsPos)
		case sortPos >= 0:
			return nil, countConflict("sort", sortPos)
		case limitPos >= 0:
			return nil, countConflict("limit", limitPos)
		}
	}
	return s, nil
}

func countConflict(clause string, pos int) error {
	e := qerr.Invalid("", "count() cannot be combined with %s()", clause)
	e.Pos = pos
	return e
}

// merge combines repeated select or facets clauses. A wildcard absorbs
// every explicit field.
func merge(a, b Projection) Projection {
	if a.All || b.All {
		return Projection{All: true}
	}
	out := Projection{Fields: append([]string(nil), a.Fields...)}
	for _, f := range b.Fields {
		if !contains(out.Fields, f) {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

// open consumes a function name and its opening parenthesis.
func (p *parser) open() (token, error) {
	name, err := p.expect(tokIdent)
	if err != nil {
		return name, err
	}
	if _, err := p.expect(tokLParen); err != nil {
		return name, err
	}
	return name, nil
}

func (p *parser) emptyCall() error {
	if _, err := p.open(); err != nil {
		return err
	}
	_, err := p.expect(tokRParen)
	return err
}

func (p *parser) projection() (Projection, error) {
	name, err := p.open()
	if err != nil {
		return Projection{}, err
	}
	if p.peek().kind == tokStar {
		p.next()
		if _, err := p.expect(tokRParen); err != nil {
			return Projection{}, err
		}
		return Projection{All: true}, nil
	}
	if t := p.peek(); t.kind == tokRParen {
		return Projection{}, qerr.Syntax(t.pos, "%s() requires at least one field", name.text)
	}

	var proj Projection
	for {
		id, err := p.expect(tokIdent)
		if err != nil {
			return Projection{}, err
		}
		if !contains(proj.Fields, id.text) {
			proj.Fields = append(proj.Fields, id.text)
		}
		if done, err := p.listEnd(); err != nil || done {
			return proj, err
		}
	}
}

// listEnd consumes a comma (more items follow) or a closing parenthesis.
func (p *parser) listEnd() (bool, error) {
	t := p.next()
	switch t.kind {
	case tokComma:
		return false, nil
	case tokRParen:
		return true, nil
	default:
		return false, qerr.Syntax(t.pos, "expected ',' or ')', found %s", describe(t))
	}
}

func (p *parser) sort() ([]SortField, error) {
	if _, err := p.open(); err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokRParen {
		return nil, qerr.Syntax(t.pos, "sort() requires at least one field")
	}

	var fields []SortField
	for {
		order := Asc
		switch p.peek().kind {
		case tokPlus:
			p.next()
		case tokMinus:
			p.next()
			order = Desc
		}
		id, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		fields = append(fields, SortField{Field: id.text, Order: order})
		if done, err := p.listEnd(); err != nil || done {
			return fields, err
		}
	}
}

func (p *parser) limit() (*Limit, error) {
	if _, err := p.open(); err != nil {
		return nil, err
	}
	first, err := p.integer()
	if err != nil {
		return nil, err
	}
	l := &Limit{Size: first}
	if p.peek().kind == tokComma {
		p.next()
		size, err := p.integer()
		if err != nil {
			return nil, err
		}
		l = &Limit{From: first, Size: size}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if l.From < 0 || l.Size < 0 {
		return nil, qerr.Invalid("", "limit(%d,%d) must not be negative", l.From, l.Size)
	}
	return l, nil
}

func (p *parser) integer() (int, error) {
	t, err := p.expect(tokNumber)
	if err != nil {
		return 0, err
	}
	n, ok := t.val.(int64)
	if !ok {
		return 0, qerr.Syntax(t.pos, "expected integer, found %s", t.text)
	}
	return int(n), nil
}

func (p *parser) filter() (Filter, error) {
	name, err := p.open()
	if err != nil {
		return nil, err
	}

	switch name.text {
	case "eq", "ne":
		field, v, err := p.fieldValue()
		if err != nil {
			return nil, err
		}
		if name.text == "eq" {
			return &Eq{Field: field, Value: v}, nil
		}
		return &Ne{Field: field, Value: v}, nil
	case "gt", "ge", "lt", "le":
		field, v, err := p.fieldValue()
		if err != nil {
			return nil, err
		}
		return &Range{Field: field, Op: RangeOp(name.text), Value: v}, nil
	case "in":
		return p.in()
	case "exists", "missing":
		id, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		if name.text == "exists" {
			return &Exists{Field: id.text}, nil
		}
		return &Missing{Field: id.text}, nil
	case "and", "or":
		children, err := p.filters()
		if err != nil {
			return nil, err
		}
		if name.text == "and" {
			return &And{Filters: children}, nil
		}
		return &Or{Filters: children}, nil
	case "not":
		child, err := p.filter()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return &Not{Filter: child}, nil
	case "nested":
		path, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokComma); err != nil {
			return nil, err
		}
		children, err := p.filters()
		if err != nil {
			return nil, err
		}
		return &Nested{Path: path.text, Filters: children}, nil
	case "lookup":
		return p.lookup()
	default:
		return nil, qerr.Syntax(name.pos, "unknown function %s", name.text)
	}
}

// filters parses a non-empty filter list up to and including ')'.
func (p *parser) filters() ([]Filter, error) {
	if t := p.peek(); t.kind == tokRParen {
		return nil, qerr.Syntax(t.pos, "expected filter, found ')'")
	}
	var out []Filter
	for {
		f, err := p.filter()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
		if done, err := p.listEnd(); err != nil || done {
			return out, err
		}
	}
}

func (p *parser) fieldValue() (string, Value, error) {
	id, err := p.expect(tokIdent)
	if err != nil {
		return "", nil, err
	}
	if _, err := p.expect(tokComma); err != nil {
		return "", nil, err
	}
	v, err := p.value()
	if err != nil {
		return "", nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return "", nil, err
	}
	return id.text, v, nil
}

func (p *parser) value() (Value, error) {
	t := p.next()
	switch t.kind {
	case tokString, tokNumber:
		return t.val, nil
	default:
		return nil, qerr.Syntax(t.pos, "expected value, found %s", describe(t))
	}
}

func (p *parser) in() (Filter, error) {
	id, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma); err != nil {
		return nil, err
	}
	f := &In{Field: id.text}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		f.Values = append(f.Values, v)
		if done, err := p.listEnd(); err != nil || done {
			return f, err
		}
	}
}

func (p *parser) lookup() (Filter, error) {
	id, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma); err != nil {
		return nil, err
	}
	typ, err := p.expect(tokString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma); err != nil {
		return nil, err
	}
	ref, err := p.expect(tokString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return &Lookup{Field: id.text, LookupType: typ.val.(string), ID: ref.val.(string)}, nil
}
