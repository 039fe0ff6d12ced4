package arff

import "strings"

// Kind is the declared type of an attribute.
type Kind int

const (
	KindOther Kind = iota
	KindNumeric
	KindNominal
	KindString
	KindDate
	KindRelational
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindNominal:
		return "nominal"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindRelational:
		return "relational"
	default:
		return "other"
	}
}

// Attribute is one column declared in the header.
type Attribute struct {
	Name string
	Kind Kind
	// Domain lists the decoded nominal values in declaration order.
	Domain []string
	// tokens maps a decoded nominal value to its token as written in the header.
	tokens map[string]string
}

// HasValue reports whether value is part of the nominal domain.
func (a Attribute) HasValue(value string) bool {
	_, ok := a.tokens[value]
	return ok
}

// Encode returns the textual form of value for a data row. Nominal values use
// the exact token the header declares; anything else is quoted only if needed.
func (a Attribute) Encode(value string) string {
	if tok, ok := a.tokens[value]; ok {
		return tok
	}
	return Quote(value)
}

// Quote wraps value in single quotes when it cannot appear bare in a row.
func Quote(value string) string {
	if value == "" || value == "?" || strings.ContainsAny(value, " \t,{}'\"%\\") {
		r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
		return "'" + r.Replace(value) + "'"
	}
	return value
}

// Unquote decodes a raw field or domain token.
func Unquote(token string) string {
	t := strings.TrimSpace(token)
	if len(t) >= 2 && (t[0] == '\'' || t[0] == '"') && t[len(t)-1] == t[0] {
		inner := t[1 : len(t)-1]
		if !strings.Contains(inner, `\`) {
			return inner
		}
		var b strings.Builder
		for i := 0; i < len(inner); i++ {
			if inner[i] == '\\' && i+1 < len(inner) {
				i++
			}
			b.WriteByte(inner[i])
		}
		return b.String()
	}
	return t
}

func parseAttribute(line string) (Attribute, bool) {
	rest := strings.TrimSpace(line[len("@attribute"):])
	if rest == "" {
		return Attribute{}, false
	}

	var name string
	if rest[0] == '\'' || rest[0] == '"' {
		end := closingQuote(rest, 0)
		if end < 0 {
			return Attribute{}, false
		}
		name = Unquote(rest[:end+1])
		rest = rest[end+1:]
	} else {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return Attribute{}, false
		}
		name = rest[:idx]
		rest = rest[idx:]
	}
	typ := strings.TrimSpace(rest)
	if typ == "" {
		return Attribute{}, false
	}

	attr := Attribute{Name: name}
	if typ[0] == '{' {
		closing := strings.LastIndexByte(typ, '}')
		if closing < 0 {
			return Attribute{}, false
		}
		attr.Kind = KindNominal
		inner := typ[1:closing]
		attr.tokens = make(map[string]string)
		for _, sp := range splitFields(inner) {
			raw := inner[sp[0]:sp[1]]
			if raw == "" {
				continue
			}
			value := Unquote(raw)
			attr.Domain = append(attr.Domain, value)
			attr.tokens[value] = raw
		}
		return attr, true
	}

	switch strings.ToLower(strings.Fields(typ)[0]) {
	case "numeric", "real", "integer":
		attr.Kind = KindNumeric
	case "string":
		attr.Kind = KindString
	case "date":
		attr.Kind = KindDate
	case "relational":
		attr.Kind = KindRelational
	default:
		attr.Kind = KindOther
	}
	return attr, true
}

// closingQuote returns the index of the quote closing the one at open, or -1.
func closingQuote(s string, open int) int {
	q := s[open]
	for i := open + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			return i
		}
	}
	return -1
}

// splitFields tokenizes a comma separated list, honouring quotes. Spans exclude
// surrounding whitespace but include quotes.
func splitFields(s string) [][2]int {
	var spans [][2]int
	i := 0
	for {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		start := i
		if i < len(s) && (s[i] == '\'' || s[i] == '"') {
			if end := closingQuote(s, i); end >= 0 {
				i = end + 1
			} else {
				i = len(s)
			}
		}
		for i < len(s) && s[i] != ',' {
			i++
		}
		end := i
		for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
			end--
		}
		spans = append(spans, [2]int{start, end})
		if i >= len(s) {
			return spans
		}
		i++ // skip comma
	}
}
