// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package bib reads the BibTeX files of a review project: the records file
// holding the record collection, and the raw search-result files that record
// origins point into.
package bib

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Field names with dedicated Record members.
const (
	fieldOrigin               = "colrev_origin"
	fieldStatus               = "colrev_status"
	fieldMasterdataProvenance = "colrev_masterdata_provenance"
	fieldDataProvenance       = "colrev_data_provenance"
	fieldScreeningCriteria    = "screening_criteria"
	fieldFile                 = "file"
	fieldTitle                = "title"
	fieldAuthor               = "author"
	fieldYear                 = "year"
)

// Entry is one raw BibTeX entry with its fields in file order.
type Entry struct {
	Type   string
	Key    string
	Fields []Field
	Line   int
}

// Field is a single name = {value} pair.
type Field struct {
	Name  string
	Value string
}

// Get returns the value of the named field (case-insensitive).
func (e Entry) Get(name string) (string, bool) {
	for _, f := range e.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// ReadFile parses the records file at path into a RecordCollection.
func ReadFile(path string) (types.RecordCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.RecordCollection{}, fmt.Errorf("opening records file: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return types.RecordCollection{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

// Parse reads BibTeX records from r. Status values are kept verbatim so the
// checker can report values outside the state enumeration.
func Parse(r io.Reader) (types.RecordCollection, error) {
	entries, err := ParseEntries(r)
	if err != nil {
		return types.RecordCollection{}, err
	}
	c := types.RecordCollection{Records: make([]types.Record, 0, len(entries))}
	for _, e := range entries {
		c.Records = append(c.Records, toRecord(e))
	}
	return c, nil
}

func toRecord(e Entry) types.Record {
	rec := types.Record{
		ID:        e.Key,
		EntryType: strings.ToLower(e.Type),
	}
	for _, f := range e.Fields {
		switch strings.ToLower(f.Name) {
		case fieldOrigin:
			rec.Origin = splitOrigin(f.Value)
		case fieldStatus:
			rec.Status = types.RecordState(strings.TrimSpace(f.Value))
		case fieldMasterdataProvenance:
			rec.MasterdataProvenance = parseProvenance(f.Value)
		case fieldDataProvenance:
			rec.DataProvenance = parseProvenance(f.Value)
		case fieldScreeningCriteria:
			rec.ScreeningCriteria = strings.TrimSpace(f.Value)
		case fieldFile:
			rec.File = f.Value
		case fieldTitle:
			rec.Title = f.Value
		case fieldAuthor:
			rec.Author = f.Value
		case fieldYear:
			rec.Year = f.Value
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[strings.ToLower(f.Name)] = f.Value
		}
	}
	return rec
}

// splitOrigin splits a colrev_origin value on ";" and newlines.
func splitOrigin(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == '\n' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseProvenance reads lines of the form "field:source;note;".
func parseProvenance(v string) map[string]types.Provenance {
	out := make(map[string]types.Provenance)
	for _, line := range strings.Split(v, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		rest = strings.TrimSuffix(rest, ";")
		p := types.Provenance{Source: rest}
		if i := strings.LastIndex(rest, ";"); i >= 0 {
			p.Source = rest[:i]
			p.Note = rest[i+1:]
		}
		out[strings.TrimSpace(name)] = p
	}
	return out
}

// ParseEntries reads every entry from r. @comment, @preamble and @string
// blocks are skipped.
func ParseEntries(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading bibtex: %w", err)
	}
	p := &parser{src: []rune(string(data)), line: 1}
	return p.entries()
}

type parser struct {
	src  []rune
	pos  int
	line int
}

func (p *parser) entries() ([]Entry, error) {
	var out []Entry
	for {
		if !p.skipTo('@') {
			return out, nil
		}
		startLine := p.line
		p.next() // '@'
		typ := p.ident()
		p.skipSpace()
		// Text between entries is a comment: an '@' only opens an entry
		// when a type and a delimiter follow.
		if typ == "" || (p.peek() != '{' && p.peek() != '(') {
			continue
		}
		open := p.next()
		closer := '}'
		if open == '(' {
			closer = ')'
		}

		switch strings.ToLower(typ) {
		case "comment", "preamble", "string":
			if err := p.skipBalanced(closer); err != nil {
				return nil, fmt.Errorf("line %d: %w", startLine, err)
			}
			continue
		}

		e, err := p.entryBody(typ, closer)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", startLine, err)
		}
		e.Line = startLine
		out = append(out, e)
	}
}

func (p *parser) entryBody(typ string, closer rune) (Entry, error) {
	e := Entry{Type: typ}
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ',' && p.src[p.pos] != closer {
		p.next()
	}
	e.Key = strings.TrimSpace(string(p.src[start:p.pos]))
	if e.Key == "" {
		return e, fmt.Errorf("entry @%s without key", typ)
	}

	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return e, fmt.Errorf("unterminated entry %s", e.Key)
		}
		c := p.next()
		if c == closer {
			return e, nil
		}
		if c != ',' {
			return e, fmt.Errorf("entry %s: unexpected %q", e.Key, c)
		}
		p.skipSpace()
		if p.peek() == closer {
			continue
		}
		name := p.ident()
		if name == "" {
			return e, fmt.Errorf("entry %s: missing field name", e.Key)
		}
		p.skipSpace()
		if p.next() != '=' {
			return e, fmt.Errorf("entry %s: expected '=' after %s", e.Key, name)
		}
		p.skipSpace()
		val, err := p.value(closer)
		if err != nil {
			return e, fmt.Errorf("entry %s field %s: %w", e.Key, name, err)
		}
		e.Fields = append(e.Fields, Field{Name: name, Value: val})
	}
}

// value reads a braced, quoted or bare value, including '#' concatenation.
func (p *parser) value(closer rune) (string, error) {
	var b strings.Builder
	for {
		p.skipSpace()
		switch c := p.peek(); c {
		case '{':
			p.next()
			s, err := p.braced()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case '"':
			p.next()
			s, err := p.quoted()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		default:
			start := p.pos
			for p.pos < len(p.src) && p.src[p.pos] != ',' && p.src[p.pos] != closer && p.src[p.pos] != '#' {
				p.next()
			}
			b.WriteString(strings.TrimSpace(string(p.src[start:p.pos])))
		}
		p.skipSpace()
		if p.peek() != '#' {
			return dedent(b.String()), nil
		}
		p.next()
	}
}

func (p *parser) braced() (string, error) {
	depth := 1
	start := p.pos
	for p.pos < len(p.src) {
		switch p.next() {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return string(p.src[start : p.pos-1]), nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces")
}

func (p *parser) quoted() (string, error) {
	depth := 0
	start := p.pos
	for p.pos < len(p.src) {
		switch p.next() {
		case '{':
			depth++
		case '}':
			depth--
		case '"':
			if depth == 0 {
				return string(p.src[start : p.pos-1]), nil
			}
		}
	}
	return "", fmt.Errorf("unterminated quoted value")
}

func (p *parser) skipBalanced(closer rune) error {
	depth := 1
	opener := '{'
	if closer == ')' {
		opener = '('
	}
	for p.pos < len(p.src) {
		switch p.next() {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
	return fmt.Errorf("unterminated block")
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_-:.+/", r) {
			p.next()
			continue
		}
		break
	}
	return string(p.src[start:p.pos])
}

func (p *parser) skipTo(r rune) bool {
	for p.pos < len(p.src) {
		if p.src[p.pos] == r {
			return true
		}
		p.next()
	}
	return false
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.next()
	}
}

func (p *parser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) next() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	r := p.src[p.pos]
	p.pos++
	if r == '\n' {
		p.line++
	}
	return r
}

// dedent strips the indentation of continuation lines in multi-line values.
func dedent(v string) string {
	if !strings.Contains(v, "\n") {
		return v
	}
	lines := strings.Split(v, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

// Header is the opening line of an entry.
type Header struct {
	Line int
	Type string
	Key  string
}

// ParseHeader reads an entry header such as "@article{key,". Headers must
// start within the first five characters of the line.
func ParseHeader(line string) (Header, bool) {
	head := line
	if len(head) > 5 {
		head = head[:5]
	}
	if !strings.Contains(head, "@") {
		return Header{}, false
	}
	at := strings.Index(line, "@")
	open := strings.IndexAny(line, "{(")
	end := strings.LastIndex(line, ",")
	if open < at || end <= open {
		return Header{}, false
	}
	h := Header{
		Type: strings.ToLower(strings.TrimSpace(line[at+1 : open])),
		Key:  strings.TrimSpace(line[open+1 : end]),
	}
	switch h.Type {
	case "comment", "preamble", "string":
		return Header{}, false
	}
	return h, h.Key != ""
}

// EntryHeaders lists the entry headers of a BibTeX stream with their
// 1-based line numbers. It only looks at header lines, so it tolerates
// malformed field content in raw search results.
func EntryHeaders(r io.Reader) ([]Header, error) {
	var out []Header
	br := bufio.NewReader(r)
	for n := 1; ; n++ {
		line, err := br.ReadString('\n')
		if line != "" {
			if h, ok := ParseHeader(strings.TrimRight(line, "\r\n")); ok {
				h.Line = n
				out = append(out, h)
			}
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("scanning entry headers: %w", err)
		}
	}
}

// EntryKeys lists the entry keys of a BibTeX stream in file order.
func EntryKeys(r io.Reader) ([]string, error) {
	headers, err := EntryHeaders(r)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = h.Key
	}
	return keys, nil
}
