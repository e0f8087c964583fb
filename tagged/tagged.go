// Package tagged binds typed values to tagged literals like
//
//	#unit/duration "1D 10h 17m 36s"
//
// so they can be embedded into and extracted from structured text.
package tagged

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gwos/unit/duration"
)

// DurationTag is reserved for duration.Duration values
const DurationTag = "#unit/duration"

// define error types
var (
	ErrTagged       = errors.New("tagged literal error")
	ErrTagDuplicate = fmt.Errorf("%w: tag already registered", ErrTagged)
	ErrTagInvalid   = fmt.Errorf("%w: invalid tag", ErrTagged)
	ErrTagUnknown   = fmt.Errorf("%w: unknown tag", ErrTagged)
	ErrLiteral      = fmt.Errorf("%w: malformed literal", ErrTagged)
	ErrNoPrinter    = fmt.Errorf("%w: no printer for value", ErrTagged)
)

// Reader decodes the unquoted payload
type Reader func(payload string) (any, error)

// Printer encodes the value into payload if the value is supported
type Printer func(v any) (payload string, ok bool)

// Literal defines tagged literal found in text
type Literal struct {
	Tag     string
	Payload string
	Value   any
	// Offset and End are byte positions in source text
	Offset int
	End    int
}

type binding struct {
	tag     string
	reader  Reader
	printer Printer
}

// Registry keeps the bindings of tags, safe for concurrent use
type Registry struct {
	mu       sync.RWMutex
	bindings []binding
	byTag    map[string]int
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{byTag: make(map[string]int)}
}

// Register binds reader and printer to the tag
func (r *Registry) Register(tag string, reader Reader, printer Printer) error {
	if !isTag(tag) {
		return fmt.Errorf("%w: %q", ErrTagInvalid, tag)
	}
	if reader == nil || printer == nil {
		return fmt.Errorf("%w: %s: reader and printer required", ErrTagged, tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTag[tag]; ok {
		return fmt.Errorf("%w: %s", ErrTagDuplicate, tag)
	}
	r.byTag[tag] = len(r.bindings)
	r.bindings = append(r.bindings, binding{tag, reader, printer})
	return nil
}

// Read decodes exactly one literal, surrounding whitespace is ignored
func (r *Registry) Read(lit string) (any, error) {
	s := strings.TrimSpace(lit)
	tagEnd := scanTag(s, 0)
	if tagEnd == 0 {
		return nil, fmt.Errorf("%w: %q", ErrLiteral, lit)
	}
	b, ok := r.lookup(s[:tagEnd])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTagUnknown, s[:tagEnd])
	}
	payload, end, err := scanPayload(s, tagEnd)
	if err != nil || end != len(s) {
		return nil, fmt.Errorf("%w: %q", ErrLiteral, lit)
	}
	return b.reader(payload)
}

// Print encodes the value as literal with the first registered printer supporting it
func (r *Registry) Print(v any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bindings {
		if payload, ok := b.printer(v); ok {
			return b.tag + " " + strconv.Quote(payload), nil
		}
	}
	return "", fmt.Errorf("%w: %T", ErrNoPrinter, v)
}

// Extract finds and decodes all registered literals in text.
// Tags inside string tokens are text, unknown tags are skipped,
// a registered tag with malformed payload fails.
func (r *Registry) Extract(text string) ([]Literal, error) {
	var literals []Literal
	for pos := 0; pos < len(text); {
		switch text[pos] {
		case '"':
			pos = skipString(text, pos)
			continue
		case '\\':
			/* character literal like \" */
			pos += 2
			continue
		case '#':
		default:
			pos++
			continue
		}
		start := pos
		pos = start + 1
		/* a tag starts a token */
		if start > 0 && isTagByte(text[start-1]) {
			continue
		}
		tagEnd := scanTag(text, start)
		if tagEnd == start {
			continue
		}
		tag := text[start:tagEnd]
		b, ok := r.lookup(tag)
		if !ok {
			pos = tagEnd
			continue
		}
		payload, end, err := scanPayload(text, tagEnd)
		if err != nil {
			return nil, fmt.Errorf("%w: %s at offset %d", ErrLiteral, tag, start)
		}
		value, err := b.reader(payload)
		if err != nil {
			return nil, fmt.Errorf("%s at offset %d: %w", tag, start, err)
		}
		literals = append(literals, Literal{
			Tag:     tag,
			Payload: payload,
			Value:   value,
			Offset:  start,
			End:     end,
		})
		pos = end
	}
	return literals, nil
}

func (r *Registry) lookup(tag string) (binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byTag[tag]
	if !ok {
		return binding{}, false
	}
	return r.bindings[i], true
}

// skipString returns the position after the string token started at pos,
// an unterminated string runs to the end of text
func skipString(s string, pos int) int {
	for i := pos + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(s)
}

// scanTag returns the end of tag started at pos or pos if there is no tag
func scanTag(s string, pos int) int {
	if pos >= len(s) || s[pos] != '#' {
		return pos
	}
	end := pos + 1
	for end < len(s) && isTagByte(s[end]) {
		end++
	}
	if !isTag(s[pos:end]) {
		return pos
	}
	return end
}

// scanPayload reads whitespace and the quoted payload following the tag
func scanPayload(s string, pos int) (string, int, error) {
	ws := pos
	for ws < len(s) && (s[ws] == ' ' || s[ws] == '\t' || s[ws] == '\n' || s[ws] == '\r') {
		ws++
	}
	if ws == pos {
		return "", pos, ErrLiteral
	}
	quoted, err := strconv.QuotedPrefix(s[ws:])
	if err != nil || quoted[0] != '"' {
		return "", pos, ErrLiteral
	}
	payload, err := strconv.Unquote(quoted)
	if err != nil {
		return "", pos, ErrLiteral
	}
	return payload, ws + len(quoted), nil
}

// isTag checks for "#name" or "#namespace/name"
func isTag(tag string) bool {
	if len(tag) < 2 || tag[0] != '#' {
		return false
	}
	name := tag[1:]
	if !isAlpha(name[0]) {
		return false
	}
	ns, local, found := strings.Cut(name, "/")
	if found && (ns == "" || local == "" || strings.Contains(local, "/")) {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isTagByte(name[i]) {
			return false
		}
	}
	return name[len(name)-1] != '/'
}

func isTagByte(c byte) bool {
	return isAlpha(c) || ('0' <= c && c <= '9') || c == '.' || c == '-' || c == '_' || c == '/'
}

func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	if err := r.Register(DurationTag, readDuration, printDuration); err != nil {
		panic(err)
	}
	return r
}()

func readDuration(payload string) (any, error) {
	return duration.Parse(payload)
}

func printDuration(v any) (string, bool) {
	switch d := v.(type) {
	case duration.Duration:
		return d.String(), true
	case *duration.Duration:
		if d != nil {
			return d.String(), true
		}
	}
	return "", false
}

// Register binds reader and printer to the tag in the default registry
func Register(tag string, reader Reader, printer Printer) error {
	return defaultRegistry.Register(tag, reader, printer)
}

// Read decodes one literal with the default registry
func Read(lit string) (any, error) {
	return defaultRegistry.Read(lit)
}

// Print encodes the value with the default registry
func Print(v any) (string, error) {
	return defaultRegistry.Print(v)
}

// Extract finds literals with the default registry
func Extract(text string) ([]Literal, error) {
	return defaultRegistry.Extract(text)
}

// ReadDuration decodes "#unit/duration" literal
func ReadDuration(lit string) (duration.Duration, error) {
	v, err := Read(lit)
	if err != nil {
		return 0, err
	}
	d, ok := v.(duration.Duration)
	if !ok {
		return 0, fmt.Errorf("%w: %T is not a duration", ErrTagged, v)
	}
	return d, nil
}

// PrintDuration encodes duration as "#unit/duration" literal
func PrintDuration(d duration.Duration) string {
	return DurationTag + " " + strconv.Quote(d.String())
}
