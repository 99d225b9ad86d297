// Package frontmatter reads and writes the YAML front matter of node index files.
//
// Documents are edited through a yaml.Node tree so that keys the engine does
// not manage keep their order, style and comments across rewrites.
package frontmatter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/gridedit/internal/apperr"
)

const delim = "---"

// Keys managed by the engine.
const (
	KeyTitle  = "title"
	KeyWeight = "weight"
	KeyType   = "type"
)

// Document is a parsed index file.
type Document struct {
	doc    *yaml.Node // document node, carries head and foot comments
	fields *yaml.Node // mapping node inside doc

	// Body is everything after the closing delimiter line.
	Body string
	// HasFrontMatter is false when the file carried no leading --- block.
	HasFrontMatter bool

	crlf bool // front matter was written with \r\n line endings
}

// New returns an empty document with the given body.
func New(body string) *Document {
	d := emptyDocument()
	d.Body = body
	d.HasFrontMatter = true
	return d
}

// Parse splits data into front matter and body. Content without a front
// matter block parses to an empty mapping and the whole content as body.
// YAML that does not decode to a mapping yields apperr.ErrMalformed.
func Parse(data []byte) (*Document, error) {
	text := string(data)
	trimmed := strings.TrimLeft(text, "\n\r")

	if !strings.HasPrefix(trimmed, delim+"\n") && !strings.HasPrefix(trimmed, delim+"\r\n") {
		d := emptyDocument()
		d.Body = text
		return d, nil
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		// No closing delimiter: treat everything as body.
		d := emptyDocument()
		d.Body = text
		return d, nil
	}

	block := rest[:idx]
	after := rest[idx+1+len(delim):]
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		after = after[nl+1:]
	} else {
		after = ""
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, fmt.Errorf("frontmatter: %v: %w", err, apperr.ErrMalformed)
	}

	d := emptyDocument()
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		if doc.Content[0].Kind != yaml.MappingNode {
			return nil, fmt.Errorf("frontmatter: top level is not a mapping: %w", apperr.ErrMalformed)
		}
		d.doc = &doc
		d.fields = doc.Content[0]
	}
	d.Body = after
	d.HasFrontMatter = true
	d.crlf = strings.HasPrefix(trimmed, delim+"\r\n")
	return d, nil
}

// Title returns the title field, or "".
func (d *Document) Title() string {
	return d.String(KeyTitle)
}

// Type returns the type field, or "".
func (d *Document) Type() string {
	return d.String(KeyType)
}

// Weight returns the weight field. ok is false when the field is missing or
// not an integer.
func (d *Document) Weight() (weight int, ok bool) {
	n := d.lookup(KeyWeight)
	if n == nil || n.Kind != yaml.ScalarNode {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(n.Value))
	if err != nil {
		return 0, false
	}
	return v, true
}

// String returns the scalar value of key, or "".
func (d *Document) String(key string) string {
	n := d.lookup(key)
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}

// SetString sets key to a string scalar.
func (d *Document) SetString(key, value string) {
	d.set(key, "!!str", value)
}

// SetInt sets key to an integer scalar.
func (d *Document) SetInt(key string, value int) {
	d.set(key, "!!int", strconv.Itoa(value))
}

// Render serialises the document back to index file bytes.
func (d *Document) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	if len(d.fields.Content) > 0 || d.doc.HeadComment != "" {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d.doc); err != nil {
			return nil, fmt.Errorf("frontmatter: encode: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("frontmatter: encode: %w", err)
		}
	}
	buf.WriteString(delim + "\n")

	head := buf.Bytes()
	if d.crlf {
		head = bytes.ReplaceAll(head, []byte("\n"), []byte("\r\n"))
	}
	return append(head, d.Body...), nil
}

func (d *Document) lookup(key string) *yaml.Node {
	for i := 0; i+1 < len(d.fields.Content); i += 2 {
		if d.fields.Content[i].Value == key {
			return d.fields.Content[i+1]
		}
	}
	return nil
}

func (d *Document) set(key, tag, value string) {
	if n := d.lookup(key); n != nil {
		// Keep comments attached to the existing value.
		n.Kind = yaml.ScalarNode
		n.Tag = tag
		n.Value = value
		n.Style = 0
		n.Content = nil
		n.Anchor = ""
		n.Alias = nil
		return
	}
	d.fields.Content = append(d.fields.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
}

func emptyDocument() *Document {
	fields := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	return &Document{
		doc:    &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{fields}},
		fields: fields,
	}
}
