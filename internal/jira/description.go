package jira

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// maxDocumentDepth bounds recursion when flattening a document tree.
const maxDocumentDepth = 128

var errDocumentTooDeep = errors.New("document nesting too deep")

// Description is the decoded form of a rich-text field. It is either
// PlainText or RichDocument; a nil Description means the field was absent.
type Description interface {
	isDescription()
}

// PlainText is a description delivered as a bare string (API v2 style).
type PlainText string

// RichDocument is a description delivered as a structured document tree
// (Atlassian Document Format). Root is nil when the payload looked like a
// document but could not be decoded; Raw always holds the original bytes.
type RichDocument struct {
	Root *Node
	Raw  json.RawMessage
}

func (PlainText) isDescription()    {}
func (RichDocument) isDescription() {}

// Node is one element of a document tree. Marks and most attributes are
// formatting metadata and are dropped during extraction.
type Node struct {
	Type    string                 `json:"type"`
	Text    string                 `json:"text,omitempty"`
	Content []Node                 `json:"content,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
}

// DescriptionField carries a Description through JSON. The variant is
// chosen while decoding from the shape of the incoming value.
type DescriptionField struct {
	Value Description
}

// UnmarshalJSON never fails: shapes it cannot interpret are kept as a
// RichDocument without a Root so extraction can stringify them.
func (d *DescriptionField) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		d.Value = nil
		return nil
	}

	raw := json.RawMessage(append([]byte(nil), trimmed...))

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			d.Value = RichDocument{Raw: raw}
			return nil
		}
		d.Value = PlainText(s)
	case '{':
		if isEmptyObject(trimmed) {
			d.Value = nil
			return nil
		}
		d.Value = RichDocument{Root: decodeDocumentObject(trimmed), Raw: raw}
	case '[':
		var children []Node
		if err := json.Unmarshal(trimmed, &children); err != nil {
			d.Value = RichDocument{Raw: raw}
			return nil
		}
		d.Value = RichDocument{Root: &Node{Type: "doc", Content: children}, Raw: raw}
	default:
		d.Value = RichDocument{Raw: raw}
	}
	return nil
}

// decodeDocumentObject returns nil unless the object carries a "type"
// discriminator or a "content" array.
func decodeDocumentObject(data []byte) *Node {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	_, hasType := fields["type"]
	_, hasContent := fields["content"]
	if !hasType && !hasContent {
		return nil
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	return &n
}

// isEmptyObject reports whether data is a JSON object with no members.
func isEmptyObject(data []byte) bool {
	var fields map[string]json.RawMessage
	return json.Unmarshal(data, &fields) == nil && len(fields) == 0
}

// MarshalJSON writes the field back in the shape it arrived in.
func (d DescriptionField) MarshalJSON() ([]byte, error) {
	switch v := d.Value.(type) {
	case nil:
		return []byte("null"), nil
	case PlainText:
		return json.Marshal(string(v))
	case RichDocument:
		if len(v.Raw) > 0 {
			return v.Raw, nil
		}
		return json.Marshal(v.Root)
	default:
		return []byte("null"), nil
	}
}

// ExtractText flattens a description to plain text. It reports false when
// the field is absent or no text survives extraction. Plain text is
// returned unchanged; trees that cannot be walked fall back to the
// compacted source JSON.
func ExtractText(d Description) (string, bool) {
	switch v := d.(type) {
	case nil:
		return "", false
	case PlainText:
		if v == "" {
			return "", false
		}
		return string(v), true
	case RichDocument:
		if v.Root == nil {
			return stringify(v.Raw)
		}
		text, err := renderNode(v.Root, 0)
		if err != nil {
			return stringify(v.Raw)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", false
		}
		return text, true
	default:
		return "", false
	}
}

func stringify(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw), true
	}
	return buf.String(), true
}

// inlineAttrText lists inline nodes whose visible text lives in attrs.
var inlineAttrText = map[string]string{
	"mention":    "text",
	"emoji":      "text",
	"status":     "text",
	"inlineCard": "url",
}

// renderNode concatenates inline children and puts block children on
// their own lines.
func renderNode(n *Node, depth int) (string, error) {
	if depth > maxDocumentDepth {
		return "", errDocumentTooDeep
	}

	switch n.Type {
	case "text":
		return n.Text, nil
	case "hardBreak":
		return "\n", nil
	}
	if key, ok := inlineAttrText[n.Type]; ok {
		s, _ := n.Attrs[key].(string)
		return s, nil
	}
	if len(n.Content) == 0 {
		return n.Text, nil
	}

	var b strings.Builder
	prevBlock := false
	for i := range n.Content {
		child := &n.Content[i]
		s, err := renderNode(child, depth+1)
		if err != nil {
			return "", err
		}
		block := isBlock(child)
		if block && strings.TrimSpace(s) == "" {
			continue
		}
		if b.Len() > 0 && (block || prevBlock) {
			b.WriteString("\n")
		}
		b.WriteString(s)
		prevBlock = block
	}
	return b.String(), nil
}

func isBlock(n *Node) bool {
	switch n.Type {
	case "text", "hardBreak":
		return false
	}
	if _, ok := inlineAttrText[n.Type]; ok {
		return false
	}
	return true
}
