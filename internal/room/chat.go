package room

import (
	"html"
	"strings"
)

// MessageNode is the structured message tree clients submit (§4.7 Chat
// message handling): a tag, its attributes, and either child nodes or
// leaf text.
type MessageNode struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs"`
	Children []MessageNode     `json:"children,omitempty"`
	Text     string            `json:"text,omitempty"`
}

var forbiddenTags = map[string]bool{
	"SCRIPT": true,
	"STYLE":  true,
	"IFRAME": true,
}

// SanitizeMessage renders a client-submitted message tree to HTML
// through the strict whitelist of §4.7: tag names all-upper and not
// script|style|iframe; attribute names not on*/class/target; href
// values must start with http:// or https://; anchors get
// target=_blank. Nodes that fail the whitelist are dropped rather than
// failing the whole message (§8 scenario 6: a SCRIPT sibling is
// dropped, its siblings still render).
func SanitizeMessage(node MessageNode) string {
	var b strings.Builder
	sanitizeNode(&b, node)
	return b.String()
}

func sanitizeNode(b *strings.Builder, node MessageNode) {
	if node.Tag == "" {
		if len(node.Children) > 0 {
			for _, child := range node.Children {
				sanitizeNode(b, child)
			}
			return
		}
		b.WriteString(html.EscapeString(node.Text))
		return
	}
	tag := strings.ToUpper(node.Tag)
	if tag != node.Tag || forbiddenTags[tag] {
		return
	}

	lower := strings.ToLower(tag)
	b.WriteString("<")
	b.WriteString(lower)

	isAnchor := tag == "A"
	var href string
	for name, value := range node.Attrs {
		lname := strings.ToLower(name)
		if strings.HasPrefix(lname, "on") || lname == "class" || lname == "target" {
			continue
		}
		if lname == "href" {
			if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
				continue
			}
			href = value
			continue
		}
		b.WriteString(" ")
		b.WriteString(lname)
		b.WriteString("=\"")
		b.WriteString(html.EscapeString(value))
		b.WriteString("\"")
	}
	if isAnchor {
		if href != "" {
			b.WriteString(" href=\"")
			b.WriteString(html.EscapeString(href))
			b.WriteString("\"")
		}
		b.WriteString(" target=\"_blank\"")
	}
	b.WriteString(">")

	if len(node.Children) > 0 {
		for _, child := range node.Children {
			sanitizeNode(b, child)
		}
	} else {
		b.WriteString(html.EscapeString(node.Text))
	}

	b.WriteString("</")
	b.WriteString(lower)
	b.WriteString(">")
}
