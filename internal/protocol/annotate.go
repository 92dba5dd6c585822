package protocol

import (
	"encoding/xml"
	"regexp"
	"strings"
)

var messageIDAttr = regexp.MustCompile(`\s+message_id\s*=\s*("[^"]*"|'[^']*')`)

// Annotate writes message_id="ids[i]" onto the i-th top-level <msg> of the
// markup, replacing any existing message_id. An empty id strips whatever
// message_id the tag carried, so a failed send never keeps a model-written
// one. Apart from the rewritten start tags the markup is left byte for byte.
// If the markup does not parse it is returned unchanged.
func Annotate(markup string, ids []string) string {
	wrapped := wrap(markup)
	msgs, err := readDocument(wrapped)
	if err != nil {
		return markup
	}

	var b strings.Builder
	last := len(rootOpen)
	for i, m := range msgs {
		var id string
		if i < len(ids) {
			id = ids[i]
		}
		tag := wrapped[m.start:m.end]
		if id == "" && !messageIDAttr.MatchString(tag) {
			continue
		}
		b.WriteString(wrapped[last:m.start])
		b.WriteString(withMessageID(tag, m.selfClose, id))
		last = m.end
	}
	b.WriteString(wrapped[last : len(wrapped)-len(rootClose)])
	return b.String()
}

// withMessageID rewrites a raw <msg ...> start tag to carry id. An empty id
// only removes the existing attribute.
func withMessageID(tag string, selfClose bool, id string) string {
	tag = messageIDAttr.ReplaceAllString(tag, "")
	if id == "" {
		return tag
	}
	closer := ">"
	if selfClose {
		closer = "/>"
	}
	body := strings.TrimRight(strings.TrimSuffix(tag, closer), " \t\r\n")

	var b strings.Builder
	b.WriteString(body)
	b.WriteString(` message_id="`)
	_ = xml.EscapeText(&b, []byte(id))
	b.WriteString(`"`)
	b.WriteString(closer)
	return b.String()
}
