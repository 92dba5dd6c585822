package protocol

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	rootOpen  = "<root>"
	rootClose = "</root>"
)

// docMsg is one top-level <msg> of a reply document.
type docMsg struct {
	start, end int // byte range of the start tag within the wrapped text
	selfClose  bool
	attrs      []xml.Attr
	children   []docChild
}

// docChild is a direct child of <msg>: its tag and the character data that
// precedes its first nested element.
type docChild struct {
	tag    string
	text   string
	nested bool
}

// wrap returns text enclosed in the synthetic root.
func wrap(text string) string {
	return rootOpen + text + rootClose
}

// readDocument strictly parses the wrapped reply and returns its top-level
// <msg> elements in document order.
func readDocument(wrapped string) ([]docMsg, error) {
	d := xml.NewDecoder(strings.NewReader(wrapped))
	d.Strict = true

	var (
		msgs     []docMsg
		cur      *docMsg
		child    *docChild
		depth    int
		rootSeen bool
	)
	for {
		off := int(d.InputOffset())
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if rootSeen {
					return nil, errors.New("content after document root")
				}
				rootSeen = true
			case 2:
				if t.Name.Local == "msg" {
					end := int(d.InputOffset())
					msgs = append(msgs, docMsg{
						start:     off,
						end:       end,
						selfClose: strings.HasSuffix(wrapped[off:end], "/>"),
						attrs:     t.Attr,
					})
					cur = &msgs[len(msgs)-1]
				}
			case 3:
				if cur != nil {
					cur.children = append(cur.children, docChild{tag: t.Name.Local})
					child = &cur.children[len(cur.children)-1]
				}
			case 4:
				if child != nil {
					child.nested = true
				}
			}
		case xml.EndElement:
			switch depth {
			case 2:
				cur = nil
			case 3:
				child = nil
			}
			depth--
		case xml.CharData:
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return nil, errors.New("text outside document root")
			}
			if depth == 3 && child != nil && !child.nested {
				child.text += string(t)
			}
		}
	}
	if depth != 0 || !rootSeen {
		return nil, fmt.Errorf("unbalanced document")
	}
	return msgs, nil
}
