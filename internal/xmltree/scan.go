package xmltree

import (
	"bytes"
	"fmt"
	"html"
	"strings"
)

const whitespace = " \t\r\n"

var (
	cdataOpen    = []byte("<![CDATA[")
	cdataClose   = []byte("]]>")
	commentOpen  = []byte("<!--")
	commentClose = []byte("-->")
	procOpen     = []byte("<?")
	procClose    = []byte("?>")
)

// tag is one raw token split into name, attributes and the character data
// that follows it.
type tag struct {
	name        string
	attrs       []attr
	text        string
	end         bool
	selfClosing bool
}

type attr struct {
	name  string
	value string
}

// scanTag splits a raw token. ok is false for directives such as <!DOCTYPE>.
func scanTag(raw []byte) (t tag, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '<' || raw[1] == '!' || raw[1] == '?' {
		return t, false, nil
	}

	end := tagEnd(raw)
	if end < 0 {
		return t, false, fmt.Errorf("%w: unterminated tag %q", ErrMalformedDocument, raw)
	}

	body := bytes.TrimRight(raw[1:end], whitespace)
	if len(body) > 0 && body[0] == '/' {
		t.end = true
		body = body[1:]
	}
	if n := len(body); n > 0 && body[n-1] == '/' {
		t.selfClosing = true
		body = body[:n-1]
	}

	i := bytes.IndexAny(body, whitespace)
	if i < 0 {
		i = len(body)
	}
	if i == 0 {
		return t, false, fmt.Errorf("%w: empty tag name in %q", ErrMalformedDocument, raw)
	}
	t.name = string(body[:i])

	if t.attrs, err = scanAttrs(body[i:]); err != nil {
		return t, false, fmt.Errorf("%w on <%s>", err, t.name)
	}
	t.text = charData(raw[end+1:])
	return t, true, nil
}

// tagEnd returns the index of the '>' closing the tag, skipping quoted
// attribute values.
func tagEnd(raw []byte) int {
	var quote byte
	for i := 1; i < len(raw); i++ {
		switch c := raw[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

func scanAttrs(b []byte) ([]attr, error) {
	var attrs []attr
	for {
		b = bytes.TrimLeft(b, whitespace)
		if len(b) == 0 {
			return attrs, nil
		}

		eq := bytes.IndexByte(b, '=')
		if eq < 0 {
			return nil, fmt.Errorf("%w: attribute %q without value", ErrMalformedDocument, b)
		}
		name := bytes.TrimSpace(b[:eq])
		if len(name) == 0 || bytes.ContainsAny(name, whitespace) {
			return nil, fmt.Errorf("%w: bad attribute name %q", ErrMalformedDocument, name)
		}

		b = bytes.TrimLeft(b[eq+1:], whitespace)
		if len(b) == 0 || (b[0] != '"' && b[0] != '\'') {
			return nil, fmt.Errorf("%w: unquoted value for attribute %s", ErrMalformedDocument, name)
		}
		q := b[0]
		closing := bytes.IndexByte(b[1:], q)
		if closing < 0 {
			return nil, fmt.Errorf("%w: unterminated value for attribute %s", ErrMalformedDocument, name)
		}

		attrs = append(attrs, attr{
			name:  string(name),
			value: html.UnescapeString(string(b[1 : 1+closing])),
		})
		b = b[closing+2:]
	}
}

// charData decodes entities outside CDATA sections and returns the trimmed text.
func charData(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		i := bytes.Index(b, cdataOpen)
		if i < 0 {
			sb.WriteString(html.UnescapeString(string(b)))
			break
		}
		sb.WriteString(html.UnescapeString(string(b[:i])))
		b = b[i+len(cdataOpen):]

		j := bytes.Index(b, cdataClose)
		if j < 0 {
			sb.Write(b)
			break
		}
		sb.Write(b[:j])
		b = b[j+len(cdataClose):]
	}
	return strings.TrimSpace(sb.String())
}

// stripComments removes comments and processing instructions so character
// data on either side of them joins up. CDATA sections pass through intact.
func stripComments(doc []byte) ([]byte, error) {
	if !bytes.Contains(doc, commentOpen) && !bytes.Contains(doc, procOpen) {
		return doc, nil
	}

	out := make([]byte, 0, len(doc))
	for len(doc) > 0 {
		i := bytes.IndexByte(doc, '<')
		if i < 0 {
			out = append(out, doc...)
			break
		}
		out = append(out, doc[:i]...)
		doc = doc[i:]

		var closer []byte
		keep := false
		switch {
		case bytes.HasPrefix(doc, cdataOpen):
			closer, keep = cdataClose, true
		case bytes.HasPrefix(doc, commentOpen):
			closer = commentClose
		case bytes.HasPrefix(doc, procOpen):
			closer = procClose
		default:
			out = append(out, '<')
			doc = doc[1:]
			continue
		}

		j := bytes.Index(doc[2:], closer)
		if j < 0 {
			return nil, fmt.Errorf("%w: unterminated %q", ErrMalformedDocument, doc[:min(len(doc), 9)])
		}
		n := 2 + j + len(closer)
		if keep {
			out = append(out, doc[:n]...)
		}
		doc = doc[n:]
	}
	return out, nil
}
