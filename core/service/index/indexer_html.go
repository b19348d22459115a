package index

import (
	"strings"

	"golang.org/x/net/html"
)

// skipElements are elements whose text content is discarded entirely.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

// blockElements get a whitespace boundary so adjacent blocks do not fuse
// into one token.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "td": true,
	"th": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "blockquote": true, "pre": true, "table": true,
}

// htmlToText strips markup from a mail body and returns the plain text with
// whitespace collapsed. Invalid markup degrades to text; the tokenizer of
// x/net/html never fails on malformed input.
func htmlToText(markup string) string {
	if markup == "" {
		return ""
	}

	var (
		b         strings.Builder
		tz        = html.NewTokenizer(strings.NewReader(markup))
		skipDepth = 0
		lastSpace = true
	)

	writeSpace := func() {
		if b.Len() > 0 && !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}

	for {
		switch tz.Next() {
		case html.ErrorToken:
			return strings.TrimRight(b.String(), " ")

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if skipElements[tag] {
				skipDepth++
			}
			if blockElements[tag] {
				writeSpace()
			}

		case html.EndTagToken:
			name, _ := tz.TagName()
			tag := string(name)
			if skipElements[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockElements[tag] {
				writeSpace()
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			for _, r := range string(tz.Text()) {
				switch r {
				case ' ', '\t', '\n', '\r', '\f', '\u00a0':
					writeSpace()
				default:
					b.WriteRune(r)
					lastSpace = false
				}
			}
		}
	}
}
