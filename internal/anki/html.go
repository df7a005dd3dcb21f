package anki

import (
	"crypto/sha1"
	"encoding/binary"
	"strings"

	"golang.org/x/net/html"
)

// StripHTML removes markup from a field value, keeping image file names
// in place of <img> tags and dropping script and style bodies. Entities are
// decoded. This is the text Anki stores in sfld and hashes into csum.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()

		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "script", "style":
				if tt == html.StartTagToken {
					skip++
				}
			case "img":
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "src" {
						b.WriteString(" ")
						b.Write(val)
						b.WriteString(" ")
					}
				}
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if n := string(name); (n == "script" || n == "style") && skip > 0 {
				skip--
			}
		}
	}
}

// FieldChecksum is the integer of the first 8 hex digits of the SHA-1 of
// the stripped field, as stored in notes.csum for duplicate checks
func FieldChecksum(field string) int64 {
	sum := sha1.Sum([]byte(StripHTML(field)))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}
