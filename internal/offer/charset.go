package offer

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"
)

// DecodeText converts a raw listing body to NFC-normalized UTF-8. A declared
// charset (e.g. "iso-8859-1") is honoured; undeclared bodies that are not valid
// UTF-8 are assumed to be windows-1252, the usual spreadsheet export encoding.
func DecodeText(body []byte, charset string) (string, error) {
	charset = strings.TrimSpace(charset)
	if charset == "" {
		if utf8.Valid(body) {
			return norm.NFC.String(string(body)), nil
		}
		out, err := charmap.Windows1252.NewDecoder().Bytes(body)
		if err != nil {
			return "", eris.Wrap(err, "offer: decode windows-1252")
		}
		return norm.NFC.String(string(out)), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", eris.Wrapf(err, "offer: unsupported charset %q", charset)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "offer: decode %s", charset)
	}
	return norm.NFC.String(string(out)), nil
}

// CharsetFromContentType returns the charset parameter of a Content-Type
// header value, or "" when absent or unparsable.
func CharsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
