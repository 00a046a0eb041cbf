package collector

import (
	"bytes"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

const binarySniffBytes = 512

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// typography folds the punctuation editors like to insert into plain ASCII.
// The C1 code points are what cp1252 quotes and dashes become after a lossy
// conversion.
var typography = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201C", "\"", "\u201D", "\"",
	"\u2013", "-", "\u2014", "--", "\u2026", "...", "\u00a0", " ",
	"\u0091", "'", "\u0092", "'", "\u0093", "\"", "\u0094", "\"",
	"\u0096", "-", "\u0097", "--",
)

// LooksBinary reports whether the first bytes of b contain a NUL.
func LooksBinary(b []byte) bool {
	if len(b) > binarySniffBytes {
		b = b[:binarySniffBytes]
	}
	return bytes.IndexByte(b, 0) >= 0
}

// CleanBytes turns raw file content into valid UTF-8 text without a byte
// order mark. src only labels the warning for invalid input.
func CleanBytes(b []byte, src string) string {
	b = bytes.TrimPrefix(b, utf8BOM)
	if !utf8.Valid(b) {
		log.Warnf("%s is not valid UTF-8, replacing invalid sequences", src)
		b = bytes.ToValidUTF8(b, []byte(string(utf8.RuneError)))
	}
	return typography.Replace(string(b))
}
