package ical

import "strings"

// RFC 5545 content-line folding limits, in octets excluding CRLF. The
// first physical line of a folded content line may carry 75 octets of
// payload; every continuation line starts with a single space, so only
// 74 octets of payload fit.
const (
	foldLimit = 75
	contLimit = 74
)

// escapeNewlines rewrites embedded newline characters as the literal
// two-character sequence `\n`. The folder requires its input to be free
// of raw newlines; the line sequencers run every generated line through
// this before folding.
func escapeNewlines(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	return strings.ReplaceAll(s, "\n", `\n`)
}

// isContinuationByte reports whether b is a UTF-8 continuation byte
// (0x80–0xBF), i.e. not a valid position to start a new physical line.
func isContinuationByte(b byte) bool {
	return b&0xC0 == 0x80
}

// splitPoint returns the length in bytes of the next segment to emit
// from rem, given the octet budget limit for that segment.
//
// If rem fits within the budget, the whole remainder is the segment.
// Otherwise the cut is placed at the right-most position within the
// budget that does not land inside a multi-byte UTF-8 sequence. If no
// such position exists the whole remainder is emitted as one oversized
// segment; an over-long physical line is preferable to a broken
// character or an empty segment.
func splitPoint(rem string, limit int) int {
	if len(rem) <= limit {
		return len(rem)
	}
	for i := limit; i > 0; i-- {
		if !isContinuationByte(rem[i]) {
			return i
		}
	}
	return len(rem)
}

// appendFolded appends the folded physical-line form of one logical line
// to dst, each physical line CRLF-terminated and continuation lines
// prefixed with a single space. An empty logical line appends nothing.
//
// Concatenating the output and deleting every CRLF that is immediately
// followed by a single space yields the input unchanged.
func appendFolded(dst []byte, line string) []byte {
	if line == "" {
		return dst
	}

	n := splitPoint(line, foldLimit)
	dst = append(dst, line[:n]...)
	dst = append(dst, '\r', '\n')
	line = line[n:]

	for len(line) > 0 {
		n = splitPoint(line, contLimit)
		dst = append(dst, ' ')
		dst = append(dst, line[:n]...)
		dst = append(dst, '\r', '\n')
		line = line[n:]
	}
	return dst
}
