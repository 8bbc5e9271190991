package model

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// fingerprintBodyLimit bounds how much body text participates in the hash.
// Mirrored records frequently diverge in trailing signatures and disclaimers.
const fingerprintBodyLimit = 256

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Fingerprint is a content hash over a normalized core of an item, used only
// for duplicate detection between the email and note representations of the
// same message. The core is kind-neutral: an email hashes its subject plus
// body, a note hashes its first line plus the remainder, both with the
// timestamp quantized to the minute, so that a mirrored pair collides even
// though the upstream emitted them under two entity types a few seconds
// apart.
func (x *Item) Fingerprint() string {
	var title, body string
	switch x.Kind {
	case KindEmail:
		title = x.Title
		body = x.Body
	default:
		title, body = splitFirstLine(x.Body)
		if x.Title != "" && title == "" {
			title = x.Title
		}
	}

	h := sha256.New()
	h.Write([]byte(normalizeText(title)))
	h.Write([]byte{0})
	h.Write([]byte(truncate(normalizeText(body), fingerprintBodyLimit)))
	h.Write([]byte{0})
	h.Write([]byte(x.CreatedAt.UTC().Truncate(time.Minute).Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

// splitFirstLine separates the first line of a note body from the rest.
func splitFirstLine(s string) (string, string) {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

// normalizeText strips HTML tags, collapses whitespace and lowercases, so
// the HTML body of an email and the plain-text body of its note mirror hash
// identically.
func normalizeText(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
