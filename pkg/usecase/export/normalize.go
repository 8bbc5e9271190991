package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/caselog/pkg/model"
)

// probe is one (field path, parser) candidate for a concept. Normalization is
// a set of ordered probe tables evaluated by firstMatch; the tables are the
// whole upstream-shape knowledge, so supporting a new tenant shape means
// adding a row, not code.
type probe[T any] struct {
	path  []string
	parse func(any) (T, bool)
}

// firstMatch evaluates probes in priority order and returns the first value
// that is present and parses.
func firstMatch[T any](record model.RawRecord, probes []probe[T]) (T, bool) {
	for _, p := range probes {
		if v, ok := record.Dig(p.path...); ok {
			if out, ok := p.parse(v); ok {
				return out, true
			}
		}
	}
	var zero T
	return zero, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts the timestamp spellings observed upstream: RFC3339-ish
// strings and numeric epochs (seconds, or milliseconds when implausibly
// large for seconds).
func parseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, val); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case float64:
		if val <= 0 {
			return time.Time{}, false
		}
		if val > 1e12 {
			return time.UnixMilli(int64(val)).UTC(), true
		}
		return time.Unix(int64(val), 0).UTC(), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return parseTime(f)
	default:
		return time.Time{}, false
	}
}

func parseText(v any) (string, bool) {
	s := model.Stringify(v)
	return s, s != ""
}

func parseID(v any) (string, bool) {
	s := model.UnwrapID(v)
	return s, s != ""
}

func timeProbes(paths ...string) []probe[time.Time] {
	probes := make([]probe[time.Time], 0, len(paths))
	for _, p := range paths {
		probes = append(probes, probe[time.Time]{path: strings.Split(p, "."), parse: parseTime})
	}
	return probes
}

func textProbes(paths ...string) []probe[string] {
	probes := make([]probe[string], 0, len(paths))
	for _, p := range paths {
		probes = append(probes, probe[string]{path: strings.Split(p, "."), parse: parseText})
	}
	return probes
}

func idProbes(paths ...string) []probe[string] {
	probes := make([]probe[string], 0, len(paths))
	for _, p := range paths {
		probes = append(probes, probe[string]{path: strings.Split(p, "."), parse: parseID})
	}
	return probes
}

// Probe tables per entity kind. Notes and comments prioritize creation-style
// timestamps, emails prioritize sent/received-style ones; bodies try nested
// shapes before flat ones.
var (
	noteTime    = timeProbes("createdAt", "createdDate", "created", "noteDate")
	emailTime   = timeProbes("sentAt", "sentDate", "receivedAt", "receivedDate", "date", "createdAt")
	commentTime = timeProbes("createdAt", "createdDate", "created")

	noteBody    = textProbes("body", "text", "note", "content", "message.body")
	emailBody   = textProbes("body.html", "body.text", "body", "message.body.text", "message.body", "htmlBody", "textBody")
	commentBody = textProbes("body", "text", "comment", "content")

	noteTitle  = textProbes("title", "subject")
	emailTitle = textProbes("subject", "title", "message.subject")

	noteID    = idProbes("noteId", "id")
	emailID   = idProbes("emailId", "messageId", "id")
	commentID = idProbes("commentId", "id")
)

// normalizeItem maps one raw record into canonical form. It never fails:
// every missing field degrades to a default, so one malformed record cannot
// abort the batch. The author stays empty here; the resolver fills it during
// enrichment.
func normalizeItem(raw model.RawRecord, kind model.Kind, now time.Time) *model.Item {
	item := &model.Item{Kind: kind}

	var timeTable []probe[time.Time]
	var bodyTable, titleTable, idTable []probe[string]
	switch kind {
	case model.KindEmail:
		timeTable, bodyTable, titleTable, idTable = emailTime, emailBody, emailTitle, emailID
	default:
		timeTable, bodyTable, titleTable, idTable = noteTime, noteBody, noteTitle, noteID
	}

	if id, ok := firstMatch(raw, idTable); ok {
		item.ID = string(kind) + "-" + id
	} else {
		item.ID = string(kind) + "-" + placeholderID(raw)
	}

	if ts, ok := firstMatch(raw, timeTable); ok {
		item.CreatedAt = ts
	} else {
		item.CreatedAt = now
		item.TimeSynthesized = true
	}

	item.Body, _ = firstMatch(raw, bodyTable)
	if title, ok := firstMatch(raw, titleTable); ok {
		item.Title = title
	} else {
		item.Title = firstLine(item.Body)
	}

	return item
}

// normalizeComment maps one raw sub-record into canonical form, with the
// same degrade-never-fail policy as normalizeItem.
func normalizeComment(raw model.RawRecord, now time.Time) *model.Comment {
	comment := &model.Comment{}

	if id, ok := firstMatch(raw, commentID); ok {
		comment.ID = "comment-" + id
	} else {
		comment.ID = "comment-" + placeholderID(raw)
	}

	if ts, ok := firstMatch(raw, commentTime); ok {
		comment.CreatedAt = ts
	} else {
		comment.CreatedAt = now
		comment.TimeSynthesized = true
	}

	comment.Body, _ = firstMatch(raw, commentBody)

	return comment
}

// placeholderID derives a stable synthetic id from the record content.
// encoding/json sorts map keys, so the same record always hashes the same.
func placeholderID(raw model.RawRecord) string {
	encoded, err := json.Marshal(raw)
	if err != nil {
		encoded = []byte("unencodable")
	}
	sum := sha256.Sum256(encoded)
	return "gen-" + hex.EncodeToString(sum[:])[:12]
}

const titleLimit = 120

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > titleLimit {
		s = s[:titleLimit]
	}
	return strings.TrimSpace(s)
}
