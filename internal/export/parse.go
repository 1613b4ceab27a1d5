package export

import (
	"strings"

	"github.com/jmehdipour/sms-relay/internal/model"
)

type field int

const (
	fieldNone field = iota
	fieldName
	fieldNumber
	fieldDate
	fieldMsg
)

var keys = map[string]field{
	"name":    fieldName,
	"from":    fieldName,
	"sender":  fieldName,
	"number":  fieldNumber,
	"phone":   fieldNumber,
	"address": fieldNumber,
	"date":    fieldDate,
	"time":    fieldDate,
	"msg":     fieldMsg,
	"message": fieldMsg,
	"body":    fieldMsg,
}

// Parse splits an export dump into records. Records are separated by lines of
// three or more '-'; inside a record "Key: value" lines fill the fields and any
// other line continues the message.
func Parse(text string) []model.ExportRecord {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	out := []model.ExportRecord{}
	var chunk []string
	flush := func() {
		if rec, ok := parseChunk(chunk); ok {
			out = append(out, rec)
		}
		chunk = chunk[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if isDelimiter(line) {
			flush()
			continue
		}
		chunk = append(chunk, line)
	}
	flush()
	return out
}

func isDelimiter(line string) bool {
	line = strings.TrimSpace(line)
	return len(line) >= 3 && strings.Trim(line, "-") == ""
}

func splitKey(line string) (field, string) {
	k, v, ok := strings.Cut(line, ":")
	if !ok {
		return fieldNone, ""
	}
	f, ok := keys[strings.ToLower(strings.TrimSpace(k))]
	if !ok {
		return fieldNone, ""
	}
	return f, strings.TrimSpace(v)
}

func parseChunk(lines []string) (model.ExportRecord, bool) {
	var (
		rec   model.ExportRecord
		msg   []string
		known bool
	)
	for _, line := range lines {
		f, v := splitKey(line)
		switch f {
		case fieldName:
			rec.Name = v
		case fieldNumber:
			rec.Number = v
		case fieldDate:
			rec.Date = v
		case fieldMsg:
			msg = append(msg, v)
		default:
			if known && strings.TrimSpace(line) != "" {
				msg = append(msg, strings.TrimRight(line, " \t"))
			}
			continue
		}
		known = true
	}
	if !known {
		return model.ExportRecord{}, false
	}
	rec.Msg = strings.TrimSpace(strings.Join(msg, "\n"))
	return rec, true
}
