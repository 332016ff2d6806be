package reconcile

import (
	"strings"

	"github.com/trunov/optihub/internal/entities"
)

var filenameReplacer = strings.NewReplacer(
	"?", "", "[", "", "]", "", "=", "", "<", "", ">", "",
	":", "", ";", "", ",", "", "'", "", "\"", "", "&", "",
	"$", "", "#", "", "*", "", "(", "", ")", "", "|", "",
	"~", "", "`", "", "!", "", "{", "", "}", "", "%", "",
	"+", "",
)

// SanitizeFilename strips path components and characters that are unsafe in a
// filename, and collapses whitespace into dashes. Queued entries and uploaded
// files run through the same function, so a reported filename and the record
// it waits for cannot disagree on spacing.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	name = filenameReplacer.Replace(name)
	return strings.Join(strings.Fields(name), "-")
}

// sanitizeEntry normalizes an entry before it enters the queue: string fields
// trimmed, size fields clamped to non-negative.
func sanitizeEntry(e entities.PendingEntry) entities.PendingEntry {
	e.Filename = SanitizeFilename(e.Filename)
	e.OriginalFormat = strings.TrimSpace(e.OriginalFormat)
	e.ConvertedFormat = strings.TrimSpace(e.ConvertedFormat)
	if e.OriginalFilesize < 0 {
		e.OriginalFilesize = 0
	}
	if e.ConvertedFilesize < 0 {
		e.ConvertedFilesize = 0
	}
	return e
}
