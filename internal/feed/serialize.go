package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

const icalTimeFormat = "20060102T150405Z"

// Serialize renders a property's availability blocks as an iCal document for
// external consumption. One VEVENT is emitted per block that holds dates;
// released (available) blocks are omitted so consumers see only busy spans.
// The block ID doubles as a stable UID so re-exports round-trip cleanly.
func Serialize(propertyID string, blocks []models.AvailabilityBlock) string {
	var b strings.Builder

	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:-//rental-calendar-sync//availability//EN")
	writeLine(&b, "CALSCALE:GREGORIAN")

	now := time.Now().UTC().Format(icalTimeFormat)

	for _, block := range blocks {
		if block.Status == models.BlockStatusAvailable {
			continue
		}

		summary := "Unavailable"
		if block.Summary != nil && *block.Summary != "" {
			summary = *block.Summary
		}

		writeLine(&b, "BEGIN:VEVENT")
		writeLine(&b, fmt.Sprintf("UID:%s@%s", block.ID, propertyID))
		writeLine(&b, "DTSTAMP:"+now)
		writeLine(&b, "DTSTART:"+block.StartAt.UTC().Format(icalTimeFormat))
		writeLine(&b, "DTEND:"+block.EndAt.UTC().Format(icalTimeFormat))
		writeLine(&b, "SUMMARY:"+escapeText(summary))
		writeLine(&b, "STATUS:CONFIRMED")
		writeLine(&b, "END:VEVENT")
	}

	writeLine(&b, "END:VCALENDAR")

	return b.String()
}

// writeLine appends a CRLF-terminated content line.
func writeLine(b *strings.Builder, line string) {
	b.WriteString(line)
	b.WriteString("\r\n")
}

// escapeText escapes iCal text values per RFC 5545.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
