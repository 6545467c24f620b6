// Package feed provides iCal feed parsing, serialization, and the
// availability sync pipeline.
package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rental-calendar-sync/backend/internal/storage/models"
)

// Parser parses iCal/ICS calendar feeds into normalized UTC events.
type Parser struct {
	httpClient *http.Client
}

// NewParser creates a new iCal parser with the given fetch timeout.
func NewParser(fetchTimeout time.Duration) *Parser {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Parser{
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// FetchAndParse downloads and parses an iCal feed from a URL. The request is
// bounded by the client timeout and the caller's context; a timeout surfaces
// as an error, never an indefinite hang.
func (p *Parser) FetchAndParse(ctx context.Context, url string) ([]models.NormalizedEvent, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building feed request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}

	return p.Parse(resp.Body)
}

// rawEvent accumulates a VEVENT's properties before validation.
type rawEvent struct {
	uid         string
	summary     string
	status      string
	start       string
	startParams string
	end         string
	endParams   string
}

// Parse reads iCal data and returns normalized events plus warnings for
// malformed components. A bad individual VEVENT is skipped, not fatal, so a
// partially corrupt feed still yields its valid events. Parsing is a pure
// function of the input: the same document always yields the same output.
func (p *Parser) Parse(r io.Reader) ([]models.NormalizedEvent, []string, error) {
	var events []models.NormalizedEvent
	var warnings []string
	var current *rawEvent
	var currentField string
	var currentParams string
	var multilineValue strings.Builder

	flushField := func() {
		if currentField != "" && current != nil {
			setEventField(current, currentField, currentParams, multilineValue.String())
		}
		currentField = ""
		currentParams = ""
		multilineValue.Reset()
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Handle line continuation (lines starting with space or tab)
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if currentField != "" {
				multilineValue.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, " "), "\t"))
			}
			continue
		}

		flushField()

		// Parse field:value
		colonIdx := strings.Index(line, ":")
		if colonIdx == -1 {
			continue
		}

		field := line[:colonIdx]
		value := line[colonIdx+1:]

		// Split property parameters (e.g., DTSTART;TZID=Europe/Paris:...)
		params := ""
		if semicolonIdx := strings.Index(field, ";"); semicolonIdx != -1 {
			params = field[semicolonIdx+1:]
			field = field[:semicolonIdx]
		}

		switch field {
		case "BEGIN":
			if value == "VEVENT" {
				current = &rawEvent{}
			}
		case "END":
			if value == "VEVENT" && current != nil {
				event, err := normalize(current)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("skipped malformed event %q: %v", current.uid, err))
				} else {
					events = append(events, event)
				}
				current = nil
			}
		case "UID", "SUMMARY", "STATUS", "DTSTART", "DTEND":
			if current != nil {
				currentField = field
				currentParams = params
				multilineValue.WriteString(value)
			}
		}
	}
	flushField()

	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("reading calendar: %w", err)
	}

	return events, warnings, nil
}

// setEventField sets a property on a rawEvent.
func setEventField(event *rawEvent, field, params, value string) {
	// Unescape common iCal escape sequences
	value = strings.ReplaceAll(value, "\\n", "\n")
	value = strings.ReplaceAll(value, "\\,", ",")
	value = strings.ReplaceAll(value, "\\;", ";")
	value = strings.ReplaceAll(value, "\\\\", "\\")

	switch field {
	case "UID":
		event.uid = value
	case "SUMMARY":
		event.summary = value
	case "STATUS":
		event.status = value
	case "DTSTART":
		event.start = value
		event.startParams = params
	case "DTEND":
		event.end = value
		event.endParams = params
	}
}

// normalize validates a raw VEVENT and converts it into a NormalizedEvent
// with both instants in UTC.
func normalize(raw *rawEvent) (models.NormalizedEvent, error) {
	if raw.uid == "" {
		return models.NormalizedEvent{}, fmt.Errorf("missing UID")
	}

	start, err := parseDateTime(raw.start, raw.startParams)
	if err != nil {
		return models.NormalizedEvent{}, fmt.Errorf("invalid DTSTART %q: %w", raw.start, err)
	}

	end, err := parseDateTime(raw.end, raw.endParams)
	if err != nil {
		return models.NormalizedEvent{}, fmt.Errorf("invalid DTEND %q: %w", raw.end, err)
	}

	if !end.After(start) {
		return models.NormalizedEvent{}, fmt.Errorf("DTEND is not after DTSTART")
	}

	return models.NormalizedEvent{
		ExternalID: raw.uid,
		Summary:    raw.summary,
		Start:      start,
		End:        end,
		Status:     mapStatus(raw.status),
	}, nil
}

// mapStatus maps an external event status onto the local block status.
// Cancelled events release their dates; everything else (confirmed,
// tentative, absent) holds them.
func mapStatus(external string) string {
	switch strings.ToUpper(strings.TrimSpace(external)) {
	case "CANCELLED", "CANCELED":
		return models.BlockStatusAvailable
	default:
		return models.BlockStatusUnavailable
	}
}

// parseDateTime parses an iCal date/time value, honoring the property's own
// timezone parameter. The returned instant is always UTC.
func parseDateTime(value, params string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing value")
	}

	loc := time.UTC
	if tzid := paramValue(params, "TZID"); tzid != "" {
		l, err := time.LoadLocation(tzid)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown TZID %q", tzid)
		}
		loc = l
	}

	// Common iCal date formats, offset-carrying first
	formats := []string{
		"20060102T150405Z",      // UTC datetime
		"2006-01-02T15:04:05Z",  // ISO 8601 UTC
		time.RFC3339,            // ISO 8601 with offset
		"20060102T150405-0700",  // datetime with offset
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC(), nil
		}
	}

	// Floating datetimes and dates are interpreted in the TZID location,
	// or UTC when none is given.
	localFormats := []string{
		"20060102T150405",
		"20060102",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, format := range localFormats {
		if t, err := time.ParseInLocation(format, value, loc); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// paramValue extracts a parameter value from an iCal property parameter
// string such as "TZID=Europe/Paris;VALUE=DATE-TIME".
func paramValue(params, key string) string {
	for _, part := range strings.Split(params, ";") {
		if kv := strings.SplitN(part, "=", 2); len(kv) == 2 && strings.EqualFold(kv[0], key) {
			return strings.Trim(kv[1], `"`)
		}
	}
	return ""
}
