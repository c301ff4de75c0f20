package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "icsnotes/internal/log"
	"icsnotes/internal/model"
)

// Parse parses a single ICS payload into a list of Events.
//
// Malformed records are dropped individually, not wholesale: when the
// calendar as a whole fails to parse, each VEVENT block is re-parsed on
// its own and only the broken ones are discarded. VEVENTs missing any of
// UID, SUMMARY or a decodable DTSTART are dropped too. An error is
// returned only when the payload yields nothing at all; callers must not
// treat that as an empty calendar.
func Parse(src Source, body []byte) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty payload")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return salvageEvents(src, body, err)
	}

	events := make([]model.Event, 0, len(cal.Events()))
	dropped := 0

	for _, comp := range cal.Events() {
		ev, ok := parseVEvent(comp)
		if !ok {
			dropped++
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed",
		"id", src.ID, "url", redactURL(src.URL),
		"event_count", len(events), "dropped", dropped)
	return events, nil
}

// salvageEvents recovers from a wholesale calendar parse failure by
// extracting the raw VEVENT blocks and parsing each block independently.
// A block that still fails is dropped on its own; if no block survives the
// original error is returned so the run fails rather than reconciling
// against an empty event list.
func salvageEvents(src Source, body []byte, cause error) ([]model.Event, error) {
	blocks := splitVEventBlocks(body)
	if len(blocks) == 0 {
		appLog.Error("ics parse failed", cause, "id", src.ID, "url", redactURL(src.URL))
		return nil, fmt.Errorf("parse calendar: %w", cause)
	}

	var events []model.Event
	dropped := 0
	for _, block := range blocks {
		wrapped := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//icsnotes//EN\r\n" +
			block + "END:VCALENDAR\r\n"
		cal, err := ical.ParseCalendar(strings.NewReader(wrapped))
		if err != nil {
			dropped++
			continue
		}
		for _, comp := range cal.Events() {
			ev, ok := parseVEvent(comp)
			if !ok {
				dropped++
				continue
			}
			events = append(events, ev)
		}
	}

	if len(events) == 0 {
		appLog.Error("ics parse failed, nothing salvageable", cause,
			"id", src.ID, "url", redactURL(src.URL), "blocks", len(blocks))
		return nil, fmt.Errorf("parse calendar: %w", cause)
	}

	appLog.Warn("ics parse degraded, salvaged per-event",
		"id", src.ID, "url", redactURL(src.URL),
		"event_count", len(events), "dropped", dropped, "cause", cause)
	return events, nil
}

// splitVEventBlocks returns the raw text of each VEVENT block, delimiter
// lines included, with CRLF line endings. Folded continuation lines start
// with whitespace, so the exact-match delimiters below never fire inside
// a folded value.
func splitVEventBlocks(body []byte) []string {
	var blocks []string
	var cur strings.Builder
	inEvent := false

	for _, rawLine := range strings.Split(string(body), "\n") {
		line := strings.TrimSuffix(rawLine, "\r")
		switch line {
		case "BEGIN:VEVENT":
			inEvent = true
			cur.Reset()
			cur.WriteString(line + "\r\n")
		case "END:VEVENT":
			if inEvent {
				cur.WriteString(line + "\r\n")
				blocks = append(blocks, cur.String())
				inEvent = false
			}
		default:
			if inEvent {
				cur.WriteString(line + "\r\n")
			}
		}
	}
	return blocks
}

// parseVEvent converts one VEVENT into an Event. The second return is
// false when a required field (UID, SUMMARY, DTSTART) is missing or
// undecodable; such records are discarded, not reported.
func parseVEvent(ve *ical.VEvent) (model.Event, bool) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, false
	}
	out.UID = uidProp.Value

	sumProp := ve.GetProperty(ical.ComponentPropertySummary)
	if sumProp == nil || sumProp.Value == "" {
		return out, false
	}
	out.Summary = unescapeText(sumProp.Value)

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil {
		return out, false
	}
	start, allDay, err := decodeDate(dtStartProp)
	if err != nil {
		return out, false
	}
	out.Start = start
	out.AllDay = allDay

	if dtEndProp := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEndProp != nil {
		if end, _, err := decodeDate(dtEndProp); err == nil {
			out.End = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = unescapeText(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = unescapeText(p.Value)
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil && rruleProp.Value != "" {
		out.Recurring = true
		out.RecurrenceRule = rruleProp.Value
	}

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Sequence = &n
		}
	}

	if lmProp := ve.GetProperty("LAST-MODIFIED"); lmProp != nil {
		out.LastModified = lmProp.Value
	}

	return out, true
}

// decodeDate decodes a DTSTART/DTEND property into a time plus an all-day
// flag. Rules:
//
//   - VALUE=DATE (and not DATE-TIME) means an 8-digit YYYYMMDD, treated as
//     midnight local with no timezone conversion.
//   - Otherwise the value has the form YYYYMMDDTHHMMSS[Z]; a trailing Z
//     means UTC, its absence means local time.
//   - A date-time value shorter than the full 15-character form is
//     degraded to all-day rather than rejected.
func decodeDate(prop *ical.IANAProperty) (time.Time, bool, error) {
	val := strings.TrimSpace(prop.Value)
	if val == "" {
		return time.Time{}, false, errors.New("empty date value")
	}

	if isDateOnly(prop) {
		t, err := time.ParseInLocation("20060102", val[:min(8, len(val))], time.Local)
		return t, true, err
	}

	if strings.HasSuffix(val, "Z") {
		t, err := time.Parse("20060102T150405Z", val)
		if err == nil {
			return t, false, nil
		}
		// Truncated UTC form; fall through to the all-day degrade below.
		val = strings.TrimSuffix(val, "Z")
	}

	if len(val) >= 15 {
		t, err := time.ParseInLocation("20060102T150405", val[:15], time.Local)
		return t, false, err
	}

	// Too short to carry a time of day.
	t, err := time.ParseInLocation("20060102", val[:min(8, len(val))], time.Local)
	return t, true, err
}

// isDateOnly reports whether the property carries VALUE=DATE and not
// VALUE=DATE-TIME.
func isDateOnly(prop *ical.IANAProperty) bool {
	params := prop.ICalParameters
	if params == nil {
		return false
	}
	vs, ok := params["VALUE"]
	if !ok {
		return false
	}
	for _, v := range vs {
		if strings.EqualFold(v, "DATE") {
			return true
		}
	}
	return false
}

// unescapeText reverses the ICS text escapes: \n (and \N) to newline,
// \, to comma, \; to semicolon, \\ to backslash. Unknown escapes keep the
// backslash as-is.
func unescapeText(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n', 'N':
			b.WriteByte('\n')
			i++
		case ',', ';', '\\':
			b.WriteByte(s[i+1])
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsYearlyRecurring reports whether the event repeats yearly. The rule is
// parsed properly when possible; rule text the library rejects falls back
// to a substring check so odd-but-recognizable feeds still classify.
func IsYearlyRecurring(ev model.Event) bool {
	if !ev.Recurring || ev.RecurrenceRule == "" {
		return false
	}
	if opt, err := rrule.StrToROption(ev.RecurrenceRule); err == nil {
		return opt.Freq == rrule.YEARLY
	}
	return strings.Contains(strings.ToUpper(ev.RecurrenceRule), "FREQ=YEARLY")
}
