package sync

import (
	"regexp"
	"strings"
	"time"

	"icsnotes/internal/config"
	"icsnotes/internal/ics"
	"icsnotes/internal/model"
	"icsnotes/internal/note"
)

// maxTitleRunes bounds the sanitized summary inside an identity key so
// derived filenames stay portable.
const maxTitleRunes = 120

// IdentityKey derives the deterministic, human-readable key that locates
// an event's note on disk: ISO date of the start plus the sanitized
// summary. The UID deliberately plays no part here; it travels in note
// metadata instead.
func IdentityKey(ev model.Event) string {
	return ev.Start.Format("2006-01-02") + " " + SanitizeTitle(ev.Summary)
}

// NotePath returns the store path of the note representing ev inside
// folder.
func NotePath(folder string, ev model.Event) string {
	return note.JoinPath(folder, IdentityKey(ev)+".md")
}

// SanitizeTitle makes a summary safe for use in a filename: strips
// characters that are illegal on common filesystems, collapses runs of
// whitespace, and truncates to a bounded length.
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteByte(' ')
		default:
			if r < 0x20 || r == 0x7f {
				b.WriteByte(' ')
				continue
			}
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if cleaned == "" {
		return "untitled"
	}

	runes := []rune(cleaned)
	if len(runes) > maxTitleRunes {
		cleaned = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return cleaned
}

// BuildDocument serializes an event into the note form persisted by the
// reconciler: structured frontmatter plus a human-readable markdown body.
func BuildDocument(ev model.Event, feed config.FeedConfig) note.Document {
	meta := note.Metadata{
		Label:        ev.Summary,
		StartDate:    formatStamp(ev.Start, ev.AllDay),
		Color:        feed.Color,
		Location:     ev.Location,
		SourceUID:    ev.UID,
		SourceName:   feed.Name,
		Sequence:     ev.Sequence,
		LastModified: ev.LastModified,
		Recurring:    ev.Recurring,
		Anniversary:  ics.IsYearlyRecurring(ev),
	}
	if ev.HasEnd() {
		meta.EndDate = formatStamp(ev.End, ev.AllDay)
	}

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(ev.Summary)
	b.WriteString("\n\n")

	if !ev.AllDay {
		b.WriteString("**When:** ")
		b.WriteString(ev.Start.Format("2006-01-02 15:04"))
		if ev.HasEnd() {
			b.WriteString(" – ")
			if sameDay(ev.Start, ev.End) {
				b.WriteString(ev.End.Format("15:04"))
			} else {
				b.WriteString(ev.End.Format("2006-01-02 15:04"))
			}
		}
		b.WriteString("\n\n")
	}

	if ev.Location != "" {
		b.WriteString("**Where:** ")
		b.WriteString(ev.Location)
		b.WriteString("\n\n")
	}

	if desc := StripHTML(ev.Description); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n")
	}

	return note.Document{Meta: meta, Body: b.String()}
}

func formatStamp(t time.Time, allDay bool) string {
	if allDay {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var (
	reBreak     = regexp.MustCompile(`(?i)<br\s*/?>`)
	reParaClose = regexp.MustCompile(`(?i)</p\s*>`)
	reListItem  = regexp.MustCompile(`(?i)<li\b[^>]*>`)
	reTag       = regexp.MustCompile(`<[^>]+>`)
	reBlankRuns = regexp.MustCompile(`\n{3,}`)
)

// entityReplacer decodes the five standard HTML entities. The single
// left-to-right pass means "&amp;lt;" decodes to "&lt;", never to "<".
var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&amp;", "&",
)

// StripHTML turns the HTML fragments calendar feeds put in DESCRIPTION
// into plain text: breaks and paragraph closes become newlines, list items
// become dashes, remaining tags are dropped, the standard entities are
// decoded, and long runs of blank lines are collapsed.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = reBreak.ReplaceAllString(s, "\n")
	s = reParaClose.ReplaceAllString(s, "\n\n")
	s = reListItem.ReplaceAllString(s, "\n- ")
	s = reTag.ReplaceAllString(s, "")
	s = entityReplacer.Replace(s)
	s = reBlankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
