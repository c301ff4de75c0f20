package note

import (
	"strings"
	"testing"
)

func TestDocument_EncodeDecodeRoundTrip(t *testing.T) {
	seq := 4
	doc := Document{
		Meta: Metadata{
			Label:      "Team Standup",
			StartDate:  "2025-03-10T09:00:00Z",
			EndDate:    "2025-03-10T09:30:00Z",
			Color:      "#ff8800",
			Location:   "Room 4",
			SourceUID:  "e1@example.com",
			SourceName: "Work",
			Sequence:   &seq,
			Recurring:  true,
		},
		Body: "# Team Standup\n\nnotes body\n",
	}

	text, err := doc.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(text, "---\n") {
		t.Fatalf("encoded text missing frontmatter fence: %q", text)
	}

	got := Decode(text)
	if got.Meta.SourceUID != doc.Meta.SourceUID {
		t.Errorf("SourceUID = %q, want %q", got.Meta.SourceUID, doc.Meta.SourceUID)
	}
	if got.Meta.SequenceOr(-1) != 4 {
		t.Errorf("Sequence = %d, want 4", got.Meta.SequenceOr(-1))
	}
	if got.Meta.Label != doc.Meta.Label || got.Meta.StartDate != doc.Meta.StartDate {
		t.Errorf("metadata mismatch: %+v", got.Meta)
	}
	if !got.Meta.Recurring {
		t.Error("Recurring flag lost")
	}
	if got.Body != doc.Body {
		t.Errorf("Body = %q, want %q", got.Body, doc.Body)
	}
}

func TestDecode_Unmanaged(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain note", "just some user text\n"},
		{"frontmatter without uid", "---\ntags: [personal]\n---\nbody\n"},
		{"unterminated frontmatter", "---\nsourceUid: x\nno closing fence"},
		{"broken yaml", "---\n: : :\n---\nbody\n"},
		{"empty", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := Decode(tc.text)
			if doc.Meta.Managed() {
				t.Errorf("text %q should decode as unmanaged", tc.text)
			}
		})
	}
}

func TestDecode_CRLF(t *testing.T) {
	text := "---\r\nsourceUid: abc\r\n---\r\nbody line\r\n"
	doc := Decode(text)
	if !doc.Meta.Managed() || doc.Meta.SourceUID != "abc" {
		t.Fatalf("CRLF frontmatter not decoded: %+v", doc.Meta)
	}
	if !strings.HasPrefix(doc.Body, "body line") {
		t.Errorf("Body = %q", doc.Body)
	}
}

func TestSequenceOr(t *testing.T) {
	var m Metadata
	if got := m.SequenceOr(-1); got != -1 {
		t.Errorf("absent sequence: got %d, want -1", got)
	}
	n := 0
	m.Sequence = &n
	if got := m.SequenceOr(-1); got != 0 {
		t.Errorf("zero sequence: got %d, want 0", got)
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		folder, name, want string
	}{
		{"Calendar", "a.md", "Calendar/a.md"},
		{"Calendar/", "a.md", "Calendar/a.md"},
		{"", "a.md", "a.md"},
		{".", "a.md", "a.md"},
	}
	for _, tc := range tests {
		if got := JoinPath(tc.folder, tc.name); got != tc.want {
			t.Errorf("JoinPath(%q, %q) = %q, want %q", tc.folder, tc.name, got, tc.want)
		}
	}
}
