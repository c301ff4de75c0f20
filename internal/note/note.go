package note

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the structured frontmatter block at the head of a managed
// note. It is the only state that survives between sync runs; idempotence
// and orphan detection both key off it.
type Metadata struct {
	Label        string `yaml:"label,omitempty"`
	StartDate    string `yaml:"startDate,omitempty"`
	EndDate      string `yaml:"endDate,omitempty"`
	Color        string `yaml:"color,omitempty"`
	Location     string `yaml:"location,omitempty"`
	SourceUID    string `yaml:"sourceUid,omitempty"`
	SourceName   string `yaml:"sourceName,omitempty"`
	Sequence     *int   `yaml:"sourceSequence,omitempty"`
	LastModified string `yaml:"sourceLastModified,omitempty"`
	Recurring    bool   `yaml:"recurring,omitempty"`
	Anniversary  bool   `yaml:"anniversary,omitempty"`
}

// Managed reports whether the note was authored by the sync engine.
// Notes without a source UID are user content sharing the folder and are
// never touched.
func (m Metadata) Managed() bool {
	return m.SourceUID != ""
}

// SequenceOr returns the stored sequence number, or def when absent.
func (m Metadata) SequenceOr(def int) int {
	if m.Sequence == nil {
		return def
	}
	return *m.Sequence
}

// Document is a note split into its frontmatter and markdown body.
type Document struct {
	Meta Metadata
	Body string
}

const frontmatterFence = "---"

// Encode renders the document back to note text. A zero Meta produces no
// frontmatter block at all.
func (d Document) Encode() (string, error) {
	if d.Meta == (Metadata{}) {
		return d.Body, nil
	}
	data, err := yaml.Marshal(d.Meta)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(frontmatterFence)
	b.WriteByte('\n')
	b.Write(data)
	b.WriteString(frontmatterFence)
	b.WriteByte('\n')
	b.WriteString(d.Body)
	return b.String(), nil
}

// Decode splits note text into frontmatter and body. It is lenient by
// design: text without a well-formed leading frontmatter block, or with
// YAML the codec cannot read, decodes to a zero Meta and the full text as
// body. Such notes are simply unmanaged.
func Decode(text string) Document {
	rest, ok := strings.CutPrefix(text, frontmatterFence+"\n")
	if !ok {
		// Tolerate CRLF line endings on the opening fence.
		rest, ok = strings.CutPrefix(text, frontmatterFence+"\r\n")
		if !ok {
			return Document{Body: text}
		}
	}

	end := strings.Index(rest, "\n"+frontmatterFence)
	if end < 0 {
		return Document{Body: text}
	}

	head := rest[:end]
	body := rest[end+1+len(frontmatterFence):]
	// Drop the newline that closed the fence line.
	body = strings.TrimPrefix(strings.TrimPrefix(body, "\r"), "\n")

	var meta Metadata
	if err := yaml.Unmarshal([]byte(head), &meta); err != nil {
		return Document{Body: text}
	}
	return Document{Meta: meta, Body: body}
}
