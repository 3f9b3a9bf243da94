// Package models contains the data shapes exchanged with newslabels callers.
package models

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Field names the service reads or writes on an article object.
const (
	FieldTitle   = "title"
	FieldContent = "content"
	FieldLabel   = "label"
)

// Article is one element of a labeling batch.
// Identity is the position in the batch; there is no persistent ID.
type Article struct {
	// Extra holds every other field of the caller's object so it can be
	// echoed back unchanged.
	Extra   map[string]json.RawMessage
	Label   *string
	Title   string
	Content string

	// set when the decoded object carried the field, even as null or ""
	hadTitle   bool
	hadContent bool

	// set when the decoded object carried the field as an explicit null
	nullTitle   bool
	nullContent bool
	nullLabel   bool
}

// SetLabel attaches a label, overwriting any previous one.
func (a *Article) SetLabel(label string) {
	a.Label = &label
}

// HasLabel reports whether the article carries a label field.
func (a *Article) HasLabel() bool {
	return a.Label != nil
}

// Fields returns the ordered text fields used to embed the article.
func (a *Article) Fields() []string {
	return []string{a.Title, a.Content}
}

// UnmarshalJSON decodes an article object. Missing or null title and content
// decode to the empty string; explicit nulls are remembered so MarshalJSON
// can echo them.
func (a *Article) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("article must be a JSON object")
	}

	title, err := optionalString(raw, FieldTitle)
	if err != nil {
		return err
	}
	content, err := optionalString(raw, FieldContent)
	if err != nil {
		return err
	}

	rawTitle, hadTitle := raw[FieldTitle]
	rawContent, hadContent := raw[FieldContent]
	*a = Article{
		Title:       title,
		Content:     content,
		hadTitle:    hadTitle,
		hadContent:  hadContent,
		nullTitle:   hadTitle && isNull(rawTitle),
		nullContent: hadContent && isNull(rawContent),
	}

	// A null label stays nil but is echoed back unless a label is set.
	if v, ok := raw[FieldLabel]; ok {
		if isNull(v) {
			a.nullLabel = true
		} else {
			label, err := optionalString(raw, FieldLabel)
			if err != nil {
				return err
			}
			a.Label = &label
		}
	}

	for _, k := range []string{FieldTitle, FieldContent, FieldLabel} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	return nil
}

// MarshalJSON encodes the article with its preserved extra fields. Fields
// are written back as the caller sent them: absent stays absent and null
// stays null, unless the value has since been set.
func (a Article) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+3)
	for k, v := range a.Extra {
		out[k] = v
	}
	putText(out, FieldTitle, a.Title, a.hadTitle, a.nullTitle)
	putText(out, FieldContent, a.Content, a.hadContent, a.nullContent)
	switch {
	case a.Label != nil:
		out[FieldLabel] = *a.Label
	case a.nullLabel:
		out[FieldLabel] = nil
	}
	return json.Marshal(out)
}

func putText(out map[string]any, field, value string, had, null bool) {
	switch {
	case value != "":
		out[field] = value
	case null:
		out[field] = nil
	case had:
		out[field] = ""
	}
}

func optionalString(raw map[string]json.RawMessage, field string) (string, error) {
	v, ok := raw[field]
	if !ok || isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("article field %q must be a string", field)
	}
	return s, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
