package preset

import (
	"encoding/json"
)

// TypeCustom tags presets created by the user rather than shipped benchmarks.
const TypeCustom = "custom"

// Preset is a named variant configuration snapshot.
// Fields not modeled here are kept in Extra and written back unchanged.
type Preset struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	HGVS        string `json:"hgvs"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	ModifiedAt  int64  `json:"modifiedAt"`

	Extra map[string]json.RawMessage `json:"-"`
}

type presetFields struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	HGVS        string `json:"hgvs"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	ModifiedAt  int64  `json:"modifiedAt"`
}

var knownFields = []string{"id", "title", "hgvs", "type", "description", "createdAt", "modifiedAt"}

func (p *Preset) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(presetFields{
		ID:          p.ID,
		Title:       p.Title,
		HGVS:        p.HGVS,
		Type:        p.Type,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		ModifiedAt:  p.ModifiedAt,
	})
	if err != nil || len(p.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(p.Extra)+len(knownFields))
	for k, v := range p.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (p *Preset) UnmarshalJSON(b []byte) error {
	var fields presetFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(raw, k)
	}

	*p = Preset{
		ID:          fields.ID,
		Title:       fields.Title,
		HGVS:        fields.HGVS,
		Type:        fields.Type,
		Description: fields.Description,
		CreatedAt:   fields.CreatedAt,
		ModifiedAt:  fields.ModifiedAt,
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// sameAs reports whether p identifies the same preset as other:
// equal ids, or equal hgvs and title.
func (p *Preset) sameAs(other *Preset) bool {
	if p.ID != "" && p.ID == other.ID {
		return true
	}
	return p.HGVS == other.HGVS && p.Title == other.Title
}

// mergeFrom copies the non-empty fields of update into p. Id and creation time are kept.
func (p *Preset) mergeFrom(update *Preset) {
	if update.Title != "" {
		p.Title = update.Title
	}
	if update.HGVS != "" {
		p.HGVS = update.HGVS
	}
	if update.Type != "" {
		p.Type = update.Type
	}
	if update.Description != "" {
		p.Description = update.Description
	}
	if len(update.Extra) > 0 {
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage, len(update.Extra))
		}
		for k, v := range update.Extra {
			p.Extra[k] = v
		}
	}
}
