package session

import (
	"fmt"
	"strings"
)

// Extraction is the outcome of one pattern lookup in the login chain.
// An unmatched extraction carries an empty Value.
type Extraction struct {
	Step     string `json:"step"`
	Field    string `json:"field"`
	Value    string `json:"-"` // tokens and assertions stay out of logs and API output
	Matched  bool   `json:"matched"`
	Fallback bool   `json:"fallback,omitempty"` // value came from the HTML form lookup
}

// Diagnostics collects every extraction of one Acquire call, in step order
type Diagnostics struct {
	Extractions []Extraction `json:"extractions"`
}

func (d *Diagnostics) add(e Extraction) {
	d.Extractions = append(d.Extractions, e)
}

// Missing returns the extractions that found nothing
func (d Diagnostics) Missing() []Extraction {
	var out []Extraction
	for _, e := range d.Extractions {
		if !e.Matched {
			out = append(out, e)
		}
	}
	return out
}

// Value returns the last extracted value of field, or ""
func (d Diagnostics) Value(field string) string {
	for i := len(d.Extractions) - 1; i >= 0; i-- {
		if d.Extractions[i].Field == field {
			return d.Extractions[i].Value
		}
	}
	return ""
}

// String summarizes missing fields, e.g. "2 missing: sso/csrfToken, validate/opCo"
func (d Diagnostics) String() string {
	missing := d.Missing()
	if len(missing) == 0 {
		return fmt.Sprintf("%d extractions, none missing", len(d.Extractions))
	}
	names := make([]string, len(missing))
	for i, e := range missing {
		names[i] = e.Step + "/" + e.Field
	}
	return fmt.Sprintf("%d missing: %s", len(missing), strings.Join(names, ", "))
}
