package extract

import (
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/ehr/measure-importer/internal/platform/ccda"
)

// Quantity is a physical quantity reported by an entry.
type Quantity struct {
	Scalar string `json:"scalar"`
	Units  string `json:"units,omitempty"`
}

// Record is the normalized form of one clinical entry.
type Record struct {
	ID          string              `json:"id,omitempty"`
	Codes       map[string][]string `json:"codes,omitempty"` // code system name -> codes
	Time        *time.Time          `json:"time,omitempty"`
	StartTime   *time.Time          `json:"start_time,omitempty"`
	EndTime     *time.Time          `json:"end_time,omitempty"`
	Value       *Quantity           `json:"value,omitempty"`
	Status      string              `json:"status,omitempty"`
	Description string              `json:"description,omitempty"`
}

// HasCode reports whether the record carries code in the named code system.
func (r Record) HasCode(system, code string) bool {
	for _, c := range r.Codes[system] {
		if c == code {
			return true
		}
	}
	return false
}

// EffectiveTime returns the point in time of the record, falling back to the
// start of its interval.
func (r Record) EffectiveTime() *time.Time {
	if r.Time != nil {
		return r.Time
	}
	return r.StartTime
}

var (
	entryID        = ccda.MustCompileSelector(`cda:id`)
	entryTime      = ccda.MustCompileSelector(`string(cda:effectiveTime/@value)`)
	entryStart     = ccda.MustCompileSelector(`string(cda:effectiveTime/cda:low/@value)`)
	entryEnd       = ccda.MustCompileSelector(`string(cda:effectiveTime/cda:high/@value)`)
	entryStatus    = ccda.MustCompileSelector(`string(cda:statusCode/@code)`)
	entryText      = ccda.MustCompileSelector(`normalize-space(cda:text)`)
	entryValue     = ccda.MustCompileSelector(`cda:value[@value]`)
	codeTranslated = ccda.MustCompileSelector(`cda:translation`)
	codeOrigText   = ccda.MustCompileSelector(`normalize-space(cda:originalText)`)
)

// newRecord builds a record from an entry node and the node holding its code.
// source may be nil when the entry has no code.
func newRecord(entry, source *xmlquery.Node) Record {
	r := Record{
		Status: entryStatus.Text(entry),
	}

	if id := entryID.First(entry); id != nil {
		r.ID = id.SelectAttr("extension")
		if r.ID == "" {
			r.ID = id.SelectAttr("root")
		}
	}

	r.Time = hl7Time(entryTime.Text(entry))
	r.StartTime = hl7Time(entryStart.Text(entry))
	r.EndTime = hl7Time(entryEnd.Text(entry))

	if v := entryValue.First(entry); v != nil {
		r.Value = &Quantity{
			Scalar: v.SelectAttr("value"),
			Units:  v.SelectAttr("unit"),
		}
	}

	if source != nil {
		r.Codes = extractCodes(source)
	}

	r.Description = entryText.Text(entry)
	if r.Description == "" && source != nil {
		r.Description = source.SelectAttr("displayName")
		if r.Description == "" {
			r.Description = codeOrigText.Text(source)
		}
	}

	return r
}

// extractCodes collects the code of a coded element and its translations,
// keyed by code system name. Codes without a code system are dropped.
func extractCodes(source *xmlquery.Node) map[string][]string {
	codes := map[string][]string{}
	addCode(codes, source)
	translations, _ := codeTranslated.Nodes(source)
	for _, t := range translations {
		addCode(codes, t)
	}
	if len(codes) == 0 {
		return nil
	}
	return codes
}

func addCode(codes map[string][]string, n *xmlquery.Node) {
	code := strings.TrimSpace(n.SelectAttr("code"))
	system := strings.TrimSpace(n.SelectAttr("codeSystem"))
	if code == "" || system == "" {
		return
	}
	name := ccda.CodeSystemName(system)
	for _, c := range codes[name] {
		if c == code {
			return
		}
	}
	codes[name] = append(codes[name], code)
}

func hl7Time(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := ccda.ParseHL7Time(v)
	if err != nil {
		return nil
	}
	return &t
}
