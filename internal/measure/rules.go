package measure

import (
	"fmt"
	"strings"
	"time"

	"github.com/ehr/measure-importer/internal/extract"
	"github.com/ehr/measure-importer/internal/platform/ccda"
)

// Rule fields understood by ParseRules. Other fields are carried in the
// definition but ignored by the filter.
const (
	ruleCodes     = "codes"
	ruleStartDate = "start_date"
	ruleEndDate   = "end_date"
	ruleStatuses  = "statuses"
	ruleStatus    = "status"
)

// MatchingRules is the filter form of a property's rule fields. A zero value
// matches every record.
type MatchingRules struct {
	Codes     map[string][]string // code system name -> accepted codes
	StartDate *time.Time
	EndDate   *time.Time
	Statuses  []string
}

// ParseRules reads the rule fields of a description.
//
//	codes:      {SNOMED-CT: ["44054006"], 2.16.840.1.113883.6.103: ["250.00"]}
//	start_date: 2010-01-01
//	end_date:   2010-12-31
//	statuses:   [completed, active]
//
// Code systems may be given by name or by OID. A date-only end_date covers
// the whole of its last day.
func ParseRules(rules extract.Rules) (MatchingRules, error) {
	var mr MatchingRules

	if v, ok := rules[ruleCodes]; ok && v != nil {
		systems, err := toStringMap(v)
		if err != nil {
			return MatchingRules{}, invalidDefinition("%s: %v", ruleCodes, err)
		}
		mr.Codes = make(map[string][]string, len(systems))
		for system, list := range systems {
			codes, err := codeStrings(list)
			if err != nil {
				return MatchingRules{}, invalidDefinition("%s.%s: %v", ruleCodes, system, err)
			}
			name := ccda.CodeSystemName(system)
			mr.Codes[name] = append(mr.Codes[name], codes...)
		}
	}

	if v, ok := rules[ruleStartDate]; ok && v != nil {
		t, _, err := ruleTime(v)
		if err != nil {
			return MatchingRules{}, invalidDefinition("%s: %v", ruleStartDate, err)
		}
		mr.StartDate = &t
	}

	if v, ok := rules[ruleEndDate]; ok && v != nil {
		t, span, err := ruleTime(v)
		if err != nil {
			return MatchingRules{}, invalidDefinition("%s: %v", ruleEndDate, err)
		}
		if span != nil {
			t = span(t).Add(-time.Nanosecond)
		}
		mr.EndDate = &t
	}

	if mr.StartDate != nil && mr.EndDate != nil && mr.EndDate.Before(*mr.StartDate) {
		return MatchingRules{}, invalidDefinition("%s is before %s", ruleEndDate, ruleStartDate)
	}

	for _, key := range []string{ruleStatuses, ruleStatus} {
		v, ok := rules[key]
		if !ok || v == nil {
			continue
		}
		statuses, err := scalarStrings(v)
		if err != nil {
			return MatchingRules{}, invalidDefinition("%s: %v", key, err)
		}
		mr.Statuses = append(mr.Statuses, statuses...)
	}

	return mr, nil
}

// IsZero reports whether the rules accept every record.
func (mr MatchingRules) IsZero() bool {
	return len(mr.Codes) == 0 && mr.StartDate == nil && mr.EndDate == nil && len(mr.Statuses) == 0
}

// Match reports whether r satisfies every rule that is set.
func (mr MatchingRules) Match(r extract.Record) bool {
	if len(mr.Codes) > 0 && !mr.matchCodes(r) {
		return false
	}
	if mr.StartDate != nil || mr.EndDate != nil {
		t := r.EffectiveTime()
		if t == nil {
			return false
		}
		if mr.StartDate != nil && t.Before(*mr.StartDate) {
			return false
		}
		if mr.EndDate != nil && t.After(*mr.EndDate) {
			return false
		}
	}
	if len(mr.Statuses) > 0 && !mr.matchStatus(r.Status) {
		return false
	}
	return true
}

func (mr MatchingRules) matchCodes(r extract.Record) bool {
	for system, codes := range mr.Codes {
		for _, code := range codes {
			if r.HasCode(system, code) {
				return true
			}
		}
	}
	return false
}

func (mr MatchingRules) matchStatus(status string) bool {
	for _, s := range mr.Statuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

// Filter applies each property's rules to its records and returns a new
// result. Properties absent from def are copied unchanged.
func Filter(def Definition, res Result) (Result, error) {
	out := make(Result, len(res))
	for name, records := range res {
		out[name] = records
	}
	for _, p := range def {
		records, ok := res[p.Name]
		if !ok {
			continue
		}
		mr, err := ParseRules(p.Description.Rules)
		if err != nil {
			return nil, fmt.Errorf("measure: property %q: %w", p.Name, err)
		}
		if mr.IsZero() {
			continue
		}
		kept := []extract.Record{}
		for _, r := range records {
			if mr.Match(r) {
				kept = append(kept, r)
			}
		}
		out[p.Name] = kept
	}
	return out, nil
}

func scalarStrings(v interface{}) ([]string, error) {
	switch s := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, str)
		}
		return out, nil
	case []string:
		return s, nil
	default:
		str, err := scalarString(v)
		if err != nil {
			return nil, err
		}
		return []string{str}, nil
	}
}

func scalarString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("expected a scalar, got %T", v)
	}
}

// codeStrings is scalarStrings for code lists. Unquoted decimals are refused:
// once decoded, 250.00 can no longer be told apart from 250.
func codeStrings(v interface{}) ([]string, error) {
	list, err := scalarStrings(v)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]interface{})
	if !ok {
		items = []interface{}{v}
	}
	for _, item := range items {
		if f, ok := item.(float64); ok {
			return nil, fmt.Errorf("code %v must be quoted", f)
		}
	}
	return list, nil
}

// ruleTime parses a rule date. span is set for values without a time of day
// and advances a time by the precision of the value.
func ruleTime(v interface{}) (t time.Time, span func(time.Time) time.Time, err error) {
	switch s := v.(type) {
	case time.Time:
		return s, nil, nil
	case int, int64, uint64:
		// unquoted HL7 timestamps decode as integers
		return ruleTime(fmt.Sprint(s))
	case string:
		s = strings.TrimSpace(s)
		if d, err := time.Parse("2006-01-02", s); err == nil {
			return d, nextDay, nil
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, nil, nil
		}
		ts, err := ccda.ParseHL7Time(s)
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("unrecognized date %q", s)
		}
		switch len(s) {
		case 4:
			return ts, func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }, nil
		case 6:
			return ts, func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }, nil
		case 8:
			return ts, nextDay, nil
		}
		return ts, nil, nil
	default:
		return time.Time{}, nil, fmt.Errorf("expected a date string, got %T", v)
	}
}

func nextDay(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
