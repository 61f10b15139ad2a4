package ccda

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var hl7Layouts = map[int]string{
	4:  "2006",
	6:  "200601",
	8:  "20060102",
	10: "2006010215",
	12: "200601021504",
	14: "20060102150405",
}

// ParseHL7Time parses an HL7 v3 TS value (YYYY[MM[DD[HH[mm[ss[.S+]]]]]][+/-ZZzz]).
// Values without an offset are interpreted as UTC.
func ParseHL7Time(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("ccda: empty time value")
	}

	loc := time.UTC
	if i := strings.IndexAny(s, "+-"); i > 0 {
		zone, err := parseHL7Offset(s[i:])
		if err != nil {
			return time.Time{}, err
		}
		loc = zone
		s = s[:i]
	}

	// Fractional seconds carry no information at this resolution.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	layout, ok := hl7Layouts[len(s)]
	if !ok {
		if len(s) > 14 {
			return time.ParseInLocation(hl7Layouts[14], s[:14], loc)
		}
		return time.Time{}, fmt.Errorf("ccda: unrecognized time format: %s", s)
	}
	return time.ParseInLocation(layout, s, loc)
}

func parseHL7Offset(off string) (*time.Location, error) {
	if len(off) != 5 {
		return nil, fmt.Errorf("ccda: invalid time zone offset: %s", off)
	}
	hh, err := strconv.Atoi(off[1:3])
	if err != nil {
		return nil, fmt.Errorf("ccda: invalid time zone offset: %s", off)
	}
	mm, err := strconv.Atoi(off[3:5])
	if err != nil {
		return nil, fmt.Errorf("ccda: invalid time zone offset: %s", off)
	}
	secs := (hh*60 + mm) * 60
	if off[0] == '-' {
		secs = -secs
	}
	return time.FixedZone(off, secs), nil
}

// FormatDate converts an HL7 date (YYYYMMDD...) to YYYY-MM-DD.
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 8 {
		return s[:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	return s
}
