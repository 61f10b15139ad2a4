package extract

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ehr/measure-importer/internal/platform/ccda"
)

const testDoc = `<?xml version="1.0" encoding="UTF-8"?>
<ClinicalDocument xmlns="urn:hl7-org:v3" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <component><structuredBody>
    <component><section>
      <templateId root="2.16.840.1.113883.3.88.11.83.103"/>
      <entry><act classCode="ACT" moodCode="EVN">
        <entryRelationship typeCode="SUBJ"><observation classCode="OBS" moodCode="EVN">
          <id root="1.2.3" extension="cond-1"/>
          <code code="64572001" codeSystem="2.16.840.1.113883.6.96" displayName="Condition"/>
          <statusCode code="completed"/>
          <effectiveTime><low value="20090115"/><high value="20100115"/></effectiveTime>
          <value xsi:type="CD" code="44054006" codeSystem="2.16.840.1.113883.6.96" displayName="Diabetes mellitus type 2">
            <translation code="250.00" codeSystem="2.16.840.1.113883.6.103"/>
            <translation code="250.00" codeSystem="2.16.840.1.113883.6.103"/>
          </value>
        </observation></entryRelationship>
      </act></entry>
      <entry><act classCode="ACT" moodCode="EVN">
        <entryRelationship typeCode="SUBJ"><observation classCode="OBS" moodCode="EVN">
          <code code="64572001" codeSystem="2.16.840.1.113883.6.96"/>
        </observation></entryRelationship>
      </act></entry>
      <entry><act classCode="ACT" moodCode="EVN">
        <entryRelationship typeCode="SUBJ"><observation classCode="OBS" moodCode="EVN">
          <id root="1.2.3" extension="cond-2"/>
          <value xsi:type="CD" code="38341003" codeSystem="2.16.840.1.113883.6.96" displayName="Hypertension"/>
        </observation></entryRelationship>
      </act></entry>
    </section></component>
    <component><section>
      <entry><procedure classCode="PROC" moodCode="EVN">
        <templateId root="2.16.840.1.113883.10.20.1.29"/>
        <id root="proc-root-1"/>
        <code code="73761001" codeSystem="2.16.840.1.113883.6.96"><originalText>Colonoscopy</originalText></code>
        <effectiveTime value="20100601143000"/>
      </procedure></entry>
      <entry><procedure classCode="PROC" moodCode="EVN">
        <templateId root="2.16.840.1.113883.10.20.1.29"/>
        <text>Unspecified procedure</text>
        <effectiveTime value="not-a-date"/>
      </procedure></entry>
    </section></component>
    <component><section>
      <entry><observation classCode="OBS" moodCode="EVN">
        <templateId root="2.16.840.1.113883.3.88.11.83.14"/>
        <code code="8480-6" codeSystem="2.16.840.1.113883.6.1" displayName="Systolic BP"/>
        <effectiveTime value="20100601"/>
        <value xsi:type="PQ" value="132" unit="mm[Hg]"/>
      </observation></entry>
      <entry><observation classCode="OBS" moodCode="EVN">
        <templateId root="2.16.840.1.113883.3.88.11.83.14"/>
        <code code="X-1" codeSystem="1.2.3.4.5"/>
      </observation></entry>
    </section></component>
  </structuredBody></component>
</ClinicalDocument>`

var (
	conditionQuery = LocationQuery{
		Entry: "//cda:section[cda:templateId/@root='2.16.840.1.113883.3.88.11.83.103']/cda:entry/cda:act/cda:entryRelationship/cda:observation",
		Code:  "./cda:value",
	}
	procedureQuery = LocationQuery{
		Entry: "//cda:procedure[cda:templateId/@root='2.16.840.1.113883.10.20.1.29']",
	}
	vitalQuery = LocationQuery{
		Entry: "//cda:observation[cda:templateId/@root='2.16.840.1.113883.3.88.11.83.14']",
	}
)

func parseTestDoc(t *testing.T) *ccda.Document {
	t.Helper()
	doc, err := ccda.NewParser().Parse([]byte(testDoc))
	if err != nil {
		t.Fatalf("failed to parse test document: %v", err)
	}
	return doc
}

func newTestExtractor(t *testing.T, q LocationQuery) *SectionExtractor {
	t.Helper()
	ex, err := NewSectionExtractor(q, ccda.Namespaces)
	if err != nil {
		t.Fatalf("failed to build extractor: %v", err)
	}
	return ex
}

func TestNewSectionExtractor_ConfigurationError(t *testing.T) {
	tests := []struct {
		name     string
		query    LocationQuery
		selector string
	}{
		{"empty entry", LocationQuery{}, ""},
		{"malformed entry", LocationQuery{Entry: "//cda:entry["}, "//cda:entry["},
		{"malformed override", LocationQuery{Entry: "//cda:entry", Code: "./cda:value[@"}, "./cda:value[@"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSectionExtractor(tt.query, ccda.Namespaces)
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigurationError, got %T", err)
			}
			if cfgErr.Selector != tt.selector {
				t.Errorf("expected selector %q, got %q", tt.selector, cfgErr.Selector)
			}
			if err := tt.query.Validate(ccda.Namespaces); err == nil {
				t.Error("expected Validate to fail as well")
			}
		})
	}
}

func TestSectionExtractor_Query(t *testing.T) {
	ex := newTestExtractor(t, conditionQuery)
	if ex.Query() != conditionQuery {
		t.Errorf("expected query %+v, got %+v", conditionQuery, ex.Query())
	}
	if !ex.Query().HasOverride() {
		t.Error("expected condition query to have an override")
	}
	if procedureQuery.HasOverride() {
		t.Error("expected procedure query to have no override")
	}
}

func TestSectionExtractor_Extract_Override(t *testing.T) {
	doc := parseTestDoc(t)
	ex := newTestExtractor(t, conditionQuery)

	records, err := ex.Extract(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The middle observation has no value node and must not produce a record.
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.ID != "cond-1" {
		t.Errorf("expected id 'cond-1', got %q", first.ID)
	}
	if !first.HasCode("SNOMED-CT", "44054006") {
		t.Errorf("expected SNOMED-CT 44054006 from the value node, got %v", first.Codes)
	}
	if first.HasCode("SNOMED-CT", "64572001") {
		t.Errorf("expected the default code to be ignored, got %v", first.Codes)
	}
	if got := first.Codes["ICD-9-CM"]; len(got) != 1 || got[0] != "250.00" {
		t.Errorf("expected one deduplicated ICD-9-CM translation, got %v", got)
	}
	if first.Status != "completed" {
		t.Errorf("expected status 'completed', got %q", first.Status)
	}
	if first.Description != "Diabetes mellitus type 2" {
		t.Errorf("expected description from displayName, got %q", first.Description)
	}
	if first.StartTime == nil || !first.StartTime.Equal(time.Date(2009, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected start time 2009-01-15, got %v", first.StartTime)
	}
	if first.EndTime == nil || !first.EndTime.Equal(time.Date(2010, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected end time 2010-01-15, got %v", first.EndTime)
	}
	if first.Time != nil {
		t.Errorf("expected no point time, got %v", first.Time)
	}
	if eff := first.EffectiveTime(); eff == nil || !eff.Equal(*first.StartTime) {
		t.Errorf("expected effective time to fall back to start time, got %v", eff)
	}

	second := records[1]
	if second.ID != "cond-2" {
		t.Errorf("expected id 'cond-2', got %q", second.ID)
	}
	if !second.HasCode("SNOMED-CT", "38341003") {
		t.Errorf("expected SNOMED-CT 38341003, got %v", second.Codes)
	}
}

func TestSectionExtractor_Extract_DefaultCode(t *testing.T) {
	doc := parseTestDoc(t)
	ex := newTestExtractor(t, procedureQuery)

	records, err := ex.Extract(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.ID != "proc-root-1" {
		t.Errorf("expected id from root when extension is absent, got %q", first.ID)
	}
	if !first.HasCode("SNOMED-CT", "73761001") {
		t.Errorf("expected SNOMED-CT 73761001, got %v", first.Codes)
	}
	if first.Description != "Colonoscopy" {
		t.Errorf("expected description from originalText, got %q", first.Description)
	}
	want := time.Date(2010, 6, 1, 14, 30, 0, 0, time.UTC)
	if first.Time == nil || !first.Time.Equal(want) {
		t.Errorf("expected time %v, got %v", want, first.Time)
	}

	// An entry without a code element still yields a record.
	second := records[1]
	if second.Codes != nil {
		t.Errorf("expected no codes, got %v", second.Codes)
	}
	if second.Description != "Unspecified procedure" {
		t.Errorf("expected description from text, got %q", second.Description)
	}
	if second.Time != nil {
		t.Errorf("expected unparseable time to be dropped, got %v", second.Time)
	}
}

func TestSectionExtractor_Extract_Value(t *testing.T) {
	doc := parseTestDoc(t)
	ex := newTestExtractor(t, vitalQuery)

	records, err := ex.Extract(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if records[0].Value == nil {
		t.Fatal("expected a value")
	}
	if records[0].Value.Scalar != "132" || records[0].Value.Units != "mm[Hg]" {
		t.Errorf("expected 132 mm[Hg], got %+v", records[0].Value)
	}
	if !records[0].HasCode("LOINC", "8480-6") {
		t.Errorf("expected LOINC 8480-6, got %v", records[0].Codes)
	}

	if records[1].Value != nil {
		t.Errorf("expected no value, got %+v", records[1].Value)
	}
	if !records[1].HasCode("1.2.3.4.5", "X-1") {
		t.Errorf("expected unknown code system kept as OID, got %v", records[1].Codes)
	}
}

func TestSectionExtractor_Extract_NoMatches(t *testing.T) {
	doc := parseTestDoc(t)
	ex := newTestExtractor(t, LocationQuery{Entry: "//cda:encounter"})

	records, err := ex.Extract(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestSectionExtractor_Extract_QueryError(t *testing.T) {
	doc := parseTestDoc(t)

	tests := []struct {
		name     string
		query    LocationQuery
		doc      *ccda.Document
		selector string
	}{
		{"entry is not a node-set", LocationQuery{Entry: "count(//cda:entry)"}, doc, "count(//cda:entry)"},
		{"override is not a node-set", LocationQuery{Entry: conditionQuery.Entry, Code: "string(cda:value/@code)"}, doc, "string(cda:value/@code)"},
		{"nil document", procedureQuery, nil, procedureQuery.Entry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := newTestExtractor(t, tt.query)
			records, err := ex.Extract(tt.doc, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if records != nil {
				t.Errorf("expected no records alongside an error, got %d", len(records))
			}
			var qErr *QueryError
			if !errors.As(err, &qErr) {
				t.Fatalf("expected *QueryError, got %T", err)
			}
			if qErr.Selector != tt.selector {
				t.Errorf("expected selector %q, got %q", tt.selector, qErr.Selector)
			}
		})
	}
}

// Rules never narrow what Extract returns; filtering happens downstream.
func TestSectionExtractor_Extract_RulesPassThrough(t *testing.T) {
	doc := parseTestDoc(t)
	ex := newTestExtractor(t, conditionQuery)

	unfiltered, err := ex.Extract(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rules := Rules{
		"codes":      map[string]interface{}{"SNOMED-CT": []interface{}{"38341003"}},
		"start_date": "2011-01-01",
	}
	withRules, err := ex.Extract(doc, rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(unfiltered, withRules) {
		t.Errorf("expected rules to be ignored by Extract, got %d vs %d records", len(unfiltered), len(withRules))
	}
}

func TestSectionExtractor_Extract_Idempotent(t *testing.T) {
	doc := parseTestDoc(t)
	ex := newTestExtractor(t, conditionQuery)

	a, err := ex.Extract(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ex.Extract(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("expected repeated extraction to yield equal records")
	}

	// Records are fresh values, not shared state.
	a[0].Codes["SNOMED-CT"][0] = "mutated"
	c, _ := ex.Extract(doc, nil)
	if c[0].Codes["SNOMED-CT"][0] != "44054006" {
		t.Error("expected mutation of a previous result not to leak into a new extraction")
	}
}

func TestSectionExtractor_Extract_Concurrent(t *testing.T) {
	doc := parseTestDoc(t)
	ex := newTestExtractor(t, conditionQuery)

	want, err := ex.Extract(doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	results := make([][]Record, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ex.Extract(doc, nil)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("goroutine %d: unexpected error: %v", i, errs[i])
			continue
		}
		if !reflect.DeepEqual(want, results[i]) {
			t.Errorf("goroutine %d: expected equal records", i)
		}
	}
}
