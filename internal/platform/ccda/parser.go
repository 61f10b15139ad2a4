package ccda

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// Document is a parsed CDA document. The tree is never modified after Parse
// returns, so a Document may be shared between goroutines.
type Document struct {
	root *xmlquery.Node
}

// Root returns the document node of the parsed tree.
func (d *Document) Root() *xmlquery.Node {
	if d == nil {
		return nil
	}
	return d.root
}

// Header holds the document metadata extracted from the CDA header.
type Header struct {
	Title   string        `json:"title,omitempty"`
	Created *time.Time    `json:"created,omitempty"`
	Patient ParsedPatient `json:"patient"`
}

// ParsedPatient contains the patient demographics extracted from the CDA header.
type ParsedPatient struct {
	Name        string     `json:"name,omitempty"`
	DOB         string     `json:"dob,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Identifiers []ParsedID `json:"identifiers,omitempty"`
}

// ParsedID is a parsed identifier.
type ParsedID struct {
	Root      string `json:"root"`
	Extension string `json:"extension,omitempty"`
}

// Parser builds Documents from raw CDA XML. It is safe for concurrent use
// because it holds no mutable state.
type Parser struct{}

// NewParser creates a new CDA parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a CDA XML document into a queryable tree. The root element must
// be a ClinicalDocument in the HL7 v3 namespace.
func (p *Parser) Parse(xmlData []byte) (*Document, error) {
	if len(bytes.TrimSpace(xmlData)) == 0 {
		return nil, fmt.Errorf("ccda: XML data is empty")
	}

	root, err := xmlquery.Parse(bytes.NewReader(xmlData))
	if err != nil {
		return nil, fmt.Errorf("ccda: failed to parse XML: %w", err)
	}

	el := documentElement(root)
	if el == nil {
		return nil, fmt.Errorf("ccda: document has no root element")
	}
	if el.Data != "ClinicalDocument" || el.NamespaceURI != CDANamespace {
		return nil, fmt.Errorf("ccda: root element is {%s}%s, expected {%s}ClinicalDocument",
			el.NamespaceURI, el.Data, CDANamespace)
	}

	return &Document{root: root}, nil
}

func documentElement(root *xmlquery.Node) *xmlquery.Node {
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

var (
	headerTitle      = MustCompileSelector(`string(/cda:ClinicalDocument/cda:title)`)
	headerTime       = MustCompileSelector(`string(/cda:ClinicalDocument/cda:effectiveTime/@value)`)
	headerPatientIDs = MustCompileSelector(`/cda:ClinicalDocument/cda:recordTarget/cda:patientRole/cda:id`)
	headerPatient    = MustCompileSelector(`/cda:ClinicalDocument/cda:recordTarget/cda:patientRole/cda:patient`)
	patientGiven     = MustCompileSelector(`cda:name/cda:given`)
	patientFamily    = MustCompileSelector(`string(cda:name/cda:family)`)
	patientGender    = MustCompileSelector(`cda:administrativeGenderCode`)
	patientBirthTime = MustCompileSelector(`string(cda:birthTime/@value)`)
)

// Header extracts the title, creation time and patient demographics.
func (d *Document) Header() Header {
	var h Header
	if d == nil || d.root == nil {
		return h
	}

	h.Title = strings.TrimSpace(headerTitle.Text(d.root))

	if t, err := ParseHL7Time(headerTime.Text(d.root)); err == nil {
		h.Created = &t
	}

	h.Patient = parsePatient(d.root)
	return h
}

// parsePatient extracts patient demographics from the CDA header.
func parsePatient(root *xmlquery.Node) ParsedPatient {
	patient := ParsedPatient{}

	ids, _ := headerPatientIDs.Nodes(root)
	for _, id := range ids {
		patient.Identifiers = append(patient.Identifiers, ParsedID{
			Root:      id.SelectAttr("root"),
			Extension: id.SelectAttr("extension"),
		})
	}

	pat := headerPatient.First(root)
	if pat == nil {
		return patient
	}

	// Name
	parts := []string{}
	given, _ := patientGiven.Nodes(pat)
	for _, g := range given {
		if v := strings.TrimSpace(g.InnerText()); v != "" {
			parts = append(parts, v)
		}
	}
	if family := strings.TrimSpace(patientFamily.Text(pat)); family != "" {
		parts = append(parts, family)
	}
	patient.Name = strings.Join(parts, " ")

	// Gender
	if g := patientGender.First(pat); g != nil {
		patient.Gender = g.SelectAttr("displayName")
		if patient.Gender == "" {
			patient.Gender = g.SelectAttr("code")
		}
	}

	// DOB
	if v := patientBirthTime.Text(pat); v != "" {
		patient.DOB = FormatDate(v)
	}

	return patient
}
