package ccda

// CDA namespaces and template identifiers for HITSP C32 and C-CDA 2.1 documents.
const (
	// CDA namespace
	CDANamespace  = "urn:hl7-org:v3"
	XSINamespace  = "http://www.w3.org/2001/XMLSchema-instance"
	SDTCNamespace = "urn:hl7-org:sdtc"

	// Document-level template IDs
	OIDUSRealmHeader = "2.16.840.1.113883.10.20.22.1.1"
	OIDCCDDocument   = "2.16.840.1.113883.10.20.22.1.2"
	OIDC32Document   = "2.16.840.1.113883.3.88.11.32.1"

	// C-CDA 2.1 section-level template IDs
	OIDMedicationsSection = "2.16.840.1.113883.10.20.22.2.1.1"
	OIDProblemsSection    = "2.16.840.1.113883.10.20.22.2.5.1"
	OIDProceduresSection  = "2.16.840.1.113883.10.20.22.2.7.1"
	OIDResultsSection     = "2.16.840.1.113883.10.20.22.2.3.1"
	OIDVitalSignsSection  = "2.16.840.1.113883.10.20.22.2.4.1"
	OIDEncountersSection  = "2.16.840.1.113883.10.20.22.2.22.1"

	// C-CDA 2.1 entry-level template IDs
	OIDMedicationEntry      = "2.16.840.1.113883.10.20.22.4.16"
	OIDProblemObservation   = "2.16.840.1.113883.10.20.22.4.4"
	OIDProcedureEntry       = "2.16.840.1.113883.10.20.22.4.14"
	OIDResultObservation    = "2.16.840.1.113883.10.20.22.4.2"
	OIDVitalSignObservation = "2.16.840.1.113883.10.20.22.4.27"
	OIDEncounterEntry       = "2.16.840.1.113883.10.20.22.4.49"

	// HITSP C32 section and entry template IDs
	OIDC32EncountersSection  = "2.16.840.1.113883.3.88.11.83.127"
	OIDC32MedicationsSection = "2.16.840.1.113883.3.88.11.83.112"
	OIDC32ConditionsSection  = "2.16.840.1.113883.3.88.11.83.103"
	OIDC32ResultEntry        = "2.16.840.1.113883.3.88.11.83.15.1"
	OIDC32VitalSignEntry     = "2.16.840.1.113883.3.88.11.83.14"
	OIDCCDProcedureActivity  = "2.16.840.1.113883.10.20.1.29"

	// LOINC codes for section identification
	LOINCMedications = "10160-0"
	LOINCProblems    = "11450-4"
	LOINCProcedures  = "47519-4"
	LOINCResults     = "30954-2"
	LOINCVitalSigns  = "8716-3"
	LOINCEncounters  = "46240-8"

	// Code system OIDs
	OIDLOINC       = "2.16.840.1.113883.6.1"
	OIDSNOMED      = "2.16.840.1.113883.6.96"
	OIDRxNorm      = "2.16.840.1.113883.6.88"
	OIDICD9CM      = "2.16.840.1.113883.6.103"
	OIDICD9PCS     = "2.16.840.1.113883.6.104"
	OIDICD10       = "2.16.840.1.113883.6.90"
	OIDICD10PCS    = "2.16.840.1.113883.6.4"
	OIDCPT         = "2.16.840.1.113883.6.12"
	OIDCVX         = "2.16.840.1.113883.12.292"
	OIDHCPCS       = "2.16.840.1.113883.6.285"
	OIDNDC         = "2.16.840.1.113883.6.69"
	OIDAdminGender = "2.16.840.1.113883.5.1"
)

// Namespaces maps the prefixes used by every selector in this module to their
// namespace URIs.
var Namespaces = map[string]string{
	"cda":  CDANamespace,
	"sdtc": SDTCNamespace,
	"xsi":  XSINamespace,
}

var codeSystemNames = map[string]string{
	OIDLOINC:       "LOINC",
	OIDSNOMED:      "SNOMED-CT",
	OIDRxNorm:      "RxNorm",
	OIDICD9CM:      "ICD-9-CM",
	OIDICD9PCS:     "ICD-9-PCS",
	OIDICD10:       "ICD-10-CM",
	OIDICD10PCS:    "ICD-10-PCS",
	OIDCPT:         "CPT",
	OIDCVX:         "CVX",
	OIDHCPCS:       "HCPCS",
	OIDNDC:         "NDC",
	OIDAdminGender: "AdministrativeGender",
}

// CodeSystemName returns the conventional name for a code system OID. Unknown
// OIDs are returned unchanged.
func CodeSystemName(oid string) string {
	if name, ok := codeSystemNames[oid]; ok {
		return name
	}
	return oid
}
