package measure

import (
	"fmt"
	"strings"

	"github.com/ehr/measure-importer/internal/extract"
	"github.com/ehr/measure-importer/internal/platform/ccda"
)

// Profile selects the document layout the category selectors are written for.
type Profile string

const (
	// ProfileC32 targets HITSP C32 continuity of care documents.
	ProfileC32 Profile = "c32"
	// ProfileCCDA targets C-CDA 2.1 continuity of care documents.
	ProfileCCDA Profile = "ccda"
)

const (
	manufacturedMaterialCode = "./cda:consumable/cda:manufacturedProduct/cda:manufacturedMaterial/cda:code"
	observationValue         = "./cda:value"
	problemObservation       = "cda:act/cda:entryRelationship/cda:observation[cda:templateId/@root='" + ccda.OIDProblemObservation + "']"
)

func sectionEntries(sectionOID, entryPath string) string {
	return fmt.Sprintf("//cda:section[cda:templateId/@root='%s']/cda:entry/%s", sectionOID, entryPath)
}

func templated(element, oid string) string {
	return fmt.Sprintf("//cda:%s[cda:templateId/@root='%s']", element, oid)
}

var profileQueries = map[Profile]map[Category]extract.LocationQuery{
	ProfileC32: {
		CategoryEncounter:      {Entry: sectionEntries(ccda.OIDC32EncountersSection, "cda:encounter")},
		CategoryProcedure:      {Entry: templated("procedure", ccda.OIDCCDProcedureActivity)},
		CategoryLaboratoryTest: {Entry: templated("observation", ccda.OIDC32ResultEntry)},
		CategoryPhysicalExam:   {Entry: templated("observation", ccda.OIDC32VitalSignEntry)},
		CategoryMedication: {
			Entry: sectionEntries(ccda.OIDC32MedicationsSection, "cda:substanceAdministration"),
			Code:  manufacturedMaterialCode,
		},
		CategoryDiagnosisConditionProblem: {
			Entry: sectionEntries(ccda.OIDC32ConditionsSection, "cda:act/cda:entryRelationship/cda:observation"),
			Code:  observationValue,
		},
	},
	ProfileCCDA: {
		CategoryEncounter:      {Entry: sectionEntries(ccda.OIDEncountersSection, "cda:encounter")},
		CategoryProcedure:      {Entry: templated("procedure", ccda.OIDProcedureEntry)},
		CategoryLaboratoryTest: {Entry: templated("observation", ccda.OIDResultObservation)},
		CategoryPhysicalExam:   {Entry: templated("observation", ccda.OIDVitalSignObservation)},
		CategoryMedication: {
			Entry: sectionEntries(ccda.OIDMedicationsSection, "cda:substanceAdministration"),
			Code:  manufacturedMaterialCode,
		},
		CategoryDiagnosisConditionProblem: {
			Entry: sectionEntries(ccda.OIDProblemsSection, problemObservation),
			Code:  observationValue,
		},
	},
}

// ParseProfile accepts "c32" or "ccda" (case-insensitive). An empty name
// selects ProfileC32.
func ParseProfile(name string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProfileC32, nil
	case ProfileC32, ProfileCCDA:
		return p, nil
	default:
		return "", fmt.Errorf("measure: unknown document profile %q", name)
	}
}

// Queries returns a copy of the location queries of the profile, one per
// category.
func (p Profile) Queries() map[Category]extract.LocationQuery {
	src := profileQueries[p]
	out := make(map[Category]extract.LocationQuery, len(src))
	for c, q := range src {
		out[c] = q
	}
	return out
}
