package measure

// Category identifies the kind of clinical entry a measure property draws on.
type Category int

const (
	CategoryEncounter Category = iota
	CategoryProcedure
	CategoryLaboratoryTest
	CategoryPhysicalExam
	CategoryMedication
	CategoryDiagnosisConditionProblem
)

var categoryNames = [...]string{
	CategoryEncounter:                 "encounter",
	CategoryProcedure:                 "procedure",
	CategoryLaboratoryTest:            "laboratory_test",
	CategoryPhysicalExam:              "physical_exam",
	CategoryMedication:                "medication",
	CategoryDiagnosisConditionProblem: "diagnosis_condition_problem",
}

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	all := make([]Category, len(categoryNames))
	for i := range categoryNames {
		all[i] = Category(i)
	}
	return all
}

// String returns the name used for the category in measure definitions.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// ParseCategory maps a measure definition category name to a Category.
func ParseCategory(name string) (Category, bool) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), true
		}
	}
	return 0, false
}
