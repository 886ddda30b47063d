package conditions

// Chronic condition labels. The set is closed: the extractor, the catalog
// and case validation only ever accept these five values.
const (
	CardiacFailure        = "Cardiac Failure"
	Hypertension          = "Hypertension"
	DiabetesInsipidus     = "Diabetes Insipidus"
	DiabetesMellitusType1 = "Diabetes Mellitus Type 1"
	DiabetesMellitusType2 = "Diabetes Mellitus Type 2"
)

// Labels returns the condition labels in table order.
func Labels() []string {
	return []string{
		CardiacFailure,
		Hypertension,
		DiabetesInsipidus,
		DiabetesMellitusType1,
		DiabetesMellitusType2,
	}
}

// ICDCode is an ICD-10 diagnosis code attached to a condition.
type ICDCode struct {
	Code        string `yaml:"code" json:"code"`
	Description string `yaml:"description" json:"description"`
}

// Entry is one row of the condition catalog.
type Entry struct {
	Label    string    `yaml:"label" json:"label"`
	Keywords []string  `yaml:"keywords" json:"keywords"`
	ICDCodes []ICDCode `yaml:"icd_codes" json:"icd_codes"`
}

func (e Entry) clone() Entry {
	out := Entry{Label: e.Label}
	out.Keywords = append([]string(nil), e.Keywords...)
	out.ICDCodes = append([]ICDCode(nil), e.ICDCodes...)
	return out
}

// HasICDCode reports whether code belongs to this condition.
func (e Entry) HasICDCode(code string) (ICDCode, bool) {
	for _, c := range e.ICDCodes {
		if c.Code == code {
			return c, true
		}
	}
	return ICDCode{}, false
}
