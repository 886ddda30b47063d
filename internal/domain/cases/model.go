package cases

import (
	"time"

	"github.com/google/uuid"

	"github.com/salulink/salulink/internal/domain/conditions"
)

// Case is a saved walk through the condition workflow: the note, what the
// extractor found, the condition the clinician confirmed and the ICD-10
// codes they selected for it.
type Case struct {
	ID                 uuid.UUID            `db:"id" json:"id"`
	ClinicalNote       string               `db:"clinical_note" json:"clinical_note"`
	DetectedConditions []string             `db:"detected_conditions" json:"detected_conditions"`
	ConfirmedCondition string               `db:"confirmed_condition" json:"confirmed_condition,omitempty"`
	ICDCodes           []conditions.ICDCode `db:"icd_codes" json:"icd_codes"`
	RegistrationNote   string               `db:"registration_note" json:"registration_note,omitempty"`
	CreatedAt          time.Time            `db:"created_at" json:"created_at"`
}
