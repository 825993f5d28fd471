package types

import (
	"time"

	"github.com/google/uuid"
)

// PatientHistoryRequest is the body of POST /patient
type PatientHistoryRequest struct {
	PatientID string `json:"patient_id"`
}

// PatientClinicalHistory is the structured history generated for a patient
type PatientClinicalHistory struct {
	PatientID         uuid.UUID `json:"patient_id"`
	PatientName       string    `json:"patient_name"`
	ClinicalSummary   string    `json:"clinical_summary"`
	KeyConditions     []string  `json:"key_conditions"`
	ActiveMedications []string  `json:"active_medications"`
	RecentEncounters  []string  `json:"recent_encounters"`
	GeneratedAt       time.Time `json:"generated_at"`
}
