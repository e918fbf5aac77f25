package analysis

import "time"

// Record is the structured clinical extraction for one job. Every field is
// present and type-conformant even when the upstream completion fails;
// consumers never observe a record missing required keys.
type Record struct {
	JobID          string         `json:"jobId"`
	Filename       string         `json:"filename"`
	UploadedAt     time.Time      `json:"uploadedAt"`
	Summary        string         `json:"summary"`
	TopActions     []Action       `json:"topActions"`
	PatientDetails PatientDetails `json:"patientDetails"`
	RiskFlags      []RiskFlag     `json:"riskFlags"`
	Suggestions    []string       `json:"suggestions"`
	Stats          Stats          `json:"stats"`
	Error          string         `json:"error,omitempty"`
}

// Action is one recommended clinical follow-up.
type Action struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Priority string `json:"priority"`
	Details  string `json:"details"`
	Effort   string `json:"effort"`
}

// Lab is a single laboratory result.
type Lab struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Unit        string `json:"unit"`
	NormalRange string `json:"normalRange"`
}

// PatientDetails captures demographics and clinical facts from the document.
type PatientDetails struct {
	Name           string   `json:"name"`
	DOB            string   `json:"dob"`
	EncounterDates []string `json:"encounterDates"`
	Medications    []string `json:"medications"`
	Diagnoses      []string `json:"diagnoses"`
	Labs           []Lab    `json:"labs"`
	Attending      string   `json:"attending"`
}

// RiskFlag marks a risk identified in the document.
type RiskFlag struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Stats summarizes document-level measures.
type Stats struct {
	WordCount    int     `json:"wordCount"`
	Sections     int     `json:"sections"`
	ReadingScore float64 `json:"readingScore"`
	Confidence   float64 `json:"confidence"`
}

// ensureCollections replaces nil slices so the record marshals collections as
// [] rather than null.
func (r *Record) ensureCollections() {
	if r.TopActions == nil {
		r.TopActions = []Action{}
	}
	if r.RiskFlags == nil {
		r.RiskFlags = []RiskFlag{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	if r.PatientDetails.EncounterDates == nil {
		r.PatientDetails.EncounterDates = []string{}
	}
	if r.PatientDetails.Medications == nil {
		r.PatientDetails.Medications = []string{}
	}
	if r.PatientDetails.Diagnoses == nil {
		r.PatientDetails.Diagnoses = []string{}
	}
	if r.PatientDetails.Labs == nil {
		r.PatientDetails.Labs = []Lab{}
	}
}
