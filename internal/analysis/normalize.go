package analysis

import (
	"encoding/json"
	"strings"
	"time"
)

const fallbackSummary = "Error analyzing document. Please check API keys."

// Normalize turns a raw completion payload into a schema-conformant Record,
// merging in job metadata. It never fails: a malformed or empty payload
// yields the fallback record with the cause attached.
func Normalize(raw string, jobID, filename string) Record {
	now := time.Now().UTC()

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback("empty completion response", jobID, filename, now)
	}

	if err := validateRawRecord([]byte(trimmed)); err != nil {
		return fallback(err.Error(), jobID, filename, now)
	}

	var rec Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return fallback("decode completion payload: "+err.Error(), jobID, filename, now)
	}

	rec.JobID = jobID
	rec.Filename = filename
	rec.UploadedAt = now
	rec.Error = ""
	rec.ensureCollections()
	return rec
}

// Fallback returns the well-formed degraded record substituted when
// extraction or completion fails upstream.
func Fallback(cause, jobID, filename string) Record {
	return fallback(cause, jobID, filename, time.Now().UTC())
}

func fallback(cause, jobID, filename string, now time.Time) Record {
	rec := Record{
		JobID:      jobID,
		Filename:   filename,
		UploadedAt: now,
		Summary:    fallbackSummary,
		PatientDetails: PatientDetails{
			Name:      "Unknown",
			DOB:       "Unknown",
			Attending: "Unknown",
		},
		Error: cause,
	}
	rec.ensureCollections()
	return rec
}
