package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchema constrains what the completion endpoint may return. Metadata
// fields (jobId, filename, uploadedAt) are merged in after validation and are
// not part of the model-facing schema.
const recordSchema = `{
  "type": "object",
  "required": ["summary", "topActions", "patientDetails", "riskFlags", "suggestions", "stats"],
  "properties": {
    "summary": {"type": "string"},
    "topActions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "priority", "details", "effort"],
        "properties": {
          "id": {"type": "string"},
          "title": {"type": "string"},
          "priority": {"enum": ["Critical", "High", "Medium", "Low"]},
          "details": {"type": "string"},
          "effort": {"enum": ["High", "Medium", "Low"]}
        }
      }
    },
    "patientDetails": {
      "type": "object",
      "required": ["name", "dob", "encounterDates", "medications", "diagnoses", "labs", "attending"],
      "properties": {
        "name": {"type": "string"},
        "dob": {"type": "string"},
        "encounterDates": {"type": "array", "items": {"type": "string"}},
        "medications": {"type": "array", "items": {"type": "string"}},
        "diagnoses": {"type": "array", "items": {"type": "string"}},
        "labs": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "value", "unit", "normalRange"],
            "properties": {
              "name": {"type": "string"},
              "value": {"type": "string"},
              "unit": {"type": "string"},
              "normalRange": {"type": "string"}
            }
          }
        },
        "attending": {"type": "string"}
      }
    },
    "riskFlags": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "severity", "message"],
        "properties": {
          "id": {"type": "string"},
          "severity": {"enum": ["Critical", "High", "Medium"]},
          "message": {"type": "string"}
        }
      }
    },
    "suggestions": {"type": "array", "items": {"type": "string"}},
    "stats": {
      "type": "object",
      "required": ["wordCount", "sections", "readingScore", "confidence"],
      "properties": {
        "wordCount": {"type": "integer"},
        "sections": {"type": "integer"},
        "readingScore": {"type": "number"},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

var compiledRecordSchema = jsonschema.MustCompileString("analysis_record.json", recordSchema)

// validateRawRecord checks the completion payload against the record schema.
func validateRawRecord(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal completion payload: %w", err)
	}
	if err := compiledRecordSchema.Validate(v); err != nil {
		return fmt.Errorf("completion payload does not match schema: %w", err)
	}
	return nil
}
