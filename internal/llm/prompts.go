package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// analysisContextLimit caps how much document text goes into the
	// analysis prompt. Longer documents lose trailing content; this is a
	// token-budget tradeoff.
	analysisContextLimit = 15000

	// chatContextLimit caps the document context injected into chat turns.
	chatContextLimit = 10000

	// chatHistoryLimit is the number of trailing transcript turns carried
	// into each chat prompt.
	chatHistoryLimit = 5
)

const analysisSystemPrompt = `You are an advanced Medical AI Assistant designed to analyze clinical documents.
Your goal is to extract structured data, identify critical actions, and summarize the patient's status.
Output must be valid JSON matching the specified schema exactly.`

const chatSystemPrompt = "You are a helpful medical assistant. Answer questions based ONLY on the provided document context."

const rewriteSystemPrompt = "You are a medical text editor."

var rewriteInstructions = map[string]string{
	"Simplify Text":     "Rewrite the following medical text to be simple and easy to understand for a 5th grader:",
	"Make Professional": "Rewrite the following text to sound highly professional, clinical, and formal:",
	"Remove Jargon":     "Rewrite the following text to remove all medical jargon and explain terms in plain English for a patient:",
}

const rewriteGenericInstruction = "Rewrite the following text:"

// BuildAnalysisPrompt assembles the structured-extraction prompt for one
// document. Document text beyond the context limit is truncated; the word
// count of the full text is injected into the schema hint as a literal.
func BuildAnalysisPrompt(documentText, filename string) []Message {
	wordCount := len(strings.Fields(documentText))

	var b strings.Builder
	b.WriteString("Analyze the following clinical document text and extract the required information.\n\n")
	fmt.Fprintf(&b, "FILENAME: %s\n\n", filename)
	b.WriteString("DOCUMENT TEXT:\n")
	b.WriteString(truncate(documentText, analysisContextLimit))
	b.WriteString("\n\nRETURN JSON FORMAT:\n")
	fmt.Fprintf(&b, `{
  "summary": "Clinical summary...",
  "topActions": [
    { "id": "a1", "title": "Action Title", "priority": "Critical/High/Medium/Low", "details": "Details...", "effort": "High/Medium/Low" }
  ],
  "patientDetails": {
    "name": "Patient Name",
    "dob": "YYYY-MM-DD",
    "encounterDates": ["YYYY-MM-DD"],
    "medications": ["Med 1", "Med 2"],
    "diagnoses": ["Dx 1", "Dx 2"],
    "labs": [
      { "name": "Lab Name", "value": "Value", "unit": "Unit", "normalRange": "Range" }
    ],
    "attending": "Doctor Name"
  },
  "riskFlags": [
    { "id": "r1", "severity": "Critical/High/Medium", "message": "Risk description" }
  ],
  "suggestions": ["Suggestion 1", "Suggestion 2"],
  "stats": {
    "wordCount": %d,
    "sections": 5,
    "readingScore": 45.0,
    "confidence": 0.95
  }
}`, wordCount)

	return []Message{
		{Role: RoleSystem, Content: analysisSystemPrompt},
		{Role: RoleUser, Content: b.String()},
	}
}

// BuildChatPrompt assembles a context-scoped chat prompt: persona, document
// context, the trailing history turns in original order, then the new user
// message. The history slice is not mutated.
func BuildChatPrompt(documentText string, history []Message, userMessage string) []Message {
	recent := history
	if len(recent) > chatHistoryLimit {
		recent = recent[len(recent)-chatHistoryLimit:]
	}

	messages := make([]Message, 0, len(recent)+3)
	messages = append(messages,
		Message{Role: RoleSystem, Content: chatSystemPrompt},
		Message{Role: RoleSystem, Content: "Context: " + truncate(documentText, chatContextLimit)},
	)
	messages = append(messages, recent...)
	messages = append(messages, Message{Role: RoleUser, Content: userMessage})
	return messages
}

// BuildRewritePrompt assembles a style-rewrite prompt. Unknown styles fall
// back to the generic instruction. The input text is never truncated.
func BuildRewritePrompt(text, style string) []Message {
	instruction, ok := rewriteInstructions[style]
	if !ok {
		instruction = rewriteGenericInstruction
	}
	return []Message{
		{Role: RoleSystem, Content: rewriteSystemPrompt},
		{Role: RoleUser, Content: instruction + "\n\n" + text},
	}
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
