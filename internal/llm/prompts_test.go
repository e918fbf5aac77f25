package llm

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildAnalysisPromptTruncatesDocumentText(t *testing.T) {
	text := strings.Repeat("a", 20000)
	messages := BuildAnalysisPrompt(text, "notes.pdf")

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != RoleSystem {
		t.Fatalf("first message role = %q", messages[0].Role)
	}
	user := messages[1].Content
	if !strings.Contains(user, strings.Repeat("a", 15000)) {
		t.Fatal("prompt missing first 15000 characters")
	}
	if strings.Contains(user, strings.Repeat("a", 15001)) {
		t.Fatal("prompt contains more than 15000 document characters")
	}
}

func TestTruncateNeverSplitsRunes(t *testing.T) {
	// A multi-byte rune straddling the limit must be dropped whole.
	text := strings.Repeat("a", 14999) + "é" + strings.Repeat("b", 100)
	got := truncate(text, 15000)
	if len(got) != 14999 {
		t.Fatalf("truncated to %d bytes, want 14999 (rune boundary)", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncated text is not valid UTF-8")
	}

	// ASCII at the limit still cuts exactly there.
	if got := truncate(strings.Repeat("a", 20000), 15000); len(got) != 15000 {
		t.Fatalf("ascii truncation = %d bytes, want 15000", len(got))
	}
	if got := truncate("short", 15000); got != "short" {
		t.Fatalf("under-limit text changed: %q", got)
	}
}

func TestBuildAnalysisPromptInjectsWordCount(t *testing.T) {
	messages := BuildAnalysisPrompt("Patient has diabetes, prescribed metformin.", "notes.pdf")
	user := messages[1].Content
	if !strings.Contains(user, `"wordCount": 5,`) {
		t.Fatalf("expected literal word count 5 in schema hint, got:\n%s", user)
	}
	if !strings.Contains(user, "FILENAME: notes.pdf") {
		t.Fatal("expected filename in prompt")
	}
}

func TestBuildChatPromptKeepsLastFiveTurnsInOrder(t *testing.T) {
	history := make([]Message, 0, 8)
	for i := 0; i < 8; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, Message{Role: role, Content: fmt.Sprintf("turn-%d", i)})
	}

	messages := BuildChatPrompt("document context", history, "new question")

	// 2 system turns + 5 history turns + 1 user turn.
	if len(messages) != 8 {
		t.Fatalf("expected 8 messages, got %d", len(messages))
	}
	for i := 0; i < 5; i++ {
		want := fmt.Sprintf("turn-%d", i+3)
		if messages[2+i].Content != want {
			t.Errorf("history position %d = %q, want %q", i, messages[2+i].Content, want)
		}
	}
	last := messages[len(messages)-1]
	if last.Role != RoleUser || last.Content != "new question" {
		t.Fatalf("last message = %+v", last)
	}
	if len(history) != 8 {
		t.Fatal("history slice was mutated")
	}
}

func TestBuildChatPromptTruncatesContext(t *testing.T) {
	text := strings.Repeat("b", 12000)
	messages := BuildChatPrompt(text, nil, "q")
	ctxMsg := messages[1].Content
	if len(ctxMsg) != len("Context: ")+10000 {
		t.Fatalf("context message length = %d", len(ctxMsg))
	}
}

func TestBuildRewritePromptKnownStyles(t *testing.T) {
	for style, instruction := range rewriteInstructions {
		messages := BuildRewritePrompt("BP 140/90", style)
		if len(messages) != 2 {
			t.Fatalf("style %q: expected 2 messages", style)
		}
		if !strings.HasPrefix(messages[1].Content, instruction) {
			t.Errorf("style %q: instruction not applied", style)
		}
		if !strings.HasSuffix(messages[1].Content, "BP 140/90") {
			t.Errorf("style %q: input text missing", style)
		}
	}
}

func TestBuildRewritePromptUnknownStyleFallsBack(t *testing.T) {
	first := BuildRewritePrompt("text", "Shout It")
	second := BuildRewritePrompt("text", "Whisper")
	if first[1].Content != second[1].Content {
		t.Fatal("unknown styles should produce identical generic prompts")
	}
	if !strings.HasPrefix(first[1].Content, rewriteGenericInstruction) {
		t.Fatalf("expected generic instruction, got %q", first[1].Content)
	}
}
