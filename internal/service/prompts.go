package service

import (
	"fmt"
	"strings"

	"kortex/internal/rag"
	"kortex/internal/storage"
)

const (
	curriculumSourceChars = 10000
	excerptChars          = 4000
	maxDeepDiveQueries    = 3
	snippetsPerQuery      = 3
)

// mcqTemplate is the exact assessment layout the tutor must reproduce.
const mcqTemplate = `1. [Question Text]
     A. [Option A]
     B. [Option B]
     C. [Option C]
     D. [Option D]`

// Deep dive progress lines, streamed but never persisted.
const (
	progressGathering    = "Gathering live intelligence from the web...\n"
	progressSearchFormat = "Searching for: '%s'...\n"
	progressSynthesizing = "\nSynthesizing intelligence brief...\n\n"
	deepDiveUserText     = "Deep Dive Analysis"
)

// Inline failure prefixes written to an already-open stream.
const (
	streamFailurePrefix   = "I'm sorry, a critical error occurred. Error: "
	deepDiveFailurePrefix = "A critical error occurred during Deep Dive. Error: "
)

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func condensePrompt(memory []storage.Turn, followUp string) string {
	var b strings.Builder
	b.WriteString("Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.\n\n")
	b.WriteString("Chat History:\n")
	writeMemory(&b, memory)
	b.WriteString("Follow Up Input: ")
	b.WriteString(followUp)
	b.WriteString("\nStandalone question:")
	return b.String()
}

func documentQAPrompt(question string, hits []rag.Hit, memory []storage.Turn) string {
	var b strings.Builder
	b.WriteString("Use the following pieces of context to answer the question at the end. ")
	b.WriteString("If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n")

	b.WriteString("--- Context from document ---\n\n")
	for _, hit := range hits {
		b.WriteString(hit.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("--- End Context ---\n\n")

	if len(memory) > 0 {
		b.WriteString("Chat History:\n")
		writeMemory(&b, memory)
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nHelpful Answer:")
	return b.String()
}

func writeMemory(b *strings.Builder, memory []storage.Turn) {
	for _, t := range memory {
		b.WriteString("Human: ")
		b.WriteString(t.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Answer)
		b.WriteString("\n")
	}
}

func curriculumPrompt(documentText string) string {
	return "Analyze the document and create a Socratic curriculum scaled to its length. Respond ONLY with the numbered list.\n\nDOCUMENT:\n" +
		prefix(documentText, curriculumSourceChars)
}

type tutorInput struct {
	firstTurn  bool
	curriculum string
	history    []storage.HistoryEntry
	excerpt    string
	message    string
}

func tutorPrompt(in tutorInput) string {
	lines := []string{
		"## 1. CORE IDENTITY ##",
		"You are Kortex, an elite AI mentor. Your personality is a blend of a brilliant, charismatic professor and a patient, insightful partner. You are here to help the user think deeper and learn faster.",
		"",
		"## 2. CORE MISSION & LOGIC ##",
		"Your ultimate goal is to create a natural and intelligent conversation that guides the user through the lesson plan. To do this, you MUST follow this logic:",
		"",
		fmt.Sprintf("IF the user's message is the VERY FIRST ONE in the tutoring session (is_first_tutor_message = %t), your primary task is to:", in.firstTurn),
		"1. Introduce yourself and the purpose of the lesson.",
		"2. Present the complete lesson plan you have created.",
		"3. Ask an engaging, open-ended Socratic question about the very first topic in the plan.",
		"",
		"OTHERWISE (for all subsequent messages), your task is to be a dynamic partner:",
		"1. Analyze the user's latest message. Is it a response to your question or a new command?",
		"2. If it's a response, continue the Socratic dialogue.",
		"3. If it's a command (e.g., \"make a quiz\"), be a proactive assistant. If the command is ambiguous, ask clarifying questions. **When the user provides specific parameters (like '15 questions'), you MUST adhere to them precisely.** After gathering sufficient information, execute the command. It is better to provide a good result now than to ask endless questions.",
		"",
		"## 3. CONTEXT FOR YOUR MISSION ##",
		fmt.Sprintf("- **is_first_tutor_message:** %t", in.firstTurn),
		"- **Lesson Plan Roadmap:** " + in.curriculum,
		"- **Conversation History:**",
		formatAssistedHistory(in.history),
		"- **Document Snippet for Context:** " + in.excerpt,
		"",
		"## 4. CRITICAL RULES (NON-NEGOTIABLE) ##",
		"- **NO ROBOTIC INTROS:** NEVER start with \"Excellent!\", \"Great!\", \"Okay, so...\". Find a natural, conversational opening.",
		"- **PERFECT MCQ FORMATTING TEMPLATE:** When creating a quiz, you MUST format every question EXACTLY like this, numbering questions consecutively and replacing the bracketed content. Do not add any text before or after this structure:",
		mcqTemplate,
		"",
		"## 5. THE USER'S LATEST MESSAGE ##",
		"\"" + in.message + "\"",
		"",
		"## 6. YOUR RESPONSE: ##",
	}
	return strings.Join(lines, "\n")
}

func formatAssistedHistory(entries []storage.HistoryEntry) string {
	if len(entries) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(e.Role))
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}

func queryGenerationPrompt(documentText string) string {
	return "Analyze document. Generate JSON array of 3 expert Google queries for risks & trends. ONLY JSON array.\n\nDOC:" +
		prefix(documentText, excerptChars)
}

func synthesisPrompt(documentText, webContext string) string {
	return "You are a world-class analyst. Synthesize original doc with live web data. Create a concise, actionable brief. Use Markdown.\n\nORIGINAL DOC:" +
		prefix(documentText, excerptChars) +
		"\n\nLIVE WEB DATA:" + webContext +
		"\n\nBRIEF:"
}
