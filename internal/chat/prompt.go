package chat

import (
	"fmt"
	"strings"

	"rag-memory/internal/domain"
)

// Profile selects the answering persona and the tag scope of retrieval.
type Profile string

const (
	ProfileNone     Profile = ""
	ProfileBusiness Profile = "business"
	ProfilePrivate  Profile = "private"
)

func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case ProfileNone, ProfileBusiness, ProfilePrivate:
		return p, nil
	}
	return "", domain.Invalid("unknown profile", "profile", s)
}

// Tags returns the record tags visible under the profile. Nil means all.
func (p Profile) Tags() []domain.Tag {
	switch p {
	case ProfileBusiness:
		return []domain.Tag{domain.TagBusiness, domain.TagBoth}
	case ProfilePrivate:
		return []domain.Tag{domain.TagPrivate, domain.TagBoth}
	}
	return nil
}

const basePrompt = `You are a helpful AI assistant with access to the user's document memory.
When answering questions, use relevant information from the memory context provided.
If the asked information is not in the context, admit that you don't know or suggest
that the user upload relevant documents to help you better assist them.`

const businessPrompt = `

Business Profile Guidelines:
- Maintain professional tone and focus on business objectives
- Prioritize actionable insights and strategic recommendations
- When analyzing documents, focus on commercial implications, ROI, and market positioning
- Present information in structured, concise formats suitable for business contexts
`

const privatePrompt = `

Private Profile Guidelines:
- Use a more conversational, personalized tone
- When analyzing personal documents, focus on the user's stated goals and preferences
- Respect privacy and maintain confidentiality in all discussions
- Present information in an accessible, user-friendly manner
`

// SystemPrompt composes the base instructions with the project and profile
// clauses.
func SystemPrompt(project string, profile Profile) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	if project != "" {
		fmt.Fprintf(&sb, "\n\nCurrent Project Context: %s", project)
		sb.WriteString("\nWhen helping with this project, prioritize information from documents tagged with this project.")
	}
	switch profile {
	case ProfileBusiness:
		sb.WriteString(businessPrompt)
	case ProfilePrivate:
		sb.WriteString(privatePrompt)
	}
	return sb.String()
}

// UserMessage wraps the question with the assembled memory context.
func UserMessage(contextBlock, question string) string {
	return fmt.Sprintf(`
Memory context relevant to the question is below:

===== MEMORY CONTEXT START =====
%s
===== MEMORY CONTEXT END =====

The user's question is: %s

Answer based on the provided memory context when relevant. If the answer isn't in the context, say so clearly.
`, contextBlock, question)
}
