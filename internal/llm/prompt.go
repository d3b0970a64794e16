package llm

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt instructs the model to answer from the retrieved records only.
const DefaultSystemPrompt = `You answer questions about stored records.
Answer using ONLY the provided context. If the context does not contain
enough information, say so. Cite records using [record_id].`

// ContextItem is one retrieved record given to the model.
type ContextItem struct {
	ID   string
	Text string
}

// BuildPrompt formats the retrieved records and the question into a prompt.
func BuildPrompt(question string, items []ContextItem) string {
	var b strings.Builder
	if len(items) > 0 {
		b.WriteString("Context:\n")
		for _, it := range items {
			fmt.Fprintf(&b, "[%s]\n%s\n\n", it.ID, strings.TrimSpace(it.Text))
		}
	} else {
		b.WriteString("Context: (no matching records)\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\nAnswer:")
	return b.String()
}
