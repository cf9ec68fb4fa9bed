package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/suPer8Hu/ai-component-studio/internal/ai"
)

// contextTurns is how many recent chat turns are forwarded to the model.
const contextTurns = 5

const systemPrompt = `You are an expert React component generator. Generate modern, functional React components with Tailwind CSS styling.

IMPORTANT RULES:
1. Return ONLY a JSON object with "jsx" and "css" properties
2. JSX should be a complete functional component that exports default
3. Use modern React hooks (useState, useEffect, etc.) when needed
4. Include TypeScript interfaces if using props
5. CSS should be Tailwind classes or custom CSS if needed
6. Make components responsive and accessible
7. Include proper error handling and loading states when appropriate
8. Do not include import statements for React or standard hooks
9. Component should be self-contained and work in isolation

Format your response as:
{
  "jsx": "export default function ComponentName() { return (<div>...</div>); }",
  "css": ".custom-class { color: red; }"
}`

// buildMessages assembles the provider conversation:
// system prompt, up to contextTurns recent turns, then one user entry.
func buildMessages(prompt string, previous *Source, recent []Turn) []ai.Message {
	if len(recent) > contextTurns {
		recent = recent[len(recent)-contextTurns:]
	}

	out := make([]ai.Message, 0, len(recent)+2)
	out = append(out, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	for _, t := range recent {
		out = append(out, ai.Message{Role: t.Role, Content: t.Content})
	}

	if previous != nil {
		out = append(out, ai.Message{
			Role: ai.RoleUser,
			Content: fmt.Sprintf("Current component code: %s\n\nUser request: %s\n\nPlease modify the existing component based on the user's request.",
				encodeSource(*previous), prompt),
		})
	} else {
		out = append(out, ai.Message{Role: ai.RoleUser, Content: "Generate a React component: " + prompt})
	}
	return out
}

// encodeSource serializes {jsx, css} without HTML escaping so the model sees
// the markup verbatim.
func encodeSource(src Source) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		JSX string `json:"jsx"`
		CSS string `json:"css"`
	}{src.JSX, src.CSS}); err != nil {
		return "{}"
	}
	return strings.TrimRight(buf.String(), "\n")
}
