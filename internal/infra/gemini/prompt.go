package gemini

import (
	"fmt"
	"strings"
)

type category struct {
	name   string
	weight int
	focus  string
}

var categories = []category{
	{"Engineering Mathematics", 15, "Calculus (PDEs, higher order differentials, ODEs), Linear Algebra and Complex Numbers"},
	{"Physics", 10, "Thermodynamics, Electromagnetism and Mechanics"},
	{"Chemistry", 5, "physical chemistry and materials science for engineers"},
	{"Mathematical Logic & Reasoning", 10, "pattern recognition, syllogisms and logical flow"},
	{"General Engineering Knowledge & Random", 10, "history of engineering, ethics or emerging technology"},
}

// distribution splits count across the categories in the 15/10/5/10/10 ratio.
// Rounding leftovers go to the first category.
func distribution(count int) []int {
	total := 0
	for _, c := range categories {
		total += c.weight
	}
	out := make([]int, len(categories))
	assigned := 0
	for i, c := range categories {
		out[i] = c.weight * count / total
		assigned += out[i]
	}
	out[0] += count - assigned
	return out
}

func buildPrompt(count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate exactly %d university-level engineering quiz questions for 1st-3rd year students.\n\nDistribution:\n", count)
	for i, n := range distribution(count) {
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, "%d. %s (%d questions): %s.\n", i+1, categories[i].name, n, categories[i].focus)
	}
	b.WriteString("\nDifficulty: sophisticated but accessible to a motivated 1st year student.\n")
	b.WriteString("Every question has exactly 4 options, a unique id and a short explanation of the correct answer.\n")
	b.WriteString("Ensure each question is unique and technical.")
	return b.String()
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Items       *schema           `json:"items,omitempty"`
	Properties  map[string]schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
	ResponseSchema   schema `json:"responseSchema"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

func newGenerateRequest(count int) generateRequest {
	question := schema{
		Type: "OBJECT",
		Properties: map[string]schema{
			"id":            {Type: "STRING"},
			"category":      {Type: "STRING"},
			"question":      {Type: "STRING"},
			"options":       {Type: "ARRAY", Items: &schema{Type: "STRING"}},
			"correctAnswer": {Type: "INTEGER", Description: "Index (0-3) of the correct option"},
			"explanation":   {Type: "STRING"},
		},
		Required: []string{"id", "category", "question", "options", "correctAnswer", "explanation"},
	}
	return generateRequest{
		Contents: []content{{Parts: []part{{Text: buildPrompt(count)}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema{Type: "ARRAY", Items: &question},
		},
	}
}
