package generate

import (
	"fmt"
	"strings"

	"github.com/aicooking/recipegen/internal/search"
)

// formatExamples renders grounding recipes as numbered context for the model.
func formatExamples(examples []search.Result) string {
	var b strings.Builder
	b.WriteString("Here are some similar recipes to use as reference:\n\n")
	for i, ex := range examples {
		title := ex.DocumentTitle
		if title == "" {
			title = "Unknown"
		}
		fmt.Fprintf(&b, "RECIPE %d:\n", i+1)
		fmt.Fprintf(&b, "Title: %s\n", title)
		fmt.Fprintf(&b, "Content: %s\n\n", ex.Content)
	}
	return b.String()
}

func systemPrompt(recipesContext string) string {
	return fmt.Sprintf(`You are a professional chef and recipe creator. Your task is to create a new, unique recipe based on the examples provided.

The recipe should be well-structured with:
1. A title
2. A list of ingredients with precise measurements
3. Step-by-step cooking instructions
4. Nutritional information (estimated calories and macronutrients)
5. Preparation time and cooking time

Use the following similar recipes as inspiration, but create something original:

%s

Format your response as a JSON object with the following fields:
- title: string
- description: string
- ingredients: array of strings
- instructions: array of strings
- nutritional_info: object with calories, protein, carbs, fat
- prep_time_minutes: number
- cook_time_minutes: number

Be precise and make sure the recipe is practical and can be followed by home cooks.
`, recipesContext)
}

func userPrompt(query string) string {
	return fmt.Sprintf(`Create a new, unique recipe for %q using the example recipes as inspiration. Make sure it's delicious, practical, and includes all required sections.`, query)
}

func imagePrompt(title, description string) string {
	return fmt.Sprintf("A professional food photograph of %s. %s Appetizing, natural light, shallow depth of field.", title, description)
}
