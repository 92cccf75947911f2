package prompt

import (
	"fmt"
	"strings"

	"github.com/kalambet/devharvest/internal/portal"
)

const instruction = `Based on the following method from the ServiceNow documentation, generate 3 realistic questions that a developer might ask. Formulate the appropriate answer for each, including a code example. Start each Question with "Question 1:", "Question 2:", etc.`

const closing = "Now generate 3 realistic questions & answers:"

// Format builds one Record per named method of doc. Children without a name
// are not methods and are skipped.
func Format(doc portal.Document, version string) []Record {
	class := doc.Class
	var out []Record
	for _, m := range class.Children {
		if m.Name == "" {
			continue
		}
		out = append(out, Record{
			ClassName:  class.Name,
			MethodName: m.Name,
			Prompt:     methodPrompt(class.Name, m),
			Metadata: Metadata{
				Version: version,
				Scope:   doc.Scope,
				FullID:  doc.ID,
			},
		})
	}
	return out
}

func methodPrompt(className string, m portal.Node) string {
	var params []string
	var returns, example *portal.Node
	for i := range m.Children {
		c := &m.Children[i]
		switch {
		case c.SectionHeader == "Parameters":
			params = append(params, fmt.Sprintf("- %s (%s): %s", c.Name, StripHTML(c.Text), StripHTML(c.Text2)))
		case c.SectionHeader == "Returns" && returns == nil:
			returns = c
		case c.Name == "Example" && example == nil:
			example = c
		}
	}

	returnLine := "void"
	if returns != nil && returns.Text != "" {
		returnLine = fmt.Sprintf("- %s (%s): %s.", StripHTML(returns.Name), StripHTML(returns.Text), StripHTML(returns.Text2))
	}

	// Example code is kept verbatim.
	var exampleLine string
	if example != nil && example.Text != "" {
		exampleLine = fmt.Sprintf("Example code (%s): %s", example.Text2, example.Text)
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Method: %s.%s\n", className, m.Name)
	fmt.Fprintf(&b, "Description: %s. %s\n\n", StripHTML(m.Text), StripHTML(m.Text2))
	b.WriteString("Parameter:\n")
	b.WriteString(strings.Join(params, "\n"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Returns: %s\n\n", returnLine)
	b.WriteString(exampleLine)
	b.WriteString("\n\n")
	b.WriteString(closing)
	return strings.TrimSpace(b.String())
}
