package pipeline

import (
	"fmt"
	"strings"
)

// Markdown renders the publishable article for p. The output depends only on
// p, so unchanged posts always render to identical bytes.
func Markdown(p Post) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", p.Title))
	writeImage(&sb, p.Title, p.Image)

	var summary, conclusion string
	if p.Draft != nil {
		summary = p.Draft.Summary
		conclusion = p.Draft.Conclusion
	}
	sb.WriteString("## Summary\n\n")
	sb.WriteString(summary)
	sb.WriteString("\n\n")

	if len(p.Expanded) > 0 {
		for _, g := range p.Expanded {
			sb.WriteString(fmt.Sprintf("### %s\n\n", g.Title))
			writeImage(&sb, g.Title, g.Image)
			sb.WriteString(g.Body)
			sb.WriteString("\n\n")
		}
	} else {
		sb.WriteString("## Key Takeaways\n\n")
		for i, g := range p.Goals() {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, g))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Conclusion\n\n")
	sb.WriteString(conclusion)
	sb.WriteString("\n")
	return sb.String()
}

func writeImage(sb *strings.Builder, alt, ref string) {
	if ref == "" {
		return
	}
	sb.WriteString(fmt.Sprintf("![%s](%s)\n\n", escapeAlt(alt), ref))
}

// escapeAlt escapes the characters that would end the alt text early.
func escapeAlt(s string) string {
	return strings.NewReplacer("\\", "\\\\", "[", "\\[", "]", "\\]").Replace(s)
}
