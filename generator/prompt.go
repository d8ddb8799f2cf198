package generator

import (
	"fmt"
	"strings"
)

// 各操作名称，同时用作日志和指标的标签。
const (
	OpDiscoverTopics = "discover_topics"
	OpDraftContent   = "draft_content"
	OpScoreContent   = "score_content"
	OpExpandContent  = "expand_content"
	OpGenerateImage  = "generate_image"
	OpSanitize       = "sanitize_content"
)

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	Op     string
	System string
	User   string
	// 要求模型只返回 JSON（provider 支持时）。
	JSON bool
}

const systemJSON = "You are the editor of a blog about artificial intelligence. " +
	"Reply with a single JSON document and nothing else: no Markdown fences, no commentary."

// BuildTopicsPrompt 生成选题提示词，theme 非空时所有选题都要围绕它。
func BuildTopicsPrompt(theme string, count int) Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Propose %d distinct blog post ideas about artificial intelligence.\n", count))
	if t := strings.TrimSpace(theme); t != "" {
		sb.WriteString(fmt.Sprintf("Every idea must connect to this theme: %s.\n", t))
	}
	sb.WriteString("Each idea has:\n")
	sb.WriteString("- topic: the AI concept being explained\n")
	sb.WriteString("- twist: an unexpected angle or analogy that makes it memorable\n")
	sb.WriteString("- title: a catchy headline under 80 characters\n\n")
	sb.WriteString(`Format: {"topics":[{"topic":"...","twist":"...","title":"..."}]}`)
	return Prompt{Op: OpDiscoverTopics, System: systemJSON, User: sb.String(), JSON: true}
}

// BuildDraftPrompt 生成首稿提示词：摘要、三个要点和结论。
func BuildDraftPrompt(t Topic) Prompt {
	var sb strings.Builder
	sb.WriteString("Write the first draft of a short blog post.\n")
	writeTopic(&sb, t)
	sb.WriteString("\nRequirements:\n")
	sb.WriteString("- summary: one paragraph, 60 to 120 words\n")
	sb.WriteString("- goals: exactly 3 key takeaways, each a single sentence\n")
	sb.WriteString("- conclusion: one paragraph that ties back to the twist\n\n")
	sb.WriteString(`Format: {"summary":"...","goals":["...","...","..."],"conclusion":"..."}`)
	return Prompt{Op: OpDraftContent, System: systemJSON, User: sb.String(), JSON: true}
}

// BuildScorePrompt 生成打分提示词（0-100）。
func BuildScorePrompt(a Article) Prompt {
	var sb strings.Builder
	sb.WriteString("Rate this draft from 0 to 100 for originality, clarity and how likely a general ")
	sb.WriteString("reader is to share it.\n\n")
	writeArticle(&sb, a)
	sb.WriteString("\n")
	sb.WriteString(`Format: {"score":0,"reason":"..."}`)
	return Prompt{Op: OpScoreContent, System: systemJSON, User: sb.String(), JSON: true}
}

// BuildExpandPrompt 为每个要点生成一个带配图提示的小节。
func BuildExpandPrompt(a Article) Prompt {
	var sb strings.Builder
	sb.WriteString("Expand this draft for publication. For each key takeaway write a subsection with:\n")
	sb.WriteString("- title: a short heading\n")
	sb.WriteString("- body: two or three paragraphs in plain Markdown\n")
	sb.WriteString("- image_prompt: a one-sentence description of an illustration, no text in the image\n\n")
	writeArticle(&sb, a)
	sb.WriteString("\n")
	sb.WriteString(`Format: {"goals":[{"title":"...","body":"...","image_prompt":"..."}]}`)
	return Prompt{Op: OpExpandContent, System: systemJSON, User: sb.String(), JSON: true}
}

// BuildSanitizePrompt 发布前的安全/包容性审校提示词。
func BuildSanitizePrompt(a Article) Prompt {
	var sb strings.Builder
	sb.WriteString("Review this post before publication. Rewrite only what is needed to remove ")
	sb.WriteString("unsafe advice, unverifiable claims, stereotypes or exclusionary language. ")
	sb.WriteString("Keep the voice, structure and Markdown. Return every field, unchanged if it needs no edit.\n\n")
	writeArticle(&sb, a)
	sb.WriteString("\n")
	sb.WriteString(`Format: {"title":"...","summary":"...","goals":["..."],"conclusion":"...","expanded_bodies":["..."]}`)
	return Prompt{Op: OpSanitize, System: systemJSON, User: sb.String(), JSON: true}
}

// ImagePrompt 文章封面图的默认提示词。
func ImagePrompt(a Article) string {
	p := fmt.Sprintf("Editorial illustration for a blog post titled %q about %s", a.Title, a.Topic)
	if a.Twist != "" {
		p += ", visualised through " + a.Twist
	}
	return p + ". Clean, modern, no text."
}

func writeTopic(sb *strings.Builder, t Topic) {
	sb.WriteString(fmt.Sprintf("Title: %s\n", t.Title))
	sb.WriteString(fmt.Sprintf("Topic: %s\n", t.Topic))
	if t.Twist != "" {
		sb.WriteString(fmt.Sprintf("Twist: %s\n", t.Twist))
	}
}

func writeArticle(sb *strings.Builder, a Article) {
	writeTopic(sb, Topic{Topic: a.Topic, Twist: a.Twist, Title: a.Title})
	if a.Summary != "" {
		sb.WriteString(fmt.Sprintf("Summary: %s\n", a.Summary))
	}
	if len(a.Goals) > 0 {
		sb.WriteString("Key takeaways:\n")
		for i, g := range a.Goals {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, g))
		}
	}
	for i, g := range a.Expanded {
		sb.WriteString(fmt.Sprintf("Section %d: %s\n%s\n", i+1, g.Title, g.Body))
	}
	if a.Conclusion != "" {
		sb.WriteString(fmt.Sprintf("Conclusion: %s\n", a.Conclusion))
	}
}
