package generator

// Topic 是一个选题。
type Topic struct {
	Topic string `json:"topic"`
	Twist string `json:"twist"`
	Title string `json:"title"`
}

// Draft is the首稿正文，Goals 固定三条。
type Draft struct {
	Summary    string    `json:"summary"`
	Goals      [3]string `json:"goals"`
	Conclusion string    `json:"conclusion"`
}

// ExpandedGoal is one illustrated subsection produced by expansion.
type ExpandedGoal struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ImagePrompt string `json:"image_prompt"`
	Image       string `json:"image,omitempty"`
}

// Article 交给模型的文章只读视图。
type Article struct {
	ID         string
	Topic      string
	Twist      string
	Title      string
	Summary    string
	Goals      []string
	Conclusion string
	Expanded   []ExpandedGoal
}

// Sanitized 审校后的替换文本，空字段表示保留原值。
type Sanitized struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	Goals          []string `json:"goals"`
	Conclusion     string   `json:"conclusion"`
	ExpandedBodies []string `json:"expanded_bodies"`
}
