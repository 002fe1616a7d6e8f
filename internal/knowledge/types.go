package knowledge

import (
	"fmt"
	"time"
)

// Source records how an entry entered the store.
type Source string

const (
	SourceManual       Source = "manual"
	SourceWebSearch    Source = "web_search"
	SourceUserFeedback Source = "user_feedback"
	SourceConversation Source = "conversation"
)

// Category classifies an entry. The set is closed: metadata is a tagged
// variant per category rather than a free-form map, so entry shapes cannot
// drift silently.
type Category string

const (
	CategoryPricing      Category = "pricing"
	CategoryServices     Category = "services"
	CategoryTechnical    Category = "technical"
	CategoryConversation Category = "conversation"
	CategoryWebSearch    Category = "web_search"
	CategoryGeneral      Category = "general"
)

// KnownCategory reports whether c is one of the closed category values.
func KnownCategory(c Category) bool {
	switch c {
	case CategoryPricing, CategoryServices, CategoryTechnical,
		CategoryConversation, CategoryWebSearch, CategoryGeneral:
		return true
	}
	return false
}

// PricingMeta carries pricing-entry fields.
type PricingMeta struct {
	Plan       string  `json:"plan,omitempty"`
	MonthlyUSD float64 `json:"monthly_usd,omitempty"`
}

// ServicesMeta carries service-entry fields.
type ServicesMeta struct {
	Service string `json:"service,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

// TechnicalMeta carries technical-entry fields.
type TechnicalMeta struct {
	Component string `json:"component,omitempty"`
	Version   string `json:"version,omitempty"`
}

// ConversationMeta links a promoted entry back to its conversation turn.
type ConversationMeta struct {
	TurnID    string `json:"turn_id"`
	SessionID string `json:"session_id,omitempty"`
	Rating    int    `json:"rating,omitempty"`
}

// WebSearchMeta records where a learned-from-web entry came from.
type WebSearchMeta struct {
	URL       string  `json:"url"`
	Provider  string  `json:"provider,omitempty"`
	Relevance float64 `json:"relevance,omitempty"`
}

// Meta is the per-category tagged variant. At most one arm is set, and it
// must match the entry's category.
type Meta struct {
	Pricing      *PricingMeta      `json:"pricing,omitempty"`
	Services     *ServicesMeta     `json:"services,omitempty"`
	Technical    *TechnicalMeta    `json:"technical,omitempty"`
	Conversation *ConversationMeta `json:"conversation,omitempty"`
	WebSearch    *WebSearchMeta    `json:"web_search,omitempty"`
}

// Validate checks that at most one arm is set and that it matches the
// entry's category.
func (m Meta) Validate(category Category) error {
	set := 0
	var arm Category
	if m.Pricing != nil {
		set++
		arm = CategoryPricing
	}
	if m.Services != nil {
		set++
		arm = CategoryServices
	}
	if m.Technical != nil {
		set++
		arm = CategoryTechnical
	}
	if m.Conversation != nil {
		set++
		arm = CategoryConversation
	}
	if m.WebSearch != nil {
		set++
		arm = CategoryWebSearch
	}

	if set > 1 {
		return fmt.Errorf("metadata sets %d category arms, want at most 1", set)
	}
	if set == 1 && arm != category {
		return fmt.Errorf("metadata arm %q does not match category %q", arm, category)
	}
	return nil
}

// Entry is a unit of durable knowledge.
//
// Confidence estimates answer quality; importance is the retention priority.
// Both stay clamped to [0, 1]. The embedding dimension is constant across
// the store.
type Entry struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Category     Category  `json:"category"`
	Tags         []string  `json:"tags,omitempty"`
	Embedding    []float64 `json:"embedding"`
	Confidence   float64   `json:"confidence"`
	Importance   float64   `json:"importance"`
	Source       Source    `json:"source"`
	UsageCount   int       `json:"usage_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Meta         Meta      `json:"meta,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	out := *e
	out.Tags = append([]string(nil), e.Tags...)
	out.Embedding = append([]float64(nil), e.Embedding...)
	if e.Meta.Pricing != nil {
		m := *e.Meta.Pricing
		out.Meta.Pricing = &m
	}
	if e.Meta.Services != nil {
		m := *e.Meta.Services
		out.Meta.Services = &m
	}
	if e.Meta.Technical != nil {
		m := *e.Meta.Technical
		out.Meta.Technical = &m
	}
	if e.Meta.Conversation != nil {
		m := *e.Meta.Conversation
		out.Meta.Conversation = &m
	}
	if e.Meta.WebSearch != nil {
		m := *e.Meta.WebSearch
		out.Meta.WebSearch = &m
	}
	return &out
}

// ImportanceTier buckets importance for stats reporting.
func ImportanceTier(importance float64) string {
	switch {
	case importance > 0.7:
		return "high"
	case importance >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

// Stats summarizes the store contents.
type Stats struct {
	Total        int              `json:"total"`
	ByCategory   map[Category]int `json:"by_category"`
	ByImportance map[string]int   `json:"by_importance"`
}

// Clamp01 clamps x to [0, 1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
