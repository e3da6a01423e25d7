// =============================================================================
// 📦 TradeFlow 声明式 Agent 记录
// =============================================================================
// 从 phaseN_agents_config.yaml 加载 customModes 声明，这是分析师行为的唯一定义处。
// =============================================================================
package records

import (
	"fmt"
	"strings"
)

const (
	maxRoleDefinitionChars = 20000
	maxDescriptionChars    = 20000
	maxGroups              = 50
)

// Record is one customModes[] entry: the declarative description of a single
// analyst. Its slug is unique within a phase file; name and roleDefinition
// are required non-empty.
type Record struct {
	Slug           string   `yaml:"slug"`
	Name           string   `yaml:"name"`
	RoleDefinition string   `yaml:"roleDefinition"`
	Description    string   `yaml:"description,omitempty"`
	WhenToUse      string   `yaml:"whenToUse,omitempty"`
	Groups         []string `yaml:"groups,omitempty"`
	Tools          []string `yaml:"tools,omitempty"`
}

// Validate enforces spec's load-time invariants. A record missing slug,
// name, or roleDefinition is rejected.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Slug) == "" {
		return fmt.Errorf("agent record: slug is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("agent record %q: name is required", r.Slug)
	}
	if strings.TrimSpace(r.RoleDefinition) == "" {
		return fmt.Errorf("agent record %q: roleDefinition is required", r.Slug)
	}
	if len(r.RoleDefinition) > maxRoleDefinitionChars {
		return fmt.Errorf("agent record %q: roleDefinition exceeds %d chars", r.Slug, maxRoleDefinitionChars)
	}
	if len(r.Description) > maxDescriptionChars {
		return fmt.Errorf("agent record %q: description exceeds %d chars", r.Slug, maxDescriptionChars)
	}
	if len(r.Groups) > maxGroups {
		return fmt.Errorf("agent record %q: groups exceeds %d entries", r.Slug, maxGroups)
	}
	return nil
}

// dedupTools removes duplicate tool names, preserving first-seen order.
func dedupTools(tools []string) []string {
	if len(tools) == 0 {
		return tools
	}
	seen := make(map[string]struct{}, len(tools))
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// InternalKey derives the internal key used to key AnalysisState report
// fields: the slug with a trailing "-analyst" suffix stripped and remaining
// hyphens turned into underscores, e.g. "market-analyst" -> "market".
func InternalKey(slug string) string {
	key := strings.TrimSuffix(slug, "-analyst")
	return strings.ReplaceAll(key, "-", "_")
}

var iconKeywords = []struct {
	keyword string
	icon    string
}{
	{"news", "📰"},
	{"social", "💬"},
	{"fundamental", "📈"},
	{"china", "🇨🇳"},
	{"market", "📊"},
}

// DeriveIcon picks an icon by keyword match against slug and name (lowered).
// Falls back to a generic analyst icon when nothing matches.
func DeriveIcon(slug, name string) string {
	haystack := strings.ToLower(slug + " " + name)
	for _, k := range iconKeywords {
		if strings.Contains(haystack, k.keyword) {
			return k.icon
		}
	}
	return "🧭"
}

// DeriveNodeLabel builds the "<Title_Case_Key> Analyst" node label from a
// record's internal key, e.g. "market" -> "Market Analyst".
func DeriveNodeLabel(internalKey string) string {
	words := strings.Split(strings.ReplaceAll(internalKey, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + " Analyst"
}

var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"news", "news"},
	{"social", "social"},
	{"fundamental", "fundamentals"},
	{"market", "market"},
}

// DeriveToolCategory hints which tool category a record belongs to, by
// keyword match against slug/name; defaults to "market" when ambiguous.
func DeriveToolCategory(slug, name string) string {
	haystack := strings.ToLower(slug + " " + name)
	for _, k := range categoryKeywords {
		if strings.Contains(haystack, k.keyword) {
			return k.category
		}
	}
	return "market"
}
