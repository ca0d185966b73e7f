package promptctx

import (
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppliesTo is the closed frontmatter filter record (spec §3/§9: "keep a
// closed, explicit AppliesTo record with enumerated fields").
type AppliesTo struct {
	AgentID  []string
	Tier     []string
	Channel  []string
	Keywords []string
}

type frontmatterDoc struct {
	AppliesTo *appliesToYAML `yaml:"applies_to"`
}

type appliesToYAML struct {
	AgentID  []string `yaml:"agent_id"`
	Tier     []string `yaml:"tier"`
	Channel  []string `yaml:"channel"`
	Keywords []string `yaml:"keywords"`
}

func (a *appliesToYAML) allEmpty() bool {
	return len(a.AgentID) == 0 && len(a.Tier) == 0 && len(a.Channel) == 0 && len(a.Keywords) == 0
}

// MatchContext is the runtime context matchesContext compares AppliesTo
// against. A nil field means "absent"; an empty (non-nil) slice and a nil
// field are treated identically per spec §4.7.
type MatchContext struct {
	AgentID  string
	Tier     string
	Channel  string
	Keywords []string
}

// ParseFrontmatter splits a leading "---\n<yaml>\n---" block off content
// and parses applies_to. Malformed YAML logs a warning and is treated as
// no frontmatter (nil AppliesTo, full body returned unchanged).
func ParseFrontmatter(content string) (appliesTo *AppliesTo, body string) {
	const delim = "---"
	trimmed := strings.TrimLeft(content, "\n")
	if !strings.HasPrefix(trimmed, delim) {
		return nil, content
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil, content
	}
	yamlBlock := rest[:idx]
	body = rest[idx+len(delim)+1:]

	var doc frontmatterDoc
	if err := yaml.Unmarshal([]byte(yamlBlock), &doc); err != nil {
		slog.Warn("promptctx: malformed rule frontmatter, ignoring", "error", err)
		return nil, content
	}
	if doc.AppliesTo == nil || doc.AppliesTo.allEmpty() {
		return nil, body
	}
	return &AppliesTo{
		AgentID: doc.AppliesTo.AgentID, Tier: doc.AppliesTo.Tier,
		Channel: doc.AppliesTo.Channel, Keywords: doc.AppliesTo.Keywords,
	}, body
}

func fieldMatches(declared []string, actual string) bool {
	if len(declared) == 0 {
		return true // field not declared ⇒ no constraint
	}
	if actual == "" {
		return false // a declared field must be present in ctx
	}
	for _, v := range declared {
		if v == actual {
			return true
		}
	}
	return false
}

func keywordsIntersect(declared, actual []string) bool {
	if len(declared) == 0 {
		return true
	}
	if len(actual) == 0 {
		return false
	}
	set := make(map[string]bool, len(actual))
	for _, k := range actual {
		set[strings.ToLower(k)] = true
	}
	for _, k := range declared {
		if set[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

// MatchesContext implements spec §4.7's matching rules: nil appliesTo
// always matches; a nil ctx always matches; fields combine with AND
// across fields and OR within a field; keywords match on non-empty
// intersection.
func MatchesContext(appliesTo *AppliesTo, ctx *MatchContext) bool {
	if appliesTo == nil {
		return true
	}
	if ctx == nil {
		return true
	}
	return fieldMatches(appliesTo.AgentID, ctx.AgentID) &&
		fieldMatches(appliesTo.Tier, ctx.Tier) &&
		fieldMatches(appliesTo.Channel, ctx.Channel) &&
		keywordsIntersect(appliesTo.Keywords, ctx.Keywords)
}
