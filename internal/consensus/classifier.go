package consensus

import (
	"sort"
	"strings"

	"github.com/verdictlabs/verdict-api/internal/models"
)

// Classifier deduplicates and ranks the findings returned by agents. It is
// the one place domain heuristics live; validation types supply their own
// critical vocabulary without touching the orchestrator.
type Classifier interface {
	Classify(validationType models.ValidationType, results []models.AgentResult) []models.Issue
	Severity(validationType models.ValidationType, text string, agentCount int) models.IssueSeverity
}

// VocabularyClassifier promotes issues raised by multiple agents or matching
// a per-type critical vocabulary. Near-duplicates are merged by normalized
// text equality or token-overlap similarity above the configured threshold.
type VocabularyClassifier struct {
	common         []string
	vocab          map[models.ValidationType][]string
	fuzzyThreshold float64
}

// NewVocabularyClassifier builds the default classifier. A fuzzy threshold
// outside (0,1] disables fuzzy matching and leaves exact normalized dedup.
func NewVocabularyClassifier(fuzzyThreshold float64) *VocabularyClassifier {
	return &VocabularyClassifier{
		common: []string{"injection", "hardcoded", "overflow", "secret", "credential"},
		vocab: map[models.ValidationType][]string{
			models.ValidationCrypto:   {"weak hash", "md5", "sha-1", "sha1", "predictable", "random", "key", "nonce"},
			models.ValidationBetting:  {"precision", "rounding", "float", "odds", "payout", "house edge"},
			models.ValidationSecurity: {"eval", "exec", "os.system", "deserialization", "xss", "traversal", "rce"},
		},
		fuzzyThreshold: fuzzyThreshold,
	}
}

// SetVocabulary replaces the critical vocabulary for one validation type.
func (c *VocabularyClassifier) SetVocabulary(validationType models.ValidationType, terms []string) {
	if c.vocab == nil {
		c.vocab = make(map[models.ValidationType][]string)
	}
	c.vocab[validationType] = terms
}

type issueGroup struct {
	text   string
	norm   string
	tokens map[string]struct{}
	agents map[string]struct{}
}

// Classify merges the issue lists of all succeeding agents into a
// deduplicated, severity-tagged list. Order follows first appearance.
func (c *VocabularyClassifier) Classify(validationType models.ValidationType, results []models.AgentResult) []models.Issue {
	groups := make([]*issueGroup, 0)

	for _, result := range results {
		if !result.Succeeded {
			continue
		}
		for _, raw := range result.Issues {
			norm := normalizeText(raw)
			if norm == "" {
				continue
			}
			group := c.findGroup(groups, norm)
			if group == nil {
				group = &issueGroup{
					text:   strings.TrimSpace(raw),
					norm:   norm,
					tokens: tokenSet(norm),
					agents: make(map[string]struct{}),
				}
				groups = append(groups, group)
			}
			group.agents[result.Agent] = struct{}{}
		}
	}

	issues := make([]models.Issue, 0, len(groups))
	for _, group := range groups {
		agents := make([]string, 0, len(group.agents))
		for name := range group.agents {
			agents = append(agents, name)
		}
		sort.Strings(agents)

		issues = append(issues, models.Issue{
			Text:     group.text,
			Severity: c.Severity(validationType, group.norm, len(agents)),
			Agents:   agents,
		})
	}
	return issues
}

// Severity decides priority vs regular for one finding. Agreement between
// agents or a critical-vocabulary hit promotes; ambiguity resolves toward
// priority so risky findings stay visible.
func (c *VocabularyClassifier) Severity(validationType models.ValidationType, text string, agentCount int) models.IssueSeverity {
	if agentCount > 1 {
		return models.SeverityPriority
	}

	norm := normalizeText(text)
	for _, term := range c.common {
		if strings.Contains(norm, term) {
			return models.SeverityPriority
		}
	}
	for _, term := range c.vocab[validationType] {
		if strings.Contains(norm, normalizeText(term)) {
			return models.SeverityPriority
		}
	}
	return models.SeverityRegular
}

func (c *VocabularyClassifier) findGroup(groups []*issueGroup, norm string) *issueGroup {
	tokens := tokenSet(norm)
	for _, group := range groups {
		if group.norm == norm {
			return group
		}
		if c.fuzzyThreshold > 0 && c.fuzzyThreshold <= 1 && jaccard(group.tokens, tokens) >= c.fuzzyThreshold {
			return group
		}
	}
	return nil
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func tokenSet(norm string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(norm) {
		set[strings.Trim(token, ".,:;!?()[]'\"")] = struct{}{}
	}
	delete(set, "")
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
