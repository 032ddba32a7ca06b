package consensus

import (
	"strings"

	"github.com/verdictlabs/verdict-api/internal/models"
)

// DeriveMetrics computes the complexity, security, and maintainability
// scores for a result. Scores are in [0,1], higher is better.
func DeriveMetrics(code string, issues []models.Issue, confidence float64) models.ConsensusMetrics {
	lines := nonEmptyLines(code)
	branches := countBranches(code)

	complexity := 1.0 - float64(len(lines))/400 - float64(branches)*0.02
	complexity = clamp(complexity, 0.05, 1)

	security := 1.0
	for _, issue := range issues {
		if issue.Severity == models.SeverityPriority {
			security -= 0.15
		} else {
			security -= 0.05
		}
	}
	security = clamp(security, 0, 1)

	maintainability := clamp(0.5*complexity+0.5*confidence, 0, 1)

	return models.ConsensusMetrics{
		ComplexityScore:      round3(complexity),
		SecurityScore:        round3(security),
		MaintainabilityScore: round3(maintainability),
		WeightedConfidence:   round3(confidence),
	}
}

var branchKeywords = []string{"if ", "if(", "for ", "for(", "while ", "while(", "case ", "elif ", "else", "switch"}

func countBranches(code string) int {
	count := 0
	for _, line := range strings.Split(strings.ToLower(code), "\n") {
		trimmed := strings.TrimSpace(line)
		for _, keyword := range branchKeywords {
			if strings.HasPrefix(trimmed, keyword) {
				count++
				break
			}
		}
	}
	return count
}

func nonEmptyLines(code string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func round3(value float64) float64 {
	return float64(int(value*1000+0.5)) / 1000
}
