package agent

import (
	"context"
	"strings"
	"time"
)

// dangerousPattern pairs a code substring with the finding it indicates.
type dangerousPattern struct {
	needle     string
	issue      string
	suggestion string
}

var dangerousPatterns = []dangerousPattern{
	{"eval(", "Code injection risk via eval", "Remove eval; parse input explicitly"},
	{"exec(", "Arbitrary code execution via exec", "Avoid dynamic execution of strings"},
	{"os.system", "Shell command injection via os.system", "Use a subprocess API with argument lists"},
	{"subprocess.call", "Command injection risk in subprocess call", "Pass arguments as a list, never a formatted string"},
	{"pickle.loads", "Deserialization vulnerability via pickle", "Use a safe serialization format such as JSON"},
	{"md5", "Weak hash algorithm MD5", "Use SHA-256 or stronger"},
	{"sha1", "Weak hash algorithm SHA-1", "Use SHA-256 or stronger"},
	{"password =", "Hardcoded credentials detected", "Load credentials from the environment or a secret store"},
	{"api_key =", "Hardcoded API key exposure", "Load API keys from the environment or a secret store"},
	{"secret", "Possible exposed secret", "Keep secrets out of source code"},
	{"random.randint", "Insecure random number generation", "Use a cryptographically secure random source"},
}

// HeuristicAgent is a local pattern-scanning analyst. It needs no network,
// always succeeds, and carries a low reliability weight so remote agents
// dominate the consensus when they are available.
type HeuristicAgent struct {
	desc Descriptor
}

// NewHeuristicAgent builds the local analyst with the given weight.
func NewHeuristicAgent(weight float64) *HeuristicAgent {
	if weight <= 0 || weight > 1 {
		weight = 0.4
	}
	return &HeuristicAgent{desc: Descriptor{
		Name:        "heuristic-scanner",
		Weight:      weight,
		Specialties: []string{"security", "static-analysis"},
	}}
}

// Descriptor returns the static manifest entry for this agent.
func (a *HeuristicAgent) Descriptor() Descriptor {
	return a.desc
}

// Invoke scans the submission for known dangerous patterns.
func (a *HeuristicAgent) Invoke(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, NewError(a.desc.Name, KindTimeout, err)
	}

	start := time.Now()
	lowered := strings.ToLower(req.Code)

	var issues, suggestions []string
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowered, pattern.needle) {
			issues = append(issues, pattern.issue)
			suggestions = append(suggestions, pattern.suggestion)
		}
	}

	penalty := 0.15
	if req.HeightenedScrutiny {
		penalty = 0.2
	}

	confidence := 0.95 - float64(len(issues))*penalty
	if confidence < 0.1 {
		confidence = 0.1
	}

	rationale := "No dangerous patterns found by static scan."
	if len(issues) > 0 {
		rationale = "Static scan matched known dangerous patterns in the submitted code."
	}

	return Result{
		Agent:       a.desc.Name,
		Confidence:  confidence,
		Issues:      issues,
		Suggestions: suggestions,
		Rationale:   rationale,
		Duration:    time.Since(start),
	}, nil
}
