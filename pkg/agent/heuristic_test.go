package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicAgentCleanCode(t *testing.T) {
	a := NewHeuristicAgent(0.4)

	result, err := a.Invoke(context.Background(), Request{
		Code:           "def add(a, b):\n    return a + b",
		ValidationType: "general_validation",
	})
	require.NoError(t, err)

	require.Equal(t, "heuristic-scanner", result.Agent)
	require.InDelta(t, 0.95, result.Confidence, 0.0001)
	require.Empty(t, result.Issues)
}

func TestHeuristicAgentDetectsDangerousPatterns(t *testing.T) {
	a := NewHeuristicAgent(0.4)

	result, err := a.Invoke(context.Background(), Request{
		Code:           "import os\nos.system(cmd)\npassword = \"hunter2\"",
		ValidationType: "security_testing",
	})
	require.NoError(t, err)

	require.Len(t, result.Issues, 2)
	require.Contains(t, result.Issues, "Shell command injection via os.system")
	require.Contains(t, result.Issues, "Hardcoded credentials detected")
	require.InDelta(t, 0.95-2*0.15, result.Confidence, 0.0001)
	require.Len(t, result.Suggestions, 2)
}

func TestHeuristicAgentHeightenedScrutinyIncreasesPenalty(t *testing.T) {
	a := NewHeuristicAgent(0.4)

	req := Request{Code: "eval(data)", ValidationType: "security_testing"}

	relaxed, err := a.Invoke(context.Background(), req)
	require.NoError(t, err)

	req.HeightenedScrutiny = true
	strict, err := a.Invoke(context.Background(), req)
	require.NoError(t, err)

	require.Greater(t, relaxed.Confidence, strict.Confidence)
}

func TestHeuristicAgentConfidenceFloor(t *testing.T) {
	a := NewHeuristicAgent(0.4)

	result, err := a.Invoke(context.Background(), Request{
		Code:               "eval(exec(os.system(subprocess.call(pickle.loads(x))))) # md5 sha1 secret\npassword = y\napi_key = z\nrandom.randint(0, 1)",
		ValidationType:     "security_testing",
		HeightenedScrutiny: true,
	})
	require.NoError(t, err)

	require.InDelta(t, 0.1, result.Confidence, 0.0001)
}

func TestHeuristicAgentCancelledContext(t *testing.T) {
	a := NewHeuristicAgent(0.4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Invoke(ctx, Request{Code: "x = 1"})
	require.Error(t, err)
	require.Equal(t, KindTimeout, KindOf(err))
}

func TestHeuristicAgentWeightDefaulting(t *testing.T) {
	require.InDelta(t, 0.4, NewHeuristicAgent(-1).Descriptor().Weight, 0.0001)
	require.InDelta(t, 0.7, NewHeuristicAgent(0.7).Descriptor().Weight, 0.0001)
}
