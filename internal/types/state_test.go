package types

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_CloneIsDeep(t *testing.T) {
	state := RunState{
		Idea:        "idea",
		Constraints: []string{"budget"},
		Goals:       []string{"g1"},
		MarketAnalysis: &MarketAnalysis{
			Summary:     "s",
			Competitors: []Competitor{{Name: "c1", Similarity: 0.4}},
		},
		Outreach: []OutreachMessage{{Audience: "investors"}},
		Report:   &QualityReport{Checks: []QualityCheck{{Name: "n", Passed: true}}},
	}

	clone := state.Clone()
	clone.Constraints[0] = "x"
	clone.Goals[0] = "x"
	clone.MarketAnalysis.Competitors[0].Name = "x"
	clone.Outreach[0].Audience = "x"
	clone.Report.Checks[0].Passed = false

	assert.Equal(t, "budget", state.Constraints[0])
	assert.Equal(t, "g1", state.Goals[0])
	assert.Equal(t, "c1", state.MarketAnalysis.Competitors[0].Name)
	assert.Equal(t, "investors", state.Outreach[0].Audience)
	assert.True(t, state.Report.Checks[0].Passed)
}

func TestRunState_WarnLeavesOriginal(t *testing.T) {
	state := RunState{Idea: "idea"}
	next := state.Warn("intake", "short idea")

	assert.Empty(t, state.Log)
	require.Len(t, next.Log, 1)
	assert.Equal(t, LogLevelWarning, next.Log[0].Level)
	assert.Equal(t, "intake", next.Log[0].Step)
}

func TestInitialState(t *testing.T) {
	req := SubmitRequest{ProjectID: "p1", Sector: "healthtech", Idea: "idea", Constraints: []string{"hipaa"}}
	state := InitialState(req)

	assert.Equal(t, "p1", state.ProjectID)
	assert.Equal(t, "healthtech", state.Sector)
	assert.Equal(t, []string{"hipaa"}, state.Constraints)

	req.Constraints[0] = "changed"
	assert.Equal(t, "hipaa", state.Constraints[0])
}

func TestQualityReport_Passed(t *testing.T) {
	report := QualityReport{Checks: []QualityCheck{{Passed: true}, {Passed: false}, {Passed: true}}}
	assert.Equal(t, 2, report.Passed())
}

func TestChecksum(t *testing.T) {
	empty := Checksum(nil)
	assert.Equal(t, "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8", empty)

	sum := Checksum([]byte("hello"))
	raw, err := hex.DecodeString(sum)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.Equal(t, sum, Checksum([]byte("hello")))
	assert.NotEqual(t, sum, Checksum([]byte("hello!")))
}

func TestArtifactKind_Valid(t *testing.T) {
	assert.True(t, ArtifactVideo.Valid())
	assert.True(t, ArtifactMessageSet.Valid())
	assert.False(t, ArtifactKind("spreadsheet").Valid())
}

func TestNewNotification(t *testing.T) {
	score := 0.75
	run := &Run{
		ID:        uuid.New(),
		ProjectID: "p1",
		Status:    RunStatusCompleted,
		Artifacts: []Artifact{
			{Kind: ArtifactDocument, Locator: "s3://b/projects/p1/document.md", Checksum: "abc"},
		},
		Metrics: RunMetrics{ValidationScore: &score},
	}
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	n := NewNotification(run, at)
	assert.Equal(t, run.ID, n.RunID)
	assert.Equal(t, "p1", n.ProjectID)
	assert.Equal(t, RunStatusCompleted, n.Status)
	require.Len(t, n.Artifacts, 1)
	assert.Equal(t, ArtifactDocument, n.Artifacts[0].Type)
	assert.Equal(t, "s3://b/projects/p1/document.md", n.Artifacts[0].Locator)
	assert.Equal(t, &score, n.ValidationScore)
	assert.Equal(t, at, n.Timestamp)
	assert.Empty(t, n.Error)
}
