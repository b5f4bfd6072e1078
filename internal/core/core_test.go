package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriageStatus(t *testing.T) {
	tests := []struct {
		in   string
		want TriageStatus
	}{
		{"reject", TriageReject},
		{"good", TriageGood},
		{"maybe", TriageMaybe},
		{"", TriageMaybe},
		{"GOOD", TriageMaybe},
		{"junk", TriageMaybe},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTriageStatus(tt.in), "input %q", tt.in)
	}
}

func TestRubricFresh(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var nilRubric *Rubric
	assert.False(t, nilRubric.Fresh(now))
	assert.False(t, (&Rubric{}).Fresh(now), "zero GeneratedAt is never fresh")
	assert.True(t, (&Rubric{GeneratedAt: now.Add(-23 * time.Hour)}).Fresh(now))
	assert.False(t, (&Rubric{GeneratedAt: now.Add(-24 * time.Hour)}).Fresh(now))
}

func TestSourceReputationApply(t *testing.T) {
	rep := SourceReputation{}.Apply(ReputationUpdate{Passed: true, Score: 80})
	assert.Equal(t, 1.0, rep.PassRate)
	assert.Equal(t, 80.0, rep.AvgScore)
	assert.Equal(t, 1, rep.TotalTriaged)

	rep = rep.Apply(ReputationUpdate{Passed: false, Score: 20})
	assert.InDelta(t, 0.9, rep.PassRate, 1e-9)
	assert.InDelta(t, 74.0, rep.AvgScore, 1e-9)
	assert.Equal(t, 2, rep.TotalTriaged)
}

func TestSourceReputationApply_KeepsEngagement(t *testing.T) {
	rep := SourceReputation{UserEngagement: 4}.Apply(ReputationUpdate{Passed: true, Score: 50})
	assert.Equal(t, 4, rep.UserEngagement)
}

func TestMicroQuestionHasOption(t *testing.T) {
	q := MicroQuestion{Options: []string{"More depth", "More news"}}
	assert.True(t, q.HasOption("More news"))
	assert.False(t, q.HasOption("more news"))
}

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()
	require.NotNil(t, p.SiteScores)
	require.NotNil(t, p.TopicScores)
	require.NotNil(t, p.SourceReputation)
	assert.Empty(t, p.BlockedSites)
	assert.Empty(t, p.PendingQuestions)
	assert.Nil(t, p.CurrentRubric)
}

func TestPreferencesIsDemoted(t *testing.T) {
	p := DefaultPreferences()
	p.DemotedSites = append(p.DemotedSites, "https://b.example/feed")
	p.DemotedTopics = append(p.DemotedTopics, "Sports")

	assert.True(t, p.IsDemoted("https://b.example/feed", "Tech"))
	assert.True(t, p.IsDemoted("https://a.example/feed", "Sports"))
	assert.False(t, p.IsDemoted("https://a.example/feed", "Tech"))
}

func TestPreferencesClone(t *testing.T) {
	p := DefaultPreferences()
	p.SiteScores["a"] = 1
	p.PendingQuestions = []MicroQuestion{{ID: "q1", Options: []string{"x", "y"}}}
	p.CurrentRubric = &Rubric{Version: 4, TopicWeights: map[string]float64{"Tech": 0.9}}

	c := p.Clone()
	c.SiteScores["a"] = 5
	c.PendingQuestions[0].Options[0] = "changed"
	c.CurrentRubric.TopicWeights["Tech"] = 0.1

	assert.Equal(t, 1.0, p.SiteScores["a"])
	assert.Equal(t, "x", p.PendingQuestions[0].Options[0])
	assert.Equal(t, 0.9, p.CurrentRubric.TopicWeights["Tech"])
}
