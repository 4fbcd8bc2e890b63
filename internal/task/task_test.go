package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Equal(t, PriorityMedium.Rank(), Priority("bogus").Rank())
}

func TestNormalizedPriority(t *testing.T) {
	tk := &Task{}
	assert.Equal(t, DefaultPriority, tk.NormalizedPriority())

	tk.Priority = PriorityHigh
	assert.Equal(t, PriorityHigh, tk.NormalizedPriority())
}

func TestIsScheduledEligible(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tk := &Task{}
	assert.True(t, tk.IsScheduledEligible(now))

	future := now.Add(time.Hour)
	tk.ScheduledFor = &future
	assert.False(t, tk.IsScheduledEligible(now))

	past := now.Add(-time.Hour)
	tk.ScheduledFor = &past
	assert.True(t, tk.IsScheduledEligible(now))
}

func TestHasLabel(t *testing.T) {
	tk := &Task{Labels: []string{"bug", "urgent"}}
	assert.True(t, tk.HasLabel("bug"))
	assert.False(t, tk.HasLabel("feature"))
}

func TestCloneIsIndependent(t *testing.T) {
	tk := &Task{
		ID:        "t1",
		DependsOn: []string{"t0"},
		Labels:    []string{"bug"},
		Metadata:  map[string]any{"k": "v"},
		Events:    []Event{{Type: EventStarted}},
	}
	c := tk.Clone()
	c.DependsOn[0] = "mutated"
	c.Labels[0] = "mutated"
	c.Metadata["k"] = "mutated"
	c.Events[0].Type = EventFailed

	assert.Equal(t, "t0", tk.DependsOn[0])
	assert.Equal(t, "bug", tk.Labels[0])
	assert.Equal(t, "v", tk.Metadata["k"])
	assert.Equal(t, EventStarted, tk.Events[0].Type)
}

func TestCloneNil(t *testing.T) {
	var tk *Task
	assert.Nil(t, tk.Clone())
}
