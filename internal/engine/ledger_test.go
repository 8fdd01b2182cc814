package engine

import (
	"fmt"
	"testing"

	"cybersecbot/internal/campaign"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestLedger_MarkAndForget(t *testing.T) {
	l := NewLedger()
	assert.False(t, l.Fired("c1", "close"))

	l.Mark("c1", "-1h0m0s")
	l.Mark("c1", "-10m0s")
	l.Mark("c1", "-1h0m0s")
	assert.True(t, l.Fired("c1", "-1h0m0s"))
	assert.False(t, l.Fired("c2", "-1h0m0s"))
	assert.Equal(t, []string{"-10m0s", "-1h0m0s"}, l.Milestones("c1"))

	l.Forget("c1")
	assert.False(t, l.Fired("c1", "-1h0m0s"))
	assert.Equal(t, 0, l.Len())
}

func TestLedger_RebuildKeepsExistingEntries(t *testing.T) {
	l := NewLedger()
	l.Mark("c1", "close")

	l.Rebuild([]campaign.Campaign{
		{ID: "c2", FiredMilestones: []string{"-1h0m0s"}},
		{ID: "c3"},
	})

	assert.True(t, l.Fired("c1", "close"))
	assert.True(t, l.Fired("c2", "-1h0m0s"))
	assert.Equal(t, 2, l.Len())
}

func TestLedger_NeverShrinksWhileTracked(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("marked milestones stay fired", prop.ForAll(
		func(campaigns []int, milestones []int) bool {
			l := NewLedger()
			marked := map[[2]int]bool{}
			for i := 0; i < min(len(campaigns), len(milestones)); i++ {
				id := fmt.Sprintf("c%d", campaigns[i])
				l.Mark(id, fmt.Sprintf("m%d", milestones[i]))
				// A rebuild with nothing fired must not drop anything
				l.Rebuild([]campaign.Campaign{{ID: id}})
				marked[[2]int{campaigns[i], milestones[i]}] = true
				for key := range marked {
					if !l.Fired(fmt.Sprintf("c%d", key[0]), fmt.Sprintf("m%d", key[1])) {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 4)),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
