package campaign

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoster(t *testing.T, roster Roster) Campaign {
	t.Helper()
	c := Campaign{
		ID:         "roster-1",
		Kind:       OneShotDeadline,
		Topic:      TopicRoster,
		TargetTime: time.Date(2025, 4, 15, 18, 0, 0, 0, time.UTC),
		Milestones: Deadline(),
		State:      Active,
	}
	require.NoError(t, c.EncodePayload(roster))
	return c
}

func TestMilestones_SortedEarliestFirst(t *testing.T) {
	ms := Milestones{
		{Name: "start", Offset: 0},
		{Name: "hour", Offset: -time.Hour},
		{Name: "day", Offset: -24 * time.Hour},
	}

	sorted := ms.Sorted()
	assert.Equal(t, []string{"day", "hour", "start"}, []string{sorted[0].Name, sorted[1].Name, sorted[2].Name})
	// The source campaign is left untouched
	assert.Equal(t, "start", ms[0].Name)
}

func TestMilestones_Validate(t *testing.T) {
	assert.Error(t, Milestones{}.Validate())
	assert.Error(t, Milestones{{Name: "", Offset: 0}}.Validate())
	assert.Error(t, Milestones{{Name: "a"}, {Name: "a", Offset: time.Minute}}.Validate())
	assert.NoError(t, Deadline().Validate())
}

func TestReminders(t *testing.T) {
	ms := Reminders([]time.Duration{-time.Hour, -24 * time.Hour, -time.Hour})

	require.Len(t, ms, 2)
	assert.Equal(t, Milestone{Name: "-24h0m0s", Offset: -24 * time.Hour}, ms[0])
	assert.Equal(t, Milestone{Name: "-1h0m0s", Offset: -time.Hour}, ms[1])
}

func TestCampaign_Terminal(t *testing.T) {
	c := Campaign{Milestones: Reminders([]time.Duration{-time.Hour, -10 * time.Minute})}
	terminal, ok := c.Terminal()
	require.True(t, ok)
	assert.Equal(t, -10*time.Minute, terminal.Offset)

	_, ok = (&Campaign{}).Terminal()
	assert.False(t, ok)
}

func TestCampaign_FiredNeverShrinks(t *testing.T) {
	c := Campaign{}
	c.MarkFired("close")
	c.MarkFired("close")
	assert.Equal(t, []string{"close"}, c.FiredMilestones)
	assert.True(t, c.HasFired("close"))
}

func TestCampaign_CloseKeepsFirstReason(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Campaign{State: Active}

	c.Close(CloseTerminalFailure, now)
	c.Close(CloseCompleted, now.Add(time.Hour))

	assert.Equal(t, Closed, c.State)
	assert.Equal(t, CloseTerminalFailure, c.CloseReason)
	assert.Equal(t, now, c.ClosedAt)
}

func TestCampaign_CloneIsDeep(t *testing.T) {
	c := Campaign{FiredMilestones: []string{"a"}, Payload: json.RawMessage(`{}`), Milestones: Deadline()}
	clone := c.Clone()
	clone.FiredMilestones[0] = "b"
	clone.Payload[0] = '['
	clone.Milestones[0].Name = "other"

	assert.Equal(t, "a", c.FiredMilestones[0])
	assert.Equal(t, byte('{'), c.Payload[0])
	assert.Equal(t, CloseMilestone, c.Milestones[0].Name)
}

func TestCampaign_Validate(t *testing.T) {
	c := newRoster(t, Roster{Title: "picoCTF"})
	assert.NoError(t, c.Validate())

	bad := c
	bad.Kind = "weekly"
	assert.Error(t, bad.Validate())

	bad = c
	bad.TargetTime = time.Time{}
	assert.Error(t, bad.Validate())

	bad = c
	bad.Milestones = nil
	assert.Error(t, bad.Validate())
}

func TestJoin_CapacityReached(t *testing.T) {
	c := newRoster(t, Roster{Title: "picoCTF", Limit: 1, Participants: []Participant{{UserID: "1", Name: "alice", Skill: SkillVeteran}}})
	before := c.Clone()

	err := Join(Participant{UserID: "2", Name: "bob", Skill: SkillRookie})(&c)

	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCapacity, reason)
	assert.Equal(t, before, c)
}

func TestJoin_Duplicate(t *testing.T) {
	c := newRoster(t, Roster{Participants: []Participant{{UserID: "1", Name: "alice", Skill: SkillVeteran}}})

	err := Join(Participant{UserID: "1", Name: "alice", Skill: SkillRookie})(&c)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonDuplicate, reason)
}

func TestJoin_InvalidSkill(t *testing.T) {
	c := newRoster(t, Roster{})

	err := Join(Participant{UserID: "1", Skill: "wizard"})(&c)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonInvalid, reason)
}

func TestJoinAndLeave(t *testing.T) {
	c := newRoster(t, Roster{Limit: 2})

	require.NoError(t, Join(Participant{UserID: "1", Name: "alice", Skill: SkillVeteran})(&c))
	require.NoError(t, Join(Participant{UserID: "2", Name: "bob", Skill: SkillRookie})(&c))

	var roster Roster
	require.NoError(t, c.DecodePayload(&roster))
	assert.True(t, roster.Full())
	assert.Len(t, roster.BySkill(SkillRookie), 1)

	require.NoError(t, Leave("1")(&c))
	err := Leave("1")(&c)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonNotParticipant, reason)

	require.NoError(t, c.DecodePayload(&roster))
	assert.Equal(t, []Participant{{UserID: "2", Name: "bob", Skill: SkillRookie}}, roster.Participants)
}

func TestParseSkill(t *testing.T) {
	skill, err := ParseSkill(" Veteran ")
	require.NoError(t, err)
	assert.Equal(t, SkillVeteran, skill)
	assert.Equal(t, "🥷 Veteran", skill.Label())

	_, err = ParseSkill("wizard")
	assert.Error(t, err)
}

func TestEnter(t *testing.T) {
	c := Campaign{ID: "g", Topic: TopicGiveaway}
	require.NoError(t, c.EncodePayload(Giveaway{Prize: "Flipper Zero"}))

	require.NoError(t, Enter("1")(&c))
	err := Enter("1")(&c)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonDuplicate, reason)

	var g Giveaway
	require.NoError(t, c.DecodePayload(&g))
	assert.Equal(t, []string{"1"}, g.Entries)
}

func TestEnter_CorruptPayload(t *testing.T) {
	c := Campaign{ID: "g", Payload: json.RawMessage(`not json`)}

	reason, _ := ReasonOf(Enter("1")(&c))
	assert.Equal(t, ReasonInvalid, reason)
}

func TestGiveawayWinner_Deterministic(t *testing.T) {
	g := Giveaway{Entries: []string{"1", "2", "3", "4", "5"}}
	id := "6f1c8c3e-3b7a-4f5e-9d1e-2b3c4d5e6f70"

	first, ok := g.Winner(id)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, _ := g.Winner(id)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, g.Entries, first)

	// Non-uuid ids still draw
	_, ok = g.Winner("giveaway_1234")
	assert.True(t, ok)

	_, ok = (&Giveaway{}).Winner(id)
	assert.False(t, ok)
}
