package campaign

import (
	"fmt"
	"slices"
	"strings"
)

type Skill string

const (
	SkillRookie       Skill = "rookie"
	SkillIntermediate Skill = "intermediate"
	SkillVeteran      Skill = "veteran"
)

// Skills in the order they are displayed
var Skills = []Skill{SkillVeteran, SkillIntermediate, SkillRookie}

var skillLabels = map[Skill]string{
	SkillRookie:       "🐣 Rookie",
	SkillIntermediate: "🌵 Intermediate",
	SkillVeteran:      "🥷 Veteran",
}

func ParseSkill(s string) (Skill, error) {
	skill := Skill(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := skillLabels[skill]; !ok {
		return "", fmt.Errorf("skill level `%s` not recognised", s)
	}
	return skill, nil
}

func (s Skill) Label() string {
	if label, ok := skillLabels[s]; ok {
		return label
	}
	return string(s)
}

type Participant struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Skill  Skill  `json:"skill"`
}

type Roster struct {
	Title        string        `json:"title"`
	DateTime     string        `json:"date_time"`
	Description  string        `json:"description"`
	Limit        int           `json:"limit,omitempty"` // 0 means unlimited
	Thumbnail    string        `json:"thumbnail,omitempty"`
	Participants []Participant `json:"participants"`
}

func (r *Roster) Full() bool {
	return r.Limit > 0 && len(r.Participants) >= r.Limit
}

func (r *Roster) Has(userID string) bool {
	return slices.ContainsFunc(r.Participants, func(p Participant) bool { return p.UserID == userID })
}

// BySkill lists the participants with the given skill, in join order
func (r *Roster) BySkill(skill Skill) []Participant {
	result := []Participant{}
	for _, p := range r.Participants {
		if p.Skill == skill {
			result = append(result, p)
		}
	}
	return result
}

// Join adds a participant to a roster, respecting its limit
func Join(p Participant) Mutation {
	return func(c *Campaign) error {
		if _, err := ParseSkill(string(p.Skill)); err != nil {
			return Reject(c.ID, ReasonInvalid, err.Error())
		}
		return editPayload(c, func(r *Roster) error {
			if r.Full() {
				return Reject(c.ID, ReasonCapacity, fmt.Sprintf("roster is full (%d/%d)", len(r.Participants), r.Limit))
			}
			if r.Has(p.UserID) {
				return Reject(c.ID, ReasonDuplicate, "already registered")
			}
			r.Participants = append(r.Participants, p)
			return nil
		})
	}
}

// Leave removes a participant from a roster
func Leave(userID string) Mutation {
	return func(c *Campaign) error {
		return editPayload(c, func(r *Roster) error {
			if !r.Has(userID) {
				return Reject(c.ID, ReasonNotParticipant, "not registered")
			}
			r.Participants = slices.DeleteFunc(r.Participants, func(p Participant) bool { return p.UserID == userID })
			return nil
		})
	}
}
