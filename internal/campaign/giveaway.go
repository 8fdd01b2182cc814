package campaign

import (
	"encoding/binary"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
)

type Giveaway struct {
	Prize   string   `json:"prize"`
	HostID  string   `json:"host_id"`
	Entries []string `json:"entries"`
}

// Enter adds a user to the entries of a giveaway
func Enter(userID string) Mutation {
	return func(c *Campaign) error {
		return editPayload(c, func(g *Giveaway) error {
			if slices.Contains(g.Entries, userID) {
				return Reject(c.ID, ReasonDuplicate, "already entered")
			}
			g.Entries = append(g.Entries, userID)
			return nil
		})
	}
}

// Winner draws the winner of the giveaway. The draw only depends on the
// campaign id and the entries, so announcing twice names the same user
func (g *Giveaway) Winner(campaignID string) (string, bool) {
	if len(g.Entries) == 0 {
		return "", false
	}
	id, err := uuid.Parse(campaignID)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(campaignID))
	}
	source := rand.NewPCG(binary.BigEndian.Uint64(id[:8]), binary.BigEndian.Uint64(id[8:]))
	return g.Entries[rand.New(source).IntN(len(g.Entries))], true
}
