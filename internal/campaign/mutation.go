package campaign

// A Mutation changes the payload of a campaign in place. Returning an
// error rejects the mutation and discards every change it made
type Mutation func(c *Campaign) error

// editPayload decodes the payload into a T, lets edit change it and
// encodes it back when edit succeeds
func editPayload[T any](c *Campaign, edit func(payload *T) error) error {
	var payload T
	if err := c.DecodePayload(&payload); err != nil {
		return Reject(c.ID, ReasonInvalid, err.Error())
	}
	if err := edit(&payload); err != nil {
		return err
	}
	return c.EncodePayload(&payload)
}
