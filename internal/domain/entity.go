package domain

import "fmt"

type Channel string

const (
	ChannelVoice   Channel = "voice"
	ChannelMessage Channel = "message"
)

func (c Channel) Valid() bool {
	return c == ChannelVoice || c == ChannelMessage
}

// ContactRef is owned by the contact registry. Entities refer to contacts
// by ID and the engine only ever reads them.
type ContactRef struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Priority int     `json:"priority"`
	Channel  Channel `json:"channel"`
	Address  string  `json:"address"`
}

func (c *ContactRef) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil contact", ErrInvalidDispatchTarget)
	}
	if c.ID == "" || c.Address == "" {
		return fmt.Errorf("%w: contact %q has no address", ErrInvalidDispatchTarget, c.ID)
	}
	if !c.Channel.Valid() {
		return fmt.Errorf("%w: contact %q has unknown channel %q", ErrInvalidDispatchTarget, c.ID, c.Channel)
	}
	return nil
}

type Entity struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Age        int      `json:"age"`
	ContactIDs []string `json:"contact_ids"`
}
