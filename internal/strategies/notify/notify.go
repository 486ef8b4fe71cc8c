// Package notify implements the notification strategy family. Each channel
// delivers a message to a recipient and records the delivery in the ledger.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dejo1307/dispatchkit/internal/capability"
	"github.com/dejo1307/dispatchkit/internal/errors"
	"github.com/dejo1307/dispatchkit/internal/ledger"
	"github.com/dejo1307/dispatchkit/internal/settings"
	"github.com/dejo1307/dispatchkit/internal/strategies"
)

// Channel keys.
const (
	Email    = "email"
	SMS      = "sms"
	WhatsApp = "whatsapp"
)

// Message is the notification payload.
type Message struct {
	Recipient string `json:"recipient" validate:"required"`
	Body      string `json:"body" validate:"required,max=1024"`
}

// Delivery describes a sent notification.
type Delivery struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Notifier is the capability every channel implements.
type Notifier = capability.Executor[Message, Delivery]

type channel struct {
	res strategies.Resources
	key string
	doc string
	// recipientTag validates the recipient address for this channel.
	recipientTag string
	// maxLenKey names the setting that limits the text length. Empty means
	// no limit beyond the payload's own.
	maxLenKey string
}

// Execute validates msg, renders the delivered text and records it.
func (c *channel) Execute(ctx context.Context, msg Message) (Delivery, error) {
	if err := strategies.Validate(ledger.FamilyNotify, c.key, msg); err != nil {
		return Delivery{}, err
	}
	if err := strategies.ValidateVar(ledger.FamilyNotify, c.key, "recipient", msg.Recipient, c.recipientTag); err != nil {
		return Delivery{}, err
	}
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	store := c.res.Settings.Get()
	d := Delivery{
		ID:        uuid.NewString(),
		Channel:   c.key,
		Recipient: msg.Recipient,
		Sender:    store.String(settings.KeyNotifySender, "dispatchkit"),
		Text:      msg.Body,
	}

	if c.maxLenKey != "" {
		limit, err := store.Int(c.maxLenKey, 160)
		if err != nil {
			return Delivery{}, err
		}
		if limit <= 0 {
			return Delivery{}, errors.NewWithContext(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("notify/%s: %s must be positive", c.key, c.maxLenKey),
				map[string]any{"key": c.maxLenKey, "value": limit})
		}
		d.Text, d.Truncated = truncate(msg.Body, limit)
	}

	c.res.Ledger.Get().Append(ledger.Entry{
		ID:      d.ID,
		Family:  ledger.FamilyNotify,
		Key:     c.key,
		Summary: fmt.Sprintf("%s sent to %s", c.key, d.Recipient),
		Props: map[string]any{
			"sender":    d.Sender,
			"length":    len([]rune(d.Text)),
			"truncated": d.Truncated,
		},
	})
	return d, nil
}

// Describe implements capability.Describer.
func (c *channel) Describe() string { return c.doc }

// Definitions returns the built-in channels bound to res.
func Definitions(res strategies.Resources) []strategies.Definition[Notifier] {
	channels := []channel{
		{key: Email, doc: "Email delivery", recipientTag: "email"},
		{key: SMS, doc: "SMS delivery, text limited by " + settings.KeySMSMaxLength,
			recipientTag: "e164", maxLenKey: settings.KeySMSMaxLength},
		{key: WhatsApp, doc: "WhatsApp delivery", recipientTag: "e164"},
	}

	defs := make([]strategies.Definition[Notifier], 0, len(channels))
	for _, c := range channels {
		c.res = res
		defs = append(defs, strategies.Definition[Notifier]{
			Key: c.key,
			Doc: c.doc,
			Factory: func() Notifier {
				fresh := c
				return &fresh
			},
		})
	}
	return defs
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) (string, bool) {
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}
