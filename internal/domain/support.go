package domain

import (
	"fmt"
	"time"
)

// ChatStatus represents the state of a support chat.
type ChatStatus string

const (
	ChatStatusActive ChatStatus = "active"
	ChatStatusEnded  ChatStatus = "ended"
)

// SenderSupport is the sender type of messages written by support staff.
const SenderSupport = "admin"

// SupportMessage is one message in a support chat.
type SupportMessage struct {
	ID         string
	SenderID   string
	SenderType string
	Text       string
	SentAt     time.Time
	Read       bool
}

// SupportChat is a conversation between an account and support staff.
type SupportChat struct {
	ID           string
	TicketNumber string
	AccountID    string
	UserType     string
	UserName     string
	Status       ChatStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Messages     []SupportMessage
}

// TicketNumber formats a ticket sequence number, e.g. TKT001000.
func TicketNumber(seq int64) string {
	return fmt.Sprintf("TKT%06d", seq)
}

// Clone returns a copy that shares no messages with c.
func (c *SupportChat) Clone() *SupportChat {
	out := *c
	out.Messages = append([]SupportMessage(nil), c.Messages...)
	return &out
}

// Append adds a message sent by senderID and bumps UpdatedAt.
func (c *SupportChat) Append(senderID, senderType, text string, at time.Time) SupportMessage {
	msg := SupportMessage{
		ID:         fmt.Sprintf("%s_%d", c.ID, len(c.Messages)+1),
		SenderID:   senderID,
		SenderType: senderType,
		Text:       text,
		SentAt:     at,
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = at
	return msg
}

// LastText is the text of the newest message, or "".
func (c *SupportChat) LastText() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Text
}

// UnreadFromSupport counts staff messages the owner has not opened.
func (c *SupportChat) UnreadFromSupport() int {
	n := 0
	for _, m := range c.Messages {
		if m.SenderType == SenderSupport && !m.Read {
			n++
		}
	}
	return n
}

// MarkSupportRead marks every staff message read.
func (c *SupportChat) MarkSupportRead() {
	for i := range c.Messages {
		if c.Messages[i].SenderType == SenderSupport {
			c.Messages[i].Read = true
		}
	}
}
