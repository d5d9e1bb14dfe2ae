package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"courtside-chat/internal/identity"
)

func TestSortMessagesByCreatedAt(t *testing.T) {
	base := time.Now().Truncate(time.Second)
	sender := identity.ToChatIdentity(1)

	msgs := []Message{
		{Text: "third", SenderID: sender, Seq: 3, CreatedAt: base.Add(2 * time.Second)},
		{Text: "first", SenderID: sender, Seq: 1, CreatedAt: base},
		{Text: "second", SenderID: sender, Seq: 2, CreatedAt: base.Add(time.Second)},
	}
	SortMessages(msgs)

	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "third", msgs[2].Text)
}

func TestSortMessagesBreaksTimestampTies(t *testing.T) {
	at := time.Now().Truncate(time.Second)
	sender := identity.ToChatIdentity(1)

	msgs := []Message{
		{Text: "b", SenderID: sender, Seq: 2, CreatedAt: at},
		{Text: "c", SenderID: sender, Seq: 3, CreatedAt: at},
		{Text: "a", SenderID: sender, Seq: 1, CreatedAt: at},
	}
	SortMessages(msgs)

	assert.Equal(t, "a", msgs[0].Text)
	assert.Equal(t, "b", msgs[1].Text)
	assert.Equal(t, "c", msgs[2].Text)
}
