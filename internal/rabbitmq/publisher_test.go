package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside-chat/internal/telemetry"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	publisher := NewPublisher("", "audit")
	require.NotNil(t, publisher)
	assert.Equal(t, "noop", PublisherMode(publisher))

	err := publisher.Publish(context.Background(), "audit.chat", telemetry.AuditEnvelope{EventType: "audit_log"})
	assert.NoError(t, err)
	assert.NoError(t, publisher.Close())
}
