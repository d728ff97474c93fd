package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type publishedMessage struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes; other mqtt.Client methods are not used
type fakeClient struct {
	mqtt.Client
	published  []publishedMessage
	publishErr error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, publishedMessage{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(c.publishErr)
}

func createTestLogger() *logger.Logger {
	return logger.NewLogger(&config.Config{Logging: config.LoggingConfig{Level: "info", Format: "text"}})
}

func TestBuildTopic(t *testing.T) {
	assert.Equal(t, "integrations/int-1/sync/completed", BuildTopic("integrations", "int-1", services.EventSyncCompleted))
	assert.Equal(t, "integrations/int-1/sync/failed", BuildTopic("/integrations/", "int-1", services.EventSyncFailed))
	assert.Equal(t, "int-1/sync/completed", BuildTopic("", "int-1", services.EventSyncCompleted))
}

func TestPublisher_PublishSyncEvent(t *testing.T) {
	client := &fakeClient{}
	publisher := NewPublisher(client, "integrations", createTestLogger())

	event := &services.SyncEvent{
		Type:          services.EventSyncCompleted,
		IntegrationID: "int-1",
		RunID:         "run-1",
		Result:        &services.BatchResult{TotalRecords: 3, SuccessfulRecords: 3, ProcessedRecords: 3},
		Timestamp:     time.Now(),
	}

	require.NoError(t, publisher.PublishSyncEvent(context.Background(), event))
	require.Len(t, client.published, 1)

	msg := client.published[0]
	assert.Equal(t, "integrations/int-1/sync/completed", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var decoded services.SyncEvent
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, 3, decoded.Result.SuccessfulRecords)
}

func TestPublisher_PublishError(t *testing.T) {
	client := &fakeClient{publishErr: errors.New("not connected")}
	publisher := NewPublisher(client, "integrations", createTestLogger())

	err := publisher.PublishSyncEvent(context.Background(), &services.SyncEvent{
		Type:          services.EventSyncFailed,
		IntegrationID: "int-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestNewEventPublisher_WithoutBrokerLogsOnly(t *testing.T) {
	cfg := &config.Config{Broker: config.BrokerConfig{}}
	publisher, err := NewEventPublisher(cfg, createTestLogger())
	require.NoError(t, err)

	_, ok := publisher.(*LogPublisher)
	assert.True(t, ok)
	assert.NoError(t, publisher.PublishSyncEvent(context.Background(), &services.SyncEvent{Type: services.EventSyncCompleted}))
}
