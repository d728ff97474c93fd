package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	qosAtLeastOnce = 1
)

// Publisher publishes sync lifecycle events to an MQTT broker
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	logger      *logger.Logger
}

// NewEventPublisher connects to the configured broker. With no broker URL
// configured, events are only logged.
func NewEventPublisher(cfg *config.Config, logger *logger.Logger) (services.EventPublisher, error) {
	if cfg.Broker.URL == "" {
		logger.Info("No message broker configured, sync events will only be logged")
		return &LogPublisher{logger: logger}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker.URL).
		SetClientID(cfg.Broker.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.WithField("broker", cfg.Broker.URL).Info("Connected to message broker")
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.WithError(err).Warn("Message broker connection lost")
		})

	if cfg.Broker.Username != "" {
		opts.SetUsername(cfg.Broker.Username)
		opts.SetPassword(cfg.Broker.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("broker connection timeout")
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", token.Error())
	}

	return NewPublisher(client, cfg.Broker.TopicPrefix, logger), nil
}

// NewPublisher wraps an already configured MQTT client
func NewPublisher(client mqtt.Client, topicPrefix string, logger *logger.Logger) *Publisher {
	return &Publisher{client: client, topicPrefix: topicPrefix, logger: logger}
}

// Topic returns the topic an integration's events of eventType are published on
func (p *Publisher) Topic(integrationID, eventType string) string {
	return BuildTopic(p.topicPrefix, integrationID, eventType)
}

// BuildTopic joins the prefix, integration and event type into an MQTT topic
func BuildTopic(prefix, integrationID, eventType string) string {
	parts := make([]string, 0, 3)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, integrationID, strings.ReplaceAll(eventType, ".", "/"))
	return strings.Join(parts, "/")
}

// PublishSyncEvent publishes event as JSON with at-least-once delivery
func (p *Publisher) PublishSyncEvent(ctx context.Context, event *services.SyncEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	topic := p.Topic(event.IntegrationID, event.Type)
	token := p.client.Publish(topic, qosAtLeastOnce, false, payload)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}

	p.logger.WithFields(map[string]interface{}{
		"topic":  topic,
		"run_id": event.RunID,
	}).Debug("Published sync event")
	return nil
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(1000)
	p.logger.Info("Disconnected from message broker")
}

// LogPublisher records sync events in the log instead of a broker
type LogPublisher struct {
	logger *logger.Logger
}

func (p *LogPublisher) PublishSyncEvent(ctx context.Context, event *services.SyncEvent) error {
	p.logger.WithSyncRun(event.IntegrationID, event.RunID).
		WithField("event_type", event.Type).
		Info("Sync event")
	return nil
}
