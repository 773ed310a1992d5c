// Package notify tells playout devices and downstream systems that a schedule
// build has finished.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
)

const (
	qos            = 1
	publishTimeout = 5 * time.Second
)

// Topic is where build outcomes for a channel are published.
func Topic(channel string) string {
	return fmt.Sprintf("playout/%s/schedules", channel)
}

// Summary is the published message body.
type Summary struct {
	ScheduleID   uuid.UUID              `json:"schedule_id"`
	Channel      string                 `json:"channel"`
	StartAt      time.Time              `json:"start_at"`
	Status       model.ScheduleStatus   `json:"status"`
	ItemCount    int                    `json:"item_count"`
	TotalSeconds int                    `json:"total_seconds"`
	Resets       int                    `json:"resets"`
	Failure      *scheduler.FailureInfo `json:"failure,omitempty"`
}

func summarize(res *scheduler.BuildResult) Summary {
	return Summary{
		ScheduleID:   res.ScheduleID,
		Channel:      res.Channel,
		StartAt:      res.StartAt,
		Status:       res.Status,
		ItemCount:    res.Diagnostics.ItemCount,
		TotalSeconds: res.Diagnostics.ElapsedSeconds,
		Resets:       res.Diagnostics.Resets,
		Failure:      res.Diagnostics.Failure,
	}
}

// Client is the part of mqtt.Client used for publishing.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher implements scheduler.Notifier over MQTT.
type Publisher struct {
	client Client
}

var _ scheduler.Notifier = (*Publisher)(nil)

func NewPublisher(client Client) *Publisher {
	return &Publisher{client: client}
}

// Connect dials the broker and returns a connected client.
func Connect(brokerURL, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", brokerURL).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

func (p *Publisher) BuildFinished(ctx context.Context, res *scheduler.BuildResult) error {
	body, err := json.Marshal(summarize(res))
	if err != nil {
		return err
	}

	topic := Topic(res.Channel)
	token := p.client.Publish(topic, qos, false, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	log.Debug().Str("topic", topic).Str("schedule_id", res.ScheduleID.String()).Msg("build outcome published")
	return nil
}

// Nop drops every notification. Used when no broker is configured.
type Nop struct{}

func (Nop) BuildFinished(context.Context, *scheduler.BuildResult) error { return nil }
