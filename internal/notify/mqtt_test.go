package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
)

type token struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *token {
	t := &token{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { <-t.done; return true }
func (t *token) WaitTimeout(time.Duration) bool { return t.Wait() }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	sent []published
	tok  *token
}

func (f *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.sent = append(f.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return f.tok
}

func failedResult() *scheduler.BuildResult {
	return &scheduler.BuildResult{
		ScheduleID: uuid.New(),
		Channel:    "main",
		StartAt:    time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC),
		Status:     model.ScheduleFailed,
		Diagnostics: scheduler.Diagnostics{
			ItemCount:      1,
			ElapsedSeconds: 1800,
			Failure: &scheduler.FailureInfo{
				Reason:      scheduler.ErrRotationCycleFailure.Error(),
				Category:    model.CategoryMedium,
				CatalogSize: 1,
			},
		},
	}
}

func TestPublisher_PublishesSummary(t *testing.T) {
	client := &fakeClient{tok: doneToken(nil)}
	res := failedResult()

	require.NoError(t, NewPublisher(client).BuildFinished(context.Background(), res))
	require.Len(t, client.sent, 1)

	msg := client.sent[0]
	assert.Equal(t, "playout/main/schedules", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var got Summary
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, res.ScheduleID, got.ScheduleID)
	assert.Equal(t, model.ScheduleFailed, got.Status)
	assert.Equal(t, 1800, got.TotalSeconds)
	require.NotNil(t, got.Failure)
	assert.Equal(t, model.CategoryMedium, got.Failure.Category)
}

func TestPublisher_ReportsBrokerError(t *testing.T) {
	client := &fakeClient{tok: doneToken(errors.New("not connected"))}
	err := NewPublisher(client).BuildFinished(context.Background(), failedResult())
	assert.ErrorContains(t, err, "not connected")
}

func TestPublisher_HonoursContext(t *testing.T) {
	client := &fakeClient{tok: &token{done: make(chan struct{})}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewPublisher(client).BuildFinished(ctx, failedResult())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublisher_Broker(t *testing.T) {
	url := os.Getenv("TEST_MQTT_BROKER_URL")
	if url == "" {
		t.Skip("TEST_MQTT_BROKER_URL not set")
	}
	client, err := Connect(url, "playout-test-"+uuid.NewString())
	require.NoError(t, err)
	defer client.Disconnect(250)

	got := make(chan []byte, 1)
	sub := client.Subscribe(Topic("main"), qos, func(_ mqtt.Client, m mqtt.Message) { got <- m.Payload() })
	require.True(t, sub.WaitTimeout(5*time.Second))
	require.NoError(t, sub.Error())

	res := failedResult()
	require.NoError(t, NewPublisher(client).BuildFinished(context.Background(), res))

	select {
	case body := <-got:
		var s Summary
		require.NoError(t, json.Unmarshal(body, &s))
		assert.Equal(t, res.ScheduleID, s.ScheduleID)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
