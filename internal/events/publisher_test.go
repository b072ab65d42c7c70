package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/trip-ledger/internal/status"
)

type MockToken struct {
	done    bool
	err     error
	waitFor time.Duration
}

func (t *MockToken) Wait() bool { return t.done }
func (t *MockToken) WaitTimeout(d time.Duration) bool {
	t.waitFor = d
	return t.done
}
func (t *MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *MockToken) Error() error { return t.err }

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return args.Get(0).(mqtt.Token)
}

func (m *MockClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

var freed = []status.ResourceAvailable{
	{Kind: status.ResourceDriver, ID: "d-1", TripID: "t-1"},
	{Kind: status.ResourceTruck, ID: "MH12AB1234", TripID: "t-1"},
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := new(MockClient)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := newMQTTPublisher(client, "fleet", time.Second)
	p.now = func() time.Time { return at }

	var payloads [][]byte
	capture := func(args mock.Arguments) { payloads = append(payloads, args.Get(3).([]byte)) }
	client.On("Publish", "fleet/driver/d-1/status", byte(1), false, mock.Anything).Run(capture).Return(&MockToken{done: true}).Once()
	client.On("Publish", "fleet/truck/MH12AB1234/status", byte(1), false, mock.Anything).Run(capture).Return(&MockToken{done: true}).Once()

	require.NoError(t, p.Publish(context.Background(), freed))
	client.AssertExpectations(t)

	require.Len(t, payloads, 2)
	var msg Message
	require.NoError(t, json.Unmarshal(payloads[0], &msg))
	assert.Equal(t, Message{Status: "Available", TripID: "t-1", At: at}, msg)
}

func TestMQTTPublisher_StopsAtFirstFailure(t *testing.T) {
	client := new(MockClient)
	p := newMQTTPublisher(client, "", time.Second)
	client.On("Publish", "fleet/driver/d-1/status", byte(1), false, mock.Anything).Return(&MockToken{done: true, err: errors.New("not connected")}).Once()

	err := p.Publish(context.Background(), freed)
	assert.ErrorContains(t, err, "not connected")
	client.AssertNumberOfCalls(t, "Publish", 1)
}

func TestMQTTPublisher_Timeout(t *testing.T) {
	client := new(MockClient)
	p := newMQTTPublisher(client, "fleet", time.Second)
	token := &MockToken{done: false}
	client.On("Publish", mock.Anything, byte(1), false, mock.Anything).Return(token)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := p.Publish(ctx, freed[:1])
	assert.ErrorIs(t, err, ErrPublishTimeout)
	assert.LessOrEqual(t, token.waitFor, 100*time.Millisecond, "wait is capped by the context deadline")
}

func TestMQTTPublisher_CancelledContext(t *testing.T) {
	client := new(MockClient)
	p := newMQTTPublisher(client, "fleet", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, freed), context.Canceled)
	client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMQTTPublisher_Close(t *testing.T) {
	client := new(MockClient)
	client.On("Disconnect", uint(250)).Return()
	newMQTTPublisher(client, "fleet", time.Second).Close()
	client.AssertExpectations(t)
}

func TestLogPublisher(t *testing.T) {
	logger, hook := test.NewNullLogger()
	require.NoError(t, LogPublisher{Logger: logger}.Publish(context.Background(), freed))
	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, log.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "MH12AB1234", hook.LastEntry().Data["id"])
}
