package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/config"
)

func TestEncode(t *testing.T) {
	msg, err := encode(Event{Key: "query:cat", Value: map[string]int{"results": 2}})
	require.NoError(t, err)
	assert.Equal(t, []byte("query:cat"), msg.Key)
	assert.JSONEq(t, `{"results":2}`, string(msg.Value))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode(Event{Key: "k", Value: make(chan int)})
	assert.Error(t, err)
}

func TestNewProducerUsesTopic(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "termsearch-events"})
	assert.Equal(t, "termsearch-events", p.writer.Topic)
	require.NoError(t, p.Close())
}
