package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

// KafkaOptions configures the prediction event producer.
type KafkaOptions struct {
	Brokers  []string
	ClientID string
	Topic    string
}

// KafkaSink publishes each entry as a JSON message keyed by prediction id.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink connects a synchronous, idempotent producer to the brokers.
//
// Arguments:
//   - opts: Brokers, client id and topic.
//
// Returns:
//   - *KafkaSink: The sink.
//   - error: An error if the options are incomplete or the brokers are unreachable.
func NewKafkaSink(opts KafkaOptions) (*KafkaSink, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka brokers is empty")
	}
	if strings.TrimSpace(opts.Topic) == "" {
		return nil, errors.New("kafka topic is empty")
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 10
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.ClientID = strings.TrimSpace(opts.ClientID)

	p, err := sarama.NewSyncProducer(opts.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, "creating kafka producer")
	}
	return NewKafkaSinkWithProducer(p, opts.Topic), nil
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

// Record sends e and waits for the broker acknowledgement.
func (k *KafkaSink) Record(ctx context.Context, e Entry) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	value, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encoding prediction event")
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(e.PredictionID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("class"), Value: []byte(e.PredictedClass)},
		},
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return errors.Wrap(err, "publishing prediction event")
	}
	return nil
}

// Close shuts the producer down.
func (k *KafkaSink) Close() error {
	if k == nil || k.producer == nil {
		return nil
	}
	return k.producer.Close()
}
