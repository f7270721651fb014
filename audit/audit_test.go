package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/nvr-ai/braintumor/inference"
)

func sampleEntry(id string) Entry {
	return Entry{
		PredictionID:     id,
		PredictedClass:   "glioma",
		Confidence:       0.87,
		ProcessingTimeMs: 12.34,
		ModelVersion:     "1.0.0",
		Timestamp:        time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

type memorySink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	closed  bool
}

func (m *memorySink) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memorySink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestFromPrediction(t *testing.T) {
	p := &inference.Prediction{
		PredictionID:     "pred_x",
		PredictedClass:   "pituitary",
		Confidence:       0.6,
		ProcessingTimeMs: 3.5,
		Timestamp:        time.Unix(100, 0).UTC(),
	}
	e := FromPrediction(p, "2.0")
	assert.Equal(t, "pred_x", e.PredictionID)
	assert.Equal(t, "pituitary", e.PredictedClass)
	assert.Equal(t, 0.6, e.Confidence)
	assert.Equal(t, 3.5, e.ProcessingTimeMs)
	assert.Equal(t, "2.0", e.ModelVersion)
	assert.Equal(t, p.Timestamp, e.Timestamp)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "predictions.jsonl")
	sink, err := NewFileSink(FileOptions{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)

	require.NoError(t, sink.Record(context.Background(), sampleEntry("pred_1")))
	require.NoError(t, sink.Record(context.Background(), sampleEntry("pred_2")))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var raw map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &raw))
		for _, key := range []string{"prediction_id", "predicted_class", "confidence", "processing_time_ms", "timestamp"} {
			assert.Contains(t, raw, key)
		}
		ids = append(ids, raw["prediction_id"].(string))
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"pred_1", "pred_2"}, ids)
}

func TestFileSinkRequiresPath(t *testing.T) {
	_, err := NewFileSink(FileOptions{})
	assert.Error(t, err)
}

func TestKafkaSink(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e Entry
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.PredictionID != "pred_k" {
			return errors.Errorf("unexpected prediction id %q", e.PredictionID)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewKafkaSinkWithProducer(producer, "predictions")
	require.NoError(t, sink.Record(context.Background(), sampleEntry("pred_k")))
	assert.Error(t, sink.Record(context.Background(), sampleEntry("pred_fail")))
	require.NoError(t, sink.Close())
}

func TestKafkaSinkCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	sink := NewKafkaSinkWithProducer(producer, "predictions")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Record(ctx, sampleEntry("pred_c")), context.Canceled)
	require.NoError(t, sink.Close())
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(KafkaOptions{Topic: "predictions"})
	assert.Error(t, err)
	_, err = NewKafkaSink(KafkaOptions{Brokers: []string{"localhost:9092"}, Topic: " "})
	assert.Error(t, err)
}

func TestMySQLSinkDryRun(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/braintumor?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	sink := NewMySQLSinkWithDB(db)
	assert.NoError(t, sink.Record(context.Background(), sampleEntry("pred_db")))

	stmt := db.Session(&gorm.Session{DryRun: true}).Create(toRecord(sampleEntry("pred_db"))).Statement
	assert.Contains(t, stmt.SQL.String(), "INSERT INTO `prediction_records`")
	assert.Contains(t, stmt.Vars, "pred_db")
}

func TestToRecord(t *testing.T) {
	r := toRecord(sampleEntry("pred_r"))
	assert.Equal(t, "pred_r", r.PredictionId)
	assert.Equal(t, "glioma", r.PredictedClass)
	assert.Equal(t, "1.0.0", r.ModelVersion)
	assert.Equal(t, "prediction_records", r.TableName())
}

func TestMulti(t *testing.T) {
	ok := &memorySink{}
	bad := &memorySink{err: errors.New("down")}
	other := &memorySink{}

	m := Multi{ok, bad, other}
	err := m.Record(context.Background(), sampleEntry("pred_m"))
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, other.count())

	require.NoError(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, other.closed)
}

func TestAsync(t *testing.T) {
	mem := &memorySink{}
	a := NewAsync(mem, 16, time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Record(context.Background(), sampleEntry("pred_a")))
	}
	require.NoError(t, a.Close())
	assert.Equal(t, 5, mem.count())
	assert.True(t, mem.closed)

	assert.Error(t, a.Record(context.Background(), sampleEntry("late")))
	assert.NoError(t, a.Close())
}

type blockingSink struct {
	memorySink
	release chan struct{}
}

func (b *blockingSink) Record(ctx context.Context, e Entry) error {
	<-b.release
	return b.memorySink.Record(ctx, e)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	b := &blockingSink{release: make(chan struct{})}
	a := NewAsync(b, 1, time.Second)

	// The worker takes the first entry and blocks; the second fills the buffer.
	require.NoError(t, a.Record(context.Background(), sampleEntry("1")))
	require.Eventually(t, func() bool {
		return a.Record(context.Background(), sampleEntry("2")) == nil
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, a.Record(context.Background(), sampleEntry("3")), ErrQueueFull)

	close(b.release)
	require.NoError(t, a.Close())
	assert.Equal(t, 2, b.count())
}
