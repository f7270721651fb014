package audit

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PredictionRecord is the table row for one prediction.
type PredictionRecord struct {
	Id               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PredictionId     string    `gorm:"column:prediction_id;type:varchar(64);uniqueIndex;not null"`
	PredictedClass   string    `gorm:"column:predicted_class;type:varchar(32);index;not null"`
	Confidence       float64   `gorm:"column:confidence;not null"`
	ProcessingTimeMs float64   `gorm:"column:processing_time_ms;not null"`
	ModelVersion     string    `gorm:"column:model_version;type:varchar(32)"`
	PredictedAt      time.Time `gorm:"column:predicted_at;type:datetime(6);index;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;type:datetime;not null"`
}

// TableName pins the table name.
func (PredictionRecord) TableName() string {
	return "prediction_records"
}

func toRecord(e Entry) *PredictionRecord {
	return &PredictionRecord{
		PredictionId:     e.PredictionID,
		PredictedClass:   e.PredictedClass,
		Confidence:       e.Confidence,
		ProcessingTimeMs: e.ProcessingTimeMs,
		ModelVersion:     e.ModelVersion,
		PredictedAt:      e.Timestamp,
	}
}

// MySQLSink inserts one PredictionRecord per entry.
type MySQLSink struct {
	db *gorm.DB
}

// NewMySQLSink opens the database and creates the table if needed.
//
// Arguments:
//   - dsn: The MySQL data source name, e.g. user:pass@tcp(host:3306)/braintumor?parseTime=True.
//
// Returns:
//   - *MySQLSink: The sink.
//   - error: An error if the connection or migration fails.
func NewMySQLSink(dsn string) (*MySQLSink, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, errors.Wrap(err, "opening mysql")
	}
	if err := db.AutoMigrate(&PredictionRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrating prediction_records")
	}
	return NewMySQLSinkWithDB(db), nil
}

// NewMySQLSinkWithDB uses an already opened database without migrating it.
func NewMySQLSinkWithDB(db *gorm.DB) *MySQLSink {
	return &MySQLSink{db: db}
}

// Record inserts e.
func (m *MySQLSink) Record(ctx context.Context, e Entry) error {
	if err := m.db.WithContext(ctx).Create(toRecord(e)).Error; err != nil {
		return errors.Wrap(err, "inserting prediction record")
	}
	return nil
}

// Close closes the underlying connection pool.
func (m *MySQLSink) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
