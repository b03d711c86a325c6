// Package outbox delivers workout change events recorded in workout_outbox to Kafka.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/segmentio/kafka-go"
)

// DB is the subset of *pgxpool.Pool the dispatcher needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Header keys set on every published record.
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
)

// DefaultMaxAttempts is used when Options.MaxAttempts is not positive.
const DefaultMaxAttempts = 5

// Options tunes a Dispatcher.
type Options struct {
	Topic        string
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts is the number of failed deliveries after which a row is
	// parked and skipped until requeued.
	MaxAttempts int
	Logger      *slog.Logger
}

// Dispatcher drains the outbox table and delivers events to Kafka.
type Dispatcher struct {
	db               DB
	producer         messageWriter
	opts             Options
	log              *slog.Logger
	now              func() time.Time
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(db DB, producer messageWriter, opts Options) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		db:               db,
		producer:         producer,
		opts:             opts,
		log:              log.With("component", "outbox_dispatcher"),
		now:              time.Now,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if _, err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("outbox batch failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

// Message represents a row fetched from workout_outbox.
type Message struct {
	EventID   string
	EventType string
	WorkoutID int64
	Payload   []byte
	CreatedAt time.Time
	Attempts  int
}

const selectPending = `SELECT event_id, event_type, workout_id, payload, created_at, attempts
        FROM workout_outbox
        WHERE published_at IS NULL AND attempts < $1
        ORDER BY created_at, event_id
        LIMIT $2
        FOR UPDATE SKIP LOCKED`

// processBatch claims up to BatchSize pending rows, publishes them and marks
// them published in one transaction. It returns the number delivered.
func (d *Dispatcher) processBatch(ctx context.Context) (int, error) {
	start := time.Now()

	tx, err := d.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback(ctx)
		}
	}()

	messages, err := fetchPending(ctx, tx, d.opts.MaxAttempts, d.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if deliverErr := d.producer.WriteMessages(ctx, d.opts.Topic, toKafkaMessages(messages, d.now())...); deliverErr != nil {
		failedCounter.Add(float64(len(messages)))
		_ = tx.Rollback(ctx)
		finished = true
		d.log.Warn("outbox delivery failed", "events", len(messages), "error", deliverErr)
		if recErr := d.recordFailure(ctx, messages, deliverErr); recErr != nil {
			return 0, errors.Join(deliverErr, recErr)
		}
		return 0, deliverErr
	}

	if _, err := tx.Exec(ctx, `UPDATE workout_outbox SET published_at = $2 WHERE event_id = ANY($1)`, eventIDs(messages), d.now().UTC()); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	finished = true

	deliveredCounter.Add(float64(len(messages)))
	d.log.Debug("outbox batch delivered", "events", len(messages))
	return len(messages), nil
}

func fetchPending(ctx context.Context, tx pgx.Tx, maxAttempts, limit int) ([]Message, error) {
	rows, err := tx.Query(ctx, selectPending, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.EventID, &msg.EventType, &msg.WorkoutID, &msg.Payload, &msg.CreatedAt, &msg.Attempts); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// recordFailure bumps the attempt counter outside the rolled-back batch and
// counts rows that just reached the limit as parked.
func (d *Dispatcher) recordFailure(ctx context.Context, messages []Message, cause error) error {
	if _, err := d.db.Exec(ctx,
		`UPDATE workout_outbox SET attempts = attempts + 1, last_error = $2 WHERE event_id = ANY($1)`,
		eventIDs(messages), cause.Error(),
	); err != nil {
		return err
	}
	for _, msg := range messages {
		if msg.Attempts+1 >= d.opts.MaxAttempts {
			parkedCounter.WithLabelValues(msg.EventType).Inc()
			d.log.Error("outbox event parked", "event_id", msg.EventID, "event_type", msg.EventType, "attempts", msg.Attempts+1)
		}
	}
	return nil
}

func toKafkaMessages(messages []Message, now time.Time) []kafka.Message {
	records := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		records = append(records, kafka.Message{
			Key:   []byte(strconv.FormatInt(msg.WorkoutID, 10)),
			Value: msg.Payload,
			Time:  now.UTC(),
			Headers: []kafka.Header{
				{Key: HeaderEventType, Value: []byte(msg.EventType)},
				{Key: HeaderEventID, Value: []byte(msg.EventID)},
			},
		})
	}
	return records
}

func eventIDs(messages []Message) []string {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	return ids
}
