package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/events"
)

func eventMessage(t *testing.T, evt events.WorkoutChanged, offset int64) kafka.Message {
	t.Helper()
	value, err := json.Marshal(evt)
	require.NoError(t, err)
	return kafka.Message{
		Topic:     "workout_events",
		Partition: 0,
		Offset:    offset,
		Time:      time.Now().UTC(),
		Value:     value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
			{Key: "event_id", Value: []byte(evt.EventID)},
		},
	}
}

func createdEvent() events.WorkoutChanged {
	start := time.Date(2024, time.May, 5, 8, 0, 0, 0, time.UTC)
	return events.NewWorkoutChanged(events.TypeWorkoutCreated, domain.Workout{
		ID:        12,
		Name:      "long run",
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		Distance:  24,
		HeartRate: 141,
		Type:      domain.WorkoutTypeLong,
	}, start.Add(2*time.Hour))
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evt := createdEvent()
	reader := &stubReader{
		messages: []kafka.Message{eventMessage(t, evt, 10)},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.TypeWorkoutCreated, handler.last.Event.EventType)
	require.Equal(t, evt.EventID, handler.last.Event.EventID)
	require.Equal(t, int64(12), handler.last.Event.WorkoutID)
	require.Equal(t, "long", handler.last.Event.Workout.WorkoutType)
	require.Equal(t, int64(10), handler.last.Offset)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evt := events.NewWorkoutChanged(events.TypeWorkoutDeleted, domain.Workout{ID: 3}, time.Now())
	reader := &stubReader{
		messages: []kafka.Message{eventMessage(t, evt, 20)},
		after:    contextCanceled,
	}
	handler := &stubHandler{
		err: errors.New("boom"),
		onCall: func(calls int) {
			if calls == 3 {
				cancel()
			}
		},
	}

	before := testutil.ToFloat64(handlerErrorCounter.WithLabelValues("workout_events", events.TypeWorkoutDeleted))

	processor := NewProcessor(reader, handler, WithLogger(testLogger(t)), WithRetryBackoff(time.Millisecond))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
	require.InDelta(t, before+3, testutil.ToFloat64(handlerErrorCounter.WithLabelValues("workout_events", events.TypeWorkoutDeleted)), 0.0001)
}

func TestProcessorRetriesFailedMessageBeforeNext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := createdEvent(), createdEvent()
	reader := &stubReader{
		messages: []kafka.Message{eventMessage(t, first, 21), eventMessage(t, second, 22)},
		after:    contextCanceled,
	}
	handler := &stubHandler{errs: []error{errors.New("database unavailable")}}

	err := NewProcessor(reader, handler, WithLogger(testLogger(t)), WithRetryBackoff(time.Millisecond)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, []string{first.EventID, first.EventID, second.EventID}, handler.handled)
	require.Equal(t, []int64{21, 22}, reader.committed)
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good := createdEvent()
	mismatched := eventMessage(t, createdEvent(), 2)
	mismatched.Headers[0].Value = []byte(events.TypeWorkoutDeleted)

	noHeader := eventMessage(t, createdEvent(), 3)
	noHeader.Headers = nil

	reader := &stubReader{
		messages: []kafka.Message{
			{Topic: "workout_events", Offset: 1, Value: []byte("not json"), Headers: []kafka.Header{{Key: "event_type", Value: []byte("workout.created")}}},
			mismatched,
			noHeader,
			eventMessage(t, good, 4),
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}

	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("workout_events"))

	err := NewProcessor(reader, handler, WithLogger(testLogger(t))).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls, "only the valid event reaches the handler")
	require.Equal(t, good.EventID, handler.last.Event.EventID)
	require.Equal(t, 4, reader.commitCalls)
	require.InDelta(t, before+3, testutil.ToFloat64(decodeErrorCounter.WithLabelValues("workout_events")), 0.0001)
}

func TestProcessorRetriesFetchErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		fetchErrs: []error{errors.New("broker unavailable")},
		messages:  []kafka.Message{eventMessage(t, createdEvent(), 1)},
		after:     contextCanceled,
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(testLogger(t)), WithFetchBackoff(time.Millisecond)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, handler.calls)
}

type stubReader struct {
	fetchErrs   []error
	messages    []kafka.Message
	index       int
	commitCalls int
	committed   []int64
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.commitCalls++
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls   int
	errs    []error
	err     error
	last    Message
	handled []string
	onCall  func(calls int)
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	h.handled = append(h.handled, msg.Event.EventID)
	if h.onCall != nil {
		h.onCall(h.calls)
	}
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return err
	}
	return h.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, nil))
}
