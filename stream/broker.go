package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/fieldops/ext"
	"github.com/xraph/fieldops/job"
	"github.com/xraph/fieldops/technician"
	"github.com/xraph/fieldops/transition"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Broker)(nil)
	_ ext.TransitionApplied = (*Broker)(nil)
	_ ext.GeofenceTriggered = (*Broker)(nil)
	_ ext.Shutdown          = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// DefaultAccuracyLimitMeters rejects samples whose reported accuracy
// radius is worse than this.
const DefaultAccuracyLimitMeters = 100.0

// SampleSink consumes every accepted location sample. The geofence
// engine registers as a sink. ConsumeSample must not block: it runs on
// the ingest path.
type SampleSink interface {
	ConsumeSample(ctx context.Context, s Sample)
}

// Broker ingests location samples and fans out stream events. It also
// implements the ext hook interfaces so committed transitions and
// geofence triggers reach the same subscribers.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// techStore receives best-effort last-position writes. Nil disables
	// persistence.
	techStore technician.Store

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Per-technician ingest rate limiters.
	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	// Sinks, fixed after wiring.
	sinkMu sync.RWMutex
	sinks  []SampleSink

	// Counters.
	totalPublished  atomic.Int64
	samplesAccepted atomic.Int64
	samplesDropped  atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
	accuracyLimit  float64
	sampleRate     rate.Limit
	sampleBurst    int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// WithAccuracyLimit sets the maximum accepted accuracy radius in meters.
// Zero disables the filter.
func WithAccuracyLimit(meters float64) BrokerOption {
	return func(b *Broker) { b.accuracyLimit = meters }
}

// WithSampleRate sets the per-technician ingest limit: samples per
// second with the given burst.
func WithSampleRate(perSecond float64, burst int) BrokerOption {
	return func(b *Broker) {
		b.sampleRate = rate.Limit(perSecond)
		b.sampleBurst = burst
	}
}

// WithTechnicianStore enables best-effort persistence of each accepted
// sample as the technician's last known position.
func WithTechnicianStore(ts technician.Store) BrokerOption {
	return func(b *Broker) { b.techStore = ts }
}

// NewBroker creates a location stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		limiters:       make(map[string]*rate.Limiter),
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
		accuracyLimit:  DefaultAccuracyLimitMeters,
		sampleRate:     rate.Limit(1),
		sampleBurst:    5,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "location-broker" }

// Topics returns the topic registry for external use (e.g., the gateway).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// AddSink registers a sample sink. Call during wiring, before ingest.
func (b *Broker) AddSink(s SampleSink) {
	b.sinkMu.Lock()
	b.sinks = append(b.sinks, s)
	b.sinkMu.Unlock()
}

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// IngestSample runs one sample through the ingest path: validation, the
// accuracy filter, the per-technician rate limiter, best-effort
// persistence, then fan-out to sinks and subscribers. Filtered and
// rate-limited samples are dropped silently; only malformed samples
// return an error.
func (b *Broker) IngestSample(ctx context.Context, s Sample) error {
	if s.TechnicianID.IsNil() {
		return fmt.Errorf("stream: sample missing technician id")
	}
	if s.Location.IsZero() {
		return fmt.Errorf("stream: sample for %s has zero location", s.TechnicianID)
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC()
	}

	if b.accuracyLimit > 0 && s.AccuracyMeters > b.accuracyLimit {
		b.samplesDropped.Add(1)
		return nil
	}
	if !b.limiter(s.TechnicianID.String()).Allow() {
		b.samplesDropped.Add(1)
		return nil
	}

	b.samplesAccepted.Add(1)

	// Last-position write is best effort: a storage hiccup must not
	// stall geofence evaluation.
	if b.techStore != nil {
		if err := b.techStore.UpdateTechnicianLocation(ctx, s.TechnicianID, s.Location, s.RecordedAt); err != nil {
			b.logger.Warn("location persist failed",
				slog.String("technician_id", s.TechnicianID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	b.sinkMu.RLock()
	sinks := b.sinks
	b.sinkMu.RUnlock()
	for _, sink := range sinks {
		sink.ConsumeSample(ctx, s)
	}

	b.publish(&Event{
		Type:      EventLocationSample,
		Timestamp: time.Now().UTC(),
		Topic:     TechnicianTopic(s.TechnicianID.String()),
		Data: mustMarshal(LocationEventData{
			TechnicianID: s.TechnicianID.String(),
			Lat:          s.Location.Lat,
			Lon:          s.Location.Lon,
			AccuracyM:    s.AccuracyMeters,
			RecordedAt:   s.RecordedAt.Format(time.RFC3339Nano),
		}),
	})
	return nil
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		SamplesAccepted: b.samplesAccepted.Load(),
		SamplesDropped:  b.samplesDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	SamplesAccepted int64 `json:"samples_accepted"`
	SamplesDropped  int64 `json:"samples_dropped"`
}

// limiter returns the rate limiter for one technician, creating it on
// first use.
func (b *Broker) limiter(techID string) *rate.Limiter {
	b.limMu.Lock()
	defer b.limMu.Unlock()
	lim, ok := b.limiters[techID]
	if !ok {
		lim = rate.NewLimiter(b.sampleRate, b.sampleBurst)
		b.limiters[techID] = lim
	}
	return lim
}

// publish broadcasts an event to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Lifecycle hooks ─────────────────────────────────

func (b *Broker) OnTransitionApplied(_ context.Context, j *job.Job, from job.Status, req transition.Request) error {
	data := TransitionEventData{
		JobID:  j.ID.String(),
		From:   string(from),
		To:     string(j.Status),
		Source: string(req.Source),
	}
	if !j.AssignedTechnicianID.IsNil() {
		data.TechnicianID = j.AssignedTechnicianID.String()
	}
	b.publish(&Event{
		Type:      EventJobTransitioned,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

func (b *Broker) OnGeofenceTriggered(_ context.Context, req transition.Request, distanceMeters float64) error {
	b.publish(&Event{
		Type:      EventGeofenceTriggered,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(req.JobID.String()),
		Data: mustMarshal(GeofenceEventData{
			JobID:          req.JobID.String(),
			Target:         string(req.Target),
			DistanceMeters: distanceMeters,
		}),
	})
	return nil
}

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("location broker shut down")
	return nil
}
