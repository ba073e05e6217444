// Package pubsub relays notifier fan-out between server processes over
// RabbitMQ. Every process publishes the frames it sends to a fanout exchange
// and applies frames published by its peers to its own connections.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"
	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/constants"
	"github.com/real-rm/supportdesk/internal/message"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/notify"
	"github.com/real-rm/supportdesk/internal/util"
)

const contentType = "application/msgpack"

// ErrNotConnected is returned by publish while the broker is unreachable.
var ErrNotConnected = errors.New("message bus not connected")

// FrameSink applies encoded frames to locally held connections.
// notify.Local implements it.
type FrameSink interface {
	DeliverFrame(userID string, data []byte) int
	BroadcastFrame(sessionID string, data []byte, exceptConnID string) int
	BroadcastAllFrame(data []byte) int
}

// Config describes the broker connection.
type Config struct {
	URL      string
	Exchange string
	Workers  int
	Prefetch int
	// NodeID identifies this process; a random one is generated when empty.
	NodeID string
}

// inbound is a peer delivery waiting for its shard worker.
type inbound struct {
	d   amqp091.Delivery
	env *Envelope
}

// Bus is a notify.Notifier that delivers locally and mirrors every event to
// peer processes. Deliveries for one target are applied by one worker, in
// arrival order.
type Bus struct {
	url      string
	exchange string
	nodeID   string
	prefetch int
	local    FrameSink
	logger   *golog.Logger

	mu      sync.RWMutex
	conn    *amqp091.Connection
	pubCh   *amqp091.Channel
	subCh   *amqp091.Channel
	closing bool

	pubMu     sync.Mutex
	connected atomic.Bool

	shards []chan inbound
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	once   sync.Once
}

var _ notify.Notifier = (*Bus)(nil)

// NewBus dials the broker, declares the exchange and a private queue for this
// process, and starts the consumer workers. ctx bounds the initial dial only;
// later reconnects run until Close.
func NewBus(ctx context.Context, cfg Config, local FrameSink, logger *golog.Logger) (*Bus, error) {
	if cfg.URL == "" {
		return nil, errors.New("bus URL is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = constants.DefaultExchange
	}
	if cfg.Workers <= 0 {
		cfg.Workers = constants.DefaultBusWorkers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = constants.DefaultBusPrefetch
	}
	if cfg.NodeID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate node id: %w", err)
		}
		cfg.NodeID = id
	}
	logger = logger.WithGroup("bus")

	conn, err := DialWithRetry(ctx, DialOptions{URL: cfg.URL, Logger: logger})
	if err != nil {
		return nil, err
	}
	b := newBus(cfg, local, logger)
	b.startWorkers(cfg.Workers)

	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))
	if err := b.setup(conn); err != nil {
		_ = conn.Close()
		_ = b.Close()
		return nil, err
	}
	b.setConnected(true)

	b.wg.Add(1)
	util.SafeGo(logger, "bus", func() {
		defer b.wg.Done()
		b.watch(closed)
	})

	logger.Info("Message bus connected",
		"exchange", cfg.Exchange,
		"node_id", cfg.NodeID,
		"workers", cfg.Workers)
	return b, nil
}

func newBus(cfg Config, local FrameSink, logger *golog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		url:      cfg.URL,
		exchange: cfg.Exchange,
		nodeID:   cfg.NodeID,
		prefetch: cfg.Prefetch,
		local:    local,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// startWorkers starts n shard workers. They outlive reconnects.
func (b *Bus) startWorkers(n int) {
	b.shards = make([]chan inbound, n)
	for i := range b.shards {
		ch := make(chan inbound, b.prefetch)
		b.shards[i] = ch
		b.wg.Add(1)
		util.SafeGo(b.logger, "bus", func() {
			defer b.wg.Done()
			b.work(ch)
		})
	}
}

// setup opens the channels and topology on conn and starts its dispatcher.
func (b *Bus) setup(conn *amqp091.Connection) error {
	pubCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open publish channel: %w", err)
	}
	if err := pubCh.ExchangeDeclare(b.exchange, amqp091.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
	}

	subCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	if err := subCh.Qos(b.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	// Server-named, exclusive and auto-deleted: the queue lives as long as
	// this connection.
	q, err := subCh.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := subCh.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := subCh.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing {
		return ErrNotConnected
	}
	b.conn, b.pubCh, b.subCh = conn, pubCh, subCh
	b.wg.Add(1)
	util.SafeGo(b.logger, "bus", func() {
		defer b.wg.Done()
		b.dispatch(deliveries)
	})
	return nil
}

// watch re-dials whenever the broker connection closes.
func (b *Bus) watch(closed chan *amqp091.Error) {
	for {
		select {
		case <-b.done:
			return
		case amqpErr, ok := <-closed:
			select {
			case <-b.done:
				return
			default:
			}
			b.setConnected(false)
			reason := "connection closed"
			if ok && amqpErr != nil {
				reason = amqpErr.Error()
			}
			b.logger.Error("Message bus connection lost, reconnecting", "reason", reason)
			if closed = b.reconnect(); closed == nil {
				return
			}
		}
	}
}

// reconnect dials until setup succeeds or the bus is closed. It returns the
// close notifications of the new connection, or nil after Close.
func (b *Bus) reconnect() chan *amqp091.Error {
	backoff := constants.BusReconnectBase
	for attempt := 1; ; attempt++ {
		conn, err := DialWithRetry(b.ctx, DialOptions{URL: b.url, Logger: b.logger})
		if err == nil {
			closed := conn.NotifyClose(make(chan *amqp091.Error, 1))
			if err = b.setup(conn); err == nil {
				b.setConnected(true)
				b.logger.Info("Message bus reconnected", "attempt", attempt)
				return closed
			}
			_ = conn.Close()
		}
		if b.ctx.Err() != nil {
			return nil
		}

		wait := jitteredDelay(backoff, constants.BusReconnectCap, constants.BusReconnectJitter)
		b.logger.Warn("Message bus reconnect failed",
			"attempt", attempt,
			"retry_in", wait,
			"error", err)
		timer := time.NewTimer(wait)
		select {
		case <-b.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff *= 2
		if backoff > constants.BusReconnectCap {
			backoff = constants.BusReconnectCap
		}
	}
}

// dispatch decodes deliveries in arrival order and hands each to the shard
// that owns its target.
func (b *Bus) dispatch(deliveries <-chan amqp091.Delivery) {
	for {
		select {
		case <-b.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			env, err := b.decode(d.Body)
			if err != nil {
				metrics.BusEvents.WithLabelValues("in", "invalid").Inc()
				b.logger.Warn("Dropping bus delivery", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			if env == nil {
				_ = d.Ack(false)
				continue
			}
			select {
			case b.shards[shardFor(env.Target, len(b.shards))] <- inbound{d: d, env: env}:
			case <-b.done:
				return
			}
		}
	}
}

func (b *Bus) work(ch <-chan inbound) {
	for {
		select {
		case <-b.done:
			return
		case in := <-ch:
			applyEnvelope(b.local, in.env)
			metrics.BusEvents.WithLabelValues("in", "applied").Inc()
			_ = in.d.Ack(false)
		}
	}
}

// decode returns nil for envelopes this process published, since those were
// delivered locally before publishing.
func (b *Bus) decode(body []byte) (*Envelope, error) {
	env, err := UnmarshalEnvelope(body)
	if err != nil {
		return nil, err
	}
	if env.Origin == b.nodeID {
		metrics.BusEvents.WithLabelValues("in", "own").Inc()
		return nil, nil
	}
	return env, nil
}

func shardFor(target string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(target))
	return int(h.Sum32() % uint32(n))
}

func jitteredDelay(base, limit time.Duration, jitterPct int) time.Duration {
	if jitterPct <= 0 {
		jitterPct = 25
	}
	delta := (rand.Float64()*2 - 1) * float64(jitterPct) / 100.0
	wait := time.Duration(float64(base) * (1 + delta))
	if wait < 0 {
		wait = base
	}
	if wait > limit {
		wait = limit
	}
	return wait
}

func applyEnvelope(sink FrameSink, env *Envelope) int {
	switch env.Kind {
	case KindUser:
		return sink.DeliverFrame(env.Target, env.Frame)
	case KindRoom:
		return sink.BroadcastFrame(env.Target, env.Frame, env.Except)
	default:
		return sink.BroadcastAllFrame(env.Frame)
	}
}

func (b *Bus) Deliver(ctx context.Context, userID string, event message.Event, payload interface{}) {
	b.send(ctx, &Envelope{Kind: KindUser, Target: userID, Event: string(event)}, payload)
}

func (b *Bus) Broadcast(ctx context.Context, sessionID string, event message.Event, payload interface{}, exceptConnID string) {
	b.send(ctx, &Envelope{Kind: KindRoom, Target: sessionID, Except: exceptConnID, Event: string(event)}, payload)
}

func (b *Bus) BroadcastAll(ctx context.Context, event message.Event, payload interface{}) {
	b.send(ctx, &Envelope{Kind: KindAll, Event: string(event)}, payload)
}

// send delivers locally first, then publishes. Publish failures are logged
// and counted; peers miss the event but local users are unaffected.
func (b *Bus) send(ctx context.Context, env *Envelope, payload interface{}) {
	frame, err := message.Encode(message.Event(env.Event), payload)
	if err != nil {
		metrics.MessageErrors.Inc()
		util.LogError(b.logger, "bus", "encode frame", err, "event", env.Event)
		return
	}
	env.Frame = frame
	env.Origin = b.nodeID
	applyEnvelope(b.local, env)

	if err := b.publish(ctx, env); err != nil {
		metrics.BusEvents.WithLabelValues("out", "error").Inc()
		b.logger.Warn("Failed to publish bus event", "event", env.Event, "error", err)
		return
	}
	metrics.BusEvents.WithLabelValues("out", "ok").Inc()
}

func (b *Bus) publish(ctx context.Context, env *Envelope) error {
	b.mu.RLock()
	ch := b.pubCh
	b.mu.RUnlock()
	if ch == nil || !b.Connected() {
		return ErrNotConnected
	}

	body, err := env.Marshal()
	if err != nil {
		return err
	}
	ctx, cancel := util.DetachedTimeout(ctx, constants.BusPublishTimeout)
	defer cancel()

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return ch.PublishWithContext(ctx, b.exchange, "", false, false, amqp091.Publishing{
		ContentType: contentType,
		Timestamp:   time.Now(),
		AppId:       b.nodeID,
		Body:        body,
	})
}

// Connected reports whether the broker connection is currently up.
func (b *Bus) Connected() bool {
	return b.connected.Load()
}

func (b *Bus) setConnected(up bool) {
	b.connected.Store(up)
	if up {
		metrics.BusConnected.Set(1)
	} else {
		metrics.BusConnected.Set(0)
	}
}

// NodeID returns this process's origin id.
func (b *Bus) NodeID() string {
	return b.nodeID
}

// Close stops the reconnect loop and the workers and closes the broker
// connection.
func (b *Bus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		b.cancel()

		b.mu.Lock()
		b.closing = true
		conn, pubCh, subCh := b.conn, b.pubCh, b.subCh
		b.mu.Unlock()

		if subCh != nil {
			_ = subCh.Close()
		}
		b.wg.Wait()
		if pubCh != nil {
			_ = pubCh.Close()
		}
		if conn != nil {
			if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, amqp091.ErrClosed) {
				err = cerr
			}
		}
		b.setConnected(false)
		b.logger.Info("Message bus closed")
	})
	return err
}
