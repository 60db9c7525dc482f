// Package eviction keeps the metadata repositories of one persistence unit
// consistent across processes. Evictions seen by a local repository are
// published on a Redis channel, and evictions published by other processes
// are applied to the local repository.
package eviction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormeta/internal/meta"
)

// DefaultChannel is the pub/sub channel used when Options.Channel is empty.
const DefaultChannel = "ormeta:evictions"

var (
	// ErrClosed is returned when a closed broadcaster is started again.
	ErrClosed = errors.New("eviction broadcaster is closed")

	// ErrQueueFull is reported when an eviction could not be queued for
	// publishing.
	ErrQueueFull = errors.New("eviction queue is full")
)

// Message is the payload published for every eviction. An empty Class means
// the whole repository was cleared.
type Message struct {
	Origin string `json:"origin"`
	Unit   string `json:"unit"`
	Class  string `json:"class,omitempty"`
}

// Evictor is the part of a repository that remote evictions are applied to.
// The source of an eviction is not told about it, so remote evictions are
// not published again.
type Evictor interface {
	EvictNamed(name string, source meta.EvictionListener) bool
	EvictAll(source meta.EvictionListener)
}

// Options configures a Broadcaster.
type Options struct {
	// Channel is the Redis channel shared by every node of the unit.
	Channel string
	// Unit names the persistence unit; messages for other units are ignored.
	Unit string
	// Workers is the number of publishing goroutines.
	Workers int
	// QueueSize bounds the evictions waiting to be published.
	QueueSize int
	// PublishTimeout bounds a single publish.
	PublishTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Channel == "" {
		o.Channel = DefaultChannel
	}
	if o.Unit == "" {
		o.Unit = "default"
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 100
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	return o
}

// Broadcaster is a meta.EvictionListener that shares evictions over Redis.
//
// MetaDataEvicted is called while the repository holds its lock, so it never
// blocks: evictions are queued and published by a pool of workers. When the
// queue is full the eviction is dropped and logged.
type Broadcaster struct {
	client *redis.Client
	repo   Evictor
	opts   Options
	origin string
	logger *zap.Logger

	tasks  chan Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	pubsub *redis.PubSub

	mu       sync.Mutex
	started  bool
	shutdown bool
}

// NewBroadcaster creates a broadcaster applying remote evictions to repo.
// It does nothing until Start is called.
func NewBroadcaster(client *redis.Client, repo Evictor, opts Options, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	origin := uuid.NewString()
	return &Broadcaster{
		client: client,
		repo:   repo,
		opts:   opts,
		origin: origin,
		logger: logger.With(zap.String("unit", opts.Unit), zap.String("origin", origin)),
		tasks:  make(chan Message, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Origin identifies this broadcaster in published messages.
func (b *Broadcaster) Origin() string { return b.origin }

// Start subscribes to the channel and starts the publishing workers. It
// returns once the subscription is confirmed by the server.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return ErrClosed
	}
	if b.started {
		return nil
	}

	pubsub := b.client.Subscribe(ctx, b.opts.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", b.opts.Channel, err)
	}
	b.pubsub = pubsub

	for i := 0; i < b.opts.Workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
	b.wg.Add(1)
	go b.listen(pubsub.Channel())

	b.started = true
	b.logger.Debug("eviction broadcaster started", zap.String("channel", b.opts.Channel))
	return nil
}

// MetaDataEvicted queues the eviction of cls for publishing.
func (b *Broadcaster) MetaDataEvicted(cls *meta.Class) {
	name := ""
	if cls != nil {
		name = cls.Name
	}
	if err := b.enqueue(Message{Origin: b.origin, Unit: b.opts.Unit, Class: name}); err != nil {
		b.logger.Warn("dropping eviction", zap.String("class", name), zap.Error(err))
	}
}

func (b *Broadcaster) enqueue(msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return ErrClosed
	}
	select {
	case b.tasks <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *Broadcaster) worker(id int) {
	defer b.wg.Done()

	for msg := range b.tasks {
		if err := b.publish(msg); err != nil {
			b.logger.Warn("failed to publish eviction",
				zap.Int("worker", id),
				zap.String("class", msg.Class),
				zap.Error(err))
		}
	}
}

func (b *Broadcaster) publish(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(b.ctx, b.opts.PublishTimeout)
	defer cancel()
	return b.client.Publish(ctx, b.opts.Channel, payload).Err()
}

func (b *Broadcaster) listen(ch <-chan *redis.Message) {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			b.handle(m.Payload)
		}
	}
}

func (b *Broadcaster) handle(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Warn("ignoring malformed eviction message", zap.Error(err))
		return
	}
	if msg.Origin == b.origin || msg.Unit != b.opts.Unit {
		return
	}
	b.apply(msg)
}

func (b *Broadcaster) apply(msg Message) {
	if msg.Class == "" {
		b.logger.Debug("applying remote clear", zap.String("from", msg.Origin))
		b.repo.EvictAll(b)
		return
	}
	removed := b.repo.EvictNamed(msg.Class, b)
	b.logger.Debug("applying remote eviction",
		zap.String("class", msg.Class),
		zap.String("from", msg.Origin),
		zap.Bool("removed", removed))
}

// Close stops listening, publishes the evictions already queued and waits
// for the workers to exit.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return nil
	}
	b.shutdown = true
	started := b.started
	close(b.tasks)
	b.mu.Unlock()

	var err error
	if started {
		err = b.pubsub.Close()
	}
	b.wg.Wait()
	b.cancel()
	return err
}
