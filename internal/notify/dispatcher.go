package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config controls the dispatcher's queue and retry behavior.
type Config struct {
	QueueSize   int    `json:"queue_size"`
	MaxAttempts int    `json:"max_attempts"`
	RetryDelay  string `json:"retry_delay"`
}

// DefaultConfig returns the stock dispatcher settings.
func DefaultConfig() Config {
	return Config{
		QueueSize:   256,
		MaxAttempts: 3,
		RetryDelay:  "30s",
	}
}

type delivery struct {
	event    Event
	channel  Channel
	logID    string
	attempts int
}

// Dispatcher queues notifications and delivers them to every registered
// channel. Delivery failures are retried a bounded number of times; when
// the queue is full new deliveries are dropped and logged rather than
// blocking the caller.
type Dispatcher struct {
	mu          sync.Mutex
	channels    []Channel
	subscribers []func(Event)

	queue       chan delivery
	maxAttempts int
	retryDelay  time.Duration

	db *sql.DB // optional delivery log

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher from config. Pass a non-nil db to
// record deliveries in the notification_log table.
func NewDispatcher(cfg Config, db *sql.DB) (*Dispatcher, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	retryDelay := 30 * time.Second
	if cfg.RetryDelay != "" {
		d, err := time.ParseDuration(cfg.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("retry_delay: %w", err)
		}
		retryDelay = d
	}

	return &Dispatcher{
		queue:       make(chan delivery, cfg.QueueSize),
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  retryDelay,
		db:          db,
	}, nil
}

// AddChannel registers a delivery channel.
func (d *Dispatcher) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}

// Subscribe registers an in-process callback invoked for every event.
// Callbacks must not block; the websocket hub uses this to push events.
func (d *Dispatcher) Subscribe(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, fn)
}

// Start launches the delivery worker. Stop the dispatcher by cancelling
// the context or calling Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.run()
	log.Printf("[Notify] Dispatcher started (queue=%d, max_attempts=%d)", cap(d.queue), d.maxAttempts)
}

// Stop cancels the worker and waits for in-flight deliveries.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Notify satisfies the approval gate's Notifier interface. The reference
// is typically an approval request or job ID.
func (d *Dispatcher) Notify(message string, reference string) {
	event := Event{
		ID:        uuid.New().String(),
		Message:   message,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	}

	d.mu.Lock()
	subscribers := append(([]func(Event))(nil), d.subscribers...)
	channels := append([]Channel(nil), d.channels...)
	d.mu.Unlock()

	for _, fn := range subscribers {
		notifySubscriber(fn, event)
	}

	for _, ch := range channels {
		dl := delivery{event: event, channel: ch, logID: uuid.New().String()}
		d.logCreate(dl)
		d.enqueue(dl)
	}
}

// notifySubscriber shields the dispatcher from a misbehaving callback. A
// panic in one subscriber never reaches the state transition that raised
// the event.
func notifySubscriber(fn func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Notify] Subscriber panicked: %v", r)
		}
	}()
	fn(event)
}

// enqueue adds a delivery without blocking; a full queue drops it.
func (d *Dispatcher) enqueue(dl delivery) {
	select {
	case d.queue <- dl:
	default:
		log.Printf("[Notify] Queue full, dropping notification %s for %s", dl.event.ID, dl.channel.Name())
		d.logFailure(dl, "queue full")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case dl := <-d.queue:
			d.deliver(dl)
		}
	}
}

func (d *Dispatcher) deliver(dl delivery) {
	dl.attempts++

	ctx, cancel := context.WithTimeout(d.ctx, 15*time.Second)
	err := dl.channel.Send(ctx, dl.event.Message)
	cancel()

	if err == nil {
		d.logDelivered(dl)
		return
	}

	log.Printf("[Notify] Delivery to %s failed (attempt %d/%d): %v",
		dl.channel.Name(), dl.attempts, d.maxAttempts, err)

	if dl.attempts >= d.maxAttempts {
		d.logFailure(dl, err.Error())
		return
	}

	// Requeue after the retry delay without blocking the worker.
	retry := dl
	time.AfterFunc(d.retryDelay, func() {
		select {
		case <-d.ctx.Done():
		default:
			d.enqueue(retry)
		}
	})
}

func (d *Dispatcher) logCreate(dl delivery) {
	if d.db == nil {
		return
	}
	_, err := d.db.Exec(`
		INSERT INTO notification_log (id, channel, reference, message, status, attempts)
		VALUES (?, ?, ?, ?, 'pending', 0)
	`, dl.logID, dl.channel.Name(), dl.event.Reference, dl.event.Message)
	if err != nil {
		log.Printf("[Notify] Failed to record notification %s: %v", dl.logID, err)
	}
}

func (d *Dispatcher) logDelivered(dl delivery) {
	if d.db == nil {
		return
	}
	_, err := d.db.Exec(`
		UPDATE notification_log
		SET status = 'delivered', attempts = ?, delivered_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, dl.attempts, dl.logID)
	if err != nil {
		log.Printf("[Notify] Failed to update notification %s: %v", dl.logID, err)
	}
}

func (d *Dispatcher) logFailure(dl delivery, reason string) {
	if d.db == nil {
		return
	}
	_, err := d.db.Exec(`
		UPDATE notification_log
		SET status = 'failed', attempts = ?, last_error = ?
		WHERE id = ?
	`, dl.attempts, reason, dl.logID)
	if err != nil {
		log.Printf("[Notify] Failed to update notification %s: %v", dl.logID, err)
	}
}
