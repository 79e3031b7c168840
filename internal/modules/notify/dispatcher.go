// README: Fire-and-forget notification dispatcher. Callers enqueue and never wait on delivery.
package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"tripshare/internal/config"
	"tripshare/internal/types"
)

type Dispatcher struct {
	sender  Sender
	delay   time.Duration
	timeout time.Duration
	queue   chan Message
	log     *logrus.Logger
	now     func() time.Time

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewDispatcher(sender Sender, cfg config.NotifyConfig, log *logrus.Logger) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		sender:  sender,
		delay:   cfg.Delay,
		timeout: timeout,
		queue:   make(chan Message, size),
		log:     log,
		now:     time.Now,
	}
}

// Notify sends with the configured default delay.
func (d *Dispatcher) Notify(userID types.ID, title, body string) {
	d.Send(userID, title, body, d.delay)
}

// Send schedules a message. A non-positive delay enqueues immediately.
// When the queue is full the message is dropped and logged.
func (d *Dispatcher) Send(userID types.ID, title, body string, delay time.Duration) {
	msg := Message{UserID: userID, Title: title, Body: body, CreatedAt: d.now()}
	if delay <= 0 {
		d.enqueue(msg)
		return
	}
	time.AfterFunc(delay, func() { d.enqueue(msg) })
}

func (d *Dispatcher) enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.dropped.Add(1)
		d.log.WithFields(logrus.Fields{
			"user_id": msg.UserID,
			"title":   msg.Title,
		}).Warn("notification queue full, message dropped")
	}
}

// Run delivers queued messages until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			st := d.Stats()
			d.log.WithFields(logrus.Fields{
				"pending": len(d.queue),
				"sent":    st.Sent,
				"dropped": st.Dropped,
				"failed":  st.Failed,
			}).Info("notification dispatcher stopped")
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, msg); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"user_id": msg.UserID,
			"title":   msg.Title,
		}).Warn("notification delivery failed")
		d.failed.Add(1)
		return
	}
	d.sent.Add(1)
}

type Stats struct {
	Sent    int64
	Dropped int64
	Failed  int64
}

func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Dropped: d.dropped.Load(), Failed: d.failed.Load()}
}
