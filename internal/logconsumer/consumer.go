package logconsumer

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"helicase/internal/events"
	"helicase/internal/logging"
)

// Consumer drains the logging topic, emitting one log record per
// message. It never back-pressures the bus beyond its subscriber
// buffer: draining is the only thing it does.
type Consumer struct {
	logger *slog.Logger
	in     <-chan events.Envelope
	wg     sync.WaitGroup
}

// New constructs a consumer over the given subscription.
func New(logger *slog.Logger, in <-chan events.Envelope) *Consumer {
	return &Consumer{
		logger: logging.NewComponentLogger(logger, "events"),
		in:     in,
	}
}

// Start launches the drain loop; it exits when the subscription closes.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for env := range c.in {
			c.consume(ctx, env)
		}
	}()
}

// Wait blocks until the drain loop has exited.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) consume(ctx context.Context, env events.Envelope) {
	record, ok := env.Payload.(events.LogRecord)
	if !ok {
		// Non-log payloads routed here still deserve a trace.
		c.logger.Debug(string(env.Payload.Kind()),
			logging.String(logging.FieldTopic, string(env.Topic)),
		)
		return
	}

	attrs := make([]logging.Attr, 0, len(record.Fields))
	keys := make([]string, 0, len(record.Fields))
	for key := range record.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attrs = append(attrs, logging.String(key, record.Fields[key]))
	}
	c.logger.Log(ctx, record.Level, record.Message, logging.Args(attrs...)...)
}
