package intake

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/internal/store"
)

// leadEvent is the message body on the lead queue. Either an explicit
// handle/platform pair or free-form text to extract handles from.
type leadEvent struct {
	Handle   string `json:"handle,omitempty"`
	Platform string `json:"platform,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Consumer reads lead submissions from an AMQP queue and feeds them through
// the pipeline.
type Consumer struct {
	url       string
	queueName string
	store     store.Store
	processor Processor
	log       *zap.Logger
}

// NewConsumer creates an AMQP lead consumer.
func NewConsumer(url, queueName string, st store.Store, proc Processor, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.L()
	}
	return &Consumer{
		url:       url,
		queueName: queueName,
		store:     st,
		processor: proc,
		log:       log,
	}
}

// Run consumes until the context is canceled or the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return eris.Wrap(err, "intake: amqp dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return eris.Wrap(err, "intake: amqp channel")
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return eris.Wrapf(err, "intake: declare queue %s", c.queueName)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return eris.Wrap(err, "intake: set qos")
	}

	deliveries, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return eris.Wrapf(err, "intake: consume %s", c.queueName)
	}

	c.log.Info("consuming lead events", zap.String("queue", c.queueName))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return eris.New("intake: delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var ev leadEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.log.Warn("dropping malformed lead event", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	candidates := c.candidates(ev)
	if len(candidates) == 0 {
		c.log.Warn("lead event contained no valid handles")
		_ = d.Nack(false, false)
		return
	}

	for _, cand := range candidates {
		lead, err := Resolve(ctx, c.store, cand, model.SourceEvent)
		if err != nil {
			c.log.Error("resolve failed", zap.String("handle", cand.Handle), zap.Error(err))
			_ = d.Nack(false, true) // requeue; the store may recover
			return
		}
		if _, err := c.processor.Process(ctx, lead); err != nil {
			c.log.Error("processing failed", zap.String("lead_id", lead.ID), zap.Error(err))
			_ = d.Nack(false, true)
			return
		}
	}
	_ = d.Ack(false)
}

func (c *Consumer) candidates(ev leadEvent) []Candidate {
	if ev.Handle != "" {
		if cand, ok := ParseCandidate(ev.Handle, ev.Platform); ok {
			return []Candidate{cand}
		}
		return nil
	}
	return ExtractCandidates(ev.Text)
}
