package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TurnJobMessage is the body of every queued turn job.
type TurnJobMessage struct {
	JobID string `json:"job_id"`
}

// DeclareTopology declares the turn queue with its retry and dead-letter
// companions. Publisher and worker both call it so their arguments match.
//
//	<queue>        -- nack(requeue=false) --> <queue>.dlq
//	<queue>.retry  -- message TTL ---------> <queue>
func DeclareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dlqQ, err)
	}
	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": mainQ,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", retryQ, err)
	}
	if _, err := ch.QueueDeclare(mainQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", mainQ, err)
	}
	return nil
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishTurnJob enqueues a persistent message for jobID.
func (p *Publisher) PublishTurnJob(ctx context.Context, jobID string) error {
	body, err := EncodeTurnJob(jobID)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

func EncodeTurnJob(jobID string) ([]byte, error) {
	return json.Marshal(TurnJobMessage{JobID: jobID})
}

// DecodeTurnJob parses a delivery body; a missing job id is an error.
func DecodeTurnJob(body []byte) (string, error) {
	var m TurnJobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return "", err
	}
	if m.JobID == "" {
		return "", fmt.Errorf("turn job message without job_id")
	}
	return m.JobID, nil
}
