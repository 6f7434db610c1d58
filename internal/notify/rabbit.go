package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitConfig holds the configuration for RabbitMQ
type RabbitConfig struct {
	URL      string
	Exchange string
}

// RabbitClient is a wrapper around a RabbitMQ connection. It declares the
// shop's topic exchange and the notification queues on startup, publishes
// persistent JSON messages, and runs consumers with manual ack/nack.
type RabbitClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  RabbitConfig
}

// NewRabbitClient creates a new RabbitMQ client with connection retry.
func NewRabbitClient(config RabbitConfig) (*RabbitClient, error) {
	if config.Exchange == "" {
		config.Exchange = ShopExchange
	}

	var conn *amqp.Connection
	var err error

	// Retry connection up to 5 times with exponential backoff
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(config.URL)
		if err == nil {
			break
		}
		retryTime := time.Duration(i*i)*time.Second + time.Second
		log.Printf("Failed to connect to RabbitMQ, retrying in %v: %v", retryTime, err)
		time.Sleep(retryTime)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		config.Exchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", config.Exchange, err)
	}

	queues := []string{LowStockQueue, DailyReportQueue}
	routingKeys := []string{LowStockRoutingKey, DailyReportRoutingKey}

	for i, queueName := range queues {
		q, err := channel.QueueDeclare(
			queueName, // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
		}

		err = channel.QueueBind(
			q.Name,          // queue name
			routingKeys[i],  // routing key
			config.Exchange, // exchange
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to bind queue %s to exchange %s: %w",
				queueName, config.Exchange, err)
		}
	}

	return &RabbitClient{conn: conn, channel: channel, config: config}, nil
}

// Close closes the RabbitMQ connection and channel.
func (c *RabbitClient) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			return err
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Publish publishes a message to the specified routing key.
func (c *RabbitClient) Publish(ctx context.Context, routingKey string, message any) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.channel.PublishWithContext(
		ctx,
		c.config.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         messageBytes,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message to exchange %s with routing key %s: %w",
			c.config.Exchange, routingKey, err)
	}
	return nil
}

// Consume sets up a consumer for the specified queue. The handler is
// called once per delivery; a handler error nacks the message back onto
// the queue for redelivery.
func (c *RabbitClient) Consume(queueName string, handler func([]byte) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Limit unacknowledged messages so a slow mailer does not hoard work.
	err = ch.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to start consuming from queue %s: %w", queueName, err)
	}

	go func() {
		defer ch.Close()
		for msg := range msgs {
			if err := handler(msg.Body); err != nil {
				log.Printf("Error handling message from %s: %v", queueName, err)
				msg.Nack(false, true)
			} else {
				msg.Ack(false)
			}
		}
	}()

	log.Printf("Consuming from queue %s", queueName)
	return nil
}
