// Copyright 2026 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/prometheus/snmp_ifpoller/config"
)

// publisher is the subset of *amqp.Channel used by AMQP.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes each batch as one JSON message and waits for the broker
// to confirm it.
type AMQP struct {
	conn       *amqp.Connection
	ch         publisher
	confirms   <-chan amqp.Confirmation
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// Batch is the JSON body of a published message.
type Batch struct {
	Points []Point `json:"points"`
}

func DialAMQP(cfg config.AMQPConfig, logger *slog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(string(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &AMQP{
		conn:       conn,
		ch:         ch,
		confirms:   confirms,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

func (s *AMQP) Write(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	msg, err := newPublishing(points)
	if err != nil {
		return err
	}
	if err := s.ch.Publish(s.exchange, s.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	select {
	case c, ok := <-s.confirms:
		if !ok {
			return errors.New("amqp channel closed before the publish was confirmed")
		}
		if !c.Ack {
			return fmt.Errorf("amqp broker rejected delivery %d", c.DeliveryTag)
		}
	case <-ctx.Done():
		return fmt.Errorf("waiting for amqp confirm: %w", ctx.Err())
	}
	s.logger.Debug("Published points", "points", len(points), "exchange", s.exchange, "routing_key", s.routingKey)
	return nil
}

func (s *AMQP) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func newPublishing(points []Point) (amqp.Publishing, error) {
	body, err := json.Marshal(Batch{Points: points})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encoding batch: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}, nil
}
