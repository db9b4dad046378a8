// Package events publishes task lifecycle events for downstream consumers
// such as audit trails or reminders.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/biosecret/go-tasks/models"
)

type Type string

const (
	TaskCreated Type = "created"
	TaskUpdated Type = "updated"
	TaskDeleted Type = "deleted"
)

// TaskEvent is the payload published for every task mutation.
type TaskEvent struct {
	Type       Type         `json:"type"`
	TaskID     string       `json:"taskId"`
	OwnerID    string       `json:"ownerId"`
	Task       *models.Task `json:"task,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// Publisher delivers task events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event TaskEvent) error
	Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, TaskEvent) error { return nil }
func (Nop) Close()                                   {}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []TaskEvent
}

func (r *Recorder) Publish(_ context.Context, event TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() {}

func (r *Recorder) Events() []TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TaskEvent(nil), r.events...)
}

// MQTTPublisher publishes events to <prefix>/<ownerId>/<type> at QoS 1.
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
}

// NewMQTTPublisher connects to the broker in rawURL. The URL path, if any,
// becomes the topic prefix (tcp://broker:1883/tasks → "tasks/...").
func NewMQTTPublisher(rawURL, clientID string) (*MQTTPublisher, error) {
	uri, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt url: %w", err)
	}
	if uri.Host == "" {
		return nil, fmt.Errorf("mqtt url %q has no host", rawURL)
	}

	prefix := strings.Trim(uri.Path, "/")
	if prefix == "" {
		prefix = "tasks"
	}

	client := mqtt.NewClient(createClientOptions(clientID, uri))
	if err := connect(client, uri.Host, 5*time.Second); err != nil {
		return nil, err
	}

	return &MQTTPublisher{client: client, prefix: prefix, timeout: 3 * time.Second}, nil
}

// connect waits for the first connection. On failure the client is
// disconnected so auto-reconnect stops retrying.
func connect(client mqtt.Client, host string, wait time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(wait) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s timed out", host)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func createClientOptions(clientID string, uri *url.URL) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", uri.Host))
	if uri.User != nil {
		opts.SetUsername(uri.User.Username())
		if password, ok := uri.User.Password(); ok {
			opts.SetPassword(password)
		}
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	return opts
}

// Topic returns the topic an event is published on.
func (p *MQTTPublisher) Topic(event TaskEvent) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, event.OwnerID, event.Type)
}

func (p *MQTTPublisher) Publish(ctx context.Context, event TaskEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal task event: %w", err)
	}

	token := p.client.Publish(p.Topic(event), 1, false, payload)
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s timed out", p.Topic(event))
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
