package jobs

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"

	"github.com/bejimenez/magus/internal/domain"
)

// PubSubNamePublisher publishes name events to a Pub/Sub topic.
type PubSubNamePublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNamePublisher constructs a Pub/Sub backed name event publisher.
func NewPubSubNamePublisher(topic *pubsub.Topic) (*PubSubNamePublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub name publisher: topic is required")
	}
	return &PubSubNamePublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishNameEvent sends event and waits for the server-assigned message ID.
func (p *PubSubNamePublisher) PublishNameEvent(ctx context.Context, event domain.NameEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub name publisher: not initialised")
	}
	if strings.TrimSpace(event.EventID) == "" {
		event.EventID = ulid.MustNew(ulid.Now(), rand.Reader).String()
	}
	if event.Type == "" {
		event.Type = domain.NameEventGenerated
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal name event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.EventID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "culture", event.Culture)
	setAttr(attrs, "gender", string(event.Gender))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish name event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubNamePublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
