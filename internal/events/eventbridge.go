package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

// EventBridgeAPI is the subset of *eventbridge.Client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridge publishes events to an EventBridge bus.
type EventBridge struct {
	client EventBridgeAPI
	bus    string
	source string
}

var _ Publisher = (*EventBridge)(nil)

func NewEventBridge(client EventBridgeAPI, bus, source string) *EventBridge {
	return &EventBridge{client: client, bus: bus, source: source}
}

func (p *EventBridge) Publish(ctx context.Context, e Event) error {
	detail, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Type, err)
	}

	input := &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.bus),
				Source:       aws.String(p.source),
				DetailType:   aws.String(e.Type),
				Detail:       aws.String(string(detail)),
				Resources:    []string{},
			},
		},
	}

	result, err := p.client.PutEvents(ctx, input)
	if err != nil {
		log.Error().Err(err).Str("sessionId", e.SessionID).Str("eventType", e.Type).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("sessionId", e.SessionID).
					Str("eventType", e.Type).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("sessionId", e.SessionID).Str("eventType", e.Type).Msg("Event published to EventBridge")
	return nil
}
