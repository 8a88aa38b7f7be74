package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventBridge struct {
	input *eventbridge.PutEventsInput
	out   *eventbridge.PutEventsOutput
	err   error
}

func (f *fakeEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.input = in
	if f.out == nil {
		f.out = &eventbridge.PutEventsOutput{}
	}
	return f.out, f.err
}

func TestEventBridge_Publish(t *testing.T) {
	fake := &fakeEventBridge{}
	p := NewEventBridge(fake, "vista-bus", "vista.staging")
	idx := 2

	err := p.Publish(context.Background(), Event{
		Type:       TypeImageGenerated,
		SessionID:  "vs_0123456789ab",
		ImageIndex: &idx,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, fake.input.Entries, 1)
	entry := fake.input.Entries[0]
	assert.Equal(t, "vista-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, "vista.staging", aws.ToString(entry.Source))
	assert.Equal(t, TypeImageGenerated, aws.ToString(entry.DetailType))

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "vs_0123456789ab", detail["session_id"])
	assert.Equal(t, float64(2), detail["image_index"])
	assert.NotContains(t, detail, "property_id")
}

func TestEventBridge_PublishErrors(t *testing.T) {
	fake := &fakeEventBridge{err: errors.New("throttled")}
	err := NewEventBridge(fake, "b", "s").Publish(context.Background(), Event{Type: TypeImageSaved})
	assert.ErrorContains(t, err, "throttled")

	fake = &fakeEventBridge{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries: []eventbridgetypes.PutEventsResultEntry{{
			ErrorCode:    aws.String("InternalFailure"),
			ErrorMessage: aws.String("boom"),
		}},
	}}
	err = NewEventBridge(fake, "b", "s").Publish(context.Background(), Event{Type: TypeImageSaved})
	assert.ErrorContains(t, err, "InternalFailure")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_ = r.Publish(context.Background(), Event{Type: TypeSessionCreated})
	_ = r.Publish(context.Background(), Event{Type: TypeSessionDeleted})
	assert.Equal(t, []string{TypeSessionCreated, TypeSessionDeleted}, r.Types())
	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}
