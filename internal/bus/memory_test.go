package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversToSubscribers(t *testing.T) {
	b := NewMemoryBus()

	var got []string
	require.NoError(t, b.Subscribe("a/topic", AtLeastOnce, func(msg Message) {
		got = append(got, string(msg.Payload))
	}))

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "a/topic", []byte("one"), AtLeastOnce))
	require.NoError(t, b.Publish(ctx, "a/topic", []byte("two"), BestEffort))
	require.NoError(t, b.Publish(ctx, "other", []byte("elsewhere"), BestEffort))

	require.Equal(t, []string{"one", "two"}, got)

	require.Len(t, b.Messages("a/topic"), 2)
	require.Len(t, b.Messages("other"), 1)
	require.Empty(t, b.Messages("silent"))
	require.ElementsMatch(t, []string{"a/topic", "other"}, b.Topics())
}

func TestMemoryBusPayloadIsCopied(t *testing.T) {
	b := NewMemoryBus()
	payload := []byte("original")
	require.NoError(t, b.Publish(context.Background(), "t", payload, BestEffort))

	payload[0] = 'X'
	require.Equal(t, "original", string(b.Messages("t")[0].Payload))
}

func TestMemoryBusClosedRejectsPublish(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())
	require.Error(t, b.Publish(context.Background(), "t", []byte("x"), BestEffort))
}

func TestTopicLayout(t *testing.T) {
	require.Equal(t, "/exercise/gps/control", ControlTopic("gps"))
	require.Equal(t, "/exercise/gps/timer", TimerTopic("gps"))
	require.Equal(t, "/exercise/gps/team/alpha/feed", FeedTopic("gps", "alpha"))
}
