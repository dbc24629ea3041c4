package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	job := RenderJob{Encoded: "Maria Santos|2021-00123|Computer Science|Student", Path: "assets/tokens/x.png"}
	msg, err := NewMessage(TypeRenderToken, job)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, TypeRenderToken, msg.Type)

	var decoded RenderJob
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	// The payload's separator characters survive the framing intact.
	assert.Equal(t, job, decoded)
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msg, err := NewMessage(TypeRenderToken, RenderJob{Encoded: "a|b|c|Guest", Path: "p.png"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	out, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case got := <-out:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, msg.Type, got.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemoryPublishCancelled(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	msg, err := NewMessage(TypeRenderToken, RenderJob{})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	// Buffer is full; a cancelled context unblocks the publisher.
	cancel()
	err = q.Publish(ctx, msg)
	assert.ErrorIs(t, err, context.Canceled)
}
