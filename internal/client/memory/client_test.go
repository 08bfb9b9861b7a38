package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/workdone-progress/internal/protocol"
)

func TestClientAckResolvesCreate(t *testing.T) {
	t.Parallel()

	c := New()
	ch := c.CreateProgress(context.Background(), protocol.WorkDoneProgressCreateParams{Token: "a"})
	select {
	case <-ch:
		t.Fatal("create resolved before Ack")
	default:
	}
	require.True(t, c.Ack("a", nil))
	require.NoError(t, <-ch)
	require.False(t, c.Ack("a", nil))
	require.Equal(t, []string{"a"}, c.Creates())
}

func TestClientAutoAck(t *testing.T) {
	t.Parallel()

	c := NewAutoAck()
	ch := c.CreateProgress(context.Background(), protocol.WorkDoneProgressCreateParams{Token: "b"})
	require.NoError(t, <-ch)
}

func TestClientRecordsNotifications(t *testing.T) {
	t.Parallel()

	c := New()
	ctx := context.Background()
	require.NoError(t, c.NotifyProgress(ctx, protocol.ProgressParams{Token: "x", Value: protocol.End()}))
	require.NoError(t, c.NotifyProgress(ctx, protocol.ProgressParams{Token: "y", Value: protocol.End()}))
	require.NoError(t, c.SendProgressReport(ctx, protocol.ProgressReport{ID: "x"}))
	require.NoError(t, c.SendStatusReport(ctx, protocol.StatusReport{Type: protocol.StatusStarting}))

	require.Len(t, c.Progress(), 2)
	require.Equal(t, []protocol.WorkDoneProgress{protocol.End()}, c.ProgressFor("x"))
	require.Len(t, c.ProgressReports(), 1)
	require.Len(t, c.StatusReports(), 1)

	boom := errors.New("boom")
	c.FailNotifications(boom)
	require.ErrorIs(t, c.NotifyProgress(ctx, protocol.ProgressParams{Token: "x"}), boom)
	require.Len(t, c.ProgressFor("x"), 2)
}
