package notifybus_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schoolplane/platform/business/domain/notifybus"
	"github.com/schoolplane/platform/business/sdk/sqldb"
	"github.com/schoolplane/platform/foundation/logger"
	"github.com/stretchr/testify/require"
)

func Test_Enqueue(t *testing.T) {
	storer := &fakeStorer{}
	core := notifybus.NewCore(logger.New(io.Discard, logger.LevelInfo, "TEST", nil), storer)

	tenantID := uuid.New()

	n, err := core.Enqueue(context.Background(), notifybus.NewNotification{
		TenantID:  tenantID,
		Recipient: "owner@acme.test",
		Template:  notifybus.TemplateTrialStarted,
		Payload:   map[string]string{"trial_days": "7"},
	})
	require.NoError(t, err)

	require.Equal(t, notifybus.StatusPending, n.Status)
	require.Equal(t, notifybus.ChannelEmail, n.Channel)
	require.Equal(t, tenantID, n.TenantID)
	require.Len(t, storer.created, 1)
}

func Test_Dispatch(t *testing.T) {
	storer := &fakeStorer{
		pending: []notifybus.Notification{
			pendingNotification("owner@acme.test"),
			pendingNotification("owner@bounce.test"),
			pendingNotification("owner@bv.test"),
		},
	}
	core := notifybus.NewCore(logger.New(io.Discard, logger.LevelInfo, "TEST", nil), storer)

	deliver := func(ctx context.Context, n notifybus.Notification) error {
		if n.Recipient == "owner@bounce.test" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}

	sent, failed, err := core.Dispatch(context.Background(), deliver, 10)
	require.NoError(t, err)

	require.Equal(t, 2, sent)
	require.Equal(t, 1, failed)
	require.Len(t, storer.updated, 3)

	byRecipient := make(map[string]notifybus.Notification)
	for _, n := range storer.updated {
		byRecipient[n.Recipient] = n
	}

	require.Equal(t, notifybus.StatusSent, byRecipient["owner@acme.test"].Status)
	require.NotNil(t, byRecipient["owner@acme.test"].SentAt)

	// The bounced row keeps the delivery error for inspection and retry.
	bounced := byRecipient["owner@bounce.test"]
	require.Equal(t, notifybus.StatusFailed, bounced.Status)
	require.Equal(t, "mailbox unavailable", bounced.FailReason)
	require.Nil(t, bounced.SentAt)
}

func Test_Dispatch_EmptyQueue(t *testing.T) {
	storer := &fakeStorer{}
	core := notifybus.NewCore(logger.New(io.Discard, logger.LevelInfo, "TEST", nil), storer)

	deliver := func(ctx context.Context, n notifybus.Notification) error {
		t.Fatal("deliver must not run on an empty queue")
		return nil
	}

	sent, failed, err := core.Dispatch(context.Background(), deliver, 10)
	require.NoError(t, err)
	require.Zero(t, sent)
	require.Zero(t, failed)
}

// =============================================================================

func pendingNotification(recipient string) notifybus.Notification {
	return notifybus.Notification{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		Channel:   notifybus.ChannelEmail,
		Recipient: recipient,
		Template:  notifybus.TemplateGraceEntered,
		Status:    notifybus.StatusPending,
		CreatedAt: time.Now(),
	}
}

type fakeStorer struct {
	pending []notifybus.Notification
	created []notifybus.Notification
	updated []notifybus.Notification
}

func (f *fakeStorer) NewWithTx(tx sqldb.CommitRollbacker) (notifybus.Storer, error) {
	return f, nil
}

func (f *fakeStorer) Create(ctx context.Context, n notifybus.Notification) error {
	f.created = append(f.created, n)
	return nil
}

func (f *fakeStorer) Update(ctx context.Context, n notifybus.Notification) error {
	f.updated = append(f.updated, n)
	return nil
}

func (f *fakeStorer) QueryPending(ctx context.Context, limit int) ([]notifybus.Notification, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}
