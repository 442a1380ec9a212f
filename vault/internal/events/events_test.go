package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/common/messaging"
	"github.com/telhawk-systems/cardvault/common/middleware"
)

func TestBus_ReportAndSubscribe(t *testing.T) {
	client := messaging.NewLocalClient()
	bus := NewBus(client, logging.Discard().Logger)

	var got []Fault
	sub, err := bus.Subscribe(func(ctx context.Context, f Fault) {
		got = append(got, f)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ctx := middleware.WithSource(context.Background(), "http")
	require.NoError(t, bus.ReportError(ctx, errors.New("decrypt failed\nforged line")))
	require.NoError(t, bus.Report(ctx, KindRejection, "storage quota exceeded"))
	require.NoError(t, bus.ReportPanic(ctx, "nil map"))

	require.Len(t, got, 3)
	assert.Equal(t, KindError, got[0].Kind)
	assert.Equal(t, "decrypt failed forged line", got[0].Message)
	assert.Equal(t, "http", got[0].Source)
	assert.Equal(t, KindRejection, got[1].Kind)
	assert.Equal(t, "panic: nil map", got[2].Message)
}

func TestBus_KindFromSubject(t *testing.T) {
	client := messaging.NewLocalClient()
	bus := NewBus(client, nil)

	var got Fault
	_, err := bus.Subscribe(func(ctx context.Context, f Fault) { got = f })
	require.NoError(t, err)

	require.NoError(t, client.Publish(context.Background(), messaging.SubjectFaultsRejection, []byte(`{"message":"boom"}`)))
	assert.Equal(t, KindRejection, got.Kind)
	assert.Equal(t, "boom", got.Message)
}

func TestBus_MalformedFault(t *testing.T) {
	client := messaging.NewLocalClient()
	var handlerErr error
	client.OnHandlerError = func(subject string, err error) { handlerErr = err }
	bus := NewBus(client, logging.Discard().Logger)

	called := false
	_, err := bus.Subscribe(func(ctx context.Context, f Fault) { called = true })
	require.NoError(t, err)

	require.NoError(t, client.Publish(context.Background(), messaging.SubjectFaultsError, []byte("not json")))
	assert.False(t, called)
	assert.Error(t, handlerErr)
}

func TestBus_ReportOnClosedClient(t *testing.T) {
	client := messaging.NewLocalClient()
	require.NoError(t, client.Close())

	err := NewBus(client, nil).Report(context.Background(), KindError, "x")
	assert.ErrorIs(t, err, messaging.ErrClosed)
}

func TestBusNotifier(t *testing.T) {
	client := messaging.NewLocalClient()
	subjects := map[string]Notification{}
	_, err := client.Subscribe("vault.rollback.>", func(ctx context.Context, msg *messaging.Message) error {
		var n Notification
		require.NoError(t, json.Unmarshal(msg.Data, &n))
		subjects[msg.Subject] = n
		return nil
	})
	require.NoError(t, err)

	notifier := NewBusNotifier(client)
	require.NoError(t, notifier.Notify(context.Background(), Notification{
		Kind:    NotifyRollback,
		Message: "Security features disabled",
		Actions: []string{ActionDismiss, ActionRestore},
	}))
	require.NoError(t, notifier.Notify(context.Background(), Notification{Kind: NotifyRestored, Message: "restored"}))

	assert.Equal(t, []string{ActionDismiss, ActionRestore}, subjects[messaging.SubjectRollbackNotify].Actions)
	assert.Equal(t, "restored", subjects[messaging.SubjectRollbackRestored].Message)
}

type errNotifier struct{ err error }

func (n errNotifier) Notify(context.Context, Notification) error { return n.err }

func TestMultiNotifier(t *testing.T) {
	first := errors.New("first")
	m := MultiNotifier{errNotifier{first}, NewLogNotifier(logging.Discard().Logger), errNotifier{nil}}

	err := m.Notify(context.Background(), Notification{Kind: NotifyRollback})
	assert.ErrorIs(t, err, first)
	assert.NoError(t, MultiNotifier{}.Notify(context.Background(), Notification{}))
}
