package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fakeRecipients struct {
	prefs map[int64]alert.Preferences
	err   error
}

func (f *fakeRecipients) ActiveByPincode(context.Context) (map[string][]int64, error) {
	return nil, nil
}

func (f *fakeRecipients) Preferences(_ context.Context, chatID int64) (alert.Preferences, error) {
	if f.err != nil {
		return alert.Preferences{}, f.err
	}
	return f.prefs[chatID], nil
}

func (f *fakeRecipients) ByFrequency(context.Context, alert.AlertFrequency) ([]int64, error) {
	return nil, nil
}

func (f *fakeRecipients) ExpireSubscriptions(context.Context) (int64, error) { return 0, nil }
func (f *fakeRecipients) ResumeDuePauses(context.Context) (int64, error)     { return 0, nil }

type queuedCall struct {
	chatID  int64
	pincode string
	inStock []alert.Product
	soldOut []alert.Product
}

type fakePending struct {
	queued []queuedCall
	err    error
}

func (f *fakePending) Queue(_ context.Context, chatID int64, pincode string, inStock, soldOut []alert.Product) error {
	if f.err != nil {
		return f.err
	}
	f.queued = append(f.queued, queuedCall{chatID: chatID, pincode: pincode, inStock: inStock, soldOut: soldOut})
	return nil
}

func (f *fakePending) Unsent(context.Context, int64, int) ([]alert.PendingAlert, error) {
	return nil, nil
}

func (f *fakePending) MarkSent(context.Context, int64) (int64, error) { return 0, nil }
func (f *fakePending) Clear(context.Context, int64) (int64, error)    { return 0, nil }

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSink struct {
	sent []sentMessage
	err  error
}

func (f *fakeSink) Send(_ context.Context, chatID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func changeSet() alert.ChangeSet {
	return alert.ChangeSet{
		Changed: true,
		InStock: []alert.Product{{Title: "Whey", ID: "/p/whey"}},
		SoldOut: []alert.Product{{Title: "Lassi", ID: "/p/lassi"}},
	}
}

func noon() fixedClock {
	return fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestRouteInstantRecipientGetsImmediateSend(t *testing.T) {
	t.Parallel()

	recipients := &fakeRecipients{prefs: map[int64]alert.Preferences{
		42: {Frequency: alert.FrequencyInstant},
	}}
	pending := &fakePending{}
	sink := &fakeSink{}
	rtr := New(recipients, pending, sink, noon(), time.UTC, nil)

	err := rtr.Route(context.Background(), []int64{42}, "411001", changeSet())
	require.NoError(t, err)

	require.Len(t, sink.sent, 1)
	require.Equal(t, int64(42), sink.sent[0].chatID)
	require.Contains(t, sink.sent[0].text, "Stock Update for 411001")
	require.Contains(t, sink.sent[0].text, "[Whey](/p/whey)")
	require.Empty(t, pending.queued)
}

func TestRouteDigestFrequencyDefers(t *testing.T) {
	t.Parallel()

	for _, freq := range []alert.AlertFrequency{alert.FrequencyHourly, alert.FrequencyDaily} {
		recipients := &fakeRecipients{prefs: map[int64]alert.Preferences{
			42: {Frequency: freq},
		}}
		pending := &fakePending{}
		sink := &fakeSink{}
		rtr := New(recipients, pending, sink, noon(), time.UTC, nil)

		err := rtr.Route(context.Background(), []int64{42}, "411001", changeSet())
		require.NoError(t, err)

		require.Empty(t, sink.sent, "frequency %s", freq)
		require.Len(t, pending.queued, 1, "frequency %s", freq)
		require.Equal(t, int64(42), pending.queued[0].chatID)
		require.Len(t, pending.queued[0].inStock, 1)
		require.Len(t, pending.queued[0].soldOut, 1)
	}
}

func TestRouteQuietHoursDefer(t *testing.T) {
	t.Parallel()

	prefs := alert.Preferences{
		Frequency:  alert.FrequencyInstant,
		QuietStart: "22:00:00",
		QuietEnd:   "08:00:00",
	}

	tests := []struct {
		name      string
		now       time.Time
		wantQueue bool
	}{
		{name: "inside window before midnight", now: time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC), wantQueue: true},
		{name: "inside window after midnight", now: time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC), wantQueue: true},
		{name: "outside window", now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), wantQueue: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			recipients := &fakeRecipients{prefs: map[int64]alert.Preferences{42: prefs}}
			pending := &fakePending{}
			sink := &fakeSink{}
			rtr := New(recipients, pending, sink, fixedClock{now: tc.now}, time.UTC, nil)

			err := rtr.Route(context.Background(), []int64{42}, "411001", changeSet())
			require.NoError(t, err)

			if tc.wantQueue {
				require.Empty(t, sink.sent)
				require.Len(t, pending.queued, 1)
			} else {
				require.Len(t, sink.sent, 1)
				require.Empty(t, pending.queued)
			}
		})
	}
}

func TestRouteQuietHoursUseConfiguredTimezone(t *testing.T) {
	t.Parallel()

	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	recipients := &fakeRecipients{prefs: map[int64]alert.Preferences{
		42: {Frequency: alert.FrequencyInstant, QuietStart: "22:00:00", QuietEnd: "08:00:00"},
	}}
	pending := &fakePending{}
	sink := &fakeSink{}
	// 18:00 UTC is 23:30 IST, inside the window.
	clock := fixedClock{now: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)}
	rtr := New(recipients, pending, sink, clock, ist, nil)

	err = rtr.Route(context.Background(), []int64{42}, "411001", changeSet())
	require.NoError(t, err)
	require.Empty(t, sink.sent)
	require.Len(t, pending.queued, 1)
}

func TestRoutePausedRecipientIsSkipped(t *testing.T) {
	t.Parallel()

	recipients := &fakeRecipients{prefs: map[int64]alert.Preferences{
		42: {Frequency: alert.FrequencyInstant, Paused: true},
	}}
	pending := &fakePending{}
	sink := &fakeSink{}
	rtr := New(recipients, pending, sink, noon(), time.UTC, nil)

	err := rtr.Route(context.Background(), []int64{42}, "411001", changeSet())
	require.NoError(t, err)
	require.Empty(t, sink.sent)
	require.Empty(t, pending.queued)
}

func TestRouteOneFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	recipients := &fakeRecipients{prefs: map[int64]alert.Preferences{
		1: {Frequency: alert.FrequencyInstant},
		2: {Frequency: alert.FrequencyInstant},
	}}
	pending := &fakePending{}
	sendErr := errors.New("telegram down")
	sink := &flakySink{failFor: 1, err: sendErr}
	rtr := New(recipients, pending, sink, noon(), time.UTC, nil)

	err := rtr.Route(context.Background(), []int64{1, 2}, "411001", changeSet())
	require.ErrorIs(t, err, sendErr)
	require.Equal(t, []int64{2}, sink.delivered)
}

// flakySink fails sends for one specific chat and delivers the rest.
type flakySink struct {
	failFor   int64
	err       error
	delivered []int64
}

func (f *flakySink) Send(_ context.Context, chatID int64, _ string) error {
	if chatID == f.failFor {
		return f.err
	}
	f.delivered = append(f.delivered, chatID)
	return nil
}

func TestFormatChangeMessageSections(t *testing.T) {
	t.Parallel()

	msg := FormatChangeMessage("411001",
		[]alert.Product{{Title: "Whey", ID: "/p/whey"}},
		[]alert.Product{{Title: "Lassi", ID: "/p/lassi"}},
	)

	require.True(t, strings.HasPrefix(msg, "*Stock Update for 411001*"))
	require.Contains(t, msg, "✅ *Now IN STOCK*")
	require.Contains(t, msg, "❌ *Now SOLD OUT*")
	require.Contains(t, msg, "• [Whey](/p/whey)")
	require.Contains(t, msg, "• [Lassi](/p/lassi)")

	onlyStock := FormatChangeMessage("411001", []alert.Product{{Title: "Whey", ID: "/p/whey"}}, nil)
	require.NotContains(t, onlyStock, "SOLD OUT")
}

func TestFormatDigestMessageGroupsByState(t *testing.T) {
	t.Parallel()

	msg := FormatDigestMessage([]alert.PendingAlert{
		{ProductTitle: "Whey", ProductID: "/p/whey", State: alert.StateInStock},
		{ProductTitle: "Lassi", ProductID: "/p/lassi", State: alert.StateSoldOut},
		{ProductTitle: "Shake", ProductID: "/p/shake", State: alert.StateInStock},
	})

	require.True(t, strings.HasPrefix(msg, "*Your Stock Digest*"))
	require.Contains(t, msg, "✅ *Back IN STOCK*")
	require.Contains(t, msg, "❌ *Went SOLD OUT*")
	require.Contains(t, msg, "• [Shake](/p/shake)")
}
