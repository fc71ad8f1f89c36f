package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

func newRecipientMock(t *testing.T) (*RecipientStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store, err := NewRecipientStore(mock, fixedClock{now: now})
	require.NoError(t, err)
	return store, mock, now
}

func TestActiveByPincodeGroupsChatIDs(t *testing.T) {
	t.Parallel()

	store, mock, _ := newRecipientMock(t)

	mock.ExpectQuery("SELECT chat_id, pincode FROM users").
		WillReturnRows(pgxmock.NewRows([]string{"chat_id", "pincode"}).
			AddRow(int64(1), "411001").
			AddRow(int64(2), "411001").
			AddRow(int64(3), "560001"))

	byPincode, err := store.ActiveByPincode(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string][]int64{
		"411001": {1, 2},
		"560001": {3},
	}, byPincode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferencesDefaults(t *testing.T) {
	t.Parallel()

	store, mock, _ := newRecipientMock(t)

	mock.ExpectQuery("FROM users WHERE chat_id").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(
			[]string{"alert_frequency", "quiet_hours_start", "quiet_hours_end", "is_paused", "pause_until"},
		).AddRow("instant", "", "", false, nil))

	prefs, err := store.Preferences(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, alert.FrequencyInstant, prefs.Frequency)
	require.Empty(t, prefs.QuietStart)
	require.False(t, prefs.Paused)
	require.Nil(t, prefs.PauseUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferencesWithQuietHoursAndPause(t *testing.T) {
	t.Parallel()

	store, mock, now := newRecipientMock(t)
	pauseUntil := now.Add(24 * time.Hour)

	mock.ExpectQuery("FROM users WHERE chat_id").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(
			[]string{"alert_frequency", "quiet_hours_start", "quiet_hours_end", "is_paused", "pause_until"},
		).AddRow("daily", "22:00:00", "08:00:00", true, &pauseUntil))

	prefs, err := store.Preferences(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, alert.FrequencyDaily, prefs.Frequency)
	require.Equal(t, "22:00:00", prefs.QuietStart)
	require.Equal(t, "08:00:00", prefs.QuietEnd)
	require.True(t, prefs.Paused)
	require.NotNil(t, prefs.PauseUntil)
	require.True(t, prefs.PauseUntil.Equal(pauseUntil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestByFrequency(t *testing.T) {
	t.Parallel()

	store, mock, _ := newRecipientMock(t)

	mock.ExpectQuery("SELECT chat_id FROM users").
		WithArgs("hourly").
		WillReturnRows(pgxmock.NewRows([]string{"chat_id"}).
			AddRow(int64(7)).
			AddRow(int64(9)))

	chatIDs, err := store.ByFrequency(context.Background(), alert.FrequencyHourly)
	require.NoError(t, err)
	require.Equal(t, []int64{7, 9}, chatIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireSubscriptions(t *testing.T) {
	t.Parallel()

	store, mock, now := newRecipientMock(t)

	mock.ExpectExec("UPDATE users SET subscription_status").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	expired, err := store.ExpireSubscriptions(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), expired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeDuePauses(t *testing.T) {
	t.Parallel()

	store, mock, now := newRecipientMock(t)

	mock.ExpectExec("UPDATE users SET is_paused").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	resumed, err := store.ResumeDuePauses(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), resumed)
	require.NoError(t, mock.ExpectationsWereMet())
}
