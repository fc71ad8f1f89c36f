package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vaibhav7k/amul-stock-alert-bot/internal/alert"
)

// RecipientStore reads subscriber rows owned by the bot-command layer.
// The only writes it performs are the subscription-expiry sweep and the
// pause-expiry auto-resume.
type RecipientStore struct {
	db    DB
	clock alert.Clock
}

// NewRecipientStore builds a recipient reader over the given pool.
func NewRecipientStore(db DB, clock alert.Clock) (*RecipientStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &RecipientStore{db: db, clock: clock}, nil
}

// ActiveByPincode maps each pincode to the chat IDs subscribed to it.
// Paused recipients and recipients without a pincode do not participate.
func (s *RecipientStore) ActiveByPincode(ctx context.Context) (map[string][]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT chat_id, pincode FROM users
		 WHERE subscription_status = 'active'
		   AND pincode IS NOT NULL
		   AND COALESCE(is_paused, FALSE) = FALSE`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active recipients: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]int64)
	for rows.Next() {
		var (
			chatID  int64
			pincode string
		)
		if err := rows.Scan(&chatID, &pincode); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out[pincode] = append(out[pincode], chatID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return out, nil
}

// Preferences returns a recipient's delivery settings, defaulting to
// instant frequency with no quiet hours.
func (s *RecipientStore) Preferences(ctx context.Context, chatID int64) (alert.Preferences, error) {
	var (
		prefs      alert.Preferences
		freq       string
		pauseUntil *time.Time
	)
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(alert_frequency, 'instant'),
		        COALESCE(to_char(quiet_hours_start, 'HH24:MI:SS'), ''),
		        COALESCE(to_char(quiet_hours_end, 'HH24:MI:SS'), ''),
		        COALESCE(is_paused, FALSE),
		        pause_until
		 FROM users WHERE chat_id = $1`,
		chatID,
	).Scan(&freq, &prefs.QuietStart, &prefs.QuietEnd, &prefs.Paused, &pauseUntil)
	if err != nil {
		return alert.Preferences{}, fmt.Errorf("get recipient preferences: %w", err)
	}
	prefs.Frequency = alert.AlertFrequency(freq)
	prefs.PauseUntil = pauseUntil
	return prefs, nil
}

// ByFrequency returns active recipients with the given alert frequency.
func (s *RecipientStore) ByFrequency(ctx context.Context, freq alert.AlertFrequency) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT chat_id FROM users
		 WHERE alert_frequency = $1 AND subscription_status = 'active'`,
		string(freq),
	)
	if err != nil {
		return nil, fmt.Errorf("list recipients by frequency: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, chatID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return out, nil
}

// ExpireSubscriptions marks overdue active subscriptions expired and
// returns the affected count.
func (s *RecipientStore) ExpireSubscriptions(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET subscription_status = 'expired'
		 WHERE subscription_status = 'active'
		   AND end_date IS NOT NULL AND end_date < $1`,
		s.clock.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResumeDuePauses un-pauses recipients whose pause window has lapsed
// and returns the affected count.
func (s *RecipientStore) ResumeDuePauses(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET is_paused = FALSE, pause_until = NULL
		 WHERE is_paused = TRUE AND pause_until <= $1`,
		s.clock.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("resume due pauses: %w", err)
	}
	return tag.RowsAffected(), nil
}
