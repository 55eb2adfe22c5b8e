package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"floorbot/internal/domain"
)

// CreateIncompleteEvent persists a new pending dialogue. Older pending
// dialogues for the same sender are abandoned in the same transaction, so a
// sender never has two open clarifications.
func (s *Store) CreateIncompleteEvent(ctx context.Context, rec *domain.IncompleteEventRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.Status = domain.IncompletePending
	rec.SenderDigits = domain.DigitsOnly(rec.SenderPhone)
	if rec.Answers == nil {
		rec.Answers = []string{}
	}

	questions, err := encodeJSON(rec.PendingQuestions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	answers, err := encodeJSON(rec.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	draft, err := encodeJSON(rec.Draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE incomplete_events SET status = ?, updated_at = ?
			 WHERE company_id = ? AND status = ? AND (sender_digits = ? OR (length(sender_digits) >= 10 AND substr(sender_digits, -10) = ?))`,
			string(domain.IncompleteAbandoned), now, rec.CompanyID, string(domain.IncompletePending),
			rec.SenderDigits, suffixKey(rec.SenderDigits),
		)
		if err != nil {
			return fmt.Errorf("abandon previous: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			log.Printf("store abandoned pending incomplete events company=%s sender=%s count=%d", rec.CompanyID, rec.SenderDigits, n)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO incomplete_events (id, company_id, communication_id, sender_phone, sender_digits,
				pending_questions, answers, status, draft, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.CompanyID, rec.CommunicationID, rec.SenderPhone, rec.SenderDigits,
			questions, answers, string(rec.Status), draft, rec.CreatedAt, rec.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("create incomplete event: %w", err)
	}
	return nil
}

// suffixKey returns the value compared against the stored 10-digit suffix.
// Short numbers get a key no stored suffix can equal.
func suffixKey(digits string) string {
	if len(digits) < domain.MinPhoneDigits {
		return "-"
	}
	return domain.PhoneSuffix(digits)
}

const incompleteColumns = `id, company_id, communication_id, sender_phone, sender_digits,
	pending_questions, answers, status, draft, created_at, updated_at`

// FindActiveIncomplete resolves the sender's most recent pending dialogue by
// exact phone digits, falling back to the last 10 digits.
func (s *Store) FindActiveIncomplete(ctx context.Context, companyID, phone string) (domain.IncompleteEventRecord, error) {
	digits := domain.DigitsOnly(phone)
	if digits == "" {
		return domain.IncompleteEventRecord{}, ErrNotFound
	}

	rec, err := s.scanIncomplete(s.db.QueryRowContext(ctx,
		`SELECT `+incompleteColumns+` FROM incomplete_events
		 WHERE company_id = ? AND status = ? AND sender_digits = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		companyID, string(domain.IncompletePending), digits,
	))
	if !errors.Is(err, ErrNotFound) || len(digits) < domain.MinPhoneDigits {
		return rec, err
	}

	return s.scanIncomplete(s.db.QueryRowContext(ctx,
		`SELECT `+incompleteColumns+` FROM incomplete_events
		 WHERE company_id = ? AND status = ? AND length(sender_digits) >= 10 AND substr(sender_digits, -10) = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		companyID, string(domain.IncompletePending), domain.PhoneSuffix(digits),
	))
}

func (s *Store) GetIncompleteEvent(ctx context.Context, id string) (domain.IncompleteEventRecord, error) {
	return s.scanIncomplete(s.db.QueryRowContext(ctx,
		`SELECT `+incompleteColumns+` FROM incomplete_events WHERE id = ?`, id))
}

func (s *Store) scanIncomplete(row *sql.Row) (domain.IncompleteEventRecord, error) {
	var (
		rec                      domain.IncompleteEventRecord
		questions, answers, drft string
		status                   string
	)
	err := row.Scan(&rec.ID, &rec.CompanyID, &rec.CommunicationID, &rec.SenderPhone, &rec.SenderDigits,
		&questions, &answers, &status, &drft, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IncompleteEventRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.IncompleteEventRecord{}, fmt.Errorf("scan incomplete event: %w", err)
	}
	rec.Status = domain.IncompleteStatus(status)
	if err := json.Unmarshal([]byte(questions), &rec.PendingQuestions); err != nil {
		return domain.IncompleteEventRecord{}, fmt.Errorf("decode questions: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &rec.Answers); err != nil {
		return domain.IncompleteEventRecord{}, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(drft), &rec.Draft); err != nil {
		return domain.IncompleteEventRecord{}, fmt.Errorf("decode draft: %w", err)
	}
	return rec, nil
}

// UpdateIncompleteAnswers saves the answer list of a still-pending dialogue.
func (s *Store) UpdateIncompleteAnswers(ctx context.Context, rec domain.IncompleteEventRecord) error {
	answers, err := encodeJSON(rec.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE incomplete_events SET answers = ?, updated_at = ? WHERE id = ? AND status = ?`,
		answers, s.now(), rec.ID, string(domain.IncompletePending))
	if err != nil {
		return fmt.Errorf("update answers: %w", err)
	}
	return requireRow(res)
}

// CompleteIncompleteEvent closes the dialogue and registers the event it
// produced, together with its history row, in one transaction. It returns
// ErrNotFound if the dialogue is no longer pending.
func (s *Store) CompleteIncompleteEvent(ctx context.Context, rec domain.IncompleteEventRecord, e *domain.OperationalEvent) error {
	answers, err := encodeJSON(rec.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	s.prepareEvent(e)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE incomplete_events SET answers = ?, status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			answers, string(domain.IncompleteCompleted), s.now(), rec.ID, string(domain.IncompletePending))
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
		return insertEventWithHistory(ctx, tx, *e)
	})
	if err != nil {
		return fmt.Errorf("complete incomplete event %s: %w", rec.ID, err)
	}
	return nil
}
