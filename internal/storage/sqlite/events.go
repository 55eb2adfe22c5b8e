package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"floorbot/internal/domain"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RegisterOperationalEvent inserts e and, when a machine or part code is
// known, its machine history row in one transaction. Missing ID, status and
// creation time are filled in on e.
func (s *Store) RegisterOperationalEvent(ctx context.Context, e *domain.OperationalEvent) error {
	s.prepareEvent(e)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertEventWithHistory(ctx, tx, *e)
	})
	if err != nil {
		return fmt.Errorf("register event: %w", err)
	}
	return nil
}

func (s *Store) prepareEvent(e *domain.OperationalEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = domain.EventOpen
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
}

func insertEventWithHistory(ctx context.Context, db execer, e domain.OperationalEvent) error {
	if err := insertEvent(ctx, db, e); err != nil {
		return err
	}
	if !e.NeedsHistory() {
		return nil
	}
	h := domain.HistoryFor(e, quantityOf(e.ExtractedFields))
	_, err := db.ExecContext(ctx,
		`INSERT INTO machine_history (company_id, machine_code, machine_name, event_type, part_code, part_name, quantity, event_id, communication_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.CompanyID, h.MachineCode, h.MachineName, string(h.EventType), h.PartCode, h.PartName,
		h.Quantity, h.EventID, h.CommunicationID, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, db execer, e domain.OperationalEvent) error {
	fields, err := encodeJSON(orEmpty(e.ExtractedFields))
	if err != nil {
		return fmt.Errorf("encode extracted fields: %w", err)
	}
	meta, err := encodeJSON(orEmpty(e.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	var sentAt sql.NullTime
	if e.EscalationSentAt != nil {
		sentAt = sql.NullTime{Time: e.EscalationSentAt.UTC(), Valid: true}
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO operational_events (id, company_id, communication_id, event_type, severity, status,
			machine_name, machine_code, part_code, part_name, sender_phone, sender_name, department,
			production_stop, was_replaced, extracted_fields, metadata, escalation_sent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CompanyID, e.CommunicationID, string(e.EventType), string(e.Severity), string(e.Status),
		e.MachineName, e.MachineCode, e.PartCode, e.PartName, e.SenderPhone, e.SenderName, e.Department,
		nullBool(e.ProductionStop), nullBool(e.WasReplaced), fields, meta, sentAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func quantityOf(fields map[string]any) int {
	switch v := fields["quantity"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 1
}

// MarkEscalationSent records when the escalation notification went out.
func (s *Store) MarkEscalationSent(ctx context.Context, eventID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operational_events SET escalation_sent_at = ? WHERE id = ?`, at.UTC(), eventID)
	if err != nil {
		return fmt.Errorf("mark escalation sent: %w", err)
	}
	return requireRow(res)
}

// SetEventStatus is used by the resolution workflow outside the pipeline.
func (s *Store) SetEventStatus(ctx context.Context, eventID string, status domain.EventStatus) error {
	if status != domain.EventOpen && status != domain.EventResolved {
		return fmt.Errorf("invalid event status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE operational_events SET status = ? WHERE id = ?`, string(status), eventID)
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (domain.OperationalEvent, error) {
	var (
		e                  domain.OperationalEvent
		eventType, sev, st string
		stop, replaced     sql.NullBool
		fields, meta       string
		sentAt             sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, communication_id, event_type, severity, status,
			machine_name, machine_code, part_code, part_name, sender_phone, sender_name, department,
			production_stop, was_replaced, extracted_fields, metadata, escalation_sent_at, created_at
		 FROM operational_events WHERE id = ?`, id,
	).Scan(
		&e.ID, &e.CompanyID, &e.CommunicationID, &eventType, &sev, &st,
		&e.MachineName, &e.MachineCode, &e.PartCode, &e.PartName, &e.SenderPhone, &e.SenderName, &e.Department,
		&stop, &replaced, &fields, &meta, &sentAt, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OperationalEvent{}, ErrNotFound
	}
	if err != nil {
		return domain.OperationalEvent{}, fmt.Errorf("get event: %w", err)
	}
	e.EventType = domain.Category(eventType)
	e.Severity = domain.Severity(sev)
	e.Status = domain.EventStatus(st)
	e.ProductionStop = boolPtr(stop)
	e.WasReplaced = boolPtr(replaced)
	if sentAt.Valid {
		t := sentAt.Time
		e.EscalationSentAt = &t
	}
	if err := json.Unmarshal([]byte(fields), &e.ExtractedFields); err != nil {
		return domain.OperationalEvent{}, fmt.Errorf("decode extracted fields: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
		return domain.OperationalEvent{}, fmt.Errorf("decode metadata: %w", err)
	}
	return e, nil
}

// MachineHistory lists the ledger rows written for eventID.
func (s *Store) MachineHistory(ctx context.Context, eventID string) ([]domain.MachineHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, machine_code, machine_name, event_type, part_code, part_name, quantity, event_id, communication_id, created_at
		 FROM machine_history WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.MachineHistoryEntry
	for rows.Next() {
		var h domain.MachineHistoryEntry
		var eventType string
		if err := rows.Scan(&h.ID, &h.CompanyID, &h.MachineCode, &h.MachineName, &eventType,
			&h.PartCode, &h.PartName, &h.Quantity, &h.EventID, &h.CommunicationID, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.EventType = domain.Category(eventType)
		out = append(out, h)
	}
	return out, rows.Err()
}
