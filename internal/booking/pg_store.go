package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgErrCodeUniqueViolation    = "23505"
	pgErrCodeExclusionViolation = "23P01"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, so the same scan and
// query code serves the plain and the transactional store.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Scan helpers

const slotColumns = "id, provider_id, start_time, end_time, occupied, version, created_at, updated_at"

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.StartTime,
		&s.EndTime,
		&s.Occupied,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

const appointmentColumns = "id, slot_id, provider_id, requester_id, status, cancel_reason, created_at, updated_at, expires_at"

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason *string
	var expiresAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.ProviderID,
		&a.RequesterID,
		&a.Status,
		&reason,
		&a.CreatedAt,
		&a.UpdatedAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.CancelReason = reason
	a.ExpiresAt = expiresAt
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Store methods

func (s *PgStore) CreateSlots(ctx context.Context, providerID uuid.UUID, windows []Window) ([]Slot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create slots: %w", err)
	}
	defer tx.Rollback(ctx)

	created := make([]Slot, 0, len(windows))
	for _, w := range windows {
		row := tx.QueryRow(ctx, `
			INSERT INTO slots (id, provider_id, start_time, end_time, occupied, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, false, 1, now(), now())
			RETURNING `+slotColumns+`
		`, uuid.New(), providerID, w.Start, w.End)

		slot, err := scanSlot(row)
		if err != nil {
			if isPgErrCode(err, pgErrCodeExclusionViolation) {
				return nil, ErrSlotOverlap
			}
			return nil, fmt.Errorf("insert slot: %w", err)
		}
		created = append(created, *slot)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create slots: %w", err)
	}

	return created, nil
}

func (s *PgStore) GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, slotID)
	return scanSlot(row)
}

func (s *PgStore) ListSlots(ctx context.Context, providerID uuid.UUID, day time.Time, includeOccupied bool, now time.Time) ([]Slot, error) {
	dayStart := day.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		  AND ($4 OR (NOT occupied AND start_time > $5))
		ORDER BY start_time
	`, providerID, dayStart, dayEnd, includeOccupied, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *slot)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.RequesterID != nil {
		query += " AND requester_id = " + arg(*f.RequesterID)
	}
	if f.ProviderID != nil {
		query += " AND provider_id = " + arg(*f.ProviderID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		query += " AND status = ANY(" + arg(statuses) + ")"
	}
	if f.From != nil {
		query += " AND created_at >= " + arg(*f.From)
	}
	if f.To != nil {
		query += " AND created_at < " + arg(*f.To)
	}

	query += " ORDER BY created_at DESC"
	query += " LIMIT " + arg(f.Limit)
	query += " OFFSET " + arg(f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *PgStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (s *PgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgxTx.Rollback(ctx)

	if err := fn(ctx, &pgTxStore{tx: pgxTx}); err != nil {
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Transactional methods

type pgTxStore struct {
	tx dbtx
}

func (t *pgTxStore) SlotForUpdate(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, slotID)
	return scanSlot(row)
}

func (t *pgTxStore) CommitSlotVersion(ctx context.Context, slotID uuid.UUID, expectedVersion int64, occupied bool) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE slots
		SET occupied = $3,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
	`, slotID, expectedVersion, occupied)
	if err != nil {
		return false, fmt.Errorf("commit slot version: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (t *pgTxStore) AppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgTxStore) InsertAppointment(ctx context.Context, appt *Appointment) error {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, provider_id, requester_id, status, cancel_reason, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now(), $7)
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.SlotID, appt.ProviderID, appt.RequesterID, appt.Status, appt.CancelReason, appt.ExpiresAt)

	created, err := scanAppointment(row)
	if err != nil {
		// The partial unique index on slot_id catches a live appointment the
		// occupancy flag missed; surface it as the occupied outcome.
		if isPgErrCode(err, pgErrCodeUniqueViolation) {
			return ErrSlotOccupied
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	*appt = *created
	return nil
}

func (t *pgTxStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, reason *string) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = COALESCE($4, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, reason)

	return scanAppointment(row)
}

func isPgErrCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
