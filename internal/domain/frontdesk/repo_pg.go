package frontdesk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== CheckIn Repository ===========

type checkInRepoPG struct{ pool *pgxpool.Pool }

func NewCheckInRepoPG(pool *pgxpool.Pool) CheckInRepository { return &checkInRepoPG{pool: pool} }

func (r *checkInRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const checkinCols = `id, patient_id, appointment_id, checkin_type, checkin_day, checkin_time,
	sequence_number, assigned_staff_id, waiting_time_mins, notes, status, created_at, updated_at`

func (r *checkInRepoPG) scanCheckIn(row pgx.Row) (*CheckIn, error) {
	var ci CheckIn
	err := row.Scan(&ci.ID, &ci.PatientID, &ci.AppointmentID, &ci.Type, &ci.CheckinDay,
		&ci.CheckinTime, &ci.SequenceNumber, &ci.AssignedStaffID, &ci.WaitingTimeMins,
		&ci.Notes, &ci.Status, &ci.CreatedAt, &ci.UpdatedAt)
	return &ci, err
}

func (r *checkInRepoPG) Create(ctx context.Context, ci *CheckIn) error {
	ci.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_checkin (id, patient_id, appointment_id, checkin_type, checkin_day,
			checkin_time, sequence_number, assigned_staff_id, waiting_time_mins, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ci.ID, ci.PatientID, ci.AppointmentID, ci.Type, ci.CheckinDay,
		ci.CheckinTime, ci.SequenceNumber, ci.AssignedStaffID, ci.WaitingTimeMins, ci.Notes, ci.Status)
	return err
}

func (r *checkInRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CheckIn, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+checkinCols+` FROM patient_checkin WHERE id = $1`, id)
	return r.scanCheckIn(row)
}

func (r *checkInRepoPG) Update(ctx context.Context, ci *CheckIn) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_checkin
		SET status = $2, assigned_staff_id = $3, waiting_time_mins = $4, notes = $5,
			updated_at = NOW()
		WHERE id = $1`,
		ci.ID, ci.Status, ci.AssignedStaffID, ci.WaitingTimeMins, ci.Notes)
	return err
}

func (r *checkInRepoPG) ListByDay(ctx context.Context, day time.Time, limit, offset int) ([]*CheckIn, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_checkin WHERE checkin_day = $1`, day).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+checkinCols+`
		FROM patient_checkin
		WHERE checkin_day = $1
		ORDER BY sequence_number ASC
		LIMIT $2 OFFSET $3`, day, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*CheckIn
	for rows.Next() {
		ci, err := r.scanCheckIn(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ci)
	}
	return items, total, rows.Err()
}

func (r *checkInRepoPG) HasNonTerminal(ctx context.Context, patientID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patient_checkin
			WHERE patient_id = $1 AND checkin_day = $2
				AND status NOT IN ('attended', 'cancelled', 'no-show')
		)`, patientID, day).Scan(&exists)
	return exists, err
}

func (r *checkInRepoPG) NextSequence(ctx context.Context, day time.Time) (int, error) {
	var next int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM patient_checkin WHERE checkin_day = $1`,
		day).Scan(&next)
	return next, err
}

func (r *checkInRepoPG) LockDay(ctx context.Context, day time.Time) error {
	key := fmt.Sprintf("checkin:%s", day.Format("2006-01-02"))
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

// =========== Queue Repository ===========

type queueRepoPG struct{ pool *pgxpool.Pool }

func NewQueueRepoPG(pool *pgxpool.Pool) QueueRepository { return &queueRepoPG{pool: pool} }

func (r *queueRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const queueCols = `id, checkin_id, patient_id, appointment_id, checkin_day, sequence_number,
	priority, status, checkin_time, called_time, completed_time, assigned_staff_id, note,
	created_at, updated_at`

func (r *queueRepoPG) scanQueueEntry(row pgx.Row) (*QueueEntry, error) {
	var qe QueueEntry
	err := row.Scan(&qe.ID, &qe.CheckInID, &qe.PatientID, &qe.AppointmentID, &qe.CheckinDay,
		&qe.SequenceNumber, &qe.Priority, &qe.Status, &qe.CheckinTime, &qe.CalledTime,
		&qe.CompletedTime, &qe.AssignedStaffID, &qe.Note, &qe.CreatedAt, &qe.UpdatedAt)
	return &qe, err
}

func (r *queueRepoPG) Create(ctx context.Context, qe *QueueEntry) error {
	qe.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO queue_entry (id, checkin_id, patient_id, appointment_id, checkin_day,
			sequence_number, priority, status, checkin_time, called_time, completed_time,
			assigned_staff_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		qe.ID, qe.CheckInID, qe.PatientID, qe.AppointmentID, qe.CheckinDay,
		qe.SequenceNumber, qe.Priority, qe.Status, qe.CheckinTime, qe.CalledTime,
		qe.CompletedTime, qe.AssignedStaffID, qe.Note)
	return err
}

func (r *queueRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+queueCols+` FROM queue_entry WHERE id = $1`, id)
	return r.scanQueueEntry(row)
}

func (r *queueRepoPG) GetByCheckIn(ctx context.Context, checkinID uuid.UUID) (*QueueEntry, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+queueCols+` FROM queue_entry WHERE checkin_id = $1`, checkinID)
	return r.scanQueueEntry(row)
}

func (r *queueRepoPG) Update(ctx context.Context, qe *QueueEntry) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry
		SET priority = $2, status = $3, called_time = $4, completed_time = $5,
			assigned_staff_id = $6, note = $7, updated_at = NOW()
		WHERE id = $1`,
		qe.ID, qe.Priority, qe.Status, qe.CalledTime, qe.CompletedTime,
		qe.AssignedStaffID, qe.Note)
	return err
}

func (r *queueRepoPG) ListWaiting(ctx context.Context, day time.Time) ([]*QueueEntry, error) {
	return r.listWhere(ctx,
		`WHERE checkin_day = $1 AND status = 'waiting' ORDER BY sequence_number ASC`, day)
}

func (r *queueRepoPG) ListByDay(ctx context.Context, day time.Time) ([]*QueueEntry, error) {
	return r.listWhere(ctx, `WHERE checkin_day = $1 ORDER BY sequence_number ASC`, day)
}

func (r *queueRepoPG) listWhere(ctx context.Context, clause string, args ...interface{}) ([]*QueueEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+queueCols+` FROM queue_entry `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*QueueEntry
	for rows.Next() {
		qe, err := r.scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, qe)
	}
	return items, rows.Err()
}

// ClaimNextWaiting orders candidates the same way the in-memory comparator
// does (priority rank, then sequence) so the database head matches the head
// ListWaiting reports. SKIP LOCKED keeps two stations from claiming the
// same patient.
func (r *queueRepoPG) ClaimNextWaiting(ctx context.Context, day time.Time, staffID uuid.UUID, calledAt time.Time) (*QueueEntry, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE queue_entry
		SET status = 'called', called_time = $2, assigned_staff_id = $3, updated_at = NOW()
		WHERE id = (
			SELECT id FROM queue_entry
			WHERE checkin_day = $1 AND status = 'waiting'
			ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END,
				sequence_number ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+queueCols, day, calledAt, staffID)
	return r.scanQueueEntry(row)
}

func (r *queueRepoPG) AddHistory(ctx context.Context, h *QueueStatusHistory) error {
	h.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO queue_status_history (id, queue_entry_id, from_status, to_status, changed_by,
			changed_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.QueueEntryID, h.FromStatus, h.ToStatus, h.ChangedBy, h.ChangedAt, h.Note)
	return err
}

func (r *queueRepoPG) ListHistory(ctx context.Context, queueEntryID uuid.UUID) ([]*QueueStatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, queue_entry_id, from_status, to_status, changed_by, changed_at, note
		FROM queue_status_history
		WHERE queue_entry_id = $1
		ORDER BY changed_at ASC`, queueEntryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*QueueStatusHistory
	for rows.Next() {
		var h QueueStatusHistory
		if err := rows.Scan(&h.ID, &h.QueueEntryID, &h.FromStatus, &h.ToStatus,
			&h.ChangedBy, &h.ChangedAt, &h.Note); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}
