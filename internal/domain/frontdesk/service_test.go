package frontdesk

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicdesk/clinicdesk/internal/domain/audit"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperr"
	"github.com/clinicdesk/clinicdesk/internal/platform/clock"
)

// -- Mocks --

type mockCheckInRepo struct {
	checkins  map[uuid.UUID]*CheckIn
	lockCount int
}

func newMockCheckInRepo() *mockCheckInRepo {
	return &mockCheckInRepo{checkins: make(map[uuid.UUID]*CheckIn)}
}

func (m *mockCheckInRepo) Create(_ context.Context, ci *CheckIn) error {
	ci.ID = uuid.New()
	m.checkins[ci.ID] = ci
	return nil
}

func (m *mockCheckInRepo) GetByID(_ context.Context, id uuid.UUID) (*CheckIn, error) {
	ci, ok := m.checkins[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ci, nil
}

func (m *mockCheckInRepo) Update(_ context.Context, ci *CheckIn) error {
	m.checkins[ci.ID] = ci
	return nil
}

func (m *mockCheckInRepo) ListByDay(_ context.Context, day time.Time, limit, offset int) ([]*CheckIn, int, error) {
	var result []*CheckIn
	for _, ci := range m.checkins {
		if ci.CheckinDay.Equal(day) {
			result = append(result, ci)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SequenceNumber < result[j].SequenceNumber })
	return result, len(result), nil
}

func (m *mockCheckInRepo) HasNonTerminal(_ context.Context, patientID uuid.UUID, day time.Time) (bool, error) {
	for _, ci := range m.checkins {
		if ci.PatientID == patientID && ci.CheckinDay.Equal(day) && !IsTerminalCheckInStatus(ci.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCheckInRepo) NextSequence(_ context.Context, day time.Time) (int, error) {
	max := 0
	for _, ci := range m.checkins {
		if ci.CheckinDay.Equal(day) && ci.SequenceNumber > max {
			max = ci.SequenceNumber
		}
	}
	return max + 1, nil
}

func (m *mockCheckInRepo) LockDay(_ context.Context, _ time.Time) error {
	m.lockCount++
	return nil
}

type mockQueueRepo struct {
	entries map[uuid.UUID]*QueueEntry
	history []*QueueStatusHistory
}

func newMockQueueRepo() *mockQueueRepo {
	return &mockQueueRepo{entries: make(map[uuid.UUID]*QueueEntry)}
}

func (m *mockQueueRepo) Create(_ context.Context, qe *QueueEntry) error {
	qe.ID = uuid.New()
	m.entries[qe.ID] = qe
	return nil
}

func (m *mockQueueRepo) GetByID(_ context.Context, id uuid.UUID) (*QueueEntry, error) {
	qe, ok := m.entries[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return qe, nil
}

func (m *mockQueueRepo) GetByCheckIn(_ context.Context, checkinID uuid.UUID) (*QueueEntry, error) {
	for _, qe := range m.entries {
		if qe.CheckInID == checkinID {
			return qe, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockQueueRepo) Update(_ context.Context, qe *QueueEntry) error {
	m.entries[qe.ID] = qe
	return nil
}

func (m *mockQueueRepo) ListWaiting(_ context.Context, day time.Time) ([]*QueueEntry, error) {
	return m.list(day, QueueStatusWaiting), nil
}

func (m *mockQueueRepo) ListByDay(_ context.Context, day time.Time) ([]*QueueEntry, error) {
	return m.list(day, ""), nil
}

func (m *mockQueueRepo) list(day time.Time, status string) []*QueueEntry {
	var result []*QueueEntry
	for _, qe := range m.entries {
		if !qe.CheckinDay.Equal(day) {
			continue
		}
		if status != "" && qe.Status != status {
			continue
		}
		result = append(result, qe)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SequenceNumber < result[j].SequenceNumber })
	return result
}

func (m *mockQueueRepo) ClaimNextWaiting(_ context.Context, day time.Time, staffID uuid.UUID, calledAt time.Time) (*QueueEntry, error) {
	waiting := m.list(day, QueueStatusWaiting)
	if len(waiting) == 0 {
		return nil, pgx.ErrNoRows
	}
	SortWaiting(waiting)
	head := waiting[0]
	head.Status = QueueStatusCalled
	head.CalledTime = &calledAt
	head.AssignedStaffID = &staffID
	return head, nil
}

func (m *mockQueueRepo) AddHistory(_ context.Context, h *QueueStatusHistory) error {
	h.ID = uuid.New()
	m.history = append(m.history, h)
	return nil
}

func (m *mockQueueRepo) ListHistory(_ context.Context, queueEntryID uuid.UUID) ([]*QueueStatusHistory, error) {
	var result []*QueueStatusHistory
	for _, h := range m.history {
		if h.QueueEntryID == queueEntryID {
			result = append(result, h)
		}
	}
	return result, nil
}

func (m *mockQueueRepo) historyFor(id uuid.UUID) []*QueueStatusHistory {
	out, _ := m.ListHistory(context.Background(), id)
	return out
}

type mockDirectory struct {
	patients map[uuid.UUID]bool // id → active
	staff    map[uuid.UUID]bool
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{patients: make(map[uuid.UUID]bool), staff: make(map[uuid.UUID]bool)}
}

func (m *mockDirectory) addPatient() uuid.UUID {
	id := uuid.New()
	m.patients[id] = true
	return id
}

func (m *mockDirectory) addInactivePatient() uuid.UUID {
	id := uuid.New()
	m.patients[id] = false
	return id
}

func (m *mockDirectory) addStaff() uuid.UUID {
	id := uuid.New()
	m.staff[id] = true
	return id
}

func (m *mockDirectory) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.patients[id]
	return ok, nil
}

func (m *mockDirectory) PatientIsActive(_ context.Context, id uuid.UUID) (bool, error) {
	return m.patients[id], nil
}

func (m *mockDirectory) StaffExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.staff[id], nil
}

// mockAppointments honors the appointment state machine through the
// exported transition table, including the converged no-op.
type mockAppointments struct {
	appts   map[uuid.UUID]*scheduling.Appointment
	reasons map[uuid.UUID]string
}

func newMockAppointments() *mockAppointments {
	return &mockAppointments{
		appts:   make(map[uuid.UUID]*scheduling.Appointment),
		reasons: make(map[uuid.UUID]string),
	}
}

func (m *mockAppointments) add(patientID uuid.UUID, day time.Time) *scheduling.Appointment {
	appt := &scheduling.Appointment{
		ID:           uuid.New(),
		PatientID:    patientID,
		ClinicianID:  uuid.New(),
		Date:         day,
		StartAt:      day.Add(9 * time.Hour),
		DurationMins: 30,
		Priority:     scheduling.PriorityNormal,
		Status:       scheduling.StatusScheduled,
	}
	m.appts[appt.ID] = appt
	return appt
}

func (m *mockAppointments) GetAppointment(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	appt, ok := m.appts[id]
	if !ok {
		return nil, scheduling.ErrAppointmentNotFound
	}
	return appt, nil
}

func (m *mockAppointments) Transition(_ context.Context, id uuid.UUID, newStatus, reason string) error {
	appt, ok := m.appts[id]
	if !ok {
		return scheduling.ErrAppointmentNotFound
	}
	if appt.Status == newStatus {
		return nil
	}
	if !scheduling.CanTransition(appt.Status, newStatus) {
		return scheduling.ErrInvalidTransition
	}
	appt.Status = newStatus
	if reason != "" {
		m.reasons[id] = reason
	}
	return nil
}

type mockRecorder struct {
	events []*audit.Event
}

func (m *mockRecorder) Record(_ context.Context, ev *audit.Event) error {
	m.events = append(m.events, ev)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testEnv struct {
	svc      *Service
	checkins *mockCheckInRepo
	queue    *mockQueueRepo
	appts    *mockAppointments
	dir      *mockDirectory
	rec      *mockRecorder
	clk      *clock.Mock
}

func newTestEnv() *testEnv {
	checkins := newMockCheckInRepo()
	queue := newMockQueueRepo()
	appts := newMockAppointments()
	dir := newMockDirectory()
	rec := &mockRecorder{}
	clk := clock.NewMock(time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC))
	svc := NewService(checkins, queue, appts, dir, dir, rec, passthroughTx{}, clk, 15)
	return &testEnv{svc: svc, checkins: checkins, queue: queue, appts: appts, dir: dir, rec: rec, clk: clk}
}

func (e *testEnv) today() time.Time {
	return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
}

func (e *testEnv) walkIn(t *testing.T) *AdmitResult {
	t.Helper()
	res, err := e.svc.AdmitWalkIn(context.Background(), WalkInRequest{PatientID: e.dir.addPatient()})
	if err != nil {
		t.Fatalf("unexpected walk-in error: %v", err)
	}
	return res
}

func (e *testEnv) appointmentCheckIn(t *testing.T) (*AdmitResult, *scheduling.Appointment) {
	t.Helper()
	pid := e.dir.addPatient()
	appt := e.appts.add(pid, e.today())
	res, err := e.svc.AdmitForAppointment(context.Background(), AppointmentCheckInRequest{
		PatientID:     pid,
		AppointmentID: appt.ID,
	})
	if err != nil {
		t.Fatalf("unexpected appointment check-in error: %v", err)
	}
	return res, appt
}

// -- Admission --

func TestAdmitWalkIn_AssignsSequentialNumbers(t *testing.T) {
	e := newTestEnv()

	first := e.walkIn(t)
	second := e.walkIn(t)
	third := e.walkIn(t)

	for i, res := range []*AdmitResult{first, second, third} {
		if res.CheckIn.SequenceNumber != i+1 {
			t.Errorf("check-in %d: expected sequence %d, got %d", i, i+1, res.CheckIn.SequenceNumber)
		}
		if res.QueueEntry.SequenceNumber != res.CheckIn.SequenceNumber {
			t.Errorf("queue entry sequence %d does not match check-in %d",
				res.QueueEntry.SequenceNumber, res.CheckIn.SequenceNumber)
		}
		if res.CheckIn.Status != CheckInStatusWaiting {
			t.Errorf("expected waiting check-in, got %s", res.CheckIn.Status)
		}
		if res.QueueEntry.Priority != PriorityNormal {
			t.Errorf("expected normal priority for walk-in, got %s", res.QueueEntry.Priority)
		}
	}

	waiting, err := e.svc.ListWaiting(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(waiting) != 3 {
		t.Fatalf("expected 3 waiting entries, got %d", len(waiting))
	}
	for i, qe := range waiting {
		if qe.SequenceNumber != i+1 {
			t.Errorf("position %d: expected sequence %d, got %d", i, i+1, qe.SequenceNumber)
		}
	}
}

func TestAdmitWalkIn_EstimatesByPosition(t *testing.T) {
	e := newTestEnv()

	first := e.walkIn(t)
	second := e.walkIn(t)
	third := e.walkIn(t)

	if first.QueueEntry.EstimatedWaitMins != 15 {
		t.Errorf("head of queue: expected estimate 15, got %d", first.QueueEntry.EstimatedWaitMins)
	}
	if second.QueueEntry.EstimatedWaitMins != 30 {
		t.Errorf("second: expected estimate 30, got %d", second.QueueEntry.EstimatedWaitMins)
	}
	if third.QueueEntry.EstimatedWaitMins != 45 {
		t.Errorf("third: expected estimate 45, got %d", third.QueueEntry.EstimatedWaitMins)
	}
}

func TestAdmitWalkIn_PatientValidation(t *testing.T) {
	e := newTestEnv()

	_, err := e.svc.AdmitWalkIn(context.Background(), WalkInRequest{PatientID: uuid.New()})
	if !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected PATIENT_NOT_FOUND, got %v", err)
	}

	_, err = e.svc.AdmitWalkIn(context.Background(), WalkInRequest{PatientID: e.dir.addInactivePatient()})
	if !errors.Is(err, ErrPatientInactive) {
		t.Errorf("expected PATIENT_INACTIVE, got %v", err)
	}
}

func TestAdmitWalkIn_DuplicateRejected(t *testing.T) {
	e := newTestEnv()
	pid := e.dir.addPatient()

	first, err := e.svc.AdmitWalkIn(context.Background(), WalkInRequest{PatientID: pid})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = e.svc.AdmitWalkIn(context.Background(), WalkInRequest{PatientID: pid})
	if !errors.Is(err, ErrDuplicateCheckIn) {
		t.Fatalf("expected DUPLICATE_CHECKIN, got %v", err)
	}

	// A terminal check-in frees the patient to come back the same day.
	_, err = e.svc.CancelQueueEntry(context.Background(), first.QueueEntry.ID, CancelRequest{Reason: "left"})
	if err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	_, err = e.svc.AdmitWalkIn(context.Background(), WalkInRequest{PatientID: pid})
	if err != nil {
		t.Fatalf("expected re-admission after cancel, got %v", err)
	}
}

func TestAdmitWalkIn_PriorityOverride(t *testing.T) {
	e := newTestEnv()

	res, err := e.svc.AdmitWalkIn(context.Background(), WalkInRequest{
		PatientID: e.dir.addPatient(),
		Priority:  PriorityLow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.QueueEntry.Priority != PriorityLow {
		t.Errorf("expected low priority, got %s", res.QueueEntry.Priority)
	}

	_, err = e.svc.AdmitWalkIn(context.Background(), WalkInRequest{
		PatientID: e.dir.addPatient(),
		Priority:  "stat",
	})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Errorf("expected validation failure for unknown priority, got %v", err)
	}
}

func TestAdmitForAppointment(t *testing.T) {
	e := newTestEnv()
	res, appt := e.appointmentCheckIn(t)

	if res.CheckIn.Type != TypeAppointment {
		t.Errorf("expected appointment check-in type, got %s", res.CheckIn.Type)
	}
	if res.QueueEntry.Priority != PriorityHigh {
		t.Errorf("expected high priority for appointment check-in, got %s", res.QueueEntry.Priority)
	}
	if res.CheckIn.AppointmentID == nil || *res.CheckIn.AppointmentID != appt.ID {
		t.Error("check-in should link back to the appointment")
	}
	if appt.Status != scheduling.StatusCheckedIn {
		t.Errorf("expected appointment checked-in, got %s", appt.Status)
	}
}

func TestAdmitForAppointment_Validations(t *testing.T) {
	e := newTestEnv()
	pid := e.dir.addPatient()

	_, err := e.svc.AdmitForAppointment(context.Background(), AppointmentCheckInRequest{
		PatientID:     pid,
		AppointmentID: uuid.New(),
	})
	if !errors.Is(err, scheduling.ErrAppointmentNotFound) {
		t.Errorf("expected APPOINTMENT_NOT_FOUND, got %v", err)
	}

	other := e.dir.addPatient()
	appt := e.appts.add(other, e.today())
	_, err = e.svc.AdmitForAppointment(context.Background(), AppointmentCheckInRequest{
		PatientID:     pid,
		AppointmentID: appt.ID,
	})
	if !errors.Is(err, ErrAppointmentMismatch) {
		t.Errorf("expected APPOINTMENT_PATIENT_MISMATCH, got %v", err)
	}

	done := e.appts.add(pid, e.today())
	done.Status = scheduling.StatusCompleted
	_, err = e.svc.AdmitForAppointment(context.Background(), AppointmentCheckInRequest{
		PatientID:     pid,
		AppointmentID: done.ID,
	})
	if !errors.Is(err, ErrNotCheckable) {
		t.Errorf("expected APPOINTMENT_NOT_CHECKABLE, got %v", err)
	}
}

// -- Queue ordering --

func TestListWaiting_HighPriorityJumpsAhead(t *testing.T) {
	e := newTestEnv()

	for i := 0; i < 4; i++ {
		e.walkIn(t)
	}
	res, _ := e.appointmentCheckIn(t)
	if res.QueueEntry.SequenceNumber != 5 {
		t.Fatalf("expected sequence 5 for the appointment check-in, got %d", res.QueueEntry.SequenceNumber)
	}

	waiting, err := e.svc.ListWaiting(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{5, 1, 2, 3, 4}
	for i, qe := range waiting {
		if qe.SequenceNumber != want[i] {
			t.Fatalf("expected order %v, got position %d = seq %d", want, i, qe.SequenceNumber)
		}
	}
}

func TestListWaiting_EstimatesRecomputedAfterCall(t *testing.T) {
	e := newTestEnv()
	e.walkIn(t)
	e.walkIn(t)

	_, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: e.dir.addStaff()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waiting, err := e.svc.ListWaiting(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(waiting) != 1 {
		t.Fatalf("expected 1 waiting entry, got %d", len(waiting))
	}
	if waiting[0].EstimatedWaitMins != 15 {
		t.Errorf("remaining entry moved to the head, expected estimate 15, got %d", waiting[0].EstimatedWaitMins)
	}
}

// -- CallNext --

func TestCallNext_EmptyQueue(t *testing.T) {
	e := newTestEnv()

	_, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: e.dir.addStaff()})
	if !errors.Is(err, ErrNoWaitingPatients) {
		t.Fatalf("expected NO_WAITING_PATIENTS, got %v", err)
	}
	if len(e.queue.history) != 0 {
		t.Error("an empty-queue call must not write history")
	}
	if len(e.rec.events) != 0 {
		t.Error("an empty-queue call must not record audit events")
	}
}

func TestCallNext_ClaimsHeadAndSyncs(t *testing.T) {
	e := newTestEnv()
	apptRes, appt := e.appointmentCheckIn(t)
	walkRes := e.walkIn(t)
	staff := e.dir.addStaff()

	e.clk.Advance(10 * time.Minute)
	called, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if called.ID != apptRes.QueueEntry.ID {
		t.Fatal("expected the high-priority appointment entry to be called first")
	}
	if called.Status != QueueStatusCalled {
		t.Errorf("expected called status, got %s", called.Status)
	}
	if called.CalledTime == nil || !called.CalledTime.Equal(e.clk.Now()) {
		t.Error("called time should be stamped from the clock")
	}
	if called.AssignedStaffID == nil || *called.AssignedStaffID != staff {
		t.Error("staff member should be stamped on the claim")
	}

	ci := e.checkins.checkins[apptRes.CheckIn.ID]
	if ci.Status != CheckInStatusCalled {
		t.Errorf("expected check-in called, got %s", ci.Status)
	}
	if ci.AssignedStaffID == nil || *ci.AssignedStaffID != staff {
		t.Error("staff member should flow to the check-in")
	}
	if appt.Status != scheduling.StatusCheckedIn {
		t.Errorf("calling does not advance the appointment past checked-in, got %s", appt.Status)
	}

	// The second call claims the remaining walk-in, never the same entry.
	next, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ID != walkRes.QueueEntry.ID {
		t.Error("second call should claim the walk-in entry")
	}
}

func TestCallNext_StaffValidation(t *testing.T) {
	e := newTestEnv()
	e.walkIn(t)

	_, err := e.svc.CallNext(context.Background(), CallNextRequest{})
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Errorf("expected validation failure, got %v", err)
	}

	_, err = e.svc.CallNext(context.Background(), CallNextRequest{StaffID: uuid.New()})
	if !errors.Is(err, ErrStaffNotFound) {
		t.Errorf("expected STAFF_NOT_FOUND, got %v", err)
	}
}

// -- Complete --

func TestCompleteQueueEntry_FullVisit(t *testing.T) {
	e := newTestEnv()
	res, appt := e.appointmentCheckIn(t)
	staff := e.dir.addStaff()

	e.clk.Advance(22 * time.Minute)
	if _, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.clk.Advance(8 * time.Minute)
	done, err := e.svc.CompleteQueueEntry(context.Background(), res.QueueEntry.ID, staff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if done.Status != QueueStatusCompleted {
		t.Errorf("expected completed queue entry, got %s", done.Status)
	}
	if done.CompletedTime == nil || !done.CompletedTime.Equal(e.clk.Now()) {
		t.Error("completed time should be stamped from the clock")
	}

	ci := e.checkins.checkins[res.CheckIn.ID]
	if ci.Status != CheckInStatusAttended {
		t.Errorf("expected attended check-in, got %s", ci.Status)
	}
	if ci.WaitingTimeMins == nil || *ci.WaitingTimeMins != 30 {
		t.Fatalf("expected waiting time frozen at 30 minutes, got %v", ci.WaitingTimeMins)
	}
	if appt.Status != scheduling.StatusCompleted {
		t.Errorf("expected completed appointment, got %s", appt.Status)
	}
}

func TestCompleteQueueEntry_FromCalledWithoutStart(t *testing.T) {
	e := newTestEnv()
	res := e.walkIn(t)
	staff := e.dir.addStaff()

	if _, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	done, err := e.svc.CompleteQueueEntry(context.Background(), res.QueueEntry.ID, staff)
	if err != nil {
		t.Fatalf("completing straight from called should work: %v", err)
	}
	if done.Status != QueueStatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
}

func TestCompleteQueueEntry_WaitingRejected(t *testing.T) {
	e := newTestEnv()
	res := e.walkIn(t)

	_, err := e.svc.CompleteQueueEntry(context.Background(), res.QueueEntry.ID, e.dir.addStaff())
	if !errors.Is(err, ErrInvalidQueueTransition) {
		t.Fatalf("expected INVALID_QUEUE_TRANSITION, got %v", err)
	}
	if e.queue.entries[res.QueueEntry.ID].Status != QueueStatusWaiting {
		t.Error("rejected transition must leave the entry waiting")
	}
}

// -- Start --

func TestStartQueueEntry(t *testing.T) {
	e := newTestEnv()
	res, appt := e.appointmentCheckIn(t)
	staff := e.dir.addStaff()

	if _, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	started, err := e.svc.StartQueueEntry(context.Background(), res.QueueEntry.ID, staff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if started.Status != QueueStatusInProgress {
		t.Errorf("expected in-progress, got %s", started.Status)
	}
	if e.checkins.checkins[res.CheckIn.ID].Status != CheckInStatusCalled {
		t.Error("starting the consult leaves the check-in called")
	}
	if appt.Status != scheduling.StatusInProgress {
		t.Errorf("expected in-progress appointment, got %s", appt.Status)
	}

	// in-progress can only complete.
	_, err = e.svc.CancelQueueEntry(context.Background(), res.QueueEntry.ID, CancelRequest{Reason: "walked out"})
	if !errors.Is(err, ErrInvalidQueueTransition) {
		t.Errorf("expected INVALID_QUEUE_TRANSITION for cancel after start, got %v", err)
	}
}

func TestStartQueueEntry_WaitingRejected(t *testing.T) {
	e := newTestEnv()
	res := e.walkIn(t)

	_, err := e.svc.StartQueueEntry(context.Background(), res.QueueEntry.ID, e.dir.addStaff())
	if !errors.Is(err, ErrInvalidQueueTransition) {
		t.Errorf("expected INVALID_QUEUE_TRANSITION, got %v", err)
	}
}

// -- Cancel --

func TestCancelQueueEntry_Waiting(t *testing.T) {
	e := newTestEnv()
	res, appt := e.appointmentCheckIn(t)

	e.clk.Advance(10 * time.Minute)
	cancelled, err := e.svc.CancelQueueEntry(context.Background(), res.QueueEntry.ID, CancelRequest{Reason: "patient left"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cancelled.Status != QueueStatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	ci := e.checkins.checkins[res.CheckIn.ID]
	if ci.Status != CheckInStatusCancelled {
		t.Errorf("expected cancelled check-in, got %s", ci.Status)
	}
	if ci.WaitingTimeMins == nil || *ci.WaitingTimeMins != 10 {
		t.Errorf("expected waiting time frozen at 10, got %v", ci.WaitingTimeMins)
	}
	if appt.Status != scheduling.StatusCancelled {
		t.Errorf("expected cancelled appointment, got %s", appt.Status)
	}
	if e.appts.reasons[appt.ID] != "patient left" {
		t.Errorf("cancel reason should reach the appointment, got %q", e.appts.reasons[appt.ID])
	}
}

func TestCancelQueueEntry_NoShow(t *testing.T) {
	e := newTestEnv()
	res, appt := e.appointmentCheckIn(t)

	_, err := e.svc.CancelQueueEntry(context.Background(), res.QueueEntry.ID, CancelRequest{NoShow: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.checkins.checkins[res.CheckIn.ID].Status != CheckInStatusNoShow {
		t.Error("no-show cancel should mark the check-in no-show")
	}
	if appt.Status != scheduling.StatusNoShow {
		t.Errorf("expected no-show appointment, got %s", appt.Status)
	}
}

// -- Synchronizer details --

func TestWaitingTimeFrozenOnlyOnce(t *testing.T) {
	e := newTestEnv()
	res := e.walkIn(t)
	staff := e.dir.addStaff()

	preset := 99
	e.checkins.checkins[res.CheckIn.ID].WaitingTimeMins = &preset

	if _, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.clk.Advance(45 * time.Minute)
	if _, err := e.svc.CompleteQueueEntry(context.Background(), res.QueueEntry.ID, staff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := *e.checkins.checkins[res.CheckIn.ID].WaitingTimeMins; got != 99 {
		t.Errorf("an already-frozen waiting time must not be overwritten, got %d", got)
	}
}

func TestSyncRejectionSurfaces(t *testing.T) {
	e := newTestEnv()
	res, appt := e.appointmentCheckIn(t)

	// The appointment was cancelled behind the queue's back; calling the
	// patient must surface the illegal appointment transition.
	appt.Status = scheduling.StatusCancelled
	_, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: e.dir.addStaff()})
	if !errors.Is(err, scheduling.ErrInvalidTransition) {
		t.Fatalf("expected the appointment rejection to surface, got %v", err)
	}
	_ = res
}

func TestQueueHistoryTrail(t *testing.T) {
	e := newTestEnv()
	res := e.walkIn(t)
	staff := e.dir.addStaff()

	if _, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.svc.StartQueueEntry(context.Background(), res.QueueEntry.ID, staff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.svc.CompleteQueueEntry(context.Background(), res.QueueEntry.ID, staff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trail := e.queue.historyFor(res.QueueEntry.ID)
	if len(trail) != 4 {
		t.Fatalf("expected 4 history rows, got %d", len(trail))
	}
	wantTo := []string{QueueStatusWaiting, QueueStatusCalled, QueueStatusInProgress, QueueStatusCompleted}
	for i, h := range trail {
		if h.ToStatus != wantTo[i] {
			t.Errorf("row %d: expected to_status %s, got %s", i, wantTo[i], h.ToStatus)
		}
	}
	if trail[0].FromStatus != nil {
		t.Error("admission row has no from_status")
	}
	if trail[1].FromStatus == nil || *trail[1].FromStatus != QueueStatusWaiting {
		t.Error("call row should record waiting as from_status")
	}
}

func TestAuditEventPerOperation(t *testing.T) {
	e := newTestEnv()
	res := e.walkIn(t)
	staff := e.dir.addStaff()

	if _, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.svc.CompleteQueueEntry(context.Background(), res.QueueEntry.ID, staff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(e.rec.events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(e.rec.events))
	}
	wantActions := []string{"admit_walkin", "call_next", "complete"}
	for i, ev := range e.rec.events {
		if ev.Action != wantActions[i] {
			t.Errorf("event %d: expected action %s, got %s", i, wantActions[i], ev.Action)
		}
	}
	if e.rec.events[0].EntityType != audit.EntityCheckIn {
		t.Errorf("admission is audited against the check-in, got %s", e.rec.events[0].EntityType)
	}
	if e.rec.events[1].EntityType != audit.EntityQueueEntry {
		t.Errorf("queue operations are audited against the queue entry, got %s", e.rec.events[1].EntityType)
	}
}

// -- Board and reads --

func TestBoard(t *testing.T) {
	e := newTestEnv()
	first := e.walkIn(t)
	e.walkIn(t)
	staff := e.dir.addStaff()

	e.clk.Advance(5 * time.Minute)
	if _, err := e.svc.CallNext(context.Background(), CallNextRequest{StaffID: staff}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.clk.Advance(7 * time.Minute)
	if _, err := e.svc.CompleteQueueEntry(context.Background(), first.QueueEntry.ID, staff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	board, err := e.svc.Board(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 board entries, got %d", len(board))
	}

	done := board[0]
	if done.Status != QueueStatusCompleted {
		t.Fatalf("expected the first entry completed, got %s", done.Status)
	}
	if done.WaitMins == nil || *done.WaitMins != 5 {
		t.Errorf("completed entry waited 5 minutes to be called, got %v", done.WaitMins)
	}

	still := board[1]
	if still.Status != QueueStatusWaiting {
		t.Fatalf("expected the second entry waiting, got %s", still.Status)
	}
	if still.EstimatedWaitMins != 15 {
		t.Errorf("sole waiting entry should estimate 15, got %d", still.EstimatedWaitMins)
	}
}

func TestGetQueueEntry(t *testing.T) {
	e := newTestEnv()
	e.walkIn(t)
	second := e.walkIn(t)

	qe, err := e.svc.GetQueueEntry(context.Background(), second.QueueEntry.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qe.EstimatedWaitMins != 30 {
		t.Errorf("second in line should estimate 30, got %d", qe.EstimatedWaitMins)
	}

	_, err = e.svc.GetQueueEntry(context.Background(), uuid.New())
	if !errors.Is(err, ErrQueueEntryNotFound) {
		t.Errorf("expected QUEUE_ENTRY_NOT_FOUND, got %v", err)
	}
}

func TestListCheckIns(t *testing.T) {
	e := newTestEnv()
	e.walkIn(t)
	e.walkIn(t)

	items, total, err := e.svc.ListCheckIns(context.Background(), "", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 check-ins, got %d (total %d)", len(items), total)
	}

	_, _, err = e.svc.ListCheckIns(context.Background(), "not-a-date", 20, 0)
	if apperr.CodeOf(err) != apperr.CodeValidation {
		t.Errorf("expected validation failure for a bad date, got %v", err)
	}
}

func TestQueueHistory_NotFound(t *testing.T) {
	e := newTestEnv()
	_, err := e.svc.QueueHistory(context.Background(), uuid.New())
	if !errors.Is(err, ErrQueueEntryNotFound) {
		t.Errorf("expected QUEUE_ENTRY_NOT_FOUND, got %v", err)
	}
}
