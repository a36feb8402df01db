package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockPatientRepo) GetByMRN(_ context.Context, mrn string) (*Patient, error) {
	for _, p := range m.patients {
		if p.MRN == mrn {
			return p, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockPatientRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if mrn, ok := params["mrn"]; ok && p.MRN != mrn {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

type mockStaffRepo struct {
	staff map[uuid.UUID]*Staff
}

func newMockStaffRepo() *mockStaffRepo {
	return &mockStaffRepo{staff: make(map[uuid.UUID]*Staff)}
}

func (m *mockStaffRepo) Create(_ context.Context, s *Staff) error {
	s.ID = uuid.New()
	m.staff[s.ID] = s
	return nil
}

func (m *mockStaffRepo) GetByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	s, ok := m.staff[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockStaffRepo) Update(_ context.Context, s *Staff) error {
	m.staff[s.ID] = s
	return nil
}

func (m *mockStaffRepo) List(_ context.Context, limit, offset int) ([]*Staff, int, error) {
	var result []*Staff
	for _, s := range m.staff {
		result = append(result, s)
	}
	return result, len(result), nil
}

func (m *mockStaffRepo) ListByRole(_ context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	var result []*Staff
	for _, s := range m.staff {
		if s.Role == role {
			result = append(result, s)
		}
	}
	return result, len(result), nil
}

type mockDepartmentRepo struct {
	departments map[uuid.UUID]*Department
}

func newMockDepartmentRepo() *mockDepartmentRepo {
	return &mockDepartmentRepo{departments: make(map[uuid.UUID]*Department)}
}

func (m *mockDepartmentRepo) Create(_ context.Context, d *Department) error {
	d.ID = uuid.New()
	m.departments[d.ID] = d
	return nil
}

func (m *mockDepartmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Department, error) {
	d, ok := m.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (m *mockDepartmentRepo) Update(_ context.Context, d *Department) error {
	m.departments[d.ID] = d
	return nil
}

func (m *mockDepartmentRepo) List(_ context.Context, limit, offset int) ([]*Department, int, error) {
	var result []*Department
	for _, d := range m.departments {
		result = append(result, d)
	}
	return result, len(result), nil
}

func newTestService() *Service {
	return NewService(newMockPatientRepo(), newMockStaffRepo(), newMockDepartmentRepo())
}

// -- Patient Tests --

func TestCreatePatient(t *testing.T) {
	svc := newTestService()
	p, err := svc.CreatePatient(context.Background(), &Patient{MRN: "MRN-001", FirstName: "Asha", LastName: "Rao"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if !p.Active {
		t.Error("expected new patient to be active")
	}
}

func TestCreatePatient_MRNRequired(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreatePatient(context.Background(), &Patient{FirstName: "Asha", LastName: "Rao"})
	if err == nil {
		t.Error("expected error for missing mrn")
	}
}

func TestCreatePatient_NameRequired(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreatePatient(context.Background(), &Patient{MRN: "MRN-001", FirstName: "Asha"})
	if err == nil {
		t.Error("expected error for missing last_name")
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetPatient(context.Background(), uuid.New())
	if !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestGetPatientByMRN(t *testing.T) {
	svc := newTestService()
	created, err := svc.CreatePatient(context.Background(), &Patient{MRN: "MRN-002", FirstName: "Ben", LastName: "Okafor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fetched, err := svc.GetPatientByMRN(context.Background(), "MRN-002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.ID != created.ID {
		t.Errorf("expected patient %s, got %s", created.ID, fetched.ID)
	}
}

func TestUpdatePatient_MRNImmutable(t *testing.T) {
	svc := newTestService()
	created, err := svc.CreatePatient(context.Background(), &Patient{MRN: "MRN-003", FirstName: "Asha", LastName: "Rao"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, err := svc.UpdatePatient(context.Background(), created.ID, &Patient{MRN: "MRN-999", FirstName: "Asha", LastName: "Rao-Becker", Active: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.MRN != "MRN-003" {
		t.Errorf("expected mrn to stay MRN-003, got %s", updated.MRN)
	}
	if updated.LastName != "Rao-Becker" {
		t.Errorf("expected last_name updated, got %s", updated.LastName)
	}
}

func TestPatientExists(t *testing.T) {
	svc := newTestService()
	created, err := svc.CreatePatient(context.Background(), &Patient{MRN: "MRN-004", FirstName: "Asha", LastName: "Rao"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := svc.PatientExists(context.Background(), created.ID)
	if err != nil || !ok {
		t.Errorf("expected patient to exist, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.PatientExists(context.Background(), uuid.New())
	if err != nil || ok {
		t.Errorf("expected unknown patient to not exist, got ok=%v err=%v", ok, err)
	}
}

func TestPatientIsActive(t *testing.T) {
	svc := newTestService()
	created, err := svc.CreatePatient(context.Background(), &Patient{MRN: "MRN-005", FirstName: "Asha", LastName: "Rao"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := svc.PatientIsActive(context.Background(), created.ID)
	if err != nil || !ok {
		t.Errorf("expected new patient to be active, got ok=%v err=%v", ok, err)
	}

	created.Active = false
	if _, err := svc.UpdatePatient(context.Background(), created.ID, created); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err = svc.PatientIsActive(context.Background(), created.ID)
	if err != nil || ok {
		t.Errorf("expected deactivated patient to be inactive, got ok=%v err=%v", ok, err)
	}
}

// -- Staff Tests --

func TestCreateStaff(t *testing.T) {
	svc := newTestService()
	st, err := svc.CreateStaff(context.Background(), &Staff{FirstName: "Dana", LastName: "Whitfield", Role: "clinician"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
}

func TestCreateStaff_InvalidRole(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateStaff(context.Background(), &Staff{FirstName: "Dana", LastName: "Whitfield", Role: "janitor"})
	if err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestCreateStaff_UnknownDepartment(t *testing.T) {
	svc := newTestService()
	deptID := uuid.New()
	_, err := svc.CreateStaff(context.Background(), &Staff{FirstName: "Dana", LastName: "Whitfield", Role: "nurse", DepartmentID: &deptID})
	if !errors.Is(err, ErrDepartmentNotFound) {
		t.Errorf("expected ErrDepartmentNotFound, got %v", err)
	}
}

func TestListStaffByRole(t *testing.T) {
	svc := newTestService()
	if _, err := svc.CreateStaff(context.Background(), &Staff{FirstName: "Dana", LastName: "Whitfield", Role: "clinician"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateStaff(context.Background(), &Staff{FirstName: "Ruth", LastName: "Mbeki", Role: "receptionist"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total, err := svc.ListStaffByRole(context.Background(), "clinician", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("expected 1 clinician, got total=%d len=%d", total, len(items))
	}

	if _, _, err := svc.ListStaffByRole(context.Background(), "pilot", 20, 0); err == nil {
		t.Error("expected error for unknown role filter")
	}
}

func TestStaffExists(t *testing.T) {
	svc := newTestService()
	st, err := svc.CreateStaff(context.Background(), &Staff{FirstName: "Dana", LastName: "Whitfield", Role: "clinician"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := svc.StaffExists(context.Background(), st.ID)
	if err != nil || !ok {
		t.Errorf("expected staff to exist, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.StaffExists(context.Background(), uuid.New())
	if err != nil || ok {
		t.Errorf("expected unknown staff to not exist, got ok=%v err=%v", ok, err)
	}
}

// -- Department Tests --

func TestCreateDepartment(t *testing.T) {
	svc := newTestService()
	d, err := svc.CreateDepartment(context.Background(), &Department{Name: "General Medicine", Code: "GEN"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
}

func TestCreateDepartment_CodeRequired(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateDepartment(context.Background(), &Department{Name: "General Medicine"})
	if err == nil {
		t.Error("expected error for missing code")
	}
}

func TestUpdateDepartment_CodeImmutable(t *testing.T) {
	svc := newTestService()
	d, err := svc.CreateDepartment(context.Background(), &Department{Name: "General Medicine", Code: "GEN"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, err := svc.UpdateDepartment(context.Background(), d.ID, &Department{Name: "Internal Medicine", Code: "INT", Active: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Code != "GEN" {
		t.Errorf("expected code to stay GEN, got %s", updated.Code)
	}
	if updated.Name != "Internal Medicine" {
		t.Errorf("expected name updated, got %s", updated.Name)
	}
}

func TestDepartmentExists(t *testing.T) {
	svc := newTestService()
	d, err := svc.CreateDepartment(context.Background(), &Department{Name: "General Medicine", Code: "GEN"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := svc.DepartmentExists(context.Background(), d.ID)
	if err != nil || !ok {
		t.Errorf("expected department to exist, got ok=%v err=%v", ok, err)
	}
	ok, err = svc.DepartmentExists(context.Background(), uuid.New())
	if err != nil || ok {
		t.Errorf("expected unknown department to not exist, got ok=%v err=%v", ok, err)
	}
}
