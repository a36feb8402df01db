package directory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperr"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
)

var (
	ErrPatientNotFound    = apperr.NotFound("PATIENT_NOT_FOUND", "patient not found")
	ErrStaffNotFound      = apperr.NotFound("STAFF_NOT_FOUND", "staff member not found")
	ErrDepartmentNotFound = apperr.NotFound("DEPARTMENT_NOT_FOUND", "department not found")
	ErrDuplicateMRN       = apperr.Conflict("DUPLICATE_MRN", "a patient with this MRN already exists")
)

// Service owns patient, staff, and department records. The scheduling and
// front-desk services depend on it only through the narrow existence checks
// they each declare.
type Service struct {
	patients    PatientRepository
	staff       StaffRepository
	departments DepartmentRepository
}

func NewService(patients PatientRepository, staff StaffRepository, departments DepartmentRepository) *Service {
	return &Service{patients: patients, staff: staff, departments: departments}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) (*Patient, error) {
	if strings.TrimSpace(p.MRN) == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "mrn is required")
	}
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "first_name and last_name are required")
	}
	p.Active = true
	if err := s.patients.Create(ctx, p); err != nil {
		if db.IsUniqueViolation(err, "uq_patient_mrn") {
			return nil, ErrDuplicateMRN
		}
		return nil, apperr.Internal("create patient", err)
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPatientNotFound
		}
		return nil, apperr.Internal("get patient", err)
	}
	return p, nil
}

func (s *Service) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	p, err := s.patients.GetByMRN(ctx, mrn)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPatientNotFound
		}
		return nil, apperr.Internal("get patient by mrn", err)
	}
	return p, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, p *Patient) (*Patient, error) {
	existing, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "first_name and last_name are required")
	}
	p.ID = existing.ID
	p.MRN = existing.MRN // MRN is immutable after registration
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, apperr.Internal("update patient", err)
	}
	return s.GetPatient(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.Search(ctx, params, limit, offset)
}

// PatientExists reports whether a patient record exists, active or not.
func (s *Service) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PatientIsActive reports whether a patient exists and is active.
func (s *Service) PatientIsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return p.Active, nil
}

func (s *Service) CreateStaff(ctx context.Context, st *Staff) (*Staff, error) {
	if strings.TrimSpace(st.FirstName) == "" || strings.TrimSpace(st.LastName) == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "first_name and last_name are required")
	}
	if !StaffRoles[st.Role] {
		return nil, apperr.Validation("INVALID_ROLE", "role must be one of admin, clinician, nurse, receptionist")
	}
	if st.DepartmentID != nil {
		ok, err := s.DepartmentExists(ctx, *st.DepartmentID)
		if err != nil {
			return nil, apperr.Internal("check department", err)
		}
		if !ok {
			return nil, ErrDepartmentNotFound
		}
	}
	st.Active = true
	if err := s.staff.Create(ctx, st); err != nil {
		return nil, apperr.Internal("create staff", err)
	}
	return st, nil
}

func (s *Service) GetStaff(ctx context.Context, id uuid.UUID) (*Staff, error) {
	st, err := s.staff.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrStaffNotFound
		}
		return nil, apperr.Internal("get staff", err)
	}
	return st, nil
}

func (s *Service) UpdateStaff(ctx context.Context, id uuid.UUID, st *Staff) (*Staff, error) {
	existing, err := s.GetStaff(ctx, id)
	if err != nil {
		return nil, err
	}
	if !StaffRoles[st.Role] {
		return nil, apperr.Validation("INVALID_ROLE", "role must be one of admin, clinician, nurse, receptionist")
	}
	if st.DepartmentID != nil {
		ok, err := s.DepartmentExists(ctx, *st.DepartmentID)
		if err != nil {
			return nil, apperr.Internal("check department", err)
		}
		if !ok {
			return nil, ErrDepartmentNotFound
		}
	}
	st.ID = existing.ID
	if err := s.staff.Update(ctx, st); err != nil {
		return nil, apperr.Internal("update staff", err)
	}
	return s.GetStaff(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context, limit, offset int) ([]*Staff, int, error) {
	return s.staff.List(ctx, limit, offset)
}

func (s *Service) ListStaffByRole(ctx context.Context, role string, limit, offset int) ([]*Staff, int, error) {
	if !StaffRoles[role] {
		return nil, 0, apperr.Validation("INVALID_ROLE", "role must be one of admin, clinician, nurse, receptionist")
	}
	return s.staff.ListByRole(ctx, role, limit, offset)
}

// StaffExists reports whether a staff record exists, active or not.
func (s *Service) StaffExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.staff.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) CreateDepartment(ctx context.Context, d *Department) (*Department, error) {
	if strings.TrimSpace(d.Name) == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "name is required")
	}
	if strings.TrimSpace(d.Code) == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "code is required")
	}
	d.Active = true
	if err := s.departments.Create(ctx, d); err != nil {
		if db.IsUniqueViolation(err, "uq_department_code") {
			return nil, apperr.Conflict("DUPLICATE_DEPARTMENT_CODE", "a department with this code already exists")
		}
		return nil, apperr.Internal("create department", err)
	}
	return d, nil
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	d, err := s.departments.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrDepartmentNotFound
		}
		return nil, apperr.Internal("get department", err)
	}
	return d, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, id uuid.UUID, d *Department) (*Department, error) {
	existing, err := s.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(d.Name) == "" {
		return nil, apperr.Validation(apperr.CodeValidation, "name is required")
	}
	d.ID = existing.ID
	d.Code = existing.Code
	if err := s.departments.Update(ctx, d); err != nil {
		return nil, apperr.Internal("update department", err)
	}
	return s.GetDepartment(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	return s.departments.List(ctx, limit, offset)
}

// DepartmentExists reports whether a department record exists, active or not.
func (s *Service) DepartmentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.departments.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
