package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/homecare/settlement-engine/staffing"
)

// =============================================================================
// CAREGIVERS
// =============================================================================

// CaregiverInput is the writable part of a caregiver record. Availability is
// not writable here: only the order lifecycle moves it.
type CaregiverInput struct {
	WorkerID         string
	Name             string
	Phone            string
	MonthlySalary    *decimal.Decimal
	EmploymentStatus staffing.EmploymentStatus
}

func (in CaregiverInput) validate() error {
	v := newValidator()
	v.required("workerId", in.WorkerID, "is required")
	v.required("name", in.Name, "is required")
	v.phone("phone", in.Phone, false)
	v.nonNegative("monthlySalary", in.MonthlySalary)
	if in.EmploymentStatus != "" && !in.EmploymentStatus.Valid() {
		v.errs.Add("employmentStatus", "unknown employment status")
	}
	return v.err()
}

// CreateCaregiver registers a caregiver as IDLE.
func (s *Service) CreateCaregiver(ctx context.Context, in CaregiverInput) (*staffing.Caregiver, error) {
	if err := in.validate(); err != nil {
		return nil, s.fail("create_caregiver", err)
	}
	now := s.now().UTC()
	c := staffing.Caregiver{
		ID:               uuid.NewString(),
		Availability:     staffing.AvailabilityIdle,
		EmploymentStatus: staffing.EmploymentActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	applyCaregiver(&c, in)

	err := s.store.WithTx(ctx, func(tx staffing.Store) error {
		if err := uniqueWorkerID(ctx, tx, c.WorkerID, ""); err != nil {
			return err
		}
		return tx.SaveCaregiver(ctx, c)
	})
	if err != nil {
		return nil, s.fail("create_caregiver", err)
	}
	s.logger.Info("caregiver created",
		zap.String("caregiver_id", c.ID),
		zap.String("worker_id", c.WorkerID),
	)
	return &c, nil
}

// UpdateCaregiver replaces a caregiver's writable fields.
func (s *Service) UpdateCaregiver(ctx context.Context, id string, in CaregiverInput) (*staffing.Caregiver, error) {
	if err := in.validate(); err != nil {
		return nil, s.fail("update_caregiver", err)
	}
	var updated staffing.Caregiver
	err := s.store.WithTx(ctx, func(tx staffing.Store) error {
		existing, err := tx.GetCaregiver(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return caregiverNotFound(id)
		}
		if err := uniqueWorkerID(ctx, tx, in.WorkerID, id); err != nil {
			return err
		}
		updated = *existing
		applyCaregiver(&updated, in)
		updated.UpdatedAt = s.now().UTC()
		return tx.SaveCaregiver(ctx, updated)
	})
	if err != nil {
		return nil, s.fail("update_caregiver", err)
	}
	return &updated, nil
}

// GetCaregiver resolves a caregiver by id, worker id, name or phone.
func (s *Service) GetCaregiver(ctx context.Context, ref string) (*staffing.Caregiver, error) {
	c, err := s.store.FindCaregiver(ctx, ref)
	if err != nil {
		return nil, s.fail("get_caregiver", err)
	}
	if c == nil {
		return nil, s.fail("get_caregiver", caregiverNotFound(ref))
	}
	return c, nil
}

// ListCaregivers returns caregivers matching f, newest first.
func (s *Service) ListCaregivers(ctx context.Context, f staffing.CaregiverFilter) ([]staffing.Caregiver, error) {
	list, err := s.store.SearchCaregivers(ctx, f)
	if err != nil {
		return nil, s.fail("list_caregivers", err)
	}
	return list, nil
}

func applyCaregiver(c *staffing.Caregiver, in CaregiverInput) {
	c.WorkerID = strings.TrimSpace(in.WorkerID)
	c.Name = strings.TrimSpace(in.Name)
	c.Phone = strings.TrimSpace(in.Phone)
	c.MonthlySalary = in.MonthlySalary
	if in.EmploymentStatus != "" {
		c.EmploymentStatus = in.EmploymentStatus
	}
}

func uniqueWorkerID(ctx context.Context, tx staffing.Store, workerID, selfID string) error {
	workerID = strings.TrimSpace(workerID)
	matches, err := tx.SearchCaregivers(ctx, staffing.CaregiverFilter{Query: workerID})
	if err != nil {
		return err
	}
	for _, c := range matches {
		if c.WorkerID == workerID && c.ID != selfID {
			verrs := staffing.ValidationErrors{}
			verrs.Add("workerId", "is already in use")
			return verrs
		}
	}
	return nil
}
