package customer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Customers
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for customers
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Customer{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize customer.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create will insert a new Customer row. The ID will be populated if the
// caller did not provide one. Defaults for the status and role are applied
// here so admin-created rows are well formed too.
func (m *Manager) Create(ctx context.Context, cust *Customer) error {
	if cust.ID == "" {
		cust.ID = uuid.New().String()
	}
	if cust.PaymentStatus == "" {
		cust.PaymentStatus = StatusPending
	}
	if cust.Role == "" {
		cust.Role = RoleUser
	}
	result := m.db.WithContext(ctx).Create(cust)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create a new Customer")
	}
	return nil
}

// GetByID will try to return the customer in the database by row id
func (m *Manager) GetByID(ctx context.Context, id string) (*Customer, error) {
	var cust Customer

	result := m.db.WithContext(ctx).First(&cust, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get customer by id")
	}

	return &cust, nil
}

// GetByUserID will try to return the customer in the database by the
// identity provider's user id
func (m *Manager) GetByUserID(ctx context.Context, userID string) (*Customer, error) {
	var cust Customer

	result := m.db.WithContext(ctx).First(&cust, "user_id = ?", userID)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get customer by user id")
	}

	return &cust, nil
}

// List returns all customer rows
func (m *Manager) List(ctx context.Context) ([]Customer, error) {
	results := make([]Customer, 0, 1)
	result := m.db.WithContext(ctx).Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot list customers")
	}
	return results, nil
}

// Count returns the exact number of customer rows without fetching any
func (m *Manager) Count(ctx context.Context) (int64, error) {
	var count int64
	result := m.db.WithContext(ctx).Model(&Customer{}).Count(&count)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return 0, extErrors.Wrap(result.Error, "Cannot count customers")
	}
	return count, nil
}

// Delete removes a customer row by id. It does not cascade to the
// identity provider.
func (m *Manager) Delete(ctx context.Context, id string) error {
	result := m.db.WithContext(ctx).Delete(&Customer{}, "id = ?", id)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot delete customer")
	}
	return nil
}

// SetBillCode persists the billing provider's bill code onto the
// customer row after bill creation
func (m *Manager) SetBillCode(ctx context.Context, id string, billCode string) error {
	result := m.db.WithContext(ctx).
		Model(&Customer{}).
		Where("id = ?", id).
		Update("toyyibpay_bill_code", billCode)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot persist bill code")
	}
	return nil
}

// MarkPaidByBillCode transitions the row matching the bill code to paid.
// It returns the number of rows affected so the caller can tell an
// unmatched bill code apart from a successful update. Re-applying the
// same bill code yields the same end state.
func (m *Manager) MarkPaidByBillCode(ctx context.Context, billCode string) (int64, error) {
	// Rows whose bill creation failed hold the zero-value code; an empty
	// filter would match every one of them.
	if billCode == "" {
		return 0, nil
	}
	result := m.db.WithContext(ctx).
		Model(&Customer{}).
		Where("toyyibpay_bill_code = ?", billCode).
		Update("payment_status", StatusPaid)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return 0, extErrors.Wrap(result.Error, "Cannot mark customer as paid")
	}
	return result.RowsAffected, nil
}
