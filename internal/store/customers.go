package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const customerPhoneConstraint = "customers_tenant_phone_key"

// Customers adapts the query layer to the importer's repository
// interfaces. Each created customer is written together with its vehicle
// and service record in one transaction.
type Customers struct {
	pool *pgxpool.Pool
	q    *Queries
}

func NewCustomers(pool *pgxpool.Pool) *Customers {
	return &Customers{pool: pool, q: New(pool)}
}

func (c *Customers) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*importer.Customer, error) {
	row, err := c.q.GetCustomerByPhone(ctx, tenantID, phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &importer.Customer{ID: row.ID, FirstName: row.FirstName, LastName: row.LastName, Phone: row.Phone}, nil
}

func (c *Customers) ExistingPhones(ctx context.Context, tenantID uuid.UUID, phones []string) ([]string, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	return c.q.ListExistingPhones(ctx, tenantID, phones)
}

func (c *Customers) CreateCustomer(ctx context.Context, tenantID uuid.UUID, customer importer.NewCustomer) (importer.Customer, error) {
	var created CustomerRow
	err := pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		qtx := c.q.WithTx(tx)
		var err error
		created, err = qtx.InsertCustomer(ctx, InsertCustomerParams{
			TenantID:     tenantID,
			FirstName:    customer.FirstName,
			LastName:     customer.LastName,
			Phone:        customer.Phone,
			Email:        customer.Email,
			SMSConsent:   customer.SMSConsent,
			SMSConsentAt: customer.SMSConsentAt,
		})
		if err != nil {
			if isUniqueConstraint(err, customerPhoneConstraint) {
				return importer.ErrDuplicateCustomer
			}
			return fmt.Errorf("insert customer: %w", err)
		}
		if customer.Vehicle == nil {
			return nil
		}
		return saveVehicle(ctx, qtx, tenantID, created.ID, *customer.Vehicle)
	})
	if err != nil {
		return importer.Customer{}, err
	}
	return importer.Customer{ID: created.ID, FirstName: created.FirstName, LastName: created.LastName, Phone: created.Phone}, nil
}

func (c *Customers) AttachVehicle(ctx context.Context, tenantID, customerID uuid.UUID, vehicle importer.NewVehicle) (bool, error) {
	attached := false
	err := pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		qtx := c.q.WithTx(tx)
		exists, err := qtx.VehicleExists(ctx, tenantID, customerID, vehicle.Year, vehicle.Make, vehicle.Model)
		if err != nil {
			return fmt.Errorf("check vehicle: %w", err)
		}
		if exists {
			return nil
		}
		if err := saveVehicle(ctx, qtx, tenantID, customerID, vehicle); err != nil {
			return err
		}
		attached = true
		return nil
	})
	return attached, err
}

func saveVehicle(ctx context.Context, q *Queries, tenantID, customerID uuid.UUID, v importer.NewVehicle) error {
	vehicleID, err := q.InsertVehicle(ctx, InsertVehicleParams{
		TenantID:     tenantID,
		CustomerID:   customerID,
		Year:         v.Year,
		Make:         v.Make,
		Model:        v.Model,
		VIN:          v.VIN,
		LicensePlate: v.LicensePlate,
		Mileage:      v.Mileage,
	})
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}
	if v.Service == nil {
		return nil
	}
	s := v.Service
	if _, err := q.InsertServiceRecord(ctx, InsertServiceRecordParams{
		TenantID:       tenantID,
		VehicleID:      vehicleID,
		ServiceType:    string(s.ServiceType),
		ServiceDate:    s.ServiceDate,
		Mileage:        s.Mileage,
		Description:    s.Description,
		NextDueDate:    s.NextDueDate,
		NextDueMileage: s.NextDueMileage,
	}); err != nil {
		return fmt.Errorf("insert service record: %w", err)
	}
	return nil
}

func (c *Customers) LogConsentEvent(ctx context.Context, tenantID, customerID uuid.UUID, action, source string) error {
	if err := c.q.InsertConsentEvent(ctx, tenantID, customerID, action, source); err != nil {
		return fmt.Errorf("insert consent event: %w", err)
	}
	return nil
}

func (c *Customers) ServiceInterval(ctx context.Context, tenantID uuid.UUID, service importer.ServiceType) (importer.Interval, bool, error) {
	days, miles, err := c.q.GetServiceInterval(ctx, tenantID, string(service))
	if errors.Is(err, pgx.ErrNoRows) {
		return importer.Interval{}, false, nil
	}
	if err != nil {
		return importer.Interval{}, false, err
	}
	return importer.Interval{Days: days, Miles: miles}, true, nil
}
