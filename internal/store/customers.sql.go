package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CustomerRow struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	FirstName string
	LastName  string
	Phone     string
	Email     *string
}

const getCustomerByPhone = `
SELECT id, tenant_id, first_name, last_name, phone, email
FROM customers
WHERE tenant_id = $1 AND phone = $2
`

func (q *Queries) GetCustomerByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (CustomerRow, error) {
	var c CustomerRow
	err := q.db.QueryRow(ctx, getCustomerByPhone, tenantID, phone).Scan(
		&c.ID, &c.TenantID, &c.FirstName, &c.LastName, &c.Phone, &c.Email,
	)
	return c, err
}

const listExistingPhones = `
SELECT phone
FROM customers
WHERE tenant_id = $1 AND phone = ANY($2::text[])
ORDER BY phone
`

func (q *Queries) ListExistingPhones(ctx context.Context, tenantID uuid.UUID, phones []string) ([]string, error) {
	rows, err := q.db.Query(ctx, listExistingPhones, tenantID, phones)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, err
		}
		out = append(out, phone)
	}
	return out, rows.Err()
}

type InsertCustomerParams struct {
	TenantID     uuid.UUID
	FirstName    string
	LastName     string
	Phone        string
	Email        *string
	SMSConsent   bool
	SMSConsentAt *time.Time
}

const insertCustomer = `
INSERT INTO customers (tenant_id, first_name, last_name, phone, email, sms_consent, sms_consent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, tenant_id, first_name, last_name, phone, email
`

func (q *Queries) InsertCustomer(ctx context.Context, arg InsertCustomerParams) (CustomerRow, error) {
	var c CustomerRow
	err := q.db.QueryRow(ctx, insertCustomer,
		arg.TenantID, arg.FirstName, arg.LastName, arg.Phone, arg.Email, arg.SMSConsent, arg.SMSConsentAt,
	).Scan(&c.ID, &c.TenantID, &c.FirstName, &c.LastName, &c.Phone, &c.Email)
	return c, err
}

type InsertVehicleParams struct {
	TenantID     uuid.UUID
	CustomerID   uuid.UUID
	Year         int
	Make         string
	Model        string
	VIN          *string
	LicensePlate *string
	Mileage      *int
}

const insertVehicle = `
INSERT INTO vehicles (tenant_id, customer_id, year, make, model, vin, license_plate, mileage)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`

func (q *Queries) InsertVehicle(ctx context.Context, arg InsertVehicleParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, insertVehicle,
		arg.TenantID, arg.CustomerID, arg.Year, arg.Make, arg.Model, arg.VIN, arg.LicensePlate, arg.Mileage,
	).Scan(&id)
	return id, err
}

const vehicleExists = `
SELECT EXISTS (
    SELECT 1 FROM vehicles
    WHERE tenant_id = $1 AND customer_id = $2 AND year = $3
      AND lower(make) = lower($4) AND lower(model) = lower($5)
)
`

func (q *Queries) VehicleExists(ctx context.Context, tenantID, customerID uuid.UUID, year int, vmake, model string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, vehicleExists, tenantID, customerID, year, vmake, model).Scan(&exists)
	return exists, err
}

type InsertServiceRecordParams struct {
	TenantID       uuid.UUID
	VehicleID      uuid.UUID
	ServiceType    string
	ServiceDate    time.Time
	Mileage        int
	Description    *string
	NextDueDate    time.Time
	NextDueMileage int
}

const insertServiceRecord = `
INSERT INTO service_records (tenant_id, vehicle_id, service_type, service_date, mileage, description, next_due_date, next_due_mileage)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`

func (q *Queries) InsertServiceRecord(ctx context.Context, arg InsertServiceRecordParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, insertServiceRecord,
		arg.TenantID, arg.VehicleID, arg.ServiceType, arg.ServiceDate, arg.Mileage, arg.Description, arg.NextDueDate, arg.NextDueMileage,
	).Scan(&id)
	return id, err
}

const insertConsentEvent = `
INSERT INTO consent_events (tenant_id, customer_id, action, source)
VALUES ($1, $2, $3, $4)
`

func (q *Queries) InsertConsentEvent(ctx context.Context, tenantID, customerID uuid.UUID, action, source string) error {
	_, err := q.db.Exec(ctx, insertConsentEvent, tenantID, customerID, action, source)
	return err
}

const getServiceInterval = `
SELECT interval_days, interval_miles
FROM service_intervals
WHERE tenant_id = $1 AND service_type = $2
`

func (q *Queries) GetServiceInterval(ctx context.Context, tenantID uuid.UUID, serviceType string) (days, miles int, err error) {
	err = q.db.QueryRow(ctx, getServiceInterval, tenantID, serviceType).Scan(&days, &miles)
	return days, miles, err
}

const upsertServiceInterval = `
INSERT INTO service_intervals (tenant_id, service_type, interval_days, interval_miles)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant_id, service_type)
DO UPDATE SET interval_days = EXCLUDED.interval_days, interval_miles = EXCLUDED.interval_miles
`

func (q *Queries) UpsertServiceInterval(ctx context.Context, tenantID uuid.UUID, serviceType string, days, miles int) error {
	_, err := q.db.Exec(ctx, upsertServiceInterval, tenantID, serviceType, days, miles)
	return err
}
