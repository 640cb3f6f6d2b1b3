package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ConsentActionOptIn  = "opt_in"
	ConsentSourceImport = "csv import"
)

type Customer struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Phone     string
}

type NewCustomer struct {
	FirstName    string
	LastName     string
	Phone        string
	Email        *string
	SMSConsent   bool
	SMSConsentAt *time.Time
	Vehicle      *NewVehicle
}

type NewVehicle struct {
	Year         int
	Make         string
	Model        string
	VIN          *string
	LicensePlate *string
	Mileage      *int
	Service      *NewServiceRecord
}

type NewServiceRecord struct {
	ServiceType    ServiceType
	ServiceDate    time.Time
	Mileage        int
	Description    *string
	NextDueDate    time.Time
	NextDueMileage int
}

// CustomerRepository is the persistence boundary of the committer.
// FindByPhone returns nil, nil when no customer matches. CreateCustomer
// writes the customer and its optional vehicle and service record
// atomically, and returns ErrDuplicateCustomer on a phone conflict.
type CustomerRepository interface {
	FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*Customer, error)
	CreateCustomer(ctx context.Context, tenantID uuid.UUID, customer NewCustomer) (Customer, error)
	LogConsentEvent(ctx context.Context, tenantID, customerID uuid.UUID, action, source string) error
}

// VehicleAttacher adds a vehicle to an existing customer. attached is false
// when the customer already has that vehicle.
type VehicleAttacher interface {
	AttachVehicle(ctx context.Context, tenantID, customerID uuid.UUID, vehicle NewVehicle) (attached bool, err error)
}

type CommitOptions struct {
	SMSConsent     bool
	DetectedFormat string
}

type Committer struct {
	Repo      CustomerRepository
	Intervals IntervalSource
	Schedule  Schedule
	// EnrichExisting attaches vehicles to customers that already exist
	// instead of skipping them. Requires Repo to implement VehicleAttacher.
	EnrichExisting bool
	Logger         *zap.Logger
	Now            func() time.Time
}

func NewCommitter(repo CustomerRepository, logger *zap.Logger) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Committer{
		Repo:     repo,
		Schedule: DefaultSchedule(),
		Logger:   logger,
		Now:      time.Now,
	}
}

type commitRun struct {
	*Committer
	tenantID  uuid.UUID
	opts      CommitOptions
	res       ImportResult
	intervals map[ServiceType]Interval
}

// Commit writes accepted rows one at a time in file order. Failures are
// recorded per row and never abort the batch. Cancelling ctx stops before
// the next row; rows already written stay written.
func (c *Committer) Commit(ctx context.Context, tenantID uuid.UUID, rows []CleanedRow, opts CommitOptions) ImportResult {
	run := &commitRun{
		Committer: c,
		tenantID:  tenantID,
		opts:      opts,
		res:       ImportResult{DetectedFormat: opts.DetectedFormat},
		intervals: map[ServiceType]Interval{},
	}

	processed := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			run.res.Cancelled = true
			break
		}
		run.commitRow(ctx, row)
		if run.res.Cancelled {
			break
		}
		processed++
	}

	run.res.Message = resultMessage(run.res, processed, len(rows))
	c.Logger.Info("import committed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("rows", len(rows)),
		zap.Int("success", run.res.Success),
		zap.Int("duplicates", run.res.Duplicates),
		zap.Int("errors", run.res.Errors),
		zap.Bool("cancelled", run.res.Cancelled),
	)
	return run.res
}

// CommitRecords cleans field-keyed records server-side and commits them.
// Records that fail validation are counted as errors, not written.
func (c *Committer) CommitRecords(ctx context.Context, tenantID uuid.UUID, records []map[Field]string, opts CommitOptions) ImportResult {
	rows := make([]CleanedRow, len(records))
	for i, rec := range records {
		rows[i] = CleanRecord(i, rec)
	}
	return c.Commit(ctx, tenantID, rows, opts)
}

func (r *commitRun) commitRow(ctx context.Context, row CleanedRow) {
	n := row.Index + 1
	phone := row.Value(FieldPhone)
	firstName := row.Value(FieldFirstName)
	if len(digitsOnly(phone)) < 10 || firstName == "" {
		r.res.Errors++
		r.res.addDetail(fmt.Sprintf("Row %d: missing phone or first name", n))
		return
	}
	if row.HasError {
		r.res.Errors++
		r.res.addDetail(fmt.Sprintf("Row %d: %s", n, firstError(row)))
		return
	}

	existing, err := r.Repo.FindByPhone(ctx, r.tenantID, phone)
	if err != nil {
		r.fail(ctx, n, phone, fmt.Errorf("look up customer: %w", err))
		return
	}

	if existing != nil {
		if r.enrich(ctx, n, existing, row) {
			return
		}
		r.res.Duplicates++
		return
	}

	vehicle, err := r.vehicleFor(ctx, row)
	if err != nil {
		r.fail(ctx, n, phone, err)
		return
	}

	customer := NewCustomer{
		FirstName: firstName,
		LastName:  row.Value(FieldLastName),
		Phone:     phone,
		Email:     optional(row.Value(FieldEmail)),
		Vehicle:   vehicle,
	}
	if r.opts.SMSConsent {
		now := r.now()
		customer.SMSConsent = true
		customer.SMSConsentAt = &now
	}

	created, err := r.Repo.CreateCustomer(ctx, r.tenantID, customer)
	if errors.Is(err, ErrDuplicateCustomer) {
		r.res.Duplicates++
		return
	}
	if err != nil {
		r.fail(ctx, n, phone, fmt.Errorf("create customer: %w", err))
		return
	}

	r.res.Success++
	r.countVehicle(vehicle)

	if r.opts.SMSConsent {
		if err := r.Repo.LogConsentEvent(ctx, r.tenantID, created.ID, ConsentActionOptIn, ConsentSourceImport); err != nil {
			r.Logger.Warn("consent event not logged",
				zap.Int("row", n),
				zap.String("customer_id", created.ID.String()),
				zap.Error(err),
			)
			r.res.addDetail(fmt.Sprintf("Row %d: imported, but the consent event was not recorded", n))
		}
	}
}

// enrich attaches the row's vehicle to an existing customer when enabled.
// It reports whether the row was fully handled.
func (r *commitRun) enrich(ctx context.Context, n int, existing *Customer, row CleanedRow) bool {
	if !r.EnrichExisting {
		return false
	}
	attacher, ok := r.Repo.(VehicleAttacher)
	if !ok {
		return false
	}
	vehicle, err := r.vehicleFor(ctx, row)
	if err != nil {
		r.fail(ctx, n, existing.Phone, err)
		return true
	}
	if vehicle == nil {
		return false
	}
	attached, err := attacher.AttachVehicle(ctx, r.tenantID, existing.ID, *vehicle)
	if err != nil {
		r.fail(ctx, n, existing.Phone, fmt.Errorf("attach vehicle: %w", err))
		return true
	}
	if !attached {
		return false
	}
	r.res.Updated++
	r.countVehicle(vehicle)
	return true
}

func (r *commitRun) countVehicle(vehicle *NewVehicle) {
	if vehicle == nil {
		return
	}
	r.res.VehiclesCreated++
	if vehicle.Service != nil {
		r.res.ServiceRecordsCreated++
	}
}

func (r *commitRun) fail(ctx context.Context, n int, phone string, err error) {
	if ctx.Err() != nil {
		r.res.Cancelled = true
		return
	}
	r.Logger.Warn("import row failed",
		zap.Int("row", n),
		zap.String("phone", maskPhone(phone)),
		zap.Error(err),
	)
	r.res.Errors++
	r.res.addDetail(fmt.Sprintf("Row %d: %v", n, err))
}

// vehicleFor derives the vehicle and service record carried by a row. A
// vehicle needs year, make and model; a service record also needs a date
// and a mileage.
func (r *commitRun) vehicleFor(ctx context.Context, row CleanedRow) (*NewVehicle, error) {
	yearText, vmake, model := row.Value(FieldVehicleYear), row.Value(FieldVehicleMake), row.Value(FieldVehicleModel)
	if yearText == "" || vmake == "" || model == "" {
		return nil, nil
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return nil, nil
	}

	vehicle := &NewVehicle{
		Year:         year,
		Make:         vmake,
		Model:        model,
		VIN:          optional(row.Value(FieldVIN)),
		LicensePlate: optional(row.Value(FieldLicensePlate)),
	}

	mileage, err := strconv.Atoi(row.Value(FieldServiceMileage))
	hasMileage := err == nil
	if hasMileage {
		vehicle.Mileage = &mileage
	}
	serviceDate, hasDate := ParseCleanDate(row.Value(FieldServiceDate))
	if !hasDate || !hasMileage {
		return vehicle, nil
	}

	description := row.Value(FieldRepairDescription)
	serviceType := InferServiceType(description)
	interval, err := r.intervalFor(ctx, serviceType)
	if err != nil {
		return nil, err
	}
	nextDate, nextMileage := r.Schedule.NextDue(serviceDate, mileage, interval)
	vehicle.Service = &NewServiceRecord{
		ServiceType:    serviceType,
		ServiceDate:    serviceDate,
		Mileage:        mileage,
		Description:    optional(description),
		NextDueDate:    nextDate,
		NextDueMileage: nextMileage,
	}
	return vehicle, nil
}

func (r *commitRun) intervalFor(ctx context.Context, serviceType ServiceType) (Interval, error) {
	if iv, ok := r.intervals[serviceType]; ok {
		return iv, nil
	}
	iv := r.Schedule.Default
	if r.Intervals != nil {
		configured, ok, err := r.Intervals.ServiceInterval(ctx, r.tenantID, serviceType)
		if err != nil {
			return Interval{}, fmt.Errorf("load service interval: %w", err)
		}
		if ok {
			iv = configured
		}
	}
	r.intervals[serviceType] = iv
	return iv, nil
}

func (r *commitRun) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func resultMessage(res ImportResult, processed, total int) string {
	var b strings.Builder
	if res.Cancelled {
		fmt.Fprintf(&b, "Import cancelled after %d of %d rows. ", processed, total)
	}
	fmt.Fprintf(&b, "Imported %d %s", res.Success, plural(res.Success, "customer", "customers"))
	if res.Updated > 0 {
		fmt.Fprintf(&b, ", updated %d", res.Updated)
	}
	fmt.Fprintf(&b, ". %d %s skipped, %d %s.",
		res.Duplicates, plural(res.Duplicates, "duplicate", "duplicates"),
		res.Errors, plural(res.Errors, "error", "errors"))
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func firstError(row CleanedRow) string {
	for _, f := range outputFields {
		if c := row.Cells[f]; c.Status == StatusError {
			return fmt.Sprintf("%s: %s", f.Label(), c.Message)
		}
	}
	return "invalid row"
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
