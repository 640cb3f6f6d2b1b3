package importer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func newTestCommitter(repo CustomerRepository) *Committer {
	c := NewCommitter(repo, zap.NewNop())
	c.Now = func() time.Time { return fixedNow }
	return c
}

func TestCommitEndToEndWithinFileDuplicate(t *testing.T) {
	rows, _ := processCSV(t, "firstName,lastName,phone\nJohn,Doe,(555) 123-4567\nJane,Roe,555-123-4567\n")
	dups := FindInternalDuplicates(rows)
	require.Len(t, dups, 1)
	assert.Equal(t, 1, dups[0].RowIndex)

	repo := newFakeRepo()
	res := newTestCommitter(repo).Commit(context.Background(), uuid.New(), AcceptedRows(rows), CommitOptions{})

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Errors)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "John", repo.created[0].FirstName)
	assert.Equal(t, "Imported 1 customer. 1 duplicate skipped, 0 errors.", res.Message)
}

func TestCommitSkipsExistingCustomers(t *testing.T) {
	repo := newFakeRepo("5551234567")
	rows := rowsWithPhones("5551234567")

	res := newTestCommitter(repo).Commit(context.Background(), uuid.New(), rows, CommitOptions{})

	assert.Equal(t, 0, res.Success)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Errors)
	assert.Empty(t, repo.created)
}

func TestCommitAttachesVehicleAndServiceRecord(t *testing.T) {
	repo := newFakeRepo()
	row := CleanRecord(0, map[Field]string{
		FieldFirstName:         "Jane",
		FieldPhone:             "5125550100",
		FieldEmail:             "JANE@example.com",
		FieldYearMakeModel:     "2018 Toyota Camry",
		FieldVIN:               "4t1b11hk5ju123456",
		FieldServiceDate:       "01/15/2024",
		FieldServiceMileage:    "45,000",
		FieldRepairDescription: "Brake pads front",
	})
	partial := CleanRecord(1, map[Field]string{
		FieldFirstName:     "Ann",
		FieldPhone:         "5125550101",
		FieldYearMakeModel: "2012 Ford Focus",
	})
	bare := CleanRecord(2, map[Field]string{FieldFirstName: "Bo", FieldPhone: "5125550102"})

	res := newTestCommitter(repo).Commit(context.Background(), uuid.New(), []CleanedRow{row, partial, bare}, CommitOptions{})

	assert.Equal(t, 3, res.Success)
	assert.Equal(t, 2, res.VehiclesCreated)
	assert.Equal(t, 1, res.ServiceRecordsCreated)

	require.Len(t, repo.created, 3)
	jane := repo.created[0]
	require.NotNil(t, jane.Email)
	assert.Equal(t, "jane@example.com", *jane.Email)
	require.NotNil(t, jane.Vehicle)
	assert.Equal(t, 2018, jane.Vehicle.Year)
	assert.Equal(t, "4T1B11HK5JU123456", *jane.Vehicle.VIN)
	require.NotNil(t, jane.Vehicle.Service)
	svc := jane.Vehicle.Service
	assert.Equal(t, ServiceBrake, svc.ServiceType)
	assert.Equal(t, 45000, svc.Mileage)
	assert.Equal(t, time.Date(2024, time.April, 14, 0, 0, 0, 0, time.UTC), svc.NextDueDate)
	assert.Equal(t, 50000, svc.NextDueMileage)

	require.NotNil(t, repo.created[1].Vehicle)
	assert.Nil(t, repo.created[1].Vehicle.Service)
	assert.Nil(t, repo.created[2].Vehicle)
}

type fixedIntervals map[ServiceType]Interval

func (f fixedIntervals) ServiceInterval(ctx context.Context, tenantID uuid.UUID, service ServiceType) (Interval, bool, error) {
	iv, ok := f[service]
	return iv, ok, nil
}

type failingIntervals struct{}

func (failingIntervals) ServiceInterval(ctx context.Context, tenantID uuid.UUID, service ServiceType) (Interval, bool, error) {
	return Interval{}, false, errBoom
}

func TestCommitExistingCustomerSkipsDerivation(t *testing.T) {
	repo := newFakeRepo("5125550100")
	c := newTestCommitter(repo)
	c.Intervals = failingIntervals{}

	row := CleanRecord(0, map[Field]string{
		FieldFirstName:      "Jane",
		FieldPhone:          "5125550100",
		FieldVehicleYear:    "2020",
		FieldVehicleMake:    "Honda",
		FieldVehicleModel:   "Fit",
		FieldServiceDate:    "2024-01-01",
		FieldServiceMileage: "10000",
	})
	res := c.Commit(context.Background(), uuid.New(), []CleanedRow{row}, CommitOptions{})

	assert.Equal(t, 0, res.Success)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Errors)
	assert.Empty(t, res.Details)
	assert.Empty(t, repo.created)
}

func TestCommitUsesConfiguredServiceInterval(t *testing.T) {
	repo := newFakeRepo()
	c := newTestCommitter(repo)
	c.Intervals = fixedIntervals{ServiceOilChange: {Days: 180, Miles: 7500}}

	row := CleanRecord(0, map[Field]string{
		FieldFirstName:      "Jane",
		FieldPhone:          "5125550100",
		FieldVehicleYear:    "2020",
		FieldVehicleMake:    "Honda",
		FieldVehicleModel:   "Fit",
		FieldServiceDate:    "2024-01-01",
		FieldServiceMileage: "10000",
	})
	res := c.Commit(context.Background(), uuid.New(), []CleanedRow{row}, CommitOptions{})
	require.Equal(t, 1, res.Success)

	svc := repo.created[0].Vehicle.Service
	assert.Equal(t, ServiceOilChange, svc.ServiceType)
	assert.Equal(t, time.Date(2024, time.June, 29, 0, 0, 0, 0, time.UTC), svc.NextDueDate)
	assert.Equal(t, 17500, svc.NextDueMileage)
}

func TestCommitRecordsConsent(t *testing.T) {
	repo := newFakeRepo()
	rows := rowsWithPhones("5551234567", "5559999999")

	res := newTestCommitter(repo).Commit(context.Background(), uuid.New(), rows, CommitOptions{SMSConsent: true})

	assert.Equal(t, 2, res.Success)
	assert.Len(t, repo.consents, 2)
	for _, c := range repo.created {
		assert.True(t, c.SMSConsent)
		require.NotNil(t, c.SMSConsentAt)
		assert.Equal(t, fixedNow, *c.SMSConsentAt)
	}
}

func TestCommitConsentFailureKeepsCustomer(t *testing.T) {
	repo := newFakeRepo()
	repo.consentErr = errBoom

	res := newTestCommitter(repo).Commit(context.Background(), uuid.New(), rowsWithPhones("5551234567"), CommitOptions{SMSConsent: true})

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 0, res.Errors)
	require.Len(t, res.Details, 1)
	assert.Contains(t, res.Details[0], "consent event was not recorded")
}

func TestCommitDefenseInDepthAndFailures(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr["5550000002"] = errBoom

	rows := []CleanedRow{
		{Index: 0, Cells: map[Field]CleanedCell{FieldPhone: {Value: "555"}, FieldFirstName: {Value: "Ann"}}},
		{Index: 1, Cells: map[Field]CleanedCell{FieldPhone: {Value: "5550000001"}}},
		{Index: 2, Cells: map[Field]CleanedCell{FieldPhone: {Value: "5550000002"}, FieldFirstName: {Value: "Cal"}}},
		{Index: 3, Cells: map[Field]CleanedCell{FieldPhone: {Value: "5550000003"}, FieldFirstName: {Value: "Dee"}}},
	}

	res := newTestCommitter(repo).Commit(context.Background(), uuid.New(), rows, CommitOptions{})

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 3, res.Errors)
	assert.Equal(t, []string{
		"Row 1: missing phone or first name",
		"Row 2: missing phone or first name",
		"Row 3: create customer: boom",
	}, res.Details)
}

func TestCommitCapsDetails(t *testing.T) {
	repo := newFakeRepo()
	rows := make([]CleanedRow, 15)
	for i := range rows {
		rows[i] = CleanedRow{Index: i, Cells: map[Field]CleanedCell{FieldPhone: {Value: fmt.Sprint(i)}}}
	}

	res := newTestCommitter(repo).Commit(context.Background(), uuid.New(), rows, CommitOptions{})

	assert.Equal(t, 15, res.Errors)
	assert.Len(t, res.Details, MaxResultDetails)
	assert.True(t, res.DetailsTruncated)
}

func TestCommitUniqueConflictCountsAsDuplicate(t *testing.T) {
	repo := newFakeRepo()
	repo.createErr["5551234567"] = fmt.Errorf("insert customer: %w", ErrDuplicateCustomer)

	res := newTestCommitter(repo).Commit(context.Background(), uuid.New(), rowsWithPhones("5551234567"), CommitOptions{})

	assert.Equal(t, 0, res.Success)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Errors)
}

func TestCommitStopsBetweenRowsWhenCancelled(t *testing.T) {
	repo := newFakeRepo()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	repo.afterFind = func() {
		calls++
		if calls == 2 {
			cancel()
		}
	}

	rows := rowsWithPhones("5550000001", "5550000002", "5550000003", "5550000004")
	res := newTestCommitter(repo).Commit(ctx, uuid.New(), rows, CommitOptions{})

	assert.True(t, res.Cancelled)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 0, res.Errors)
	assert.Len(t, repo.created, 2)
	assert.Contains(t, res.Message, "Import cancelled after 2 of 4 rows")
}

func TestCommitEnrichesExistingCustomers(t *testing.T) {
	base := newFakeRepo("5125550100")
	repo := attachingRepo{base}
	c := newTestCommitter(repo)
	c.EnrichExisting = true

	row := CleanRecord(0, map[Field]string{
		FieldFirstName:     "Jane",
		FieldPhone:         "5125550100",
		FieldYearMakeModel: "2018 Toyota Camry",
	})

	res := c.Commit(context.Background(), uuid.New(), []CleanedRow{row, row}, CommitOptions{})

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.VehiclesCreated)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Success)
	assert.Empty(t, base.created)
}

func TestInferServiceType(t *testing.T) {
	tests := map[string]ServiceType{
		"Oil change":                ServiceOilChange,
		"5W-30 synthetic":           ServiceOilChange,
		"Rotate tires":              ServiceTireRotation,
		"tire rotation and balance": ServiceTireRotation,
		"State inspection":          ServiceStateInspection,
		"Front brake pads":          ServiceBrake,
		"Transmission flush":        ServiceTransmission,
		"Replaced wiper blades":     ServiceOilChange,
		"":                          ServiceOilChange,
	}
	for description, want := range tests {
		assert.Equal(t, want, InferServiceType(description), description)
	}
}

func TestCommitRecordsRevalidatesServerSide(t *testing.T) {
	repo := newFakeRepo()
	records := []map[Field]string{
		{FieldFirstName: "ann", FieldPhone: "(512) 555-0100", FieldEmail: "not-an-email"},
		{FieldFullName: "Bob Smith", FieldPhone: "512-555-0101"},
		{FieldPhone: "123"},
	}

	res := newTestCommitter(repo).CommitRecords(context.Background(), uuid.New(), records, CommitOptions{})

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 2, res.Errors)
	assert.Equal(t, []string{
		"Row 1: Email: Invalid email address",
		"Row 3: missing phone or first name",
	}, res.Details)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "Bob", repo.created[0].FirstName)
	assert.Equal(t, "Smith", repo.created[0].LastName)
	assert.Equal(t, "5125550101", repo.created[0].Phone)
}
