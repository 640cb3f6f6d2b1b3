package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryCustomers struct {
	mu      sync.Mutex
	phones  map[string]uuid.UUID
	creates int

	lookupErr error
	// started and release, when set, pause the first create until release
	// is closed.
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newMemoryCustomers(existing ...string) *memoryCustomers {
	m := &memoryCustomers{phones: map[string]uuid.UUID{}}
	for _, p := range existing {
		m.phones[p] = uuid.New()
	}
	return m
}

func (m *memoryCustomers) ExistingPhones(ctx context.Context, tenantID uuid.UUID, phones []string) ([]string, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range phones {
		if _, ok := m.phones[p]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryCustomers) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*importer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.phones[phone]; ok {
		return &importer.Customer{ID: id, Phone: phone}, nil
	}
	return nil, nil
}

func (m *memoryCustomers) CreateCustomer(ctx context.Context, tenantID uuid.UUID, c importer.NewCustomer) (importer.Customer, error) {
	if m.started != nil {
		m.once.Do(func() {
			close(m.started)
			<-m.release
		})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.phones[c.Phone]; ok {
		return importer.Customer{}, importer.ErrDuplicateCustomer
	}
	id := uuid.New()
	m.phones[c.Phone] = id
	m.creates++
	return importer.Customer{ID: id, FirstName: c.FirstName, Phone: c.Phone}, nil
}

func (m *memoryCustomers) LogConsentEvent(ctx context.Context, tenantID, customerID uuid.UUID, action, source string) error {
	return nil
}

func newTestSession(t *testing.T, customers *memoryCustomers) *Session {
	t.Helper()
	return NewSession(uuid.New(), Deps{
		Phones:    customers,
		Committer: importer.NewCommitter(customers, zap.NewNop()),
		Logger:    zap.NewNop(),
	})
}

func mustParse(t *testing.T, csv string) *importer.ParsedFile {
	t.Helper()
	file, err := importer.Parse("customers.csv", []byte(csv))
	require.NoError(t, err)
	return file
}

func advanceTo(t *testing.T, s *Session, stage Stage) {
	t.Helper()
	for s.Stage() != stage {
		require.NoError(t, s.Next(context.Background()))
	}
}

const twoRowCSV = "firstName,lastName,phone\nJohn,Doe,(555) 123-4567\nJane,Roe,555-123-4567\n"

func TestSessionEndToEnd(t *testing.T) {
	customers := newMemoryCustomers()
	s := newTestSession(t, customers)

	require.NoError(t, s.Upload(mustParse(t, twoRowCSV)))
	assert.Equal(t, StageUpload, s.Stage())

	require.NoError(t, s.Next(context.Background()))
	v := s.View()
	assert.Equal(t, StageMapping, v.Stage)
	require.Len(t, v.Mappings, 3)
	assert.Equal(t, importer.FieldPhone, v.Mappings[2].Field)
	assert.Equal(t, 3, v.MappingStats.AutoDetected)

	require.NoError(t, s.Next(context.Background()))
	v = s.View()
	assert.Equal(t, StageCleaning, v.Stage)
	assert.Equal(t, 2, v.Summary.PhonesCleaned)

	require.NoError(t, s.Next(context.Background()))
	v = s.View()
	assert.Equal(t, StageReview, v.Stage)
	require.Len(t, v.Duplicates.Internal, 1)
	assert.Equal(t, 1, v.Duplicates.Internal[0].RowIndex)
	assert.Equal(t, ReviewCounts{Ready: 2, Errors: 0, Duplicates: 1, Clean: 2}, *v.Review)

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, "CSV", res.DetectedFormat)

	v = s.View()
	assert.Equal(t, StageComplete, v.Stage)
	require.NotNil(t, v.Result)
	assert.False(t, v.Importing)

	assert.ErrorIs(t, s.Back(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Next(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, s.Upload(mustParse(t, twoRowCSV)), ErrInvalidTransition)
	_, err = s.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Reset())
	v = s.View()
	assert.Equal(t, StageUpload, v.Stage)
	assert.Nil(t, v.File)
	assert.Nil(t, v.Result)
	assert.Nil(t, v.Mappings)
}

func TestSessionGates(t *testing.T) {
	s := newTestSession(t, newMemoryCustomers())

	err := s.Next(context.Background())
	var gateErr *GateError
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, StageUpload, gateErr.Stage)
	assert.ErrorIs(t, err, ErrGateBlocked)
	assert.ErrorIs(t, s.Back(), ErrInvalidTransition)

	require.NoError(t, s.Upload(mustParse(t, "Notes,Phone\nregular,5125550100\n")))
	require.NoError(t, s.Next(context.Background()))

	err = s.Next(context.Background())
	require.ErrorIs(t, err, ErrGateBlocked)
	assert.Contains(t, err.Error(), "First Name or Full Name")
	assert.Equal(t, StageMapping, s.Stage())

	require.NoError(t, s.SetMapping(0, importer.FieldFirstName))
	require.NoError(t, s.Next(context.Background()))
	assert.Equal(t, StageCleaning, s.Stage())
}

func TestSetMappingRefusesUsedFieldAndClearsRows(t *testing.T) {
	s := newTestSession(t, newMemoryCustomers())
	require.NoError(t, s.Upload(mustParse(t, "First Name,Last Name,Phone\njohn,doe,5125550100\n")))
	advanceTo(t, s, StageCleaning)
	assert.Equal(t, "John", s.View().Rows[0].Value(importer.FieldFirstName))

	assert.ErrorIs(t, s.SetMapping(0, importer.FieldFirstName), ErrInvalidTransition)

	require.NoError(t, s.Back())
	assert.ErrorIs(t, s.SetMapping(1, importer.FieldFirstName), importer.ErrFieldInUse)
	require.NoError(t, s.SetMapping(1, importer.FieldSkip))
	assert.Nil(t, s.View().Rows)

	require.NoError(t, s.Next(context.Background()))
	v := s.View()
	assert.Empty(t, v.Rows[0].Value(importer.FieldLastName))
	assert.Equal(t, 1, v.Summary.TotalRows)
}

func TestViewListsMappingOptionsOnlyWhileMapping(t *testing.T) {
	s := newTestSession(t, newMemoryCustomers())
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone\nAnn,5125550100\n")))
	assert.Nil(t, s.View().MappingOptions)

	advanceTo(t, s, StageMapping)
	v := s.View()
	require.Len(t, v.MappingOptions, 2)
	assert.Equal(t, importer.FieldSkip, v.MappingOptions[0][0].Field)
	for _, opt := range v.MappingOptions[1] {
		if opt.Field == importer.FieldFirstName {
			assert.True(t, opt.Used)
			assert.Equal(t, importer.FieldFirstName.Label()+" (used)", opt.Label)
		}
		if opt.Field == importer.FieldPhone {
			assert.False(t, opt.Used, "a column's own field is not marked used")
		}
	}

	advanceTo(t, s, StageCleaning)
	assert.Nil(t, s.View().MappingOptions)
}

func TestEditCellRecleansAndInvalidatesDuplicates(t *testing.T) {
	customers := newMemoryCustomers()
	s := newTestSession(t, customers)
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone\nAnn,555\nBob,5125550101\n")))
	advanceTo(t, s, StageCleaning)

	v := s.View()
	assert.Equal(t, 1, v.Summary.ErrorRows)

	_, _, err := s.EditCell(99, importer.FieldPhone, "5125550100")
	assert.ErrorIs(t, err, ErrRowNotFound)

	row, summary, err := s.EditCell(0, importer.FieldPhone, "(512) 555-0101")
	require.NoError(t, err)
	assert.Equal(t, "5125550101", row.Value(importer.FieldPhone))
	assert.False(t, row.HasError)
	assert.Equal(t, 0, summary.ErrorRows)

	require.NoError(t, s.Next(context.Background()))
	assert.Len(t, s.View().Duplicates.Internal, 1)

	require.NoError(t, s.Back())
	_, _, err = s.EditCell(0, importer.FieldPhone, "5125550100")
	require.NoError(t, err)
	assert.Nil(t, s.View().Duplicates)

	require.NoError(t, s.Next(context.Background()))
	assert.Empty(t, s.View().Duplicates.Internal)

	_, _, err = s.EditCell(0, importer.FieldPhone, "5125550100")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEditCellKeepsDuplicatesForOtherFields(t *testing.T) {
	s := newTestSession(t, newMemoryCustomers())
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone,Email\nAnn,5125550100,\n")))
	advanceTo(t, s, StageReview)
	require.NoError(t, s.Back())

	_, _, err := s.EditCell(0, importer.FieldEmail, "ANN@example.com")
	require.NoError(t, err)
	assert.NotNil(t, s.View().Duplicates)
}

func TestReviewReportsExistingCustomers(t *testing.T) {
	s := newTestSession(t, newMemoryCustomers("5125550100"))
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone\nAnn,5125550100\nBob,5125550101\n")))
	advanceTo(t, s, StageReview)

	v := s.View()
	require.Len(t, v.Duplicates.Existing, 1)
	assert.Equal(t, 0, v.Duplicates.Existing[0].RowIndex)

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Duplicates)
}

func TestReviewLookupFailureStaysOnCleaning(t *testing.T) {
	customers := newMemoryCustomers()
	customers.lookupErr = errors.New("connection refused")
	s := newTestSession(t, customers)
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone\nAnn,5125550100\n")))
	advanceTo(t, s, StageCleaning)

	err := s.Next(context.Background())
	require.ErrorIs(t, err, ErrDuplicateCheck)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, StageCleaning, s.Stage())
}

func TestCommitAppliesConsentAndSkipsErrorRows(t *testing.T) {
	customers := newMemoryCustomers()
	s := newTestSession(t, customers)
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone\nAnn,5125550100\nBob,555\n")))
	advanceTo(t, s, StageReview)
	require.NoError(t, s.SetConsent(true))
	assert.True(t, s.View().SMSConsent)

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, 1, customers.creates)

	assert.ErrorIs(t, s.SetConsent(false), ErrInvalidTransition)
}

func TestCommitCanBeCancelledAndBlocksReentry(t *testing.T) {
	customers := newMemoryCustomers()
	customers.started = make(chan struct{})
	customers.release = make(chan struct{})
	s := newTestSession(t, customers)
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone\nAnn,5125550100\nBob,5125550101\nCal,5125550102\n")))
	advanceTo(t, s, StageReview)

	done := make(chan importer.ImportResult)
	go func() {
		res, err := s.Commit(context.Background())
		assert.NoError(t, err)
		done <- res
	}()

	<-customers.started
	assert.True(t, s.View().Importing)

	_, err := s.Commit(context.Background())
	assert.ErrorIs(t, err, ErrImporting)
	assert.ErrorIs(t, s.Reset(), ErrImporting)
	assert.ErrorIs(t, s.Back(), ErrImporting)

	assert.True(t, s.Cancel())
	close(customers.release)
	res := <-done

	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, customers.creates)
	assert.Equal(t, StageComplete, s.Stage())
	assert.False(t, s.Cancel())
}

func TestCommitWithoutCommitterReportsFailure(t *testing.T) {
	s := NewSession(uuid.New(), Deps{})
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone\nAnn,5125550100\n")))
	advanceTo(t, s, StageReview)

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, importer.FailedResult(), res)
	assert.Equal(t, StageComplete, s.Stage())
}

func TestIssuesListsWarningAndErrorCells(t *testing.T) {
	s := newTestSession(t, newMemoryCustomers())
	require.NoError(t, s.Upload(mustParse(t, "First Name,Phone,VIN\nAnn,555,abc\nBob,5125550101,\n")))
	advanceTo(t, s, StageCleaning)

	issues := s.Issues()
	require.Len(t, issues, 2)
	assert.Equal(t, Issue{
		Row: 1, Field: importer.FieldPhone, Original: "555", Cleaned: "555",
		Status: importer.StatusError, Message: "Phone number must have 10 digits (found 3)",
	}, issues[0])
	assert.Equal(t, importer.FieldVIN, issues[1].Field)
	assert.Equal(t, importer.StatusWarning, issues[1].Status)
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from   Stage
		action Action
		to     Stage
		ok     bool
	}{
		{StageUpload, ActionNext, StageMapping, true},
		{StageUpload, ActionBack, "", false},
		{StageMapping, ActionBack, StageUpload, true},
		{StageReview, ActionNext, "", false},
		{StageReview, ActionCommitted, StageComplete, true},
		{StageCleaning, ActionCommitted, "", false},
		{StageComplete, ActionBack, "", false},
		{StageComplete, ActionReset, StageUpload, true},
	}
	for _, tt := range tests {
		to, ok := transition(tt.from, tt.action)
		assert.Equal(t, tt.ok, ok, "%s/%s", tt.from, tt.action)
		assert.Equal(t, tt.to, to, "%s/%s", tt.from, tt.action)
	}
}
