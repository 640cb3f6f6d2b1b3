package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Stage string

const (
	StageUpload   Stage = "upload"
	StageMapping  Stage = "mapping"
	StageCleaning Stage = "cleaning"
	StageReview   Stage = "review"
	StageComplete Stage = "complete"
)

type Action string

const (
	ActionNext      Action = "next"
	ActionBack      Action = "back"
	ActionCommitted Action = "committed"
	ActionReset     Action = "reset"
)

var transitions = map[Stage]map[Action]Stage{
	StageUpload:   {ActionNext: StageMapping, ActionReset: StageUpload},
	StageMapping:  {ActionNext: StageCleaning, ActionBack: StageUpload, ActionReset: StageUpload},
	StageCleaning: {ActionNext: StageReview, ActionBack: StageMapping, ActionReset: StageUpload},
	StageReview:   {ActionBack: StageCleaning, ActionCommitted: StageComplete, ActionReset: StageUpload},
	StageComplete: {ActionReset: StageUpload},
}

func transition(from Stage, action Action) (Stage, bool) {
	to, ok := transitions[from][action]
	return to, ok
}

var (
	ErrGateBlocked       = errors.New("stage requirements not met")
	ErrInvalidTransition = errors.New("action not allowed at this stage")
	ErrImporting         = errors.New("an import is already running")
	ErrRowNotFound       = errors.New("row not found")
	ErrDuplicateCheck    = errors.New("duplicate check failed")
)

// GateError explains why the current stage cannot advance.
type GateError struct {
	Stage  Stage
	Reason string
}

func (e *GateError) Error() string { return fmt.Sprintf("%s: %s", e.Stage, e.Reason) }

func (e *GateError) Unwrap() error { return ErrGateBlocked }

// Deps are the collaborators a session calls out to. Phones backs the
// existing-customer duplicate check; Committer writes accepted rows.
type Deps struct {
	Phones    importer.PhoneLookup
	Committer *importer.Committer
	Logger    *zap.Logger
}

type Duplicates struct {
	Internal []importer.DuplicateInfo `json:"internal"`
	Existing []importer.DuplicateInfo `json:"existing"`
}

// Session is one operator's import in progress. All methods are safe for
// concurrent use; Commit releases the lock while rows are written so that
// View and Cancel stay responsive.
type Session struct {
	ID       uuid.UUID
	TenantID uuid.UUID

	deps Deps

	mu         sync.Mutex
	stage      Stage
	file       *importer.ParsedFile
	format     string
	mappings   []importer.FieldMapping
	rows       []importer.CleanedRow
	summary    importer.ValidationSummary
	smsConsent bool
	duplicates *Duplicates
	result     *importer.ImportResult
	importing  bool
	cancel     context.CancelFunc
	lastActive time.Time
}

func NewSession(tenantID uuid.UUID, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Session{
		ID:         uuid.New(),
		TenantID:   tenantID,
		deps:       deps,
		stage:      StageUpload,
		lastActive: time.Now(),
	}
}

// Upload installs a parsed file and discards everything derived from a
// previous one. The session returns to the upload stage.
func (s *Session) Upload(file *importer.ParsedFile) error {
	if file == nil {
		return errors.New("no file")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.importing {
		return ErrImporting
	}
	if s.stage == StageComplete {
		return fmt.Errorf("%w: start a new import first", ErrInvalidTransition)
	}
	s.file = file
	s.format = importer.DetectFormat(file)
	s.clearMappings()
	s.stage = StageUpload
	return nil
}

// Next advances one stage when the current stage's gate is satisfied and
// runs the next stage's automatic step if its results are missing.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.importing {
		return ErrImporting
	}
	to, ok := transition(s.stage, ActionNext)
	if !ok {
		return fmt.Errorf("%w: cannot advance from %s", ErrInvalidTransition, s.stage)
	}
	if err := s.gate(); err != nil {
		return err
	}

	switch to {
	case StageMapping:
		if s.mappings == nil {
			s.mappings = importer.DetectMappings(s.file.Headers, s.file.Rows)
		}
	case StageCleaning:
		if s.rows == nil {
			s.rows, s.summary = importer.ProcessRows(s.file.Headers, s.file.Rows, s.mappings)
		}
	case StageReview:
		if s.duplicates == nil {
			dups, err := s.detectDuplicates(ctx)
			if err != nil {
				return err
			}
			s.duplicates = dups
		}
	}
	s.stage = to
	return nil
}

func (s *Session) gate() error {
	switch s.stage {
	case StageUpload:
		if s.file == nil {
			return &GateError{Stage: s.stage, Reason: "upload a file first"}
		}
	case StageMapping:
		if !importer.HasField(s.mappings, importer.FieldPhone) {
			return &GateError{Stage: s.stage, Reason: "map a column to Phone"}
		}
		if !importer.HasField(s.mappings, importer.FieldFirstName) && !importer.HasField(s.mappings, importer.FieldFullName) {
			return &GateError{Stage: s.stage, Reason: "map a column to First Name or Full Name"}
		}
	case StageCleaning:
		if len(s.rows) == 0 {
			return &GateError{Stage: s.stage, Reason: "no cleaned rows"}
		}
	}
	return nil
}

func (s *Session) detectDuplicates(ctx context.Context) (*Duplicates, error) {
	dups := &Duplicates{Internal: importer.FindInternalDuplicates(s.rows)}
	if s.deps.Phones == nil {
		return dups, nil
	}
	existing, err := importer.FindExistingDuplicates(ctx, s.TenantID, s.rows, s.deps.Phones)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDuplicateCheck, err)
	}
	dups.Existing = existing
	return dups, nil
}

func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.importing {
		return ErrImporting
	}
	to, ok := transition(s.stage, ActionBack)
	if !ok {
		return fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, s.stage)
	}
	s.stage = to
	return nil
}

// SetMapping overrides the field of one column. Cleaned rows and duplicate
// results are dropped so the next stages run again against the new mapping.
func (s *Session) SetMapping(column int, field importer.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageMapping {
		return fmt.Errorf("%w: mappings can only change at the mapping stage", ErrInvalidTransition)
	}
	if err := importer.OverrideMapping(s.mappings, column, field); err != nil {
		return err
	}
	s.rows = nil
	s.summary = importer.ValidationSummary{}
	s.duplicates = nil
	return nil
}

// EditCell re-cleans one cell from operator input and recounts the summary.
// Phone and name edits invalidate duplicate results.
func (s *Session) EditCell(rowIndex int, field importer.Field, value string) (importer.CleanedRow, importer.ValidationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageCleaning {
		return importer.CleanedRow{}, importer.ValidationSummary{}, fmt.Errorf("%w: cells can only be edited at the cleaning stage", ErrInvalidTransition)
	}
	pos := -1
	for i := range s.rows {
		if s.rows[i].Index == rowIndex {
			pos = i
			break
		}
	}
	if pos < 0 {
		return importer.CleanedRow{}, importer.ValidationSummary{}, fmt.Errorf("%w: %d", ErrRowNotFound, rowIndex)
	}
	if err := importer.RecleanCell(&s.rows[pos], field, value); err != nil {
		return importer.CleanedRow{}, importer.ValidationSummary{}, err
	}
	s.summary = importer.Summarize(s.rows)
	switch field {
	case importer.FieldPhone, importer.FieldFirstName, importer.FieldLastName:
		s.duplicates = nil
	}
	return copyRow(s.rows[pos]), s.summary, nil
}

func (s *Session) SetConsent(consent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.importing {
		return ErrImporting
	}
	if s.stage == StageComplete {
		return fmt.Errorf("%w: import already committed", ErrInvalidTransition)
	}
	s.smsConsent = consent
	return nil
}

// Commit writes the accepted rows. It returns ErrImporting if a commit is
// already running. Failures that prevent the commit from running at all are
// reported as a failed result rather than an error, and the session still
// moves to the complete stage.
func (s *Session) Commit(ctx context.Context) (importer.ImportResult, error) {
	s.mu.Lock()
	if s.importing {
		s.mu.Unlock()
		return importer.ImportResult{}, ErrImporting
	}
	if _, ok := transition(s.stage, ActionCommitted); !ok {
		stage := s.stage
		s.mu.Unlock()
		return importer.ImportResult{}, fmt.Errorf("%w: cannot commit from %s", ErrInvalidTransition, stage)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.importing = true
	s.cancel = cancel
	rows := importer.AcceptedRows(s.rows)
	opts := importer.CommitOptions{SMSConsent: s.smsConsent, DetectedFormat: s.format}
	s.mu.Unlock()

	res := s.runCommit(ctx, rows, opts)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.importing = false
	s.cancel = nil
	s.result = &res
	s.stage, _ = transition(s.stage, ActionCommitted)
	return res, nil
}

func (s *Session) runCommit(ctx context.Context, rows []importer.CleanedRow, opts importer.CommitOptions) (res importer.ImportResult) {
	if s.deps.Committer == nil {
		s.deps.Logger.Error("import commit unavailable", zap.String("session_id", s.ID.String()))
		return importer.FailedResult()
	}
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error("import commit panicked",
				zap.String("session_id", s.ID.String()),
				zap.Any("panic", r),
			)
			res = importer.FailedResult()
		}
	}()
	return s.deps.Committer.Commit(ctx, s.TenantID, rows, opts)
}

// Cancel stops an in-flight commit before its next row. It reports whether a
// commit was running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.importing || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Reset discards all state and starts a new import in the same session.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.importing {
		return ErrImporting
	}
	to, _ := transition(s.stage, ActionReset)
	s.file = nil
	s.format = ""
	s.clearMappings()
	s.smsConsent = false
	s.result = nil
	s.stage = to
	return nil
}

func (s *Session) clearMappings() {
	s.mappings = nil
	s.rows = nil
	s.summary = importer.ValidationSummary{}
	s.duplicates = nil
	s.result = nil
}

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idle(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive), s.importing
}

func copyRow(row importer.CleanedRow) importer.CleanedRow {
	cells := make(map[importer.Field]importer.CleanedCell, len(row.Cells))
	for f, c := range row.Cells {
		cells[f] = c
	}
	row.Cells = cells
	return row
}
