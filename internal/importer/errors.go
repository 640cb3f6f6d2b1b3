package importer

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFile             = errors.New("file is empty")
	ErrNoDataRows            = errors.New("file must contain a header row and at least one data row")
	ErrUnreadableSpreadsheet = errors.New("spreadsheet is corrupt or unreadable")
	ErrNoSheets              = errors.New("no sheets found in workbook")
	ErrUnsupportedFile       = errors.New("unsupported file type")

	// ErrFieldNotEditable is returned when a manual edit targets a field
	// that has no cell on a cleaned row.
	ErrFieldNotEditable = errors.New("field cannot be edited")

	// ErrDuplicateCustomer is returned by repositories when a customer with
	// the same phone already exists for the tenant.
	ErrDuplicateCustomer = errors.New("customer with this phone already exists")
)

// ParseError reports a file-level failure. The session cannot continue
// until a new file is uploaded.
type ParseError struct {
	FileName string
	Err      error
}

func (e *ParseError) Error() string {
	if e.FileName == "" {
		return fmt.Sprintf("parse file: %v", e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.FileName, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(name string, err error) error {
	return &ParseError{FileName: name, Err: err}
}
