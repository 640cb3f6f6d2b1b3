package importer

// Field identifies the canonical customer, vehicle or service attribute a
// source column is mapped to.
type Field string

const (
	FieldFirstName         Field = "firstName"
	FieldLastName          Field = "lastName"
	FieldFullName          Field = "fullName"
	FieldPhone             Field = "phone"
	FieldEmail             Field = "email"
	FieldVehicleYear       Field = "vehicleYear"
	FieldVehicleMake       Field = "vehicleMake"
	FieldVehicleModel      Field = "vehicleModel"
	FieldYearMakeModel     Field = "yearMakeModel"
	FieldVIN               Field = "vin"
	FieldLicensePlate      Field = "licensePlate"
	FieldServiceDate       Field = "lastServiceDate"
	FieldServiceMileage    Field = "lastServiceMileage"
	FieldRepairDescription Field = "repairDescription"
	FieldSkip              Field = "skip"
)

var mappableFields = []Field{
	FieldFirstName,
	FieldLastName,
	FieldFullName,
	FieldPhone,
	FieldEmail,
	FieldVehicleYear,
	FieldVehicleMake,
	FieldVehicleModel,
	FieldYearMakeModel,
	FieldVIN,
	FieldLicensePlate,
	FieldServiceDate,
	FieldServiceMileage,
	FieldRepairDescription,
}

var outputFields = []Field{
	FieldFirstName,
	FieldLastName,
	FieldPhone,
	FieldEmail,
	FieldVehicleYear,
	FieldVehicleMake,
	FieldVehicleModel,
	FieldVIN,
	FieldLicensePlate,
	FieldServiceDate,
	FieldServiceMileage,
	FieldRepairDescription,
}

// AllFields returns every field a column can be mapped to, excluding skip.
func AllFields() []Field {
	return append([]Field(nil), mappableFields...)
}

// OutputFields returns the scalar fields present on every cleaned row.
// Composite fields never appear here; they fan out into these.
func OutputFields() []Field {
	return append([]Field(nil), outputFields...)
}

// ParseField accepts a field name as sent by API clients.
func ParseField(name string) (Field, bool) {
	if Field(name) == FieldSkip {
		return FieldSkip, true
	}
	for _, f := range mappableFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

func (f Field) IsComposite() bool {
	return f == FieldFullName || f == FieldYearMakeModel
}

// Label is the human readable name used in messages and templates.
func (f Field) Label() string {
	switch f {
	case FieldFirstName:
		return "First Name"
	case FieldLastName:
		return "Last Name"
	case FieldFullName:
		return "Full Name"
	case FieldPhone:
		return "Phone"
	case FieldEmail:
		return "Email"
	case FieldVehicleYear:
		return "Vehicle Year"
	case FieldVehicleMake:
		return "Vehicle Make"
	case FieldVehicleModel:
		return "Vehicle Model"
	case FieldYearMakeModel:
		return "Year/Make/Model"
	case FieldVIN:
		return "VIN"
	case FieldLicensePlate:
		return "License Plate"
	case FieldServiceDate:
		return "Last Service Date"
	case FieldServiceMileage:
		return "Last Service Mileage"
	case FieldRepairDescription:
		return "Repair Description"
	case FieldSkip:
		return "Skip"
	default:
		return string(f)
	}
}

type FileKind string

const (
	FileKindDelimited   FileKind = "delimited"
	FileKindSpreadsheet FileKind = "spreadsheet"
)

// ParsedFile is the uniform tabular form of an uploaded file. Every row has
// exactly len(Headers) cells.
type ParsedFile struct {
	FileName string     `json:"fileName"`
	Kind     FileKind   `json:"kind"`
	Headers  []string   `json:"headers"`
	Rows     [][]string `json:"rows"`
	RowCount int        `json:"rowCount"`
}

type FieldMapping struct {
	Header     string `json:"header"`
	Field      Field  `json:"field"`
	Confidence int    `json:"confidence"`
	Sample     string `json:"sample"`
	Manual     bool   `json:"manual,omitempty"`
}

type CellStatus string

const (
	StatusClean   CellStatus = "clean"
	StatusFixed   CellStatus = "fixed"
	StatusWarning CellStatus = "warning"
	StatusError   CellStatus = "error"
)

type CleanedCell struct {
	Value    string     `json:"value"`
	Original string     `json:"original"`
	Status   CellStatus `json:"status"`
	Message  string     `json:"message,omitempty"`
	Field    Field      `json:"field"`
	// Source is the mapped field whose cleaner produced the cell. It differs
	// from Field for cells fanned out of a composite column.
	Source Field `json:"source,omitempty"`
}

type CleanedRow struct {
	Index      int                   `json:"index"`
	Cells      map[Field]CleanedCell `json:"cells"`
	HasError   bool                  `json:"hasError"`
	HasWarning bool                  `json:"hasWarning"`
}

// Value returns the cleaned value for field, or "" when absent.
func (r CleanedRow) Value(field Field) string {
	return r.Cells[field].Value
}

type ValidationSummary struct {
	TotalRows       int `json:"totalRows"`
	CleanRows       int `json:"cleanRows"`
	WarningRows     int `json:"warningRows"`
	ErrorRows       int `json:"errorRows"`
	FixedCells      int `json:"fixedCells"`
	PhonesCleaned   int `json:"phonesCleaned"`
	NamesSplit      int `json:"namesSplit"`
	DatesNormalized int `json:"datesNormalized"`
}

type DuplicateType string

const (
	DuplicateInternal DuplicateType = "internal"
	DuplicateExisting DuplicateType = "existing"
)

type DuplicateInfo struct {
	Phone    string        `json:"phone"`
	RowIndex int           `json:"rowIndex"`
	Name     string        `json:"name"`
	Type     DuplicateType `json:"type"`
}

// MaxResultDetails caps the per-row detail messages carried on a result.
const MaxResultDetails = 10

type ImportResult struct {
	Success               int      `json:"success"`
	Duplicates            int      `json:"duplicates"`
	Errors                int      `json:"errors"`
	Updated               int      `json:"updated,omitempty"`
	VehiclesCreated       int      `json:"vehiclesCreated"`
	ServiceRecordsCreated int      `json:"serviceRecordsCreated"`
	Message               string   `json:"message"`
	Details               []string `json:"details,omitempty"`
	DetailsTruncated      bool     `json:"detailsTruncated,omitempty"`
	DetectedFormat        string   `json:"detectedFormat,omitempty"`
	Cancelled             bool     `json:"cancelled,omitempty"`
}

func (r *ImportResult) addDetail(msg string) {
	if len(r.Details) >= MaxResultDetails {
		r.DetailsTruncated = true
		return
	}
	r.Details = append(r.Details, msg)
}

// FailedResult is the terminal result reported when a commit cannot run at all.
func FailedResult() ImportResult {
	return ImportResult{Errors: 1, Message: "Import failed. Please try again."}
}
