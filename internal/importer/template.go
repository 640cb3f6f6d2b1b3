package importer

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const templateSheet = "Customers"

var templateSample = map[Field]string{
	FieldFirstName:         "Jane",
	FieldLastName:          "Doe",
	FieldPhone:             "(512) 555-0100",
	FieldEmail:             "jane@example.com",
	FieldVehicleYear:       "2018",
	FieldVehicleMake:       "Toyota",
	FieldVehicleModel:      "Camry",
	FieldVIN:               "4T1B11HK5JU123456",
	FieldLicensePlate:      "ABC1234",
	FieldServiceDate:       "2024-01-15",
	FieldServiceMileage:    "45000",
	FieldRepairDescription: "Oil change 5W-30",
}

// TemplateHeaders is the header row of the downloadable import template.
// Each header is an exact alias of its field.
func TemplateHeaders() []string {
	headers := make([]string, len(outputFields))
	for i, f := range outputFields {
		headers[i] = f.Label()
	}
	return headers
}

func templateRow() []string {
	row := make([]string, len(outputFields))
	for i, f := range outputFields {
		row[i] = templateSample[f]
	}
	return row
}

func WriteTemplateCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(TemplateHeaders()); err != nil {
		return err
	}
	if err := writer.Write(templateRow()); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func WriteTemplateXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	for i, row := range [][]string{TemplateHeaders(), templateRow()} {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(templateSheet, cell, &values); err != nil {
			return fmt.Errorf("write template row: %w", err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
