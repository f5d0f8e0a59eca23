// Package export renders flows into interchange formats for use outside the
// application. Exports always work on decrypted domain values.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"finledger/models"
)

var flowHeader = []string{"日期", "类型", "分类", "金额", "描述", "可抵税"}

// FlowsCSV writes flows as CSV with a UTF-8 BOM so spreadsheet software
// detects the encoding.
func FlowsCSV(w io.Writer, flows []models.Flow, categories []models.Category) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}

	names := categoryNames(categories)
	types := categoryTypes(categories)

	cw := csv.NewWriter(w)
	if err := cw.Write(flowHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range flows {
		if err := cw.Write(flowRecord(&flows[i], names, types)); err != nil {
			return fmt.Errorf("write flow %s: %w", flows[i].ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FlowsXLSX writes flows as an Excel workbook with a single 流水 sheet.
func FlowsXLSX(w io.Writer, flows []models.Flow, categories []models.Category) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "流水"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}

	for col, title := range flowHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	names := categoryNames(categories)
	types := categoryTypes(categories)

	for i := range flows {
		record := flowRecord(&flows[i], names, types)
		for col, value := range record {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("write flow %s: %w", flows[i].ID, err)
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "F", 16); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func flowRecord(f *models.Flow, names map[string]string, types map[string]models.FlowType) []string {
	name, ok := names[f.CategoryID]
	if !ok {
		name = f.CategoryID
	}

	flowType := ""
	if t, ok := types[f.CategoryID]; ok {
		flowType = string(t)
	}

	deductible := ""
	if f.TaxDeductible != nil {
		if *f.TaxDeductible {
			deductible = "是"
		} else {
			deductible = "否"
		}
	}

	return []string{
		f.Date.Format("2006-01-02"),
		flowType,
		name,
		strconv.FormatFloat(f.Amount, 'f', 2, 64),
		f.Description,
		deductible,
	}
}

func categoryNames(categories []models.Category) map[string]string {
	m := make(map[string]string, len(categories))
	for i := range categories {
		m[categories[i].ID] = categories[i].Name
	}
	return m
}

func categoryTypes(categories []models.Category) map[string]models.FlowType {
	m := make(map[string]models.FlowType, len(categories))
	for i := range categories {
		m[categories[i].ID] = categories[i].FlowType
	}
	return m
}
