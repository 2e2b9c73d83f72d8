package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
)

// SheetName is the worksheet holding the invoice rows
const SheetName = "Invoices"

// ContentType is the MIME type of the generated workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{
	"ID", "Invoice number", "Client", "Amount", "Currency", "Due date",
	"Status", "Score", "Possible financing", "Financing date", "Created",
}

// ExcelExporter writes invoices into an XLSX workbook
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// Export returns the workbook bytes, one row per invoice after the header
func (e *ExcelExporter) Export(ctx context.Context, invoices []*entity.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	for col, title := range headers {
		e.setCell(f, 1, col, title)
	}

	for i, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := i + 2
		values := []interface{}{
			inv.ID,
			inv.InvoiceNumber,
			inv.Client,
			inv.Amount,
			inv.Currency,
			optionalDate(inv.DueDate),
			inv.Status.String(),
			optionalFloat(inv.Score),
			optionalFloat(inv.PossibleFinancing),
			"",
			inv.CreatedAt.Format("2006-01-02"),
		}
		if inv.FinancingDate != nil {
			values[9] = inv.FinancingDate.Format("2006-01-02")
		}
		for col, v := range values {
			e.setCell(f, row, col, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Invoices exported", zap.Int("rows", len(invoices)))
	return buf.Bytes(), nil
}

// setCell sets a cell value, logging instead of failing on bad coordinates
func (e *ExcelExporter) setCell(f *excelize.File, row, col int, value interface{}) {
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		e.logger.Warn("Invalid cell coordinates", zap.Int("row", row), zap.Int("col", col), zap.Error(err))
		return
	}
	if err := f.SetCellValue(SheetName, cell, value); err != nil {
		e.logger.Warn("Failed to set cell value",
			zap.String("sheet", SheetName),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func optionalDate(d *entity.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func optionalFloat(f *float64) interface{} {
	if f == nil {
		return ""
	}
	return *f
}

var _ port.InvoiceExporter = (*ExcelExporter)(nil)
