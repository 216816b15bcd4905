package operator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/domain/supplies"
)

var exportHeader = []interface{}{
	"assembly_task_id",
	"order_id",
	"supplier_article",
	"nm_id",
	"region",
	"warehouse",
	"material_id",
	"order_created_at",
	"added_to_supply_at",
}

// Export файл выгрузки поставки.
type Export struct {
	Supply   supplies.Supply
	Filename string
	Data     []byte
	Rows     int
}

// ExportSupply выгружает сборочные задания поставки в Excel.
func (s *Service) ExportSupply(ctx context.Context, id string) (*Export, error) {
	sup, err := s.Supplies.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("operator: get supply: %w", err)
	}
	if sup == nil {
		return nil, domain.Conflict(domain.ErrSupplyNotFound)
	}
	lines, err := s.Orders.ListBySupply(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("operator: supply lines: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("operator: export header: %w", err)
	}

	for i, l := range lines {
		var materialID any
		if l.Order.MaterialID != nil {
			materialID = *l.Order.MaterialID
		}
		var added string
		if l.Task.AddedToSupplyAt != nil {
			added = l.Task.AddedToSupplyAt.Format("2006-01-02 15:04:05")
		}
		row := []interface{}{
			l.Task.ID,
			l.Order.ID,
			l.Order.SupplierArticle,
			l.Order.NmID,
			l.Order.RegionName,
			l.Order.WarehouseName,
			materialID,
			l.Order.CreatedAt.Format("2006-01-02 15:04:05"),
			added,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("operator: export row %d: %w", i+2, err)
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("operator: write export: %w", err)
	}
	return &Export{
		Supply:   *sup,
		Filename: fmt.Sprintf("supply_%s.xlsx", sup.ID),
		Data:     buf.Bytes(),
		Rows:     len(lines),
	}, nil
}
