package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/cargoflow/internal/domain/batches"
	"github.com/Spok95/cargoflow/internal/domain/billing"
	"github.com/Spok95/cargoflow/internal/domain/inspections"
	"github.com/Spok95/cargoflow/internal/domain/shipments"
)

// BatchReport — входные данные отчёта: партия целиком, включая
// исторические отправления, свёртка журнала замеров и счёт (если выпущен).
type BatchReport struct {
	Batch     batches.Batch
	Shipments []shipments.Shipment
	Snapshots map[int64]inspections.Snapshot
	Bill      *billing.Bill
}

// WriteXLSX пишет отчёт по партии в w. Формат — одна таблица отправлений
// с весами по этапам плюс итоговая строка счёта.
func WriteXLSX(w io.Writer, rep BatchReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	header := []interface{}{
		"tracking_no",
		"package_tag",
		"status",
		"sender_weight",
		"transit_weight",
		"transit_at",
		"check_weight",
		"check_at",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("report header: %w", err)
	}

	row := 2
	for _, sh := range rep.Shipments {
		var transitW, checkW any
		var transitAt, checkAt any
		if snap, ok := rep.Snapshots[sh.ID]; ok {
			if snap.Transit != nil {
				transitW = snap.Transit.Weight
				transitAt = snap.Transit.At.Format("2006-01-02 15:04:05")
			}
			if snap.Receiver != nil {
				checkW = snap.Receiver.Weight
				checkAt = snap.Receiver.At.Format("2006-01-02 15:04:05")
			}
		}
		excelRow := []interface{}{
			sh.TrackingNo,
			string(sh.PackageTag),
			string(sh.Status),
			sh.Weight,
			transitW,
			transitAt,
			checkW,
			checkAt,
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return fmt.Errorf("report cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			return fmt.Errorf("report row: %w", err)
		}
		row++
	}

	// Итог: агрегаты партии и счёт
	row++
	totals := []interface{}{
		fmt.Sprintf("batch %s (%s)", rep.Batch.BatchNo, rep.Batch.Status),
		"",
		"",
		rep.Batch.TotalWeight,
		fmt.Sprintf("items: %d", rep.Batch.ItemCount),
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("report cell: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &totals); err != nil {
		return fmt.Errorf("report totals: %w", err)
	}
	if rep.Bill != nil {
		row++
		billRow := []interface{}{
			rep.Bill.BillNo,
			string(rep.Bill.Status),
			rep.Bill.Currency,
			rep.Bill.TotalAmount,
			fmt.Sprintf("paid: %.2f", rep.Bill.PaidAmount),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return fmt.Errorf("report cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &billRow); err != nil {
			return fmt.Errorf("report bill: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("report write: %w", err)
	}
	return nil
}
