package inspections

import "time"

type Stage string

const (
	StageTransit  Stage = "transit"  // контрольное взвешивание на хабе
	StageReceiver Stage = "receiver" // проверка при приёмке
)

func (s Stage) Known() bool { return s == StageTransit || s == StageReceiver }

// Inspection — неизменяемое событие замера. Раньше shipment_id и этап были
// зашиты строкой в свободное поле annotation; здесь это нормальные колонки.
type Inspection struct {
	ID         int64
	BatchID    int64
	ShipmentID int64
	Stage      Stage
	Weight     float64
	Length     *float64
	Width      *float64
	Height     *float64
	Note       string
	CreatedAt  time.Time
}

// StageRecord — последний зафиксированный замер этапа.
type StageRecord struct {
	Weight float64
	Length *float64
	Width  *float64
	Height *float64
	At     time.Time
}

// Snapshot — свёртка журнала по одному отправлению.
type Snapshot struct {
	Transit  *StageRecord
	Receiver *StageRecord
}

// Reconstruct сворачивает журнал замеров партии в последний замер на пару
// (отправление, этап). Побеждает самая поздняя запись по created_at, при
// равенстве — большая id; порядок входа на результат не влияет. Записи без
// отправления или с неизвестным этапом молча пропускаются: битая строка не
// должна ронять свёртку остальной партии.
func Reconstruct(rows []Inspection) map[int64]Snapshot {
	type key struct {
		shipment int64
		stage    Stage
	}
	latest := make(map[key]Inspection)
	for _, row := range rows {
		if row.ShipmentID == 0 || !row.Stage.Known() {
			continue
		}
		k := key{row.ShipmentID, row.Stage}
		prev, ok := latest[k]
		if !ok || row.CreatedAt.After(prev.CreatedAt) ||
			(row.CreatedAt.Equal(prev.CreatedAt) && row.ID > prev.ID) {
			latest[k] = row
		}
	}

	out := make(map[int64]Snapshot)
	for k, row := range latest {
		snap := out[k.shipment]
		rec := &StageRecord{
			Weight: row.Weight,
			Length: row.Length,
			Width:  row.Width,
			Height: row.Height,
			At:     row.CreatedAt,
		}
		switch k.stage {
		case StageTransit:
			snap.Transit = rec
		case StageReceiver:
			snap.Receiver = rec
		}
		out[k.shipment] = snap
	}
	return out
}
