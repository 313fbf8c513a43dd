package shipments

import (
	"math"
	"time"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusShipped  Status = "shipped"
	StatusReceived Status = "received"
)

type PackageTag string

const (
	TagStandard    PackageTag = "standard"
	TagMergeParent PackageTag = "merge_parent" // несёт объединённый вес
	TagMergedChild PackageTag = "merged_child" // вес ушёл в родителя
	TagSplitParent PackageTag = "split_parent" // вес разложен по детям
	TagSplitChild  PackageTag = "split_child"
)

// Historical — груз уже учтён в преемнике; из агрегатов исключается.
func (t PackageTag) Historical() bool {
	return t == TagMergedChild || t == TagSplitParent
}

type Shipment struct {
	ID         int64
	BatchID    int64
	TrackingNo string
	Weight     float64
	Volume     *float64
	Length     *float64
	Width      *float64
	Height     *float64
	Status     Status
	PackageTag PackageTag
	SenderAt   *time.Time
	TransitAt  *time.Time
	ReceiverAt *time.Time
	Version    int64
	CreatedAt  time.Time
}

type RelationType string

const (
	RelMerge RelationType = "merge"
	RelSplit RelationType = "split"
)

// Relation — ребро генеалогии. Пишется один раз, никогда не меняется.
type Relation struct {
	ID        int64
	ParentID  int64
	ChildID   int64
	Type      RelationType
	CreatedAt time.Time
}

// Ref — ссылка на отправление с ожидаемой версией (оптимистическая блокировка).
type Ref struct {
	ID      int64
	Version int64
}

type MergeInput struct {
	BatchID     int64
	Children    []Ref
	TrackingNo  string
	TotalWeight float64 // показание весов оператора, детские веса не суммируем
	Volume      *float64
	// Явное подтверждение объединения отправлений из чужой партии.
	AllowCrossBatch bool
}

type SplitPart struct {
	TrackingNo string
	Weight     float64
	Volume     *float64
}

type SplitInput struct {
	BatchID int64
	Parent  Ref
	Parts   []SplitPart
}

// Допуск на расхождение весов при сравнении.
const weightEps = 1e-6

// ValidateMerge проверяет вход слияния по уже загруженным детям.
// Сопоставление по позиции недопустимо: loaded ищется по id.
func ValidateMerge(in MergeInput, loaded []Shipment) error {
	if len(in.Children) < 2 {
		return apperr.E(apperr.KindInsufficientInputs, "merge requires at least 2 shipments, got %d", len(in.Children))
	}
	if in.TrackingNo == "" {
		return apperr.E(apperr.KindInsufficientInputs, "merge parent tracking_no is required")
	}
	if in.TotalWeight <= 0 {
		return apperr.E(apperr.KindInvalidAmount, "merge total weight must be positive, got %v", in.TotalWeight)
	}

	byID := make(map[int64]Shipment, len(loaded))
	for _, s := range loaded {
		byID[s.ID] = s
	}
	seen := make(map[int64]bool, len(in.Children))
	for _, ref := range in.Children {
		if seen[ref.ID] {
			return apperr.E(apperr.KindInsufficientInputs, "shipment %d listed twice", ref.ID)
		}
		seen[ref.ID] = true

		s, ok := byID[ref.ID]
		if !ok {
			return apperr.E(apperr.KindNotFound, "shipment %d not found", ref.ID)
		}
		if s.PackageTag.Historical() {
			return apperr.E(apperr.KindConflict, "shipment %d (%s) is already consolidated", s.ID, s.TrackingNo)
		}
		if s.Version != ref.Version {
			return apperr.E(apperr.KindConflict, "shipment %d version changed (expected %d, have %d)", s.ID, ref.Version, s.Version)
		}
		if s.BatchID != in.BatchID && !in.AllowCrossBatch {
			return apperr.E(apperr.KindConflict, "shipment %d belongs to batch %d, cross-batch merge needs explicit confirmation", s.ID, s.BatchID)
		}
	}
	return nil
}

// ValidateSplit проверяет вход разделения по загруженному родителю.
func ValidateSplit(in SplitInput, parent *Shipment) error {
	if len(in.Parts) < 2 {
		return apperr.E(apperr.KindInsufficientInputs, "split requires at least 2 parts, got %d", len(in.Parts))
	}
	if parent == nil {
		return apperr.E(apperr.KindNotFound, "shipment %d not found", in.Parent.ID)
	}
	if parent.PackageTag.Historical() {
		return apperr.E(apperr.KindConflict, "shipment %d (%s) is already consolidated", parent.ID, parent.TrackingNo)
	}
	// Части остаются в партии родителя; чужая партия пересчитала бы не те агрегаты.
	if parent.BatchID != in.BatchID {
		return apperr.E(apperr.KindConflict, "shipment %d belongs to batch %d, split must target its own batch", parent.ID, parent.BatchID)
	}
	if parent.Version != in.Parent.Version {
		return apperr.E(apperr.KindConflict, "shipment %d version changed (expected %d, have %d)", parent.ID, in.Parent.Version, parent.Version)
	}
	for i, p := range in.Parts {
		if p.TrackingNo == "" {
			return apperr.E(apperr.KindInsufficientInputs, "split part %d tracking_no is required", i+1)
		}
		if p.Weight <= 0 {
			return apperr.E(apperr.KindInvalidAmount, "split part %d weight must be positive, got %v", i+1, p.Weight)
		}
	}
	return nil
}

// SplitMismatch возвращает расхождение sum(parts) - parentWeight и признак
// точного совпадения. Расхождение — предупреждение, не ошибка: повторное
// взвешивание после физического разделения даёт шум.
func SplitMismatch(parentWeight float64, parts []SplitPart) (diff float64, exact bool) {
	var sum float64
	for _, p := range parts {
		sum += p.Weight
	}
	diff = sum - parentWeight
	return diff, math.Abs(diff) <= weightEps
}
