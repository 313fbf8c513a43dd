package shipments

import (
	"testing"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
)

func ship(id, batch int64, tag PackageTag, weight float64) Shipment {
	return Shipment{ID: id, BatchID: batch, TrackingNo: "T" + string(rune('0'+id)), Weight: weight, Status: StatusPending, PackageTag: tag}
}

func TestValidateMerge(t *testing.T) {
	loaded := []Shipment{
		ship(1, 10, TagStandard, 2),
		ship(2, 10, TagStandard, 3),
		ship(3, 10, TagStandard, 4),
	}
	in := MergeInput{
		BatchID:     10,
		Children:    []Ref{{ID: 1}, {ID: 2}, {ID: 3}},
		TrackingNo:  "MERGED-1",
		TotalWeight: 9.5,
	}
	if err := ValidateMerge(in, loaded); err != nil {
		t.Fatalf("valid merge rejected: %v", err)
	}
}

func TestValidateMerge_InsufficientInputs(t *testing.T) {
	in := MergeInput{BatchID: 10, Children: []Ref{{ID: 1}}, TrackingNo: "M", TotalWeight: 5}
	err := ValidateMerge(in, []Shipment{ship(1, 10, TagStandard, 5)})
	if !apperr.Is(err, apperr.KindInsufficientInputs) {
		t.Fatalf("want InsufficientInputs, got %v", err)
	}
}

func TestValidateMerge_NotFound(t *testing.T) {
	in := MergeInput{BatchID: 10, Children: []Ref{{ID: 1}, {ID: 99}}, TrackingNo: "M", TotalWeight: 5}
	err := ValidateMerge(in, []Shipment{ship(1, 10, TagStandard, 5)})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestValidateMerge_HistoricalChild(t *testing.T) {
	loaded := []Shipment{
		ship(1, 10, TagMergedChild, 2),
		ship(2, 10, TagStandard, 3),
	}
	in := MergeInput{BatchID: 10, Children: []Ref{{ID: 1}, {ID: 2}}, TrackingNo: "M", TotalWeight: 5}
	err := ValidateMerge(in, loaded)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("merged_child must not be re-merged, got %v", err)
	}

	loaded[0].PackageTag = TagSplitParent
	err = ValidateMerge(in, loaded)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("split_parent must not be re-merged, got %v", err)
	}
}

func TestValidateMerge_VersionMismatch(t *testing.T) {
	loaded := []Shipment{ship(1, 10, TagStandard, 2), ship(2, 10, TagStandard, 3)}
	loaded[1].Version = 4
	in := MergeInput{BatchID: 10, Children: []Ref{{ID: 1}, {ID: 2, Version: 3}}, TrackingNo: "M", TotalWeight: 5}
	err := ValidateMerge(in, loaded)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("stale version must conflict, got %v", err)
	}
}

func TestValidateMerge_CrossBatch(t *testing.T) {
	loaded := []Shipment{ship(1, 10, TagStandard, 2), ship(2, 11, TagStandard, 3)}
	in := MergeInput{BatchID: 10, Children: []Ref{{ID: 1}, {ID: 2}}, TrackingNo: "M", TotalWeight: 5}
	if err := ValidateMerge(in, loaded); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("cross-batch merge without confirmation must conflict, got %v", err)
	}
	in.AllowCrossBatch = true
	if err := ValidateMerge(in, loaded); err != nil {
		t.Fatalf("confirmed cross-batch merge rejected: %v", err)
	}
}

func TestValidateSplit(t *testing.T) {
	parent := ship(1, 10, TagStandard, 10)
	in := SplitInput{
		BatchID: 10,
		Parent:  Ref{ID: 1},
		Parts: []SplitPart{
			{TrackingNo: "S1", Weight: 4},
			{TrackingNo: "S2", Weight: 6},
		},
	}
	if err := ValidateSplit(in, &parent); err != nil {
		t.Fatalf("valid split rejected: %v", err)
	}

	in.Parts = in.Parts[:1]
	if err := ValidateSplit(in, &parent); !apperr.Is(err, apperr.KindInsufficientInputs) {
		t.Fatalf("single part split must be rejected, got %v", err)
	}

	if err := ValidateSplit(SplitInput{Parent: Ref{ID: 99}, Parts: []SplitPart{{TrackingNo: "a", Weight: 1}, {TrackingNo: "b", Weight: 1}}}, nil); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing parent must be NotFound")
	}

	historical := ship(2, 10, TagSplitParent, 10)
	in = SplitInput{Parent: Ref{ID: 2}, Parts: []SplitPart{{TrackingNo: "a", Weight: 1}, {TrackingNo: "b", Weight: 1}}}
	if err := ValidateSplit(in, &historical); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("historical parent must conflict, got %v", err)
	}
}

func TestValidateSplit_ForeignBatch(t *testing.T) {
	parent := ship(1, 10, TagStandard, 10)
	in := SplitInput{
		BatchID: 11, // не партия родителя
		Parent:  Ref{ID: 1},
		Parts: []SplitPart{
			{TrackingNo: "S1", Weight: 4},
			{TrackingNo: "S2", Weight: 6},
		},
	}
	if err := ValidateSplit(in, &parent); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("split into a foreign batch must conflict, got %v", err)
	}
}

func TestSplitMismatch(t *testing.T) {
	exactParts := []SplitPart{{Weight: 4}, {Weight: 6}}
	if diff, exact := SplitMismatch(10, exactParts); !exact || diff != 0 {
		t.Fatalf("4+6 vs 10: diff=%v exact=%v", diff, exact)
	}

	// расхождение — предупреждение, не ошибка
	offParts := []SplitPart{{Weight: 4}, {Weight: 4}}
	diff, exact := SplitMismatch(10, offParts)
	if exact {
		t.Fatalf("4+4 vs 10 must not be exact")
	}
	if diff != -2 {
		t.Fatalf("diff = %v, want -2", diff)
	}
}

func TestHistorical(t *testing.T) {
	if !TagMergedChild.Historical() || !TagSplitParent.Historical() {
		t.Fatalf("merged_child and split_parent are historical")
	}
	if TagStandard.Historical() || TagMergeParent.Historical() || TagSplitChild.Historical() {
		t.Fatalf("active tags are not historical")
	}
}
