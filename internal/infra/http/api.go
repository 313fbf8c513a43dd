package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
	"github.com/Spok95/cargoflow/internal/domain/batches"
	"github.com/Spok95/cargoflow/internal/domain/inspections"
	"github.com/Spok95/cargoflow/internal/domain/shipments"
	"github.com/Spok95/cargoflow/internal/domain/users"
	"github.com/Spok95/cargoflow/internal/export"
	"github.com/Spok95/cargoflow/internal/service"
	"github.com/Spok95/cargoflow/internal/session"
)

// API — JSON-граница ядра. Аутентификация вне контура: оператора
// определяет заголовок X-Operator, проверенный внешним слоем.
type API struct {
	log      *slog.Logger
	svc      *service.Service
	users    *users.Repo
	sessions *session.Repo
}

func NewAPI(log *slog.Logger, svc *service.Service, u *users.Repo, s *session.Repo) *API {
	return &API{log: log, svc: svc, users: u, sessions: s}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/batches", a.withActor(a.createBatch))
	mux.HandleFunc("GET /api/batches", a.withActor(a.listBatches))
	mux.HandleFunc("GET /api/batches/{id}", a.withActor(a.getBatch))
	mux.HandleFunc("POST /api/batches/{id}/transition", a.withActor(a.transition))
	mux.HandleFunc("GET /api/batches/{id}/shipments", a.withActor(a.listShipments))
	mux.HandleFunc("POST /api/batches/{id}/merge", a.withActor(a.merge))
	mux.HandleFunc("POST /api/batches/{id}/split", a.withActor(a.split))
	mux.HandleFunc("GET /api/batches/{id}/inspections", a.withActor(a.reconstruct))
	mux.HandleFunc("GET /api/batches/{id}/report", a.withActor(a.report))
	mux.HandleFunc("POST /api/batches/{id}/bill", a.withActor(a.deriveBill))
	mux.HandleFunc("GET /api/batches/{id}/bill", a.withActor(a.getBatchBill))

	mux.HandleFunc("POST /api/shipments", a.withActor(a.addShipment))
	mux.HandleFunc("GET /api/shipments/by-tracking/{no}", a.withActor(a.getByTracking))
	mux.HandleFunc("DELETE /api/shipments/{id}", a.withActor(a.removeShipment))
	mux.HandleFunc("GET /api/shipments/{id}/genealogy", a.withActor(a.genealogy))
	mux.HandleFunc("GET /api/shipments/{id}/lineage", a.withActor(a.lineage))

	mux.HandleFunc("POST /api/operators", a.withActor(a.upsertOperator))
	mux.HandleFunc("GET /api/operators/{id}", a.withActor(a.getOperator))

	mux.HandleFunc("POST /api/inspections", a.withActor(a.recordStageCheck))

	mux.HandleFunc("GET /api/bills", a.withActor(a.listBills))
	mux.HandleFunc("GET /api/bills/{id}", a.withActor(a.getBill))
	mux.HandleFunc("POST /api/bills/{id}/payments", a.withActor(a.addPayment))
	mux.HandleFunc("POST /api/bills/{id}/paid", a.withActor(a.markPaid))
	mux.HandleFunc("POST /api/bills/{id}/cancel", a.withActor(a.cancelBill))

	mux.HandleFunc("GET /api/session", a.withActor(a.getSession))
	mux.HandleFunc("PUT /api/session", a.withActor(a.setSession))
	mux.HandleFunc("DELETE /api/session", a.withActor(a.resetSession))
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, actor users.Operator)

func (a *API) withActor(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		login := r.Header.Get("X-Operator")
		if login == "" {
			a.fail(w, apperr.E(apperr.KindForbidden, "missing X-Operator header"))
			return
		}
		op, err := a.users.GetByLogin(r.Context(), login)
		if err != nil {
			a.fail(w, apperr.Wrap(apperr.KindStore, err, "resolve operator"))
			return
		}
		if op == nil || !op.Active {
			a.fail(w, apperr.E(apperr.KindForbidden, "unknown operator %q", login))
			return
		}
		h(w, r, *op)
	}
}

func (a *API) fail(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindInvalidTransition, apperr.KindConflict, apperr.KindAlreadyExists:
		status = http.StatusConflict
	case apperr.KindInsufficientInputs, apperr.KindInvalidAmount:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]any{"error": string(kind), "message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.E(apperr.KindNotFound, "bad id %q", r.PathValue("id"))
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.E(apperr.KindInsufficientInputs, "bad request body: %v", err)
	}
	return nil
}

/* Партии */

func (a *API) createBatch(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	var req struct {
		BatchNo string `json:"batch_no"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	b, err := a.svc.CreateBatch(r.Context(), actor, req.BatchNo)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) listBatches(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	out, err := a.svc.ListBatches(r.Context(), batches.Status(r.URL.Query().Get("status")))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getBatch(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	b, err := a.svc.GetBatch(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	b, err := a.svc.Transition(r.Context(), actor, id, batches.Status(req.Target))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

/* Отправления и консолидация */

func (a *API) listShipments(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	includeHistorical := r.URL.Query().Get("include_historical") == "1"
	out, err := a.svc.ListShipments(r.Context(), id, includeHistorical)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) addShipment(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	var req struct {
		BatchID    int64    `json:"batch_id"`
		TrackingNo string   `json:"tracking_no"`
		Weight     float64  `json:"weight"`
		Volume     *float64 `json:"volume"`
		Length     *float64 `json:"length"`
		Width      *float64 `json:"width"`
		Height     *float64 `json:"height"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	sh, err := a.svc.AddShipment(r.Context(), actor, shipments.Shipment{
		BatchID:    req.BatchID,
		TrackingNo: req.TrackingNo,
		Weight:     req.Weight,
		Volume:     req.Volume,
		Length:     req.Length,
		Width:      req.Width,
		Height:     req.Height,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (a *API) removeShipment(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	if err := a.svc.RemoveShipment(r.Context(), actor, id); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) merge(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	batchID, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	var req struct {
		Children        []shipments.Ref `json:"children"`
		TrackingNo      string          `json:"tracking_no"`
		TotalWeight     float64         `json:"total_weight"`
		Volume          *float64        `json:"volume"`
		AllowCrossBatch bool            `json:"allow_cross_batch"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	parent, err := a.svc.Merge(r.Context(), actor, shipments.MergeInput{
		BatchID:         batchID,
		Children:        req.Children,
		TrackingNo:      req.TrackingNo,
		TotalWeight:     req.TotalWeight,
		Volume:          req.Volume,
		AllowCrossBatch: req.AllowCrossBatch,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, parent)
}

func (a *API) split(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	batchID, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	var req struct {
		Parent shipments.Ref         `json:"parent"`
		Parts  []shipments.SplitPart `json:"parts"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.svc.Split(r.Context(), actor, shipments.SplitInput{
		BatchID: batchID,
		Parent:  req.Parent,
		Parts:   req.Parts,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"children":    res.Children,
		"weight_diff": res.WeightDiff,
		"exact":       res.Exact,
	})
}

func (a *API) getByTracking(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	no := r.PathValue("no")
	sh, err := a.svc.FindByTracking(r.Context(), no)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

func (a *API) genealogy(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	g, err := a.svc.GetGenealogy(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) lineage(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	l, err := a.svc.GetLineage(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

/* Операторы (только админ) */

func (a *API) upsertOperator(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	if actor.Role != users.RoleAdmin {
		a.fail(w, apperr.E(apperr.KindForbidden, "operator management needs admin"))
		return
	}
	var req struct {
		Login string `json:"login"`
		Name  string `json:"name"`
		Role  string `json:"role"`
		OrgID int64  `json:"org_id"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	op, err := a.users.Upsert(r.Context(), req.Login, req.Name, users.Role(req.Role), req.OrgID)
	if err != nil {
		a.fail(w, apperr.Wrap(apperr.KindStore, err, "upsert operator"))
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (a *API) getOperator(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	if actor.Role != users.RoleAdmin {
		a.fail(w, apperr.E(apperr.KindForbidden, "operator management needs admin"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	op, err := a.users.GetByID(r.Context(), id)
	if err != nil {
		a.fail(w, apperr.Wrap(apperr.KindStore, err, "get operator"))
		return
	}
	if op == nil {
		a.fail(w, apperr.E(apperr.KindNotFound, "operator %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, op)
}

/* Замеры */

func (a *API) recordStageCheck(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	var req struct {
		ShipmentID int64    `json:"shipment_id"`
		Stage      string   `json:"stage"`
		Weight     float64  `json:"weight"`
		Length     *float64 `json:"length"`
		Width      *float64 `json:"width"`
		Height     *float64 `json:"height"`
		Note       string   `json:"note"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	ins, err := a.svc.RecordStageCheck(r.Context(), actor, inspections.Inspection{
		ShipmentID: req.ShipmentID,
		Stage:      inspections.Stage(req.Stage),
		Weight:     req.Weight,
		Length:     req.Length,
		Width:      req.Width,
		Height:     req.Height,
		Note:       req.Note,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ins)
}

func (a *API) reconstruct(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	snaps, err := a.svc.ReconstructInspections(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

/* Отчёт */

func (a *API) report(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	b, err := a.svc.GetBatch(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	shs, err := a.svc.ListShipments(r.Context(), id, true)
	if err != nil {
		a.fail(w, err)
		return
	}
	snaps, err := a.svc.ReconstructInspections(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	bill, err := a.svc.GetBillForBatch(r.Context(), id)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		a.fail(w, err)
		return
	}

	buf := &bytes.Buffer{}
	if err := export.WriteXLSX(buf, export.BatchReport{
		Batch: *b, Shipments: shs, Snapshots: snaps, Bill: bill,
	}); err != nil {
		a.fail(w, err)
		return
	}

	name := fmt.Sprintf("batch_%s_%s.xlsx", b.BatchNo, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = w.Write(buf.Bytes())
}

/* Счета */

func (a *API) deriveBill(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	bill, err := a.svc.DeriveBill(r.Context(), actor, id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bill)
}

func (a *API) getBatchBill(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	bill, err := a.svc.GetBillForBatch(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (a *API) getBill(w http.ResponseWriter, r *http.Request, _ users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	bill, err := a.svc.GetBill(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	items, err := a.svc.GetBillItems(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bill": bill, "items": items})
}

func (a *API) listBills(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	out, err := a.svc.ListBillsForActor(r.Context(), actor)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) addPayment(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	var req struct {
		Amount    float64 `json:"amount"`
		Method    string  `json:"method"`
		Reference string  `json:"reference"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	bill, err := a.svc.AddPayment(r.Context(), actor, id, req.Amount, req.Method, req.Reference)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bill)
}

func (a *API) markPaid(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	bill, err := a.svc.MarkPaid(r.Context(), actor, id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (a *API) cancelBill(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	bill, err := a.svc.CancelBill(r.Context(), actor, id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

/* Сессия оператора */

func (a *API) getSession(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	sc, err := a.sessions.Get(r.Context(), actor.ID)
	if err != nil {
		a.fail(w, apperr.Wrap(apperr.KindStore, err, "get session"))
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (a *API) setSession(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	var req struct {
		ActiveBatchID int64           `json:"active_batch_id"`
		Payload       session.Payload `json:"payload"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, err)
		return
	}
	if req.ActiveBatchID != 0 {
		if _, err := a.svc.GetBatch(r.Context(), req.ActiveBatchID); err != nil {
			a.fail(w, err)
			return
		}
	}
	if err := a.sessions.Set(r.Context(), actor.ID, req.ActiveBatchID, req.Payload); err != nil {
		a.fail(w, apperr.Wrap(apperr.KindStore, err, "set session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) resetSession(w http.ResponseWriter, r *http.Request, actor users.Operator) {
	if err := a.sessions.Reset(r.Context(), actor.ID); err != nil {
		a.fail(w, apperr.Wrap(apperr.KindStore, err, "reset session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
