package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/slok/taskbroker/internal/model"
)

func (h handler) listPayments(w http.ResponseWriter, r *http.Request, p model.Principal) {
	ps, err := h.payments.ListTaskPayments(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPayments(ps))
}

func (h handler) createHold(w http.ResponseWriter, r *http.Request, p model.Principal) {
	pay, err := h.payments.CreateHold(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapPayment(*pay))
}

func (h handler) confirmHold(w http.ResponseWriter, r *http.Request, p model.Principal) {
	pay, err := h.payments.ConfirmHold(r.Context(), p, mux.Vars(r)["id"])
	h.respondPayment(w, r, pay, err)
}

func (h handler) capture(w http.ResponseWriter, r *http.Request, p model.Principal) {
	pay, err := h.payments.Capture(r.Context(), p, mux.Vars(r)["id"])
	h.respondPayment(w, r, pay, err)
}

func (h handler) refund(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req refundRequestJSON
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var amount *model.Money
	if req.Amount != nil {
		a := model.Money(*req.Amount)
		amount = &a
	}
	pay, err := h.payments.Refund(r.Context(), p, mux.Vars(r)["id"], req.Reason, amount)
	h.respondPayment(w, r, pay, err)
}

func (h handler) earnings(w http.ResponseWriter, r *http.Request, p model.Principal) {
	e, err := h.payments.ContractorEarnings(r.Context(), p, p.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, earningsJSON{
		ContractorID:  e.ContractorID,
		Captured:      int64(e.Captured),
		Held:          int64(e.Held),
		CapturedCount: e.CapturedCount,
		HeldCount:     e.HeldCount,
	})
}

func (h handler) respondPayment(w http.ResponseWriter, r *http.Request, pay *model.Payment, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPayment(*pay))
}
