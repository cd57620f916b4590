package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/slok/taskbroker/internal/model"
)

func (h handler) listDisputes(w http.ResponseWriter, r *http.Request, p model.Principal) {
	tasks, err := h.queries.ListDisputes(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapTasks(tasks))
}

func (h handler) disputeDetails(w http.ResponseWriter, r *http.Request, p model.Principal) {
	d, err := h.disputes.Details(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res := disputeDetailsJSON{
		Task:     mapTask(d.Task),
		Payments: mapPayments(d.Payments),
		Ratings:  make([]ratingJSON, 0, len(d.Ratings)),
	}
	for _, rt := range d.Ratings {
		res.Ratings = append(res.Ratings, mapRating(rt))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h handler) resolveDispute(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req resolveRequestJSON
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.disputes.Resolve(r.Context(), p, mux.Vars(r)["id"], model.DisputeResolutionKind(req.Kind), req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := resolutionJSON{Kind: string(res.Kind), Task: mapTask(res.Task)}
	if res.Payment != nil {
		pay := mapPayment(*res.Payment)
		out.Payment = &pay
	}
	writeJSON(w, http.StatusOK, out)
}
