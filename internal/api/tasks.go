package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/slok/taskbroker/internal/app/lifecycle"
	"github.com/slok/taskbroker/internal/app/query"
	"github.com/slok/taskbroker/internal/model"
)

func (h handler) createTask(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req createTaskRequestJSON
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	t, err := h.tasks.CreateTask(r.Context(), p, lifecycle.CreateTaskRequest{
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		Location:    model.Location{Lat: req.Location.Lat, Lng: req.Location.Lng, Address: req.Location.Address},
		Budget:      model.Money(req.BudgetAmount),
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapTask(*t))
}

func (h handler) listTasks(w http.ResponseWriter, r *http.Request, p model.Principal) {
	q := r.URL.Query()
	req := query.ListTasksRequest{
		ClientID:     q.Get("client_id"),
		ContractorID: q.Get("contractor_id"),
	}
	for _, st := range q["status"] {
		for _, s := range strings.Split(st, ",") {
			if s = strings.TrimSpace(s); s != "" {
				req.Statuses = append(req.Statuses, model.TaskStatus(s))
			}
		}
	}

	tasks, err := h.queries.ListTasks(r.Context(), p, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mapTasks(tasks))
}

func (h handler) getTask(w http.ResponseWriter, r *http.Request, p model.Principal) {
	t, err := h.tasks.GetTask(r.Context(), p, mux.Vars(r)["id"])
	h.respondTask(w, r, t, err)
}

func (h handler) acceptTask(w http.ResponseWriter, r *http.Request, p model.Principal) {
	t, err := h.tasks.AcceptTask(r.Context(), p, mux.Vars(r)["id"])
	h.respondTask(w, r, t, err)
}

func (h handler) startTask(w http.ResponseWriter, r *http.Request, p model.Principal) {
	t, err := h.tasks.StartTask(r.Context(), p, mux.Vars(r)["id"])
	h.respondTask(w, r, t, err)
}

func (h handler) completeTask(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req completeRequestJSON
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.tasks.CompleteTask(r.Context(), p, mux.Vars(r)["id"], req.Photos)
	h.respondTask(w, r, t, err)
}

func (h handler) cancelTask(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req reasonRequestJSON
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.tasks.CancelTask(r.Context(), p, mux.Vars(r)["id"], req.Reason)
	h.respondTask(w, r, t, err)
}

func (h handler) raiseDispute(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req reasonRequestJSON
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.tasks.RaiseDispute(r.Context(), p, mux.Vars(r)["id"], req.Reason)
	h.respondTask(w, r, t, err)
}

func (h handler) rateTask(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req rateRequestJSON
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rt, err := h.tasks.RateTask(r.Context(), p, mux.Vars(r)["id"], lifecycle.RateRequest{Score: req.Score, Comment: req.Comment})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapRating(*rt))
}

func (h handler) tipTask(w http.ResponseWriter, r *http.Request, p model.Principal) {
	var req tipRequestJSON
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	t, err := h.tasks.AddTip(r.Context(), p, mux.Vars(r)["id"], model.Money(req.Amount))
	h.respondTask(w, r, t, err)
}

func (h handler) respondTask(w http.ResponseWriter, r *http.Request, t *model.Task, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapTask(*t))
}
