package http

import (
	"net/http"
	"strconv"

	applog "spesa/internal/log"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(s.expenses.List(r.Context())).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	e, err := ExpenseFromBody(NewRequestBodyParser(r), NewExpenseDefaults(s.today()))
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	created, err := s.expenses.CreateExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", expenseLocation(created.ID)).
		JSON(created).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	e, err := s.expenses.GetExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().JSON(e).Write(w)
}

// handleUpdateExpense overlays the submitted fields on the stored record.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	current, err := s.expenses.GetExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}

	e, err := ExpenseFromBody(NewRequestBodyParser(r), current)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	e.ID = id

	updated, err := s.expenses.UpdateExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().JSON(updated).Write(w)
}

// handleDeleteExpense is idempotent: unknown ids also yield 204.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	s.expenses.DeleteExpense(r.Context(), id)
	NoContent().Write(w)
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(s.expenses.Filters()).Write(w)
}

func (s *Server) handlePatchFilters(w http.ResponseWriter, r *http.Request) {
	patch, err := ParseFilterPatch(r)
	if err != nil {
		writeError(w, r, applog.OpFilter, err)
		return
	}
	f, err := s.expenses.SetFilters(r.Context(), patch)
	if err != nil {
		writeError(w, r, applog.OpFilter, err)
		return
	}
	NewJSONResponse().JSON(f).Write(w)
}

func (s *Server) handleResetFilters(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(s.expenses.ResetFilters(r.Context())).Write(w)
}

func expenseLocation(id int64) string {
	return "/api/expenses/" + strconv.FormatInt(id, 10)
}
