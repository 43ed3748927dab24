package http

import (
	"errors"
	"net/http"

	"spendbook/internal/core"
	"spendbook/internal/docstore"
	applog "spendbook/internal/log"
)

type expenseView struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Note     string  `json:"note"`
	Date     string  `json:"date"`
	FullDate string  `json:"fullDate,omitempty"`
}

type categoryTotal struct {
	Category string `json:"category"`
	Total    string `json:"total"`
}

type filterView struct {
	Category string `json:"category"`
	Range    string `json:"range"`
}

type listResponse struct {
	Items      []expenseView   `json:"items"`
	Total      string          `json:"total"`
	Count      int             `json:"count"`
	ByCategory []categoryTotal `json:"by_category"`
	Filter     filterView      `json:"filter"`
}

type taxonomyResponse struct {
	Categories       []string `json:"categories"`
	CategoryFilters  []string `json:"category_filters"`
	DateRanges       []string `json:"date_ranges"`
	DefaultCategory  string   `json:"default_category"`
	DefaultDateRange string   `json:"default_date_range"`
}

// Messages shown to the user when the store fails.
const (
	msgSaveFailed   = "Could not save the expense. Please try again."
	msgDeleteFailed = "Could not delete the expense. Please try again."
)

func (s *Server) summarize(items []core.Expense, c core.Criteria) listResponse {
	sum := core.Filter(items, c, s.now())

	resp := listResponse{
		Items:      make([]expenseView, 0, sum.Count()),
		Total:      sum.TotalString(),
		Count:      sum.Count(),
		ByCategory: []categoryTotal{},
		Filter:     filterView{Category: c.Category.String(), Range: c.Range.String()},
	}
	for _, e := range sum.Items {
		v := expenseView{
			ID:       e.ID,
			Amount:   e.Amount,
			Category: e.Category.String(),
			Note:     e.Note,
			Date:     e.Date,
		}
		if !e.FullDate.IsZero() {
			v.FullDate = core.FormatTimestamp(e.FullDate)
		}
		resp.Items = append(resp.Items, v)
	}
	for _, ca := range sum.ByCategory() {
		resp.ByCategory = append(resp.ByCategory, categoryTotal{
			Category: ca.Category.String(),
			Total:    core.FormatAmount(ca.Amount),
		})
	}
	return resp
}

// criteria parses the filter query or writes a 400.
func (s *Server) criteria(w http.ResponseWriter, r *http.Request) (core.Criteria, bool) {
	c, err := ParseCriteria(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return core.Criteria{}, false
	}
	return c, true
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}
	items := s.expenses.List(r.Context())
	NewJSONResponse().JSON(s.summarize(items, c)).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	c, ok := s.criteria(w, r)
	if !ok {
		return
	}

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "request body too large").Write(w)
			return
		}
		logger.WarnContext(ctx, "Invalid request body", applog.FieldError, err)
		BadRequestError("invalid request body").Write(w)
		return
	}

	e, err := core.NewExpense(p.ExpenseInput(), s.now())
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			logger.InfoContext(ctx, "Expense rejected",
				applog.FieldOperation, applog.OpValidate,
				"field", verr.Field,
				applog.FieldError, err)
			UnprocessableEntityError(verr.Field, "Please enter a valid amount greater than zero.").Write(w)
			return
		}
		BadRequestError(err.Error()).Write(w)
		return
	}

	items, err := s.expenses.Create(ctx, e)
	if err != nil {
		if errors.Is(err, docstore.ErrStoreUnavailable) {
			BadGatewayError(msgSaveFailed).Write(w)
			return
		}
		ErrorResponse(http.StatusInternalServerError, msgSaveFailed).Write(w)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).JSON(s.summarize(items, c)).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	items, err := s.expenses.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrStoreUnavailable) {
			BadGatewayError(msgDeleteFailed).Write(w)
			return
		}
		ErrorResponse(http.StatusInternalServerError, msgDeleteFailed).Write(w)
		return
	}

	NewJSONResponse().JSON(s.summarize(items, c)).Write(w)
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	resp := taxonomyResponse{
		CategoryFilters:  []string{core.AllCategories.String()},
		DefaultCategory:  core.Food.String(),
		DefaultDateRange: core.AllTime.String(),
	}
	for _, c := range core.Categories() {
		resp.Categories = append(resp.Categories, c.String())
		resp.CategoryFilters = append(resp.CategoryFilters, c.String())
	}
	for _, dr := range core.DateRanges() {
		resp.DateRanges = append(resp.DateRanges, dr.String())
	}
	NewJSONResponse().JSON(resp).Write(w)
}
