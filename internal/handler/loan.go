package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/segyhp/payroll-loans/internal/domain"
	"github.com/segyhp/payroll-loans/internal/logger"
	customError "github.com/segyhp/payroll-loans/pkg/errors"
	"github.com/segyhp/payroll-loans/pkg/response"
	"github.com/segyhp/payroll-loans/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// LoanService is the behaviour the HTTP layer needs from the loan engine.
type LoanService interface {
	CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.CreateLoanResponse, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	ListLoans(ctx context.Context, filter domain.LoanFilter) (*domain.LoanPage, error)
	UpdateLoan(ctx context.Context, id uuid.UUID, patch domain.LoanPatch) (*domain.Loan, error)
	CloseLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	ListInstallments(ctx context.Context, loanID uuid.UUID) ([]*domain.Installment, error)
	GetOutstanding(ctx context.Context, loanID uuid.UUID) (*domain.OutstandingResponse, error)
	ApplyInstallmentAction(ctx context.Context, installmentID uuid.UUID, action domain.InstallmentAction, payload domain.ActionPayload) (*domain.InstallmentActionResult, error)
}

type LoanHandler struct {
	service   LoanService
	validator *validator.Validate
}

func NewLoanHandler(service LoanService) *LoanHandler {
	return &LoanHandler{
		service:   service,
		validator: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// A zero Date counts as missing for `required`.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(domain.Date); ok && !d.IsZero() {
			return d.Time
		}
		return nil
	}, domain.Date{})

	return v
}

// CreateLoan handles POST /loans
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLoanRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.CreateLoan(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Created(w, resp)
}

// ListLoans handles GET /loans
func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := utils.ParsePositiveInt(query.Get("page"), 1)
	if err != nil {
		h.fail(w, r, customError.WrapInvalidPayload("page", err.Error()))
		return
	}
	perPage, err := utils.ParsePositiveInt(query.Get("per_page"), 0)
	if err != nil {
		h.fail(w, r, customError.WrapInvalidPayload("per_page", err.Error()))
		return
	}

	result, err := h.service.ListLoans(r.Context(), domain.LoanFilter{
		EmployeeID: query.Get("employee_id"),
		Status:     domain.LoanStatus(query.Get("status")),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Paginated(w, result.Loans, result.Meta)
}

// GetLoan handles GET /loans/{loanId}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	loan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, loan)
}

// UpdateLoan handles PATCH /loans/{loanId}
func (h *LoanHandler) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	var patch domain.LoanPatch
	if !h.decodeAndValidate(w, r, &patch) {
		return
	}

	loan, err := h.service.UpdateLoan(r.Context(), loanID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, loan)
}

// CloseLoan handles POST /loans/{loanId}/close
func (h *LoanHandler) CloseLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	loan, err := h.service.CloseLoan(r.Context(), loanID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, loan)
}

// DeleteLoan handles DELETE /loans/{loanId}
func (h *LoanHandler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteLoan(r.Context(), loanID); err != nil {
		h.fail(w, r, err)
		return
	}

	response.NoContent(w)
}

// ListInstallments handles GET /loans/{loanId}/installments
func (h *LoanHandler) ListInstallments(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	installments, err := h.service.ListInstallments(r.Context(), loanID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, installments)
}

// GetOutstanding handles GET /loans/{loanId}/outstanding
func (h *LoanHandler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	outstanding, err := h.service.GetOutstanding(r.Context(), loanID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, outstanding)
}

// InstallmentAction handles POST /installments/{installmentId}/actions
func (h *LoanHandler) InstallmentAction(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["installmentId"]
	installmentID, err := uuid.Parse(raw)
	if err != nil {
		h.fail(w, r, customError.WrapInstallmentNotFound(raw))
		return
	}

	var req domain.InstallmentActionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.ApplyInstallmentAction(r.Context(), installmentID, req.Action, req.ActionPayload)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	response.Success(w, result)
}

// loanID parses the loanId path variable. A malformed id cannot name an
// existing loan, so it is reported as not found.
func (h *LoanHandler) loanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["loanId"]
	id, err := uuid.Parse(raw)
	if err != nil {
		h.fail(w, r, customError.WrapLoanNotFound(raw))
		return uuid.Nil, false
	}
	return id, true
}

func (h *LoanHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var be *customError.BusinessError
		if errors.As(err, &be) {
			h.fail(w, r, be)
		} else {
			h.fail(w, r, customError.WrapInvalidPayload("", "Invalid request body: "+err.Error()))
		}
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.fail(w, r, validationError(err))
		return false
	}

	return true
}

func (h *LoanHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if customError.Kind(err) == customError.KindInternal {
		logger.CtxError(r.Context(), "Request failed", err)
	}
	response.FromError(w, err)
}

// validationError converts the first validator failure into an InvalidPayload error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return customError.WrapInvalidPayload("", err.Error())
	}

	fe := verrs[0]
	field := fe.Field()
	var reason string
	switch fe.Tag() {
	case "required":
		reason = fmt.Sprintf("%s is required", field)
	case "oneof":
		reason = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max":
		reason = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		reason = fmt.Sprintf("%s failed on the %s rule", field, fe.Tag())
	}
	return customError.WrapInvalidPayload(field, reason)
}
