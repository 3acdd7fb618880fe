package workflow

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/opaline-simulator/internal/common"
	"github.com/noah-isme/opaline-simulator/internal/pricing"
	"github.com/noah-isme/opaline-simulator/internal/submission"
)

// User-facing messages.
const (
	MessageMissingFields = "Veuillez remplir tous les champs."
	MessageInvalidCounts = "Les quantités doivent être comprises entre 0 et 1 000 000, avec au moins un client par mois."
	MessageSendFailed    = "❌ Une erreur est survenue lors de l'envoi de l'email."
	messageSentFormat    = "📩 Un email a été envoyé à %s avec votre simulation."
	messageFailed        = "Une erreur est survenue lors de l'enregistrement de votre simulation."
)

// Handler exposes the simulator endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Routes mounts the simulator endpoints on r. submit wraps the submission
// endpoint only (rate limiting, idempotency).
func (h *Handler) Routes(r chi.Router, submit ...func(http.Handler) http.Handler) {
	r.Get("/api/v1/pricing", h.Pricing)
	r.Post("/api/v1/quote", h.Quote)
	r.With(submit...).Post("/api/v1/submissions", h.Submit)
}

type defaultsDTO struct {
	MonthlyClientCount int `json:"monthlyClientCount"`
	KitCount1Person    int `json:"kitCount1Person"`
	KitCount2Person    int `json:"kitCount2Person"`
}

type pricingResponse struct {
	Prices   pricing.Config `json:"prices"`
	Defaults defaultsDTO    `json:"defaults"`
}

// Pricing handles GET /api/v1/pricing.
func (h *Handler) Pricing(w http.ResponseWriter, _ *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "simulator service not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": pricingResponse{
		Prices: h.service.Pricing(),
		Defaults: defaultsDTO{
			MonthlyClientCount: submission.DefaultMonthlyClientCount,
			KitCount1Person:    submission.DefaultKitCount1Person,
			KitCount2Person:    submission.DefaultKitCount2Person,
		},
	}})
}

type quoteRequest struct {
	KitCount1Person *int `json:"kitCount1Person"`
	KitCount2Person *int `json:"kitCount2Person"`
}

// Quote handles POST /api/v1/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "simulator service not configured", nil)
		return
	}
	var req quoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	k1 := intOrDefault(req.KitCount1Person, submission.DefaultKitCount1Person)
	k2 := intOrDefault(req.KitCount2Person, submission.DefaultKitCount2Person)
	if invalid := outOfRangeCounts(k1, k2); len(invalid) > 0 {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", MessageInvalidCounts,
			map[string]any{"fields": invalid})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.service.Quote(k1, k2)})
}

type submitRequest struct {
	ContactName        string `json:"contactName"`
	ContactSurname     string `json:"contactSurname"`
	ContactEmail       string `json:"contactEmail"`
	MonthlyClientCount *int   `json:"monthlyClientCount"`
	KitCount1Person    *int   `json:"kitCount1Person"`
	KitCount2Person    *int   `json:"kitCount2Person"`
}

func (req submitRequest) input() submission.Input {
	return submission.Input{
		ContactName:        req.ContactName,
		ContactSurname:     req.ContactSurname,
		ContactEmail:       req.ContactEmail,
		MonthlyClientCount: intOrDefault(req.MonthlyClientCount, submission.DefaultMonthlyClientCount),
		KitCount1Person:    intOrDefault(req.KitCount1Person, submission.DefaultKitCount1Person),
		KitCount2Person:    intOrDefault(req.KitCount2Person, submission.DefaultKitCount2Person),
	}
}

type submitResponse struct {
	Status   Outcome        `json:"status"`
	Message  string         `json:"message"`
	ID       string         `json:"id,omitempty"`
	Appended bool           `json:"appended"`
	Amounts  pricing.Result `json:"amounts"`
}

// Submit handles POST /api/v1/submissions.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "simulator service not configured", nil)
		return
	}
	var req submitRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}

	res := h.service.Process(r.Context(), req.input())
	switch res.Outcome {
	case OutcomeValidationFailed:
		var details any
		message := MessageMissingFields
		var verr *submission.ValidationError
		if errors.As(res.Err, &verr) {
			details = map[string]any{"fields": verr.Fields}
			if verr.OnlyCounts() {
				message = MessageInvalidCounts
			}
		}
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", message, details)
	case OutcomeFailed:
		common.JSONError(w, http.StatusBadGateway, "SUBMISSION_FAILED", messageFailed, nil)
	case OutcomePartialFailure:
		common.JSON(w, http.StatusOK, h.body(res, MessageSendFailed))
	default:
		common.JSON(w, http.StatusOK, h.body(res, SentMessage(res.Submission.ContactEmail())))
	}
}

func (h *Handler) body(res Result, message string) map[string]any {
	return map[string]any{"data": submitResponse{
		Status:   res.Outcome,
		Message:  message,
		ID:       res.Submission.ID().String(),
		Appended: res.Record.Appended,
		Amounts:  res.Submission.Pricing(),
	}}
}

// SentMessage is shown once the confirmation email left for email.
func SentMessage(email string) string {
	return fmt.Sprintf(messageSentFormat, email)
}

func outOfRangeCounts(k1, k2 int) []string {
	var fields []string
	if k1 < 0 || k1 > pricing.MaxKitCount {
		fields = append(fields, "kitCount1Person")
	}
	if k2 < 0 || k2 > pricing.MaxKitCount {
		fields = append(fields, "kitCount2Person")
	}
	return fields
}

func intOrDefault(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
