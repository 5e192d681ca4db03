package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/checkout-service/internal/order"
)

const maxBodyBytes = 1 << 20

const stripeSignatureHeader = "Stripe-Signature"

type CheckoutRequest struct {
	Products json.RawMessage `json:"products"`
}

type PreOrderRequest struct {
	Products        json.RawMessage `json:"products"`
	ShippingDetails json.RawMessage `json:"shippingDetails"`
}

// ShippingContact holds the well-known shipping fields. Other fields are
// stored as sent.
type ShippingContact struct {
	FirstName string `json:"firstName" validate:"omitempty,max=200"`
	LastName  string `json:"lastName" validate:"omitempty,max=200"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,max=50"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type DataResponse struct {
	Data any `json:"data"`
}

// WebhookRecorder is notified of every verified webhook event.
type WebhookRecorder interface {
	ObserveWebhook(eventType, result string)
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
	webhooks WebhookRecorder
}

func NewOrderHandler(service order.Service, webhooks WebhookRecorder) *OrderHandler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &OrderHandler{
		service:  service,
		validate: validate,
		webhooks: webhooks,
	}
}

// RegisterRoutes mounts the routes that accept an optional bearer token.
// The webhook is mounted separately because it is authenticated by signature.
func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders/checkout", h.handleCheckout)
	router.Post("/orders/preorder", h.handleCreatePreOrder)
	router.Get("/orders/me", h.handleGetMyOrders)
}

func (h *OrderHandler) RegisterWebhook(router chi.Router) {
	router.Post("/orders/webhook", h.handleWebhook)
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var requestPayload CheckoutRequest
	if err := decodeJSON(w, r, &requestPayload); err != nil {
		respondWithAppError(w, err)
		return
	}

	result, err := h.service.Checkout(r.Context(), order.CheckoutInput{
		Products: requestPayload.Products,
		UserID:   UserIDFromContext(r.Context()),
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *OrderHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("handler: failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "Missing Stripe signature or raw body")
		return
	}

	outcome, err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	if h.webhooks != nil {
		h.webhooks.ObserveWebhook(outcome.EventType, string(outcome.Result))
	}

	respondWithJSON(w, http.StatusOK, WebhookResponse{Received: true})
}

func (h *OrderHandler) handleCreatePreOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload PreOrderRequest
	if err := decodeJSON(w, r, &requestPayload); err != nil {
		respondWithAppError(w, err)
		return
	}

	shipping, err := h.parseShippingDetails(requestPayload.ShippingDetails)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	created, err := h.service.CreatePreOrder(r.Context(), order.PreOrderInput{
		Products:        requestPayload.Products,
		ShippingDetails: shipping,
		UserID:          UserIDFromContext(r.Context()),
	})
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, DataResponse{Data: created})
}

func (h *OrderHandler) parseShippingDetails(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, apperr.Validation("shippingDetails must be an object")
	}

	var fields map[string]any
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, apperr.Validation("shippingDetails must be an object")
	}

	// A known field of the wrong JSON type fails here too.
	var contact ShippingContact
	if err := json.Unmarshal(trimmed, &contact); err != nil {
		return nil, apperr.Validation("Validation failed").WithDetails("shippingDetails", err.Error())
	}

	if err := h.validate.Struct(contact); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			log.Error().Err(err).Type("validation_error_type", err).Msg("handler: unexpected error type during validation")
			return nil, apperr.Internal("Internal validation error", err)
		}
		appErr := apperr.Validation("Validation failed")
		for field, tag := range formatValidationErrors(validationErrors) {
			appErr = appErr.WithDetails(field, tag)
		}
		return nil, appErr
	}

	return fields, nil
}

func (h *OrderHandler) handleGetMyOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var page order.PageRequest
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondWithAppError(w, apperr.Validation("Invalid limit").WithDetails("limit", raw))
			return
		}
		page.Limit = limit
	}
	page.Cursor = query.Get("cursor")

	result, err := h.service.ListMyOrders(r.Context(), UserIDFromContext(r.Context()), page)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
