package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/skborders/internal/db"
	"github.com/wellywell/skborders/internal/order"
	"github.com/wellywell/skborders/internal/skb"
	"github.com/wellywell/skborders/internal/storage"
	"github.com/wellywell/skborders/internal/types"
	"github.com/wellywell/skborders/internal/validate"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

var (
	ErrCouldNotParseBody = errors.New("could not parse body")
	ErrInvalidID         = errors.New("invalid order id")
	ErrInvalidPaging     = errors.New("invalid limit or offset")
)

type OrderService interface {
	CreateOrder(ctx context.Context, in types.NewOrder) (*types.Order, error)
	GetOrder(ctx context.Context, orderID int) (*types.Order, error)
	ListOrders(ctx context.Context, limit int, offset int) ([]types.Order, error)
	ResubmitOrder(ctx context.Context, orderID int) (*types.Order, error)
	FetchResult(ctx context.Context, orderID int, format skb.Format) (*skb.Result, error)
	Result(ctx context.Context, orderID int) (*types.Delivery, error)
	Document(ctx context.Context, orderID int) (*storage.Object, error)
	Links(ctx context.Context, orderID int) ([]string, error)
	ListKinds(ctx context.Context) ([]types.OrderKind, error)
	SyncKinds(ctx context.Context) ([]types.OrderKind, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerSet struct {
	orders OrderService
	checks map[string]Pinger
}

func NewHandlerSet(orders OrderService, checks map[string]Pinger) *HandlerSet {
	return &HandlerSet{
		orders: orders,
		checks: checks,
	}
}

type errorResponse struct {
	HasError bool   `json:"hasError"`
	Message  string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	response, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Could not serialize result",
			http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(response)
	if err != nil {
		logger.Errorf("Failed to write response %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{HasError: true, Message: message})
}

func (h *HandlerSet) handleError(w http.ResponseWriter, err error) {
	var (
		validationErr *validate.ValidationError
		kindNotFound  *db.OrderKindNotFoundError
		throttle      *skb.ThrottleError
		rejected      *skb.PermanentError
	)

	switch {
	case errors.Is(err, ErrCouldNotParseBody), errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidPaging),
		errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &kindNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, db.ErrOrderNotFound), errors.Is(err, db.ErrFileNotFound), errors.Is(err, storage.ErrObjectNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNotReady), errors.Is(err, order.ErrNotSubmitted), errors.Is(err, order.ErrTerminal),
		errors.Is(err, order.ErrInactive), errors.Is(err, order.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &throttle):
		w.Header().Set("Retry-After", strconv.Itoa(int(throttle.RetryAfter().Seconds())))
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &rejected), errors.Is(err, skb.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error(err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func orderID(req *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(req, "id"))
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

func paging(req *http.Request) (limit int, offset int, err error) {
	limit, offset = defaultLimit, 0
	if s := req.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 {
			return 0, 0, ErrInvalidPaging
		}
	}
	if s := req.URL.Query().Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, ErrInvalidPaging
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, offset, nil
}

func (h *HandlerSet) HandleCreateOrder(w http.ResponseWriter, req *http.Request) {

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "Something went wrong",
			http.StatusInternalServerError)
		return
	}

	var in types.NewOrder
	if err := json.Unmarshal(body, &in); err != nil {
		h.handleError(w, ErrCouldNotParseBody)
		return
	}
	if err := validate.ValidateNewOrder(in); err != nil {
		h.handleError(w, err)
		return
	}

	created, err := h.orders.CreateOrder(req.Context(), in)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HandlerSet) HandleGetOrder(w http.ResponseWriter, req *http.Request) {
	id, err := orderID(req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	o, err := h.orders.GetOrder(req.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *HandlerSet) HandleListOrders(w http.ResponseWriter, req *http.Request) {
	limit, offset, err := paging(req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	orders, err := h.orders.ListOrders(req.Context(), limit, offset)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HandlerSet) HandleSendOrder(w http.ResponseWriter, req *http.Request) {
	id, err := orderID(req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	o, err := h.orders.ResubmitOrder(req.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, o)
}

// HandleGetResult proxies the partner result without retries.
func (h *HandlerSet) HandleGetResult(w http.ResponseWriter, req *http.Request) {
	id, err := orderID(req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	responseType := req.URL.Query().Get("responseType")
	if responseType == "" {
		responseType = string(skb.FormatJSON)
	}
	format, err := skb.ParseFormat(responseType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orders.FetchResult(req.Context(), id, format)
	if err != nil {
		h.handleError(w, err)
		return
	}

	if format == skb.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(result.Payload)
		return
	}
	writeDocument(w, result.Document, result.Filename, result.ContentType)
}

func (h *HandlerSet) HandleGetOrderResult(w http.ResponseWriter, req *http.Request) {
	id, err := orderID(req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	result, err := h.orders.Result(req.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HandlerSet) HandleGetFile(w http.ResponseWriter, req *http.Request) {
	id, err := orderID(req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	obj, err := h.orders.Document(req.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeDocument(w, obj.Data, obj.Filename, obj.ContentType)
}

func (h *HandlerSet) HandleGetFileLinks(w http.ResponseWriter, req *http.Request) {
	id, err := orderID(req)
	if err != nil {
		h.handleError(w, err)
		return
	}
	links, err := h.orders.Links(req.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Links []string `json:"links"`
	}{Links: links})
}

func (h *HandlerSet) HandleListKinds(w http.ResponseWriter, req *http.Request) {
	kinds, err := h.orders.ListKinds(req.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kinds)
}

func (h *HandlerSet) HandleSyncKinds(w http.ResponseWriter, req *http.Request) {
	kinds, err := h.orders.SyncKinds(req.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kinds)
}

func (h *HandlerSet) HandleHealth(w http.ResponseWriter, req *http.Request) {
	status := http.StatusOK
	report := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(req.Context()); err != nil {
			logger.WithField("check", name).Errorf("Health check failed %s", err)
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, report)
}

func writeDocument(w http.ResponseWriter, data []byte, filename string, contentType string) {
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
