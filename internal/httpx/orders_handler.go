package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HeaderUserID carries the caller's identity; authentication happens upstream.
const HeaderUserID = "X-User-ID"

type OrdersHandler struct {
	Service *orders.Service
	Log     *zap.Logger
}

type CreateOrderReq struct {
	ExternalID string        `json:"external_id"`
	Items      []orders.Item `json:"items"`
	// legacy single-book form
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
}

type CreateOrderResp struct {
	OrderID string        `json:"order_id"`
	Status  orders.Status `json:"status"`
}

type StatusResp struct {
	OrderID string        `json:"order_id"`
	Status  orders.Status `json:"status"`
}

type CreateBookReq struct {
	Title        string          `json:"title"`
	Author       string          `json:"author"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	ArtifactPath string          `json:"artifact_path"`
	Description  string          `json:"description"`
}

// UpdateBookReq is a partial update; absent fields keep their value.
type UpdateBookReq struct {
	Title       *string          `json:"title"`
	Author      *string          `json:"author"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
	Description *string          `json:"description"`
}

type NotifyReq struct {
	Message string `json:"message"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/books", h.listBooks)
	r.Get("/books/{id}", h.getBook)
	r.Post("/books", h.createBook)
	r.Patch("/books/{id}", h.updateBook)
	r.Delete("/books/{id}", h.deleteBook)
	r.Post("/users", h.createUser)
	r.Post("/notify", h.notify)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition):
		code = http.StatusConflict
	default:
		if h.Log != nil {
			h.Log.Error("request failed", zap.Error(err))
		}
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if !decode(w, r, &req) {
		return
	}
	items := req.Items
	if len(items) == 0 && req.BookID != "" {
		q := req.Quantity
		if q == 0 {
			q = 1
		}
		items = []orders.Item{{BookID: req.BookID, Quantity: q}}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.PlaceOrder(ctx, orders.PlaceOrderInput{
		UserID:     r.Header.Get(HeaderUserID),
		Items:      items,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CreateOrderResp{OrderID: o.ID, Status: o.Status})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	// only the owner sees the order; an anonymous caller gets it as-is
	if uid := r.Header.Get(HeaderUserID); uid != "" && uid != o.UserID {
		h.writeErr(w, orders.NotFoundError("order", o.ID))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	var (
		status orders.Status
		err    error
	)
	if uid := r.Header.Get(HeaderUserID); uid != "" {
		status, err = h.Service.CancelUserOrder(ctx, uid, id)
	} else {
		status, err = h.Service.CancelOrder(ctx, id)
	}
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResp{OrderID: id, Status: status})
}

func (h *OrdersHandler) listBooks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	books, err := h.Service.ListBooks(ctx)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if books == nil {
		books = []orders.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *OrdersHandler) getBook(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *OrdersHandler) createBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookReq
	if !decode(w, r, &req) {
		return
	}
	b, err := h.Service.AddBook(r.Context(), orders.Book{
		Title:        req.Title,
		Author:       req.Author,
		Price:        req.Price,
		Stock:        req.Stock,
		ArtifactPath: req.ArtifactPath,
		Description:  req.Description,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *OrdersHandler) updateBook(w http.ResponseWriter, r *http.Request) {
	var req UpdateBookReq
	if !decode(w, r, &req) {
		return
	}
	b, err := h.Service.UpdateBook(r.Context(), chi.URLParam(r, "id"), orders.BookPatch{
		Title:       req.Title,
		Author:      req.Author,
		Price:       req.Price,
		Stock:       req.Stock,
		Description: req.Description,
	})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *OrdersHandler) deleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteBook(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var u orders.User
	if !decode(w, r, &u) {
		return
	}
	u, err := h.Service.RegisterUser(r.Context(), u)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *OrdersHandler) notify(w http.ResponseWriter, r *http.Request) {
	var req NotifyReq
	if !decode(w, r, &req) {
		return
	}
	if err := h.Service.Broadcast(r.Context(), req.Message); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}
