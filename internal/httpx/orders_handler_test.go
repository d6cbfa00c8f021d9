package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ariefcatur/go-bookstore-orders/internal/notify"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/queue"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	router *chi.Mux
	store  *orders.MemStore
	ch     *queue.Memory
	rec    *notify.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: orders.NewMemStore(), ch: queue.NewMemory(16), rec: &notify.Recorder{}}
	t.Cleanup(func() { _ = h.ch.Close() })
	log := zaptest.NewLogger(t)
	h.router = NewRouter(log)
	(&OrdersHandler{Service: orders.NewService(h.store, h.ch, h.rec, log), Log: log}).Register(h.router)
	return h
}

func (h *harness) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetOrder(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/orders", "u1", `{"items":[{"book_id":"b1","quantity":2}]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var created CreateOrderResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, orders.StatusPending, created.Status)
	assert.Equal(t, 1, h.ch.Len(orders.QueueOrderSubmitted))

	w = h.do(t, http.MethodGet, "/orders/"+created.OrderID, "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var o orders.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, []orders.Item{{BookID: "b1", Quantity: 2}}, o.Items)

	w = h.do(t, http.MethodGet, "/orders/"+created.OrderID, "someone-else", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrder_LegacySingleBook(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/orders", "u1", `{"book_id":"b7"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	m, err := h.ch.Receive(context.Background(), orders.QueueOrderSubmitted)
	require.NoError(t, err)
	body, err := queue.Decode[orders.OrderMessage](m.Body)
	require.NoError(t, err)
	assert.Equal(t, []orders.Item{{BookID: "b7", Quantity: 1}}, body.Items)
}

func TestCreateOrder_Errors(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/orders", "u1", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/orders", "", `{"book_id":"b1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/orders", "u1", `{"items":[{"book_id":"b1","quantity":-1}]}`).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/orders/missing", "u1", "").Code)
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/orders", "u1", `{"items":[{"book_id":"b1","quantity":1}]}`)
	var created CreateOrderResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = h.do(t, http.MethodPost, "/orders/"+created.OrderID+"/cancel", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"CANCELLED"`)

	w = h.do(t, http.MethodPost, "/orders/"+created.OrderID+"/cancel", "u1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelOrder_ForeignUserSeesNotFound(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/orders", "u1", `{"items":[{"book_id":"b1","quantity":1}]}`)
	var created CreateOrderResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = h.do(t, http.MethodPost, "/orders/"+created.OrderID+"/cancel", "u2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet, "/orders/"+created.OrderID, "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var o orders.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, []orders.Status{orders.StatusPending}, h.rec.Statuses(created.OrderID))
}

func TestUpdateAndDeleteBook(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodPost, "/books", "", `{"title":"Dune","author":"Herbert","price":"12.50","stock":3}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var b orders.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))

	w = h.do(t, http.MethodPatch, "/books/"+b.ID, "", `{"price":"9.99","stock":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated orders.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Dune", updated.Title)
	assert.Equal(t, "9.99", updated.Price.String())
	assert.Equal(t, 10, updated.Stock)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPatch, "/books/"+b.ID, "", `{"stock":-1}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPatch, "/books/"+b.ID, "", `{"title":" "}`).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPatch, "/books/missing", "", `{"stock":1}`).Code)

	w = h.do(t, http.MethodDelete, "/books/"+b.ID, "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/books/"+b.ID, "", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/books/"+b.ID, "", "").Code)
	assert.JSONEq(t, `[]`, h.do(t, http.MethodGet, "/books", "", "").Body.String())
}

func TestBooksUsersAndNotify(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/books", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = h.do(t, http.MethodPost, "/books", "", `{"title":"Dune","author":"Herbert","price":"12.50","stock":3,"artifact_path":"/b/dune.pdf"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var b orders.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, "12.5", b.Price.String())
	assert.NotContains(t, w.Body.String(), "dune.pdf")

	w = h.do(t, http.MethodGet, "/books/"+b.ID, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/books/missing", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/books", "", `{"author":"x"}`).Code)

	w = h.do(t, http.MethodPost, "/users", "", `{"username":"ann","email":"ann@example.com"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/users", "", `{"username":"ann"}`).Code)

	w = h.do(t, http.MethodPost, "/notify", "", `{"message":"store closes at 6"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, h.rec.Broadcasts(), 1)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
