package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/willianribas/bots/internal/domain"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/repository"
	"github.com/willianribas/bots/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// OrderLister pages through stored orders.
type OrderLister interface {
	List(ctx context.Context, f repository.OrderFilter) ([]domain.ServiceOrder, int64, error)
}

// HistoryLister reads the change history of one order.
type HistoryLister interface {
	ListByOrder(ctx context.Context, number string, limit int) ([]domain.HistoryEntry, error)
}

// OrderSearcher resolves a single order from the cache or the store.
type OrderSearcher interface {
	Search(ctx context.Context, number string) (*domain.ServiceOrder, string, error)
}

// OrderHandler serves the orders and their history.
type OrderHandler struct {
	orders   OrderLister
	history  HistoryLister
	searcher OrderSearcher
}

// NewOrderHandler creates an order handler.
// Parameters:
//   - orders: store listing.
//   - history: history listing.
//   - searcher: cache-first single lookup.
// Returns:
//   - *OrderHandler: initialized handler.
func NewOrderHandler(orders OrderLister, history HistoryLister, searcher OrderSearcher) *OrderHandler {
	return &OrderHandler{orders: orders, history: history, searcher: searcher}
}

// OrderListResponse is a page of orders.
type OrderListResponse struct {
	Orders []domain.ServiceOrder `json:"orders"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// OrderResponse is a single order with where it was found.
type OrderResponse struct {
	Order  *domain.ServiceOrder `json:"order"`
	Source string               `json:"source"`
}

// List handles GET /api/v1/orders?status=&critical=&active=&limit=&offset=.
func (h *OrderHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	filter := repository.OrderFilter{
		Status:       domain.Status(c.Query("status")),
		CriticalOnly: c.Query("critical") == "true",
		ActiveOnly:   c.Query("active") == "true",
		Limit:        limit,
		Offset:       offset,
	}

	orders, total, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("order listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders"})
		return
	}
	if orders == nil {
		orders = []domain.ServiceOrder{}
	}
	c.JSON(http.StatusOK, OrderListResponse{Orders: orders, Total: total, Limit: limit, Offset: offset})
}

// Get handles GET /api/v1/orders/:number.
func (h *OrderHandler) Get(c *gin.Context) {
	order, src, err := h.searcher.Search(c.Request.Context(), c.Param("number"))
	switch {
	case errors.Is(err, service.ErrInvalidOrderNumber):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.FromContext(c.Request.Context()).WithError(err).Error("order lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order"})
		return
	}
	c.JSON(http.StatusOK, OrderResponse{Order: order, Source: src})
}

// History handles GET /api/v1/orders/:number/history.
func (h *OrderHandler) History(c *gin.Context) {
	number := c.Param("number")
	if !domain.ValidOrderNumber(number) {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrInvalidOrderNumber.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > maxPageSize {
		limit = 100
	}

	entries, err := h.history.ListByOrder(c.Request.Context(), number, limit)
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("history listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"order_number": number, "history": entries})
}
