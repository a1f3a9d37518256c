package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/servicebook/booking-api/internal/handler"
	"github.com/servicebook/booking-api/internal/middleware"
	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/service/payment"
	"github.com/servicebook/booking-api/pkg/httputil"
)

type Handler struct {
	service *payment.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *payment.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/bookings/:bookingId/payment", h.auth.Authenticate())
	{
		payments.GET("", h.GetPayment)
		payments.POST("", middleware.RequireRole(model.RoleCustomer), h.InitiatePayment)
		payments.PATCH("", middleware.RequireRole(model.RoleCustomer, model.RoleAdmin), h.UpdatePaymentStatus)
	}
}

func (h *Handler) InitiatePayment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	bookingID, ok := handler.ParamID(c, "bookingId")
	if !ok {
		return
	}

	var req model.InitiatePaymentRequest
	if c.Request.ContentLength != 0 && !handler.BindJSON(c, &req) {
		return
	}

	p, err := h.service.InitiatePayment(c.Request.Context(), bookingID, actor, req.Amount, req.Method)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, p)
}

func (h *Handler) UpdatePaymentStatus(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	bookingID, ok := handler.ParamID(c, "bookingId")
	if !ok {
		return
	}

	var req model.UpdatePaymentStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	p, err := h.service.UpdatePaymentStatus(c.Request.Context(), bookingID, req.Status, req.TransactionRef, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, p)
}

func (h *Handler) GetPayment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	bookingID, ok := handler.ParamID(c, "bookingId")
	if !ok {
		return
	}

	p, err := h.service.GetPayment(c.Request.Context(), bookingID, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, p)
}
