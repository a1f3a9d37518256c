package booking

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/servicebook/booking-api/internal/handler"
	"github.com/servicebook/booking-api/internal/middleware"
	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/service/booking"
	"github.com/servicebook/booking-api/internal/service/payment"
	"github.com/servicebook/booking-api/pkg/errors"
	"github.com/servicebook/booking-api/pkg/httputil"
)

type Handler struct {
	service  *booking.Service
	payments *payment.Service
	auth     *middleware.AuthMiddleware
}

func NewHandler(service *booking.Service, payments *payment.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, payments: payments, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	bookings := r.Group("/bookings", h.auth.Authenticate())
	{
		bookings.GET("", h.ListBookings)
		bookings.GET("/:bookingId", h.GetBooking)
		bookings.PATCH("/:bookingId/status", h.UpdateBookingStatus)

		customer := bookings.Group("", middleware.RequireRole(model.RoleCustomer))
		customer.POST("", h.CreateBooking)
		customer.POST("/:bookingId/reschedule", h.RescheduleBooking)
	}
}

type createBookingResponse struct {
	Booking *model.Booking `json:"booking"`
	Payment *model.Payment `json:"payment,omitempty"`
}

// CreateBooking reserves the slot and, when payment_method is sent, opens the
// booking's payment. A failed payment initiation leaves the booking pending.
func (h *Handler) CreateBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	var req model.CreateBookingRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), actor.UserID, req.ServiceID, req.SlotID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	resp := createBookingResponse{Booking: b}
	if req.PaymentMethod != nil {
		p, err := h.payments.InitiatePayment(c.Request.Context(), b.ID, actor, nil, *req.PaymentMethod)
		if err != nil {
			log.Warn().Err(err).Int64("booking_id", b.ID).Msg("Payment initiation at checkout failed")
		} else {
			resp.Payment = p
		}
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, resp)
}

func (h *Handler) ListBookings(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	var filter model.BookingFilter
	if raw := c.Query("status"); raw != "" {
		status, valid := model.ParseBookingStatus(raw)
		if !valid {
			httputil.RespondWithError(c, errors.BadRequest("invalid status", nil))
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httputil.RespondWithError(c, errors.BadRequest("invalid limit", err))
			return
		}
		filter.Limit = limit
	}
	if filter.CustomerID, ok = handler.QueryID(c, "customer_id"); !ok {
		return
	}
	if filter.VendorID, ok = handler.QueryID(c, "vendor_id"); !ok {
		return
	}

	bookings, err := h.service.ListBookings(c.Request.Context(), actor, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, bookings)
}

func (h *Handler) GetBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "bookingId")
	if !ok {
		return
	}

	b, err := h.service.GetBooking(c.Request.Context(), id, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, b)
}

func (h *Handler) UpdateBookingStatus(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "bookingId")
	if !ok {
		return
	}

	var req model.UpdateBookingStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	b, err := h.service.UpdateBookingStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, b)
}

func (h *Handler) RescheduleBooking(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "bookingId")
	if !ok {
		return
	}

	var req model.RescheduleBookingRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	b, err := h.service.RescheduleBooking(c.Request.Context(), id, req.NewSlotID, actor.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, b)
}
