package slot

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/servicebook/booking-api/internal/handler"
	"github.com/servicebook/booking-api/internal/middleware"
	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/service/slot"
	"github.com/servicebook/booking-api/pkg/httputil"
)

type Handler struct {
	service *slot.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *slot.Service, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	availability := r.Group("/availability")
	{
		availability.GET("", h.auth.OptionalAuthenticate(), h.ListSlots)

		vendor := availability.Group("", h.auth.Authenticate(), middleware.RequireRole(model.RoleVendor))
		vendor.POST("", h.CreateSlot)
		vendor.DELETE("/:slotId", h.DeleteSlot)
	}
}

func (h *Handler) ListSlots(c *gin.Context) {
	vendorID, ok := handler.QueryID(c, "vendor_id")
	if !ok {
		return
	}
	serviceID, ok := handler.QueryID(c, "service_id")
	if !ok {
		return
	}

	var actor *model.Actor
	if a, found := middleware.ActorFromContext(c); found {
		actor = &a
	}

	slots, err := h.service.ListSlots(c.Request.Context(), actor, slot.Query{
		VendorID:  vendorID,
		ServiceID: serviceID,
		FromDate:  c.Query("from_date"),
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, slots)
}

func (h *Handler) CreateSlot(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	var req model.CreateSlotRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	vendorID, err := h.service.VendorIDForUser(c.Request.Context(), actor.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	created, err := h.service.CreateSlot(c.Request.Context(), vendorID, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, created)
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	slotID, ok := handler.ParamID(c, "slotId")
	if !ok {
		return
	}

	vendorID, err := h.service.VendorIDForUser(c.Request.Context(), actor.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if err := h.service.DeleteSlot(c.Request.Context(), slotID, vendorID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"id": slotID, "deleted": true})
}
