package api

import (
	"net/http"

	"github.com/avreline/repairbooking/internal/service/catalog"
	"github.com/gin-gonic/gin"
)

type DeviceHandler struct {
	service catalog.CatalogUseCase
}

func NewDeviceHandler(service catalog.CatalogUseCase) *DeviceHandler {
	return &DeviceHandler{service: service}
}

func (h *DeviceHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/services", h.services)
}

func (h *DeviceHandler) list(c *gin.Context) {
	devices, err := h.service.ListDevices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *DeviceHandler) get(c *gin.Context) {
	device, err := h.service.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *DeviceHandler) services(c *gin.Context) {
	device, err := h.service.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	services, err := h.service.CompatibleServices(c.Request.Context(), *device)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, services)
}
