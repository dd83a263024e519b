package api

import (
	"net/http"
	"time"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/avreline/repairbooking/internal/service/session"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	service session.SessionUseCase
}

type selectDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

type selectServicesRequest struct {
	ServiceIDs []string `json:"service_ids"`
}

type bookAppointmentRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type goToStepRequest struct {
	Step string `json:"step"`
}

type sessionResponse struct {
	ID              string                   `json:"id"`
	Step            string                   `json:"step"`
	Status          string                   `json:"status"`
	Device          *domain.Device           `json:"device,omitempty"`
	Services        []domain.ServiceSnapshot `json:"services,omitempty"`
	Quote           *domain.Quote            `json:"quote,omitempty"`
	SlotDate        string                   `json:"slot_date,omitempty"`
	SlotTime        string                   `json:"slot_time,omitempty"`
	Customer        *domain.CustomerInfo     `json:"customer,omitempty"`
	Urgency         string                   `json:"urgency"`
	Condition       string                   `json:"condition,omitempty"`
	HasWarranty     bool                     `json:"has_warranty"`
	ProblemNotes    string                   `json:"problem_notes,omitempty"`
	ConfirmationRef string                   `json:"confirmation_ref,omitempty"`
	CreatedAt       string                   `json:"created_at"`
	UpdatedAt       string                   `json:"updated_at"`
}

type receiptResponse struct {
	BookingRef string `json:"booking_ref"`
	Status     string `json:"status"`
}

func NewSessionHandler(service session.SessionUseCase) *SessionHandler {
	return &SessionHandler{service: service}
}

func (h *SessionHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.start)
	router.GET("/:id", h.get)
	router.POST("/:id/device", h.selectDevice)
	router.POST("/:id/services", h.selectServices)
	router.POST("/:id/appointment", h.bookAppointment)
	router.POST("/:id/customer", h.addCustomerInfo)
	router.POST("/:id/submit", h.submit)
	router.POST("/:id/step", h.goToStep)
}

func (h *SessionHandler) start(c *gin.Context) {
	created, err := h.service.Start(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(created))
}

func (h *SessionHandler) get(c *gin.Context) {
	found, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(found))
}

func (h *SessionHandler) selectDevice(c *gin.Context) {
	var req selectDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.SelectDevice(c.Request.Context(), c.Param("id"), req.DeviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(updated))
}

func (h *SessionHandler) selectServices(c *gin.Context) {
	var req selectServicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.SelectServices(c.Request.Context(), c.Param("id"), req.ServiceIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(updated))
}

func (h *SessionHandler) bookAppointment(c *gin.Context) {
	var req bookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.BookAppointment(c.Request.Context(), c.Param("id"), req.Date, req.Time)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(updated))
}

func (h *SessionHandler) addCustomerInfo(c *gin.Context) {
	var req session.CustomerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.AddCustomerInfo(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(updated))
}

func (h *SessionHandler) submit(c *gin.Context) {
	receipt, err := h.service.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receiptResponse{BookingRef: receipt.BookingRef, Status: string(domain.SessionStatusConfirmed)})
}

func (h *SessionHandler) goToStep(c *gin.Context) {
	var req goToStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.GoToStep(c.Request.Context(), c.Param("id"), domain.Step(req.Step))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(updated))
}

func toSessionResponse(s *domain.BookingSession) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		Step:            string(s.Step),
		Status:          string(s.Status),
		Device:          s.Device,
		Services:        s.Services,
		Quote:           s.Quote,
		SlotDate:        s.SlotDate,
		SlotTime:        s.SlotTime,
		Customer:        s.Customer,
		Urgency:         string(s.Urgency),
		Condition:       string(s.Condition),
		HasWarranty:     s.HasWarranty,
		ProblemNotes:    s.ProblemNotes,
		ConfirmationRef: s.ConfirmationRef,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       s.UpdatedAt.Format(time.RFC3339),
	}
}
