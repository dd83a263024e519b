package api

import (
	"net/http"

	"github.com/avreline/repairbooking/internal/domain"
	"github.com/avreline/repairbooking/internal/service/session"
	"github.com/gin-gonic/gin"
)

type SlotHandler struct {
	service session.SessionUseCase
}

type slotGroup struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

func NewSlotHandler(service session.SessionUseCase) *SlotHandler {
	return &SlotHandler{service: service}
}

func (h *SlotHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
}

func (h *SlotHandler) list(c *gin.Context) {
	slots, err := h.service.ListAvailableSlots(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupByDate(slots))
}

// groupByDate keeps the allocator's (date,time) ordering while shaping the
// response the way booking calendars render it.
func groupByDate(slots []domain.AppointmentSlot) []slotGroup {
	groups := make([]slotGroup, 0)
	for _, s := range slots {
		if n := len(groups); n > 0 && groups[n-1].Date == s.Date {
			groups[n-1].Times = append(groups[n-1].Times, s.Time)
			continue
		}
		groups = append(groups, slotGroup{Date: s.Date, Times: []string{s.Time}})
	}
	return groups
}
