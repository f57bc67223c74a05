package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/models"
)

type ShipmentController struct {
	fleet *fleet.Manager
	log   *logrus.Logger
}

func NewShipmentController(m *fleet.Manager, log *logrus.Logger) *ShipmentController {
	return &ShipmentController{fleet: m, log: log}
}

func (s *ShipmentController) CreateShipment(c *gin.Context) {
	var input fleet.ShipmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	sh, err := s.fleet.CreateShipment(c.Request.Context(), caller(c), input)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sh})
}

// ListShipments accepts an optional comma separated ?status= filter.
func (s *ShipmentController) ListShipments(c *gin.Context) {
	var statuses []models.ShipmentStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := fleet.ParseStatus(part)
			if err != nil {
				respondError(c, s.log, err)
				return
			}
			statuses = append(statuses, st)
		}
	}
	shipments, err := s.fleet.ListShipments(c.Request.Context(), caller(c), statuses...)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	if shipments == nil {
		shipments = []models.Shipment{}
	}
	list(c, shipments, len(shipments))
}

func (s *ShipmentController) GetShipment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	sh, err := s.fleet.GetShipment(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sh})
}

func (s *ShipmentController) TrackShipment(c *gin.Context) {
	sh, err := s.fleet.GetShipmentByReference(c.Request.Context(), caller(c), c.Param("ref"))
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sh})
}

func (s *ShipmentController) UpdateShipment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	var patch fleet.ShipmentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	sh, err := s.fleet.UpdateShipment(c.Request.Context(), caller(c), id, patch)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sh})
}

func (s *ShipmentController) UpdateStatus(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
		Force  bool   `json:"force"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	who := caller(c)
	if body.Force && !who.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admins may force a status"})
		return
	}
	st, err := fleet.ParseStatus(body.Status)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	sh, err := s.fleet.UpdateStatus(c.Request.Context(), id, st, body.Force)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sh})
}

func (s *ShipmentController) StartTrip(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	sh, err := s.fleet.StartTrip(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sh})
}

// DeleteShipment answers 200 even when invoice cleanup failed; the
// response then lists the cleanup errors.
func (s *ShipmentController) DeleteShipment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	res, err := s.fleet.DeleteShipment(c.Request.Context(), id)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	body := gin.H{"message": "Shipment deleted", "data": res}
	if res.Partial() {
		msgs := make([]string, len(res.CleanupErrors))
		for i, e := range res.CleanupErrors {
			msgs[i] = e.Error()
		}
		body["cleanup_errors"] = msgs
	}
	c.JSON(http.StatusOK, body)
}

func (s *ShipmentController) GetRoute(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	raw, err := s.fleet.RouteGeoJSON(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", raw)
}

func (s *ShipmentController) Stats(c *gin.Context) {
	stats, err := s.fleet.ShipmentStats(c.Request.Context(), caller(c))
	if err != nil {
		respondError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}
