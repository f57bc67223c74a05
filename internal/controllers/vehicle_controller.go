package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/models"
)

type VehicleController struct {
	fleet *fleet.Manager
	log   *logrus.Logger
}

func NewVehicleController(m *fleet.Manager, log *logrus.Logger) *VehicleController {
	return &VehicleController{fleet: m, log: log}
}

// CreateVehicle registers a vehicle. It starts IDLE with no shipment.
func (v *VehicleController) CreateVehicle(c *gin.Context) {
	var input fleet.VehicleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle input: " + err.Error()})
		return
	}
	vehicle, err := v.fleet.CreateVehicle(c.Request.Context(), input)
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": vehicle})
}

func (v *VehicleController) ListVehicles(c *gin.Context) {
	var statuses []models.VehicleStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, models.VehicleStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	vehicles, err := v.fleet.ListVehicles(c.Request.Context(), statuses...)
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	list(c, vehicles, len(vehicles))
}

func (v *VehicleController) GetVehicle(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	vehicle, err := v.fleet.GetVehicle(c.Request.Context(), id)
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

func (v *VehicleController) UpdateVehicle(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	var patch fleet.VehiclePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update: " + err.Error()})
		return
	}
	vehicle, err := v.fleet.UpdateVehicle(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

func (v *VehicleController) DeleteVehicle(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	if err := v.fleet.DeleteVehicle(c.Request.Context(), id); err != nil {
		respondError(c, v.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vehicle deleted"})
}

func (v *VehicleController) Assign(c *gin.Context) {
	var body struct {
		VehicleID  uint `json:"vehicle_id" binding:"required"`
		ShipmentID uint `json:"shipment_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := v.fleet.Assign(c.Request.Context(), body.VehicleID, body.ShipmentID)
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vehicle assigned", "data": res})
}

func (v *VehicleController) Unassign(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	vehicle, err := v.fleet.Unassign(c.Request.Context(), id)
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vehicle unassigned", "data": vehicle})
}

func (v *VehicleController) UpdateLocation(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	var body struct {
		Lat      *float64 `json:"lat"`
		Lng      *float64 `json:"lng"`
		Location string   `json:"location"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	vehicle, err := v.fleet.UpdateVehicleLocation(c.Request.Context(), caller(c), id, body.Lat, body.Lng, body.Location)
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location updated successfully", "data": vehicle})
}

func (v *VehicleController) Active(c *gin.Context) {
	rows, err := v.fleet.ActiveFleet(c.Request.Context(), caller(c))
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	if rows == nil {
		rows = []fleet.ActiveVehicle{}
	}
	list(c, rows, len(rows))
}

func (v *VehicleController) Stats(c *gin.Context) {
	stats, err := v.fleet.VehicleStats(c.Request.Context())
	if err != nil {
		respondError(c, v.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}
