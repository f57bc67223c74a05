package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/models"
	"fleet_tracker/internal/requests"
)

type RequestController struct {
	requests *requests.Service
	log      *logrus.Logger
}

func NewRequestController(svc *requests.Service, log *logrus.Logger) *RequestController {
	return &RequestController{requests: svc, log: log}
}

func (r *RequestController) CreateRequest(c *gin.Context) {
	var input requests.Input
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	req, err := r.requests.Create(c.Request.Context(), caller(c), input)
	if err != nil {
		respondError(c, r.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Delivery request submitted", "data": req})
}

func (r *RequestController) ListRequests(c *gin.Context) {
	var statuses []models.RequestStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, models.RequestStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	reqs, err := r.requests.List(c.Request.Context(), caller(c), statuses...)
	if err != nil {
		respondError(c, r.log, err)
		return
	}
	if reqs == nil {
		reqs = []models.DeliveryRequest{}
	}
	list(c, reqs, len(reqs))
}

func (r *RequestController) GetRequest(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, r.log, err)
		return
	}
	req, err := r.requests.Get(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, r.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": req})
}

func (r *RequestController) ApproveRequest(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, r.log, err)
		return
	}
	req, err := r.requests.Approve(c.Request.Context(), caller(c), id)
	if err != nil {
		respondError(c, r.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Request approved", "data": req})
}

// RejectRequest takes an optional {"reason": "..."} body.
func (r *RequestController) RejectRequest(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, r.log, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}
	req, err := r.requests.Reject(c.Request.Context(), caller(c), id, body.Reason)
	if err != nil {
		respondError(c, r.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Request rejected", "data": req})
}
