package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/fleet"
)

// ProofController records proof of delivery. The driver submits the photo
// proof first, then the customer signs.
type ProofController struct {
	fleet *fleet.Manager
	log   *logrus.Logger
}

func NewProofController(m *fleet.Manager, log *logrus.Logger) *ProofController {
	return &ProofController{fleet: m, log: log}
}

func (p *ProofController) SubmitPOD(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, p.log, err)
		return
	}
	var body struct {
		ReceiverName string `json:"receiver_name" binding:"required"`
		Image        string `json:"image"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	sh, err := p.fleet.SubmitPOD(c.Request.Context(), caller(c), id, body.ReceiverName, body.Image)
	if err != nil {
		respondError(c, p.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Proof of delivery submitted", "data": sh})
}

func (p *ProofController) SubmitEPOD(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, p.log, err)
		return
	}
	var body struct {
		SignedBy  string `json:"signed_by"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	sh, err := p.fleet.SubmitEPOD(c.Request.Context(), caller(c), id, body.SignedBy, body.Signature, c.ClientIP())
	if err != nil {
		respondError(c, p.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Delivery signed", "data": sh})
}
