package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"careportal/internal/services"
	"careportal/internal/transport/httpdto"
)

type CareHandler struct {
	care     *services.CareService
	messages *services.MessageService
}

func NewCareHandler(care *services.CareService, messages *services.MessageService) *CareHandler {
	return &CareHandler{care: care, messages: messages}
}

// AssignDoctor links a patient to a doctor. Admin only.
func (h *CareHandler) AssignDoctor(c *gin.Context) {
	var req httpdto.AssignDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	patientID, err := parseUUID(req.PatientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid patient_id", "INVALID_REQUEST"))
		return
	}
	doctorID, err := parseUUID(req.DoctorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid doctor_id", "INVALID_REQUEST"))
		return
	}

	a, err := h.care.AssignDoctor(c.Request.Context(), patientID, doctorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(a))
}

// MyDoctor answers "who treats me". A patient without one gets NOT_ASSIGNED,
// which the UI turns into the assign-a-doctor flow rather than an error page.
func (h *CareHandler) MyDoctor(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	doctor, err := h.care.DoctorOf(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(doctor))
}

// MyPatients lists a doctor's assigned patients.
func (h *CareHandler) MyPatients(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	patients, err := h.care.PatientsOf(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"patients": patients}))
}

// ConversationCounts reports message totals per conversation. Admin only.
func (h *CareHandler) ConversationCounts(c *gin.Context) {
	counts, err := h.messages.ConversationCounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"conversations": counts}))
}
