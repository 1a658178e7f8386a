package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/craniometry-server/internal/domain"
	"github.com/craniometry-server/internal/middleware"
	"github.com/craniometry-server/internal/service"
)

const defaultPageSize = 50

type patientRequest struct {
	Name      string      `json:"name" binding:"required"`
	BirthDate domain.Date `json:"birth_date" binding:"required"`
	Notes     string      `json:"notes"`
	// OwnerID is honored for admins only; everyone else owns what they create.
	OwnerID string `json:"owner_id"`
}

func (s *Server) handleCreatePatient(c *gin.Context) {
	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	patient := &domain.Patient{
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		BirthDate: req.BirthDate,
		Notes:     req.Notes,
	}

	if err := s.patients.Create(c.Request.Context(), middleware.PrincipalFrom(c), patient); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, patient)
}

func (s *Server) handleListPatients(c *gin.Context) {
	limit, offset := pagination(c)

	patients, err := s.patients.List(c.Request.Context(), middleware.PrincipalFrom(c), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if patients == nil {
		patients = []*domain.Patient{}
	}
	c.JSON(http.StatusOK, gin.H{"patients": patients})
}

func (s *Server) handleGetPatient(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	patient, err := s.patients.GetByID(c.Request.Context(), middleware.PrincipalFrom(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (s *Server) handleUpdatePatient(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req patientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	principal := middleware.PrincipalFrom(c)
	patient, err := s.patients.GetByID(c.Request.Context(), principal, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	patient.Name = req.Name
	patient.BirthDate = req.BirthDate
	patient.Notes = req.Notes

	if err := s.patients.Update(c.Request.Context(), principal, patient); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (s *Server) handleDeletePatient(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.patients.Delete(c.Request.Context(), middleware.PrincipalFrom(c), id); err != nil {
		s.respondError(c, err)
		return
	}

	s.evolution.Invalidate(c.Request.Context(), id)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCreateMeasurement(c *gin.Context) {
	patientID, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var form service.MeasurementForm
	if err := c.ShouldBindJSON(&form); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	m, err := service.ParseMeasurementForm(patientID, &form)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.measurements.Create(c.Request.Context(), middleware.PrincipalFrom(c), m); err != nil {
		s.respondError(c, err)
		return
	}

	s.evolution.Invalidate(c.Request.Context(), patientID)
	c.JSON(http.StatusCreated, service.AssembleSeries([]*domain.RawMeasurement{m})[0])
}

// handleListMeasurements returns the historical table: date-ordered,
// classified, with the carry-forward decoration applied.
func (s *Server) handleListMeasurements(c *gin.Context) {
	patientID, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	table, err := s.evolution.Table(c.Request.Context(), middleware.PrincipalFrom(c), patientID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if table == nil {
		table = []*domain.ClassifiedMeasurement{}
	}
	c.JSON(http.StatusOK, gin.H{"measurements": table})
}

func (s *Server) handleEvolution(c *gin.Context) {
	patientID, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	series, err := s.evolution.Series(c.Request.Context(), middleware.PrincipalFrom(c), patientID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) handlePatchMeasurement(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var patch domain.MeasurementPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.respondError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	updated, err := s.measurements.Patch(c.Request.Context(), middleware.PrincipalFrom(c), id, &patch)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.evolution.Invalidate(c.Request.Context(), updated.PatientID)
	c.JSON(http.StatusOK, service.AssembleSeries([]*domain.RawMeasurement{updated})[0])
}

func (s *Server) handleDeleteMeasurement(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	principal := middleware.PrincipalFrom(c)
	m, err := s.measurements.GetByID(c.Request.Context(), principal, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.measurements.Delete(c.Request.Context(), principal, id); err != nil {
		s.respondError(c, err)
		return
	}

	s.evolution.Invalidate(c.Request.Context(), m.PatientID)
	c.Status(http.StatusNoContent)
}

func (s *Server) respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":          "not found",
			"correlation_id": c.GetString("correlation_id"),
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          validationErr.Error(),
			"field":          validationErr.Field,
			"correlation_id": c.GetString("correlation_id"),
		})
	default:
		s.log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":          "internal error",
			"correlation_id": c.GetString("correlation_id"),
		})
	}
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "must be a positive integer", c.Param("id"))
	}
	return id, nil
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
