package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kompetisi/internal/access"
	"kompetisi/internal/apperr"
	"kompetisi/internal/auth"
	"kompetisi/internal/cloudinary"
	"kompetisi/internal/competition"
	"kompetisi/internal/logger"
	"kompetisi/internal/metrics"
	"kompetisi/internal/queue"
	"kompetisi/internal/registration"
)

// Uploader stores KTM scans and returns their public URL.
type Uploader interface {
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
	UploadBase64(ctx context.Context, data string) (*cloudinary.UploadResult, error)
}

// Deps are the collaborators of the HTTP layer. Queue and Uploader may be nil.
type Deps struct {
	Registrations *registration.Service
	Competitions  *competition.Service
	Queue         queue.Queue
	Uploader      Uploader
	Log           *logger.Logger
}

type Handler struct {
	regs  *registration.Service
	comps *competition.Service
	queue queue.Queue
	cdn   Uploader
	log   *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.New(nil, logger.Options{})
	}
	return &Handler{
		regs:  d.Registrations,
		comps: d.Competitions,
		queue: d.Queue,
		cdn:   d.Uploader,
		log:   log,
	}
}

// Routes mounts the API under /v1.
func (h *Handler) Routes(r gin.IRouter, signingKey, issuer string) {
	optional := auth.Optional(signingKey, issuer)
	required := auth.Required(signingKey, issuer)

	v1 := r.Group("/v1")

	v1.POST("/registrations", optional, h.SubmitRegistration)
	v1.GET("/registrations", optional, h.ListRegistrations)
	v1.GET("/registrations/:id", required, auth.RequireCapability(access.CapReview), h.GetRegistration)
	v1.PUT("/registrations/:id/approve", required, auth.RequireCapability(access.CapReview), h.ApproveRegistration)
	v1.PUT("/registrations/:id/reject", required, auth.RequireCapability(access.CapReview), h.RejectRegistration)

	v1.GET("/competitions", optional, h.ListCompetitions)
	v1.GET("/competitions/:id", optional, h.GetCompetition)
	v1.POST("/competitions", required, auth.RequireCapability(access.CapManageCompetition), h.CreateCompetition)
	v1.PUT("/competitions/:id/status", required, auth.RequireCapability(access.CapManageCompetition), h.UpdateCompetitionStatus)

	v1.POST("/uploads/ktm", optional, h.UploadKTM)
}

// ---------- Errors ----------

// writeError maps an error to its status code and a {error, code} body.
// Unshaped errors never reach the client; their cause is logged instead.
func (h *Handler) writeError(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		err = apperr.Persistence(err)
		errors.As(err, &ae)
	}
	if ae.Kind == apperr.KindPersistence {
		h.log.Error("request failed", ae.Err, map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"request_id": c.GetString("request_id"),
		})
	}
	body := gin.H{"error": ae.Error(), "code": ae.Kind}
	if len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(ae.Kind), body)
}

func badRequest(msg string) error {
	return apperr.Validation(msg)
}

// ---------- Registrations ----------

// SubmitRegistration accepts JSON or a multipart form. A multipart "ktm" file
// is uploaded once the submission has passed every other check, and its URL
// is used as ktm_url.
func (h *Handler) SubmitRegistration(c *gin.Context) {
	var in registration.SubmitInput
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&in); err != nil {
			h.writeError(c, badRequest("form pendaftaran tidak valid"))
			return
		}
		if _, hdr, err := c.Request.FormFile("ktm"); err == nil {
			if err := h.regs.Precheck(c.Request.Context(), in); err != nil {
				metrics.Submissions.WithLabelValues(metrics.Outcome(err)).Inc()
				h.writeError(c, err)
				return
			}
			res, err := h.uploadFormFile(c, hdr.Filename, "ktm")
			if err != nil {
				h.writeUploadError(c, err)
				return
			}
			in.KTMURL = res.SecureURL
		}
	} else if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, badRequest("format JSON tidak valid"))
		return
	}

	reg, err := h.regs.Submit(c.Request.Context(), in)
	metrics.Submissions.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publish(c.Request.Context(), queue.TypeRegistrationSubmitted, reg)
	c.JSON(http.StatusCreated, reg)
}

func (h *Handler) ListRegistrations(c *gin.Context) {
	f := registration.Filter{
		CompetitionID: c.Query("competition_id"),
		Status:        registration.Status(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Limit:         queryInt(c, "limit", 0),
		Offset:        queryInt(c, "offset", 0),
	}
	regs, err := h.regs.List(c.Request.Context(), auth.PrincipalFrom(c), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

func (h *Handler) GetRegistration(c *gin.Context) {
	reg, err := h.regs.Get(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (h *Handler) ApproveRegistration(c *gin.Context) {
	reg, err := h.regs.Approve(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	metrics.Reviews.WithLabelValues("approve", metrics.Outcome(err)).Inc()
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publish(c.Request.Context(), queue.TypeRegistrationApproved, reg)
	c.JSON(http.StatusOK, reg)
}

// RejectRegistration takes an optional {"rejection_reason": "..."} body.
func (h *Handler) RejectRegistration(c *gin.Context) {
	var body struct {
		RejectionReason *string `json:"rejection_reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(c, badRequest("format JSON tidak valid"))
		return
	}
	reg, err := h.regs.Reject(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), body.RejectionReason)
	metrics.Reviews.WithLabelValues("reject", metrics.Outcome(err)).Inc()
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publish(c.Request.Context(), queue.TypeRegistrationRejected, reg)
	c.JSON(http.StatusOK, reg)
}

// publish is best effort: a queue outage must not fail a committed write.
func (h *Handler) publish(ctx context.Context, typ string, reg registration.Registration) {
	if h.queue == nil {
		return
	}
	ev := queue.RegistrationEvent{
		RegistrationID: reg.ID,
		CompetitionID:  reg.CompetitionID,
		StudentName:    reg.StudentName,
		NIM:            reg.NIM,
		Email:          reg.Email,
		Status:         string(reg.Status),
		At:             time.Now().UTC(),
	}
	if reg.RejectionReason != nil {
		ev.Reason = *reg.RejectionReason
	}
	if comp, err := h.comps.Get(ctx, reg.CompetitionID); err == nil {
		ev.CompetitionTitle = comp.Title
	}
	if err := queue.PublishEvent(ctx, h.queue, typ, ev); err != nil {
		h.log.Warn("queue publish failed", err, map[string]interface{}{"type": typ, "registration_id": reg.ID})
	}
}

// ---------- Competitions ----------

func (h *Handler) ListCompetitions(c *gin.Context) {
	var f competition.Filter
	if v := c.Query("status"); v != "" {
		st, ok := competition.ParseStatus(v)
		if !ok {
			h.writeError(c, badRequest("status lomba tidak dikenal"))
			return
		}
		f.Status = st
	}
	f.CreatedBy = c.Query("created_by")
	comps, err := h.comps.List(c.Request.Context(), auth.PrincipalFrom(c), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competitions": comps})
}

func (h *Handler) GetCompetition(c *gin.Context) {
	comp, err := h.comps.View(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"competition":           comp,
		"open_for_registration": comp.OpenForRegistration(time.Now()),
		"remaining_slots":       comp.Remaining(),
	})
}

func (h *Handler) CreateCompetition(c *gin.Context) {
	var in competition.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.writeError(c, badRequest("format JSON tidak valid"))
		return
	}
	comp, err := h.comps.Create(c.Request.Context(), auth.PrincipalFrom(c), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comp)
}

func (h *Handler) UpdateCompetitionStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, badRequest("format JSON tidak valid"))
		return
	}
	comp, err := h.comps.UpdateStatus(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), body.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

// ---------- Uploads ----------

var errStorageDisabled = errors.New("penyimpanan file belum dikonfigurasi")

// UploadKTM stores a KTM scan and returns its URL for use as ktm_url. The scan
// comes either as multipart field "file" or as JSON {"data": "<data URL>"}.
func (h *Handler) UploadKTM(c *gin.Context) {
	if c.ContentType() == gin.MIMEJSON {
		h.uploadDataURL(c)
		return
	}
	_, hdr, err := c.Request.FormFile("file")
	if err != nil {
		h.writeError(c, badRequest("field file wajib diisi"))
		return
	}
	res, err := h.uploadFormFile(c, hdr.Filename, "file")
	if err != nil {
		h.writeUploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": res.SecureURL, "public_id": res.PublicID})
}

func (h *Handler) uploadFormFile(c *gin.Context, filename, field string) (*cloudinary.UploadResult, error) {
	if h.cdn == nil {
		return nil, errStorageDisabled
	}
	file, _, err := c.Request.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, cloudinary.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if _, err := cloudinary.CheckFile(data); err != nil {
		return nil, apperr.Validation(err.Error(), apperr.FieldError{Field: field, Error: err.Error()})
	}
	return h.cdn.UploadBytes(c.Request.Context(), data, filename)
}

func (h *Handler) uploadDataURL(c *gin.Context) {
	if h.cdn == nil {
		h.writeUploadError(c, errStorageDisabled)
		return
	}
	var body struct {
		Data string `json:"data"`
	}
	// base64 grows the payload by a third
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*cloudinary.MaxFileSize)
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, badRequest("format JSON tidak valid"))
		return
	}
	data, err := cloudinary.DecodeDataURL(body.Data)
	if err == nil {
		_, err = cloudinary.CheckFile(data)
	}
	if err != nil {
		h.writeError(c, apperr.Validation(err.Error(), apperr.FieldError{Field: "data", Error: err.Error()}))
		return
	}
	res, err := h.cdn.UploadBase64(c.Request.Context(), body.Data)
	if err != nil {
		h.writeUploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": res.SecureURL, "public_id": res.PublicID})
}

func (h *Handler) writeUploadError(c *gin.Context, err error) {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		h.writeError(c, err)
	case errors.Is(err, errStorageDisabled):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.log.Error("ktm upload failed", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "upload file gagal"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
