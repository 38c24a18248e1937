package httpapi

import (
	"errors"
	"net/http"
	"time"

	"academy-caller/internal/calls"
	"academy-caller/internal/callstate"
	"academy-caller/internal/messaging"
	"academy-caller/internal/students"
	"academy-caller/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Calls    *calls.Service
	Messages *messaging.Service
	Students *students.Service
	Video    *telephony.VideoTokenService
}

// writeError maps service errors onto HTTP statuses. Provider failures are
// 502: the upstream is at fault and the operator may simply retry.
func writeError(c *gin.Context, err error) {
	var pe *telephony.ProviderError
	switch {
	case errors.As(err, &pe):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": pe.Message, "provider_code": pe.Code})
	case errors.Is(err, callstate.ErrNotFound),
		errors.Is(err, students.ErrNotFound),
		errors.Is(err, messaging.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, students.ErrDuplicatePhone):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrInvalidRequest),
		errors.Is(err, messaging.ErrInvalidRequest),
		errors.Is(err, students.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, telephony.ErrNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "feature not configured"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Calls ---

type placeCallRequest struct {
	To          string `json:"to" binding:"required,e164"`
	DisplayName string `json:"display_name"`
}

func (h Handlers) PlaceCall(c *gin.Context) {
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be an E.164 phone number"})
		return
	}
	rec, err := h.Calls.PlaceCall(c.Request.Context(), req.To, req.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h Handlers) ListActiveCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": h.Calls.ListActive()})
}

func (h Handlers) GetCall(c *gin.Context) {
	rec, err := h.Calls.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) HangupCall(c *gin.Context) {
	rec, err := h.Calls.Hangup(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) ListCallRecordings(c *gin.Context) {
	recs, err := h.Calls.ListRecordings(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}

func (h Handlers) CallsSummary(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		to = t
	}
	sum, err := h.Calls.Summarize(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- Messages ---

type sendMessageRequest struct {
	To   string `json:"to" binding:"required,e164"`
	Body string `json:"body" binding:"required,max=1600"`
}

func (h Handlers) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to (E.164) and body are required"})
		return
	}
	m, err := h.Messages.Send(c.Request.Context(), req.To, req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h Handlers) ListConversations(c *gin.Context) {
	convs, err := h.Messages.Conversations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h Handlers) ConversationHistory(c *gin.Context) {
	msgs, err := h.Messages.History(c.Request.Context(), c.Param("counterparty"), 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// --- Students ---

type studentRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required,e164"`
	Notes string `json:"notes"`
}

func (h Handlers) CreateStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "name and phone (E.164) are required"})
		return
	}
	st, err := h.Students.Create(c.Request.Context(), req.Name, req.Phone, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h Handlers) ListStudents(c *gin.Context) {
	list, err := h.Students.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list})
}

func (h Handlers) GetStudent(c *gin.Context) {
	st, err := h.Students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type updateStudentRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone" binding:"omitempty,e164"`
	Notes string `json:"notes"`
}

func (h Handlers) UpdateStudent(c *gin.Context) {
	var req updateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone must be E.164 when set"})
		return
	}
	st, err := h.Students.Update(c.Request.Context(), c.Param("id"), req.Name, req.Phone, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) DeleteStudent(c *gin.Context) {
	if err := h.Students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Video ---

type videoTokenRequest struct {
	Identity string `json:"identity" binding:"required"`
	Room     string `json:"room" binding:"required"`
}

func (h Handlers) IssueVideoToken(c *gin.Context) {
	var req videoTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "identity and room are required"})
		return
	}
	token, err := h.Video.IssueToken(time.Now(), req.Identity, req.Room)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "room": req.Room})
}
