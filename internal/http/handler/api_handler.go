package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meetingintel/server/internal/domain"
	"github.com/meetingintel/server/internal/http/middleware"
	"github.com/meetingintel/server/internal/tools"
	"github.com/meetingintel/server/internal/workspace"
)

// APIHandler exposes meetings, actions and decisions over REST. Every route
// runs behind the auth and workspace middleware.
type APIHandler struct {
	Tools *tools.Service
}

// NewAPIHandler creates the REST handler set.
func NewAPIHandler(service *tools.Service) *APIHandler {
	return &APIHandler{Tools: service}
}

// ListWorkspaces returns the caller's memberships and the active selection.
func (h *APIHandler) ListWorkspaces(c *gin.Context) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return
	}

	type workspaceView struct {
		ID       int64  `json:"id"`
		Slug     string `json:"slug"`
		Name     string `json:"name"`
		Role     string `json:"role"`
		Default  bool   `json:"default"`
		Archived bool   `json:"archived"`
		Active   bool   `json:"active"`
	}
	views := make([]workspaceView, 0, len(wctx.Memberships))
	for _, m := range wctx.Memberships {
		views = append(views, workspaceView{
			ID:       m.WorkspaceID,
			Slug:     m.Slug,
			Name:     m.Name,
			Role:     string(m.Role),
			Default:  m.IsDefault,
			Archived: m.IsArchived,
			Active:   m.WorkspaceID == wctx.Active.WorkspaceID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"workspaces": views, "count": len(views)})
}

// ListMeetings handles GET /api/meetings.
func (h *APIHandler) ListMeetings(c *gin.Context) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return
	}
	meetings, err := h.Tools.ListMeetings(c.Request.Context(), wctx, tools.ListMeetingsInput{
		Limit:    queryInt(c, "limit"),
		DaysBack: queryInt(c, "days_back"),
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings, "count": len(meetings)})
}

// GetMeeting handles GET /api/meetings/:id with embedded decisions and actions.
func (h *APIHandler) GetMeeting(c *gin.Context) {
	wctx, id, ok := h.workspaceAndID(c)
	if !ok {
		return
	}
	detail, err := h.Tools.GetMeeting(c.Request.Context(), wctx, id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// SearchMeetings handles GET /api/meetings/search.
func (h *APIHandler) SearchMeetings(c *gin.Context) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return
	}
	meetings, err := h.Tools.SearchMeetings(c.Request.Context(), wctx, tools.SearchMeetingsInput{
		Query: c.Query("q"),
		Limit: queryInt(c, "limit"),
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings, "count": len(meetings)})
}

// CreateMeeting handles POST /api/meetings.
func (h *APIHandler) CreateMeeting(c *gin.Context) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return
	}
	var req struct {
		Title       string   `json:"title"`
		MeetingDate string   `json:"meeting_date"`
		Attendees   []string `json:"attendees"`
		Notes       string   `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, domain.ErrInvalidInput)
		return
	}
	meeting, err := h.Tools.CreateMeeting(c.Request.Context(), wctx, tools.CreateMeetingInput{
		Title:       req.Title,
		MeetingDate: req.MeetingDate,
		Attendees:   req.Attendees,
		Notes:       req.Notes,
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, meeting)
}

// UpdateMeeting handles PATCH /api/meetings/:id.
func (h *APIHandler) UpdateMeeting(c *gin.Context) {
	wctx, id, ok := h.workspaceAndID(c)
	if !ok {
		return
	}
	var req struct {
		Title       *string  `json:"title"`
		MeetingDate *string  `json:"meeting_date"`
		Attendees   []string `json:"attendees"`
		Notes       *string  `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, domain.ErrInvalidInput)
		return
	}
	meeting, err := h.Tools.UpdateMeeting(c.Request.Context(), wctx, id, tools.UpdateMeetingInput{
		Title:       req.Title,
		MeetingDate: req.MeetingDate,
		Attendees:   req.Attendees,
		Notes:       req.Notes,
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, meeting)
}

// DeleteMeeting handles DELETE /api/meetings/:id.
func (h *APIHandler) DeleteMeeting(c *gin.Context) {
	wctx, id, ok := h.workspaceAndID(c)
	if !ok {
		return
	}
	if err := h.Tools.DeleteMeeting(c.Request.Context(), wctx, id); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// ListActions handles GET /api/actions.
func (h *APIHandler) ListActions(c *gin.Context) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return
	}
	in := tools.ListActionsInput{
		Status: c.Query("status"),
		Owner:  c.Query("owner"),
		Limit:  queryInt(c, "limit"),
	}
	if raw := c.Query("meeting_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeAPIError(c, domain.ErrInvalidInput)
			return
		}
		in.MeetingID = &id
	}
	actions, err := h.Tools.ListActions(c.Request.Context(), wctx, in)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

// GetAction handles GET /api/actions/:id.
func (h *APIHandler) GetAction(c *gin.Context) {
	wctx, id, ok := h.workspaceAndID(c)
	if !ok {
		return
	}
	action, err := h.Tools.GetAction(c.Request.Context(), wctx, id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// CreateAction handles POST /api/actions.
func (h *APIHandler) CreateAction(c *gin.Context) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return
	}
	var req struct {
		Description string `json:"description"`
		Owner       string `json:"owner"`
		DueDate     string `json:"due_date"`
		MeetingID   *int64 `json:"meeting_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, domain.ErrInvalidInput)
		return
	}
	action, err := h.Tools.CreateAction(c.Request.Context(), wctx, tools.CreateActionInput{
		Description: req.Description,
		Owner:       req.Owner,
		DueDate:     req.DueDate,
		MeetingID:   req.MeetingID,
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, action)
}

// UpdateAction handles PATCH /api/actions/:id.
func (h *APIHandler) UpdateAction(c *gin.Context) {
	wctx, id, ok := h.workspaceAndID(c)
	if !ok {
		return
	}
	var req struct {
		Description *string `json:"description"`
		Owner       *string `json:"owner"`
		Status      *string `json:"status"`
		DueDate     *string `json:"due_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, domain.ErrInvalidInput)
		return
	}
	action, err := h.Tools.UpdateAction(c.Request.Context(), wctx, id, tools.UpdateActionInput{
		Description: req.Description,
		Owner:       req.Owner,
		Status:      req.Status,
		DueDate:     req.DueDate,
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// UpdateActionStatus handles PATCH /api/actions/:id/status.
func (h *APIHandler) UpdateActionStatus(c *gin.Context) {
	wctx, id, ok := h.workspaceAndID(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeAPIError(c, domain.ErrInvalidInput)
		return
	}
	action, err := h.Tools.UpdateAction(c.Request.Context(), wctx, id, tools.UpdateActionInput{Status: &req.Status})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// DeleteAction handles DELETE /api/actions/:id.
func (h *APIHandler) DeleteAction(c *gin.Context) {
	wctx, id, ok := h.workspaceAndID(c)
	if !ok {
		return
	}
	if err := h.Tools.DeleteAction(c.Request.Context(), wctx, id); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// ListDecisions handles GET /api/decisions.
func (h *APIHandler) ListDecisions(c *gin.Context) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return
	}
	in := tools.ListDecisionsInput{Limit: queryInt(c, "limit")}
	if raw := c.Query("meeting_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeAPIError(c, domain.ErrInvalidInput)
			return
		}
		in.MeetingID = &id
	}
	decisions, err := h.Tools.ListDecisions(c.Request.Context(), wctx, in)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions, "count": len(decisions)})
}

// CreateDecision handles POST /api/decisions.
func (h *APIHandler) CreateDecision(c *gin.Context) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return
	}
	var req struct {
		Description string `json:"description"`
		DecidedBy   string `json:"decided_by"`
		MeetingID   *int64 `json:"meeting_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, domain.ErrInvalidInput)
		return
	}
	decision, err := h.Tools.CreateDecision(c.Request.Context(), wctx, tools.CreateDecisionInput{
		Description: req.Description,
		DecidedBy:   req.DecidedBy,
		MeetingID:   req.MeetingID,
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, decision)
}

// DeleteDecision handles DELETE /api/decisions/:id.
func (h *APIHandler) DeleteDecision(c *gin.Context) {
	wctx, id, ok := h.workspaceAndID(c)
	if !ok {
		return
	}
	if err := h.Tools.DeleteDecision(c.Request.Context(), wctx, id); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *APIHandler) workspaceAndID(c *gin.Context) (*workspace.Context, int64, bool) {
	wctx, ok := middleware.GetWorkspace(c)
	if !ok {
		writeAPIError(c, domain.ErrForbidden)
		return nil, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeAPIError(c, domain.ErrInvalidInput)
		return nil, 0, false
	}
	return wctx, id, true
}

func queryInt(c *gin.Context, name string) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return value
}

func writeAPIError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "DATABASE_ERROR"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "UNAVAILABLE"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": true, "code": code, "message": err.Error()})
}
