package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/services"
)

// ReportHandler serves the read-only views derived from the user's tasks.
type ReportHandler struct {
	reportService       *services.ReportService
	notificationService *services.NotificationService
	calendarService     *services.CalendarService
	logger              logging.Logger
}

func NewReportHandler(
	reportService *services.ReportService,
	notificationService *services.NotificationService,
	calendarService *services.CalendarService,
	logger logging.Logger,
) *ReportHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ReportHandler{
		reportService:       reportService,
		notificationService: notificationService,
		calendarService:     calendarService,
		logger:              logger,
	}
}

// Summary returns task statistics
func (h *ReportHandler) Summary(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	summary, err := h.reportService.Summary(c.Request.Context(), sess)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Notifications lists overdue and due-today tasks
func (h *ReportHandler) Notifications(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	notifications, err := h.notificationService.List(c.Request.Context(), sess)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// CalendarLink returns the subscription URL of the user's calendar feed
func (h *ReportHandler) CalendarLink(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	url, err := h.calendarService.Link(sess)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// CalendarFeed serves the iCalendar feed. The token in the path is the only
// credential; no session is needed.
func (h *ReportHandler) CalendarFeed(c *gin.Context) {
	body, err := h.calendarService.Feed(c.Request.Context(), c.Param("token"))
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "text/calendar; charset=utf-8", body)
}
