package engine

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/goPageTurn/database"
	"github.com/drummonds/goPageTurn/engine/pagecache"
	"github.com/drummonds/goPageTurn/engine/pdfrenderer"
	"github.com/drummonds/goPageTurn/engine/present"
	"github.com/drummonds/goPageTurn/engine/turn"
)

type openSessionRequest struct {
	Path           string `json:"path"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
}

type sessionResponse struct {
	ID          string           `json:"id"`
	Path        string           `json:"path"`
	PageCount   int              `json:"pageCount"`
	CurrentPage int              `json:"currentPage"`
	Turning     bool             `json:"turning"`
	Plan        present.DrawPlan `json:"plan"`
}

type turnRequest struct {
	Direction string `json:"direction"`
}

type turnResponse struct {
	Accepted    bool   `json:"accepted"`
	Direction   string `json:"direction"`
	CurrentPage int    `json:"currentPage"`
	Turning     bool   `json:"turning"`
}

type pageStateResponse struct {
	PageIndex int    `json:"pageIndex"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
}

// RegisterRoutes attaches all of the viewer API routes
func (serverHandler *ServerHandler) RegisterRoutes() {
	api := serverHandler.Echo.Group("/api")
	api.GET("/health", serverHandler.Health)
	api.GET("/recents", serverHandler.ListRecents)
	api.POST("/session", serverHandler.OpenSession)
	api.GET("/session/:id", serverHandler.GetSession)
	api.DELETE("/session/:id", serverHandler.CloseSession)
	api.POST("/session/:id/turn", serverHandler.TurnPage)
	api.GET("/session/:id/plan", serverHandler.GetDrawPlan)
	api.GET("/session/:id/frame", serverHandler.GetFrame)
	api.GET("/session/:id/page/:page", serverHandler.GetPage)
	api.POST("/session/:id/page/:page/retry", serverHandler.RetryPage)
}

// Health reports server liveness
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (serverHandler *ServerHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": serverHandler.Sessions.Len(),
	})
}

// OpenSession opens a document and starts a viewer session on page 0
// @Summary Open a viewer session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body openSessionRequest true "Document path (relative to the document root) and viewport"
// @Success 201 {object} sessionResponse
// @Failure 400 {object} map[string]interface{} "Bad request"
// @Failure 422 {object} map[string]interface{} "Document failed to open"
// @Router /session [post]
func (serverHandler *ServerHandler) OpenSession(c echo.Context) error {
	var request openSessionRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}
	if request.Path == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "path is required"})
	}
	if serverHandler.Sessions.Len() >= serverHandler.ServerConfig.MaxSessions {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"error": "session limit reached"})
	}

	documentPath, ok := serverHandler.resolveDocumentPath(request.Path)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "path escapes the document root"})
	}

	// Document open failure is fatal to the would-be session (unlike a page
	// render failure, which only yields a placeholder).
	doc, err := serverHandler.Opener.Open(documentPath)
	if err != nil {
		Logger.Error("Failed to open document", "path", documentPath, "error", err)
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error()})
	}

	viewport := present.Size{Width: request.ViewportWidth, Height: request.ViewportHeight}
	if viewport.Width <= 0 || viewport.Height <= 0 {
		viewport = present.Size{Width: 800, Height: 600}
	}

	viewer := NewViewer(doc, serverHandler.ServerConfig.RenderScale,
		serverHandler.ServerConfig.TurnDuration(), viewport)

	// Render the initial page before the session is visible, then warm the
	// neighbors in the background.
	if err := viewer.Show(c.Request().Context(), 0); err != nil {
		viewer.Close()
		Logger.Error("Failed to show initial page", "path", documentPath, "error", err)
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"error": err.Error()})
	}
	if radius := serverHandler.ServerConfig.PrefetchRadius; radius > 0 {
		go func() {
			if err := viewer.Warm(context.Background(), radius); err != nil {
				Logger.Debug("Neighbor warmup interrupted", "error", err)
			}
		}()
	}

	clockCtx, cancel := context.WithCancel(context.Background())
	go viewer.Run(clockCtx, serverHandler.ServerConfig.FrameInterval())

	session := &Session{
		ID:       ulid.Make(),
		Path:     documentPath,
		Viewer:   viewer,
		OpenedAt: time.Now(),
		cancel:   cancel,
	}
	serverHandler.Sessions.Add(session)
	Logger.Info("Session opened", "session", session.ID.String(),
		"path", documentPath, "pageCount", viewer.PageCount())

	serverHandler.saveRecent(session)

	return c.JSON(http.StatusCreated, serverHandler.sessionJSON(session))
}

// GetSession returns the state and current draw plan of a session
// @Summary Get session state
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ULID"
// @Success 200 {object} sessionResponse
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /session/{id} [get]
func (serverHandler *ServerHandler) GetSession(c echo.Context) error {
	session, ok := serverHandler.Sessions.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, serverHandler.sessionJSON(session))
}

// CloseSession tears a session down and records the last page viewed
// @Summary Close a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ULID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /session/{id} [delete]
func (serverHandler *ServerHandler) CloseSession(c echo.Context) error {
	id := c.Param("id")
	session, ok := serverHandler.Sessions.Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "session not found"})
	}

	if serverHandler.DB != nil {
		if err := serverHandler.DB.UpdateLastPage(session.ID.String(), session.Viewer.CurrentPage()); err != nil {
			Logger.Warn("Failed to record last page", "session", id, "error", err)
		}
	}
	serverHandler.Sessions.Remove(id)
	Logger.Info("Session closed", "session", id)
	return c.JSON(http.StatusOK, map[string]interface{}{"closed": id})
}

// TurnPage requests a page-turn animation
// @Summary Request a page turn
// @Description Starts the turn animation if no turn is active and the target page is in range. Rejections are no-ops.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ULID"
// @Param request body turnRequest true "Turn direction: forward or backward"
// @Success 200 {object} turnResponse
// @Failure 400 {object} map[string]interface{} "Unknown direction"
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /session/{id}/turn [post]
func (serverHandler *ServerHandler) TurnPage(c echo.Context) error {
	session, ok := serverHandler.Sessions.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "session not found"})
	}

	var request turnRequest
	if err := c.Bind(&request); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}

	var direction turn.Direction
	switch strings.ToLower(request.Direction) {
	case "forward":
		direction = turn.Forward
	case "backward":
		direction = turn.Backward
	default:
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "direction must be forward or backward"})
	}

	accepted := session.Viewer.RequestTurn(direction)
	return c.JSON(http.StatusOK, turnResponse{
		Accepted:    accepted,
		Direction:   direction.String(),
		CurrentPage: session.Viewer.CurrentPage(),
		Turning:     session.Viewer.Turning(),
	})
}

// GetDrawPlan returns the current drawable description
// @Summary Get the current draw plan
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ULID"
// @Success 200 {object} present.DrawPlan
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /session/{id}/plan [get]
func (serverHandler *ServerHandler) GetDrawPlan(c echo.Context) error {
	session, ok := serverHandler.Sessions.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, session.Viewer.Plan())
}

// GetFrame returns a software-composited PNG of the current draw plan
// @Summary Get a composited preview frame
// @Tags Sessions
// @Produce png
// @Param id path string true "Session ULID"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /session/{id}/frame [get]
func (serverHandler *ServerHandler) GetFrame(c echo.Context) error {
	session, ok := serverHandler.Sessions.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "session not found"})
	}
	frame := present.Composite(session.Viewer.Plan(), session.Viewer.Snapshot())

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, frame); err != nil {
		Logger.Error("Failed to encode frame", "session", session.ID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "frame encoding failed"})
	}
	return c.Blob(http.StatusOK, "image/png", buffer.Bytes())
}

// GetPage returns the rendered bitmap of one page, rendering on demand
// @Summary Get a rendered page
// @Tags Pages
// @Produce png
// @Param id path string true "Session ULID"
// @Param page path int true "Page index"
// @Success 200 {file} binary
// @Success 202 {object} pageStateResponse "Render in flight, poll again"
// @Failure 400 {object} map[string]interface{} "Page out of range"
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Failure 502 {object} pageStateResponse "Page failed to rasterize"
// @Router /session/{id}/page/{page} [get]
func (serverHandler *ServerHandler) GetPage(c echo.Context) error {
	session, ok := serverHandler.Sessions.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "session not found"})
	}
	pageIndex, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "page must be an integer"})
	}

	// An in-flight render answers immediately instead of joining it; the
	// client polls until the entry is terminal.
	if state := session.Viewer.PageState(pageIndex); state.State == pagecache.StatePending {
		return c.JSON(http.StatusAccepted, pageStateResponse{
			PageIndex: pageIndex,
			State:     state.State.String(),
		})
	}

	rendered, err := session.Viewer.Page(c.Request().Context(), pageIndex)
	if err != nil {
		if errors.Is(err, pdfrenderer.ErrPageOutOfRange) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		}
		return c.JSON(http.StatusBadGateway, pageStateResponse{
			PageIndex: pageIndex,
			State:     session.Viewer.PageState(pageIndex).State.String(),
			Error:     err.Error(),
		})
	}

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, rendered.Image); err != nil {
		Logger.Error("Failed to encode page", "pageIndex", pageIndex, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "page encoding failed"})
	}
	return c.Blob(http.StatusOK, "image/png", buffer.Bytes())
}

// RetryPage re-attempts a failed page render
// @Summary Retry a failed page
// @Tags Pages
// @Produce json
// @Param id path string true "Session ULID"
// @Param page path int true "Page index"
// @Success 200 {object} pageStateResponse
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Failure 502 {object} pageStateResponse "Retry failed again"
// @Router /session/{id}/page/{page}/retry [post]
func (serverHandler *ServerHandler) RetryPage(c echo.Context) error {
	session, ok := serverHandler.Sessions.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": "session not found"})
	}
	pageIndex, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "page must be an integer"})
	}

	if _, err := session.Viewer.RetryPage(c.Request().Context(), pageIndex); err != nil {
		return c.JSON(http.StatusBadGateway, pageStateResponse{
			PageIndex: pageIndex,
			State:     session.Viewer.PageState(pageIndex).State.String(),
			Error:     err.Error(),
		})
	}
	return c.JSON(http.StatusOK, pageStateResponse{
		PageIndex: pageIndex,
		State:     session.Viewer.PageState(pageIndex).State.String(),
	})
}

// ListRecents returns the most recently opened documents
// @Summary List recent documents
// @Tags Recents
// @Produce json
// @Param limit query int false "Maximum rows (default 10)"
// @Success 200 {array} database.RecentDocument
// @Router /recents [get]
func (serverHandler *ServerHandler) ListRecents(c echo.Context) error {
	if serverHandler.DB == nil {
		return c.JSON(http.StatusOK, []database.RecentDocument{})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recents, err := serverHandler.DB.ListRecents(limit)
	if err != nil {
		Logger.Error("Failed to list recent documents", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "unable to list recents"})
	}
	if recents == nil {
		recents = []database.RecentDocument{}
	}
	return c.JSON(http.StatusOK, recents)
}

// resolveDocumentPath joins a request path with the document root and
// rejects traversal outside it.
func (serverHandler *ServerHandler) resolveDocumentPath(requestPath string) (string, bool) {
	root := serverHandler.ServerConfig.DocumentPath
	if root == "" {
		// No configured root: trust the caller's path (library/test use).
		return filepath.Clean(requestPath), true
	}
	joined := filepath.Clean(filepath.Join(root, requestPath))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}

// saveRecent records the opened document, best effort.
func (serverHandler *ServerHandler) saveRecent(session *Session) {
	if serverHandler.DB == nil {
		return
	}
	recent := &database.RecentDocument{
		ULID:      session.ID.String(),
		Path:      session.Path,
		Name:      filepath.Base(session.Path),
		PageCount: session.Viewer.PageCount(),
		LastPage:  session.Viewer.CurrentPage(),
		OpenedAt:  session.OpenedAt,
	}
	if err := serverHandler.DB.SaveRecent(recent); err != nil {
		Logger.Warn("Failed to save recent document", "path", session.Path, "error", err)
	}
}

func (serverHandler *ServerHandler) sessionJSON(session *Session) sessionResponse {
	return sessionResponse{
		ID:          session.ID.String(),
		Path:        session.Path,
		PageCount:   session.Viewer.PageCount(),
		CurrentPage: session.Viewer.CurrentPage(),
		Turning:     session.Viewer.Turning(),
		Plan:        session.Viewer.Plan(),
	}
}
