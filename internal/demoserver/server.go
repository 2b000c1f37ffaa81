// Package demoserver implements the backend contract consumed by the gateway
// as an embedded echo server backed by SQLite. It exists so the client is
// fully usable offline and so integration tests have a real backend to talk
// to; the inference engine is simulated.
package demoserver

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/defectscan/defectscan-go/internal/conf"
	"github.com/defectscan/defectscan-go/internal/logging"
)

// Package-level logger specific to the demo server
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "demoserver.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "demoserver", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize demoserver file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "demoserver")
		closeLogger = func() error { return nil }
	}
}

// Server is the embedded demo backend.
type Server struct {
	Echo   *echo.Echo
	ds     *DataStore
	engine *Engine
	listen string
	// outputsDir is the static mount root; uploads live beneath it.
	outputsDir string
}

// New creates the demo server, opening its datastore and preparing the
// uploads directory.
func New(settings *conf.Settings) (*Server, error) {
	ds, err := OpenDataStore(settings.DemoServer.DataPath)
	if err != nil {
		return nil, err
	}

	outputsDir := filepath.Join(settings.DemoServer.DataPath, "outputs")
	if err := os.MkdirAll(filepath.Join(outputsDir, "uploads"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	s := &Server{
		Echo:       echo.New(),
		ds:         ds,
		engine:     NewEngine(),
		listen:     settings.DemoServer.Listen,
		outputsDir: outputsDir,
	}

	s.Echo.HideBanner = true
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.CORS())
	s.Echo.Use(middleware.BodyLimit("10M"))

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/status", s.handleStatus)

	s.Echo.GET("/projects", s.handleListProjects)
	s.Echo.POST("/projects", s.handleCreateProject)
	s.Echo.DELETE("/projects/:id", s.handleDeleteProject)

	s.Echo.POST("/predict", s.handlePredict)
	s.Echo.GET("/defects", s.handleListDefects)
	s.Echo.PATCH("/defects/:id", s.handleUpdateDefect)
	s.Echo.DELETE("/defects/:id", s.handleDeleteDefect)

	s.Echo.POST("/generate-report-db", s.handleGenerateReport)

	s.Echo.Static("/static", s.outputsDir)
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	logger.Info("Demo server listening", "address", s.listen, "outputs", s.outputsDir)
	err := s.Echo.Start(s.listen)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server and closes the datastore.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	if closeErr := s.ds.Close(); err == nil {
		err = closeErr
	}
	if closeLogger != nil {
		_ = closeLogger()
	}
	return err
}

// --- handlers ---

// apiError renders an error in the backend's detail shape, which the client
// surfaces as the failure message.
func apiError(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]string{"detail": message})
}

func (s *Server) handleStatus(c echo.Context) error {
	projects, defects := s.ds.CountRows()
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"projects": projects,
		"defects":  defects,
	})
}

func (s *Server) handleListProjects(c echo.Context) error {
	projects, err := s.ds.ListProjects()
	if err != nil {
		logger.Error("Failed to list projects", "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to list projects")
	}
	return c.JSON(http.StatusOK, projects)
}

type projectRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req projectRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, "invalid project payload")
	}
	if req.Name == "" {
		return apiError(c, http.StatusBadRequest, "project name is required")
	}

	project := &Project{Name: req.Name, Address: req.Address, CreatedAt: time.Now()}
	if err := s.ds.CreateProject(project); err != nil {
		logger.Error("Failed to create project", "name", req.Name, "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to create project")
	}

	logger.Info("Project created", "id", project.ID, "name", project.Name)
	return c.JSON(http.StatusOK, project)
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return apiError(c, http.StatusBadRequest, "invalid project id")
	}

	deleted, err := s.ds.DeleteProject(id)
	if err != nil {
		logger.Error("Failed to delete project", "id", id, "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to delete project")
	}
	if !deleted {
		return apiError(c, http.StatusNotFound, "Project not found")
	}

	logger.Info("Project deleted", "id", id)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Project deleted"})
}

func (s *Server) handlePredict(c echo.Context) error {
	var projectID int64
	if v := c.FormValue("project_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apiError(c, http.StatusBadRequest, "invalid project id")
		}
		project, err := s.ds.GetProject(parsed)
		if err != nil {
			logger.Error("Failed to look up project", "id", parsed, "error", err)
			return apiError(c, http.StatusInternalServerError, "failed to look up project")
		}
		if project == nil {
			return apiError(c, http.StatusNotFound, "Project not found")
		}
		projectID = parsed
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return apiError(c, http.StatusBadRequest, "image file is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return apiError(c, http.StatusBadRequest, "failed to open uploaded file")
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(src)
	if err != nil || len(data) == 0 {
		return apiError(c, http.StatusBadRequest, "uploaded file is empty")
	}

	// Store the upload under a timestamped name, like the real backend does.
	safeName := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), filepath.Base(fileHeader.Filename))
	savePath := filepath.Join(s.outputsDir, "uploads", safeName)
	if err := os.WriteFile(savePath, data, 0o644); err != nil {
		logger.Error("Failed to store upload", "path", savePath, "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to store upload")
	}

	verdict := s.engine.Predict(fileHeader.Filename)

	defect := &Defect{
		Filename:   fileHeader.Filename,
		Caption:    verdict.Caption,
		Label:      verdict.Label,
		Confidence: verdict.Confidence,
		Timestamp:  time.Now(),
		ImagePath:  "uploads/" + safeName,
		Room:       "General",
		Severity:   "Low",
		ProjectID:  projectID,
	}
	if err := s.ds.CreateDefect(defect); err != nil {
		logger.Error("Failed to persist defect", "filename", defect.Filename, "error", err)
		return c.JSON(http.StatusOK, map[string]any{"success": false, "error": "failed to persist defect"})
	}

	logger.Info("Image analyzed", "id", defect.ID, "filename", defect.Filename, "label", defect.Label)
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"id":         defect.ID,
		"filename":   defect.Filename,
		"caption":    defect.Caption,
		"label":      defect.Label,
		"confidence": defect.Confidence,
		"image_url":  "/static/" + defect.ImagePath,
		"timestamp":  defect.Timestamp,
		"project_id": defect.ProjectID,
	})
}

func (s *Server) handleListDefects(c echo.Context) error {
	var projectID int64
	if v := c.QueryParam("project_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return apiError(c, http.StatusBadRequest, "invalid project id")
		}
		projectID = parsed
	}

	defects, err := s.ds.ListDefects(projectID)
	if err != nil {
		logger.Error("Failed to list defects", "project_id", projectID, "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to list defects")
	}
	return c.JSON(http.StatusOK, defects)
}

// updatableDefectColumns restricts PATCH bodies to the fields the client is
// allowed to change.
var updatableDefectColumns = map[string]string{
	"caption":  "caption",
	"room":     "room",
	"severity": "severity",
}

func (s *Server) handleUpdateDefect(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return apiError(c, http.StatusBadRequest, "invalid defect id")
	}

	var body map[string]any
	if err := c.Bind(&body); err != nil {
		return apiError(c, http.StatusBadRequest, "invalid update payload")
	}

	updates := make(map[string]any)
	for key, value := range body {
		if column, ok := updatableDefectColumns[key]; ok {
			updates[column] = value
		}
	}

	defect, err := s.ds.UpdateDefect(id, updates)
	if err != nil {
		logger.Error("Failed to update defect", "id", id, "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to update defect")
	}
	if defect == nil {
		return apiError(c, http.StatusNotFound, "Defect not found")
	}

	logger.Info("Defect updated", "id", id, "fields", len(updates))
	return c.JSON(http.StatusOK, defect)
}

func (s *Server) handleDeleteDefect(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return apiError(c, http.StatusBadRequest, "invalid defect id")
	}

	defect, err := s.ds.GetDefect(id)
	if err != nil {
		logger.Error("Failed to look up defect", "id", id, "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to look up defect")
	}
	if defect == nil {
		return apiError(c, http.StatusNotFound, "Defect not found")
	}

	if defect.ImagePath != "" {
		imagePath := filepath.Join(s.outputsDir, filepath.FromSlash(defect.ImagePath))
		if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove stored image", "path", imagePath, "error", err)
		}
	}

	if _, err := s.ds.DeleteDefect(id); err != nil {
		logger.Error("Failed to delete defect", "id", id, "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to delete defect")
	}

	logger.Info("Defect deleted", "id", id)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Defect deleted"})
}

func (s *Server) handleGenerateReport(c echo.Context) error {
	var ids []int64
	if err := c.Bind(&ids); err != nil {
		return apiError(c, http.StatusBadRequest, "invalid id list")
	}
	if len(ids) == 0 {
		return apiError(c, http.StatusBadRequest, "no defect ids given")
	}

	defects, err := s.ds.GetDefectsByIDs(ids)
	if err != nil {
		logger.Error("Failed to fetch defects for report", "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to fetch defects")
	}
	if len(defects) == 0 {
		return apiError(c, http.StatusNotFound, "No defects found for the given IDs")
	}

	document, err := renderReport(defects, s.outputsDir)
	if err != nil {
		logger.Error("Failed to render report", "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to render report")
	}

	filename := fmt.Sprintf("DefectReport_Selected_%s.pdf", time.Now().Format("20060102_150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, filename))
	logger.Info("Report generated", "defects", len(defects), "bytes", len(document))
	return c.Blob(http.StatusOK, "application/pdf", document)
}
