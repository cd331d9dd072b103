package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"promethium-examples/runner/pkg/models"
)

// DefaultSteps is how many status polls a sandbox workflow takes to finish.
const DefaultSteps = 2

type sandboxWorkflow struct {
	wf     models.Workflow
	smiles string
	polls  int
}

// Server holds the in-memory state of the sandbox API.
type Server struct {
	mu        sync.Mutex
	workflows map[string]*sandboxWorkflow
	steps     int
	logger    Logger
	now       func() time.Time
}

// NewServer creates a new Server. Each workflow reaches a terminal state on
// its steps-th status poll.
func NewServer(steps int, logger Logger) *Server {
	if steps < 1 {
		steps = 1
	}
	return &Server{
		workflows: make(map[string]*sandboxWorkflow),
		steps:     steps,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterHandlers mounts the workflow routes on g.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.GET("/workflows/:id/results", s.GetResults)
}

// CreateWorkflow accepts a workflow request
// (POST /v0/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	var req models.WorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	switch {
	case req.Name == "":
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	case req.Kind == "":
		return echo.NewHTTPError(http.StatusBadRequest, "kind is required")
	case !req.Kind.IsValid():
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported workflow kind %q", req.Kind))
	case req.Parameters.Molecule.Base64Data == "":
		return echo.NewHTTPError(http.StatusBadRequest, "parameters.molecule.base64data is required")
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Parameters.Molecule.Base64Data)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "molecule is not valid base64: "+err.Error())
	}

	now := s.now().UTC()
	sw := &sandboxWorkflow{
		wf: models.Workflow{
			ID:        uuid.NewString(),
			Name:      req.Name,
			Kind:      req.Kind,
			Status:    models.WorkflowStatusPending,
			CreatedAt: &now,
		},
		smiles: strings.TrimSpace(string(decoded)),
	}

	s.mu.Lock()
	s.workflows[sw.wf.ID] = sw
	wf := sw.wf
	s.mu.Unlock()

	s.logger.Info("workflow accepted", "workflow_id", wf.ID, "name", wf.Name)
	return c.JSON(http.StatusCreated, wf)
}

// GetWorkflow returns a workflow and advances its simulated progress
// (GET /v0/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	id := c.Param("id")

	s.mu.Lock()
	sw, ok := s.workflows[id]
	var wf models.Workflow
	if ok {
		s.advance(sw)
		wf = sw.wf
	}
	s.mu.Unlock()

	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("workflow %s not found", id))
	}
	return c.JSON(http.StatusOK, wf)
}

// GetResults returns the artifacts of a completed workflow
// (GET /v0/workflows/:id/results)
func (s *Server) GetResults(c echo.Context) error {
	id := c.Param("id")

	s.mu.Lock()
	sw, ok := s.workflows[id]
	var (
		wf     models.Workflow
		smiles string
	)
	if ok {
		wf, smiles = sw.wf, sw.smiles
	}
	s.mu.Unlock()

	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("workflow %s not found", id))
	}
	if wf.Status != models.WorkflowStatusCompleted {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("workflow %s is %s and has no results", id, wf.Status))
	}

	artifacts, err := cannedArtifacts(smiles)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.WorkflowResult{
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Kind:       wf.Kind,
		Artifacts:  artifacts,
	})
}

// advance moves a workflow one poll along PENDING -> RUNNING -> terminal.
// Callers hold s.mu.
func (s *Server) advance(sw *sandboxWorkflow) {
	if sw.wf.Status.IsTerminal() {
		return
	}
	sw.polls++
	now := s.now().UTC()
	if sw.wf.StartedAt == nil {
		sw.wf.StartedAt = &now
	}
	sw.wf.Status = models.WorkflowStatusRunning
	if sw.polls < s.steps {
		return
	}

	sw.wf.EndedAt = &now
	sw.wf.DurationSeconds = now.Sub(*sw.wf.StartedAt).Seconds()
	if sw.smiles == "" {
		sw.wf.Status = models.WorkflowStatusFailed
		sw.wf.Error = "molecule is empty"
	} else {
		sw.wf.Status = models.WorkflowStatusCompleted
	}
	s.logger.Debug("workflow finished", "workflow_id", sw.wf.ID, "status", sw.wf.Status)
}

// cannedEnergies are relative conformer energies in Hartree.
var cannedEnergies = []float64{0, 0.00042, 0.00097, 0.0016, 0.0031}

const cannedBaseEnergy = -233.1042

func cannedArtifacts(smiles string) (map[string]json.RawMessage, error) {
	conformers := make([]models.Conformer, len(cannedEnergies))
	for i, de := range cannedEnergies {
		conformers[i] = models.Conformer{Energy: cannedBaseEnergy + de}
	}
	confJSON, err := json.Marshal(conformers)
	if err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(map[string]any{
		"smiles":       smiles,
		"n_conformers": len(conformers),
	})
	if err != nil {
		return nil, err
	}
	return map[string]json.RawMessage{
		models.ArtifactConformers: confJSON,
		"metadata":                metaJSON,
	}, nil
}
