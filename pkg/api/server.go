package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/log"
	"github.com/maruhq/maru/pkg/manager"
	"github.com/maruhq/maru/pkg/metrics"
	"github.com/maruhq/maru/pkg/types"
)

// Server is the master's HTTP/JSON API: deployment CRUD for users, plus
// the registration, heartbeat, and pod-sync endpoints the agents use.
type Server struct {
	manager *manager.Manager
	logger  zerolog.Logger
	mux     *http.ServeMux
	server  *http.Server
}

// NewServer creates the API server over the given manager.
func NewServer(mgr *manager.Manager) *Server {
	s := &Server{
		manager: mgr,
		logger:  log.WithComponent("api"),
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.mux.HandleFunc("POST /deployments", s.handleCreateDeployment)
	s.mux.HandleFunc("GET /deployments", s.handleListDeployments)
	s.mux.HandleFunc("GET /deployments/{name}", s.handleGetDeployment)
	s.mux.HandleFunc("PUT /deployments/{name}", s.handleUpdateDeployment)
	s.mux.HandleFunc("DELETE /deployments/{name}", s.handleDeleteDeployment)

	s.mux.HandleFunc("GET /pods", s.handleListPods)
	s.mux.HandleFunc("GET /pods/{id}", s.handleGetPod)
	s.mux.HandleFunc("DELETE /pods/{id}", s.handleDeletePod)
	s.mux.HandleFunc("POST /pods/{id}/status", s.handlePodStatus)

	s.mux.HandleFunc("GET /nodes", s.handleListNodes)
	s.mux.HandleFunc("POST /nodes/register", s.handleRegisterNode)
	s.mux.HandleFunc("GET /nodes/{name}", s.handleGetNode)
	s.mux.HandleFunc("DELETE /nodes/{name}", s.handleDeleteNode)
	s.mux.HandleFunc("POST /nodes/{name}/heartbeat", s.handleHeartbeat)
	s.mux.HandleFunc("GET /nodes/{name}/pods", s.handleNodePods)

	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API on the given address until Shutdown.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req types.CreateDeploymentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, errdefs.InvalidSpec("deployment name cannot be empty"))
		return
	}
	if req.Image == "" {
		s.writeError(w, errdefs.InvalidSpec("image cannot be empty"))
		return
	}

	replicas := 1
	if req.Replicas != nil {
		if *req.Replicas < 0 {
			s.writeError(w, errdefs.InvalidSpec("replicas cannot be negative"))
			return
		}
		replicas = *req.Replicas
	}

	d, err := s.manager.Store().CreateDeployment(types.Deployment{
		Name:      req.Name,
		Image:     req.Image,
		Replicas:  replicas,
		Resources: req.Resources,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info().Str("deployment", d.Name).Int("replicas", d.Replicas).Msg("deployment created")
	writeJSON(w, http.StatusCreated, s.deploymentResponse(d))
}

func (s *Server) handleListDeployments(w http.ResponseWriter, _ *http.Request) {
	deployments := s.manager.Store().ListDeployments()
	out := make([]types.DeploymentResponse, 0, len(deployments))
	for _, d := range deployments {
		out = append(out, s.deploymentResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	d, err := s.manager.Store().GetDeployment(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deploymentResponse(d))
}

func (s *Server) handleUpdateDeployment(w http.ResponseWriter, r *http.Request) {
	var update types.UpdateDeploymentRequest
	if err := decodeBody(r, &update); err != nil {
		s.writeError(w, err)
		return
	}
	if update.Replicas != nil && *update.Replicas < 0 {
		s.writeError(w, errdefs.InvalidSpec("replicas cannot be negative"))
		return
	}
	if update.Image != nil && *update.Image == "" {
		s.writeError(w, errdefs.InvalidSpec("image cannot be empty"))
		return
	}

	d, err := s.manager.Store().UpdateDeployment(r.PathValue("name"), update)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info().Str("deployment", d.Name).Int("replicas", d.Replicas).Msg("deployment updated")
	writeJSON(w, http.StatusOK, s.deploymentResponse(d))
}

func (s *Server) handleDeleteDeployment(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.manager.Store().DeleteDeployment(name); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info().Str("deployment", name).Msg("deployment deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "deployment " + name + " deleted"})
}

func (s *Server) handleListPods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Store().ListPods())
}

func (s *Server) handleGetPod(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.Store().GetPod(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeletePod marks a pod terminating; the reconciler replaces it if
// its deployment still wants the replica. An unbound pod has no container
// to stop and completes immediately.
func (s *Server) handleDeletePod(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st := s.manager.Store()

	p, err := st.UpdatePodStatus(id, types.PodStatusTerminating, "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if p.NodeName == "" {
		if _, err := st.UpdatePodStatus(id, types.PodStatusTerminated, ""); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.logger.Info().Str("pod_id", id).Msg("pod termination requested")
	writeJSON(w, http.StatusOK, map[string]string{"message": "pod " + id + " is being terminated"})
}

func (s *Server) handlePodStatus(w http.ResponseWriter, r *http.Request) {
	var update types.PodStatusUpdate
	if err := decodeBody(r, &update); err != nil {
		s.writeError(w, err)
		return
	}

	p, err := s.manager.Store().UpdatePodStatus(r.PathValue("id"), update.Status, update.ContainerID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.manager.Store().ListNodes()
	out := make([]types.NodeResponse, 0, len(nodes))
	for _, nu := range nodes {
		out = append(out, types.NewNodeResponse(nu))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterNodeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	node, err := s.manager.RegisterNode(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	nu, err := s.manager.Store().GetNode(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewNodeResponse(nu))
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.manager.RemoveNode(name); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "node " + name + " removed"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	// The body is optional: a bare POST is a plain liveness signal.
	var req types.HeartbeatRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, err)
		return
	}

	if err := s.manager.Heartbeat(r.PathValue("name"), req.PodStatuses); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNodePods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Store().ListPodsByNode(r.PathValue("name")))
}

func (s *Server) deploymentResponse(d types.Deployment) types.DeploymentResponse {
	ready := 0
	for _, p := range s.manager.Store().ListPodsByDeployment(d.Name) {
		if p.Status == types.PodStatusRunning {
			ready++
		}
	}
	return types.DeploymentResponse{Deployment: d, ReadyReplicas: ready}
}

func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return io.EOF
	}
	err := json.NewDecoder(r.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if err != nil {
		return errdefs.InvalidSpec("malformed request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an error kind to its HTTP status and writes the standard
// error body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errdefs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errdefs.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, errdefs.ErrInvalidSpec), errors.Is(err, errdefs.ErrIllegalTransition), errors.Is(err, io.EOF):
		status = http.StatusBadRequest
	case errors.Is(err, errdefs.ErrEvicted):
		status = http.StatusGone
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("internal error")
	}
	writeJSON(w, status, types.ErrorResponse{Error: err.Error()})
}
