package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/careerpilot/careerpilot/internal/agent"
	"github.com/careerpilot/careerpilot/internal/orchestrator"
	"github.com/careerpilot/careerpilot/internal/store"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orch    *orchestrator.Orchestrator
	factory *agent.Factory
	runs    *store.Store // optional
	logger  *zap.Logger
}

// NewHandler creates a new API handler. The run store may be nil.
func NewHandler(orch *orchestrator.Orchestrator, factory *agent.Factory, runs *store.Store, logger *zap.Logger) *Handler {
	return &Handler{
		orch:    orch,
		factory: factory,
		runs:    runs,
		logger:  logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/goal", h.achieveGoal)
		r.Post("/chat", h.chat)
		r.Get("/state", h.getState)
		r.Post("/reset", h.reset)
		r.Get("/agents", h.listAgents)
		r.Get("/agents/{role}/thoughts", h.agentThoughts)
		r.Post("/agents/{role}/reset", h.resetAgent)
		r.Post("/agents/reset", h.resetAllAgents)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "careerpilot"})
}

type goalRequest struct {
	Goal    string                 `json:"goal"`
	Context map[string]interface{} `json:"context"`
}

func (h *Handler) achieveGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}

	result, err := h.orch.AchieveGoal(r.Context(), req.Goal, req.Context)
	if err != nil {
		h.writeOrchestratorError(w, err)
		return
	}

	h.persistRun(r, result)
	writeJSON(w, http.StatusOK, result)
}

// persistRun records a completed run in the history store. Best effort;
// the response does not depend on it.
func (h *Handler) persistRun(r *http.Request, result *orchestrator.GoalResult) {
	if h.runs == nil {
		return
	}
	run := &store.Run{
		ID:             result.RunID,
		Goal:           result.Goal,
		Status:         string(orchestrator.StatusCompleted),
		AgentsUsed:     result.AgentsUsed,
		TasksCompleted: result.TasksCompleted,
		TotalTasks:     result.TotalTasks,
	}
	for _, o := range result.Results {
		run.Outcomes = append(run.Outcomes, store.Outcome{
			TaskID:    o.TaskID,
			AgentRole: o.AgentRole,
			Result:    o.Result,
		})
	}
	if err := h.runs.SaveRun(r.Context(), run); err != nil {
		h.logger.Warn("failed to persist run", zap.Error(err))
	}
}

type chatRequest struct {
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.orch.Chat(r.Context(), req.Message, req.Context)
	if err != nil {
		h.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.GetState())
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	h.orch.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	type roleInfo struct {
		Role         string   `json:"role"`
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
		Active       bool     `json:"active"`
		TasksRun     int      `json:"tasks_run"`
	}

	active := make(map[string]agent.AgentState)
	for _, a := range h.factory.Active() {
		active[a.Role] = a.State()
	}

	var out []roleInfo
	for _, role := range agent.Roles() {
		p, _ := agent.Profile(role)
		info := roleInfo{Role: p.Role, Name: p.Name, Capabilities: p.Capabilities}
		if st, ok := active[role]; ok {
			info.Active = true
			info.TasksRun = st.TasksRun
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) agentThoughts(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	a, err := h.factory.GetAgent(role)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown agent role: "+role)
		return
	}
	writeJSON(w, http.StatusOK, a.State())
}

func (h *Handler) resetAgent(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if _, ok := agent.Profile(role); !ok {
		writeError(w, http.StatusNotFound, "unknown agent role: "+role)
		return
	}
	h.factory.ResetAgent(role)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "role": role})
}

func (h *Handler) resetAllAgents(w http.ResponseWriter, r *http.Request) {
	h.factory.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}
	runs, err := h.runs.ListRuns(r.Context(), 20)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}
	run, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) writeOrchestratorError(w http.ResponseWriter, err error) {
	var planErr *orchestrator.PlanningError
	var taskErr *orchestrator.TaskError
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &planErr), errors.As(err, &taskErr),
		errors.Is(err, orchestrator.ErrUnresolvableWorkflow):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("orchestrator call failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
