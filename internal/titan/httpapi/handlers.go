package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/antigravity-dev/titan/internal/titan/gateway"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

type runtimeStatusResponse struct {
	Mode         string `json:"mode"`
	RiskMode     string `json:"risk_mode"`
	ModelID      string `json:"model_id"`
	WorkspaceDir string `json:"workspace_dir"`
}

func (s *Server) handleRuntimeStatus(w http.ResponseWriter, r *http.Request) {
	risk, err := s.deps.Store.GetRiskState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runtimeStatusResponse{
		Mode:         string(s.deps.Config.Mode),
		RiskMode:     string(risk.RiskMode),
		ModelID:      s.deps.Config.Model.ModelID,
		WorkspaceDir: s.deps.Config.WorkspaceDir,
	})
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	goals, err := s.deps.Store.ListGoals(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) handleListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := s.deps.Store.ListApprovals(store.ApprovalPending)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, approvals)
}

type resolveApprovalRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

type resolveApprovalResponse struct {
	Reply string `json:"reply"`
}

// handleResolveApproval returns the handler for both approve and deny —
// both routes resolve through gateway.Runtime.ResolveApproval, the same
// path /approve and /deny take from a chat channel, so there is exactly
// one place an approval is ever executed regardless of which surface
// resolved it.
func (s *Server) handleResolveApproval(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var req resolveApprovalRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
				return
			}
		}
		if req.ActorID == "" {
			req.ActorID = "dashboard"
		}
		reply, err := s.deps.Runtime.ResolveApproval(r.Context(), id, approve, req.ActorID, req.Reason)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resolveApprovalResponse{Reply: reply})
	}
}

func (s *Server) handleTracesRecent(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 100)
	traces, err := s.deps.Store.SearchTraces("", limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

func (s *Server) handleTracesSearch(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	limit := intQuery(r, "limit", 100)
	traces, err := s.deps.Store.SearchTraces(pattern, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

func (s *Server) handleEpisodicMemory(w http.ResponseWriter, r *http.Request) {
	if goalID := r.URL.Query().Get("goal_id"); goalID != "" {
		mem, err := s.deps.Store.ListEpisodic(goalID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, mem)
		return
	}
	mem, err := s.deps.Store.ListRecentEpisodic(intQuery(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.deps.Store.ListInstalledSkills()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, skills)
}

func (s *Server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	conns, err := s.deps.Store.ListConnectors()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

type testConnectorResponse struct {
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleTestConnector runs the connector's first read-only tool with an
// empty-object input and records the outcome, the HTTP equivalent of a
// dashboard "test connection" button. It never mutates anything remote —
// only READ-classed tools are eligible, matching the spec's own framing
// of reads as auto-executed and side-effect-free.
func (s *Server) handleTestConnector(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	connector, err := s.deps.Store.GetConnector(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	connType := s.deps.Connectors.Get(connector.Type)
	if connType == nil {
		writeError(w, http.StatusUnprocessableEntity, "httpapi: unknown connector type "+connector.Type)
		return
	}

	var readTool string
	for _, d := range connType.Descriptors() {
		if d.RiskClass == store.PermissionRead {
			readTool = d.Name
			break
		}
	}
	if readTool == "" {
		writeError(w, http.StatusUnprocessableEntity, "httpapi: connector type "+connector.Type+" exposes no read-only tool to test")
		return
	}

	now := time.Now().UnixMilli()
	output, execErr := connType.Execute(r.Context(), connector, readTool, "{}", s.deps.Secrets)
	status := "ok"
	if execErr != nil {
		status = "failed"
	}
	if err := s.deps.Store.UpdateConnectorTestResult(id, status, now); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := testConnectorResponse{Status: status, Output: output}
	if execErr != nil {
		resp.Error = execErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	Channel string `json:"channel"`
	PeerID  string `json:"peer_id"`
	ActorID string `json:"actor_id"`
	Text    string `json:"text"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Channel == "" {
		req.Channel = "dashboard"
	}
	if req.PeerID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "httpapi: peer_id and text are required")
		return
	}
	if req.ActorID == "" {
		req.ActorID = req.PeerID
	}
	reply, err := s.deps.Runtime.ProcessChatInput(r.Context(), gateway.Event{
		Channel: req.Channel,
		PeerID:  req.PeerID,
		ActorID: req.ActorID,
		Text:    req.Text,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

type missionControlResponse struct {
	Status           runtimeStatusResponse   `json:"status"`
	PendingApprovals []*store.Approval       `json:"pending_approvals"`
	RecentGoals      []*store.Goal           `json:"recent_goals"`
	RecentTraces     []*store.TraceEvent     `json:"recent_traces"`
	InstalledSkills  []*store.InstalledSkill `json:"installed_skills"`
	Connectors       []*store.Connector      `json:"connectors"`
}

// handleMissionControl is the dashboard's single-call landing view —
// everything an operator needs to see at a glance, assembled from the
// same store reads the narrower endpoints expose individually.
func (s *Server) handleMissionControl(w http.ResponseWriter, r *http.Request) {
	risk, err := s.deps.Store.GetRiskState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pending, err := s.deps.Store.ListApprovals(store.ApprovalPending)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	goals, err := s.deps.Store.ListGoals(20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	traces, err := s.deps.Store.SearchTraces("", 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	skills, err := s.deps.Store.ListInstalledSkills()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	conns, err := s.deps.Store.ListConnectors()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, missionControlResponse{
		Status: runtimeStatusResponse{
			Mode:         string(s.deps.Config.Mode),
			RiskMode:     string(risk.RiskMode),
			ModelID:      s.deps.Config.Model.ModelID,
			WorkspaceDir: s.deps.Config.WorkspaceDir,
		},
		PendingApprovals: pending,
		RecentGoals:      goals,
		RecentTraces:     traces,
		InstalledSkills:  skills,
		Connectors:       conns,
	})
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
