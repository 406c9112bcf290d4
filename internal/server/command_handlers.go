package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/loykin/clawpanel/internal/cron"
	"github.com/loykin/clawpanel/internal/runner"
)

// DefaultThinking is passed to agent runs that do not choose a level.
const DefaultThinking = "medium"

const maxToolLogLines = 10000

type sessionsResp struct {
	runner.Result
	Sessions any `json:"sessions,omitempty"`
}

type messageReq struct {
	Target  string `json:"target"`
	Message string `json:"message"`
	Channel string `json:"channel"`
}

type agentReq struct {
	Message  string `json:"message"`
	Thinking string `json:"thinking"`
}

// command returns a handler running a fixed subcommand with the default timeout.
func (r *Router) command(args ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := r.cmds.Run(c.Request.Context(), r.opts.CommandTimeout, args...)
		writeJSON(c, http.StatusOK, res)
	}
}

func (r *Router) handleSessions(c *gin.Context) {
	res := r.cmds.Run(c.Request.Context(), r.opts.CommandTimeout, "sessions", "list", "--json")
	resp := sessionsResp{Result: res}
	if res.Success && res.Stdout != "" {
		var v any
		if err := json.Unmarshal([]byte(res.Stdout), &v); err == nil {
			resp.Sessions = v
		} else {
			r.logger.Debug("sessions output is not JSON", "error", err)
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleToolLogs(c *gin.Context) {
	n, err := parseLines(c, 100, maxToolLogLines)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	res := r.cmds.Run(c.Request.Context(), r.opts.CommandTimeout, "logs", "--lines", strconv.Itoa(n))
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleMessageSend(c *gin.Context) {
	var req messageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	req.Target = strings.TrimSpace(req.Target)
	req.Channel = strings.TrimSpace(req.Channel)
	if req.Target == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "target and message required"})
		return
	}
	args := []string{"message", "send", "--target", req.Target, "--message", req.Message}
	if req.Channel != "" {
		args = append(args, "--channel", req.Channel)
	}
	writeJSON(c, http.StatusOK, r.cmds.Run(c.Request.Context(), r.opts.CommandTimeout, args...))
}

func (r *Router) handleAgent(c *gin.Context) {
	var req agentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "message required"})
		return
	}
	thinking := strings.TrimSpace(req.Thinking)
	if thinking == "" {
		thinking = DefaultThinking
	}
	res := r.cmds.Run(c.Request.Context(), r.opts.AgentTimeout, "agent", "--message", req.Message, "--thinking", thinking)
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleSchedules(c *gin.Context) {
	runs := []cron.Run{}
	if r.opts.Schedules != nil {
		if got := r.opts.Schedules.Runs(); got != nil {
			runs = got
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"runs": runs})
}
