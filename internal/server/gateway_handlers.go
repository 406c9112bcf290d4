package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loykin/clawpanel/internal/gateway"
	"github.com/loykin/clawpanel/internal/logbuf"
	"github.com/loykin/clawpanel/internal/metrics"
)

type startReq struct {
	Port *int `json:"port"`
}

type gatewayResp struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Status  gateway.Status `json:"status"`
}

type gatewayStatusResp struct {
	gateway.Status
	Resources *metrics.ProcessSample `json:"resources,omitempty"`
}

func (r *Router) handleGatewayStart(c *gin.Context) {
	port := r.opts.DefaultGatewayPort
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 4096))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "read body: " + err.Error()})
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		var req startReq
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
		if req.Port != nil {
			port = *req.Port
		}
	}
	if port < 1 || port > 65535 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: fmt.Sprintf("invalid port %d", port)})
		return
	}

	err = r.gw.Start(port)
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, gatewayResp{
			Success: true,
			Message: fmt.Sprintf("Gateway started on port %d", port),
			Status:  r.gw.Status(),
		})
	case errors.Is(err, gateway.ErrAlreadyRunning):
		writeJSON(c, http.StatusConflict, gatewayResp{Message: "Gateway already running", Status: r.gw.Status()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handleGatewayStop(c *gin.Context) {
	err := r.gw.Stop()
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, gatewayResp{Success: true, Message: "Gateway stopped", Status: r.gw.Status()})
	case errors.Is(err, gateway.ErrNotRunning):
		writeJSON(c, http.StatusConflict, gatewayResp{Message: "Gateway not running", Status: r.gw.Status()})
	case errors.Is(err, gateway.ErrStopTimeout):
		writeJSON(c, http.StatusGatewayTimeout, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handleGatewayStatus(c *gin.Context) {
	resp := gatewayStatusResp{Status: r.gw.Status()}
	if resp.Running && r.opts.Sampler != nil {
		if s, ok := r.opts.Sampler.Latest(); ok && int(s.PID) == resp.PID {
			resp.Resources = &s
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleGatewayLogs(c *gin.Context) {
	n, err := parseLines(c, logbuf.APIView, r.gw.LogCapacity())
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	lines := r.gw.Tail(n)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(c, http.StatusOK, gin.H{"logs": lines})
}

func (r *Router) handleGatewayResources(c *gin.Context) {
	if r.opts.Sampler == nil || !r.opts.Sampler.IsEnabled() {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "resource sampling disabled"})
		return
	}
	samples := r.opts.Sampler.History()
	if samples == nil {
		samples = []metrics.ProcessSample{}
	}
	writeJSON(c, http.StatusOK, gin.H{"samples": samples})
}
