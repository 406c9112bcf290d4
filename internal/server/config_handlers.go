package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/loykin/clawpanel/internal/settings"
)

const maxConfigBody = 1 << 20

type fieldReq struct {
	Section string `json:"section"`
	Key     string `json:"key"`
	Value   any    `json:"value"`
}

type modelReq struct {
	Model string `json:"model" form:"model"`
}

func (r *Router) handleConfigGet(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.store.Load())
}

func (r *Router) handleConfigReplace(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxConfigBody+1))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "read body: " + err.Error()})
		return
	}
	if len(raw) > maxConfigBody {
		writeJSON(c, http.StatusRequestEntityTooLarge, errorResp{Error: "config document too large"})
		return
	}
	if err := r.store.Replace(raw); err != nil {
		r.writeStoreError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{Success: true, Message: "Config saved"})
}

func (r *Router) handleConfigField(c *gin.Context) {
	var req fieldReq
	dec := json.NewDecoder(io.LimitReader(c.Request.Body, maxConfigBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	req.Section = strings.TrimSpace(req.Section)
	req.Key = strings.TrimSpace(req.Key)
	if req.Section == "" || req.Key == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "section and key required"})
		return
	}
	if err := r.store.SetField(req.Section, req.Key, req.Value); err != nil {
		r.writeStoreError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{Success: true})
}

func (r *Router) handleSetupModel(c *gin.Context) {
	var req modelReq
	if err := c.ShouldBind(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid request: " + err.Error()})
		return
	}
	if err := r.store.SetModel(req.Model); err != nil {
		r.writeStoreError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "model": settings.Model(r.store.Load())})
}

func (r *Router) handleSetupChannels(c *gin.Context) {
	var form settings.ChannelForm
	if err := c.ShouldBind(&form); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid request: " + err.Error()})
		return
	}
	if err := r.store.ApplyChannels(form); err != nil {
		r.writeStoreError(c, err)
		return
	}
	doc := r.store.Load()
	writeJSON(c, http.StatusOK, gin.H{"success": true, "channels": settings.Section(doc, "channels")})
}

func (r *Router) writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, settings.ErrConfigParse) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	r.logger.Error("config write failed", "path", r.store.Path(), "error", err)
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
}
