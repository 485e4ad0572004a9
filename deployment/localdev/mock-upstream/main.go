// mock-upstream serves canned signal data, an OpenAI-compatible completion
// stub, and a workflow-dispatch endpoint so the agent can run end to end
// without external services.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/faultlens/faultlens-agent/internal/utils"
)

type windowRequest struct {
	Service string `json:"service"`
	Metric  string `json:"metric"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	flag.Parse()

	logger := utils.NewLogger("info", false)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/signals/logs", handleLogs)
	mux.HandleFunc("POST /api/v1/signals/metrics", handleMetrics)
	mux.HandleFunc("POST /api/v1/signals/deployments", handleDeployments)
	mux.HandleFunc("POST /v1/chat/completions", handleCompletions)
	mux.HandleFunc("POST /repos/", handleWorkflowDispatch)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	logger.Info("mock upstream listening", slog.String("address", *addr))
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("mock upstream failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func parseWindow(r *http.Request) (windowRequest, time.Time) {
	var req windowRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	end, err := utils.ParseRFC3339(req.End)
	if err != nil {
		end = time.Now().UTC()
	}
	return req, end
}

func handleLogs(w http.ResponseWriter, r *http.Request) {
	_, end := parseWindow(r)
	writeJSON(w, map[string]any{
		"entries": []map[string]any{
			{"timestamp": end.Add(-25 * time.Minute).Format(time.RFC3339), "message": "request completed", "severity": "info", "count": 12},
			{"timestamp": end.Add(-20 * time.Minute).Format(time.RFC3339), "message": "request completed", "severity": "info", "count": 11},
			{"timestamp": end.Add(-6 * time.Minute).Format(time.RFC3339), "message": "db connection pool exhausted", "severity": "error", "count": 85},
			{"timestamp": end.Add(-4 * time.Minute).Format(time.RFC3339), "message": "upstream timeout calling payments", "severity": "error", "count": 40},
		},
	})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	_, end := parseWindow(r)
	series := make([]map[string]any, 0, 12)
	for i := 11; i >= 0; i-- {
		at := end.Add(-time.Duration(i*2) * time.Minute)
		value := 120.0
		if i <= 2 {
			value = 1950.0
		}
		series = append(series, map[string]any{"timestamp": at.Format(time.RFC3339), "value": value})
	}
	writeJSON(w, map[string]any{"series": series})
}

func handleDeployments(w http.ResponseWriter, r *http.Request) {
	_, end := parseWindow(r)
	writeJSON(w, map[string]any{
		"deployments": []map[string]any{
			{"service": "checkout", "version": "v2.3.1", "kind": "code", "author": "deploy-bot", "deployed_at": end.Add(-15 * time.Minute).Format(time.RFC3339)},
			{"service": "billing", "version": "v1.8.0", "kind": "code", "author": "deploy-bot", "deployed_at": end.Add(-3 * time.Hour).Format(time.RFC3339)},
		},
	})
}

// handleCompletions mimics the chat completion API. The canned answer depends
// on which analyst persona the system prompt carries.
func handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	system := ""
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = msg.Content
		}
	}

	content := `{"summary":"no clear signal","confidence":0.3}`
	switch {
	case strings.Contains(system, "forensic log analyst"):
		content = `{"summary":"db connection pool exhaustion is driving checkout errors","confidence":0.8}`
	case strings.Contains(system, "telemetry analyst"):
		content = `{"summary":"p99 latency stepped from 120ms to 1950ms around six minutes before the alert","confidence":0.9}`
	case strings.Contains(system, "change-history analyst"):
		content = `{"summary":"checkout v2.3.1 deployed 15 minutes before onset and is the likely trigger","confidence":0.85}`
	case strings.Contains(system, "incident commander"):
		content = `{"hypothesis":"recent checkout deployment degraded database connection handling"}`
	}

	writeJSON(w, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "mock-reasoner",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	})
}

func handleWorkflowDispatch(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.URL.Path, "/actions/workflows/") || !strings.HasSuffix(r.URL.Path, "/dispatches") {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
