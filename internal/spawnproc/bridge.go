package spawnproc

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/agent-command/agentd/internal/approval"
)

// ApprovalHandler resolves one inbound approval callback. It is expected
// to block internally (via C4's Registry) until the Session Manager
// delivers an operator answer or the registry's own timeout fires, then
// return the resolved response. sessionID is resolved by the bridge from
// the callback body, with the lookup-fallback heuristic (spec.md §4.6)
// applied by the Session Manager, not the bridge itself.
type ApprovalHandler func(sessionID string, req approval.Request) approval.Response

// hookPayload is the wire shape the auxiliary approval program POSTs,
// grounded on providers/claude.go's ClaudeHookPayload, generalized from
// a tool-specific hook event to the single /permission endpoint spec.md
// §6 describes.
type hookPayload struct {
	SessionID string         `json:"sessionId"`
	ToolName  string         `json:"toolName"`
	ToolInput map[string]any `json:"toolInput"`
	RequestID string         `json:"requestId"`
}

type hookResponse struct {
	Behavior     string         `json:"behavior"`
	Message      string         `json:"message,omitempty"`
	UpdatedInput map[string]any `json:"updatedInput,omitempty"`
}

// ApprovalBridge is the single loopback HTTP listener shared by every
// callback-bridge session, grounded on providers/claude.go's
// ClaudeProvider.Start/handleHook. Unlike the teacher, which ran one
// hooks server per provider instance, this bridge is process-wide: every
// ApprovalCallbackBridge session is routed through the same /permission
// endpoint and disambiguated by sessionId in the request body.
type ApprovalBridge struct {
	mu      sync.RWMutex
	handler ApprovalHandler
	server  *http.Server
	ln      net.Listener
}

// NewApprovalBridge constructs an idle bridge; call Start to begin
// listening.
func NewApprovalBridge() *ApprovalBridge {
	return &ApprovalBridge{}
}

// SetHandler installs the callback invoked for every /permission POST.
func (b *ApprovalBridge) SetHandler(h ApprovalHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// Start binds addr and begins serving in the background. The returned
// endpoint (e.g. "http://127.0.0.1:7777/permission") is what
// SpawnParams.CallbackEndpoint should be set to.
func (b *ApprovalBridge) Start(addr string) (endpoint string, err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("approval bridge listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/permission", b.handlePermission)

	b.ln = ln
	b.server = &http.Server{Handler: mux}
	go func() {
		_ = b.server.Serve(ln)
	}()

	return fmt.Sprintf("http://%s/permission", ln.Addr().String()), nil
}

// Close shuts the listener down.
func (b *ApprovalBridge) Close() error {
	if b.server == nil {
		return nil
	}
	return b.server.Close()
}

// writeJSONError writes {"error": message} with status, matching
// spec.md §6's "handler exceptions return 500 with a JSON error body"
// contract for every error path, not just panics.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (b *ApprovalBridge) handlePermission(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload hookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if payload.SessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing sessionId")
		return
	}

	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler == nil {
		writeJSONError(w, http.StatusInternalServerError, "no handler installed")
		return
	}

	resp := handler(payload.SessionID, approval.Request{
		ToolName:  payload.ToolName,
		ToolInput: payload.ToolInput,
	})

	behavior := "deny"
	if resp.Behavior == approval.BehaviorAllow {
		behavior = "allow"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(hookResponse{
		Behavior:     behavior,
		Message:      resp.Message,
		UpdatedInput: resp.UpdatedInput,
	})
}
