// Package httpapi is the HTTP Surface of §4.7/§6: it authenticates the
// peer, parses JSON, delegates to the engines, and returns the response
// shape each peer type expects. Routed with github.com/gorilla/mux, the
// router library already present in the pack underneath
// appservice.AppService's own transaction listener.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mteedev/lighthouse-bridge/internal/admin"
	"github.com/mteedev/lighthouse-bridge/internal/berr"
	"github.com/mteedev/lighthouse-bridge/internal/ids"
	"github.com/mteedev/lighthouse-bridge/internal/relay"
	"github.com/mteedev/lighthouse-bridge/internal/store"
)

const serviceName = "lighthouse-bridge"
const serviceVersion = "0.1.0"

type Server struct {
	Router *mux.Router

	Relay  *relay.Engine
	Admin  *admin.Engine
	Store  storeLister

	ASToken      string
	HSToken      string
	BridgeSecret string
	Homeserver   string
	BotMXID      string

	log zerolog.Logger
}

// storeLister is the narrow slice of *store.Store that /admin/bridge/list
// needs, kept as an interface so httpapi tests can fake it without a
// database.
type storeLister interface {
	ListEnabledGroupBridges(ctx context.Context) ([]store.GroupBridge, error)
}

func New(relayEngine *relay.Engine, adminEngine *admin.Engine, st storeLister, asToken, hsToken, bridgeSecret, homeserver, botMXID string, log zerolog.Logger) *Server {
	s := &Server{
		Router:       mux.NewRouter(),
		Relay:        relayEngine,
		Admin:        adminEngine,
		Store:        st,
		ASToken:      asToken,
		HSToken:      hsToken,
		BridgeSecret: bridgeSecret,
		Homeserver:   homeserver,
		BotMXID:      botMXID,
		log:          log.With().Str("component", "httpapi").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.Router
	r.HandleFunc("/_matrix/app/v1/transactions/{txnId}", s.requireHSToken(s.handleTransaction)).Methods(http.MethodPut)
	r.HandleFunc("/transactions/{txnId}", s.requireHSToken(s.handleTransaction)).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/_matrix/app/v1/users/{userId}", s.requireHSToken(s.handleUserQuery)).Methods(http.MethodGet)
	r.HandleFunc("/sim/event", s.requireBridgeSecret(s.handleSimEvent)).Methods(http.MethodPost)
	r.HandleFunc("/admin/bridge/enable", s.handleEnableBridge).Methods(http.MethodPost)
	r.HandleFunc("/admin/bridge/resync", s.requireBridgeSecret(s.handleResync)).Methods(http.MethodPost)
	r.HandleFunc("/admin/bridge/list", s.requireBridgeSecret(s.handleListBridges)).Methods(http.MethodGet)
	r.HandleFunc("/admin/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/admin/oar/download", s.handleOARDownload).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// constantTimeEquals is the §6 "All token comparisons must be constant-time
// over the UTF-8 byte encoding" requirement, grounded on
// original_source/bridge/app.py's cryptographic_equals (hmac.compare_digest).
func constantTimeEquals(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) requireHSToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || !constantTimeEquals(token, s.HSToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{})
			return
		}
		next(w, r)
	}
}

func (s *Server) requireBridgeSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-Bridge-Secret")
		if !constantTimeEquals(secret, s.BridgeSecret) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleTransaction always returns 200 {} once authenticated (§4.4,
// "propagation policy" in §7) — the AppService contract requires the HS to
// retry the whole batch on non-2xx, which the bridge wants to avoid.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var txn relay.Transaction
	_ = json.NewDecoder(r.Body).Decode(&txn)
	s.Relay.HandleTransaction(r.Context(), &txn)
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleUserQuery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

type simEventRequest struct {
	Type      string `json:"type"`
	GroupUUID string `json:"group_uuid"`
	FromUUID  string `json:"from_uuid"`
	FromName  string `json:"from_name"`
	Message   string `json:"message"`
}

func (s *Server) handleSimEvent(w http.ResponseWriter, r *http.Request) {
	var req simEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if req.Type != "group_message" || req.GroupUUID == "" || req.FromUUID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing required fields"})
		return
	}

	groupID, err := ids.NormalizeAvatarOrGroupID(req.GroupUUID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group_uuid"})
		return
	}
	senderID, err := ids.NormalizeAvatarOrGroupID(req.FromUUID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from_uuid"})
		return
	}

	if err := s.Relay.RelayFromSim(r.Context(), groupID, senderID, req.FromName, req.Message); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type enableBridgeRequest struct {
	GroupUuid         string `json:"GroupUuid"`
	GroupName         string `json:"GroupName"`
	FounderAvatarUuid string `json:"FounderAvatarUuid"`
}

func (s *Server) handleEnableBridge(w http.ResponseWriter, r *http.Request) {
	var req enableBridgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupUuid == "" || req.FounderAvatarUuid == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing required fields"})
		return
	}

	groupID, err := ids.NormalizeAvatarOrGroupID(req.GroupUuid)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid GroupUuid"})
		return
	}
	founderID, err := ids.NormalizeAvatarOrGroupID(req.FounderAvatarUuid)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid FounderAvatarUuid"})
		return
	}

	roomID, err := s.Admin.EnableBridge(r.Context(), groupID, req.GroupName, founderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"roomId": string(roomID)})
}

type resyncRequest struct {
	GroupUuid string `json:"GroupUuid"`
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	var req resyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupUuid == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "GroupUuid required"})
		return
	}
	groupID, err := ids.NormalizeAvatarOrGroupID(req.GroupUuid)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid GroupUuid"})
		return
	}
	if err := s.Admin.ResyncGroup(r.Context(), groupID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resynced"})
}

func (s *Server) handleListBridges(w http.ResponseWriter, r *http.Request) {
	bridges, err := s.Store.ListEnabledGroupBridges(r.Context())
	if err != nil {
		writeErr(w, berr.HSAPIf(err, "listing bridges"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bridges": bridges, "count": len(bridges)})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":    serviceName,
		"version":    serviceVersion,
		"homeserver": s.Homeserver,
		"bot":        s.BotMXID,
	})
}

// handleOARDownload is the [EXPANSION] stub carried forward from
// original_source/bridge/app.py's "Phase 3" placeholder (SPEC_FULL §4.7).
func (s *Server) handleOARDownload(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{"status": "not_implemented"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeErr(w http.ResponseWriter, err error) {
	if be, ok := berr.As(err); ok {
		status := be.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]string{"error": be.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
