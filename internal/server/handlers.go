package server

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerlink/oauth-broker/internal/broker"
	"github.com/ledgerlink/oauth-broker/internal/jsonwriter"
	"github.com/ledgerlink/oauth-broker/internal/log"
	"github.com/ledgerlink/oauth-broker/internal/origin"
)

// kindStatus maps broker failure kinds to HTTP status codes
func kindStatus(kind broker.Kind) int {
	switch kind {
	case broker.KindInvalidOrigin:
		return http.StatusForbidden
	case broker.KindInvalidState:
		return http.StatusUnauthorized
	case broker.KindReplayDetected:
		return http.StatusConflict
	case broker.KindMalformedRequest:
		return http.StatusBadRequest
	case broker.KindNotConnected:
		return http.StatusNotFound
	case broker.KindInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// Service is the broker surface the handlers drive
type Service interface {
	ConnectURL(realm string) (string, error)
	Connect(ctx context.Context, req broker.CallbackRequest) (*broker.Result, error)
	Refresh(ctx context.Context, realm string) (*broker.Result, error)
}

// Handlers exposes the broker over HTTP. Every endpoint checks the request
// Origin before any key material is touched or any upstream call happens.
type Handlers struct {
	broker  Service
	origins origin.Guard
}

// NewHandlers creates the broker HTTP handlers
func NewHandlers(b Service, origins origin.Guard) *Handlers {
	return &Handlers{broker: b, origins: origins}
}

// callbackBody is the front-end's forwarded callback, JSON form
type callbackBody struct {
	Code    string `json:"code"`
	State   string `json:"state"`
	RealmID string `json:"realmId,omitempty"`
}

// connectedResponse is the success contract. Tokens are included only when
// the broker is configured to hand them to the browser.
type connectedResponse struct {
	Status    string     `json:"status"`
	RealmID   string     `json:"realmId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
}

// CallbackHandler handles POST /oauth/callback
func (h *Handlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteErrorKind(w, http.StatusMethodNotAllowed, string(broker.KindMalformedRequest))
		return
	}

	body, ok := parseCallbackBody(r)
	if !ok {
		jsonwriter.WriteErrorKind(w, http.StatusBadRequest, string(broker.KindMalformedRequest))
		return
	}

	result, err := h.broker.Connect(r.Context(), broker.CallbackRequest{
		Code:   body.Code,
		State:  body.State,
		Realm:  body.RealmID,
		Origin: r.Header.Get("Origin"),
	})
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	response := connectedResponse{
		Status:  "connected",
		RealmID: result.Realm,
	}
	if !result.ExpiresAt.IsZero() {
		expiresAt := result.ExpiresAt
		response.ExpiresAt = &expiresAt
	}
	if result.TokenSet != nil {
		response.AccessToken = result.TokenSet.AccessToken
		response.RefreshToken = result.TokenSet.RefreshToken
		response.TokenType = result.TokenSet.TokenType
	}

	_ = jsonwriter.Write(w, response)
}

// ConnectHandler handles GET /oauth/connect: it mints state and returns the
// provider authorization URL for the front-end to redirect to. The origin is
// checked before any state is minted with the signing key.
func (h *Handlers) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteErrorKind(w, http.StatusMethodNotAllowed, string(broker.KindMalformedRequest))
		return
	}

	if err := h.origins.Authorize(r.Header.Get("Origin")); err != nil {
		writeKind(w, broker.KindInvalidOrigin)
		return
	}

	authURL, err := h.broker.ConnectURL(r.URL.Query().Get("realmId"))
	if err != nil {
		log.LogErrorWithFields("server", "Failed to build authorization URL", map[string]any{
			"error": err.Error(),
		})
		writeKind(w, broker.KindInternalError)
		return
	}

	_ = jsonwriter.Write(w, map[string]string{"authorizationUrl": authURL})
}

// refreshBody is the refresh request
type refreshBody struct {
	RealmID string `json:"realmId"`
}

// RefreshHandler handles POST /oauth/refresh. The origin is checked before
// the secret-bearing upstream exchange runs.
func (h *Handlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteErrorKind(w, http.StatusMethodNotAllowed, string(broker.KindMalformedRequest))
		return
	}

	if err := h.origins.Authorize(r.Header.Get("Origin")); err != nil {
		writeKind(w, broker.KindInvalidOrigin)
		return
	}

	var body refreshBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonwriter.WriteErrorKind(w, http.StatusBadRequest, string(broker.KindMalformedRequest))
		return
	}

	result, err := h.broker.Refresh(r.Context(), body.RealmID)
	if err != nil {
		writeBrokerError(w, err)
		return
	}

	response := connectedResponse{
		Status:  "connected",
		RealmID: result.Realm,
	}
	if !result.ExpiresAt.IsZero() {
		expiresAt := result.ExpiresAt
		response.ExpiresAt = &expiresAt
	}
	_ = jsonwriter.Write(w, response)
}

// parseCallbackBody accepts JSON or form-encoded callbacks
func parseCallbackBody(r *http.Request) (callbackBody, bool) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil && contentType != "" {
		return callbackBody{}, false
	}

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return callbackBody{}, false
		}
		return callbackBody{
			Code:    r.PostFormValue("code"),
			State:   r.PostFormValue("state"),
			RealmID: r.PostFormValue("realmId"),
		}, true
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") || contentType == "":
		var body callbackBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return callbackBody{}, false
		}
		return body, true
	default:
		return callbackBody{}, false
	}
}

// writeBrokerError maps a broker failure onto the error contract. The kind
// is the only detail that crosses the wire.
func writeBrokerError(w http.ResponseWriter, err error) {
	writeKind(w, broker.KindOf(err))
}

func writeKind(w http.ResponseWriter, kind broker.Kind) {
	log.LogWarnWithFields("server", "Request failed", map[string]any{
		"kind": string(kind),
	})
	jsonwriter.WriteErrorKind(w, kindStatus(kind), string(kind))
}
