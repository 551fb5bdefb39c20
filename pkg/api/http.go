// Package api exposes the chat facade over a local HTTP surface so
// out-of-process UI collaborators can drive the store. It is not a sync
// protocol; the single-writer assumption of pkg/chat still holds.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatdb/pkg/chat"
	"chatdb/pkg/config"
	"chatdb/pkg/settings"
)

// Deps carries the collaborators the HTTP surface wraps.
type Deps struct {
	Chat      *chat.Chat
	Settings  *settings.Manager
	RateLimit config.RateLimitConfig
	Version   string
}

// Handler builds the router:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /docs/
//	GET    /v1/conversations
//	POST   /v1/conversations
//	DELETE /v1/conversations/{id}
//	GET    /v1/conversations/{id}/messages
//	POST   /v1/messages
//	DELETE /v1/messages/{id}            (suffix truncation)
//	PUT    /v1/messages/{id}
//	PUT    /v1/messages/{id}/reasoning
//	GET    /v1/settings
//	PUT    /v1/settings
//	POST   /v1/settings/reset
func Handler(d Deps) http.Handler {
	h := &handlers{deps: d}
	r := mux.NewRouter()
	r.Use(requestLog)
	r.Use(rateLimit(d.RateLimit))

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.WrapHandler)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations", h.createConversation).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}", h.deleteConversation).Methods(http.MethodDelete)
	v1.HandleFunc("/conversations/{id}/messages", h.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/messages", h.appendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{id}", h.truncateFrom).Methods(http.MethodDelete)
	v1.HandleFunc("/messages/{id}", h.updateMessage).Methods(http.MethodPut)
	v1.HandleFunc("/messages/{id}/reasoning", h.updateReasoning).Methods(http.MethodPut)
	v1.HandleFunc("/settings", h.getSettings).Methods(http.MethodGet)
	v1.HandleFunc("/settings", h.putSettings).Methods(http.MethodPut)
	v1.HandleFunc("/settings/reset", h.resetSettings).Methods(http.MethodPost)

	return r
}
