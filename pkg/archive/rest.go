// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package archive

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// RestCountResponse is the response of a count request.
type RestCountResponse struct {
	Error string `json:"error,omitempty"`
	Owner string `json:"owner"`
	Count int    `json:"count"`
}

// RestAPI exposes a Store's administrative operations via HTTP.
type RestAPI struct {
	router *mux.Router
	store  *Store
}

// NewRestAPI registers its handlers on the router:
//
//	GET /archive/{owner}/count   counts the owner's archived messages
//	GET /archive/{owner}/export  downloads the owner's archive, see Store.Export
func NewRestAPI(router *mux.Router, store *Store) *RestAPI {
	ra := &RestAPI{
		router: router,
		store:  store,
	}

	ra.router.HandleFunc("/archive/{owner}/count", ra.handleCount).Methods(http.MethodGet)
	ra.router.HandleFunc("/archive/{owner}/export", ra.handleExport).Methods(http.MethodGet)

	return ra
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint.
func (ra *RestAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ra.router.ServeHTTP(w, r)
}

func (ra *RestAPI) owner(r *http.Request) (stanza.Address, error) {
	return stanza.ParseAddress(mux.Vars(r)["owner"])
}

// handleCount processes /archive/{owner}/count GET requests.
func (ra *RestAPI) handleCount(w http.ResponseWriter, r *http.Request) {
	var resp RestCountResponse

	if owner, err := ra.owner(r); err != nil {
		resp.Error = err.Error()
		w.WriteHeader(http.StatusBadRequest)
	} else if n, err := ra.store.Count(owner); err != nil {
		resp.Error = err.Error()
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		resp.Owner = owner.Bare().String()
		resp.Count = n
	}

	log.WithField("response", resp).Debug("Processing REST count request")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("Failed to write REST count response")
	}
}

// handleExport processes /archive/{owner}/export GET requests.
func (ra *RestAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	owner, err := ra.owner(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-xz")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", owner.Bare().String()+".cbor.xz"))

	if n, err := ra.store.Export(owner, w); err != nil {
		log.WithError(err).WithField("owner", owner.Bare()).Warn("Failed to write REST export response")
	} else {
		log.WithFields(log.Fields{
			"owner": owner.Bare(),
			"items": n,
		}).Info("Processed REST export request")
	}
}
