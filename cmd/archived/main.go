// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// archived is a message archive server. Clients connect via WebSocket to /ws, exchange messages and query their
// archive. The archive can be inspected via /archive/{owner}/count and /archive/{owner}/export.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/archive"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signal.Notify(signalSyn, os.Interrupt)
	<-signalSyn
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	conf, domain, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	store, err := archive.NewStore(conf.Core.Store)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store")
	}

	responder := archive.NewResponder(store, domain)
	wsServer := xmpp.NewWebSocketServer(domain, responder)
	responder.SetDeliverer(wsServer)

	router := mux.NewRouter()
	router.Handle("/ws", wsServer)
	archive.NewRestAPI(router, store)

	httpServer := &http.Server{
		Addr:    conf.Listen.Address,
		Handler: router,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server errored")
		}
	}()

	log.WithFields(log.Fields{
		"domain": domain,
		"listen": conf.Listen.Address,
	}).Info("Started archive server")

	waitSigint()
	log.Info("Shutting down..")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Shutting down HTTP server errored")
	}
	wsServer.Close()

	if err := store.Close(); err != nil {
		log.WithError(err).Warn("Closing store errored")
	}
}
