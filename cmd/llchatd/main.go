// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"net/http"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

// newHTTPServer starts an HTTP server for an agent in the background.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Agent HTTP server failed")
		}
	}()

	return server
}

// watchConfig reapplies the Presence block whenever the configuration file
// changes, so nick or status edits reannounce without a restart.
func watchConfig(filename string, apply func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filename); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					log.WithField("file", event.Name).Info("Configuration changed, updating presence")
					apply()
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Configuration watcher failed")
			}
		}
	}()

	return watcher, nil
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}
	configFile := os.Args[1]

	srv, closers, err := parseService(configFile)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to start link-local service")
	}

	watcher, err := watchConfig(configFile, func() {
		var conf tomlConfig
		if _, err := toml.DecodeFile(configFile, &conf); err != nil {
			log.WithError(err).Warn("Failed to re-read configuration")
			return
		}

		update, err := parsePresence(conf.Presence)
		if err != nil {
			log.WithError(err).Warn("Failed to parse updated presence")
			return
		}

		if err := srv.UpdatePresence(update); err != nil {
			log.WithError(err).Warn("Failed to reannounce updated presence")
		}
	})
	if err != nil {
		log.WithError(err).Warn("Configuration watching is unavailable")
	} else {
		defer watcher.Close()
	}

	waitSigint()
	log.Info("Shutting down..")

	for _, closer := range closers {
		closer()
	}

	if err := srv.Close(); err != nil {
		log.WithError(err).Warn("Service teardown reported errors")
	}
}
