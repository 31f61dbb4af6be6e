// SPDX-FileCopyrightText: 2026 The llxmpp-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"github.com/gorilla/mux"

	"github.com/llxmpp/llxmpp-go/pkg/agent"
	"github.com/llxmpp/llxmpp-go/pkg/caps"
	"github.com/llxmpp/llxmpp-go/pkg/disco"
	"github.com/llxmpp/llxmpp-go/pkg/discovery"
	"github.com/llxmpp/llxmpp-go/pkg/presence"
	"github.com/llxmpp/llxmpp-go/pkg/service"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging  logConf
	Presence presenceConf
	Service  serviceConf
	Rest     restConf
	Ws       wsConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// presenceConf describes the local presence announced over mDNS.
type presenceConf struct {
	ServiceName string `toml:"service-name"`
	First       string `toml:"1st"`
	Last        string
	Nick        string
	EMail       string `toml:"email"`
	JID         string `toml:"jid"`
	Status      string
	Msg         string
}

// serviceConf describes the Service-configuration block.
type serviceConf struct {
	MinPort      int    `toml:"min-port"`
	MaxPort      int    `toml:"max-port"`
	ReplyTimeout string `toml:"reply-timeout"`
	CapsNode     string `toml:"caps-node"`
}

// restConf describes the optional RESTful agent.
type restConf struct {
	Listen string
}

// wsConf describes the optional WebSocket agent.
type wsConf struct {
	Listen string
}

// parseLogging applies the Logging block to logrus.
func parseLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parsePresence builds the local presence from the Presence block.
func parsePresence(conf presenceConf) (*presence.Presence, error) {
	if conf.ServiceName == "" {
		return nil, fmt.Errorf("presence.service-name is empty")
	}

	p := presence.New(conf.ServiceName)
	p.SetFirstName(conf.First)
	p.SetLastName(conf.Last)
	p.SetNick(conf.Nick)
	p.SetEMail(conf.EMail)
	p.SetJID(conf.JID)
	p.SetMsg(conf.Msg)
	p.SetStatus(presence.ParseMode(conf.Status))

	return p, nil
}

// parseService creates and starts the whole link-local service stack based
// on the given TOML configuration.
func parseService(filename string) (srv *service.Service, closers []func(), err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	parseLogging(conf.Logging)

	local, presenceErr := parsePresence(conf.Presence)
	if presenceErr != nil {
		err = presenceErr
		return
	}

	var opts []service.Option
	if conf.Service.MinPort != 0 && conf.Service.MaxPort != 0 {
		opts = append(opts, service.WithPortRange(conf.Service.MinPort, conf.Service.MaxPort))
	}
	if conf.Service.ReplyTimeout != "" {
		timeout, timeoutErr := time.ParseDuration(conf.Service.ReplyTimeout)
		if timeoutErr != nil {
			err = fmt.Errorf("parsing service.reply-timeout: %w", timeoutErr)
			return
		}
		opts = append(opts, service.WithReplyTimeout(timeout))
	}

	disc, discErr := discovery.NewZeroconf()
	if discErr != nil {
		err = discErr
		return
	}

	srv = service.New(local, disc, opts...)
	if err = srv.Start(); err != nil {
		return
	}

	// XEP-0030 / XEP-0115 advertisement
	discoMgr := disco.NewManager(srv)
	capsNode := conf.Service.CapsNode
	if capsNode == "" {
		capsNode = "https://github.com/llxmpp/llxmpp-go"
	}
	caps.NewAdvertiser(srv, discoMgr, capsNode)

	if conf.Rest.Listen != "" {
		restAgent := agent.NewRestAgent(mux.NewRouter(), srv)
		restServer := newHTTPServer(conf.Rest.Listen, restAgent)
		closers = append(closers, func() { _ = restServer.Close() })

		log.WithField("listen", conf.Rest.Listen).Info("Started RESTful agent")
	}

	if conf.Ws.Listen != "" {
		wsAgent, wsErr := agent.NewWebsocketAgent(conf.Ws.Listen, srv)
		if wsErr != nil {
			err = wsErr
			return
		}
		closers = append(closers, func() { _ = wsAgent.Close() })

		log.WithField("listen", wsAgent.Address()).Info("Started WebSocket agent")
	}

	return
}
