// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core    coreConf
	Logging logConf
	Listen  listenConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	Domain string
	Store  string
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// listenConf describes the Listen-configuration block.
type listenConf struct {
	Address string
}

// setupLogging configures logrus based on the Logging-configuration block.
func setupLogging(conf logConf) {
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

// parseConfig reads the TOML configuration and sets up logging.
func parseConfig(filename string) (conf tomlConfig, domain stanza.Address, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	setupLogging(conf.Logging)

	if conf.Core.Store == "" {
		err = fmt.Errorf("core.store is empty")
		return
	}

	if domain, err = stanza.ParseAddress(conf.Core.Domain); err != nil {
		return
	} else if domain != domain.Server() {
		err = fmt.Errorf("core.domain %q must only be a domain", conf.Core.Domain)
		return
	}

	if conf.Listen.Address == "" {
		conf.Listen.Address = "localhost:5280"
	}
	return
}
