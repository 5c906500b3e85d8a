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
	Client  clientConf
	Store   storeConf
	Logging logConf
}

// clientConf describes the Client-configuration block.
type clientConf struct {
	Endpoint string
	Address  string
	Timeout  string
	PageSize int `toml:"page-size"`
}

// storeConf describes the Store-configuration block for the local mirror.
type storeConf struct {
	Dir string
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// config is the parsed tomlConfig.
type config struct {
	endpoint string
	address  stanza.Address
	timeout  time.Duration
	pageSize int
	storeDir string
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
func parseConfig(filename string) (c config, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	setupLogging(conf.Logging)

	if conf.Client.Endpoint == "" {
		err = fmt.Errorf("client.endpoint is empty")
		return
	}
	c.endpoint = conf.Client.Endpoint

	if c.address, err = stanza.ParseAddress(conf.Client.Address); err != nil {
		return
	}

	c.timeout = 10 * time.Second
	if conf.Client.Timeout != "" {
		if c.timeout, err = time.ParseDuration(conf.Client.Timeout); err != nil {
			return
		}
	}

	c.pageSize = conf.Client.PageSize
	if c.pageSize <= 0 {
		c.pageSize = 50
	}

	c.storeDir = conf.Store.Dir
	return
}
