// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// mamctl queries a remote message archive and mirrors it locally.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/archive"
	"github.com/xmppkit/mam-go/pkg/disco"
	"github.com/xmppkit/mam-go/pkg/mam"
	"github.com/xmppkit/mam-go/pkg/stanza"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

// printUsage of mamctl and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s config.toml supported|query|sync|export|import:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s config.toml supported\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Checks if the server supports message archive queries.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s config.toml query [with [pages]]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the archived messages, optionally only those exchanged with an address.\n")
	_, _ = fmt.Fprintf(os.Stderr, "  At most the given number of pages is requested, defaulting to all.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s config.toml sync\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Mirrors the remote archive into the local store.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s config.toml export filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Writes the local store's archive as a compressed dump.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s config.toml import filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Reads a compressed dump into the local store.\n\n")

	os.Exit(1)
}

// connect to the configured server.
func connect(c config) (*xmpp.WebSocketConn, *mam.Manager) {
	conn, err := xmpp.DialWebSocket(c.endpoint, c.address)
	if err != nil {
		log.WithError(err).Fatal("Connecting to server errored")
	}
	conn.SetReplyTimeout(c.timeout)

	return conn, mam.NewManager(conn, disco.NewManager(conn))
}

// openStore of the local mirror.
func openStore(c config) *archive.Store {
	if c.storeDir == "" {
		log.Fatal("store.dir is empty")
	}

	store, err := archive.NewStore(c.storeDir)
	if err != nil {
		log.WithError(err).Fatal("Opening local store errored")
	}
	return store
}

func printPage(page *mam.PageResult) {
	for _, res := range page.Results {
		msg := res.Forwarded.Message
		fmt.Printf("%s  %s  %v -> %v: %s\n",
			stanza.FormatTime(res.Forwarded.Stamp), res.ID, msg.From, msg.To, msg.Body)
	}
}

// supported for the "supported" CLI option.
func supported(c config) {
	conn, m := connect(c)
	defer conn.Close()

	if ok, err := m.IsSupportedByServer(); err != nil {
		log.WithError(err).Fatal("Discovering server features errored")
	} else if ok {
		fmt.Println("supported")
	} else {
		fmt.Println("unsupported")
		os.Exit(2)
	}
}

// query for the "query" CLI option.
func query(c config, args []string) {
	if len(args) > 2 {
		printUsage()
	}

	qb := mam.Builder().Max(c.pageSize)
	if len(args) >= 1 {
		qb.With(args[0])
	}

	maxPages := -1
	if len(args) == 2 {
		if n, err := strconv.Atoi(args[1]); err != nil || n <= 0 {
			printUsage()
		} else {
			maxPages = n
		}
	}

	conn, m := connect(c)
	defer conn.Close()

	page, err := m.QueryArchive(qb)
	for pages := 1; err == nil; pages++ {
		printPage(page)

		if page.Complete() || pages == maxPages {
			break
		}
		page, err = m.PageNext(page, c.pageSize)
	}

	if err != nil && !errors.Is(err, mam.ErrNoMoreResults) {
		log.WithError(err).Fatal("Querying archive errored")
	}
}

// syncArchive for the "sync" CLI option.
func syncArchive(c config) {
	store := openStore(c)
	defer store.Close()

	conn, m := connect(c)
	defer conn.Close()

	syncer, err := archive.NewSyncer(m, store, c.address, c.pageSize)
	if err != nil {
		log.WithError(err).Fatal("Creating syncer errored")
	}

	if n, err := syncer.Sync(mam.Filter{}); err != nil {
		log.WithError(err).Fatal("Synchronizing archive errored")
	} else {
		fmt.Printf("synchronized %d messages\n", n)
	}
}

// exportDump for the "export" CLI option.
func exportDump(c config, args []string) {
	if len(args) != 1 {
		printUsage()
	}

	store := openStore(c)
	defer store.Close()

	f, err := os.Create(args[0])
	if err != nil {
		log.WithError(err).Fatal("Creating file errored")
	}

	if n, err := store.Export(c.address, f); err != nil {
		log.WithError(err).Fatal("Exporting archive errored")
	} else {
		fmt.Printf("exported %d messages\n", n)
	}

	if err := f.Close(); err != nil {
		log.WithError(err).Fatal("Closing file errored")
	}
}

// importDump for the "import" CLI option.
func importDump(c config, args []string) {
	if len(args) != 1 {
		printUsage()
	}

	store := openStore(c)
	defer store.Close()

	f, err := os.Open(args[0])
	if err != nil {
		log.WithError(err).Fatal("Opening file errored")
	}
	defer f.Close()

	if n, err := store.Import(f); err != nil {
		log.WithError(err).Fatal("Importing archive errored")
	} else {
		fmt.Printf("imported %d messages\n", n)
	}
}

func main() {
	if len(os.Args) < 3 {
		printUsage()
	}

	c, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	switch os.Args[2] {
	case "supported":
		supported(c)

	case "query":
		query(c, os.Args[3:])

	case "sync":
		syncArchive(c)

	case "export":
		exportDump(c, os.Args[3:])

	case "import":
		importDump(c, os.Args[3:])

	default:
		printUsage()
	}
}
