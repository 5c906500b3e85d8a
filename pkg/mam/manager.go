// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mam

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/disco"
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

// Manager queries the archive of one connection's account. Multiple queries might be executed concurrently.
type Manager struct {
	conn  xmpp.Conn
	disco *disco.Manager

	timeoutMutex sync.Mutex
	extraTimeout time.Duration

	supportMutex   sync.Mutex
	supportChecked bool
	supported      bool
}

// NewManager for a connection. The disco.Manager is asked once if the server supports archive queries.
func NewManager(conn xmpp.Conn, dm *disco.Manager) *Manager {
	return &Manager{
		conn:  conn,
		disco: dm,
	}
}

// SetExtraTimeout extends the connection's reply timeout while waiting for a query's fin message, e.g., for
// large pages.
func (m *Manager) SetExtraTimeout(extra time.Duration) error {
	if extra < 0 {
		return fmt.Errorf("%w: extra timeout must not be negative", ErrInvalidArgument)
	}
	m.timeoutMutex.Lock()
	m.extraTimeout = extra
	m.timeoutMutex.Unlock()
	return nil
}

func (m *Manager) extra() time.Duration {
	m.timeoutMutex.Lock()
	defer m.timeoutMutex.Unlock()

	return m.extraTimeout
}

// IsSupportedByServer checks if the server advertises Message Archive Management. A definite answer is cached.
func (m *Manager) IsSupportedByServer() (bool, error) {
	m.supportMutex.Lock()
	defer m.supportMutex.Unlock()

	if m.supportChecked {
		return m.supported, nil
	}

	supported, err := m.disco.ServerSupportsFeature(Namespace)
	if err != nil {
		return false, err
	}

	m.supportChecked = true
	m.supported = supported
	return supported, nil
}

// checkSupport returns an ErrUnsupported unless the server supports archive queries.
func (m *Manager) checkSupport() error {
	if supported, err := m.IsSupportedByServer(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	} else if !supported {
		return ErrUnsupported
	}
	return nil
}

// QueryArchive requests the first page of the archive, as described by the QueryBuilder.
func (m *Manager) QueryArchive(qb *QueryBuilder) (*PageResult, error) {
	q, err := qb.Build()
	if err != nil {
		return nil, err
	}

	return m.Query(q)
}

// Query executes an already built Query.
func (m *Manager) Query(q Query) (*PageResult, error) {
	if err := m.checkSupport(); err != nil {
		return nil, err
	}

	return m.await(q, m.extra())
}

// PageNext requests the up to count messages following a previous page. ErrNoMoreResults is returned if the
// previous page has no continuation Token.
func (m *Manager) PageNext(prev *PageResult, count int) (*PageResult, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: no previous page", ErrInvalidArgument)
	}

	last := prev.Continuation()
	if last.IsZero() {
		return nil, ErrNoMoreResults
	}

	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, is %d", ErrInvalidArgument, count)
	}

	return m.Page(prev, rsm.NewPageSet(count, last, rsm.After))
}

// Page requests an arbitrary page of a previous page's query. The query's Filter is reused.
func (m *Manager) Page(prev *PageResult, set *rsm.Set) (*PageResult, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: no previous page", ErrInvalidArgument)
	}
	if set == nil {
		return nil, fmt.Errorf("%w: no page request", ErrInvalidArgument)
	}
	if err := set.CheckValid(); err != nil {
		return nil, invalidArgument(err)
	}

	page := *set
	return m.Query(prev.Query.withPage(&page))
}

// resultFilter accepts result messages of one query, sent by the own archive.
func (m *Manager) resultFilter(queryID string) xmpp.Filter {
	return xmpp.And(
		xmpp.MessageExtensionFilter(ResultElement, Namespace),
		m.archiveSenderFilter(),
		xmpp.FilterFunc(func(s stanza.Stanza) bool {
			re, ok := s.(*stanza.Message).Extension(ResultElement, Namespace).(*ResultExtension)
			return ok && re.QueryID == queryID
		}))
}

// finFilter accepts the fin message of one query, sent by the own archive.
func (m *Manager) finFilter(queryID string) xmpp.Filter {
	return xmpp.And(
		xmpp.MessageExtensionFilter(FinElement, Namespace),
		m.archiveSenderFilter(),
		xmpp.FilterFunc(func(s stanza.Stanza) bool {
			fe, ok := s.(*stanza.Message).Extension(FinElement, Namespace).(*FinExtension)
			return ok && fe.QueryID == queryID
		}))
}

// archiveSenderFilter accepts stanzas from the own bare address or its server. Otherwise, other entities could
// inject messages into the archive's results.
func (m *Manager) archiveSenderFilter() xmpp.Filter {
	local := m.conn.LocalAddress()
	return xmpp.FilterFunc(func(s stanza.Stanza) bool {
		from := s.Sender()
		return from.IsZero() || from == local.Bare() || from == local.Server()
	})
}

// await sends a Query and collects its results until the fin message arrives. Only results dispatched before the
// fin message are part of the PageResult. Both Collectors are registered before sending and are cancelled on
// each return path.
func (m *Manager) await(q Query, extraTimeout time.Duration) (*PageResult, error) {
	logger := log.WithField("query", q.id)

	resultCollector := m.conn.CreateCollector(m.resultFilter(q.id))
	defer resultCollector.Cancel()

	finCollector := m.conn.CreateCollector(m.finFilter(q.id))
	defer finCollector.Cancel()

	logger.WithField("page", q.page).Debug("Sending archive query")

	replyCollector, err := m.conn.CreateCollectorAndSend(q.iq())
	if err != nil {
		logger.WithError(err).Warn("Sending archive query errored")
		return nil, &TransportError{QueryID: q.id, Err: err}
	}
	defer replyCollector.Cancel()

	if _, err := replyCollector.NextResultOrErr(m.conn.ReplyTimeout()); err != nil {
		return nil, m.awaitError(q, resultCollector, err)
	}

	finMsg, err := finCollector.NextResult(m.conn.ReplyTimeout() + extraTimeout)
	if err != nil {
		return nil, m.awaitError(q, resultCollector, err)
	}

	fin, err := FinFrom(finMsg.(*stanza.Message))
	if err != nil {
		return nil, err
	}

	bound := finCollector.LastSeq()
	resultCollector.Cancel()

	pr := &PageResult{
		Results: make([]*ResultExtension, 0, resultCollector.CollectedCount()),
		Fin:     fin,
		Query:   q,
	}
	for s := resultCollector.PollBefore(bound); s != nil; s = resultCollector.PollBefore(bound) {
		res, err := ResultFrom(s.(*stanza.Message))
		if err != nil {
			logger.WithError(err).Warn("Dropping invalid archive result")
			continue
		}
		pr.Results = append(pr.Results, res)
	}

	logger.WithFields(log.Fields{
		"results":      len(pr.Results),
		"continuation": pr.Continuation(),
		"complete":     fin.Complete,
	}).Info("Archive query finished")

	return pr, nil
}

// awaitError converts a Collector's error while waiting for a Query's responses.
func (m *Manager) awaitError(q Query, resultCollector *xmpp.Collector, err error) error {
	logger := log.WithField("query", q.id).WithError(err)

	var stanzaErr *xmpp.StanzaError
	switch {
	case errors.As(err, &stanzaErr):
		logger.Info("Archive query was rejected")
		if stanzaErr.Condition == "feature-not-implemented" || stanzaErr.Condition == "service-unavailable" {
			return fmt.Errorf("%w: %v", ErrUnsupported, stanzaErr)
		}
		return stanzaErr

	case errors.Is(err, xmpp.ErrNoResponse):
		observed := resultCollector.CollectedCount()
		logger.WithField("observed", observed).Warn("Archive query timed out")
		return &TimeoutError{QueryID: q.id, Observed: observed}

	default:
		logger.Warn("Waiting for archive query errored")
		return &TransportError{QueryID: q.id, Err: err}
	}
}
