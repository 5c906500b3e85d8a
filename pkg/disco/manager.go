// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package disco

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xmppkit/mam-go/pkg/stanza"
	"github.com/xmppkit/mam-go/pkg/xmpp"
)

// Manager queries and caches the disco#info of remote entities over one connection.
type Manager struct {
	conn xmpp.Conn

	mutex sync.Mutex
	cache map[stanza.Address]*Info
}

// NewManager for a connection.
func NewManager(conn xmpp.Conn) *Manager {
	return &Manager{
		conn:  conn,
		cache: make(map[stanza.Address]*Info),
	}
}

// DiscoverInfo of an entity. Successful responses are cached; errors are not.
func (m *Manager) DiscoverInfo(addr stanza.Address) (*Info, error) {
	m.mutex.Lock()
	info, cached := m.cache[addr]
	m.mutex.Unlock()

	if cached {
		return info, nil
	}

	logger := log.WithField("entity", addr)

	c, err := m.conn.CreateCollectorAndSend(stanza.NewIQ(stanza.IQGet, addr, &Info{}))
	if err != nil {
		logger.WithError(err).Warn("Sending disco#info request errored")
		return nil, err
	}
	defer c.Cancel()

	reply, err := c.NextResultOrErr(m.conn.ReplyTimeout())
	if err != nil {
		logger.WithError(err).Info("Requesting disco#info errored")
		return nil, err
	}

	info, ok := reply.(*stanza.IQ).Payload.(*Info)
	if !ok {
		info = &Info{}
	}

	m.mutex.Lock()
	m.cache[addr] = info
	m.mutex.Unlock()

	logger.WithField("features", info.Features).Debug("Discovered entity's features")
	return info, nil
}

// SupportsFeature checks if an entity advertises a feature.
func (m *Manager) SupportsFeature(addr stanza.Address, feature string) (bool, error) {
	info, err := m.DiscoverInfo(addr)
	if err != nil {
		return false, err
	}
	return info.HasFeature(feature), nil
}

// ServerSupportsFeature checks if the connection's server advertises a feature.
func (m *Manager) ServerSupportsFeature(feature string) (bool, error) {
	return m.SupportsFeature(xmpp.ServerAddress(m.conn), feature)
}

// Forget a cached entity, e.g., after it was restarted.
func (m *Manager) Forget(addr stanza.Address) {
	m.mutex.Lock()
	delete(m.cache, addr)
	m.mutex.Unlock()
}

// Responder answers disco#info requests with a static Info. It might be used as a part of a server's Handler.
type Responder struct {
	Info Info
}

// NewResponder for a server identity and its features.
func NewResponder(identity Identity, features ...string) *Responder {
	return &Responder{
		Info: Info{
			Identities: []Identity{identity},
			Features:   append([]string{InfoNamespace}, features...),
		},
	}
}

// Handle an IQ if it is a disco#info request. The return value indicates if the IQ was handled.
func (r *Responder) Handle(sess xmpp.Session, iq *stanza.IQ) bool {
	if _, ok := iq.Payload.(*Info); !ok || iq.Type != stanza.IQGet {
		return false
	}

	info := r.Info
	if err := sess.Send(stanza.NewResultReply(iq, &info)); err != nil {
		log.WithError(err).WithField("session", sess.RemoteAddress()).Warn("Sending disco#info reply errored")
	}
	return true
}
