// Package router ties the routing table, neighbor registry, and UDP
// sockets into the dispatcher described by the spec: startup handshake,
// cooperative poll loop, per-message-type handling, and the valley-free
// export policy.
package router

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rhicks/simbgp/pkg/config"
	"github.com/rhicks/simbgp/pkg/ipv4"
	"github.com/rhicks/simbgp/pkg/neighbor"
	"github.com/rhicks/simbgp/pkg/rerrors"
	"github.com/rhicks/simbgp/pkg/rtable"
	"github.com/rhicks/simbgp/pkg/wire"
)

// Router owns every piece of mutable state for one AS border router: its
// table, its neighbors, and its logger. This replaces the reference
// implementation's lazy_static global Mutex<Router> with a single owned
// struct threaded explicitly through the dispatcher (spec §9's
// "cleaner rearchitecture").
type Router struct {
	asn      int
	table    *rtable.Table
	registry *neighbor.Registry
	logger   *logrus.Logger
	cfg      config.Operational
}

// New builds a Router for the given local ASN.
func New(asn int, registry *neighbor.Registry, logger *logrus.Logger, cfg config.Operational) *Router {
	return &Router{
		asn:      asn,
		table:    rtable.New(),
		registry: registry,
		logger:   logger,
		cfg:      cfg,
	}
}

// SetOperational updates the router's tunable knobs without restarting it,
// used by the config package's live-reload callback.
func (r *Router) SetOperational(cfg config.Operational) {
	r.cfg = cfg
}

// Table exposes the routing table read-only, for tests and diagnostics.
func (r *Router) Table() *rtable.Table {
	return r.table
}

// SendHandshakes implements the Initializing state: one handshake to every
// neighbor, sent once at startup.
func (r *Router) SendHandshakes() {
	for _, n := range r.registry.All() {
		r.send(n, wire.TypeHandshake, wire.HandshakePayload{})
	}
}

// Run is the Running state: the cooperative poll loop. It visits every
// neighbor socket in registry order, attempts a non-blocking receive, and
// processes at most one datagram per neighbor per sweep to completion
// before moving on. It returns when ctx is canceled (SIGINT/SIGTERM).
func (r *Router) Run(ctx context.Context) {
	buf := make([]byte, r.cfg.ReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		progressed := false
		for _, n := range r.registry.All() {
			n.Conn.SetReadDeadline(time.Now().Add(time.Millisecond))
			count, _, err := n.Conn.ReadFromUDP(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				continue
			}
			progressed = true
			r.handleDatagram(n, buf[:count])
			clear(buf)
		}

		if !progressed {
			time.Sleep(r.cfg.PollInterval)
		}
	}
}

func (r *Router) handleDatagram(from *neighbor.Neighbor, data []byte) {
	id := uuid.New()
	log := r.logger.WithFields(logrus.Fields{"msg_id": id, "peer": from.Address})

	env, err := wire.Decode(data)
	if err != nil {
		log.WithError(err).Warn("dropping malformed datagram")
		return
	}
	log = log.WithField("type", env.Type)

	switch env.Type {
	case wire.TypeHandshake:
		log.Debug("received handshake")
	case wire.TypeUpdate:
		r.handleUpdate(from, env, log)
	case wire.TypeWithdraw:
		r.handleWithdraw(from, env, log)
	case wire.TypeData:
		r.handleData(from, env, data, log)
	case wire.TypeDump:
		r.handleDump(from, env, log)
	default:
		log.Warn("dropping unknown message type")
	}
}

func (r *Router) send(to *neighbor.Neighbor, typ wire.Type, payload any) {
	env, err := wire.NewEnvelope(neighbor.LocalEndpoint(to.Address), to.Address, typ, payload)
	if err != nil {
		r.logger.WithError(err).WithField("peer", to.Address).Warn("failed to build outbound message")
		return
	}
	data, err := wire.Encode(env)
	if err != nil {
		r.logger.WithError(err).WithField("peer", to.Address).Warn("failed to encode outbound message")
		return
	}
	if _, err := to.Conn.WriteToUDP(data, to.RemoteAddr); err != nil {
		err = fmt.Errorf("router: %w: %v", rerrors.ErrSend, err)
		r.logger.WithError(err).WithFields(logrus.Fields{"peer": to.Address, "type": typ}).Warn("send failed")
	}
}

// exportTargets implements the valley-free control-plane export rule
// (spec §4.4): announcements from a customer go to every other neighbor;
// announcements from a peer or provider go only to customers.
func exportTargets(from neighbor.Relation) func(neighbor.Relation) bool {
	if from == neighbor.Customer {
		return func(neighbor.Relation) bool { return true }
	}
	return func(rel neighbor.Relation) bool { return rel == neighbor.Customer }
}

// exportControl forwards payload as typ to every neighbor the export
// policy allows, never back to the neighbor it came from.
func (r *Router) exportControl(from *neighbor.Neighbor, typ wire.Type, payload any) {
	allowed := exportTargets(from.Relation)
	for _, n := range r.registry.All() {
		if n.Address == from.Address {
			continue
		}
		if !allowed(n.Relation) {
			continue
		}
		r.send(n, typ, payload)
	}
}

func (r *Router) ipOf(addr string, log *logrus.Entry) (uint32, bool) {
	v, err := ipv4.ToUint32(addr)
	if err != nil {
		log.WithError(err).Warn("malformed address in message")
		return 0, false
	}
	return v, true
}
