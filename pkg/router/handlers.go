package router

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rhicks/simbgp/pkg/ipv4"
	"github.com/rhicks/simbgp/pkg/neighbor"
	"github.com/rhicks/simbgp/pkg/rerrors"
	"github.com/rhicks/simbgp/pkg/rtable"
	"github.com/rhicks/simbgp/pkg/wire"
)

// handleUpdate applies an inbound update to the table (storing the path as
// received — spec §9 open question 1, resolved in favor of the spec's own
// literal reading of §4.4) and re-announces a copy with the local ASN
// prepended, stripped to {network, netmask, ASPath} (spec §9 open
// question 2).
func (r *Router) handleUpdate(from *neighbor.Neighbor, env wire.Envelope, log *logrus.Entry) {
	payload, err := wire.DecodeUpdate(env.Msg)
	if err != nil {
		log.WithError(err).Warn("dropping malformed update")
		return
	}

	network, ok := r.ipOf(payload.Network, log)
	if !ok {
		return
	}
	netmask, ok := r.ipOf(payload.Netmask, log)
	if !ok {
		return
	}
	peer, ok := r.ipOf(from.Address, log)
	if !ok {
		return
	}

	entry := rtable.Route{
		Peer:       peer,
		Network:    network,
		Netmask:    netmask,
		LocalPref:  payload.LocalPref,
		SelfOrigin: payload.SelfOrigin,
		ASPath:     append([]int(nil), payload.ASPath...),
		Origin:     rtable.ParseOrigin(payload.Origin),
	}
	r.table.Update(entry)
	log.WithFields(logrus.Fields{"network": payload.Network, "netmask": payload.Netmask}).Info("installed route")

	forwardPath := make([]int, 0, len(payload.ASPath)+1)
	forwardPath = append(forwardPath, r.asn)
	forwardPath = append(forwardPath, payload.ASPath...)

	out := wire.UpdatePayload{
		Network: payload.Network,
		Netmask: payload.Netmask,
		ASPath:  forwardPath,
	}
	r.exportControl(from, wire.TypeUpdate, out)
}

func (r *Router) handleWithdraw(from *neighbor.Neighbor, env wire.Envelope, log *logrus.Entry) {
	entries, err := wire.DecodeWithdraw(env.Msg)
	if err != nil {
		log.WithError(err).Warn("dropping malformed withdraw")
		return
	}

	peer, ok := r.ipOf(from.Address, log)
	if !ok {
		return
	}

	forwarded := make([]wire.WithdrawEntry, 0, len(entries))
	for _, e := range entries {
		network, ok := r.ipOf(e.Network, log)
		if !ok {
			continue
		}
		netmask, ok := r.ipOf(e.Netmask, log)
		if !ok {
			continue
		}
		r.table.Withdraw(network, netmask, peer)
		forwarded = append(forwarded, e)
		log.WithFields(logrus.Fields{"network": e.Network, "netmask": e.Netmask}).Info("withdrew route")
	}

	if len(forwarded) > 0 {
		r.exportControl(from, wire.TypeWithdraw, forwarded)
	}
}

// handleData runs best_route on the envelope's destination and either
// forwards the packet verbatim or emits "no route" back to the sender,
// per the data-plane export rule (spec §4.4): forwarding is allowed iff
// the sender is a customer or the next hop is a customer. "Verbatim" means
// src/dst pass through unchanged — only the destination socket changes —
// so raw carries the original datagram bytes to relay as-is.
func (r *Router) handleData(from *neighbor.Neighbor, env wire.Envelope, raw []byte, log *logrus.Entry) {
	dst, ok := r.ipOf(env.Dst, log)
	if !ok {
		r.send(from, wire.TypeNoRoute, wire.NoRoutePayload{})
		return
	}

	best, err := r.table.BestRoute(dst)
	if err != nil {
		if !errors.Is(err, rtable.ErrNoRoute) {
			log.WithError(err).Warn("best route lookup failed")
		}
		r.send(from, wire.TypeNoRoute, wire.NoRoutePayload{})
		return
	}

	nextHop, ok := r.registry.Get(ipv4.ToString(best.Peer))
	if !ok {
		log.WithField("next_hop", ipv4.ToString(best.Peer)).Warn("best route points at an unknown neighbor")
		r.send(from, wire.TypeNoRoute, wire.NoRoutePayload{})
		return
	}

	if from.Relation != neighbor.Customer && nextHop.Relation != neighbor.Customer {
		r.send(from, wire.TypeNoRoute, wire.NoRoutePayload{})
		return
	}

	if _, err := nextHop.Conn.WriteToUDP(raw, nextHop.RemoteAddr); err != nil {
		err = fmt.Errorf("router: %w: %v", rerrors.ErrSend, err)
		log.WithError(err).WithField("next_hop", nextHop.Address).Warn("send failed")
	}
}

func (r *Router) handleDump(from *neighbor.Neighbor, _ wire.Envelope, log *logrus.Entry) {
	rows := r.table.Rows()
	out := make([]wire.TableRow, len(rows))
	for i, row := range rows {
		out[i] = wire.TableRow{
			Network:    ipv4.ToString(row.Network),
			Netmask:    ipv4.ToString(row.Netmask),
			Peer:       ipv4.ToString(row.Peer),
			LocalPref:  row.LocalPref,
			ASPath:     row.ASPath,
			Origin:     row.Origin.String(),
			SelfOrigin: row.SelfOrigin,
		}
	}
	log.WithField("rows", len(out)).Debug("responding to dump")
	r.send(from, wire.TypeTable, out)
}
