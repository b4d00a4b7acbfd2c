package router

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rhicks/simbgp/pkg/config"
	"github.com/rhicks/simbgp/pkg/neighbor"
	"github.com/rhicks/simbgp/pkg/wire"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// listener is a standalone UDP socket standing in for a neighbor's own
// receive side, so tests can observe what the router actually sends.
type listener struct {
	conn *net.UDPConn
	port int
}

func newListener(t *testing.T) *listener {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &listener{conn: conn, port: conn.LocalAddr().(*net.UDPAddr).Port}
}

func (l *listener) recv(t *testing.T, timeout time.Duration) (wire.Envelope, bool) {
	t.Helper()
	l.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 2048)
	n, _, err := l.conn.ReadFromUDP(buf)
	if err != nil {
		return wire.Envelope{}, false
	}
	env, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return env, true
}

func setupRouter(t *testing.T, asn int) (*Router, *neighbor.Registry) {
	t.Helper()
	reg := neighbor.NewRegistry()
	t.Cleanup(reg.Close)
	r := New(asn, reg, testLogger(), config.Defaults())
	return r, reg
}

func TestPolicyCustomerUpdateGoesToEveryoneElse(t *testing.T) {
	r, reg := setupRouter(t, 7)

	lA, lB, lC := newListener(t), newListener(t), newListener(t)
	_, _ = reg.Add("192.168.0.2", lA.port, neighbor.Peer)
	_, _ = reg.Add("172.16.0.2", lB.port, neighbor.Peer)
	nC, _ := reg.Add("10.0.0.2", lC.port, neighbor.Customer)

	update := inboundUpdate(t, "44.0.0.0", "255.255.255.0", 100, true, []int{1}, "IGP")
	r.handleDatagram(nC, update)

	if _, ok := lA.recv(t, 50*time.Millisecond); !ok {
		t.Fatal("expected A (peer) to receive the update forwarded from customer C")
	}
	if _, ok := lB.recv(t, 50*time.Millisecond); !ok {
		t.Fatal("expected B (peer) to receive the update forwarded from customer C")
	}
}

func TestPolicyPeerUpdateOnlyToCustomers(t *testing.T) {
	r, reg := setupRouter(t, 7)

	lA, lB, lC := newListener(t), newListener(t), newListener(t)
	nA, _ := reg.Add("192.168.0.2", lA.port, neighbor.Peer)
	_, _ = reg.Add("172.16.0.2", lB.port, neighbor.Peer)
	_, _ = reg.Add("10.0.0.2", lC.port, neighbor.Customer)

	update := inboundUpdate(t, "44.0.0.0", "255.255.255.0", 100, true, []int{1}, "IGP")
	r.handleDatagram(nA, update)

	if _, ok := lB.recv(t, 50*time.Millisecond); ok {
		t.Fatal("peer A's update must not be re-announced to peer B")
	}
	if _, ok := lC.recv(t, 50*time.Millisecond); !ok {
		t.Fatal("peer A's update must be re-announced to customer C")
	}
}

func TestDataNoRouteReply(t *testing.T) {
	r, reg := setupRouter(t, 7)

	lA := newListener(t)
	nA, _ := reg.Add("192.168.0.2", lA.port, neighbor.Customer)

	env, err := wire.NewEnvelope("192.168.0.2", "8.8.8.8", wire.TypeData, map[string]string{"hello": "world"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := wire.Encode(env)
	if err != nil {
		t.Fatal(err)
	}
	r.handleDatagram(nA, data)

	got, ok := lA.recv(t, 50*time.Millisecond)
	if !ok {
		t.Fatal("expected a no route reply")
	}
	if got.Type != wire.TypeNoRoute {
		t.Fatalf("got type %v, want no route", got.Type)
	}
}

func TestDataForwardsWhenCustomerInvolved(t *testing.T) {
	r, reg := setupRouter(t, 7)

	lCust, lProv := newListener(t), newListener(t)
	nCust, _ := reg.Add("192.168.0.2", lCust.port, neighbor.Customer)
	nProv, _ := reg.Add("172.16.0.2", lProv.port, neighbor.Provider)

	// Install a route to 44.0.0.0/24 via the provider.
	updateFromProv := inboundUpdate(t, "44.0.0.0", "255.255.255.0", 100, false, []int{9}, "IGP")
	r.handleDatagram(nProv, updateFromProv)
	// Drain the re-announcement the provider's update triggers toward the customer.
	lCust.recv(t, 50*time.Millisecond)

	env, err := wire.NewEnvelope("192.168.0.2", "44.0.0.5", wire.TypeData, map[string]string{"hello": "world"})
	if err != nil {
		t.Fatal(err)
	}
	data, err := wire.Encode(env)
	if err != nil {
		t.Fatal(err)
	}
	r.handleDatagram(nCust, data)

	got, ok := lProv.recv(t, 50*time.Millisecond)
	if !ok {
		t.Fatal("expected the data packet forwarded to the provider next hop")
	}
	if got.Type != wire.TypeData {
		t.Fatalf("got type %v, want data", got.Type)
	}
}

func TestDumpRespondsWithTable(t *testing.T) {
	r, reg := setupRouter(t, 7)
	lA := newListener(t)
	nA, _ := reg.Add("192.168.0.2", lA.port, neighbor.Customer)

	r.handleDatagram(nA, inboundUpdate(t, "44.0.0.0", "255.255.255.0", 100, true, []int{1}, "IGP"))
	lA.recv(t, 50*time.Millisecond) // drain the self-triggered export, if any reaches A (it won't, A is the source)

	env, err := wire.NewEnvelope("192.168.0.2", "192.168.0.1", wire.TypeDump, wire.DumpPayload{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := wire.Encode(env)
	if err != nil {
		t.Fatal(err)
	}
	r.handleDatagram(nA, data)

	got, ok := lA.recv(t, 50*time.Millisecond)
	if !ok {
		t.Fatal("expected a table response")
	}
	if got.Type != wire.TypeTable {
		t.Fatalf("got type %v, want table", got.Type)
	}
	var rows []wire.TableRow
	if err := json.Unmarshal(got.Msg, &rows); err != nil {
		t.Fatalf("unmarshal table rows: %v", err)
	}
	if len(rows) != 1 || rows[0].Network != "44.0.0.0" {
		t.Fatalf("got %+v", rows)
	}
}

func inboundUpdate(t *testing.T, network, netmask string, localpref uint32, selfOrigin bool, asPath []int, origin string) []byte {
	t.Helper()
	payload := wire.UpdatePayload{
		Network:    network,
		Netmask:    netmask,
		LocalPref:  localpref,
		ASPath:     asPath,
		Origin:     origin,
		SelfOrigin: selfOrigin,
	}
	env, err := wire.NewEnvelope("from", "to", wire.TypeUpdate, payload)
	if err != nil {
		t.Fatal(err)
	}
	data, err := wire.Encode(env)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
