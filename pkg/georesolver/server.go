package georesolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/miekg/dns"

	"github.com/formthefog/formation-sub001/pkg/flog"
	"github.com/formthefog/formation-sub001/pkg/metrics"
	"github.com/formthefog/formation-sub001/pkg/types"
)

// DefaultListenAddr is the standard authoritative DNS port.
const DefaultListenAddr = "0.0.0.0:53"

// ServerConfig configures the authoritative DNS listener.
type ServerConfig struct {
	ListenAddr string
	Upstream   []string // forwarding targets for out-of-zone queries
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	return c
}

// Server is Formation's Geo Resolver: an authoritative DNS responder
// fronting a Resolver, with upstream forwarding for queries outside its
// zones (spec.md §4.3).
type Server struct {
	resolver *Resolver
	cfg      ServerConfig

	mu        sync.Mutex
	running   bool
	udpServer *dns.Server
	tcpServer *dns.Server
}

// NewServer constructs a Server answering queries through resolver.
func NewServer(resolver *Resolver, cfg ServerConfig) *Server {
	return &Server{resolver: resolver, cfg: cfg.withDefaults()}
}

// Start launches the UDP and TCP listeners and blocks until ctx is
// canceled or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("georesolver: server already running")
	}
	s.running = true
	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleQuery)
	s.udpServer = &dns.Server{Addr: s.cfg.ListenAddr, Net: "udp", Handler: mux}
	s.tcpServer = &dns.Server{Addr: s.cfg.ListenAddr, Net: "tcp", Handler: mux}
	s.mu.Unlock()

	logger := flog.WithComponent("georesolver")
	logger.Info().Str("address", s.cfg.ListenAddr).Msg("starting geo resolver")

	errCh := make(chan error, 2)
	go func() { errCh <- s.udpServer.ListenAndServe() }()
	go func() { errCh <- s.tcpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		s.Stop()
		return fmt.Errorf("georesolver listener failed: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop shuts both listeners down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	var firstErr error
	if s.udpServer != nil {
		if err := s.udpServer.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) handleQuery(w dns.ResponseWriter, req *dns.Msg) {
	logger := flog.WithComponent("georesolver")
	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Authoritative = true

	if len(req.Question) == 0 {
		msg.Rcode = dns.RcodeFormatError
		w.WriteMsg(msg)
		return
	}
	q := req.Question[0]
	metrics.GRQueriesTotal.WithLabelValues(dns.TypeToString[q.Qtype]).Inc()

	client := clientSubnet(req, w)

	targets, ttl, err := s.resolver.Resolve(q.Name, client)
	switch {
	case err == nil:
		msg.Answer = toAnswers(q.Name, q.Qtype, targets, ttl)
		if len(msg.Answer) == 0 {
			msg.Rcode = dns.RcodeServerFailure
		}
	case errors.Is(err, ErrNXDomain):
		msg.Rcode = dns.RcodeNameError
	case errors.Is(err, ErrNotAuthoritative):
		s.forward(w, req)
		return
	case errors.Is(err, ErrUnavailable):
		logger.Warn().Err(err).Str("query", q.Name).Msg("replicated store unavailable, no cached answer")
		msg.Rcode = dns.RcodeServerFailure
	default:
		logger.Error().Err(err).Str("query", q.Name).Msg("resolve failed")
		msg.Rcode = dns.RcodeServerFailure
	}

	if err := w.WriteMsg(msg); err != nil {
		logger.Error().Err(err).Msg("failed to write dns response")
	}
}

// clientSubnet extracts the client's estimated address: the EDNS Client
// Subnet option when the query carries one (it reflects the downstream
// resolver's actual client, not the recursive resolver relaying the
// query), falling back to the UDP/TCP peer address otherwise
// (spec.md §4.3 "Inputs per query").
func clientSubnet(req *dns.Msg, w dns.ResponseWriter) netip.Addr {
	if opt := req.IsEdns0(); opt != nil {
		for _, o := range opt.Option {
			if subnet, ok := o.(*dns.EDNS0_SUBNET); ok {
				if addr, ok := netip.AddrFromSlice(subnet.Address); ok {
					return addr
				}
			}
		}
	}
	host, _, err := net.SplitHostPort(w.RemoteAddr().String())
	if err != nil {
		return netip.Addr{}
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}

func toAnswers(name string, qtype uint16, targets []types.DNSTarget, ttl uint32) []dns.RR {
	fqdn := dns.Fqdn(name)
	var rrs []dns.RR
	for _, t := range targets {
		switch {
		case qtype == dns.TypeA && t.IP != nil && t.IP.To4() != nil:
			rrs = append(rrs, &dns.A{
				Hdr: dns.RR_Header{Name: fqdn, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
				A:   t.IP.To4(),
			})
		case qtype == dns.TypeAAAA && t.IP != nil && t.IP.To4() == nil:
			rrs = append(rrs, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: fqdn, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ttl},
				AAAA: t.IP,
			})
		case qtype == dns.TypeCNAME && t.CNAME != "":
			rrs = append(rrs, &dns.CNAME{
				Hdr:    dns.RR_Header{Name: fqdn, Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: ttl},
				Target: dns.Fqdn(t.CNAME),
			})
		}
	}
	return rrs
}

// forward relays a query outside this resolver's zones to an upstream
// server (spec.md §4.3 step 1's "if absent and not our zone, forward").
func (s *Server) forward(w dns.ResponseWriter, req *dns.Msg) {
	logger := flog.WithComponent("georesolver")
	client := &dns.Client{Net: "udp"}
	for _, upstream := range s.cfg.Upstream {
		resp, _, err := client.Exchange(req, upstream)
		if err != nil {
			logger.Debug().Err(err).Str("upstream", upstream).Msg("upstream forward failed")
			continue
		}
		if err := w.WriteMsg(resp); err != nil {
			logger.Error().Err(err).Msg("failed to write forwarded response")
		}
		return
	}
	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Rcode = dns.RcodeServerFailure
	w.WriteMsg(msg)
}
