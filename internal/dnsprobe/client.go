// Package dnsprobe issues protocol-level DNS queries against an explicit
// resolver address, bypassing the host resolver configuration.
package dnsprobe

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/miekg/dns"
	"go.uber.org/multierr"
)

// DefaultPort is used when the server address carries no port.
const DefaultPort = "53"

// DefaultTimeout bounds a single query exchange.
const DefaultTimeout = 5 * time.Second

var (
	// ErrResolution matches every failure returned by Resolve.
	ErrResolution = errors.New("dns resolution failed")

	// ErrNonExistentDomain is returned for an NXDOMAIN response.
	ErrNonExistentDomain = errors.New("NXDOMAIN")

	// ErrBadRcode is returned for any other non-success response code.
	ErrBadRcode = errors.New("unexpected response code")

	// ErrNoRecords is returned when no A or AAAA record was answered.
	ErrNoRecords = errors.New("no A or AAAA records")
)

// ResolutionError describes a failed lookup of Host against Server.
type ResolutionError struct {
	Host   string
	Server string
	Err    error
}

func (e *ResolutionError) Error() string {
	return "resolve " + e.Host + " via " + e.Server + ": " + e.Err.Error()
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is makes every ResolutionError match ErrResolution.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution //nolint:errorlint // sentinel identity
}

// Resolver looks up the addresses of hostname by querying server directly.
type Resolver interface {
	Resolve(ctx context.Context, hostname, server string) ([]string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-exchange timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// Client is a Resolver backed by github.com/miekg/dns.
type Client struct {
	timeout time.Duration
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{timeout: DefaultTimeout}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Resolve sends A and AAAA questions for hostname to server and returns
// every address answered. It succeeds when either question yields records.
func (c *Client) Resolve(ctx context.Context, hostname, server string) ([]string, error) {
	addr := ServerAddress(server)

	v4, errV4 := c.query(ctx, hostname, addr, dns.TypeA)
	v6, errV6 := c.query(ctx, hostname, addr, dns.TypeAAAA)

	addrs := append(v4, v6...) //nolint:gocritic // v4 is owned here
	if len(addrs) > 0 {
		return addrs, nil
	}

	err := multierr.Combine(errV4, errV6)
	if err == nil {
		err = ErrNoRecords
	}

	return nil, &ResolutionError{Host: hostname, Server: addr, Err: err}
}

// ServerAddress joins server with DefaultPort unless it already has a port.
func ServerAddress(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}

	return net.JoinHostPort(server, DefaultPort)
}

func (c *Client) query(ctx context.Context, hostname, addr string, qtype uint16) ([]string, error) {
	msg := &dns.Msg{}
	msg.SetQuestion(dns.Fqdn(hostname), qtype)
	msg.RecursionDesired = true
	msg.Id = dns.Id()

	udp := &dns.Client{Net: "udp", Timeout: c.timeout}

	response, _, err := udp.ExchangeContext(ctx, msg, addr)
	if err == nil && response.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: c.timeout}
		response, _, err = tcp.ExchangeContext(ctx, msg, addr)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "%s query failed", dns.TypeToString[qtype])
	}

	if response.Rcode == dns.RcodeNameError {
		return nil, ErrNonExistentDomain
	}

	if response.Rcode != dns.RcodeSuccess {
		return nil, errors.Wrapf(ErrBadRcode, "%s query returned %s",
			dns.TypeToString[qtype], dns.RcodeToString[response.Rcode])
	}

	return extractAddresses(response), nil
}

func extractAddresses(msg *dns.Msg) []string {
	var addrs []string

	for _, rr := range msg.Answer {
		switch record := rr.(type) {
		case *dns.A:
			addrs = append(addrs, record.A.String())
		case *dns.AAAA:
			addrs = append(addrs, record.AAAA.String())
		}
	}

	return addrs
}
