// Package fingerprint builds HTTP transports whose TLS ClientHello mimics a
// mainstream browser.
package fingerprint

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile maps a config value to a Profile. Empty means chrome.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProfileChrome, nil
	}
	if p == ProfileGo {
		return p, nil
	}
	if _, err := helloID(p); err != nil {
		return "", err
	}
	return p, nil
}

// Options tunes the transport.
type Options struct {
	// Proxy selects the proxy per request; nil means direct.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate verification. Tests only.
	InsecureSkipVerify bool
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedNoALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

// Transport returns an *http.Transport whose TLS handshake uses the given
// profile. ProfileGo keeps crypto/tls.
//
// The uTLS connection is not a *tls.Conn, so net/http cannot speak HTTP/2
// over it; the ClientHello only offers http/1.1 in ALPN.
//
// net/http would run its own crypto/tls handshake inside a CONNECT tunnel,
// so for https targets the uTLS dialer reaches the proxy itself. Plain http
// targets are still forwarded by net/http.
func Transport(p Profile, opts Options) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = opts.Proxy

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	id, err := helloID(p)
	if err != nil {
		return nil, err
	}

	// Randomized hellos have no fixed spec and already omit ALPN.
	custom := p != ProfileRandom
	if custom {
		if _, err := utls.UTLSIdToSpec(id); err != nil {
			return nil, fmt.Errorf("fingerprint: %s spec: %w", p, err)
		}
	}

	if opts.Proxy != nil {
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" {
				return nil, nil
			}
			return opts.Proxy(req)
		}
		// Tunnelled connections are pooled by target address only, and a
		// reused one would ignore the proxy chosen for the next request.
		transport.DisableKeepAlives = true
	}

	dial := dialFunc(transport.DialContext)
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dialTarget(ctx, dial, opts.Proxy, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		cfg := &utls.Config{ServerName: host, InsecureSkipVerify: opts.InsecureSkipVerify}

		var uConn *utls.UConn
		if !custom {
			uConn = utls.UClient(tcpConn, cfg, id)
		} else {
			// ApplyPreset mutates the extensions, so each dial builds a fresh spec.
			spec, err := utls.UTLSIdToSpec(id)
			if err != nil {
				_ = tcpConn.Close()
				return nil, fmt.Errorf("fingerprint: %s spec: %w", p, err)
			}
			spec = http11Only(spec)
			uConn = utls.UClient(tcpConn, cfg, utls.HelloCustom)
			if err := uConn.ApplyPreset(&spec); err != nil {
				_ = tcpConn.Close()
				return nil, fmt.Errorf("fingerprint: apply %s preset: %w", p, err)
			}
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake failed: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func (f dialFunc) Dial(network, addr string) (net.Conn, error) {
	return f(context.Background(), network, addr)
}

func (f dialFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}

// dialTarget opens a connection to addr, through the proxy selectProxy picks
// for it when there is one. The lookup request carries ctx, so selectors that
// read request-scoped values see the caller's.
func dialTarget(ctx context.Context, dial dialFunc, selectProxy func(*http.Request) (*url.URL, error), network, addr string) (net.Conn, error) {
	if selectProxy == nil {
		return dial(ctx, network, addr)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodConnect, "https://"+addr, nil)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}
	proxyURL, err := selectProxy(req)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: select proxy: %w", err)
	}
	if proxyURL == nil {
		return dial(ctx, network, addr)
	}

	switch strings.ToLower(proxyURL.Scheme) {
	case "http", "https":
		return connectTunnel(ctx, dial, proxyURL, addr)
	case "socks5", "socks5h":
		d, err := proxy.FromURL(proxyURL, dial)
		if err != nil {
			return nil, fmt.Errorf("fingerprint: socks proxy %s: %w", proxyURL.Redacted(), err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("fingerprint: socks proxy %s cannot dial with a context", proxyURL.Redacted())
		}
		conn, err := cd.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("fingerprint: socks proxy %s: %w", proxyURL.Redacted(), err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("fingerprint: unsupported proxy scheme %q", proxyURL.Scheme)
	}
}

// connectTunnel asks an HTTP proxy to CONNECT to addr and returns the raw
// tunnel, ready for the TLS handshake with the target.
func connectTunnel(ctx context.Context, dial dialFunc, proxyURL *url.URL, addr string) (net.Conn, error) {
	proxyAddr := proxyURL.Host
	if proxyURL.Port() == "" {
		port := "80"
		if strings.EqualFold(proxyURL.Scheme, "https") {
			port = "443"
		}
		proxyAddr = net.JoinHostPort(proxyURL.Hostname(), port)
	}

	conn, err := dial(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: dial proxy %s: %w", proxyURL.Redacted(), err)
	}
	if strings.EqualFold(proxyURL.Scheme, "https") {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: proxyURL.Hostname()})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("fingerprint: proxy %s handshake: %w", proxyURL.Redacted(), err)
		}
		conn = tlsConn
	}

	// The tunnel setup must not outlive ctx; the deadline is cleared once
	// the proxy has answered.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := proxyURL.User; u != nil {
		pass, _ := u.Password()
		creds := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		connectReq.Header.Set("Proxy-Authorization", "Basic "+creds)
	}
	if err := connectReq.Write(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("fingerprint: proxy %s connect: %w", proxyURL.Redacted(), err)
	}

	// CONNECT replies have no body, so the reader buffers nothing past the
	// header and the tunnel can be handed over as is.
	resp, err := http.ReadResponse(bufio.NewReader(conn), connectReq)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("fingerprint: proxy %s connect: %w", proxyURL.Redacted(), err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("fingerprint: proxy %s refused tunnel to %s: %s", proxyURL.Redacted(), addr, resp.Status)
	}
	if !stop() {
		return nil, fmt.Errorf("fingerprint: proxy %s connect: %w", proxyURL.Redacted(), ctx.Err())
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

// http11Only narrows every ALPN offer in spec to http/1.1.
func http11Only(spec utls.ClientHelloSpec) utls.ClientHelloSpec {
	for i, ext := range spec.Extensions {
		if _, ok := ext.(*utls.ALPNExtension); ok {
			spec.Extensions[i] = &utls.ALPNExtension{AlpnProtocols: []string{"http/1.1"}}
		}
	}
	return spec
}
