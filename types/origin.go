// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package types

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Origin is a normalized scheme+host+port triple, without any path, query,
// fragment, or userinfo parts. The zero Origin is not a valid origin.
type Origin struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   uint16 `json:"port"`
}

// ParseOrigin parses rawurl into an Origin, rejecting anything that is more
// than a bare scheme://host[:port]. A trailing "/" path is tolerated, as that
// is how serialized origins usually round-trip through URL types.
func ParseOrigin(rawurl string) (Origin, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return Origin{}, fmt.Errorf("ParseOrigin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return Origin{}, fmt.Errorf("ParseOrigin: %q is not an origin", rawurl)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return Origin{}, fmt.Errorf("ParseOrigin: %q carries more than scheme+host+port", rawurl)
	}
	return originOfURL(u)
}

// OriginOf parses rawurl and strips it down to its origin, discarding any
// path, query, fragment, and userinfo parts.
func OriginOf(rawurl string) (Origin, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return Origin{}, fmt.Errorf("OriginOf: %w", err)
	}
	if u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return Origin{}, fmt.Errorf("OriginOf: %q has no origin", rawurl)
	}
	return originOfURL(u)
}

// originOfURL reduces an already parsed URL to its origin, normalizing the
// host to lower case and filling in the scheme's default port where the URL
// doesn't spell out any port.
func originOfURL(u *url.URL) (Origin, error) {
	port := defaultPort(u.Scheme)
	if p := u.Port(); p != "" {
		pnum, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Origin{}, fmt.Errorf("origin %q: invalid port: %w", u.String(), err)
		}
		port = uint16(pnum)
	}
	if port == 0 {
		return Origin{}, fmt.Errorf("origin %q: no port and no default port for scheme %q",
			u.String(), u.Scheme)
	}
	return Origin{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Hostname()),
		Port:   port,
	}, nil
}

// IsZero returns true if this Origin is the zero value and thus doesn't name
// any origin at all.
func (o Origin) IsZero() bool {
	return o == Origin{}
}

// IsHTTP returns true if this Origin's scheme is either "http" or "https".
func (o Origin) IsHTTP() bool {
	return o.Scheme == "http" || o.Scheme == "https"
}

// String returns the serialized origin in scheme://host[:port] form, omitting
// the port where it is the scheme's default port anyway.
func (o Origin) String() string {
	if o.Port == defaultPort(o.Scheme) {
		return o.Scheme + "://" + o.Host
	}
	return o.Scheme + "://" + net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
}

// HostPort returns the origin's "host:port" address, suitable for dialing.
func (o Origin) HostPort() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(int(o.Port)))
}

// defaultPort returns the default port for the given scheme, or 0 if the
// scheme has no well-known default.
func defaultPort(scheme string) uint16 {
	switch scheme {
	case "http", "ws":
		return 80
	case "https", "wss":
		return 443
	}
	return 0
}
