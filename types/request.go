// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package types

// AllowCredentialsByDefault is the credentials mode used for warm-up jobs
// where the caller didn't express any preference of its own.
const AllowCredentialsByDefault = true

// PreconnectRequest asks for a single origin to be speculatively resolved
// and, if NumSockets is non-zero, preconnected.
type PreconnectRequest struct {
	// Origin to warm up; must be a normalized origin (see ParseOrigin).
	Origin Origin `json:"origin"`
	// NumSockets is the number of sockets to preconnect after a successful
	// resolve; 0 requests name resolution only.
	NumSockets int `json:"numsockets"`
	// AllowCredentials controls whether the preconnected sockets may carry
	// credentials (cookies, auth data).
	AllowCredentials bool `json:"allowcredentials"`
}

// LoadFlags qualify how the network layer may treat preconnected sockets.
type LoadFlags int

const (
	// LoadDoNotSendCookies suppresses sending cookies.
	LoadDoNotSendCookies LoadFlags = 1 << iota
	// LoadDoNotSaveCookies suppresses storing received cookies.
	LoadDoNotSaveCookies
	// LoadDoNotSendAuthData suppresses sending authentication data.
	LoadDoNotSendAuthData
)

// LoadNormal places no restrictions on the preconnected sockets.
const LoadNormal LoadFlags = 0

// PreconnectLoadFlags maps a request's credentials mode onto the load flags
// handed to the network layer: disallowing credentials suppresses cookie
// sending and receiving as well as sending auth data.
func PreconnectLoadFlags(allowCredentials bool) LoadFlags {
	if allowCredentials {
		return LoadNormal
	}
	return LoadDoNotSendCookies | LoadDoNotSaveCookies | LoadDoNotSendAuthData
}
