package internal

import (
	"net"
	"net/http"
)

// RemoteXRealIP sets the X-Real-Ip header from the network connection's
// remote address. Only enable useRemoteAddress when nohumanallowed faces
// clients directly instead of sitting behind a load balancer, otherwise every
// client looks like the load balancer.
func RemoteXRealIP(useRemoteAddress bool, bindNetwork string, next http.Handler) http.Handler {
	if !useRemoteAddress {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bindNetwork == "unix" {
			// unix sockets have no meaningful remote address
			r.Header.Set("X-Real-Ip", "127.0.0.1")
			next.ServeHTTP(w, r)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		r.Header.Set("X-Real-Ip", host)
		next.ServeHTTP(w, r)
	})
}

// XForwardedForToXRealIP backfills X-Real-Ip from the remote address left by
// the X-Forwarded-For middleware when an upstream proxy did not set it.
func XForwardedForToXRealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Real-Ip") == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			r.Header.Set("X-Real-Ip", host)
		}
		next.ServeHTTP(w, r)
	})
}
