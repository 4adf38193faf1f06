package upstream

import (
	"net/http"
	"strings"
)

var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// OutboundHeaders copies the caller's headers for the agent request. Hop-by-hop
// headers, framing headers and the cluster credentials are removed.
// Accept-Encoding is left to the transport so compressed replies are decoded
// before the gateway reads them.
func OutboundHeaders(in http.Header) http.Header {
	out := filtered(in)
	for _, h := range []string{"Host", "Content-Length", "Content-Type", "Authorization", "Accept-Encoding"} {
		out.Del(h)
	}
	return out
}

// InboundHeaders copies the agent's response headers back to the caller.
func InboundHeaders(in http.Header) http.Header {
	out := filtered(in)
	out.Del("Content-Length")
	return out
}

func filtered(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, v := range in.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, h := range hopByHop {
		out.Del(h)
	}
	return out
}
