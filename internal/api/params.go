package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// endpointFromRequest builds the terminal endpoint for r from its query
// parameters over the configured defaults.
//
//	ip | host   terminal address
//	port        terminal port
//	comm_key    comm password
//	timeout     session timeout in seconds
//	force_udp   use udp for single-transport operations
//	ommit_ping  skip the reachability ping (omit_ping also accepted)
func (s *Server) endpointFromRequest(r *http.Request) (terminal.Endpoint, error) {
	q := r.URL.Query()
	def := s.termCfg

	ep := terminal.Endpoint{
		Host:      def.Host,
		Port:      def.Port,
		CommKey:   def.CommKey,
		Timeout:   time.Duration(def.Timeout) * time.Second,
		Transport: terminal.Transport(def.Transport),
		OmitPing:  def.OmitPing,
	}

	if v := firstOf(q.Get("ip"), q.Get("host")); v != "" {
		ep.Host = v
	}
	if v := q.Get("port"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return terminal.Endpoint{}, terminal.Invalidf("endpoint", "port %q is not a number", v)
		}
		ep.Port = n
	}
	if v := q.Get("comm_key"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return terminal.Endpoint{}, terminal.Invalidf("endpoint", "comm_key %q is not a number", v)
		}
		ep.CommKey = n
	}
	if v := q.Get("timeout"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return terminal.Endpoint{}, terminal.Invalidf("endpoint", "timeout %q must be a positive number of seconds", v)
		}
		ep.Timeout = time.Duration(n) * time.Second
	}

	forceUDP, err := queryBool(q.Get("force_udp"), false)
	if err != nil {
		return terminal.Endpoint{}, terminal.Invalidf("endpoint", "force_udp: %v", err)
	}
	if forceUDP {
		ep.Transport = terminal.TransportUDP
	}

	omit, err := queryBool(firstOf(q.Get("ommit_ping"), q.Get("omit_ping")), ep.OmitPing)
	if err != nil {
		return terminal.Endpoint{}, terminal.Invalidf("endpoint", "ommit_ping: %v", err)
	}
	ep.OmitPing = omit

	if err := ep.Validate(); err != nil {
		return terminal.Endpoint{}, err
	}
	return ep, nil
}

// queryBool parses a boolean flag. Empty means def; "yes" and "no" are
// accepted alongside strconv's forms.
func queryBool(v string, def bool) (bool, error) {
	switch strings.ToLower(v) {
	case "":
		return def, nil
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}

// queryInt parses an integer parameter. Empty means def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, terminal.Invalidf("parse "+name, "%s %q is not a number", name, v)
	}
	return n, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
