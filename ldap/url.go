// Copyright (C) Dirkit, Inc. 2019-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package ldap

import (
	"net"
	neturl "net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scope selects how much of the tree below the base DN a search covers. The
// values are the wire values of the SearchRequest scope field.
type Scope int32

const (
	// ScopeBaseObject searches the base entry only.
	ScopeBaseObject Scope = 0
	// ScopeSingleLevel searches the immediate children of the base entry.
	ScopeSingleLevel Scope = 1
	// ScopeWholeSubtree searches the base entry and all of its descendants.
	ScopeWholeSubtree Scope = 2
)

// String returns the RFC 4516 token for the scope.
func (s Scope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	}
	return "invalid"
}

// Default ports for the supported schemes.
const (
	DefaultPort    = 389
	DefaultTLSPort = 636
)

// URL is a parsed RFC 4516 LDAP URL. Zero components keep their defaults:
// port 389 (636 for ldaps), base object scope, and an empty DN.
type URL struct {
	Original   string
	Scheme     string
	Host       string
	Port       int
	DN         string
	Attributes []string
	Scope      Scope
	Filter     string
	Extensions []string
}

// ParseURL parses an RFC 4516 LDAP URL of the form
//
//	scheme://host:port/dn?attributes?scope?filter?extensions
//
// where every component after the scheme is optional. Components are
// percent-decoded; the filter is kept in its RFC 4515 string form.
func ParseURL(s string) (URL, error) {
	parsed, err := neturl.Parse(s)
	if err != nil {
		return URL{}, errors.Wrapf(err, "error parsing URL %q", s)
	}

	out := URL{Original: s, Scheme: strings.ToLower(parsed.Scheme)}
	switch out.Scheme {
	case "ldap":
		out.Port = DefaultPort
	case "ldaps":
		out.Port = DefaultTLSPort
	default:
		return URL{}, errors.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	out.Host = parsed.Hostname()
	if portStr := parsed.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return URL{}, errors.Errorf("invalid port %q in URL %q", portStr, s)
		}
		out.Port = port
	}

	rawDN := strings.TrimPrefix(parsed.EscapedPath(), "/")
	if strings.Contains(rawDN, "/") {
		return URL{}, errors.Errorf("DN component of URL %q contains an unencoded slash", s)
	}
	out.DN, err = neturl.PathUnescape(rawDN)
	if err != nil {
		return URL{}, errors.Wrapf(err, "error parsing URL %q", s)
	}

	if parsed.ForceQuery || parsed.RawQuery != "" {
		if err := out.parseQuery(parsed.RawQuery); err != nil {
			return URL{}, errors.Wrapf(err, "error parsing URL %q", s)
		}
	}
	return out, nil
}

// parseQuery splits the attributes?scope?filter?extensions tail. Empty
// components keep their defaults.
func (u *URL) parseQuery(query string) error {
	fields := strings.SplitN(query, "?", 4)
	for i, field := range fields {
		if field == "" {
			continue
		}
		switch i {
		case 0:
			for _, attr := range strings.Split(field, ",") {
				attr, err := neturl.PathUnescape(attr)
				if err != nil {
					return errors.Wrap(err, "invalid attribute list")
				}
				if attr != "" {
					u.Attributes = append(u.Attributes, attr)
				}
			}
		case 1:
			switch strings.ToLower(field) {
			case "base":
				u.Scope = ScopeBaseObject
			case "one":
				u.Scope = ScopeSingleLevel
			case "sub":
				u.Scope = ScopeWholeSubtree
			default:
				return errors.Errorf("invalid scope %q", field)
			}
		case 2:
			filter, err := neturl.PathUnescape(field)
			if err != nil {
				return errors.Wrap(err, "invalid filter")
			}
			u.Filter = filter
		case 3:
			for _, ext := range strings.Split(field, ",") {
				ext, err := neturl.PathUnescape(ext)
				if err != nil {
					return errors.Wrap(err, "invalid extension list")
				}
				if ext != "" {
					u.Extensions = append(u.Extensions, ext)
				}
			}
		}
	}
	return nil
}

// Address returns the host:port pair to dial. An absent host defaults to
// localhost per RFC 4516 section 2.
func (u URL) Address() string {
	host := u.Host
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(u.Port))
}
