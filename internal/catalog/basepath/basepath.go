// Package basepath computes the fetch root for the catalog artifacts from
// the location the catalog is hosted at.
package basepath

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Resolve maps a hosting location to the root the dist/ and data/
// directories are served from:
//
//   - file:///dir/index.html          -> file:///dir
//   - http://localhost:8000/x/y.html  -> http://localhost:8000/x
//   - https://host/repo/index.html    -> https://host/repo
//
// Local dev servers (localhost, 127.0.0.1, or any port above 1024) serve
// relative to the page directory; other hosts are treated as subpath
// deployments rooted at the first path segment.
func Resolve(location string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", fmt.Errorf("parse location: %w", err)
	}
	switch u.Scheme {
	case "file":
		dir := pageDir(u.Path)
		if dir == "" {
			dir = "/"
		}
		return "file://" + dir, nil
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("location %q has no host", location)
	}

	origin := u.Scheme + "://" + u.Host
	if isDevServer(u) {
		return strings.TrimRight(origin+pageDir(u.Path), "/"), nil
	}
	segs := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(segs) > 1 && segs[0] != "" {
		return origin + "/" + segs[0], nil
	}
	return origin, nil
}

// Join appends path elements to a base URL.
func Join(base string, elem ...string) (string, error) {
	return url.JoinPath(base, elem...)
}

func isDevServer(u *url.URL) bool {
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" {
		return true
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 1024 {
			return true
		}
	}
	return false
}

// pageDir drops the last path segment (the page itself).
func pageDir(p string) string {
	if p == "" || p == "/" {
		return ""
	}
	if strings.HasSuffix(p, "/") {
		return strings.TrimRight(p, "/")
	}
	d := path.Dir(p)
	if d == "/" || d == "." {
		return ""
	}
	return d
}
