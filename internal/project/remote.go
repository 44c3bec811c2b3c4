package project

import (
	"net/url"
	"strings"
)

// NormalizeRemote rewrites a git remote URL into a credential-free HTTPS form
// without the .git suffix. Unrecognised inputs are returned trimmed.
func NormalizeRemote(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	switch {
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return trimRepoSuffix(s)
		}
		host := u.Hostname()
		if u.Scheme == "http" {
			if port := u.Port(); port != "" {
				host += ":" + port
			}
		} else if u.Scheme == "https" {
			if port := u.Port(); port != "" && port != "443" {
				host += ":" + port
			}
		}
		scheme := "https"
		if u.Scheme == "http" {
			scheme = "http"
		}
		return trimRepoSuffix(scheme + "://" + host + "/" + strings.TrimPrefix(u.Path, "/"))

	case scpLike(s):
		// user@host:owner/repo
		at := strings.LastIndex(s[:strings.Index(s, ":")], "@")
		rest := s[at+1:]
		colon := strings.Index(rest, ":")
		host, path := rest[:colon], strings.TrimPrefix(rest[colon+1:], "/")
		return trimRepoSuffix("https://" + host + "/" + path)
	}
	return trimRepoSuffix(s)
}

// scpLike reports the scp-style ssh form: [user@]host:path with no scheme
// and no slash before the colon.
func scpLike(s string) bool {
	colon := strings.Index(s, ":")
	if colon <= 0 {
		return false
	}
	slash := strings.Index(s, "/")
	return slash == -1 || slash > colon
}

func trimRepoSuffix(s string) string {
	s = strings.TrimRight(s, "/")
	return strings.TrimSuffix(s, ".git")
}
