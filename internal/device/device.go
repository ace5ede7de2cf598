// Package device parses User-Agent strings into friendly device names and
// stable fingerprints. Device names show up in the audit trail when admin
// tokens are issued; fingerprints let the token layer notice when a token
// starts arriving from a different browser than it was minted on.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// Service computes device fingerprints. Disabled services return empty
// fingerprints so callers can skip drift checks entirely.
type Service struct {
	enabled bool
}

func NewService(enabled bool) *Service {
	return &Service{enabled: enabled}
}

// ParseUserAgent renders a User-Agent header as a short human-readable
// device name, e.g. "Chrome on Macintosh Intel Mac OS X 10.15.7".
func ParseUserAgent(rawUA string) string {
	if strings.TrimSpace(rawUA) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	location := strings.TrimSpace(fmt.Sprintf("%s %s", ua.Platform(), ua.OSInfo().FullName))
	if location == "" {
		location = "unknown platform"
	}

	name := fmt.Sprintf("%s on %s", browser, location)
	return strings.Join(strings.Fields(name), " ")
}

// ComputeFingerprint hashes the stable parts of a User-Agent: browser name,
// major version, and OS name. Minor/patch version bumps (auto-updates) keep
// the same fingerprint; major version or OS changes produce a new one.
func (s *Service) ComputeFingerprint(rawUA string) string {
	if !s.enabled {
		return ""
	}

	ua := useragent.New(rawUA)
	browser, version := ua.Browser()
	major := version
	if idx := strings.Index(version, "."); idx != -1 {
		major = version[:idx]
	}

	material := fmt.Sprintf("%s|%s|%s", browser, major, ua.OSInfo().Name)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// CompareFingerprints reports whether the stored and presented fingerprints
// match, and whether the difference counts as drift.
func (s *Service) CompareFingerprints(stored, presented string) (matched, drift bool) {
	if stored == presented {
		return true, false
	}
	return false, true
}
