// Package netutil holds the public-IP discovery helper used by the startup
// banner. Its only contract: returns an address string or empty.
package netutil

import (
	"io"
	"net/http"
	"strings"
	"time"
)

var ipServices = []string{
	"https://api.ipify.org",
	"https://icanhazip.com",
	"https://ifconfig.me",
}

// PublicIP probes the discovery services in order with a short timeout and
// returns the first plausible answer, or "" when none respond.
func PublicIP() string {
	client := &http.Client{Timeout: 2 * time.Second}
	for _, url := range ipServices {
		resp, err := client.Get(url)
		if err != nil {
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}
		addr := strings.TrimSpace(string(body))
		if addr != "" && strings.Contains(addr, ".") {
			return addr
		}
	}
	return ""
}
