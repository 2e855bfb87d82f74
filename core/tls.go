package core

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// NewCertManager builds the ACME certificate manager for the configured
// domains. Issued certificates are cached on disk so restarts do not burn
// through the Let's Encrypt rate limits
// (https://letsencrypt.org/docs/rate-limits).
func NewCertManager(cfg *TLS) (*autocert.Manager, error) {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "inkwell-autocert")
	}

	// Create the cache directory up front so permission problems show up
	// at startup rather than during the first certificate issuance.
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return nil, err
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Cache:      autocert.DirCache(cacheDir),
		Email:      cfg.Email,
	}

	return manager, nil
}

// ChallengeServer answers http-01 challenges on :80 and redirects every
// other request to the HTTPS site.
func ChallengeServer(manager *autocert.Manager) *http.Server {
	return &http.Server{
		Addr:         ":80",
		Handler:      manager.HTTPHandler(nil),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
