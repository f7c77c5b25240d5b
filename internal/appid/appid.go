// Package appid resolves feedwatch's application identity: binary name,
// environment prefix, config directory name and telemetry namespace.
//
// An explicit FULMEN_APP_IDENTITY_PATH or a .fulmen/app.yaml found from the
// working directory wins; otherwise the copy embedded at build time is used,
// so an installed binary works from any directory.
package appid

import (
	"context"
	_ "embed"

	"github.com/fulmenhq/gofulmen/appidentity"
)

// embedded mirrors .fulmen/app.yaml.
//
//go:embed app.yaml
var embedded []byte

func init() {
	_ = appidentity.RegisterEmbeddedIdentityYAML(embedded)
}

// Get returns the process identity, loading it on first use.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// Reload drops the cached identity and re-registers the embedded copy.
// Tests that move the working directory or change the identity path
// call it first.
func Reload() error {
	appidentity.Reset()
	return appidentity.RegisterEmbeddedIdentityYAML(embedded)
}
