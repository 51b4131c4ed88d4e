// Package assets loads the token metadata and strategy pair catalog the
// engine operates on. Metadata comes from the published asset-list
// repository; the pair catalog is a local TOML file.
package assets

import (
	"context"
	"fmt"
	"time"

	getter "github.com/hashicorp/go-getter"
)

// defaultRegistrySource is the go-getter source for the published asset lists.
const defaultRegistrySource = "github.com/Amber-Finance/asset-lists//neutron"

// RegistryGitDownload downloads the asset-list registry into dst.
func RegistryGitDownload(dst string) error {
	return registryDownload(defaultRegistrySource, dst)
}

func registryDownload(src, dst string) error {
	deadline := time.Now().Add(120 * time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	opts := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeDir,
		Detectors: []getter.Detector{
			&getter.GitHubDetector{},
		},
		Getters: map[string]getter.Getter{
			"git": &getter.GitGetter{},
		},
	}
	if err := opts.Get(); err != nil {
		return fmt.Errorf("failed to download asset registry: %w", err)
	}
	return nil
}
