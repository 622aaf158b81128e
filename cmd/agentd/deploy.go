package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"agentcore/internal/factory"
	"agentcore/internal/journal"
	"agentcore/internal/ledger"
	"agentcore/internal/registrar"
	"agentcore/internal/registry"
	"agentcore/pkg/domain"
)

// Manifest describes a set of registry/registrar pairs to provision.
type Manifest struct {
	Admin       domain.Address       `yaml:"admin"`
	Deployments []ManifestDeployment `yaml:"deployments"`
}

// ManifestDeployment is one pair. A non-empty salt makes the addresses
// deterministic. Open is one of public, private, or closed (the default).
type ManifestDeployment struct {
	Name      string         `yaml:"name"`
	Admin     domain.Address `yaml:"admin,omitempty"`
	MintPrice uint64         `yaml:"mint_price"`
	MaxSupply uint64         `yaml:"max_supply"`
	Salt      string         `yaml:"salt,omitempty"`
	Open      string         `yaml:"open,omitempty"`
}

var manifestPath string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Provision registry and registrar pairs from a manifest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		manifest, err := readManifest(manifestPath)
		if err != nil {
			return err
		}
		return deploy(cmd.Context(), cfg, manifest, cmd.OutOrStdout())
	},
}

func init() {
	deployCmd.Flags().StringVarP(&manifestPath, "file", "f", "", "manifest file (required)")
	_ = deployCmd.MarkFlagRequired("file")
}

func readManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Deployments) == 0 {
		return Manifest{}, fmt.Errorf("manifest has no deployments")
	}
	return m, nil
}

func deploy(ctx context.Context, cfg Config, manifest Manifest, out io.Writer) error {
	j, err := journal.Open(cfg.journalConfig())
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	f := factory.New(domain.Address(cfg.FactoryAddress), j, ledger.NewMemory())

	for _, d := range manifest.Deployments {
		admin := d.Admin
		if admin == "" {
			admin = manifest.Admin
		}
		var (
			reg *registry.Registry
			rar *registrar.Registrar
		)
		if d.Salt != "" {
			reg, rar, err = f.DeployDeterministic(ctx, admin, d.MintPrice, d.MaxSupply, d.Name, d.Salt)
		} else {
			reg, rar, err = f.Deploy(ctx, admin, d.MintPrice, d.MaxSupply, d.Name)
		}
		if err != nil {
			return fmt.Errorf("deploy %q: %w", d.Name, err)
		}
		switch d.Open {
		case "", "closed":
		case "public":
			err = rar.OpenMinting(ctx, admin, true)
		case "private":
			err = rar.OpenMinting(ctx, admin, false)
		default:
			return fmt.Errorf("deploy %q: unknown open mode %q", d.Name, d.Open)
		}
		if err != nil {
			return fmt.Errorf("open %q: %w", d.Name, err)
		}
		fmt.Fprintf(out, "%s\tregistry=%s\tregistrar=%s\n", d.Name, reg.Address(), rar.Address())
	}
	return nil
}
