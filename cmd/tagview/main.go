// tagview reads typed records from asset packages and runs their TFX
// bytecode.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/tagview/asset"
	"github.com/chazu/tagview/manifest"
	"github.com/chazu/tagview/store"
	"github.com/chazu/tagview/tag"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tagview.cli")

var rootCmd = &cobra.Command{
	Use:           "tagview",
	Short:         "Inspect asset packages and evaluate TFX bytecode",
	Long:          `tagview decodes records from asset packages into typed structures and interprets the TFX bytecode attached to techniques.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configureLogging(cmd)
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentFlags().String("config", "", "path to tagview.toml (default: search upward from the working directory)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringSlice("store", nil, "store paths, overriding [store] paths")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadManifest returns the manifest named by --config, the nearest
// tagview.toml, or the defaults. --store replaces the configured paths.
func loadManifest(cmd *cobra.Command) (*manifest.Manifest, error) {
	flags := cmd.Root().PersistentFlags()
	path, _ := flags.GetString("config")

	var m *manifest.Manifest
	var err error
	if path != "" {
		m, err = manifest.LoadFile(path)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}

	if paths, _ := flags.GetStringSlice("store"); len(paths) > 0 {
		abs := make([]string, len(paths))
		for i, p := range paths {
			if abs[i], err = filepath.Abs(p); err != nil {
				return nil, err
			}
		}
		m.Store.Backend = manifest.BackendAuto
		m.Store.Paths = abs
	}
	return m, nil
}

func configureLogging(cmd *cobra.Command) error {
	m, err := loadManifest(cmd)
	if err != nil {
		// Reported again by the command that needs the manifest.
		m = manifest.Default()
	}
	verbose, _ := cmd.Root().PersistentFlags().GetCount("verbose")
	verbosity := m.Log.Verbosity + verbose
	var file *string
	if f := m.LogFile(); f != "" {
		file = &f
	}
	commonlog.Configure(verbosity, file)

	switch mode, _ := cmd.Root().PersistentFlags().GetString("color"); mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
	default:
		return fmt.Errorf("unknown color mode %q (auto|on|off)", mode)
	}
	return nil
}

// session is an opened store with its reader and technique loader.
type session struct {
	Manifest *manifest.Manifest
	Store    tag.Enumerable
	Reader   *tag.Reader
	Loader   *asset.Loader
}

func openSession(cmd *cobra.Command) (*session, error) {
	m, err := loadManifest(cmd)
	if err != nil {
		return nil, err
	}
	s, err := m.OpenStore()
	if err != nil {
		return nil, err
	}
	r, err := m.NewReader(s)
	if err != nil {
		store.Close(s)
		return nil, err
	}
	programs, err := m.NewProgramCache()
	if err != nil {
		store.Close(s)
		return nil, err
	}
	log.Debugf("opened store with %d entries", len(s.Entries()))
	return &session{
		Manifest: m,
		Store:    s,
		Reader:   r,
		Loader:   asset.NewLoader(r, programs),
	}, nil
}

func (s *session) Close() error {
	return store.Close(s.Store)
}

func parseHashes(args []string) ([]tag.TagHash, error) {
	out := make([]tag.TagHash, len(args))
	for i, a := range args {
		h, err := tag.ParseTagHash(a)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}
