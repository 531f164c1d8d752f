package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/tagview/asset"
	"github.com/chazu/tagview/dump"
)

var readCmd = &cobra.Command{
	Use:   "read [flags] hash...",
	Short: "Decode records and print them",
	Long: `Read decodes each record with a registered type and prints the result.
Hashes are given in dump form (5EA8A380) or as raw values (0x80A3A85E).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringP("type", "t", "meta", "record type ("+strings.Join(asset.DefaultTypes().Names(), "|")+")")
	readCmd.Flags().StringP("format", "f", string(dump.FormatText), "output format ("+strings.Join(formatNames(), "|")+")")
	readCmd.Flags().Int("max-depth", dump.DefaultMaxDepth, "maximum nesting printed")
	readCmd.Flags().Int("max-elements", dump.DefaultMaxElements, "maximum list elements printed")
	readCmd.Flags().Bool("keep-going", false, "print every record that decodes and report failures at the end")
}

func formatNames() []string {
	var out []string
	for _, f := range dump.Formats() {
		out = append(out, string(f))
	}
	return out
}

func runRead(cmd *cobra.Command, args []string) error {
	hashes, err := parseHashes(args)
	if err != nil {
		return err
	}
	typeName, _ := cmd.Flags().GetString("type")
	formatName, _ := cmd.Flags().GetString("format")
	format, err := dump.ParseFormat(formatName)
	if err != nil {
		return err
	}
	maxDepth, _ := cmd.Flags().GetInt("max-depth")
	maxElements, _ := cmd.Flags().GetInt("max-elements")
	keepGoing, _ := cmd.Flags().GetBool("keep-going")
	if format.Binary() && len(hashes) > 1 {
		return fmt.Errorf("%s output takes a single hash", format)
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	types := asset.DefaultTypes()
	results := sess.Manifest.NewPool().Decode(cmd.Context(), types, sess.Reader, typeName, hashes)
	opts := dump.Options{MaxDepth: maxDepth, MaxElements: maxElements}

	var failed []error
	for _, res := range results {
		if res.Err != nil {
			if !keepGoing {
				return res.Err
			}
			failed = append(failed, res.Err)
			continue
		}
		if format == dump.FormatText && len(hashes) > 1 {
			fmt.Fprintf(os.Stdout, "# %s\n", res.Hash)
		}
		if err := dump.Value(os.Stdout, format, res.Value, opts); err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d records failed: %w", len(failed), len(hashes), errors.Join(failed...))
	}
	return nil
}
