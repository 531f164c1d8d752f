package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chazu/tagview/dump"
	"github.com/chazu/tagview/store"
	"github.com/chazu/tagview/tag"
)

var packCmd = &cobra.Command{
	Use:   "pack [flags] dir",
	Short: "Build a package file from loose <hash>.bin records",
	Args:  cobra.ExactArgs(1),
	RunE:  runPack,
}

var importCmd = &cobra.Command{
	Use:   "import [flags] store...",
	Short: "Copy records from packages or directories into a SQLite store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

var indexCmd = &cobra.Command{
	Use:   "index [flags]",
	Short: "List the entries of the configured store",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func init() {
	packCmd.Flags().StringP("output", "o", "", "package file to write (required)")
	packCmd.Flags().String("pkg", "", "package id (default: the id shared by every record)")
	_ = packCmd.MarkFlagRequired("output")

	importCmd.Flags().String("db", "", "SQLite database to write (default: [store] sqlite)")

	indexCmd.Flags().StringP("format", "f", "table", "output format (table|json|cbor|msgpack)")
	indexCmd.Flags().Bool("hash64", false, "list the hash64 table instead of entries")
	indexCmd.Flags().Bool("prefetch", false, "read every record once and report the bytes read")
}

func runPack(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("output")
	pkgFlag, _ := cmd.Flags().GetString("pkg")

	src, err := store.LoadDir(args[0])
	if err != nil {
		return err
	}
	entries := src.Entries()
	if len(entries) == 0 {
		return fmt.Errorf("%s holds no records", args[0])
	}

	var pkgID uint16
	if pkgFlag != "" {
		v, err := strconv.ParseUint(pkgFlag, 0, 16)
		if err != nil {
			return fmt.Errorf("--pkg: %w", err)
		}
		pkgID = uint16(v)
	} else {
		pkgID = entries[0].Hash.PkgID()
		for _, e := range entries {
			if e.Hash.PkgID() != pkgID {
				return fmt.Errorf("records span packages %04x and %04x; pass --pkg", pkgID, e.Hash.PkgID())
			}
		}
	}

	w := store.NewPackageWriter(pkgID)
	if err := w.AddStore(src); err != nil {
		return err
	}
	if err := w.WriteFile(out); err != nil {
		return err
	}
	log.Infof("packed %d records into %s", w.Len(), out)
	fmt.Printf("%s: package %04x, %d records\n", out, pkgID, w.Len())
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	db, _ := cmd.Flags().GetString("db")
	if db == "" {
		m, err := loadManifest(cmd)
		if err != nil {
			return err
		}
		if db = m.Path(m.Store.SQLite); db == "" {
			return errors.New("no database: pass --db or set [store] sqlite")
		}
	}

	dst, err := store.OpenSQLite(db)
	if err != nil {
		return err
	}
	defer dst.Close()

	total := 0
	for _, path := range args {
		src, err := store.Open(path)
		if err != nil {
			return err
		}
		n, err := dst.Import(cmd.Context(), src)
		store.Close(src)
		if err != nil {
			return fmt.Errorf("importing %s: %w", path, err)
		}
		log.Infof("imported %d records from %s", n, path)
		total += n
	}
	fmt.Printf("%s: imported %d records\n", db, total)
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	hash64, _ := cmd.Flags().GetBool("hash64")
	prefetch, _ := cmd.Flags().GetBool("prefetch")

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	if prefetch {
		entries := sess.Store.Entries()
		hashes := make([]tag.TagHash, len(entries))
		for i, e := range entries {
			hashes[i] = e.Hash
		}
		n, err := sess.Manifest.NewPool().Prefetch(cmd.Context(), sess.Store, hashes)
		if err != nil {
			return err
		}
		fmt.Printf("read %d records, %d bytes\n", len(hashes), n)
		return nil
	}

	if formatName == string(dump.FormatText) || formatName == "table" {
		return writeIndexTable(sess.Store, hash64)
	}
	format, err := dump.ParseFormat(formatName)
	if err != nil {
		return err
	}
	opts := dump.Options{MaxElements: math.MaxInt}
	if hash64 {
		return dump.Value(os.Stdout, format, sess.Store.Hash64Table(), opts)
	}
	return dump.Value(os.Stdout, format, sess.Store.Entries(), opts)
}

func writeIndexTable(s tag.Enumerable, hash64 bool) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if hash64 {
		fmt.Fprintln(tw, "HASH64\tHASH32")
		for _, e := range s.Hash64Table() {
			fmt.Fprintf(tw, "%016X\t%s\n", e.Hash64, e.Hash32)
		}
		return tw.Flush()
	}
	fmt.Fprintln(tw, "HASH\tREFERENCE\tSIZE\tTYPE")
	for _, e := range s.Entries() {
		fmt.Fprintf(tw, "%s\t%08X\t%d\t%d/%d\n", e.Hash, e.Reference, e.Size, e.FileType, e.FileSubtype)
	}
	return tw.Flush()
}
