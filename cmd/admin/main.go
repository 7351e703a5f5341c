// Command admin inspects the artifacts a campaign leaves behind: the
// sqlite index, save files, and replay journals. It never touches a live
// session.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"regent/internal/persistence/cmdlog"
	"regent/internal/persistence/indexdb"
	"regent/internal/persistence/save"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "saves":
		err = cmdSaves(args)
	case "checksum":
		err = cmdChecksum(args)
	case "desyncs":
		err = cmdDesyncs(args)
	case "journal":
		err = cmdJournal(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

  saves    -dir <saves dir>           list save files with their headers
  checksum -db <index.db> -tick N     look up the recorded checksum for a tick
  desyncs  -db <index.db> [-session]  list recorded desync incidents
  journal  -path <journal>            summarize a replay journal`)
}

func cmdSaves(args []string) error {
	fs := flag.NewFlagSet("saves", flag.ExitOnError)
	dir := fs.String("dir", "./data", "directory to scan for .sav files")
	_ = fs.Parse(args)

	var paths []string
	err := filepath.WalkDir(*dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".sav" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, p := range paths {
		hdr, err := save.ReadHeader(p)
		if err != nil {
			fmt.Printf("%s  unreadable: %v\n", p, err)
			continue
		}
		fmt.Printf("%s  scenario=%s seed=%d tick=%d checksum=%.12s sim=%s\n",
			p, hdr.Scenario, hdr.Seed, hdr.Tick, hdr.Checksum, hdr.SimVersion)
	}
	if len(paths) == 0 {
		fmt.Println("no save files found")
	}
	return nil
}

func cmdChecksum(args []string) error {
	fs := flag.NewFlagSet("checksum", flag.ExitOnError)
	db := fs.String("db", "", "path to index.db")
	tick := fs.Uint64("tick", 0, "tick to look up")
	_ = fs.Parse(args)
	if *db == "" {
		return fmt.Errorf("missing -db")
	}

	idx, err := indexdb.Open(*db)
	if err != nil {
		return err
	}
	defer idx.Close()

	sum, ok, err := idx.ChecksumAt(*tick)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no checksum recorded for tick %d", *tick)
	}
	fmt.Printf("tick %d: %s\n", *tick, sum)

	if row, ok, err := idx.LatestSave(*tick); err == nil && ok {
		fmt.Printf("nearest save: tick %d at %s\n", row.Tick, row.Path)
	}
	return nil
}

func cmdDesyncs(args []string) error {
	fs := flag.NewFlagSet("desyncs", flag.ExitOnError)
	db := fs.String("db", "", "path to index.db")
	session := fs.String("session", "", "filter by session id (empty = all)")
	_ = fs.Parse(args)
	if *db == "" {
		return fmt.Errorf("missing -db")
	}

	idx, err := indexdb.Open(*db)
	if err != nil {
		return err
	}
	defer idx.Close()

	rows, err := idx.Desyncs(*session)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("no desyncs recorded")
		return nil
	}
	for _, r := range rows {
		fmt.Printf("tick=%d session=%s peer=%s got=%.12s want=%.12s\n",
			r.Tick, r.Session, r.Peer, r.Got, r.Want)
	}
	return nil
}

func cmdJournal(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	path := fs.String("path", "", "replay journal path")
	_ = fs.Parse(args)
	if *path == "" {
		return fmt.Errorf("missing -path")
	}

	meta, entries, err := cmdlog.ReadFile(*path)
	if err != nil {
		return err
	}
	var commands, checksums int
	for _, e := range entries {
		commands += len(e.Batch)
		if e.Checksum != "" {
			checksums++
		}
	}
	fmt.Printf("scenario=%s seed=%d sim=%s manifest=%.12s\n",
		meta.Scenario, meta.Seed, meta.SimVersion, meta.ManifestHash)
	fmt.Printf("start_tick=%d entries=%d commands=%d checksums=%d\n",
		meta.StartTick, len(entries), commands, checksums)
	if n := len(entries); n > 0 {
		fmt.Printf("last tick=%d\n", entries[n-1].Tick)
	}
	return nil
}
