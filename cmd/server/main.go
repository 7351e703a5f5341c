package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"regent/internal/lockstep"
	"regent/internal/persistence/cmdlog"
	"regent/internal/persistence/indexdb"
	"regent/internal/persistence/save"
	"regent/internal/sim/catalogs"
	"regent/internal/sim/state"
	"regent/internal/sim/step"
	"regent/internal/sim/tuning"
	"regent/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		scenario   = flag.String("scenario", "two_crowns", "scenario name (configs/scenarios/<name>.json)")
		seed       = flag.Uint64("seed", 1444, "world seed (used only for a fresh campaign)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		savePath   = flag.String("save", "", "resume from a save file instead of the scenario start")
		record     = flag.String("record", "", "write a single-file replay journal to this path")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick/save/desync index")
		strict     = flag.Bool("strict", false, "panic on simulation invariant violations instead of clamping")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	logger.Printf("catalogs loaded, manifest %.12s", cats.ManifestHash)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	stepCfg := &step.Config{Rates: tune.Rates, Strict: *strict, Logger: logger}

	world, campaign, campaignSeed, err := openWorld(cats, tune, *configDir, *scenario, *savePath, *seed, logger)
	if err != nil {
		logger.Fatalf("open world: %v", err)
	}
	logger.Printf("campaign %q at tick %d, date %s, checksum %.12s",
		campaign, world.Tick, world.Date, world.Checksum())

	runDir := filepath.Join(*dataDir, campaign)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	eng := lockstep.NewEngine(world, cats, stepCfg, tune.ChecksumEveryTicks)

	var journal *cmdlog.Writer
	if *record != "" {
		journal, err = cmdlog.NewFile(*record, cmdlog.Meta{
			SimVersion:   tune.SimVersion,
			ManifestHash: cats.ManifestHash,
			Scenario:     campaign,
			Seed:         campaignSeed,
			StartTick:    world.Tick,
			Checksum:     world.Checksum(),
		})
		if err != nil {
			logger.Fatalf("open replay journal: %v", err)
		}
	} else {
		journal = cmdlog.NewRotating(filepath.Join(runDir, "cmdlog"), "ticks")
	}
	defer journal.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.Open(filepath.Join(runDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	host := lockstep.NewHost(eng, lockstep.HostOptions{
		Tuning:       tune,
		ManifestHash: cats.ManifestHash,
		Scenario:     campaign,
		Seed:         campaignSeed,
		Logger:       log.New(os.Stdout, "[host] ", log.LstdFlags|log.Lmicroseconds),
		Journal:      journal,
		Index:        idx,
		SaveDir:      filepath.Join(runDir, "saves"),
	})
	logger.Printf("session %s", host.SessionID())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := host.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Fatalf("host: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", ws.NewServer(host, logger).Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("listen: %v", err)
	}
	logger.Printf("shutdown")
}

// openWorld resumes from a save when given one, otherwise builds the
// scenario start. The returned seed is the campaign's original seed, which
// peers need to rebuild day zero.
func openWorld(cats *catalogs.Catalogs, tune tuning.Tuning, configDir, scenario, savePath string, seed uint64, logger *log.Logger) (*state.WorldState, string, uint64, error) {
	if savePath != "" {
		hdr, s, err := save.Read(savePath)
		if err != nil {
			return nil, "", 0, err
		}
		if hdr.ManifestHash != cats.ManifestHash {
			return nil, "", 0, fmt.Errorf("save built against manifest %.12s, configs are %.12s", hdr.ManifestHash, cats.ManifestHash)
		}
		if hdr.SimVersion != tune.SimVersion {
			return nil, "", 0, fmt.Errorf("save from sim %s, running %s", hdr.SimVersion, tune.SimVersion)
		}
		logger.Printf("resumed %s at tick %d", savePath, hdr.Tick)
		return s, hdr.Scenario, hdr.Seed, nil
	}

	sc, err := catalogs.LoadScenario(filepath.Join(configDir, "scenarios", scenario+".json"))
	if err != nil {
		return nil, "", 0, err
	}
	s, err := sc.Build(cats, seed)
	if err != nil {
		return nil, "", 0, err
	}
	return s, scenario, seed, nil
}
