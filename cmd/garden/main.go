package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"pyre.dev/internal/persistence/indexdb"
	persistlog "pyre.dev/internal/persistence/log"
	"pyre.dev/internal/render/memory"
	"pyre.dev/internal/render/term"
	"pyre.dev/internal/sim/avatar"
	"pyre.dev/internal/sim/engine"
	"pyre.dev/internal/sim/scene"
	"pyre.dev/internal/sim/tuning"
	"pyre.dev/internal/transport/observer"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: built-in tuning)")
		scenePath  = flag.String("scene", "", "path to scene.yaml (default: the built-in garden)")
		addr       = flag.String("addr", "", "observer listen address (overrides tuning observer.addr)")
		dataDir    = flag.String("data", "", "runtime data directory; relative journal/index paths resolve under it")
		termView   = flag.Bool("term", false, "draw the scene in the terminal")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
		ticks      = flag.Uint64("ticks", 0, "run this many fixed-dt ticks as fast as possible, then exit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[garden] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if a := strings.TrimSpace(*addr); a != "" {
		tune.Observer.Addr = a
	}
	sceneCfg, err := scene.Load(*scenePath)
	if err != nil {
		logger.Fatalf("load scene: %v", err)
	}
	if sceneCfg.Seed == 0 {
		sceneCfg.Seed = tune.Seed
	}

	var (
		renderer avatar.Renderer
		preview  *term.Renderer
	)
	if *termView {
		screen, err := tcell.NewScreen()
		if err != nil {
			logger.Fatalf("terminal: %v", err)
		}
		if err := screen.Init(); err != nil {
			logger.Fatalf("terminal: %v", err)
		}
		defer screen.Fini()
		// The screen owns stdout from here on.
		logger.SetOutput(io.Discard)
		preview = term.New(screen, term.Options{})
		renderer = preview
	} else {
		renderer = memory.New()
	}

	clock := engine.NewClock()
	s, err := scene.Build(sceneCfg, renderer, clock, log.New(logger.Writer(), "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("build scene: %v", err)
	}
	if preview != nil {
		glyphs := map[string]rune{}
		for _, k := range s.Resources.Keys() {
			if r := []rune(k); len(r) > 0 {
				glyphs[k] = r[0]
			}
		}
		preview.UseGlyphs(s.Resources, glyphs)
	}

	eng := engine.New(engine.Config{
		TickRateHz: tune.TickRateHz,
		FixedDT:    tune.DT == tuning.DTFixed,
	}, s, clock, log.New(logger.Writer(), "[engine] ", log.LstdFlags|log.Lmicroseconds))

	if tune.Journal.Enabled {
		j := persistlog.NewJournal(under(*dataDir, tune.Journal.Dir))
		defer func() {
			logger.Printf("journal: %d entries", j.Entries())
			if err := j.Close(); err != nil {
				logger.Printf("journal: close: %v", err)
			}
		}()
		eng.AddSink(j)
	}
	if tune.Index.Enabled && !*disableDB {
		idx, err := indexdb.OpenSQLite(under(*dataDir, tune.Index.Path))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.RecordRun(context.Background(), indexdb.Run{
			RunID:      eng.RunID(),
			TickRateHz: tune.TickRateHz,
			Scene:      sceneName(*scenePath),
		}); err != nil {
			logger.Printf("index: record run: %v", err)
		}
		eng.AddSink(idx)
	}

	if err := eng.Start(); err != nil {
		logger.Fatalf("start: %v", err)
	}
	logger.Printf("run=%s worlds=%d worms=%d spins=%d switches=%d", eng.RunID(), s.Tree.Len(), len(s.Worms), len(s.Spins), len(s.Switches))

	if *ticks > 0 {
		dt := 1 / float64(tune.TickRateHz)
		for i := uint64(0); i < *ticks; i++ {
			eng.Step(dt)
		}
		logger.Printf("stopped after %d ticks (sim time %.2fs)", eng.CurrentTick(), clock.Now())
		return
	}

	ctx, cancel := signalContext()
	defer cancel()

	var srv *http.Server
	if tune.Observer.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		obs := observer.NewServer(eng, log.New(logger.Writer(), "[observer] ", log.LstdFlags|log.Lmicroseconds))
		obs.QueueSize = tune.Observer.QueueSize
		obs.IntervalTicks = tune.Observer.IntervalTicks
		obs.Routes(mux)
		srv = &http.Server{Addr: tune.Observer.Addr, Handler: mux}
		go func() {
			logger.Printf("observer listening on %s", tune.Observer.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("observer: %v", err)
				cancel()
			}
		}()
	}

	if preview != nil {
		go pollQuit(preview, cancel)
		go drawLoop(ctx, preview, eng)
	}

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("engine stopped: %v", err)
	}
	if srv != nil {
		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel2()
	}
	logger.Printf("stopped at tick %d", eng.CurrentTick())
}

func drawLoop(ctx context.Context, r *term.Renderer, eng *engine.Engine) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Draw(fmt.Sprintf("pyre  tick %d  live %d  (q to quit)", eng.CurrentTick(), r.Stats().Live))
		}
	}
}

func pollQuit(r *term.Renderer, cancel context.CancelFunc) {
	for {
		ev := r.Screen().PollEvent()
		if ev == nil {
			return
		}
		if k, ok := ev.(*tcell.EventKey); ok {
			if k.Key() == tcell.KeyEscape || k.Key() == tcell.KeyCtrlC || k.Rune() == 'q' {
				cancel()
				return
			}
		}
	}
}

func under(dataDir, p string) string {
	if dataDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

func sceneName(path string) string {
	if strings.TrimSpace(path) == "" {
		return "garden (built-in)"
	}
	return filepath.Base(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
