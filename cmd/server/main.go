package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"multipart.dev/internal/persistence/indexdb"
	persistlog "multipart.dev/internal/persistence/log"
	"multipart.dev/internal/persistence/snapshot"
	"multipart.dev/internal/sim/catalogs"
	"multipart.dev/internal/sim/multipart"
	"multipart.dev/internal/sim/tuning"
	"multipart.dev/internal/sim/world"
	"multipart.dev/internal/transport/observer"
	"multipart.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + catalogs + snapshot metadata)")

		snapPath    = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest  = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		enableAdmin = flag.Bool("admin", defaultEnableAdminHTTP(), "serve loopback-only admin and observer endpoints")
		enablePprof = flag.Bool("pprof", false, "serve /debug/pprof")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	reg := multipart.NewRegistry()
	if err := cats.Register(reg); err != nil {
		logger.Fatalf("register structures: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Optional read-model index (does not affect the simulation).
	idx, err := openIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	}

	cfg := worldConfig(*worldID, tune)
	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, s.Header.WorldID)
		}
		if s.Header.CatalogDigest != cats.Structures.Digest {
			logger.Printf("snapshot structure catalog differs from configs; unknown ids will fail the import")
		}
		cfg = resumeConfig(cfg, s)
		snap = &s
	}

	w, err := world.New(cfg, cats, reg)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := world.NewMetrics(promReg, *worldID)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	w.SetMetrics(metrics)
	if idx != nil {
		registerIndexMetrics(promReg, *worldID, idx)
	}

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
		w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})
	} else {
		w.SetTickLogger(tickLog)
		w.SetAuditLogger(auditLog)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snapCh:
				if _, err := persistSnapshot(worldDir, s, tune.ArchiveEveryTicks, idx, logger); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	if *enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID    string                `json:"world_id"`
				Tick       uint64                `json:"tick"`
				Structures []world.StructureInfo `json:"structures"`
				Index      *indexdb.Stats        `json:"index,omitempty"`
			}{
				WorldID:    *worldID,
				Tick:       w.CurrentTick(),
				Structures: w.StructureInfos(),
			}
			if idx != nil {
				st := idx.Stats()
				resp.Index = &st
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
		if idx != nil {
			mux.HandleFunc("/admin/v1/audits", auditsHandler(idx))
		}

		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled")
	}
	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("world=%s structures=%d tick=%d listening on %s", *worldID, reg.Len(), w.CurrentTick(), *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The loop has stopped once worldDone closes, so the final export runs
	// without racing it.
	cancel()
	<-worldDone
	<-writerDone
	if t := w.CurrentTick(); t > 0 {
		if _, err := persistSnapshot(worldDir, w.ExportSnapshot(t-1), tune.ArchiveEveryTicks, idx, logger); err != nil {
			logger.Printf("shutdown snapshot: %v", err)
		}
	}
}

func registerIndexMetrics(reg prometheus.Registerer, worldID string, idx *indexdb.SQLiteIndex) {
	labels := prometheus.Labels{"world": worldID}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "multipart", Subsystem: "index", Name: "queue_depth",
			Help: "Pending index writes.", ConstLabels: labels,
		}, func() float64 { return float64(idx.Stats().QueueDepth) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "multipart", Subsystem: "index", Name: "dropped_total",
			Help: "Index writes dropped because the queue was full.", ConstLabels: labels,
		}, func() float64 {
			st := idx.Stats()
			return float64(st.DropTickTotal + st.DropAuditTotal + st.DropSnapshotTotal + st.DropArchiveTotal)
		}),
	)
}

// auditsHandler serves GET /admin/v1/audits?pos=x,y,z from the index.
func auditsHandler(idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		pos, err := parsePos(r.URL.Query().Get("pos"))
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		entries, err := idx.AuditsAt(r.Context(), pos)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"pos": pos, "audits": entries})
	}
}

var errBadPos = errors.New("pos must be x,y,z")

func parsePos(s string) ([3]int, error) {
	var pos [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return pos, errBadPos
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return pos, errBadPos
		}
		pos[i] = n
	}
	return pos, nil
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
