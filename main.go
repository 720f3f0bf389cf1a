package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"

	"casaingest/config"
	"casaingest/extractor"
	"casaingest/fetcher"
	"casaingest/httputil"
	"casaingest/llm"
	"casaingest/logging"
	"casaingest/notify"
	"casaingest/pipeline"
	"casaingest/progress"
	"casaingest/scheduler"
	"casaingest/server"
	"casaingest/sheets"
	"casaingest/storage"
	"casaingest/workers"
)

var (
	embedNow = flag.Bool("embed", false, "Backfill missing embeddings once and exit")
	pollNow  = flag.Bool("poll", false, "Poll the batch sheet once and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogFile, cfg.LogMaxBytes)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting casaingest...")
	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s)", site.Name, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	llmClient, err := llm.NewClient(cfg.OpenAI)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	tenant, err := pgStore.FirstTenant(ctx)
	if err != nil {
		log.Fatalf("Failed to resolve tenant: %v", err)
	}
	if tenant == nil {
		log.Fatal("No tenant configured in the database")
	}
	log.Printf("Tenant: %s (%s)", tenant.Name, tenant.ID)

	clients := httputil.NewClients(cfg.Fetcher)
	var pageFetcher fetcher.Fetcher
	if cfg.Fetcher.UseBrowser {
		pageFetcher = fetcher.NewBrowserFetcher()
		log.Println("Fetcher: headless browser")
	} else {
		pageFetcher = fetcher.NewHTTPFetcher(clients.Scraping)
		log.Println("Fetcher: plain HTTP")
	}

	registry := buildRegistry(cfg, llmClient)

	var conn *nats.Conn
	if cfg.NATS.URL != "" {
		conn, err = nats.Connect(cfg.NATS.URL, nats.MaxReconnects(-1))
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer conn.Close()
		log.Printf("Connected to NATS: %s", cfg.NATS.URL)
	} else {
		log.Println("NATS not configured, running in-process only")
	}
	bus := progress.NewNATSBus(conn)

	pool, err := ants.NewPool(16)
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer pool.Release()

	pipe := &pipeline.Pipeline{
		Fetcher:  pageFetcher,
		Registry: registry,
		Text:     llmClient,
		Embedder: llmClient,
		Store:    pgStore,
		Pool:     pool,
		TenantID: tenant.ID,
	}

	notifier := notify.NewSMTPNotifier(cfg.SMTP)

	worker := workers.NewIngestWorker(pipe, bus, sqliteStore, pool)
	batch := workers.NewBatchRunner(worker, conn)
	embedWorker := workers.NewEmbeddingWorker(pgStore, llmClient)

	if *embedNow {
		n, err := embedWorker.GenerateAll(ctx, false)
		if err != nil {
			log.Fatalf("Embedding backfill failed after %d properties: %v", n, err)
		}
		log.Printf("Embedding backfill complete: %d properties", n)
		return
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.SheetURL != "" {
		source := sheets.NewCSVSource(cfg.Scheduler.SheetURL, clients.API, sqliteStore)
		sched = scheduler.New(cfg.Scheduler, source, worker, notifier)

		if *pollNow {
			if err := sched.PollOnce(ctx); err != nil {
				log.Fatalf("Sheet poll failed: %v", err)
			}
			log.Println("Sheet poll complete")
			return
		}

		if err := sched.Start(ctx); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	} else if *pollNow {
		log.Fatal("SHEET_CSV_URL is not configured")
	}

	if conn != nil {
		unsubscribe, err := worker.Start(ctx, conn)
		if err != nil {
			log.Fatalf("Failed to start ingest worker: %v", err)
		}
		defer unsubscribe()
		log.Println("Ingest worker consuming queue")
	}

	go embedWorker.Run(ctx, 50, 10*time.Minute)
	log.Println("Embedding worker started")

	if cfg.S3.Bucket != "" {
		archive, err := storage.NewImageArchive(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to create image archive: %v", err)
		}
		mediaWorker := workers.NewMediaWorker(pgStore, archive)
		go mediaWorker.Run(ctx, 20, 2*time.Minute)
		log.Println("Media worker started")
	} else {
		log.Println("S3 not configured, image archiving disabled")
	}

	srv := server.New(cfg, pipe, worker, batch, embedWorker, pgStore, registry, bus, tenant.ID)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Goodbye!")
}

// buildRegistry wires the configured sites to their extractors. Sites
// without a dedicated extractor route through the LLM fallback.
func buildRegistry(cfg *config.Config, llmClient *llm.Client) *extractor.Registry {
	base := &extractor.Base{}

	var entries []extractor.Entry
	for id, site := range cfg.Sites {
		if !site.Active {
			continue
		}

		entry := extractor.Entry{SiteID: id, Hosts: site.Hosts}
		switch id {
		case extractor.SiteEncuentra24:
			entry.Extractor = extractor.NewEncuentra24(base, llmClient)
		case extractor.SiteColdwell:
			entry.Extractor = extractor.NewColdwellBanker(base, llmClient)
		}
		entries = append(entries, entry)
	}

	return extractor.NewRegistry(entries, extractor.NewGeneric(extractor.SiteOther, llmClient))
}

// maskConnectionString hides the password when logging a database URL.
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			if colonIdx > 0 {
				return connStr[:colonIdx+1] + "****" + connStr[i:]
			}
			break
		}
	}
	return connStr
}
