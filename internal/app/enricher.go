package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-contact-enricher/internal/config"
	"github.com/samvad-hq/samvad-contact-enricher/internal/enricher"
	"github.com/samvad-hq/samvad-contact-enricher/internal/logger"
	"github.com/samvad-hq/samvad-contact-enricher/internal/metrics"
	"github.com/samvad-hq/samvad-contact-enricher/internal/server"
	"github.com/samvad-hq/samvad-contact-enricher/internal/storage"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/crm"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/httpclient"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/profiles"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/publishers"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/sources"
)

// Enricher is the contact enrichment runtime. It owns the API clients, the
// checkpoint store and the event publishers, and drives enrichment passes
// either once or on a fixed interval.
type Enricher struct {
	cfg      *config.Config
	service  *enricher.Service
	fanout   *publishers.Fanout
	store    storage.Store
	interval time.Duration
	log      logger.Logger
	metrics  *metrics.Recorder
	ops      *server.Server

	mu     sync.RWMutex
	status server.Status
}

// NewEnricher builds the runtime from cfg and the files it references.
func NewEnricher(ctx context.Context, cfg *config.Config, log logger.Logger) (*Enricher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	srcReg, err := sources.Load(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"file":  cfg.SourcesFile,
		"names": srcReg.Names(),
	})

	httpOpts := []httpclient.Option{httpclient.WithTimeout(cfg.HTTPTimeout)}

	crmClient, err := crm.New(cfg.CRMAPIToken,
		crm.WithSource(srcReg.Resolve(sources.NameCRM, crm.DefaultSource())),
		crm.WithBaseURL(cfg.CRMBaseURL),
		crm.WithHealthcheck(cfg.CRMHealthcheck),
		crm.WithHTTPOptions(httpOpts...),
		crm.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("build crm client: %w", err)
	}

	profileClient, err := profiles.New(cfg.ProfileAPIKey,
		profiles.WithSource(srcReg.Resolve(sources.NameProfiles, profiles.DefaultSource())),
		profiles.WithBaseURL(cfg.ProfileBaseURL),
		profiles.WithHTTPOptions(httpOpts...),
		profiles.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("build profile client: %w", err)
	}

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	storeOpts := storage.Options{
		ContactTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
		Redis: storage.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		},
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"contact_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	service := enricher.NewService(crmClient, profileClient, fanout, store, log, enricher.Options{
		LinkedInField: cfg.CRMLinkedInField,
		PageLimit:     cfg.PageLimit,
	})

	e := &Enricher{
		cfg:      cfg,
		service:  service,
		fanout:   fanout,
		store:    store,
		interval: cfg.EnrichInterval,
		log:      log,
		metrics:  metrics.New(),
	}
	if cfg.MetricsAddr != "" {
		e.ops = server.New(cfg.MetricsAddr, e.metrics.Handler(), e.Status, log)
	}
	return e, nil
}

// Status reports the outcome of the latest pass.
func (e *Enricher) Status() server.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// buildFanout loads the optional publishers file. No file means enrichment
// results are only written back to the CRM.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if cfg.PublishersFile == "" {
		log.InfoObj("no publishers file configured; events disabled", "publishers_meta", map[string]any{"count": 0})
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubClients), nil
}

// Run performs one enrichment pass, then repeats every interval until ctx is
// cancelled. With a zero interval it returns after the first pass.
func (e *Enricher) Run(ctx context.Context) error {
	if e == nil || e.service == nil {
		return fmt.Errorf("enricher is not initialized")
	}
	defer e.close()
	e.startOps()

	e.log.InfoObj("enricher starting", "enricher_state", map[string]any{
		"publishers_count": e.fanout.Size(),
		"interval":         e.interval.String(),
	})

	if e.interval <= 0 {
		return e.runOnce(ctx)
	}

	if err := e.runOnce(ctx); err != nil {
		e.log.ErrorObj("initial enrichment failed", "error", err.Error())
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.InfoObj("enricher loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			if err := e.runOnce(ctx); err != nil {
				e.log.ErrorObj("scheduled enrichment failed", "error", err.Error())
			}
		}
	}
}

func (e *Enricher) runOnce(ctx context.Context) error {
	start := time.Now()
	sum, err := e.service.Run(ctx)
	elapsed := time.Since(start)
	e.log.InfoObj("enrichment finished", "enrich_meta", map[string]any{
		"summary":    sum,
		"elapsed_ms": elapsed.Milliseconds(),
		"failed":     err != nil,
	})
	e.record(sum, err, elapsed)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Enricher) record(sum enricher.Summary, err error, elapsed time.Duration) {
	now := time.Now().UTC()
	e.metrics.AddContacts(metrics.OutcomeEnriched, sum.Enriched)
	e.metrics.AddContacts(metrics.OutcomeSkipped, sum.Skipped)
	e.metrics.AddContacts(metrics.OutcomeFailed, sum.Failed)
	e.metrics.ObserveRun(err == nil, elapsed, now)

	st := server.Status{Ready: true, LastRunAt: now, Summary: sum}
	if err != nil {
		st.LastError = err.Error()
	}
	e.mu.Lock()
	e.status = st
	e.mu.Unlock()
}

func (e *Enricher) startOps() {
	if e.ops == nil {
		return
	}
	go func() {
		if err := e.ops.Start(); err != nil {
			e.log.ErrorObj("ops server failed", "error", err.Error())
		}
	}()
}

// close stops the ops server and releases the store and publisher clients,
// logging any errors.
func (e *Enricher) close() {
	if e.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.ops.Stop(ctx); err != nil {
			e.log.ErrorObj("ops server stop failed", "error", err.Error())
		}
		cancel()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.ErrorObj("storage close failed", "error", err.Error())
		}
	}
	if err := e.fanout.Close(); err != nil {
		e.log.ErrorObj("publishers close failed", "error", err.Error())
	}
}
