package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"certverify/internal/certificate/handler"
	certservice "certverify/internal/certificate/service"
	certstore "certverify/internal/certificate/store"
	"certverify/internal/document/blob"
	"certverify/internal/document/extractor"
	dochandler "certverify/internal/document/handler"
	docmetrics "certverify/internal/document/metrics"
	docservice "certverify/internal/document/service"
	docstore "certverify/internal/document/store"
	"certverify/internal/evidence/cache"
	"certverify/internal/evidence/guard"
	"certverify/internal/evidence/providers"
	"certverify/internal/evidence/providers/httpprovider"
	httpapi "certverify/internal/http"
	jwttoken "certverify/internal/jwt_token"
	"certverify/internal/matching"
	"certverify/internal/platform/config"
	"certverify/internal/platform/kafka"
	"certverify/internal/platform/metrics"
	"certverify/internal/platform/postgres"
	redisplatform "certverify/internal/platform/redis"
	reviewhandler "certverify/internal/review/handler"
	reviewmetrics "certverify/internal/review/metrics"
	reviewservice "certverify/internal/review/service"
	reviewstore "certverify/internal/review/store"
	"certverify/internal/similarity"
	"certverify/internal/verification/adapters"
	vhandler "certverify/internal/verification/handler"
	vmetrics "certverify/internal/verification/metrics"
	vmodels "certverify/internal/verification/models"
	vservice "certverify/internal/verification/service"
	vstore "certverify/internal/verification/store"
	"certverify/pkg/platform/audit"
	auditpublisher "certverify/pkg/platform/audit/publisher"
	auditmemory "certverify/pkg/platform/audit/store/memory"
	auditpostgres "certverify/pkg/platform/audit/store/postgres"
	"certverify/pkg/platform/audit/worker"
	"certverify/pkg/platform/circuit"
	"certverify/pkg/platform/middleware/auth"
	"certverify/pkg/platform/tx"
)

// App holds the wired application and everything that must be drained or
// closed on shutdown.
type App struct {
	Router http.Handler
	Relay  *worker.Relay

	log           *slog.Logger
	documents     *docservice.Service
	verifications *vservice.Service
	publisher     *auditpublisher.Publisher
	closers       []func() error
}

type stores struct {
	documents     docservice.Store
	certificates  certservice.Store
	verifications vservice.Store
	reviews       reviewservice.Store
	audit         audit.Store
	runner        tx.Runner
	outbox        *auditpostgres.Store
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{log: log}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	platformMetrics := metrics.New()
	health := map[string]httpapi.HealthCheck{}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db != nil {
		app.closers = append(app.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		health["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}
	st := newStores(db)

	publisher := auditpublisher.NewPublisher(st.audit, auditpublisher.WithLogger(log))
	app.publisher = publisher

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if c, isCloser := blobs.(io.Closer); isCloser {
		app.closers = append(app.closers, c.Close)
	}
	ex, err := newExtractor(ctx, cfg.Extraction)
	if err != nil {
		return nil, err
	}
	if c, isCloser := ex.(io.Closer); isCloser {
		app.closers = append(app.closers, c.Close)
	}

	matchPolicy := matching.Policy{
		MatchedThreshold: cfg.Matching.MatchedThreshold,
		PartialThreshold: cfg.Matching.PartialThreshold,
	}
	documents := docservice.New(st.documents, blobs, ex,
		docservice.WithLogger(log),
		docservice.WithMetrics(docmetrics.New(platformMetrics.Registry)),
		docservice.WithAuditPublisher(publisher),
		docservice.WithUploadLimits(cfg.Upload.MaxBytes, cfg.Upload.MaxPDFPages),
		docservice.WithExtractionTimeout(cfg.Extraction.Timeout()),
		docservice.WithMatching(
			matching.PANAadhaarRules(cfg.Matching.NameWeight, cfg.Matching.DOBWeight, cfg.Matching.FieldThreshold),
			matchPolicy,
		),
		docservice.WithComparer(similarity.New(matchPolicy)),
	)
	app.documents = documents

	certificates := certservice.New(st.certificates, documents,
		certservice.WithLogger(log),
		certservice.WithAuditPublisher(publisher),
	)

	redisClient, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var registryCache cache.Store = cache.NewMemoryStore(cfg.Redis.RegistryCacheTTL())
	if redisClient != nil {
		app.closers = append(app.closers, redisClient.Close)
		health["redis"] = redisClient.Health
		registryCache = cache.NewRedisStore(redisClient, cfg.Redis.RegistryCacheTTL())
	}

	evidence, err := newEvidenceProviders(cfg.Evidence, registryCache, log)
	if err != nil {
		return nil, err
	}
	for _, p := range evidence.All() {
		health["provider:"+p.ID()] = p.Health
	}

	escalator := adapters.NewReviewEscalator(nil)
	verifOpts := []vservice.Option{
		vservice.WithLogger(log),
		vservice.WithMetrics(vmetrics.New(platformMetrics.Registry)),
		vservice.WithAuditPublisher(publisher),
		vservice.WithEscalator(escalator),
		vservice.WithPolicy(verificationPolicy(cfg.Policy)),
		vservice.WithTimeouts(cfg.Evidence.StepTimeout(), cfg.Policy.RunTimeout()),
	}
	verifOpts = append(verifOpts, collectorOptions(evidence, cfg.Matching, matchPolicy, log)...)
	verifications := vservice.New(st.verifications, certificates, verifOpts...)
	app.verifications = verifications

	reviews := reviewservice.New(st.reviews, verifications, st.runner,
		reviewservice.WithLogger(log),
		reviewservice.WithMetrics(reviewmetrics.New(platformMetrics.Registry)),
		reviewservice.WithAuditPublisher(publisher),
	)
	escalator.Bind(reviews)

	var validator auth.TokenValidator
	if cfg.Auth.JWTSigningKey != "" {
		validator = jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	} else {
		log.Warn("JWT_SIGNING_KEY not set, verifier identity taken from " + auth.VerifierHeader)
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		app.closers = append(app.closers, func() error { producer.Close(); return nil })
		health["kafka"] = producer.Health
		if st.outbox == nil {
			log.Warn("kafka configured without postgres, audit events stay in memory")
		} else {
			if err := producer.EnsureTopic(ctx, cfg.Kafka.AuditTopic, 3, 1); err != nil {
				return nil, err
			}
			app.Relay = worker.NewRelay(st.outbox, producer, cfg.Kafka.AuditTopic,
				worker.WithInterval(cfg.Kafka.RelayInterval()),
				worker.WithLogger(log),
			)
		}
	}

	app.Router = httpapi.NewRouter(httpapi.Config{
		Logger:  log,
		Metrics: platformMetrics,
		Public: []httpapi.Registrar{
			dochandler.New(documents, log, cfg.Upload.MaxBytes),
			handler.New(certificates, log),
			vhandler.New(verifications, log),
		},
		Verifier:     []httpapi.Registrar{reviewhandler.New(reviews, log)},
		VerifierAuth: auth.RequireVerifier(validator, log),
		Health:       health,
	})
	ok = true
	return app, nil
}

func newStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			documents:     docstore.NewInMemoryStore(),
			certificates:  certstore.NewInMemoryStore(),
			verifications: vstore.NewInMemoryStore(),
			reviews:       reviewstore.NewInMemoryStore(),
			audit:         auditmemory.NewInMemoryStore(),
			runner:        tx.NewMemoryRunner(),
		}
	}
	outbox := auditpostgres.New(db)
	return stores{
		documents:     docstore.NewPostgresStore(db),
		certificates:  certstore.NewPostgresStore(db),
		verifications: vstore.NewPostgresStore(db),
		reviews:       reviewstore.NewPostgresStore(db),
		audit:         outbox,
		runner:        tx.NewPostgresRunner(db),
		outbox:        outbox,
	}
}

func newBlobStore(ctx context.Context, cfg config.Storage) (docservice.BlobStore, error) {
	switch cfg.Backend {
	case "gcs":
		return blob.NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return blob.NewFSStore(cfg.Dir)
	}
}

func newExtractor(ctx context.Context, cfg config.Extraction) (docservice.Extractor, error) {
	switch cfg.Provider {
	case "vertex":
		return extractor.NewVertexExtractor(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModel)
	default:
		return extractor.NewHTTPExtractor(cfg.URL, cfg.Timeout()), nil
	}
}

// newEvidenceProviders builds the HTTP providers, each behind its own circuit
// breaker. Registry lookups are additionally cached.
func newEvidenceProviders(cfg config.Evidence, registryCache cache.Store, log *slog.Logger) (*providers.Registry, error) {
	breaker := func(name string) *circuit.Breaker {
		return circuit.New(name,
			circuit.WithFailureThreshold(cfg.BreakerFailureThreshold),
			circuit.WithCooldown(cfg.BreakerCooldown()),
		)
	}
	timeout := cfg.StepTimeout()

	registry := providers.NewRegistry()
	var errs []error
	if cfg.DigitalURL != "" {
		p := httpprovider.NewDigitalProvider("digital-validator", cfg.DigitalURL, cfg.APIKey, timeout)
		errs = append(errs, registry.Register(guard.Wrap(p, breaker(p.ID()), guard.WithLogger(log))))
	}
	if cfg.PortalURL != "" {
		p := httpprovider.NewRegistryProvider("registry-portal", cfg.PortalURL, cfg.APIKey, timeout)
		guarded := guard.Wrap(p, breaker(p.ID()), guard.WithLogger(log))
		errs = append(errs, registry.Register(cache.Wrap(guarded, registryCache, cache.WithLogger(log))))
	}
	if cfg.ForensicURL != "" {
		p := httpprovider.NewForensicProvider("forensic-analyzer", cfg.ForensicURL, cfg.APIKey, timeout)
		errs = append(errs, registry.Register(guard.Wrap(p, breaker(p.ID()), guard.WithLogger(log))))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("register evidence providers: %w", err)
	}
	return registry, nil
}

// collectorOptions binds one collector per step type. Step types without a
// configured provider are left unbound and their steps are SKIPPED.
func collectorOptions(registry *providers.Registry, cfg config.Matching, policy matching.Policy, log *slog.Logger) []vservice.Option {
	var opts []vservice.Option
	if p, err := registry.FirstByType(providers.ProviderTypeDigital); err == nil {
		opts = append(opts, vservice.WithCollector(vmodels.StepSignatureCheck, adapters.NewDigitalCollector(p)))
	} else {
		log.Warn("no digital validator configured, SIGNATURE_CHECK steps will be skipped")
	}
	if p, err := registry.FirstByType(providers.ProviderTypeRegistry); err == nil {
		rules := matching.CertificateRegistryRules(cfg.FieldThreshold)
		opts = append(opts, vservice.WithCollector(vmodels.StepRegistryLookup, adapters.NewRegistryCollector(p, rules, policy)))
	} else {
		log.Warn("no registry portal configured, REGISTRY_LOOKUP steps will be skipped")
	}
	if p, err := registry.FirstByType(providers.ProviderTypeForensic); err == nil {
		opts = append(opts, vservice.WithCollector(vmodels.StepRiskAnalysis, adapters.NewForensicCollector(p)))
	} else {
		log.Warn("no forensic analyzer configured, RISK_ANALYSIS steps will be skipped")
	}
	return opts
}

func verificationPolicy(cfg config.Policy) vmodels.Policy {
	policy := vmodels.Policy{
		VerifiedThreshold: cfg.VerifiedThreshold,
		ReviewThreshold:   cfg.ReviewThreshold,
	}
	for _, step := range cfg.CombinedMandatory {
		policy.CombinedMandatory = append(policy.CombinedMandatory, vmodels.StepType(step))
	}
	return policy
}

// Drain waits for background document and verification work.
func (a *App) Drain(ctx context.Context) error {
	return errors.Join(
		a.documents.Shutdown(ctx),
		a.verifications.Shutdown(ctx),
	)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}
