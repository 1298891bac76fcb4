package platform

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/config"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/kafka"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/metrics"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/pix"
	s3infra "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/s3"
	tginfra "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/infra/telegram"
	pgrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/postgres"
	redrepo "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/repo/redis"
	"github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/delivery"
	paymentsvc "github.com/LimaTechnologies/admin-telegram-bot-sub000/internal/services/payments"
)

// Platform holds the connections and services shared by the api, bot and worker processes.
type Platform struct {
	Config   config.Config
	Logger   *zap.Logger
	Postgres *pgxpool.Pool
	Redis    *goredis.Client
	S3       *minio.Client
	Bot      *tginfra.Bot
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Purchases    *pgrepo.PurchaseRepo
	Transactions *pgrepo.TransactionRepo
	Catalog      *pgrepo.CatalogRepo

	Gateway   *pix.Client
	Publisher *kafka.Publisher
	Delivery  *delivery.Service
	Payments  *paymentsvc.Service
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Platform, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, pgrepo.PoolConfig{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	bot, err := tginfra.NewBot(cfg.Bot.Token, log.Named("telegram"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	var s3Client *minio.Client
	var signer delivery.URLSigner
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
		Region:    cfg.S3.Region,
	}); err != nil {
		log.Warn("s3 init failed, object-key content will not be deliverable", zap.Error(err))
	} else {
		s3Client = c
		signer = s3infra.NewPresigner(c, cfg.S3.Bucket, cfg.S3.PresignTTL)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	purchases := pgrepo.NewPurchaseRepo(pool)
	transactions := pgrepo.NewTransactionRepo(pool)
	ledger := pgrepo.NewLedgerRepo(pool)
	catalog := pgrepo.NewCatalogRepo(pool)
	buyers := pgrepo.NewBuyerRepo(pool)

	gateway := pix.New(pix.Config{
		BaseURL:      cfg.Payment.BaseURL,
		APIKey:       cfg.Payment.APIKey,
		Live:         cfg.Payment.LiveMode(),
		Timeout:      cfg.Payment.HTTPTimeout,
		CodeTTL:      cfg.Payment.CodeTTL,
		AutopayDelay: cfg.Payment.AutopayDelay,
		Merchant: pix.Merchant{
			Name:   cfg.Payment.MerchantName,
			City:   cfg.Payment.MerchantCity,
			PixKey: cfg.Payment.PixKey,
		},
	}, log.Named("pix"))
	if gateway.Simulated() {
		log.Warn("pix gateway running in simulation mode")
	}

	deliveryService := delivery.NewService(delivery.Dependencies{
		Purchases: purchases,
		Content:   catalog,
		Sender:    bot,
		Signer:    signer,
		BatchSize: cfg.Delivery.BatchSize,
		Lease:     cfg.Delivery.Lease,
		Logger:    log.Named("delivery"),
	})
	deliveryService.AttachMetrics(m)

	publisher := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("kafka"))

	paymentService := paymentsvc.NewService(paymentsvc.Dependencies{
		Purchases:    purchases,
		Transactions: transactions,
		Ledger:       ledger,
		Catalog:      catalog,
		Buyers:       buyers,
		Gateway:      gateway,
		Deliverer:    deliveryService,
		Logger:       log.Named("payments"),
	})
	paymentService.AttachMetrics(m)
	deliveryService.OnCompleted(paymentService.DeliveryCompleted)
	if publisher.Enabled() {
		paymentService.AttachPublisher(publisher)
	}

	return &Platform{
		Config:       cfg,
		Logger:       log,
		Postgres:     pool,
		Redis:        redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
		S3:           s3Client,
		Bot:          bot,
		Registry:     registry,
		Metrics:      m,
		Purchases:    purchases,
		Transactions: transactions,
		Catalog:      catalog,
		Gateway:      gateway,
		Publisher:    publisher,
		Delivery:     deliveryService,
		Payments:     paymentService,
	}, nil
}

// RedisPinger adapts the redis client to a plain Ping(ctx) error check.
type RedisPinger struct {
	Client *goredis.Client
}

func (p RedisPinger) Ping(ctx context.Context) error {
	if p.Client == nil {
		return fmt.Errorf("redis is not configured")
	}
	return p.Client.Ping(ctx).Err()
}

func (p *Platform) Close() error {
	var closeErr error
	if p.Publisher != nil {
		if err := p.Publisher.Close(); err != nil {
			closeErr = err
		}
	}
	if p.Postgres != nil {
		p.Postgres.Close()
	}
	if p.Redis != nil {
		if err := p.Redis.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}
