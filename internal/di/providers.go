package di

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/paeltech/savannaFx-sub000/internal/domain/models"
	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	"github.com/paeltech/savannaFx-sub000/internal/handler/api"
	chrepo "github.com/paeltech/savannaFx-sub000/internal/repository/clickhouse"
	"github.com/paeltech/savannaFx-sub000/internal/repository/events"
	"github.com/paeltech/savannaFx-sub000/internal/repository/memory"
	"github.com/paeltech/savannaFx-sub000/internal/repository/postgres"
	"github.com/paeltech/savannaFx-sub000/internal/service/contacts"
	"github.com/paeltech/savannaFx-sub000/internal/service/gateway"
	"github.com/paeltech/savannaFx-sub000/internal/service/ratelimit"
	"github.com/paeltech/savannaFx-sub000/internal/service/realtime"
	"github.com/paeltech/savannaFx-sub000/internal/usecase"
	"github.com/paeltech/savannaFx-sub000/pkg/cache"
	pkgch "github.com/paeltech/savannaFx-sub000/pkg/clickhouse"
	"github.com/paeltech/savannaFx-sub000/pkg/clock"
	"github.com/paeltech/savannaFx-sub000/pkg/config"
	xhttp "github.com/paeltech/savannaFx-sub000/pkg/http"
	pkgkafka "github.com/paeltech/savannaFx-sub000/pkg/kafka"
	"github.com/paeltech/savannaFx-sub000/pkg/logger"
	"github.com/paeltech/savannaFx-sub000/pkg/metrics"
	"github.com/paeltech/savannaFx-sub000/pkg/queue"
	"github.com/paeltech/savannaFx-sub000/pkg/scheduler"
	"github.com/paeltech/savannaFx-sub000/pkg/server"
)

// Stores groups the per-aggregate stores of one storage driver.
type Stores struct {
	Signals drepo.SignalStore
	Plans   drepo.PricingStore
	Subs    drepo.SubscriptionStore
	Groups  drepo.GroupStore
	Mailbox drepo.NotificationStore
	Ping    api.Pinger
}

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

func ProvideClock() clock.Clock {
	return clock.Real{}
}

// ProvideSnowflake issues revision ids. Instances sharing a database need
// distinct node ids or their ids collide.
func ProvideSnowflake(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}

// ProvideStores opens the configured storage driver.
func ProvideStores(cfg *config.Config, lgr *logger.Logger) (*Stores, func(), error) {
	if cfg.Storage.Driver == "memory" {
		lgr.Warn("using in-memory storage, data is lost on restart")
		s := memory.New()
		return &Stores{Signals: s, Plans: s, Subs: s, Groups: s, Mailbox: s,
			Ping: func(context.Context) error { return nil }}, func() {}, nil
	}

	db, err := postgres.Open(postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		Debug:           cfg.Postgres.Debug,
	})
	if err != nil {
		return nil, nil, err
	}
	s := postgres.New(db)
	cleanup := func() {
		if err := s.Close(); err != nil {
			lgr.Warn("close postgres", logger.Error(err))
		}
	}
	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	return &Stores{Signals: s, Plans: s, Subs: s, Groups: s, Mailbox: s, Ping: s.Ping}, cleanup, nil
}

// ProvideRedis returns nil when redis is disabled.
func ProvideRedis(cfg *config.Config, lgr *logger.Logger) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
	)
	if err != nil {
		return nil, nil, err
	}
	return client, func() {
		if err := client.Close(); err != nil {
			lgr.Warn("close redis", logger.Error(err))
		}
	}, nil
}

// ProvideCache uses redis when available so locks and contacts are shared
// across replicas.
func ProvideCache(cfg *config.Config, client *redis.Client) cache.Service {
	if client == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(client, cfg.Redis.KeyPrefix)
}

func ProvideLocker(c cache.Service) drepo.Locker {
	return c
}

func ProvideContacts(c cache.Service) *contacts.Directory {
	return contacts.New(c)
}

func ProvideHub(lgr *logger.Logger) *realtime.Hub {
	return realtime.NewHub(lgr)
}

// ProvideGateway falls back to the loopback gateway when no base URL is set.
func ProvideGateway(cfg *config.Config, lgr *logger.Logger) drepo.MessagingGateway {
	if cfg.Gateway.BaseURL == "" {
		lgr.Warn("gateway.base_url empty, messages are only logged")
		return gateway.NewLoopback(lgr)
	}
	return gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.Token, xhttp.WithTimeout(cfg.Gateway.Timeout))
}

// ProvideEventPublisher writes domain events to Kafka, or to the log without brokers.
func ProvideEventPublisher(cfg *config.Config, lgr *logger.Logger) (drepo.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return events.NewLogPublisher(lgr), func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := events.NewKafkaPublisher(producer, cfg.Kafka.EventsTopic)
	return pub, func() {
		if err := pub.Close(); err != nil {
			lgr.Warn("close kafka producer", logger.Error(err))
		}
	}, nil
}

// ProvideDeliveryLog returns a nil log when ClickHouse is disabled.
func ProvideDeliveryLog(cfg *config.Config, lgr *logger.Logger) (drepo.DeliveryLog, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			lgr.Warn("close clickhouse", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, chrepo.Schema(cfg.ClickHouse.Table)); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return chrepo.NewDeliveryLog(client.DB(), cfg.ClickHouse.Table), cleanup, nil
}

func ProvideSignalLedger(stores *Stores, pub drepo.EventPublisher, m drepo.Metrics, clk clock.Clock, ids *snowflake.Node, lgr *logger.Logger) *usecase.SignalLedger {
	return usecase.NewSignalLedger(stores.Signals, pub, m, clk, ids, lgr)
}

// ProvideSubscriptionAccount also seeds the configured pricing plans.
func ProvideSubscriptionAccount(cfg *config.Config, stores *Stores, pub drepo.EventPublisher, m drepo.Metrics, clk clock.Clock, lgr *logger.Logger) (*usecase.SubscriptionAccount, error) {
	account := usecase.NewSubscriptionAccount(stores.Subs, stores.Plans, pub, m, clk, lgr)
	if len(cfg.Pricing) == 0 {
		return account, nil
	}

	seeds := make([]models.PricingPlan, 0, len(cfg.Pricing))
	for _, p := range cfg.Pricing {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("pricing %s: invalid price %q: %w", p.Type, p.Price, err)
		}
		seeds = append(seeds, models.PricingPlan{
			PricingType: models.PlanType(p.Type),
			Price:       price,
			Currency:    p.Currency,
			Description: p.Description,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := account.SeedPlans(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("seed pricing: %w", err)
	}
	if n > 0 {
		lgr.Info("pricing plans seeded", logger.Int("created", n))
	}
	return account, nil
}

func ProvideGroupAllocator(cfg *config.Config, stores *Stores, gw drepo.MessagingGateway, locker drepo.Locker, pub drepo.EventPublisher, m drepo.Metrics, clk clock.Clock, lgr *logger.Logger) *usecase.GroupAllocator {
	return usecase.NewGroupAllocator(stores.Groups, stores.Subs, gw, locker, pub, m, clk, lgr, usecase.AllocatorConfig{
		DefaultMaxMembers: cfg.Allocator.MaxMembers,
		GroupNamePrefix:   cfg.Allocator.GroupPrefix,
		LockTTL:           cfg.Allocator.LockTTL,
	})
}

func ProvideDispatcher(
	cfg *config.Config,
	stores *Stores,
	gw drepo.MessagingGateway,
	dir *contacts.Directory,
	hub *realtime.Hub,
	deliveries drepo.DeliveryLog,
	pub drepo.EventPublisher,
	m drepo.Metrics,
	clk clock.Clock,
	lgr *logger.Logger,
) *usecase.NotificationDispatcher {
	return usecase.NewNotificationDispatcher(usecase.DispatcherDeps{
		Signals:    stores.Signals,
		Subs:       stores.Subs,
		Mailbox:    stores.Mailbox,
		Gateway:    gw,
		Contacts:   dir,
		Pusher:     hub,
		Deliveries: deliveries,
		Events:     pub,
		Metrics:    m,
		Clock:      clk,
		Logger:     lgr,
	}, ratelimit.New(), usecase.DispatcherConfig{
		Concurrency:   cfg.Dispatch.Concurrency,
		RatePerSecond: cfg.Dispatch.RatePerSecond,
		Burst:         cfg.Dispatch.Burst,
		SendTimeout:   cfg.Dispatch.SendTimeout,
	})
}

// ProvideQueue returns nil in sync dispatch mode.
func ProvideQueue(cfg *config.Config, client *redis.Client, stores *Stores, d *usecase.NotificationDispatcher, lgr *logger.Logger) *queue.RedisQueue {
	if cfg.Dispatch.Mode != usecase.DispatchModeQueue || client == nil {
		return nil
	}
	q := queue.NewRedisQueue(lgr, queue.QueueConfig{Workers: cfg.Dispatch.QueueWorkers}, client,
		queue.WithKeyPrefix(cfg.Redis.KeyPrefix+":queue"))
	q.RegisterJob(usecase.NewDispatchJob(stores.Signals, d, lgr))
	return q
}

func ProvideNotifier(q *queue.RedisQueue, d *usecase.NotificationDispatcher, lgr *logger.Logger) usecase.SignalNotifier {
	if q == nil {
		return d
	}
	return usecase.NewQueuedNotifier(q, lgr)
}

// ProvideConsumer returns nil unless the billing consumers are enabled.
func ProvideConsumer(cfg *config.Config, account *usecase.SubscriptionAccount, lgr *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(lgr,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewPaymentEventsHandler(cfg.Kafka.Consumer.PaymentsTopic, account, lgr))
	consumer.RegisterHandler(usecase.NewPipUsageHandler(cfg.Kafka.Consumer.PipsTopic, account, lgr))
	return consumer, nil
}

// ProvideScheduler registers the monthly group refresh and the daily expiry sweep.
func ProvideScheduler(cfg *config.Config, allocator *usecase.GroupAllocator, account *usecase.SubscriptionAccount, lgr *logger.Logger) (*scheduler.Runner, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	r := scheduler.New(lgr)
	if _, err := r.Add("group_refresh", cfg.Scheduler.RefreshSpec, func(ctx context.Context) error {
		_, err := allocator.Refresh(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("schedule group refresh: %w", err)
	}
	if _, err := r.Add("subscription_expiry", cfg.Scheduler.ExpirySweepSpec, func(ctx context.Context) error {
		n, err := account.ExpireDue(ctx)
		if n > 0 {
			lgr.Info("subscriptions expired", logger.Int("count", n))
		}
		return err
	}); err != nil {
		return nil, fmt.Errorf("schedule expiry sweep: %w", err)
	}
	return r, nil
}

func ProvideHandlers(
	stores *Stores,
	client *redis.Client,
	lgr *logger.Logger,
	ledger *usecase.SignalLedger,
	notifier usecase.SignalNotifier,
	dispatcher *usecase.NotificationDispatcher,
	account *usecase.SubscriptionAccount,
	allocator *usecase.GroupAllocator,
	hub *realtime.Hub,
	dir *contacts.Directory,
	q *queue.RedisQueue,
) []xhttp.Handler {
	checks := map[string]api.Pinger{"storage": stores.Ping}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	var parked api.ParkedMessages
	if q != nil {
		parked = q
	}
	return []xhttp.Handler{
		api.NewHealthHandler(checks),
		api.NewSignalsHandler(lgr, ledger, notifier, dispatcher, account),
		api.NewSubscriptionsHandler(lgr, account),
		api.NewGroupsHandler(lgr, allocator),
		api.NewPricingHandler(lgr, account),
		api.NewNotificationsHandler(lgr, stores.Mailbox, hub, dir),
		api.NewDispatchHandler(lgr, parked),
	}
}

func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(lgr, handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideApp assembles the lifecycle; optional components are skipped when nil.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	srv *xhttp.Server,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	sched *scheduler.Runner,
) *server.App {
	app := server.New(lgr, srv, cfg.Server.ShutdownTimeout)
	if q != nil {
		app.Add(server.Component{Name: "dispatch-queue", Start: q.Start, Stop: q.Stop})
	}
	if consumer != nil {
		app.Add(server.Component{Name: "billing-consumer", Start: consumer.Start, Stop: consumer.Stop})
	}
	if sched != nil {
		app.Add(server.Component{
			Name:  "scheduler",
			Start: func() error { sched.Start(); return nil },
			Stop:  sched.Stop,
		})
	}
	return app
}
