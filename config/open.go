package config

import (
	"context"
	stdErrors "errors"
	"os"

	core "gqm/data/db"
	"gqm/data/db/basic"
	"gqm/errors"
	"gqm/logging"
	"gqm/manager"
	"gqm/metrics"
	"gqm/notify"
	"gqm/notify/memory"
	"gqm/notify/natsjetstream"
	"gqm/notify/outbox"
	"gqm/notify/redisstreams"
)

// Runtime 按配置装配好的运行环境
type Runtime struct {
	Config    *Config
	Logger    logging.Logger
	DB        core.IDatabase
	Registry  *manager.Registry
	Metrics   *metrics.Collector
	Transport notify.Transport
	Publisher *notify.Publisher
	Outbox    *outbox.Outbox
	Relay     *outbox.Relay
}

// Open 打开数据库并创建注册表；启用通知时传输在返回前已启动
func Open(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	rt.DB, err = basic.New(cfg.Database)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "config: open database")
	}

	opts := []manager.Option{
		manager.WithLogger(logger),
		manager.WithLazyManyToOne(cfg.Manager.LazyManyToOne),
	}
	if cfg.Manager.IdentifierGenerator == "snowflake" {
		gen, err := manager.NewSnowflakeGenerator(cfg.Manager.Snowflake)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		opts = append(opts, manager.WithIdentifierGenerator(gen))
	}
	if cfg.Metrics.Enabled {
		rt.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		opts = append(opts, manager.WithEventListener(rt.Metrics))
	}
	if cfg.Notify.Transport != "none" {
		if err := rt.openNotify(ctx, cfg.Notify); err != nil {
			_ = rt.Close()
			return nil, err
		}
		if rt.Outbox != nil {
			opts = append(opts, manager.WithEventListener(rt.Outbox))
		} else {
			opts = append(opts, manager.WithEventListener(rt.Publisher))
		}
	}

	rt.Registry, err = manager.NewRegistry(rt.DB, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	logger.Info(ctx, "gqm runtime opened",
		logging.String("driver", rt.Registry.Dialect().DriverName()),
		logging.String("notify", cfg.Notify.Transport),
		logging.Bool("metrics", cfg.Metrics.Enabled))
	return rt, nil
}

func (rt *Runtime) openNotify(ctx context.Context, cfg NotifyConfig) error {
	codec, err := notify.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	switch cfg.Transport {
	case "memory":
		mc := cfg.Memory
		mc.Logger = rt.Logger
		rt.Transport = memory.NewTransport(mc)
	case "redis":
		rc := cfg.Redis
		rc.Codec, rc.Logger = codec, rt.Logger
		rt.Transport = redisstreams.NewTransport(rc)
	case "nats":
		nc := cfg.NATS
		nc.Codec, nc.Logger = codec, rt.Logger
		rt.Transport = natsjetstream.NewTransport(nc)
	}
	if err := rt.Transport.Start(ctx); err != nil {
		return err
	}

	popts := []notify.PublisherOption{
		notify.WithBreaker(cfg.Breaker),
		notify.WithRetry(cfg.Retry),
		notify.WithPublisherLogger(rt.Logger),
	}
	if len(cfg.Kinds) > 0 {
		popts = append(popts, notify.WithKinds(eventKinds(cfg.Kinds)...))
	}
	if rt.Metrics != nil {
		popts = append(popts, notify.WithRecorder(rt.Metrics))
	}
	rt.Publisher = notify.NewPublisher(rt.Transport, popts...)
	if !cfg.Outbox.Enabled {
		return nil
	}

	oopts := []outbox.Option{outbox.WithTable(cfg.Outbox.Table), outbox.WithLogger(rt.Logger)}
	if len(cfg.Kinds) > 0 {
		oopts = append(oopts, outbox.WithKinds(eventKinds(cfg.Kinds)...))
	}
	rt.Outbox, err = outbox.New(rt.DB, oopts...)
	if err != nil {
		return err
	}
	if err := rt.Outbox.Install(ctx); err != nil {
		return err
	}
	rt.Relay = outbox.NewRelay(rt.Outbox, rt.Publisher, cfg.Outbox.Relay)
	rt.Relay.Start(ctx)
	return nil
}

// Close 关闭传输与数据库
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Relay != nil {
		rt.Relay.Stop()
	}
	if rt.Transport != nil {
		errs = append(errs, rt.Transport.Close())
	}
	if rt.DB != nil {
		errs = append(errs, rt.DB.Close())
	}
	return stdErrors.Join(errs...)
}

func newLogger(cfg LoggingConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "config: logging level")
	}
	switch cfg.Driver {
	case "noop":
		return logging.NewNoopLogger(), nil
	case "std":
		return logging.NewStdLoggerTo(os.Stderr, "gqm", level), nil
	}
	logger, err := logging.NewProductionZapLogger(cfg.Development, level)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfiguration, "config: build zap logger")
	}
	return logger, nil
}

func eventKinds(names []string) []manager.EventKind {
	kinds := make([]manager.EventKind, len(names))
	for i, k := range names {
		kinds[i] = manager.EventKind(k)
	}
	return kinds
}
