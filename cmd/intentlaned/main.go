package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"IntentLane/internal/api"
	"IntentLane/internal/auth"
	"IntentLane/internal/config"
	"IntentLane/internal/events"
	"IntentLane/internal/executor"
	"IntentLane/internal/fills"
	"IntentLane/internal/observability/alerting"
	"IntentLane/internal/settler"
	"IntentLane/internal/sigcheck"
	"IntentLane/internal/state"
	"IntentLane/internal/storage/mysql"
	"IntentLane/pkg/logger"
)

// main 是 IntentLane 结算守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("intentlaned 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("INTENTLANE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "intentlane.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 构建执行环境并灌入创世状态。
	host := state.NewHost()
	if cfg.Domain.Definitions != "" {
		defs, err := config.LoadDefinitions(cfg.Domain.Definitions)
		if err != nil {
			return err
		}
		if defs.Domain.ID != cfg.Domain.ID {
			return fmt.Errorf("域定义 ID 不一致: 配置 %d，定义文件 %d", cfg.Domain.ID, defs.Domain.ID)
		}
		if err := seedGenesis(host, defs); err != nil {
			return err
		}
		logger.L().Info("创世状态加载完成",
			slog.Uint64("domain_id", defs.Domain.ID),
			slog.String("domain_name", defs.Domain.Name),
			slog.Int("tokens", len(defs.Tokens)),
			slog.Int("balances", len(defs.Genesis.Balances)),
			slog.Int("approvals", len(defs.Genesis.Approvals)),
		)
	}

	// 结算、执行与作业存储共享同一个后端。
	var (
		db              *sql.DB
		settlementStore settler.SettlementStore
		executionStore  executor.ExecutionStore
		jobStore        fills.Store
	)
	switch cfg.Storage.Driver {
	case "", "memory":
		settlementStore = settler.NewMemorySettlementStore()
		executionStore = executor.NewMemoryExecutionStore()
		jobStore = fills.NewMemoryStore()
	case "mysql":
		db, err = mysql.Open(ctx, mysql.Config{DSN: cfg.Storage.DSN})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := mysql.Migrate(ctx, db); err != nil {
			return err
		}
		if settlementStore, err = settler.NewMySQLSettlementStore(db); err != nil {
			return err
		}
		if executionStore, err = executor.NewMySQLExecutionStore(db); err != nil {
			return err
		}
		if jobStore, err = fills.NewMySQLStore(db); err != nil {
			return err
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}

	var queue fills.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		queue = fills.NewMemoryQueue(cfg.Queue.Size)
	case "redis":
		queue, err = fills.NewRedisQueue(fills.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Queue,
		})
		if err != nil {
			return err
		}
	case "rabbitmq":
		queue, err = fills.NewRabbitMQQueue(fills.RabbitMQConfig{
			URL:      cfg.Queue.RabbitMQ.URL,
			Queue:    cfg.Queue.RabbitMQ.Queue,
			Prefetch: cfg.Queue.RabbitMQ.Prefetch,
			Durable:  cfg.Queue.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}

	publisher, err := buildEventPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	alerter := buildAlertDispatcher(cfg)

	// 能力令牌是 Settler 调用执行代理的唯一凭证，进程启动时生成。
	capability, err := executor.NewCapability()
	if err != nil {
		return err
	}
	verifier := sigcheck.NewRegistry()
	proxies := executor.NewRegistry(cfg.Domain.ID, executionStore, verifier, capability,
		executor.WithStrictFingerprint(cfg.Settlement.StrictFingerprint),
	)
	defer proxies.Close()

	stl := settler.New(host, settlementStore, proxies, capability,
		settler.WithVerifyIntentID(cfg.Settlement.VerifyIntentID),
		settler.WithEventPublisher(publisher),
		settler.WithAlertDispatcher(alerter),
	)

	credentials := make([]auth.Credential, 0, len(cfg.Auth.Keys))
	for _, key := range cfg.Auth.Keys {
		credentials = append(credentials, auth.Credential{Name: key.Name, Key: key.Key})
	}
	authService, err := auth.NewService(cfg.Auth.Enabled, credentials)
	if err != nil {
		return err
	}

	fillService := fills.NewService(jobStore, queue, cfg.Settlement.MaxRetries)
	defer func() { _ = fillService.Close() }()

	processor := fills.NewProcessor(stl, jobStore, queue, queue,
		fills.WithWorkerCount(cfg.Settlement.Workers),
		fills.WithProcessorLogger(logger.Named("processor")),
		fills.WithAlertDispatcher(alerter),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("作业处理器异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, fillService, api.WithAuth(authService))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// seedGenesis 将域定义中的创世余额与授权写入执行环境。授权的 spender
// 写作 "escrow" 时解析为托管账户地址。
func seedGenesis(host *state.Host, defs *config.Definitions) error {
	escrow := settler.EscrowAccount()
	return host.Atomically(func(tx *state.Tx) error {
		for _, balance := range defs.Genesis.Balances {
			tx.Mint(common.HexToAddress(balance.Token), common.HexToAddress(balance.Holder), balance.AmountBig())
		}
		for _, native := range defs.Genesis.Native {
			tx.MintNative(common.HexToAddress(native.Account), native.AmountBig())
		}
		for _, approval := range defs.Genesis.Approvals {
			spender := escrow
			if approval.Spender != "" && approval.Spender != "escrow" {
				spender = common.HexToAddress(approval.Spender)
			}
			tx.Approve(common.HexToAddress(approval.Token), common.HexToAddress(approval.Owner), spender, approval.AmountBig())
		}
		return nil
	})
}

// buildAlertDispatcher 根据配置组合告警通知器。未启用时返回 nil，
// Settler 与作业处理器据此跳过告警。
func buildAlertDispatcher(cfg *config.Config) alerting.Dispatcher {
	if !cfg.Alerting.Enabled {
		return nil
	}
	notifiers := []alerting.Notifier{alerting.AuditNotifier{}}
	if cfg.Alerting.DingTalk.Webhook != "" {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{
			Sender: alerting.NewDingTalkWebhook(cfg.Alerting.DingTalk.Webhook),
		})
	}
	if cfg.Alerting.Slack.Webhook != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    alerting.NewSlackWebhook(cfg.Alerting.Slack.Webhook),
			ChannelID: cfg.Alerting.Slack.Channel,
		})
	}
	return alerting.NewFanout(notifiers...)
}

// buildEventPublisher 根据配置组合事件发布通道。
func buildEventPublisher(cfg *config.Config) (events.Publisher, error) {
	publishers := make([]events.Publisher, 0, len(cfg.Events.Sinks))
	for _, sink := range cfg.Events.Sinks {
		switch sink {
		case "audit":
			publishers = append(publishers, events.AuditPublisher{})
		case "memory":
			publishers = append(publishers, events.NewMemoryPublisher(cfg.Events.MemoryCapacity))
		case "redis":
			publisher, err := events.NewRedisPublisher(events.RedisPublisherConfig{
				Address:  cfg.Queue.Redis.Address,
				Password: cfg.Queue.Redis.Password,
				DB:       cfg.Queue.Redis.DB,
				Stream:   cfg.Queue.Redis.Stream,
			})
			if err != nil {
				return nil, err
			}
			publishers = append(publishers, publisher)
		case "rabbitmq":
			publisher, err := events.NewRabbitMQPublisher(events.RabbitMQPublisherConfig{
				URL:      cfg.Queue.RabbitMQ.URL,
				Exchange: cfg.Queue.RabbitMQ.Exchange,
				Durable:  cfg.Queue.RabbitMQ.Durable,
			})
			if err != nil {
				return nil, err
			}
			publishers = append(publishers, publisher)
		default:
			return nil, fmt.Errorf("未知的事件通道: %s", sink)
		}
	}
	return events.NewFanout(publishers...), nil
}
