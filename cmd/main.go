package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recruit-agent-go/internal/api/handler"
	"recruit-agent-go/internal/api/router"
	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/elicitation"
	"recruit-agent-go/internal/llm"
	"recruit-agent-go/internal/matcher"
	"recruit-agent-go/internal/scheduler"
	"recruit-agent-go/internal/storage"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	appCoreLogger "recruit-agent-go/internal/logger"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
)

var (
	version     = "1.0.0"            //nolint:gochecknoglobals
	serviceName = "recruit-agent-go" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("加载配置失败")
	}
	if err := cfg.Validate(); err != nil {
		zlog.Fatal().Err(err).Msg("配置校验失败")
	}

	initLogger(&cfg.Logger)
	glog.Infof("%s v%s 配置加载成功", serviceName, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	evaluator, err := buildEvaluator(cfg)
	if err != nil {
		glog.Fatalf("初始化匹配评估后端失败: %v", err)
	}
	glog.Infof("匹配引擎初始化成功: %s", cfg.Matcher.Engine)

	// Redis与RabbitMQ是可选依赖：缺失时调度退化为DB+兜底扫描，缓存全部失效
	var schedulerOpts []scheduler.SchedulerOption
	if storageManager.RabbitMQ != nil {
		schedulerOpts = append(schedulerOpts, scheduler.WithDispatcher(storageManager.RabbitMQ))
	}
	if storageManager.Redis != nil {
		schedulerOpts = append(schedulerOpts,
			scheduler.WithPairCache(storageManager.Redis),
			scheduler.WithCompiledCache(storageManager.Redis))
	}
	jobScheduler, err := scheduler.NewScheduler(
		storageManager.MySQL,
		storageManager.MySQL,
		storageManager.MySQL,
		evaluator,
		cfg,
		schedulerOpts...,
	)
	if err != nil {
		glog.Fatalf("初始化任务调度器失败: %v", err)
	}
	glog.Info("任务调度器初始化成功")

	engineOpts := []elicitation.Option{
		// 需求完成后立即对所有者名下画像扇出分析任务
		elicitation.WithCompletionNotifier(jobScheduler),
	}
	if storageManager.Redis != nil {
		engineOpts = append(engineOpts, elicitation.WithCompiledCache(storageManager.Redis))
	}
	elicitationEngine, err := elicitation.NewEngine(storageManager.MySQL, &cfg.Elicitation, engineOpts...)
	if err != nil {
		glog.Fatalf("初始化需求引导引擎失败: %v", err)
	}
	glog.Info("需求引导引擎初始化成功")

	var worker *scheduler.Worker
	if storageManager.RabbitMQ != nil {
		worker, err = scheduler.NewWorker(jobScheduler, storageManager.RabbitMQ, cfg)
		if err != nil {
			glog.Fatalf("初始化任务工作端失败: %v", err)
		}
		if err := worker.Start(); err != nil {
			glog.Fatalf("启动任务工作端失败: %v", err)
		}
		glog.Infof("任务工作端已启动，并发上限: %d", cfg.Scheduler.WorkerCount)
	} else {
		glog.Warn("RabbitMQ不可用，任务消费未启动，仅保留HTTP手动调度")
	}

	requirementHandler := handler.NewRequirementHandler(elicitationEngine)
	var snapshotCache handler.SnapshotCache
	if storageManager.Redis != nil {
		snapshotCache = storageManager.Redis
	}
	analysisHandler := handler.NewAnalysisHandler(storageManager.MySQL, snapshotCache)
	var profilePublisher handler.EventPublisher
	if storageManager.RabbitMQ != nil {
		profilePublisher = storageManager.RabbitMQ
	}
	profileHandler := handler.NewProfileHandler(cfg, storageManager.MySQL, profilePublisher, jobScheduler)
	glog.Info("HTTP处理器初始化成功")

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	// 每个请求一条结构化访问日志
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		appCoreLogger.Info().
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	})

	router.RegisterRoutes(h, requirementHandler, analysisHandler, profileHandler, jobScheduler)
	glog.Info("HTTP路由注册成功")

	go func() {
		glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	// 先停消费端，等在途任务落终态后再关HTTP
	if worker != nil {
		worker.Stop()
		glog.Info("任务工作端已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// buildEvaluator 按配置选择匹配评估后端
func buildEvaluator(cfg *config.Config) (matcher.Evaluator, error) {
	if cfg.Matcher.Engine == "llm" {
		chatModel, err := llm.NewOpenAICompatChatModel(
			cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.TimeoutSeconds)
		if err != nil {
			return nil, err
		}
		return matcher.NewLLMEvaluator(chatModel, cfg.Matcher.ConfidenceFloor)
	}
	return matcher.NewLocalEvaluator(&cfg.Matcher)
}

// initLogger 初始化zerolog并接管Hertz的日志输出
func initLogger(cfg *config.LoggerConfig) {
	writers := []io.Writer{}

	if cfg.Format == "pretty" {
		writers = append(writers, zerolog.MultiLevelWriter(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: cfg.TimeFormat,
		}))
	} else {
		writers = append(writers, zerolog.MultiLevelWriter(os.Stdout))
	}

	if cfg.FilePath != "" {
		fileWriter, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			zlog.Fatal().Err(err).Str("path", cfg.FilePath).Msg("无法打开日志文件")
		}
		writers = append(writers, zerolog.MultiLevelWriter(fileWriter))
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	logContext := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if cfg.ReportCaller {
		logContext = logContext.Caller()
	}
	logger := logContext.Logger()

	appCoreLogger.Logger = logger
	zlog.Logger = logger

	// Hertz 全局日志走同一个 zerolog 实例
	glog.SetLogger(hertzadapter.From(logger))
	glog.SetLevel(hertzLevel(level))
}

// hertzLevel zerolog级别到Hertz日志级别的映射
func hertzLevel(level zerolog.Level) glog.Level {
	switch level {
	case zerolog.DebugLevel:
		return glog.LevelDebug
	case zerolog.WarnLevel:
		return glog.LevelWarn
	case zerolog.ErrorLevel:
		return glog.LevelError
	default:
		return glog.LevelInfo
	}
}
