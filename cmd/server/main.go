package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"familyvault/internal/api"
	"familyvault/internal/audit"
	"familyvault/internal/config"
	"familyvault/internal/database"
	"familyvault/internal/logging"
	"familyvault/internal/pipeline"
	"familyvault/internal/postprocess"
	"familyvault/internal/repository/postgres"
	"familyvault/internal/service"
	"familyvault/internal/storage"
	"familyvault/internal/storage/awss3"
	"familyvault/internal/storage/local"
	"familyvault/internal/storage/minio"
	"familyvault/internal/storage/oss"
	"familyvault/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New("familyvault")
	logger.Info().Msg("配置加载完成，开始启动服务")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("连接数据库失败")
	}
	defer db.Close()

	files := postgres.NewFileRepository(db)
	audits := postgres.NewAuditRepository(db)
	usage := postgres.NewUsageRepository(db)

	registry, err := buildStorageRegistry(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("组装存储注册表失败")
	}

	auditSvc := audit.NewService(audits, audit.Config{
		QueueSize:     cfg.AuditQueueSize,
		Retention:     cfg.AuditRetention,
		SweepInterval: cfg.AuditSweepInterval,
	}, logger)

	strategies := strategy.NewRegistry()
	for _, s := range []strategy.Strategy{
		strategy.NewUploadStrategy(files, usage, cfg.TenantQuotaBytes),
		strategy.NewViewStrategy(files),
		strategy.NewDownloadStrategy(files),
		strategy.NewDeleteStrategy(files, usage),
		strategy.NewModifyPermissionsStrategy(files, auditSvc),
	} {
		if err := strategies.Register(s); err != nil {
			logger.Fatal().Err(err).Msg("注册元数据策略失败")
		}
	}

	pipe := pipeline.New(logger,
		pipeline.NewValidationStage(pipeline.ValidationConfig{MaxSizeBytes: cfg.MaxUploadBytes}),
		pipeline.NewPermissionStage(files, auditSvc),
		pipeline.NewStorageStage(registry, cfg.DefaultBackend),
		pipeline.NewMetadataStage(strategies),
		pipeline.NewAuditStage(auditSvc),
	)

	// 后置任务处理器由部署方注入，默认只派发不执行
	trigger := postprocess.NewTrigger(cfg.PostprocessQueueSize, cfg.PostprocessWorkers, nil, logger)

	fileSvc := service.NewFileService(pipe, files, registry, trigger, cfg.AccessURLTTL)
	handler := api.NewFileHandler(fileSvc, auditSvc, cfg.MaxUploadBytes)

	health := func(ctx context.Context) map[string]bool {
		deps := map[string]bool{"postgres": db.PingContext(ctx) == nil}
		for _, t := range registry.Types() {
			adapter, err := registry.Resolve(t)
			if err != nil {
				continue
			}
			deps[string(t)] = adapter.Healthy(ctx) == nil
		}
		return deps
	}

	router := api.NewRouter(cfg, handler, health)

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		auditSvc.Run(ctx)
	}()
	go func() {
		defer background.Done()
		trigger.Run(ctx)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Minute, // 下载大文件需要长写超时
		IdleTimeout:  120 * time.Second,
		Handler:      router,
	}

	logger.Info().Str("port", cfg.HTTPPort).Msg("服务开始监听")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("监听失败")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("优雅关闭失败")
	}

	// 停掉后台协程并等它们清空队列
	cancel()
	background.Wait()

	logger.Info().Msg("服务已停止")
}

// buildStorageRegistry 显式注册可用后端。本地与 MinIO 总是注册，
// 云后端只在配置了凭证时注册，未注册后端的请求会得到配置错误。
func buildStorageRegistry(cfg *config.Config) (*storage.Registry, error) {
	registry := storage.NewRegistry()

	if err := registry.Register(
		local.New(cfg.LocalDir, cfg.LocalBaseURL),
		storage.NewLocalNaming("files"),
	); err != nil {
		return nil, err
	}

	minioAdapter, err := minio.New(minio.Config{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Region:    cfg.MinIORegion,
		UseSSL:    cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(minioAdapter, storage.NewMinIONaming(cfg.MinIOBucket)); err != nil {
		return nil, err
	}

	if cfg.OSSEndpoint != "" {
		ossAdapter, err := oss.New(oss.Config{
			Endpoint:  cfg.OSSEndpoint,
			AccessKey: cfg.OSSAccessKey,
			SecretKey: cfg.OSSSecretKey,
			Region:    cfg.OSSRegion,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(ossAdapter, storage.NewOSSNaming(cfg.OSSBucket)); err != nil {
			return nil, err
		}
	}

	if cfg.S3Region != "" {
		s3Adapter, err := awss3.New(awss3.Config{
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(s3Adapter, storage.NewS3Naming(cfg.S3Bucket)); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
