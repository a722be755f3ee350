package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/rs/zerolog/log"

	"trackd/internal/auth"
	"trackd/internal/config"
	"trackd/internal/handlers/apiserver"
	appKafka "trackd/internal/kafka"
	"trackd/internal/logging"
	"trackd/internal/notify"
	appRedis "trackd/internal/redis"
	"trackd/internal/services"
	"trackd/internal/storage"
	"trackd/internal/tmdb"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法加载配置: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("app", cfg.AppName).Str("version", cfg.AppVersion).Msg("API 服务器配置加载成功。")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("无法初始化数据库")
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatal().Err(err).Msg("数据库表迁移失败")
	}
	log.Info().Str("type", cfg.Database.Type).Msg("API 服务器数据库连接成功。")

	// 3. 初始化 Redis 黑名单 (可选)
	var blacklist auth.TokenBlacklist
	redisClient, err := appRedis.NewClient(rootCtx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis 不可用，登出将只清除 Cookie，令牌在过期前仍然有效")
	} else {
		defer redisClient.Close()
		blacklist = appRedis.NewRedisTokenBlacklist(redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("成功连接到 Redis")
	}

	// 4. 初始化 Repositories
	userRepo := storage.NewGormUserRepository(db)
	friendRepo := storage.NewGormFriendRepository(db)
	invitationRepo := storage.NewGormInvitationRepository(db)
	suggestionRepo := storage.NewGormSuggestionRepository(db)
	watchRepo := storage.NewGormWatchItemRepository(db)

	// 5. 初始化通知器
	notifier, closeNotifier := newNotifier(cfg)
	defer closeNotifier()

	// 6. 初始化 Services
	friendService := services.NewFriendService(userRepo, friendRepo, invitationRepo, notifier)
	suggestionService := services.NewSuggestionService(db, userRepo, friendRepo, suggestionRepo, notifier)
	watchlistService := services.NewWatchlistService(watchRepo)
	authService := services.NewAuthService(userRepo, friendService, blacklist, cfg.Auth)
	userService := services.NewUserService(userRepo)

	// 7. OIDC (可选，未配置时 /auth/* 返回 503)
	var provider auth.IdentityProvider
	if cfg.Auth.OIDCEnabled() {
		oidcProvider, err := auth.NewOIDCProvider(rootCtx, cfg.Auth)
		if err != nil {
			log.Fatal().Err(err).Str("issuer", cfg.Auth.OIDCIssuer).Msg("无法初始化 OIDC")
		}
		provider = oidcProvider
	} else {
		log.Warn().Msg("OIDC 未配置，登录不可用")
	}
	if cfg.TMDB.APIKey == "" {
		log.Warn().Msg("TMDB.API_KEY 未配置，元数据代理请求将被上游拒绝")
	}

	// 8. 初始化 Handlers 和路由
	router := apiserver.NewRouter(apiserver.Handlers{
		Auth:       apiserver.NewAuthHandler(authService, userService, provider, cfg.Auth),
		Friend:     apiserver.NewFriendHandler(friendService),
		Suggestion: apiserver.NewSuggestionHandler(suggestionService),
		Watchlist:  apiserver.NewWatchlistHandler(watchlistService),
		TMDB:       apiserver.NewTMDBHandler(tmdb.NewClient(cfg.TMDB)),
	}, cfg, blacklist)

	// 9. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}

	var handler http.Handler = router
	handler = handlers.CORS(corsOptions...)(handler)
	handler = handlers.CombinedLoggingHandler(logging.Writer("access"), handler)
	handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.APIServer.ReadTimeout,
		WriteTimeout: cfg.APIServer.WriteTimeout,
		IdleTimeout:  time.Second * 60,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("API 服务器启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API 服务器启动失败")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("收到关闭信号，正在关闭 API 服务器...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("API 服务器强制关闭")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("API 服务器已成功关闭")
}

// newNotifier 按 NOTIFY.MODE 选择通知方式：
// "kafka" 发布到通知 topic 由 notifyserver 投递，"direct" 在本进程发邮件，
// 邮件未配置时只记录日志。
func newNotifier(cfg config.Config) (notify.Notifier, func()) {
	builder := notify.NewEventBuilder(cfg.Mail.AppURL)

	switch cfg.Notify.Mode {
	case "kafka":
		if !cfg.Kafka.Enabled {
			log.Warn().Msg("NOTIFY.MODE=kafka 但 KAFKA.ENABLED=false，改为直接发送")
			break
		}
		producer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("无法创建 Kafka 生产者")
		}
		log.Info().Str("topic", cfg.Kafka.NotificationTopic).Msg("通知将通过 Kafka 发布")
		notifier := notify.NewKafkaNotifier(builder, producer, cfg.Kafka.NotificationTopic)
		return notifier, notifier.Close
	case "direct", "":
	default:
		log.Warn().Str("mode", cfg.Notify.Mode).Msg("未知的 NOTIFY.MODE，改为直接发送")
	}

	mailer := notify.NewHTTPMailer(cfg.Mail)
	if !mailer.Enabled() {
		log.Warn().Msg("MAIL.API_KEY 未配置，通知只记录日志")
		return notify.NewLogNotifier(builder), func() {}
	}
	return notify.NewDirectNotifier(builder, notify.NewDeliverer(mailer), cfg.Mail.Timeout), func() {}
}
