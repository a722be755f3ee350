package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/rs/zerolog/log"

	"trackd/internal/auth"
	"trackd/internal/config"
	"trackd/internal/handlers/notifyserver"
	appKafka "trackd/internal/kafka"
	kafkahandlers "trackd/internal/kafka/handlers"
	"trackd/internal/logging"
	"trackd/internal/notify"
	appRedis "trackd/internal/redis"
	"trackd/internal/websocket"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法加载配置: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("app", cfg.AppName).Str("version", cfg.AppVersion).Msg("Notify 服务器配置加载成功。")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Redis 黑名单 (可选)
	var blacklist auth.TokenBlacklist
	redisClient, err := appRedis.NewClient(rootCtx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis 不可用，已吊销的令牌仍可建立连接")
	} else {
		defer redisClient.Close()
		blacklist = appRedis.NewRedisTokenBlacklist(redisClient)
	}

	// 3. WebSocket Hub
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	// 4. Kafka 通知消费者：发邮件并推送给在线用户
	var consumersDone sync.WaitGroup
	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	if cfg.Kafka.Enabled {
		consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("无法创建通知 Kafka 消费者")
		}
		defer consumer.Close()

		deliverer := notify.NewDeliverer(notify.NewHTTPMailer(cfg.Mail))
		logic := kafkahandlers.NewNotificationConsumerLogic(deliverer, hub)

		consumersDone.Add(1)
		go func() {
			defer consumersDone.Done()
			log.Info().Str("topic", cfg.Kafka.NotificationTopic).Str("group", cfg.Kafka.ConsumerGroup).Msg("Kafka 通知消费者启动")
			err := consumer.Consume(consumerCtx, []string{cfg.Kafka.NotificationTopic}, cfg.Kafka.ConsumerGroup, logic.HandleNotification)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Kafka 通知消费者错误")
			}
			log.Info().Msg("Kafka 通知消费者 goroutine 已停止。")
		}()
	} else {
		log.Warn().Msg("KAFKA.ENABLED=false，notifyserver 只提供 WebSocket 连接，不会收到通知事件")
	}

	// 5. 路由
	wsHandler := notifyserver.NewWebSocketHandler(hub, blacklist, cfg)
	r := notifyserver.NewRouter(wsHandler, cfg)

	// WebSocket 连接是长连接，不设置读写超时
	serverAddr := fmt.Sprintf("%s:%s", cfg.NotifyServer.Host, cfg.NotifyServer.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Str("path", cfg.NotifyServer.WebSocketPath).Msg("Notify 服务器启动")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Notify 服务器启动失败")
		}
	}()

	// 优雅关闭
	<-rootCtx.Done()
	log.Info().Msg("Notify 服务器准备关闭...")

	cancelConsumers()
	consumersDone.Wait()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("Notify 服务器关闭失败")
	}
	cancelHub()
	log.Info().Msg("Notify 服务器已优雅关闭。")
}
