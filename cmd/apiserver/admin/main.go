package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trackd/internal/config"
	"trackd/internal/logging"
	"trackd/internal/models"
	"trackd/internal/notify"
	"trackd/internal/services"
	"trackd/internal/storage"
)

const timeLayout = "2006-01-02 15:04:05"

func main() {
	// 简单命令行参数解析
	if len(os.Args) < 2 {
		fmt.Println("使用方法:")
		fmt.Println("  ./admin show-user <email> - 显示用户信息")
		fmt.Println("  ./admin list-friends <email> - 列出用户的好友关系（含待处理请求）")
		fmt.Println("  ./admin list-invitations <email> - 列出发给该邮箱的待处理邀请")
		fmt.Println("  ./admin convert-invitations <email> - 将该邮箱的邀请转换为好友请求")
		fmt.Println("  ./admin purge-suggestions <days> - 删除超过 N 天的已处理推荐")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法加载配置: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, "console")

	// 数据库连接，管理工具只支持 PostgreSQL
	sqlDB, err := sql.Open("postgres", storage.PostgresDSN(cfg.Database))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer sqlDB.Close()

	newLogger := logger.New(
		logging.GormWriter{},
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GORM instance")
	}

	ctx := context.Background()
	userRepo := storage.NewGormUserRepository(db)
	friendRepo := storage.NewGormFriendRepository(db)
	invitationRepo := storage.NewGormInvitationRepository(db)

	// 执行指定的命令
	switch os.Args[1] {
	case "show-user":
		showUser(ctx, db, userRepo, requireArg("需要指定邮箱"))

	case "list-friends":
		user := mustFindUser(ctx, userRepo, requireArg("需要指定邮箱"))
		listFriends(ctx, userRepo, friendRepo, user)

	case "list-invitations":
		listInvitations(ctx, userRepo, invitationRepo, requireArg("需要指定邮箱"))

	case "convert-invitations":
		user := mustFindUser(ctx, userRepo, requireArg("需要指定邮箱"))
		if !user.EmailVerified {
			fmt.Printf("%s 的邮箱尚未验证，邀请不会被转换\n", user.Email)
		}
		// 管理工具不发邮件，通知只写日志
		friendService := services.NewFriendService(userRepo, friendRepo, invitationRepo,
			notify.NewLogNotifier(notify.NewEventBuilder(cfg.Mail.AppURL)))
		n, err := friendService.ConvertInvitations(ctx, user)
		if err != nil {
			log.Fatal().Err(err).Msg("转换邀请失败")
		}
		fmt.Printf("已为 %s 转换 %d 条邀请\n", user.Email, n)

	case "purge-suggestions":
		days, err := strconv.Atoi(requireArg("需要指定天数"))
		if err != nil || days <= 0 {
			log.Fatal().Str("days", os.Args[2]).Msg("无效的天数")
		}
		purgeSuggestions(ctx, db, days)

	default:
		log.Fatal().Str("command", os.Args[1]).Msg("未知命令")
	}
}

func requireArg(msg string) string {
	if len(os.Args) < 3 {
		log.Fatal().Msg(msg)
	}
	return os.Args[2]
}

func mustFindUser(ctx context.Context, repo storage.UserRepository, email string) *models.User {
	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		log.Fatal().Err(err).Str("email", email).Msg("查找用户失败")
	}
	if user == nil {
		log.Fatal().Str("email", email).Msg("用户不存在")
	}
	return user
}

func showUser(ctx context.Context, db *gorm.DB, repo storage.UserRepository, email string) {
	user := mustFindUser(ctx, repo, email)

	fmt.Printf("用户 %s 信息:\n", user.ID)
	fmt.Println("--------------------------------------")
	fmt.Printf("名称: %s\n", user.Name)
	fmt.Printf("邮箱: %s (已验证: %v)\n", user.Email, user.EmailVerified)
	fmt.Printf("OIDC 已绑定: %v\n", user.OIDCSubject != nil)
	fmt.Printf("创建时间: %s\n", user.CreatedAt.Format(timeLayout))

	var watchCount, pendingSuggestions int64
	if err := db.WithContext(ctx).Model(&models.WatchItem{}).Where("user_id = ?", user.ID).Count(&watchCount).Error; err != nil {
		fmt.Printf("统计观看列表失败: %v\n", err)
	} else {
		fmt.Printf("观看列表条目: %d\n", watchCount)
	}
	err := db.WithContext(ctx).Model(&models.Suggestion{}).
		Where("user_id = ? AND status = ?", user.ID, models.SuggestionStatusPending).
		Count(&pendingSuggestions).Error
	if err != nil {
		fmt.Printf("统计推荐失败: %v\n", err)
	} else {
		fmt.Printf("待处理推荐: %d\n", pendingSuggestions)
	}
}

func listFriends(ctx context.Context, userRepo storage.UserRepository, repo storage.FriendRepository, user *models.User) {
	friends, err := repo.ListForUser(ctx, user.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("获取好友关系失败")
	}

	fmt.Printf("%s 的好友关系 (%d 条):\n", user.Email, len(friends))
	fmt.Println("--------------------------------------")
	for i, f := range friends {
		otherID := f.FriendID
		direction := "发出"
		if f.FriendID == user.ID {
			otherID = f.UserID
			direction = "收到"
		}
		otherEmail := "(未知)"
		if other, err := userRepo.GetByID(ctx, otherID); err == nil && other != nil {
			otherEmail = other.Email
		}
		fmt.Printf("#%d ID: %s, 对方: %s, 状态: %s, 方向: %s, 创建时间: %s\n",
			i+1, f.ID, otherEmail, f.Status, direction, f.CreatedAt.Format(timeLayout))
	}
}

func listInvitations(ctx context.Context, userRepo storage.UserRepository, repo storage.InvitationRepository, email string) {
	invitations, err := repo.ListPendingByEmail(ctx, email)
	if err != nil {
		log.Fatal().Err(err).Msg("获取邀请失败")
	}

	fmt.Printf("发给 %s 的邀请 (%d 条):\n", storage.NormalizeEmail(email), len(invitations))
	fmt.Println("--------------------------------------")
	for i, inv := range invitations {
		inviter := inv.InviterID
		if u, err := userRepo.GetByID(ctx, inv.InviterID); err == nil && u != nil {
			inviter = u.Email
		}
		fmt.Printf("#%d ID: %s, 邀请人: %s, 创建时间: %s\n", i+1, inv.ID, inviter, inv.CreatedAt.Format(timeLayout))
	}
}

func purgeSuggestions(ctx context.Context, db *gorm.DB, days int) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := db.WithContext(ctx).
		Where("status <> ? AND updated_at < ?", models.SuggestionStatusPending, cutoff).
		Delete(&models.Suggestion{})
	if res.Error != nil {
		log.Fatal().Err(res.Error).Msg("删除推荐失败")
	}
	fmt.Printf("已删除 %d 条 %s 之前处理的推荐\n", res.RowsAffected, cutoff.Format(timeLayout))
}
