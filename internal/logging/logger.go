// Package logging 配置全局 zerolog 日志器。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init 根据级别和格式 ("json" 或 "console") 设置全局日志器。
// 未知级别回退到 info。
func Init(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	log.Logger = New(os.Stdout, format)
}

// New 创建一个写入 w 的日志器，不修改全局状态。
func New(w io.Writer, format string) zerolog.Logger {
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Writer 返回一个以 info 级别逐行写入全局日志器的 io.Writer，
// 供 gorilla/handlers 的访问日志等只接受 io.Writer 的组件使用。
func Writer(component string) io.Writer {
	return lineWriter{component: component}
}

type lineWriter struct {
	component string
}

func (w lineWriter) Write(p []byte) (int, error) {
	log.Info().Str("component", w.component).Msg(strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}

// GormWriter 适配 gorm logger.Writer 接口。
type GormWriter struct{}

// Printf 实现 gorm 的 logger.Writer。
func (GormWriter) Printf(format string, args ...interface{}) {
	log.Debug().Str("component", "gorm").Msgf(format, args...)
}
