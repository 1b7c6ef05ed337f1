// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json/console
	Output     string `yaml:"output" json:"output"` // stdout/stderr/file
	FilePath   string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器
func Init(cfg Config) {
	once.Do(func() {
		level := parseLevel(cfg.Level)
		zerolog.SetGlobalLevel(level)

		var output io.Writer
		switch cfg.Output {
		case "stderr":
			output = os.Stderr
		case "file":
			if cfg.FilePath != "" {
				f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err == nil {
					output = f
				} else {
					output = os.Stdout
				}
			} else {
				output = os.Stdout
			}
		default:
			output = os.Stdout
		}

		if cfg.Format == "console" {
			output = zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: cfg.TimeFormat,
			}
		}

		logger = zerolog.New(output).With().Timestamp().Logger()
	})
}

// parseLevel 解析日志级别
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器
// 未调用 Init 时使用默认配置
func Get() *zerolog.Logger {
	Init(DefaultConfig())
	return &logger
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// ContextWithRequestID 将请求ID写入上下文
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFrom 从上下文读取请求ID
func RequestIDFrom(ctx context.Context) string {
	reqID, _ := ctx.Value(requestIDKey).(string)
	return reqID
}

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	l := Get().With().Logger()

	if reqID := RequestIDFrom(ctx); reqID != "" {
		l = l.With().Str("request_id", reqID).Logger()
	}

	return &l
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// PlannerLogger 线路排班专用日志器
type PlannerLogger struct {
	base *zerolog.Logger
}

// NewPlannerLogger 创建线路排班日志器
func NewPlannerLogger() *PlannerLogger {
	l := Get().With().Str("component", "planner").Logger()
	return &PlannerLogger{base: &l}
}

// NewPlannerLoggerFrom 基于指定日志器创建（测试中可传入 zerolog.Nop()）
func NewPlannerLoggerFrom(base zerolog.Logger) *PlannerLogger {
	l := base.With().Str("component", "planner").Logger()
	return &PlannerLogger{base: &l}
}

// ValidationResult 记录排班校验结果
func (l *PlannerLogger) ValidationResult(date, shift string, valid bool, warnings int) {
	l.base.Debug().
		Str("date", date).
		Str("shift", shift).
		Bool("valid", valid).
		Int("warnings", warnings).
		Msg("排班校验完成")
}

// ScoringSkipped 记录无法计算的评分项
func (l *PlannerLogger) ScoringSkipped(lineNumber, reason string) {
	l.base.Warn().
		Str("line", lineNumber).
		Str("reason", reason).
		Msg("累计里程无法计算，按0处理")
}

// AssignmentCreated 记录排班创建
func (l *PlannerLogger) AssignmentCreated(id, date, shift string, warnings int) {
	l.base.Info().
		Str("assignment_id", id).
		Str("date", date).
		Str("shift", shift).
		Int("warnings", warnings).
		Msg("排班已保存")
}

// AssignmentDeleted 记录排班删除
func (l *PlannerLogger) AssignmentDeleted(id string) {
	l.base.Info().
		Str("assignment_id", id).
		Msg("排班已删除")
}

// PlanningStatusBuilt 记录规划进度计算
func (l *PlannerLogger) PlanningStatusBuilt(from, to string, days int, duration time.Duration) {
	l.base.Debug().
		Str("from", from).
		Str("to", to).
		Int("days", days).
		Dur("duration", duration).
		Msg("规划进度计算完成")
}

// CacheFailure 记录缓存失败（不影响主流程）
func (l *PlannerLogger) CacheFailure(op string, err error) {
	l.base.Warn().
		Err(err).
		Str("op", op).
		Msg("缓存操作失败")
}
