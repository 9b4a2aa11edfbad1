// Пакет config — загрузка и валидация конфигурации certgate
// из переменных окружения (префикс CG_).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения запроса
	ReadTimeout time.Duration
	// Таймаут записи ответа (должен покрывать срок запроса справки)
	WriteTimeout time.Duration
	// Таймаут простоя keep-alive соединения
	IdleTimeout time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- Мессенджер ---

	Telegram TelegramConfig

	// --- Сессия ---

	// Период keepalive
	KeepaliveInterval time.Duration
	// Пауза перед повторным подключением
	ReconnectBackoff time.Duration

	// --- Запросы ---

	// Количество попыток на запрос
	MaxAttempts int
	// Пауза после отправки команды
	SettleDelay time.Duration
	// Пауза между попытками
	RetryDelay time.Duration
	// Сколько последних сообщений читать
	FetchLimit int
	// Окно свежести сообщений
	ResponseWindow time.Duration
	// Срок одной попытки от момента отправки
	AttemptTimeout time.Duration
	// Срок ожидания ответа клиентом
	QueryDeadline time.Duration
	// Предельная длительность одного выполнения
	RunTimeout time.Duration
	// Ожидание готовности сессии после перезапуска
	RestartWait time.Duration
	// Ёмкость очереди запросов
	QueueSize int
	// Максимальный размер вложения в байтах
	AttachmentMaxBytes int64

	// --- Фразы бота ---

	// Путь к YAML-файлу фраз (пусто — встроенные)
	PhrasesFile string
	// Перечитывать файл фраз при изменении
	PhrasesWatch bool

	// --- PostgreSQL ---

	Database DatabaseConfig

	// --- Ключи доступа ---

	// Размер кеша проверенных ключей
	KeyCacheSize int
	// Время жизни записи в кеше ключей
	KeyCacheTTL time.Duration
	// Cron-выражение очистки истёкших ключей
	KeySweepSchedule string
	// Сколько хранить истёкшие ключи до удаления
	KeyRetention time.Duration
	// Срок действия ключа по умолчанию
	KeyDefaultTTL time.Duration
	// Лимит запросов в секунду на ключ
	RateLimitRPS float64
	// Всплеск лимита на ключ
	RateLimitBurst int

	// --- JWT (административные маршруты) ---

	// URL JWKS endpoint (пусто — административные маршруты отключены)
	JWTJWKSURL string
	// Ожидаемый issuer JWT
	JWTIssuer string
	// Путь к CA-сертификату для JWKS (опционально)
	JWTCACertPath string
	// Группы, дающие роль admin
	RoleAdminGroups []string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- topologymetrics ---

	// Группа сервиса для метрик зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
	// Признак входной точки (метка isentry)
	DephealthIsEntry bool
}

// TelegramConfig — параметры подключения к мессенджеру.
type TelegramConfig struct {
	// api_id приложения
	AppID int
	// api_hash приложения
	AppHash string
	// Путь к файлу авторизованной сессии
	SessionFile string
	// Имя бота справок (@username)
	TargetBot string
	// Таймаут установки соединения
	ConnectTimeout time.Duration
	// Таймаут отправки, чтения и ping
	IOTimeout time.Duration
	// Таймаут скачивания вложения
	DownloadTimeout time.Duration
}

// DatabaseConfig — параметры подключения к PostgreSQL.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	// Режим SSL: disable, require, verify-ca, verify-full
	SSLMode string
}

// Load загружает полную конфигурацию сервиса из переменных окружения,
// валидирует её и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CG_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("CG_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("CG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CG_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, cfg.LogFormat, err = loadLogging()
	if err != nil {
		return nil, err
	}

	if cfg.ReadTimeout, err = getEnvDuration("CG_READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CG_READ_TIMEOUT: %w", err)
	}
	if cfg.WriteTimeout, err = getEnvDuration("CG_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("CG_WRITE_TIMEOUT: %w", err)
	}
	if cfg.IdleTimeout, err = getEnvDuration("CG_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("CG_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("CG_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CG_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Мессенджер ---

	tg, err := LoadTelegram()
	if err != nil {
		return nil, err
	}
	cfg.Telegram = *tg

	// --- Сессия ---

	if cfg.KeepaliveInterval, err = getEnvDuration("CG_KEEPALIVE_INTERVAL", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CG_KEEPALIVE_INTERVAL: %w", err)
	}
	if cfg.ReconnectBackoff, err = getEnvDuration("CG_RECONNECT_BACKOFF", 2*time.Second); err != nil {
		return nil, fmt.Errorf("CG_RECONNECT_BACKOFF: %w", err)
	}

	// --- Запросы ---

	if cfg.MaxAttempts, err = getEnvInt("CG_QUERY_MAX_ATTEMPTS", 3); err != nil {
		return nil, fmt.Errorf("CG_QUERY_MAX_ATTEMPTS: %w", err)
	}
	if cfg.SettleDelay, err = getEnvDuration("CG_QUERY_SETTLE_DELAY", 2*time.Second); err != nil {
		return nil, fmt.Errorf("CG_QUERY_SETTLE_DELAY: %w", err)
	}
	if cfg.RetryDelay, err = getEnvDuration("CG_QUERY_RETRY_DELAY", 3*time.Second); err != nil {
		return nil, fmt.Errorf("CG_QUERY_RETRY_DELAY: %w", err)
	}
	if cfg.FetchLimit, err = getEnvInt("CG_QUERY_FETCH_LIMIT", 10); err != nil {
		return nil, fmt.Errorf("CG_QUERY_FETCH_LIMIT: %w", err)
	}
	if cfg.ResponseWindow, err = getEnvDuration("CG_QUERY_WINDOW", 60*time.Second); err != nil {
		return nil, fmt.Errorf("CG_QUERY_WINDOW: %w", err)
	}
	if cfg.AttemptTimeout, err = getEnvDuration("CG_QUERY_ATTEMPT_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CG_QUERY_ATTEMPT_TIMEOUT: %w", err)
	}
	if cfg.QueryDeadline, err = getEnvDuration("CG_QUERY_DEADLINE", 35*time.Second); err != nil {
		return nil, fmt.Errorf("CG_QUERY_DEADLINE: %w", err)
	}
	if cfg.RunTimeout, err = getEnvDuration("CG_QUERY_RUN_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("CG_QUERY_RUN_TIMEOUT: %w", err)
	}
	if cfg.RestartWait, err = getEnvDuration("CG_QUERY_RESTART_WAIT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CG_QUERY_RESTART_WAIT: %w", err)
	}
	if cfg.QueueSize, err = getEnvInt("CG_QUERY_QUEUE_SIZE", 16); err != nil {
		return nil, fmt.Errorf("CG_QUERY_QUEUE_SIZE: %w", err)
	}
	maxBytes, err := getEnvInt("CG_ATTACHMENT_MAX_BYTES", 20<<20)
	if err != nil {
		return nil, fmt.Errorf("CG_ATTACHMENT_MAX_BYTES: %w", err)
	}
	cfg.AttachmentMaxBytes = int64(maxBytes)

	// --- Фразы бота ---

	cfg.PhrasesFile = getEnvDefault("CG_PHRASES_FILE", "")
	if cfg.PhrasesWatch, err = getEnvBool("CG_PHRASES_WATCH", false); err != nil {
		return nil, fmt.Errorf("CG_PHRASES_WATCH: %w", err)
	}

	// --- PostgreSQL ---

	db, err := LoadDatabase()
	if err != nil {
		return nil, err
	}
	cfg.Database = *db

	// --- Ключи доступа ---

	if cfg.KeyCacheSize, err = getEnvInt("CG_KEY_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("CG_KEY_CACHE_SIZE: %w", err)
	}
	if cfg.KeyCacheTTL, err = getEnvDuration("CG_KEY_CACHE_TTL", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CG_KEY_CACHE_TTL: %w", err)
	}
	cfg.KeySweepSchedule = getEnvDefault("CG_KEY_SWEEP_SCHEDULE", "*/30 * * * *")
	if !gronx.IsValid(cfg.KeySweepSchedule) {
		return nil, fmt.Errorf("CG_KEY_SWEEP_SCHEDULE: некорректное cron-выражение %q", cfg.KeySweepSchedule)
	}
	if cfg.KeyRetention, err = getEnvDuration("CG_KEY_RETENTION", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("CG_KEY_RETENTION: %w", err)
	}
	if cfg.KeyDefaultTTL, err = LoadKeyDefaultTTL(); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getEnvFloat("CG_RATE_LIMIT_RPS", 0.5); err != nil {
		return nil, fmt.Errorf("CG_RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = getEnvInt("CG_RATE_LIMIT_BURST", 3); err != nil {
		return nil, fmt.Errorf("CG_RATE_LIMIT_BURST: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("CG_JWT_JWKS_URL", "")
	if cfg.JWTJWKSURL != "" {
		if _, err := url.ParseRequestURI(cfg.JWTJWKSURL); err != nil {
			return nil, fmt.Errorf("CG_JWT_JWKS_URL: некорректный URL %q", cfg.JWTJWKSURL)
		}
	}
	cfg.JWTIssuer = getEnvDefault("CG_JWT_ISSUER", "")
	cfg.JWTCACertPath = getEnvDefault("CG_JWT_CA_CERT_PATH", "")
	cfg.RoleAdminGroups = parseCSV(getEnvDefault("CG_ROLE_ADMIN_GROUPS", "certgate-admins"))
	if cfg.JWKSClientTimeout, err = getEnvDuration("CG_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CG_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("CG_JWKS_REFRESH_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("CG_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("CG_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CG_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("CG_DEPHEALTH_GROUP", "certgate")
	if cfg.DephealthCheckInterval, err = getEnvDuration("CG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("CG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	if cfg.DephealthIsEntry, err = getEnvBool("CG_DEPHEALTH_ISENTRY", true); err != nil {
		return nil, fmt.Errorf("CG_DEPHEALTH_ISENTRY: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("CG_QUERY_MAX_ATTEMPTS: значение %d меньше 1", c.MaxAttempts)
	}
	if c.FetchLimit < 1 || c.FetchLimit > 100 {
		return fmt.Errorf("CG_QUERY_FETCH_LIMIT: значение %d вне допустимого диапазона 1-100", c.FetchLimit)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("CG_QUERY_QUEUE_SIZE: значение %d меньше 1", c.QueueSize)
	}
	if c.QueryDeadline <= c.SettleDelay {
		return fmt.Errorf("CG_QUERY_DEADLINE: срок %s должен превышать паузу после отправки %s",
			c.QueryDeadline, c.SettleDelay)
	}
	if c.AttemptTimeout <= c.SettleDelay {
		return fmt.Errorf("CG_QUERY_ATTEMPT_TIMEOUT: срок %s должен превышать паузу после отправки %s",
			c.AttemptTimeout, c.SettleDelay)
	}
	if c.RunTimeout < c.QueryDeadline {
		return fmt.Errorf("CG_QUERY_RUN_TIMEOUT: значение %s меньше срока запроса %s",
			c.RunTimeout, c.QueryDeadline)
	}
	if c.AttachmentMaxBytes <= 0 {
		return fmt.Errorf("CG_ATTACHMENT_MAX_BYTES: значение должно быть положительным")
	}
	if c.KeyCacheSize < 1 {
		return fmt.Errorf("CG_KEY_CACHE_SIZE: значение %d меньше 1", c.KeyCacheSize)
	}
	if c.KeyDefaultTTL <= 0 {
		return fmt.Errorf("CG_KEY_DEFAULT_TTL: значение должно быть положительным")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("CG_RATE_LIMIT_*: значения не могут быть отрицательными")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("CG_RATE_LIMIT_BURST: при включённом лимите значение должно быть не меньше 1")
	}
	return nil
}

// LoadTelegram загружает параметры подключения к мессенджеру.
// Используется как сервером, так и командой login.
func LoadTelegram() (*TelegramConfig, error) {
	cfg := &TelegramConfig{}
	var err error

	// CG_TG_API_ID — обязательный
	rawID, err := getEnvRequired("CG_TG_API_ID")
	if err != nil {
		return nil, err
	}
	cfg.AppID, err = strconv.Atoi(rawID)
	if err != nil || cfg.AppID <= 0 {
		return nil, fmt.Errorf("CG_TG_API_ID: некорректное значение %q", rawID)
	}

	// CG_TG_API_HASH — обязательный
	if cfg.AppHash, err = getEnvRequired("CG_TG_API_HASH"); err != nil {
		return nil, err
	}

	cfg.SessionFile = getEnvDefault("CG_TG_SESSION_FILE", "certgate.session.json")

	// CG_TG_TARGET_BOT — обязательный, имя бота справок
	bot, err := getEnvRequired("CG_TG_TARGET_BOT")
	if err != nil {
		return nil, err
	}
	cfg.TargetBot = strings.TrimPrefix(bot, "@")
	if cfg.TargetBot == "" {
		return nil, fmt.Errorf("CG_TG_TARGET_BOT: пустое имя бота")
	}

	if cfg.ConnectTimeout, err = getEnvDuration("CG_TG_CONNECT_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CG_TG_CONNECT_TIMEOUT: %w", err)
	}
	if cfg.IOTimeout, err = getEnvDuration("CG_TG_IO_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("CG_TG_IO_TIMEOUT: %w", err)
	}
	if cfg.DownloadTimeout, err = getEnvDuration("CG_TG_DOWNLOAD_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("CG_TG_DOWNLOAD_TIMEOUT: %w", err)
	}
	return cfg, nil
}

// LoadDatabase загружает параметры PostgreSQL.
// Используется как сервером, так и командами keys.
func LoadDatabase() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{}
	var err error

	if cfg.Host, err = getEnvRequired("CG_DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Port, err = getEnvInt("CG_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("CG_DB_PORT: %w", err)
	}
	if cfg.Name, err = getEnvRequired("CG_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.User, err = getEnvRequired("CG_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Password, err = getEnvRequired("CG_DB_PASSWORD"); err != nil {
		return nil, err
	}

	// CG_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.SSLMode = getEnvDefault("CG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.SSLMode] {
		return nil, fmt.Errorf("CG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.SSLMode)
	}
	return cfg, nil
}

// LoadKeyDefaultTTL читает срок действия ключа по умолчанию (CG_KEY_DEFAULT_TTL).
func LoadKeyDefaultTTL() (time.Duration, error) {
	d, err := getEnvDuration("CG_KEY_DEFAULT_TTL", 60*time.Minute)
	if err != nil {
		return 0, fmt.Errorf("CG_KEY_DEFAULT_TTL: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("CG_KEY_DEFAULT_TTL: значение должно быть положительным")
	}
	return d, nil
}

// DSN возвращает строку подключения к PostgreSQL в формате key=value.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (d DatabaseConfig) MigrateURL() string {
	return d.url("pgx5")
}

// URL возвращает postgres:// URL (для topologymetrics).
func (d DatabaseConfig) URL() string {
	return d.url("postgres")
}

func (d DatabaseConfig) url(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер.
func SetupLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// LoadLogger читает CG_LOG_LEVEL и CG_LOG_FORMAT и настраивает логгер.
// Нужен командам CLI, которым не требуется полная конфигурация.
func LoadLogger() (*slog.Logger, error) {
	level, format, err := loadLogging()
	if err != nil {
		return nil, err
	}
	return SetupLogger(level, format), nil
}

func loadLogging() (slog.Level, string, error) {
	// CG_LOG_LEVEL — уровень логирования (по умолчанию info)
	level, err := parseLogLevel(getEnvDefault("CG_LOG_LEVEL", "info"))
	if err != nil {
		return level, "", fmt.Errorf("CG_LOG_LEVEL: %w", err)
	}

	// CG_LOG_FORMAT — формат логов (по умолчанию json)
	format := getEnvDefault("CG_LOG_FORMAT", "json")
	if format != "json" && format != "text" {
		return level, "", fmt.Errorf("CG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", format)
	}
	return level, format, nil
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
