package config

import "time"

type AppConfig struct {
	DBDriver   string        `yaml:"db_driver" env:"VAHAN_DB_DRIVER" env-default:"sqlite"`
	DBURL      string        `yaml:"db_url" env:"VAHAN_DB_URL" env-default:"file:data/vahan.db?_pragma=foreign_keys(1)"`
	ListenAddr string        `yaml:"listen_addr" env:"VAHAN_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"VAHAN_SESSION_TTL" env-default:"3h"`
	AppEnv     string        `yaml:"app_env" env:"VAHAN_APP_ENV"`
	LogLevel   string        `yaml:"log_level" env:"VAHAN_LOG_LEVEL" env-default:"info"`

	Incidents IncidentsConfig `yaml:"incidents"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Screening ScreeningConfig `yaml:"screening"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type IncidentsConfig struct {
	RegNoFormat   string `yaml:"reg_no_format" env:"VAHAN_INCIDENTS_REG_NO_FORMAT" env-default:"CHN-{year}-{seq:05}"`
	TATWindowDays int    `yaml:"tat_window_days" env:"VAHAN_INCIDENTS_TAT_WINDOW_DAYS" env-default:"45"`
}

type UploadsConfig struct {
	BulkUpdateMaxBytes int64 `yaml:"bulk_update_max_bytes" env:"VAHAN_UPLOADS_BULK_UPDATE_MAX_BYTES" env-default:"10485760"`
	TemplateMaxBytes   int64 `yaml:"template_max_bytes" env:"VAHAN_UPLOADS_TEMPLATE_MAX_BYTES" env-default:"5242880"`
	DocumentMaxBytes   int64 `yaml:"document_max_bytes" env:"VAHAN_UPLOADS_DOCUMENT_MAX_BYTES" env-default:"10485760"`
}

type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled" env:"VAHAN_SCHEDULER_ENABLED" env-default:"true"`
	CronSpec string `yaml:"cron_spec" env:"VAHAN_SCHEDULER_CRON_SPEC" env-default:"@hourly"`
}

type ScreeningConfig struct {
	RedisAddr     string        `yaml:"redis_addr" env:"VAHAN_SCREENING_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"VAHAN_SCREENING_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"VAHAN_SCREENING_REDIS_DB" env-default:"0"`
	BatchTTL      time.Duration `yaml:"batch_ttl" env:"VAHAN_SCREENING_BATCH_TTL" env-default:"2h"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"VAHAN_METRICS_ENABLED" env-default:"true"`
}

const maxUserSessionTTL = 3 * time.Hour

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	ttl := maxUserSessionTTL
	if c != nil && c.SessionTTL > 0 {
		ttl = c.SessionTTL
	}
	if ttl > maxUserSessionTTL {
		return maxUserSessionTTL
	}
	return ttl
}

func (c *AppConfig) TATWindow() time.Duration {
	days := 45
	if c != nil && c.Incidents.TATWindowDays > 0 {
		days = c.Incidents.TATWindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}
