package config

import (
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App struct {
		Host     string `mapstructure:"host"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"app"`

	LLM struct {
		// BaseURL 大模型兼容接口地址（dashscope compatible-mode）
		BaseURL        string  `mapstructure:"base_url"`
		FormatModel    string  `mapstructure:"format_model"`
		ExtractModel   string  `mapstructure:"extract_model"`
		ValidateModel  string  `mapstructure:"validate_model"`
		TimeoutSeconds int     `mapstructure:"timeout_seconds"`
		MaxRetries     int     `mapstructure:"max_retries"`
		EnableThinking bool    `mapstructure:"enable_thinking"`
		Temperature    float32 `mapstructure:"-"`
	} `mapstructure:"llm"`

	Pipeline struct {
		Workers int `mapstructure:"workers"`
	} `mapstructure:"pipeline"`

	Task struct {
		// TTLHours 已结束任务在内存中保留的时长，超时后被清理
		TTLHours      int `mapstructure:"ttl_hours"`
		SweepMinutes  int `mapstructure:"sweep_minutes"`
		UploadLimit   int `mapstructure:"upload_limit"`
		UploadWindowS int `mapstructure:"upload_window_seconds"`
	} `mapstructure:"task"`

	Result struct {
		// Mode memory（按需重新生成）或 disk（同时落盘一份）
		Mode string `mapstructure:"mode"`
		Dir  string `mapstructure:"dir"`
	} `mapstructure:"result"`
}

// Load 加载配置：默认值 -> 可选 config.yaml -> 环境变量
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// 配置文件可选，找不到时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LLM.Temperature = cast.ToFloat32(viper.GetFloat64("llm.temperature"))

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.host", ":8080")
	viper.SetDefault("app.log_level", "info")

	viper.SetDefault("llm.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions")
	viper.SetDefault("llm.format_model", "qwen-plus")
	viper.SetDefault("llm.extract_model", "qwen-max")
	viper.SetDefault("llm.validate_model", "qwen-plus")
	viper.SetDefault("llm.timeout_seconds", 90)
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.enable_thinking", false)
	viper.SetDefault("llm.temperature", 0.7)

	viper.SetDefault("pipeline.workers", 5)

	viper.SetDefault("task.ttl_hours", 24)
	viper.SetDefault("task.sweep_minutes", 10)
	viper.SetDefault("task.upload_limit", 10)
	viper.SetDefault("task.upload_window_seconds", 60)

	viper.SetDefault("result.mode", "memory")
	viper.SetDefault("result.dir", "./results")
}

// Timeout 单次大模型请求超时
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// TaskTTL 已结束任务的保留时长
func (c *Config) TaskTTL() time.Duration {
	return time.Duration(c.Task.TTLHours) * time.Hour
}

// SweepInterval 任务清理周期
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Task.SweepMinutes) * time.Minute
}

// UploadWindow 上传接口限流窗口
func (c *Config) UploadWindow() time.Duration {
	return time.Duration(c.Task.UploadWindowS) * time.Second
}
