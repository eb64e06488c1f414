/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the membership-service.
// These values are loaded from environment variables. Fees are in paise.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`

	RazorpayKeyID     string `mapstructure:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string `mapstructure:"RAZORPAY_KEY_SECRET"`
	RazorpayBaseURL   string `mapstructure:"RAZORPAY_BASE_URL"`

	Currency         string `mapstructure:"CURRENCY"`
	MemberCodePrefix string `mapstructure:"MEMBER_CODE_PREFIX"`
	MemberCodeWidth  int    `mapstructure:"MEMBER_CODE_WIDTH"`

	AnnualFeePaise        int64 `mapstructure:"ANNUAL_FEE_PAISE"`
	LifetimeFeePaise      int64 `mapstructure:"LIFETIME_FEE_PAISE"`
	StudentFeePaise       int64 `mapstructure:"STUDENT_FEE_PAISE"`
	InstitutionalFeePaise int64 `mapstructure:"INSTITUTIONAL_FEE_PAISE"`

	ExpirySweepSchedule string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`

	S3Bucket          string `mapstructure:"S3_BUCKET"`
	S3Region          string `mapstructure:"S3_REGION"`
	S3Endpoint        string `mapstructure:"S3_ENDPOINT"`
	S3AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3PublicBaseURL   string `mapstructure:"S3_PUBLIC_BASE_URL"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com")
	viper.SetDefault("CURRENCY", "INR")
	viper.SetDefault("MEMBER_CODE_PREFIX", "LM")
	viper.SetDefault("MEMBER_CODE_WIDTH", 4)
	viper.SetDefault("ANNUAL_FEE_PAISE", 150000)
	viper.SetDefault("LIFETIME_FEE_PAISE", 1500000)
	viper.SetDefault("STUDENT_FEE_PAISE", 75000)
	viper.SetDefault("INSTITUTIONAL_FEE_PAISE", 500000)
	viper.SetDefault("EXPIRY_SWEEP_SCHEDULE", "0 2 * * *")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("RAZORPAY_KEY_ID")
	_ = viper.BindEnv("RAZORPAY_KEY_SECRET")
	_ = viper.BindEnv("RAZORPAY_BASE_URL")
	_ = viper.BindEnv("CURRENCY")
	_ = viper.BindEnv("MEMBER_CODE_PREFIX")
	_ = viper.BindEnv("MEMBER_CODE_WIDTH")
	_ = viper.BindEnv("ANNUAL_FEE_PAISE")
	_ = viper.BindEnv("LIFETIME_FEE_PAISE")
	_ = viper.BindEnv("STUDENT_FEE_PAISE")
	_ = viper.BindEnv("INSTITUTIONAL_FEE_PAISE")
	_ = viper.BindEnv("EXPIRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("S3_BUCKET")
	_ = viper.BindEnv("S3_REGION")
	_ = viper.BindEnv("S3_ENDPOINT")
	_ = viper.BindEnv("S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("S3_PUBLIC_BASE_URL")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.MemberCodePrefix = strings.TrimSpace(config.MemberCodePrefix)
	if config.MemberCodePrefix == "" {
		config.MemberCodePrefix = "LM"
	}
	if config.MemberCodeWidth <= 0 {
		config.MemberCodeWidth = 4
	}

	if config.AnnualFeePaise < 0 {
		log.Printf("level=warn component=config msg=\"negative annual fee configured; coercing to zero\" fee_paise=%d", config.AnnualFeePaise)
		config.AnnualFeePaise = 0
	}
	if config.LifetimeFeePaise < 0 {
		log.Printf("level=warn component=config msg=\"negative lifetime fee configured; coercing to zero\" fee_paise=%d", config.LifetimeFeePaise)
		config.LifetimeFeePaise = 0
	}
	if config.StudentFeePaise < 0 {
		log.Printf("level=warn component=config msg=\"negative student fee configured; coercing to zero\" fee_paise=%d", config.StudentFeePaise)
		config.StudentFeePaise = 0
	}
	if config.InstitutionalFeePaise < 0 {
		log.Printf("level=warn component=config msg=\"negative institutional fee configured; coercing to zero\" fee_paise=%d", config.InstitutionalFeePaise)
		config.InstitutionalFeePaise = 0
	}

	if strings.TrimSpace(config.ExpirySweepSchedule) == "" {
		config.ExpirySweepSchedule = "0 2 * * *"
	}

	return
}

// AllowedOrigins splits the configured CORS origins into a slice.
func (c Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}
