package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	// WhatsApp Cloud API
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppBaseURL       string

	// Language model
	GeminiAPIKey          string
	GeminiModelID         string
	GeminiFallbackModelID string
	LLMTimeout            time.Duration

	// Clinic calendar
	ClinicName         string
	ClinicAddress      string
	ClinicPhone        string
	ClinicHoursLabel   string
	ClinicInsurances   string
	DoctorID           string
	DoctorName         string
	ClinicTimezone     string
	OfficeDays         string // comma-separated weekday numbers, 0=Sunday
	OfficeHours        string // comma-separated HH:MM-HH:MM windows
	SlotMinutes        int    // 15, 30, 60 or 120
	BookingHorizonDays int

	// AWS / queue
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ConversationQueueURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// SendGrid notification email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	ClinicInboxEmail  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppBaseURL:       getEnv("WHATSAPP_BASE_URL", ""),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:         getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		GeminiFallbackModelID: getEnv("GEMINI_FALLBACK_MODEL_ID", ""),
		LLMTimeout:            getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),

		ClinicName:         getEnv("CLINIC_NAME", "Consultorio"),
		ClinicAddress:      getEnv("CLINIC_ADDRESS", ""),
		ClinicPhone:        getEnv("CLINIC_PHONE", ""),
		ClinicHoursLabel:   getEnv("CLINIC_HOURS_LABEL", "lunes a viernes de 9 a 13 y de 15 a 19"),
		ClinicInsurances:   getEnv("CLINIC_INSURANCES", ""),
		DoctorID:           getEnv("DOCTOR_ID", "default"),
		DoctorName:         getEnv("DOCTOR_NAME", ""),
		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "America/Argentina/Buenos_Aires"),
		OfficeDays:         getEnv("OFFICE_DAYS", "1,2,3,4,5"),
		OfficeHours:        getEnv("OFFICE_HOURS", "09:00-13:00,15:00-19:00"),
		SlotMinutes:        getEnvAsInt("SLOT_MINUTES", 30),
		BookingHorizonDays: getEnvAsInt("BOOKING_HORIZON_DAYS", 14),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Asistente del Consultorio"),
		ClinicInboxEmail:  getEnv("CLINIC_INBOX_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
