package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string

	// DataDir holds per-memo directories: attachments plus the JSON
	// metadata mirror.
	DataDir string

	// BaseURL, when set, is included in notification bodies as a link
	// back to the memo.
	BaseURL string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// Mail settings. With no MailAddr the server logs notifications
	// instead of sending them.
	MailAddr     string
	MailFrom     string
	MailUser     string
	MailPassword string

	// Optional admin account seeded at startup.
	AdminUser     string
	AdminEmail    string
	AdminPassword string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		DataDir:              getenv("DATA_DIR", "data"),
		BaseURL:              getenv("BASE_URL", ""),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",

		MailAddr:     getenv("MAIL_ADDR", ""),
		MailFrom:     getenv("MAIL_FROM", ""),
		MailUser:     getenv("MAIL_USER", ""),
		MailPassword: getenv("MAIL_PASSWORD", ""),

		AdminUser:     getenv("ADMIN_USER", ""),
		AdminEmail:    getenv("ADMIN_EMAIL", ""),
		AdminPassword: getenv("ADMIN_PASSWORD", ""),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	cfg.JWTSecret = mustGetenv("JWT_SECRET")
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}
