package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/internal/models"
)

type Config struct {
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"eventhub"`
	Port       string `env:"PORT" envDefault:"8080"`
	JWTSecret  string `env:"JWT_SECRET,required"`
}

type MpesaConfig struct {
	BaseURL        string `env:"MPESA_BASE_URL" envDefault:"https://sandbox.safaricom.co.ke"`
	ConsumerKey    string `env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret string `env:"MPESA_CONSUMER_SECRET"`
	ShortCode      string `env:"MPESA_SHORTCODE"`
	Passkey        string `env:"MPESA_LIPA_NA_MPESA_PASSKEY"`
	CallbackURL    string `env:"MPESA_CALLBACK_URL"`
}

// PaymentConfig controls the confirmation state machine timing. The pending
// timeout should stay above the provider's STK prompt expiry (60-120s).
type PaymentConfig struct {
	PendingTimeout  time.Duration `env:"PAYMENT_PENDING_TIMEOUT" envDefault:"120s"`
	SweepInterval   time.Duration `env:"PAYMENT_SWEEP_INTERVAL" envDefault:"30s"`
	InitiateRetries int           `env:"PAYMENT_INITIATE_RETRIES" envDefault:"3"`
	InitiateBackoff time.Duration `env:"PAYMENT_INITIATE_BACKOFF" envDefault:"2s"`
	QRSigningKey    string        `env:"QR_SIGNING_KEY,required"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadMpesaConfig() (*MpesaConfig, error) {
	cfg := &MpesaConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadPaymentConfig() (*PaymentConfig, error) {
	cfg := &PaymentConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := enableUUIDExtension(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.Role{}, &models.User{}, &models.Category{}, &models.Event{},
		&models.TicketType{}, &models.Ticket{}, &models.Transaction{}, &models.Review{},
	)
	if err != nil {
		return nil, err
	}

	seedRoles(db)
	seedCategories(db)

	return db, nil
}

func seedRoles(db *gorm.DB) {
	roles := []models.Role{
		{Name: models.RoleOrganizer},
		{Name: models.RoleAttendee},
		{Name: models.RoleAdmin},
	}

	for _, role := range roles {
		var existingRole models.Role
		result := db.Where("name = ?", role.Name).First(&existingRole)
		if result.Error != nil {
			db.Create(&role)
		}
	}
}

func seedCategories(db *gorm.DB) {
	names := []string{"Music", "Sports", "Business", "Technology", "Arts", "Food & Drink", "Community"}

	for _, name := range names {
		var existing models.Category
		result := db.Where("name = ?", name).First(&existing)
		if result.Error != nil {
			db.Create(&models.Category{Name: name})
		}
	}
}
