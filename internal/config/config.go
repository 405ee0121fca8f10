package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	Currency    string `env:"CURRENCY" envDefault:"USD"`

	Database   Database   `envPrefix:"DB_"`
	Gateway    Gateway    `envPrefix:"GATEWAY_"`
	BrainTree  Braintree  `envPrefix:"BRAINTREE_"`
	Loyalty    Loyalty    `envPrefix:"LOYALTY_"`
	Orders     Orders     `envPrefix:"ORDER_"`
	Promotions Promotions `envPrefix:"PROMOTIONS_"`
	Auth       Auth       `envPrefix:"AUTH_"`
}

type Database struct {
	Driver          string        `env:"DRIVER" envDefault:"sqlite"` // sqlite, mysql
	URL             string        `env:"URL" envDefault:"settlement.db"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"50"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"1h"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

type Gateway struct {
	Provider           string        `env:"PROVIDER" envDefault:"http"` // http, braintree
	BaseApiURL         string        `env:"BASE_API_URL"`
	ApiKey             string        `env:"API_KEY"`
	WebhookSecret      string        `env:"WEBHOOK_SECRET"`
	SignatureTolerance time.Duration `env:"SIGNATURE_TOLERANCE" envDefault:"5m"`
	Timeout            time.Duration `env:"TIMEOUT" envDefault:"30s"`
	RatePerSecond      float64       `env:"RATE_PER_SECOND" envDefault:"20"`
	Burst              int           `env:"BURST" envDefault:"5"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

type Loyalty struct {
	MinRedeemPoints  int64         `env:"MIN_REDEEM_POINTS" envDefault:"100"`
	MaxRedeemPoints  int64         `env:"MAX_REDEEM_POINTS" envDefault:"10000"`
	RedeemRate       string        `env:"REDEEM_RATE" envDefault:"1"` // minor units per point
	MaxRedeemPercent int64         `env:"MAX_REDEEM_BASIS_POINTS" envDefault:"5000"`
	EarnRate         string        `env:"EARN_RATE" envDefault:"1"` // points per major unit
	TieringEnabled   bool          `env:"TIERING_ENABLED" envDefault:"true"`
	HoldTTL          time.Duration `env:"HOLD_TTL" envDefault:"15m"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"0s"`
}

type Orders struct {
	NumberPrefix string `env:"NUMBER_PREFIX" envDefault:"ORD"`
	Timezone     string `env:"TIMEZONE" envDefault:"UTC"`
}

type Promotions struct {
	SeedFile string `env:"SEED_FILE"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
