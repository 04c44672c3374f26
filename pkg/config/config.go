package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/smukkama/prayer-times/internal/calc"
	"github.com/smukkama/prayer-times/internal/prayer"
)

type Config struct {
	Location LocationConfig
	Calendar CalendarConfig
	Methods  MethodsConfig
	Remote   RemoteConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Schedule ScheduleConfig
	SMTP     SMTPConfig
	Log      LogConfig
}

// LocationConfig is the place the calendar is computed for
type LocationConfig struct {
	Latitude  float64
	Longitude float64
	CityID    string // remote location id
	TimeZone  string
}

// Coordinates returns the configured position
func (l LocationConfig) Coordinates() prayer.Coordinates {
	return prayer.Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}
}

// LoadLocation resolves the configured time zone
func (l LocationConfig) LoadLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(l.TimeZone)
	if err != nil {
		return nil, prayer.NewConfigurationError("time zone", fmt.Sprintf("%q: %v", l.TimeZone, err))
	}
	return loc, nil
}

// CalendarConfig selects the month to build. Zero means the current one.
type CalendarConfig struct {
	Year        int
	Month       int
	Concurrency int
}

// Resolve returns the configured month, defaulting to the month of now
func (c CalendarConfig) Resolve(now time.Time) (int, time.Month) {
	year, month := now.Year(), now.Month()
	if c.Year != 0 {
		year = c.Year
	}
	if c.Month != 0 {
		month = time.Month(c.Month)
	}
	return year, month
}

// MethodsConfig names the calculation methods of the two local sources
type MethodsConfig struct {
	MethodA      string
	MethodB      string
	HighLatitude string
}

type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
	Rate    float64
	Burst   int
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string
	Persist       bool
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type KafkaConfig struct {
	Brokers            []string
	TopicRecords       string
	TopicNotifications string
	NumPartitions      int
	ReplicationFactor  int
	GroupID            string
	NotifyGroupID      string
	Publish            bool
}

// ScheduleConfig is when the scheduler builds the following month
type ScheduleConfig struct {
	DayOfMonth int
	TimeOfDay  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type LogConfig struct {
	Level       string
	Development bool
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Location: LocationConfig{
			Latitude:  getEnvAsFloat("LOCATION_LATITUDE", -5.777508),
			Longitude: getEnvAsFloat("LOCATION_LONGITUDE", 106.3977983),
			CityID:    getEnv("LOCATION_CITY_ID", "1301"),
			TimeZone:  getEnv("TIME_ZONE", "Asia/Jakarta"),
		},
		Calendar: CalendarConfig{
			Year:        getEnvAsInt("CALENDAR_YEAR", 0),
			Month:       getEnvAsInt("CALENDAR_MONTH", 0),
			Concurrency: getEnvAsInt("CALENDAR_CONCURRENCY", 1),
		},
		Methods: MethodsConfig{
			MethodA:      getEnv("METHOD_A", calc.MethodSingapore.Name),
			MethodB:      getEnv("METHOD_B", calc.MethodMakkah.Name),
			HighLatitude: getEnv("METHOD_HIGH_LATITUDE", string(calc.HighLatitudeNightMiddle)),
		},
		Remote: RemoteConfig{
			BaseURL: getEnv("REMOTE_BASE_URL", "https://api.myquran.com"),
			Timeout: getEnvAsDuration("REMOTE_TIMEOUT", 10*time.Second),
			Rate:    getEnvAsFloat("REMOTE_RATE", 5),
			Burst:   getEnvAsInt("REMOTE_BURST", 2),
		},
		Cache: CacheConfig{
			Enabled: getEnvAsBool("CACHE_ENABLED", false),
			TTL:     getEnvAsDuration("CACHE_TTL", 30*24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnvAsInt("DB_PORT", 5432),
			User:          getEnv("DB_USER", "prayer_user"),
			Password:      getEnv("DB_PASSWORD", "prayer_pass"),
			DBName:        getEnv("DB_NAME", "prayer_db"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
			Persist:       getEnvAsBool("DB_PERSIST", false),
		},
		Kafka: KafkaConfig{
			Brokers:            strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicRecords:       getEnv("KAFKA_TOPIC_RECORDS", "prayer.times.daily"),
			TopicNotifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "prayer.times.months"),
			NumPartitions:      getEnvAsInt("KAFKA_NUM_PARTITIONS", 4),
			ReplicationFactor:  getEnvAsInt("KAFKA_REPLICATION_FACTOR", 1),
			GroupID:            getEnv("KAFKA_GROUP_ID", "dbwriter-group"),
			NotifyGroupID:      getEnv("KAFKA_NOTIFY_GROUP_ID", "notifier-group"),
			Publish:            getEnvAsBool("KAFKA_PUBLISH", false),
		},
		Schedule: ScheduleConfig{
			DayOfMonth: getEnvAsInt("SCHEDULE_DAY_OF_MONTH", 25),
			TimeOfDay:  getEnv("SCHEDULE_TIME_OF_DAY", "00:05"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "prayer-times@example.com"),
			To:       getEnv("SMTP_TO", "admin@example.com"),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	return config, nil
}

// Validate rejects settings no month can be built with. Every error
// matches prayer.ErrConfigurationInvalid.
func (c *Config) Validate() error {
	if err := c.Location.Coordinates().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Location.CityID) == "" {
		return prayer.NewConfigurationError("city id", "must not be empty")
	}
	if _, err := c.Location.LoadLocation(); err != nil {
		return err
	}

	if c.Calendar.Year != 0 || c.Calendar.Month != 0 {
		year, month := c.Calendar.Resolve(time.Now())
		if err := prayer.ValidateMonth(year, month); err != nil {
			return err
		}
	}
	if c.Calendar.Concurrency < 1 {
		return prayer.NewConfigurationError("concurrency", fmt.Sprintf("%d is below 1", c.Calendar.Concurrency))
	}

	names := []prayer.SourceName{prayer.SourceKemenag}
	for _, name := range []string{c.Methods.MethodA, c.Methods.MethodB} {
		m, err := calc.MethodByName(name)
		if err != nil {
			return err
		}
		names = append(names, m.SourceName())
	}
	if err := prayer.ValidateSourceNames(names); err != nil {
		return err
	}
	if _, err := calc.ParseHighLatitudeRule(c.Methods.HighLatitude); err != nil {
		return err
	}

	if c.Remote.Timeout <= 0 {
		return prayer.NewConfigurationError("remote timeout", "must be positive")
	}
	if c.Remote.Rate <= 0 {
		return prayer.NewConfigurationError("remote rate", "must be positive")
	}

	if c.Schedule.DayOfMonth < 1 || c.Schedule.DayOfMonth > 31 {
		return prayer.NewConfigurationError("schedule day", fmt.Sprintf("%d is outside [1, 31]", c.Schedule.DayOfMonth))
	}
	if _, err := prayer.ParseClock(c.Schedule.TimeOfDay); err != nil {
		return prayer.NewConfigurationError("schedule time", err.Error())
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
