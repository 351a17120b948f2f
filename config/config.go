package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Location  LocationConfig  `mapstructure:"location"`
	Solar     SolarConfig     `mapstructure:"solar"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	API       APIConfig       `mapstructure:"api"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Influx    InfluxConfig    `mapstructure:"influx"`
	Inverter  InverterConfig  `mapstructure:"inverter"`
	Collector CollectorConfig `mapstructure:"collector"`
	Log       LogConfig       `mapstructure:"log"`
}

type LocationConfig struct {
	Lat      float64 `mapstructure:"lat"`
	Lon      float64 `mapstructure:"lon"`
	Altitude float64 `mapstructure:"altitude"`
	Timezone string  `mapstructure:"timezone"`
}

// Zone resolves the installation time zone.
func (l LocationConfig) Zone() (*time.Location, error) {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid location.timezone %q: %w", l.Timezone, err)
	}
	return loc, nil
}

type SolarConfig struct {
	Array1   ArrayConfig    `mapstructure:"array1"`
	Array2   ArrayConfig    `mapstructure:"array2"`
	Panel    PanelConfig    `mapstructure:"panel"`
	Inverter SandiaInverter `mapstructure:"inverter"`
}

type ArrayConfig struct {
	Tilt        float64 `mapstructure:"tilt"`
	Azimuth     float64 `mapstructure:"azimuth"`
	Height      float64 `mapstructure:"height"`
	ModuleCount int     `mapstructure:"modulecount"`
}

// PanelConfig holds CEC module parameters.
type PanelConfig struct {
	Name     string  `mapstructure:"name"`
	STC      float64 `mapstructure:"stc"`
	PTC      float64 `mapstructure:"ptc"`
	Ac       float64 `mapstructure:"a_c"`
	Ns       float64 `mapstructure:"n_s"`
	IscRef   float64 `mapstructure:"i_sc_ref"`
	VocRef   float64 `mapstructure:"v_oc_ref"`
	ImpRef   float64 `mapstructure:"i_mp_ref"`
	VmpRef   float64 `mapstructure:"v_mp_ref"`
	AlphaSc  float64 `mapstructure:"alpha_sc"`
	BetaOc   float64 `mapstructure:"beta_oc"`
	TNOCT    float64 `mapstructure:"t_noct"`
	ARef     float64 `mapstructure:"a_ref"`
	ILRef    float64 `mapstructure:"i_l_ref"`
	IoRef    float64 `mapstructure:"i_o_ref"`
	Rs       float64 `mapstructure:"r_s"`
	RshRef   float64 `mapstructure:"r_sh_ref"`
	Adjust   float64 `mapstructure:"adjust"`
	GammaR   float64 `mapstructure:"gamma_r"`
}

// SandiaInverter holds Sandia inverter model parameters.
type SandiaInverter struct {
	Name     string  `mapstructure:"name"`
	Vac      float64 `mapstructure:"vac"`
	Pso      float64 `mapstructure:"pso"`
	Paco     float64 `mapstructure:"paco"`
	Pdco     float64 `mapstructure:"pdco"`
	Vdco     float64 `mapstructure:"vdco"`
	C0       float64 `mapstructure:"c0"`
	C1       float64 `mapstructure:"c1"`
	C2       float64 `mapstructure:"c2"`
	C3       float64 `mapstructure:"c3"`
	Pnt      float64 `mapstructure:"pnt"`
	Vdcmax   float64 `mapstructure:"vdcmax"`
	Idcmax   float64 `mapstructure:"idcmax"`
	MpptLow  float64 `mapstructure:"mppt_low"`
	MpptHigh float64 `mapstructure:"mppt_high"`
}

type WeatherConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Hour    int  `mapstructure:"hour"`
	Minute  int  `mapstructure:"minute"`
	// Days covered by a scheduled refresh, counted after today.
	ForecastDays int `mapstructure:"forecast_days"`
}

type APIConfig struct {
	Port            int           `mapstructure:"port"`
	Enabled         bool          `mapstructure:"enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	AdminUser     string        `mapstructure:"admin_user"`
	AdminPassword string        `mapstructure:"admin_password"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Discovery   bool   `mapstructure:"discovery"`
}

type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

type InverterConfig struct {
	IP      string        `mapstructure:"ip"`
	Port    int           `mapstructure:"port"`
	SlaveID uint8         `mapstructure:"slave_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CollectorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Formatter string `mapstructure:"formatter"`
	IgnoreGin bool   `mapstructure:"ignore_gin"`
}

// Load reads the optional config file and overlays environment variables.
// Every key maps to an upper-case variable with dots replaced by underscores,
// e.g. solar.array1.tilt is read from SOLAR_ARRAY1_TILT.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/soleil-forecast")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("auth.admin_password", "AUTH_ADMIN_PASSWORD", "API_ADMIN_PASS"); err != nil {
		return nil, err
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("location.lat", 50.85)
	v.SetDefault("location.lon", 4.35)
	v.SetDefault("location.altitude", 50)
	v.SetDefault("location.timezone", "Europe/Brussels")

	for _, array := range []string{"array1", "array2"} {
		v.SetDefault("solar."+array+".tilt", 35)
		v.SetDefault("solar."+array+".azimuth", 180)
		v.SetDefault("solar."+array+".height", 5)
		v.SetDefault("solar."+array+".modulecount", 6)
	}

	// Hyundai HiE-S400VG
	v.SetDefault("solar.panel.name", "Hyundai HiE-S400VG")
	v.SetDefault("solar.panel.stc", 400.0)
	v.SetDefault("solar.panel.ptc", 364.0)
	v.SetDefault("solar.panel.a_c", 2.02)
	v.SetDefault("solar.panel.n_s", 340.0)
	v.SetDefault("solar.panel.i_sc_ref", 10.97)
	v.SetDefault("solar.panel.v_oc_ref", 46.4)
	v.SetDefault("solar.panel.i_mp_ref", 10.36)
	v.SetDefault("solar.panel.v_mp_ref", 38.6)
	v.SetDefault("solar.panel.alpha_sc", 0.004215)
	v.SetDefault("solar.panel.beta_oc", -0.164485)
	v.SetDefault("solar.panel.t_noct", 45.4)
	v.SetDefault("solar.panel.a_ref", 2.059511)
	v.SetDefault("solar.panel.i_l_ref", 10.385126)
	v.SetDefault("solar.panel.i_o_ref", 4.5757e-10)
	v.SetDefault("solar.panel.r_s", 0.218704)
	v.SetDefault("solar.panel.r_sh_ref", 976.143086)
	v.SetDefault("solar.panel.adjust", 9.872948)
	v.SetDefault("solar.panel.gamma_r", -0.34)

	// Huawei SUN2000-4.6KTL-L1
	v.SetDefault("solar.inverter.name", "Huawei SUN2000-4.6KTL-L1")
	v.SetDefault("solar.inverter.vac", 240.0)
	v.SetDefault("solar.inverter.pso", 1.0)
	v.SetDefault("solar.inverter.paco", 5000.0)
	v.SetDefault("solar.inverter.pdco", 5059.411133)
	v.SetDefault("solar.inverter.vdco", 360.0)
	v.SetDefault("solar.inverter.c0", -0.000002)
	v.SetDefault("solar.inverter.c1", 0.000021)
	v.SetDefault("solar.inverter.c2", 0.000814)
	v.SetDefault("solar.inverter.c3", -0.000727)
	v.SetDefault("solar.inverter.pnt", 1.5)
	v.SetDefault("solar.inverter.vdcmax", 600.0)
	v.SetDefault("solar.inverter.idcmax", 12.5)
	v.SetDefault("solar.inverter.mppt_low", 90.0)
	v.SetDefault("solar.inverter.mppt_high", 560.0)

	v.SetDefault("weather.base_url", "https://api.open-meteo.com")
	v.SetDefault("weather.timeout", "10s")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.hour", 4)
	v.SetDefault("scheduler.minute", 50)
	v.SetDefault("scheduler.forecast_days", 3)

	v.SetDefault("api.port", 8045)
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.shutdown_timeout", "5s")

	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "8760h")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.path", "./soleil.db")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "soleil")
	v.SetDefault("mqtt.client_id", "soleil-forecast")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.discovery", true)

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "home")
	v.SetDefault("influx.bucket", "solar")

	v.SetDefault("inverter.ip", "192.168.1.50")
	v.SetDefault("inverter.port", 502)
	v.SetDefault("inverter.slave_id", 1)
	v.SetDefault("inverter.timeout", "10s")

	v.SetDefault("collector.interval", "60s")
	v.SetDefault("collector.enabled", false)
	v.SetDefault("collector.retention", "8760h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.formatter", "tty")
	v.SetDefault("log.ignore_gin", false)
}

// Validate rejects configurations the model cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Location.Zone(); err != nil {
		return err
	}
	if c.Location.Lat < -90 || c.Location.Lat > 90 {
		return fmt.Errorf("location.lat out of range: %v", c.Location.Lat)
	}
	if c.Location.Lon < -180 || c.Location.Lon > 180 {
		return fmt.Errorf("location.lon out of range: %v", c.Location.Lon)
	}
	if c.Solar.Inverter.Paco <= 0 {
		return fmt.Errorf("solar.inverter.paco must be positive")
	}
	if c.Scheduler.Hour < 0 || c.Scheduler.Hour > 23 || c.Scheduler.Minute < 0 || c.Scheduler.Minute > 59 {
		return fmt.Errorf("scheduler time %02d:%02d is invalid", c.Scheduler.Hour, c.Scheduler.Minute)
	}
	if c.Scheduler.ForecastDays < 0 {
		return fmt.Errorf("scheduler.forecast_days must not be negative")
	}
	return nil
}
