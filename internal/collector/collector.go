// Package collector polls the inverter for actual production and hands every
// reading to storage and the MQTT publisher.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"soleil-forecast/internal/inverter"
)

// Reader returns one set of inverter measurements.
type Reader interface {
	ReadAllData() (*inverter.InverterData, error)
}

// Connection is reset after a failed read.
type Connection interface {
	Reconnect() error
	Close() error
}

type Store interface {
	SaveReading(data *inverter.InverterData) error
	CleanOldReadings(cutoff time.Time) (int64, error)
}

type Publisher interface {
	PublishReading(data *inverter.InverterData) error
}

type Collector struct {
	reader    Reader
	conn      Connection
	store     Store
	publisher Publisher
	clock     clockwork.Clock
	log       logrus.FieldLogger
	interval  time.Duration
	retention time.Duration
	enabled   bool

	mu           sync.RWMutex
	latestData   *inverter.InverterData
	isCollecting bool
	lastPrune    time.Time
}

type Config struct {
	Reader Reader
	// Conn is optional.
	Conn Connection
	// Store and Publisher are optional.
	Store     Store
	Publisher Publisher
	Clock     clockwork.Clock
	Logger    logrus.FieldLogger
	Interval  time.Duration
	// Retention of stored readings; zero keeps them forever.
	Retention time.Duration
	Enabled   bool
}

func New(cfg Config) *Collector {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var log logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		log = cfg.Logger
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	return &Collector{
		reader:    cfg.Reader,
		conn:      cfg.Conn,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		clock:     clock,
		log:       log.WithField("component", "collector"),
		interval:  interval,
		retention: cfg.Retention,
		enabled:   cfg.Enabled,
	}
}

// Start collects immediately and then every interval until ctx is done.
func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled {
		c.log.Info("collector is disabled")
		return nil
	}

	c.setCollecting(true)
	defer c.setCollecting(false)

	c.log.WithField("interval", c.interval).Info("starting collector")
	c.collect()

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("collector stopped")
			return nil
		case <-ticker.Chan():
			c.collect()
		}
	}
}

func (c *Collector) setCollecting(v bool) {
	c.mu.Lock()
	c.isCollecting = v
	c.mu.Unlock()
}

func (c *Collector) collect() {
	data, err := c.CollectOnce()
	if err != nil {
		c.log.WithError(err).Warn("failed to read inverter")
		return
	}

	if c.store != nil {
		if err := c.store.SaveReading(data); err != nil {
			c.log.WithError(err).Error("failed to save reading")
		}
		c.prune()
	}

	if c.publisher != nil {
		if err := c.publisher.PublishReading(data); err != nil {
			c.log.WithError(err).Warn("failed to publish reading")
		}
	}

	c.log.WithFields(logrus.Fields{
		"power_w":   data.ActivePower,
		"daily_kwh": data.DailyEnergy,
		"total_kwh": data.TotalEnergy,
		"temp_c":    data.Temperature,
		"status":    data.DeviceStatusString,
	}).Debug("collected")
}

// prune drops expired readings at most once a day.
func (c *Collector) prune() {
	if c.retention <= 0 {
		return
	}
	now := c.clock.Now()
	if !c.lastPrune.IsZero() && now.Sub(c.lastPrune) < 24*time.Hour {
		return
	}
	c.lastPrune = now

	removed, err := c.store.CleanOldReadings(now.Add(-c.retention))
	if err != nil {
		c.log.WithError(err).Error("failed to prune readings")
		return
	}
	if removed > 0 {
		c.log.WithField("removed", removed).Info("pruned old readings")
	}
}

// CollectOnce reads the inverter, retrying once on a fresh connection.
func (c *Collector) CollectOnce() (*inverter.InverterData, error) {
	data, err := c.reader.ReadAllData()
	if err != nil && c.conn != nil {
		c.log.WithError(err).Debug("read failed, reconnecting")
		if reconnErr := c.conn.Reconnect(); reconnErr != nil {
			return nil, reconnErr
		}
		data, err = c.reader.ReadAllData()
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.latestData = data
	c.mu.Unlock()
	return data, nil
}

func (c *Collector) GetLatestData() *inverter.InverterData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latestData
}

func (c *Collector) IsCollecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isCollecting
}

func (c *Collector) Stop() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.WithError(err).Warn("failed to close inverter connection")
		}
	}
}
