// Package mqtt publishes forecast summaries and inverter readings, with Home
// Assistant discovery for both.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"soleil-forecast/internal/inverter"
	"soleil-forecast/internal/production"
)

const (
	inverterNode = "inverter"
	forecastNode = "forecast"

	publishTimeout = 5 * time.Second
)

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	log         logrus.FieldLogger
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Logger      logrus.FieldLogger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	var log logrus.FieldLogger = logrus.StandardLogger()
	if cfg.Logger != nil {
		log = cfg.Logger
	}
	log = log.WithField("component", "mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.WithField("broker", cfg.Broker).Info("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		// connect keeps retrying in the background
		log.WithField("broker", cfg.Broker).Warn("MQTT broker not reachable yet")
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newPublisher(client, cfg.TopicPrefix, log), nil
}

func newPublisher(client mqtt.Client, topicPrefix string, log logrus.FieldLogger) *Publisher {
	return &Publisher{client: client, topicPrefix: topicPrefix, log: log}
}

func (p *Publisher) topic(node, name string) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, node, name)
}

func (p *Publisher) publish(topic string, retained bool, payload any) error {
	token := p.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// publishValues sends each value to its own topic and the whole set as
// retained JSON on the status topic.
func (p *Publisher) publishValues(node string, values map[string]any, status any) error {
	for name, value := range values {
		if err := p.publish(p.topic(node, name), false, fmt.Sprintf("%v", value)); err != nil {
			p.log.WithError(err).Warn("failed to publish value")
		}
	}

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return p.publish(p.topic(node, "status"), true, statusJSON)
}

func (p *Publisher) PublishReading(data *inverter.InverterData) error {
	return p.publishValues(inverterNode, map[string]any{
		"power":          data.ActivePower,
		"input_power":    data.InputPower,
		"energy_daily":   data.DailyEnergy,
		"energy_total":   data.TotalEnergy,
		"temperature":    data.Temperature,
		"pv1_voltage":    data.PV1Voltage,
		"pv1_current":    data.PV1Current,
		"pv2_voltage":    data.PV2Voltage,
		"pv2_current":    data.PV2Current,
		"grid_voltage":   data.GridVoltage,
		"grid_frequency": data.GridFrequency,
		"grid_current":   data.GridCurrent,
		"power_factor":   data.PowerFactor,
		"efficiency":     data.Efficiency,
		"status_text":    data.DeviceStatusString,
		"is_online":      data.IsOnline,
	}, data)
}

// ForecastSummary is what Home Assistant shows about the forecast.
type ForecastSummary struct {
	State         string     `json:"state"`
	RunID         string     `json:"run_id"`
	GeneratedAt   time.Time  `json:"generated_at"`
	TodayKwh      *float64   `json:"today_kwh"`
	TomorrowKwh   *float64   `json:"tomorrow_kwh"`
	TodayPeakW    *float64   `json:"today_peak_w"`
	TodayRatio    *float64   `json:"today_clearsky_ratio"`
	ProductionOn  *time.Time `json:"production_start"`
	ProductionOff *time.Time `json:"production_end"`
}

// Summarize describes the day containing now and the next one.
func Summarize(snap *production.Snapshot, report production.RefreshReport, now time.Time) (ForecastSummary, error) {
	summary := ForecastSummary{
		State:       snap.State().String(),
		RunID:       report.ID,
		GeneratedAt: report.FinishedAt,
	}
	if snap.State() != production.Ready {
		return summary, nil
	}

	loc := snap.Location()
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	endOfToday := today.AddDate(0, 0, 1).Add(-time.Second)

	days, err := snap.DailyKwh(production.Forecast, today, endOfToday.AddDate(0, 0, 1))
	if err != nil {
		return summary, err
	}
	for i := range days {
		switch {
		case days[i].Time.Equal(today):
			summary.TodayKwh = &days[i].Value
		case days[i].Time.Equal(today.AddDate(0, 0, 1)):
			summary.TomorrowKwh = &days[i].Value
		}
	}

	power, err := snap.ACPower(production.Forecast, today, endOfToday)
	if err != nil {
		return summary, err
	}
	if len(power) > 0 {
		peak := 0.0
		for _, s := range power {
			peak = max(peak, s.ACWatts)
		}
		summary.TodayPeakW = &peak
	}

	cmp, err := snap.ProductionVsClearsky(today, endOfToday)
	if err != nil {
		return summary, err
	}
	if cmp.ClearSky > 0 {
		summary.TodayRatio = &cmp.Ratio
	}

	summary.ProductionOn, summary.ProductionOff, err = snap.Bounds(today, 0)
	return summary, err
}

// HandleRefresh publishes the summary of a newly published snapshot.
func (p *Publisher) HandleRefresh(_ context.Context, snap *production.Snapshot, report production.RefreshReport) error {
	summary, err := Summarize(snap, report, report.FinishedAt)
	if err != nil {
		return err
	}

	values := map[string]any{"state": summary.State}
	for name, v := range map[string]*float64{
		"today_kwh":            summary.TodayKwh,
		"tomorrow_kwh":         summary.TomorrowKwh,
		"today_peak_w":         summary.TodayPeakW,
		"today_clearsky_ratio": summary.TodayRatio,
	} {
		if v != nil {
			values[name] = fmt.Sprintf("%.3f", *v)
		}
	}
	return p.publishValues(forecastNode, values, summary)
}

type sensor struct {
	node        string
	id          string
	name        string
	unit        string
	deviceClass string
	stateClass  string
}

var sensors = []sensor{
	{inverterNode, "power", "Power", "W", "power", "measurement"},
	{inverterNode, "energy_daily", "Daily Energy", "kWh", "energy", "total_increasing"},
	{inverterNode, "energy_total", "Total Energy", "kWh", "energy", "total_increasing"},
	{inverterNode, "temperature", "Temperature", "°C", "temperature", "measurement"},
	{inverterNode, "pv1_voltage", "PV1 Voltage", "V", "voltage", "measurement"},
	{inverterNode, "pv2_voltage", "PV2 Voltage", "V", "voltage", "measurement"},
	{inverterNode, "grid_voltage", "Grid Voltage", "V", "voltage", "measurement"},
	{inverterNode, "grid_frequency", "Grid Frequency", "Hz", "frequency", "measurement"},
	{inverterNode, "efficiency", "Efficiency", "%", "", "measurement"},
	{inverterNode, "status_text", "Status", "", "", ""},
	{forecastNode, "today_kwh", "Forecast Today", "kWh", "energy", ""},
	{forecastNode, "tomorrow_kwh", "Forecast Tomorrow", "kWh", "energy", ""},
	{forecastNode, "today_peak_w", "Forecast Peak Today", "W", "power", ""},
	{forecastNode, "today_clearsky_ratio", "Forecast Clear-Sky Ratio", "", "", ""},
	{forecastNode, "state", "Forecast Model", "", "", ""},
}

// PublishHomeAssistantDiscovery announces every sensor under the
// homeassistant discovery prefix.
func (p *Publisher) PublishHomeAssistantDiscovery() error {
	device := map[string]any{
		"identifiers":  []string{p.topicPrefix},
		"name":         "Soleil Forecast",
		"manufacturer": "Huawei",
		"model":        "SUN2000",
	}

	for _, s := range sensors {
		uniqueID := fmt.Sprintf("%s_%s_%s", p.topicPrefix, s.node, s.id)
		config := map[string]any{
			"name":        s.name,
			"unique_id":   uniqueID,
			"state_topic": p.topic(s.node, s.id),
			"device":      device,
		}
		if s.unit != "" {
			config["unit_of_measurement"] = s.unit
		}
		if s.deviceClass != "" {
			config["device_class"] = s.deviceClass
		}
		if s.stateClass != "" {
			config["state_class"] = s.stateClass
		}

		payload, err := json.Marshal(config)
		if err != nil {
			return err
		}
		if err := p.publish(fmt.Sprintf("homeassistant/sensor/%s/config", uniqueID), true, payload); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	p.client.Disconnect(1000)
}
