package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"soleil-forecast/config"
	"soleil-forecast/internal/api"
	"soleil-forecast/internal/collector"
	"soleil-forecast/internal/influx"
	"soleil-forecast/internal/inverter"
	"soleil-forecast/internal/modbus"
	"soleil-forecast/internal/mqtt"
	"soleil-forecast/internal/peak"
	"soleil-forecast/internal/production"
	"soleil-forecast/internal/scheduler"
	"soleil-forecast/internal/solar"
	"soleil-forecast/internal/storage"
	"soleil-forecast/internal/weather"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "soleil-forecast",
		Short:         "Solar production forecast service",
		Long:          "Forecasts PV production from weather data and serves it over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(peakCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(inverterCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return cfg, log, nil
}

// outputs holds the optional destinations of published forecasts.
type outputs struct {
	db        *storage.Database
	publisher *mqtt.Publisher
	exporter  *influx.Exporter
	sinks     []production.Sink
}

func openOutputs(cfg *config.Config, log *logrus.Logger) (*outputs, error) {
	out := &outputs{}

	if cfg.Database.Enabled {
		db, err := storage.NewDatabase(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		log.WithField("path", cfg.Database.Path).Info("database opened")
		out.db = db
		out.sinks = append(out.sinks, db)
	}

	if cfg.MQTT.Enabled {
		publisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Logger:      log,
		})
		if err != nil {
			log.WithError(err).Warn("MQTT disabled")
		} else {
			if cfg.MQTT.Discovery {
				if err := publisher.PublishHomeAssistantDiscovery(); err != nil {
					log.WithError(err).Warn("failed to publish Home Assistant discovery")
				}
			}
			out.publisher = publisher
			out.sinks = append(out.sinks, publisher)
		}
	}

	if cfg.Influx.Enabled {
		exporter := influx.NewExporter(influx.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
			Logger: log,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := exporter.Ping(ctx); err != nil {
			log.WithError(err).Warn("InfluxDB not reachable, exports may fail")
		}
		cancel()
		out.exporter = exporter
		out.sinks = append(out.sinks, exporter)
	}

	return out, nil
}

func (o *outputs) Close() {
	if o.publisher != nil {
		o.publisher.Close()
	}
	if o.exporter != nil {
		o.exporter.Close()
	}
	if o.db != nil {
		o.db.Close()
	}
}

func newService(cfg *config.Config, log *logrus.Logger, sinks []production.Sink) (*production.Service, error) {
	loc, err := cfg.Location.Zone()
	if err != nil {
		return nil, err
	}
	system, err := solar.NewSystem(cfg.Location, cfg.Solar)
	if err != nil {
		return nil, err
	}

	return production.NewService(production.ServiceConfig{
		Location: cfg.Location,
		System:   system,
		Weather: weather.NewOpenMeteoClient(weather.OpenMeteoConfig{
			BaseURL:  cfg.Weather.BaseURL,
			Timeout:  cfg.Weather.Timeout,
			Location: loc,
			Logger:   log,
		}),
		Logger:       log,
		ForecastDays: cfg.Scheduler.ForecastDays,
		Sinks:        sinks,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the forecast service",
		Long:  "Start the refresh scheduler, the API server and, when enabled, the inverter collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			out, err := openOutputs(cfg, log)
			if err != nil {
				return err
			}
			defer out.Close()

			service, err := newService(cfg, log, out.sinks)
			if err != nil {
				return err
			}
			loc := service.Location()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sched := scheduler.New(scheduler.Config{
				Refresher: service,
				Location:  loc,
				Hour:      cfg.Scheduler.Hour,
				Minute:    cfg.Scheduler.Minute,
				Enabled:   cfg.Scheduler.Enabled,
				Logger:    log,
			})
			go func() {
				if err := sched.Start(ctx); err != nil {
					log.WithError(err).Error("scheduler error")
				}
			}()

			if cfg.Collector.Enabled {
				client := modbus.NewClient(cfg.Inverter.IP, cfg.Inverter.Port, cfg.Inverter.SlaveID, cfg.Inverter.Timeout)
				collCfg := collector.Config{
					Reader:    inverter.NewHuawei(client, nil),
					Conn:      client,
					Logger:    log,
					Interval:  cfg.Collector.Interval,
					Retention: cfg.Collector.Retention,
					Enabled:   true,
				}
				if out.db != nil {
					collCfg.Store = out.db
				}
				if out.publisher != nil {
					collCfg.Publisher = out.publisher
				}
				coll := collector.New(collCfg)
				defer coll.Stop()

				go func() {
					if err := coll.Start(ctx); err != nil {
						log.WithError(err).Error("collector error")
					}
				}()
			}

			var server *api.Server
			if cfg.API.Enabled {
				srvCfg := api.ServerConfig{
					Port:       cfg.API.Port,
					Forecaster: service,
					Auth:       cfg.Auth,
					Logger:     log,
					IgnoreGin:  cfg.Log.IgnoreGin,
				}
				if out.db != nil {
					srvCfg.Store = out.db
				}
				server = api.NewServer(srvCfg)

				go func() {
					if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.WithError(err).Error("API server error")
						cancel()
					}
				}()
			}

			log.Info("soleil-forecast started")
			<-ctx.Done()
			log.Info("shutting down")

			if server != nil {
				shutdownCtx, done := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
				defer done()
				if err := server.Stop(shutdownCtx); err != nil {
					log.WithError(err).Warn("API server did not stop cleanly")
				}
			}
			return nil
		},
	}
}

func dateFlag(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return api.ParseDate(value, loc)
}

func refreshCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the forecast once",
		Long:  "Run the model once, store the results in the configured outputs and print the run report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			out, err := openOutputs(cfg, log)
			if err != nil {
				return err
			}
			defer out.Close()

			service, err := newService(cfg, log, out.sinks)
			if err != nil {
				return err
			}
			startDate, err := dateFlag(start, service.Location())
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			endDate, err := dateFlag(end, service.Location())
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			report, err := service.Refresh(cmd.Context(), startDate, endDate)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD), today when empty")
	cmd.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD), start plus the forecast days when empty")
	return cmd
}

func peakCmd() *cobra.Command {
	var (
		end       string
		hours     int
		order     string
		precision int
		minKwh    float64
		minTemp   float64
	)

	cmd := &cobra.Command{
		Use:   "peak",
		Short: "Find the best production window",
		Long:  "Fetch the forecast and print the start of the best window of the given length between now and --end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			service, err := newService(cfg, log, nil)
			if err != nil {
				return err
			}

			o, err := peak.ParseOrder(order)
			if err != nil {
				return err
			}
			now := service.Now()
			q := peak.Query{
				Start:     now,
				End:       now.Add(24 * time.Hour),
				Duration:  time.Duration(hours) * time.Hour,
				Order:     o,
				Precision: precision,
			}
			if end != "" {
				if q.End, err = api.ParseDateTime(end, service.Location()); err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
			}
			if cmd.Flags().Changed("min-kwh") {
				q.MinKwh = &minKwh
			}
			if cmd.Flags().Changed("min-temp") {
				q.MinTemp = &minTemp
			}

			// cover the window following the last candidate
			last := q.End.Add(q.Duration)
			if _, err := service.Refresh(cmd.Context(), now, last); err != nil {
				return err
			}
			result, err := service.Snapshot().Peak(q)
			if err != nil {
				return err
			}
			fmt.Println(result.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&end, "end", "", "latest window start, 24 hours from now when empty")
	cmd.Flags().IntVar(&hours, "duration-h", 1, "window length in hours")
	cmd.Flags().StringVar(&order, "order", string(peak.First), `tie-break order, "first" or "last"`)
	cmd.Flags().IntVar(&precision, "precision", 2, "digits compared when ranking windows")
	cmd.Flags().Float64Var(&minKwh, "min-kwh", 0, "energy the window should reach")
	cmd.Flags().Float64Var(&minTemp, "min-temp", 0, "minimum air temperature at the window start")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := api.IssueToken(cfg.Auth.JWTSecret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "grafana", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, auth.token_ttl when unset")
	return cmd
}

func inverterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inverter",
		Short: "Talk to the inverter directly",
	}
	cmd.AddCommand(inverterReadCmd(), inverterTestCmd())
	return cmd
}

func inverterClient() (*modbus.Client, error) {
	cfg, _, err := load()
	if err != nil {
		return nil, err
	}
	return modbus.NewClient(cfg.Inverter.IP, cfg.Inverter.Port, cfg.Inverter.SlaveID, cfg.Inverter.Timeout), nil
}

func inverterReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read data once from the inverter",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := inverterClient()
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := inverter.NewHuawei(client, nil).ReadAllData()
			if err != nil {
				return fmt.Errorf("failed to read data: %w", err)
			}
			return printJSON(data)
		},
	}
}

func inverterTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the Modbus TCP connection to the inverter",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := inverterClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Connect(); err != nil {
				fmt.Printf("Connection FAILED: %v\n", err)
				return err
			}

			model, serial, err := inverter.NewHuawei(client, nil).ReadDeviceInfo()
			if err != nil {
				fmt.Printf("Connected, but reading failed: %v\n", err)
				return err
			}

			fmt.Println("Connection SUCCESS!")
			fmt.Printf("  Model:         %s\n", model)
			fmt.Printf("  Serial Number: %s\n", serial)
			return nil
		},
	}
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
