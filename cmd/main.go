package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sleepywoodpecker/rtl-agc/internal/agc"
	"sleepywoodpecker/rtl-agc/internal/config"
	"sleepywoodpecker/rtl-agc/internal/device"
	"sleepywoodpecker/rtl-agc/internal/logger"
	"sleepywoodpecker/rtl-agc/internal/processing"
	rserial "sleepywoodpecker/rtl-agc/internal/rSerial"
	"sleepywoodpecker/rtl-agc/internal/telemetry"
)

type flagValues struct {
	configPath     string
	transport      string
	device         string
	frequency      uint32
	sampleRate     uint32
	gain           float64
	ppm            int
	blockSize      int
	samples        float64
	sync           bool
	directSampling bool
	logFile        string
	metricsAddr    string
	telegrafAddr   string
}

func main() {
	if err := newRootCmd(&flagValues{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(fv *flagValues) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rtl_agc [flags] filename",
		Short: "I/Q recorder for RTL2832 based receivers with software AGC",
		Long: "Records 8-bit interleaved I/Q samples to a file ('-' for stdout, .zst to compress).\n" +
			"A negative gain enables software AGC targeting that peak level.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, warnings, err := loadConfig(cmd, fv, args)
			if err != nil {
				return err
			}
			return run(cfg, warnings)
		},
	}

	f := cmd.Flags()
	f.StringVar(&fv.configPath, "config", "", "YAML config file")
	f.StringVar(&fv.transport, "transport", config.TransportRTLTCP, "receiver transport: rtltcp, serial or replay")
	f.StringVarP(&fv.device, "device", "d", "", "rtl_tcp host:port, serial port or capture file")
	fv.frequency = config.DefaultFrequency
	f.VarP(siValue{&fv.frequency}, "frequency", "f", "frequency to tune to [Hz]")
	fv.sampleRate = config.DefaultSampleRate
	f.VarP(siValue{&fv.sampleRate}, "samplerate", "s", "sample rate [Hz]")
	f.Float64VarP(&fv.gain, "gain", "g", 0, "gain in dB: 0 auto, >0 manual, <0 AGC target peak score / 10")
	f.IntVarP(&fv.ppm, "ppm", "p", 0, "ppm error")
	f.IntVarP(&fv.blockSize, "block-size", "b", config.DefaultBufLength, "output block size")
	f.Float64VarP(&fv.samples, "samples", "n", 0, "number of samples to read, 0 for infinite")
	f.BoolVarP(&fv.sync, "sync", "S", false, "force sync output")
	f.BoolVarP(&fv.directSampling, "direct-sampling", "D", false, "enable direct sampling")
	f.StringVar(&fv.logFile, "log-file", "", "log file path (default from config)")
	f.StringVar(&fv.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&fv.telegrafAddr, "telegraf-addr", "", "push AGC status to telegraf over UDP")
	return cmd
}

// loadConfig layers explicitly set flags over the config file over defaults.
func loadConfig(cmd *cobra.Command, fv *flagValues, args []string) (*config.Config, []string, error) {
	cfg := config.Default()
	if fv.configPath != "" {
		var err error
		if cfg, err = config.Load(fv.configPath); err != nil {
			return nil, nil, err
		}
	}

	f := cmd.Flags()
	if f.Changed("transport") {
		cfg.Transport = fv.transport
	}
	if f.Changed("device") {
		cfg.Device = fv.device
	}
	if f.Changed("frequency") {
		cfg.Frequency = fv.frequency
	}
	if f.Changed("samplerate") {
		cfg.SampleRate = fv.sampleRate
	}
	if f.Changed("gain") {
		cfg.Gain = fv.gain
	}
	if f.Changed("ppm") {
		cfg.PPM = fv.ppm
	}
	if f.Changed("block-size") {
		cfg.BlockSize = fv.blockSize
	}
	if f.Changed("samples") {
		cfg.Samples = uint64(fv.samples)
	}
	if f.Changed("sync") {
		cfg.Sync = fv.sync
	}
	if f.Changed("direct-sampling") {
		cfg.DirectSampling = fv.directSampling
	}
	if f.Changed("log-file") {
		cfg.Log.File = fv.logFile
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = fv.metricsAddr
	}
	if f.Changed("telegraf-addr") {
		cfg.Telegraf.Addr = fv.telegrafAddr
	}
	if len(args) > 0 {
		cfg.Output = args[0]
	}

	warnings := cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, warnings, nil
}

func run(cfg *config.Config, warnings []string) (err error) {
	// context handler for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	// first initialize the main logger
	log, err := logger.NewLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	for _, w := range warnings {
		log.Warn("[main] " + w)
	}

	go func() {
		select {
		case <-sigCh:
			log.Info("[main] signal caught, exiting")
			cancel()
		case <-ctx.Done():
		}
	}()

	dev, err := openDevice(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer dev.Close()

	metrics := telemetry.NewMetrics()
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(metrics), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("[main] metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	configureDevice(dev, cfg, log)

	var consumer processing.Consumer
	if cfg.AGCEnabled() {
		session, err := startAGC(ctx, cfg, dev, metrics, log)
		if err != nil {
			return err
		}
		defer session.Stop()
		consumer = session
	} else if err := setStaticGain(dev, cfg, log); err != nil {
		return err
	}

	if err := dev.SetFreqCorrection(cfg.PPM); err != nil {
		log.Warn("[main] failed to set ppm error", zap.Error(err), zap.Int("ppm", cfg.PPM))
	}

	out, err := processing.OpenSink(cfg.Output)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	processor := processing.NewProcessor(out, consumer, metrics, cfg.BytesToRead(), log)
	streamer := processing.NewStreamer(dev, processor, cfg.BlockSize, cfg.AGC.QueueLength, !cfg.Sync, log)
	return streamer.Run(ctx)
}

func metricsMux(metrics *telemetry.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func openDevice(ctx context.Context, cfg *config.Config, log *zap.Logger) (device.Device, error) {
	switch cfg.Transport {
	case config.TransportSerial:
		return rserial.NewRSerial(cfg.Device, cfg.Serial.Baudrate, cfg.Serial.PayloadSize, cfg.Gains, log)
	case config.TransportReplay:
		file, err := os.Open(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture %s: %w", cfg.Device, err)
		}
		return device.NewReplay(file, cfg.Gains, log), nil
	default:
		dialCtx, done := context.WithTimeout(ctx, 10*time.Second)
		defer done()
		return device.DialRTLTCP(dialCtx, cfg.Device, log)
	}
}

func configureDevice(dev device.Device, cfg *config.Config, log *zap.Logger) {
	if cfg.DirectSampling {
		if err := dev.SetDirectSampling(2); err != nil {
			log.Warn("[main] failed to enable direct sampling", zap.Error(err))
		}
	}
	if err := dev.SetSampleRate(cfg.SampleRate); err != nil {
		log.Warn("[main] failed to set sample rate", zap.Error(err), zap.Uint32("rate", cfg.SampleRate))
	} else {
		log.Info("[main] sampling", zap.Uint32("rate", cfg.SampleRate))
	}
	if err := dev.SetFrequency(cfg.Frequency); err != nil {
		log.Warn("[main] failed to set center frequency", zap.Error(err), zap.Uint32("hz", cfg.Frequency))
	} else {
		log.Info("[main] tuned", zap.Uint32("hz", cfg.Frequency))
	}
}

// setStaticGain handles the two non-AGC modes: hardware auto gain for 0 and
// the nearest supported manual gain for positive values.
func setStaticGain(dev device.Device, cfg *config.Config, log *zap.Logger) error {
	if cfg.GainTenths() == 0 {
		if err := dev.SetGainMode(false); err != nil {
			log.Warn("[main] failed to enable automatic gain", zap.Error(err))
			return nil
		}
		log.Info("[main] tuner gain set to automatic")
		return nil
	}

	gains, err := dev.SupportedGains()
	if err != nil || len(gains) == 0 {
		return fmt.Errorf("no supported gains to pick a manual gain from: %w", err)
	}
	gain := device.NearestGain(gains, cfg.GainTenths())
	if err := dev.SetGainMode(true); err != nil {
		log.Warn("[main] failed to enable manual gain", zap.Error(err))
	}
	if err := dev.SetGain(gain); err != nil {
		log.Warn("[main] failed to set tuner gain", zap.Error(err), zap.Int("gainTenthsDB", gain))
		return nil
	}
	log.Info("[main] tuner gain set", zap.Float64("gainDB", float64(gain)/10))
	return nil
}

func startAGC(ctx context.Context, cfg *config.Config, dev device.Device, metrics *telemetry.Metrics, log *zap.Logger) (*agc.Session, error) {
	store := telemetry.NewStatusStore()
	session, err := agc.NewSession(agc.Config{
		Target:       agc.Score(cfg.GainTenths()),
		SampleRate:   cfg.SampleRate,
		Threshold:    cfg.AGC.Threshold,
		PollInterval: cfg.AGC.PollInterval,
	}, dev, log, telemetry.Tee(store, metrics))
	if err != nil {
		return nil, err
	}

	st := session.Snapshot()
	store.SetGain(st.GainIndex, st.GainTenthsDB)
	metrics.SetGain(st.GainIndex, st.GainTenthsDB)

	if cfg.Telegraf.Addr != "" {
		if err := startSampler(ctx, cfg, store, session.ID(), log); err != nil {
			log.Warn("[main] telegraf push disabled", zap.Error(err))
		}
	}

	session.Start(ctx)
	return session, nil
}

func startSampler(ctx context.Context, cfg *config.Config, store *telemetry.StatusStore, sessionID string, log *zap.Logger) error {
	// initialize UDP connection to grafana
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Telegraf.Addr)
	if err != nil {
		return err
	}
	udpConn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return err
	}

	sampler := telemetry.NewSampler(cfg.Telegraf.Interval, udpConn, store, sessionID, log)
	go func() {
		defer udpConn.Close()
		sampler.Run(ctx)
	}()
	return nil
}
