package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

const SamplingChannelName = "agc"

type sampler struct {
	samplingFrequency time.Duration
	conn              io.Writer
	store             *StatusStore
	session           string
	logger            *zap.Logger
}

// NewSampler pushes the store's status to conn (usually a UDP socket to
// telegraf) as influx line protocol once per samplingFrequency.
func NewSampler(samplingFrequency time.Duration, conn io.Writer, store *StatusStore, session string, logger *zap.Logger) *sampler {
	return &sampler{
		samplingFrequency: samplingFrequency,
		conn:              conn,
		store:             store,
		session:           session,
		logger:            logger,
	}
}

func (s *sampler) FormatLine(status Status, now time.Time) string {
	return fmt.Sprintf("%s,session=%s peak=%di,accumulated=%di,gain_index=%di,gain_db=%.1f,windows=%di,steps=%di,gain_failures=%di %d\n",
		SamplingChannelName,
		s.session,
		status.Peak,
		status.Accumulated,
		status.GainIndex,
		float64(status.GainTenthsDB)/10,
		status.Windows,
		status.Steps,
		status.GainFailures,
		now.UnixNano(),
	)
}

func (s *sampler) SampleAndLog() {
	status := s.store.GetStatus()
	if !status.HasObservation {
		return
	}

	influxString := s.FormatLine(status, time.Now())
	if err := s.send(influxString); err != nil {
		s.logger.Warn("[sampler] Error writing data to UDP connection", zap.Error(err))
	} else {
		s.logger.Debug("[sampler] collected sample", zap.String("influxString", influxString))
	}
}

func (s *sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.samplingFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("[sampler] received shutdown signal")
			return
		case <-ticker.C:
			s.SampleAndLog()
		}
	}
}

func (s *sampler) send(formattedData string) error {
	data := []byte(formattedData)
	totalWritten := 0
	for totalWritten < len(data) {
		n, err := s.conn.Write(data[totalWritten:])
		if err != nil {
			return err
		}
		totalWritten += n
	}
	return nil
}
