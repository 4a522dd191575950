// Copyright 2018 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/promslog"
	"github.com/prometheus/common/promslog/flag"
	"github.com/prometheus/common/version"

	"github.com/prometheus/snmp_ifpoller/collector"
	"github.com/prometheus/snmp_ifpoller/config"
	"github.com/prometheus/snmp_ifpoller/scraper"
	"github.com/prometheus/snmp_ifpoller/sink"
	"github.com/prometheus/snmp_ifpoller/snmp"
	"github.com/prometheus/snmp_ifpoller/walker"
)

const (
	programName   = "snmp_ifpoller"
	passphraseEnv = "SNMP_IFPOLLER_PASSPHRASE"
)

var (
	configFile = kingpin.Flag(
		"config.file", "Path to configuration file.",
	).Default("snmp_ifpoller.yml").String()
	expandEnvVars = kingpin.Flag(
		"config.expand-environment-variables", "Expand environment variables to source secrets.",
	).Default("false").Bool()
	envFiles = kingpin.Flag(
		"config.env-file", "File with KEY=value lines loaded into the environment before the configuration. Can be repeated.",
	).Strings()
	passphraseFile = kingpin.Flag(
		"config.secret-passphrase-file", "File holding the passphrase for aesgcm: secrets. Defaults to $"+passphraseEnv+".",
	).String()
	debugSNMP = kingpin.Flag(
		"snmp.debug-packets", "Include a full debug trace of SNMP packet traffics.",
	).Default("false").Bool()
	pushGateway = kingpin.Flag(
		"push.gateway-url", "Pushgateway to push run metrics to after the poll.",
	).String()
	dryRun = kingpin.Flag(
		"dry-run", "Walk and assemble, but do not write to the sink.",
	).Default("false").Bool()
)

// poller performs one poll of a target: walk, assemble, write.
type poller struct {
	cfg     *config.Config
	codec   *snmp.Codec
	logger  *slog.Logger
	metrics *runMetrics
	walker  *walker.Metrics
	clock   clock.Clock
}

// poll walks the target over conn and writes the interface records to s. A
// nil sink only logs the line protocol that would have been written. It returns the number of
// records written.
func (p *poller) poll(ctx context.Context, conn scraper.Conn, s sink.Sink) (int, error) {
	w := walker.New(walker.Params{
		Root:                   p.cfg.Walk.Root(),
		NonRepeaters:           p.cfg.Walk.NonRepeaters,
		MaxRepetitions:         p.cfg.Walk.MaxRepetitions,
		Timeout:                p.cfg.Walk.Timeout,
		AllowNonIncreasingOIDs: p.cfg.Walk.AllowNonIncreasingOIDs,
	}, p.codec, p.logger, p.walker, p.clock)
	d := &scraper.Driver{
		Conn:         conn,
		Walker:       w,
		TickInterval: p.cfg.Walk.TickInterval,
		Clock:        p.clock,
		Logger:       p.logger,
	}

	start := p.clock.Now()
	acc, err := d.Run(ctx)
	p.metrics.walkDuration.Set(p.clock.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", p.cfg.Target, err)
	}

	fallback := p.cfg.DeviceName
	if fallback == "" {
		fallback = p.cfg.Target
	}
	device := collector.DeviceName(acc, fallback)
	records, errs := collector.Assemble(acc, device, p.logger)
	p.metrics.incompleteRecords.Add(float64(len(errs)))
	p.logger.Info("Walk complete", "device", device, "rounds", w.Rounds(), "varbinds", len(acc), "records", len(records), "incomplete", len(errs))

	points := collector.ToPoints(records, p.cfg.Sink.Measurement, p.clock.Now().Add(-p.cfg.Sink.Backdate))
	if s == nil {
		b, err := sink.EncodeLineProtocol(points)
		if err != nil {
			return 0, err
		}
		for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
			p.logger.Info("Dry run", "line", line)
		}
		p.metrics.lastSuccess.Set(float64(p.clock.Now().Unix()))
		return 0, nil
	}
	if err := s.Write(ctx, points); err != nil {
		return 0, fmt.Errorf("writing %d points: %w", len(points), err)
	}
	p.metrics.recordsWritten.Add(float64(len(points)))
	p.metrics.lastSuccess.Set(float64(p.clock.Now().Unix()))
	return len(points), nil
}

func readPassphrase(file string) (string, error) {
	if file == "" {
		return os.Getenv(passphraseEnv), nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	if err := config.LoadEnvFiles(*envFiles...); err != nil {
		return nil, fmt.Errorf("loading env files: %w", err)
	}
	cfg, err := config.LoadFile(*configFile, *expandEnvVars)
	if err != nil {
		return nil, err
	}
	passphrase, err := readPassphrase(*passphraseFile)
	if err != nil {
		return nil, fmt.Errorf("reading secret passphrase: %w", err)
	}
	if err := cfg.DecryptSecrets(passphrase); err != nil {
		return nil, fmt.Errorf("decrypting secrets: %w", err)
	}
	logger.Debug("Loaded config file", "file", *configFile, "target", cfg.Target, "sink", cfg.Sink.Type)
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) error {
	p := &poller{
		cfg:     cfg,
		codec:   snmp.NewCodec(string(cfg.Auth.Community), logger, *debugSNMP),
		logger:  logger,
		metrics: newRunMetrics(reg),
		walker:  walker.NewMetrics(reg),
		clock:   clock.New(),
	}

	var s sink.Sink
	if !*dryRun {
		var err error
		s, err = sink.New(cfg.Sink, logger)
		if err != nil {
			return fmt.Errorf("opening %s sink: %w", cfg.Sink.Type, err)
		}
		defer s.Close()
	}

	conn, err := scraper.DialUDP(cfg.Target, cfg.SourceAddress)
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := p.poll(ctx, conn, s)
	if err != nil {
		return err
	}
	if s != nil {
		logger.Info("Wrote records", "records", n, "sink", cfg.Sink.Type)
	}
	return nil
}

func main() {
	promslogConfig := &promslog.Config{}
	flag.AddFlags(kingpin.CommandLine, promslogConfig)
	kingpin.Version(version.Print(programName))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()
	logger := promslog.New(promslogConfig)

	logger.Info("Starting "+programName, "version", version.Info())
	logger.Info("operational information", "build_context", version.BuildContext())

	cfg, err := loadConfig(logger)
	if err != nil {
		logger.Error("Error parsing config file", "err", err)
		os.Exit(1)
	}
	logger = logger.With("target", cfg.Target)

	reg := prometheus.NewRegistry()
	reg.MustRegister(versioncollector.NewCollector(programName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	runErr := run(ctx, cfg, logger, reg)
	stop()

	if *pushGateway != "" {
		err := push.New(*pushGateway, programName).
			Gatherer(reg).
			Grouping("target", cfg.Target).
			Push()
		if err != nil {
			logger.Error("Error pushing metrics", "url", *pushGateway, "err", err)
		}
	}
	if runErr != nil {
		logger.Error("Poll failed", "err", runErr)
		os.Exit(1)
	}
}
