package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/dabubi/drone-visual-positioning/internal/adaptive"
	"github.com/dabubi/drone-visual-positioning/internal/camera"
	"github.com/dabubi/drone-visual-positioning/internal/config"
	"github.com/dabubi/drone-visual-positioning/internal/deadreckon"
	"github.com/dabubi/drone-visual-positioning/internal/ekf"
	"github.com/dabubi/drone-visual-positioning/internal/feature"
	"github.com/dabubi/drone-visual-positioning/internal/frameloop"
	"github.com/dabubi/drone-visual-positioning/internal/fusion"
	"github.com/dabubi/drone-visual-positioning/internal/health"
	"github.com/dabubi/drone-visual-positioning/internal/ratelimit"
	"github.com/dabubi/drone-visual-positioning/internal/recorder"
	"github.com/dabubi/drone-visual-positioning/internal/security"
	"github.com/dabubi/drone-visual-positioning/internal/sessionstore"
	"github.com/dabubi/drone-visual-positioning/internal/telemetry"
	"github.com/dabubi/drone-visual-positioning/internal/tilecache"
	"github.com/dabubi/drone-visual-positioning/internal/tileindex"
	"github.com/dabubi/drone-visual-positioning/internal/tilestore"
	"github.com/dabubi/drone-visual-positioning/internal/timeutil"
	"github.com/dabubi/drone-visual-positioning/internal/transport"
	"github.com/dabubi/drone-visual-positioning/internal/version"
)

var (
	configFile   = flag.String("config", "config.json", "path to JSON configuration file")
	replayDir    = flag.String("replay-dir", "", "directory of frames to replay in place of a live camera")
	recordPath   = flag.String("record", "", "flight-record output path; empty disables recording")
	versionFlag  = flag.Bool("version", false, "print version information and exit")
	portOverride = flag.String("port", "", "override the configured UART port")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *versionFlag {
		fmt.Printf("locator v%s (git SHA: %s)\n", version.Version, version.GitSHA)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Printf("startup: loading config %q: %v", *configFile, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("startup: invalid config: %v", err)
		os.Exit(1)
	}

	sessionID := uuid.New().String()
	log.Printf("locator: starting session %s", sessionID)

	pack, err := tilestore.Load(cfg.GetMapPackPath())
	if err != nil {
		log.Printf("startup: loading map pack %q: %v", cfg.GetMapPackPath(), err)
		os.Exit(1)
	}

	camSource, err := openCamera(cfg)
	if err != nil {
		log.Printf("startup: opening camera: %v", err)
		os.Exit(1)
	}

	uartPort := cfg.GetUARTPort()
	if *portOverride != "" {
		uartPort = *portOverride
	}

	tr, err := buildTransport(cfg, uartPort)
	if err != nil {
		log.Printf("startup: opening serial transport: %v", err)
		os.Exit(1)
	}

	var rec *recorder.Writer
	if *recordPath != "" {
		if err := security.ValidateOutputPath(*recordPath); err != nil {
			log.Printf("startup: flight record path %q: %v", *recordPath, err)
			os.Exit(1)
		}
		rec, err = recorder.Create(*recordPath, sessionID)
		if err != nil {
			log.Printf("startup: creating flight record %q: %v", *recordPath, err)
			os.Exit(1)
		}
	}

	var telem *telemetry.Sink
	if dir := cfg.GetTelemetryDir(); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("startup: creating telemetry directory %q: %v", dir, err)
			os.Exit(1)
		}
		telemPath := dir + "/" + security.SanitizeFilename(sessionID) + "-telemetry.csv"
		if err := security.ValidateOutputPath(telemPath); err != nil {
			log.Printf("startup: telemetry path %q: %v", telemPath, err)
			os.Exit(1)
		}
		telem, err = telemetry.Create(telemPath, sessionID)
		if err != nil {
			log.Printf("startup: creating telemetry sink: %v", err)
			os.Exit(1)
		}
	}

	var sessions *sessionstore.DB
	if path := cfg.GetSessionDBPath(); path != "" {
		sessions, err = sessionstore.Open(path)
		if err != nil {
			log.Printf("startup: opening session database %q: %v", path, err)
			os.Exit(1)
		}
		if err := sessions.BeginSession(sessionID, timeutilRealClock.Now(), cfg.GetMapPackPath()); err != nil {
			log.Printf("startup: recording session start: %v", err)
		}
	}

	monitor := health.New(timeutilRealClock.Now(), sessionID)

	loop := frameloop.New(frameloop.Deps{
		Pack:      pack,
		Index:     tileindex.Build(pack),
		Cache:     tilecache.New(tilecache.DefaultCapacity),
		Camera:    camSource,
		Extractor: feature.New(feature.DefaultParams()),
		Adaptive:  adaptive.New(defaultMatchParams(cfg)),
		Fusion: fusion.New(
			ekf.New(ekfParams(cfg)),
			deadreckon.New(deadreckon.DefaultParams()),
			nil,
		),
		Limiter:   ratelimit.New(cfg.GetTargetHz(), 1),
		Transport: tr,
		Health:    monitor,
		Recorder:  rec,
		Telemetry: telem,
		Clock:     timeutilRealClock,
		TargetHz:  cfg.GetTargetHz(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := loop.Run(ctx)

	if sessions != nil {
		snap := monitor.Snapshot(timeutilRealClock.Now())
		total := int(snap.UptimeS * snap.FPS)
		if err := sessions.EndSession(sessionID, timeutilRealClock.Now(), total, snap.FixRate); err != nil {
			log.Printf("shutdown: recording session end: %v", err)
		}
		if err := sessions.Close(); err != nil {
			log.Printf("shutdown: closing session database: %v", err)
		}
	}

	if runErr != nil {
		log.Printf("locator: frame loop exited with error: %v", runErr)
		os.Exit(1)
	}
	os.Exit(0)
}

var timeutilRealClock = timeutil.RealClock{}

func openCamera(cfg *config.Config) (camera.Source, error) {
	if *replayDir != "" {
		return camera.NewReplaySource(*replayDir, true)
	}
	return camera.NewReplaySource(cfg.GetCameraDevice(), true)
}

func buildTransport(cfg *config.Config, port string) (*transport.Transport, error) {
	proto := transport.ProtocolNMEA
	if cfg.GetUARTProtocol() == "msp" {
		proto = transport.ProtocolMSP
	}

	baud := 9600
	if proto == transport.ProtocolMSP {
		baud = 115200
	}
	if cfg.UART.Baudrate != nil {
		baud = *cfg.UART.Baudrate
	}

	sink := transport.NewSink(port, func(p string) (transport.Port, error) {
		return transport.OpenRealPort(p, baud, 0)
	}, transport.DefaultSinkParams())

	return transport.New(proto, sink)
}

func defaultMatchParams(cfg *config.Config) adaptive.MatchParams {
	params := adaptive.DefaultMatchParams()
	if n := cfg.GetMinMatches(); n > 0 {
		params.MinMatches = n
	}
	if cfg.Matcher.ConfidenceThreshold != nil && *cfg.Matcher.ConfidenceThreshold > 0 {
		params.MinInlierRatio = *cfg.Matcher.ConfidenceThreshold
	}
	return params
}

func ekfParams(cfg *config.Config) ekf.Params {
	params := ekf.DefaultParams()
	if r := cfg.GetMeasurementNoise(); r > 0 {
		params.R = r
	}
	if g := cfg.GetGateThreshold(); g > 0 {
		params.Gate = g
	}
	return params
}
