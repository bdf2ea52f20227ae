// Main package for the SimConnect telemetry bridge: streams data from a
// running simulator to WebSocket subscribers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sessamekesh/simconnect-bridge/pkg/message/bridge"
	"github.com/sessamekesh/simconnect-bridge/pkg/native"
	"github.com/sessamekesh/simconnect-bridge/pkg/simconnect"
	"github.com/sessamekesh/simconnect-bridge/pkg/transport"
	"go.uber.org/zap"
)

const (
	bridgeMagicNumber uint32 = 0x53434252
	bridgeVersion     uint8  = 1
)

func main() {
	logger := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") != "production" {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer logger.Sync()

	//
	// Flags
	programName := flag.String("program", "simconnect-bridge", "Name this client registers with the simulator")
	sdkPath := flag.String("sdk", native.DefaultLibraryPath(), "Path to SimConnect.dll (defaults to $SIMCONNECT_SDK)")
	pollInterval := flag.Duration("poll-interval", time.Second, "How long the dispatch loop sleeps when the simulator has nothing queued")
	visualFrames := flag.Bool("visual-frame", false, "Stream telemetry every visual frame instead of once per second")
	wsPort := flag.Int("ws-port", 3000, "Port on which the WebSocket server should run")
	wsEndpoint := flag.String("ws-endpoint", "/ws", "HTTP endpoint that listens for WebSocket connections")
	metricsEndpoint := flag.String("metrics-endpoint", "/metrics", "HTTP endpoint serving Prometheus metrics, empty to disable")
	eventList := flag.String("events", joinNames(defaultEvents), "Comma separated system events to forward")
	stateList := flag.String("states", joinNames(defaultStates), "Comma separated system states to publish on connect and aircraft load")
	flag.Parse()

	events, err := parseEvents(*eventList)
	if err != nil {
		logger.Error("Invalid -events flag", zap.Error(err))
		return
	}
	states, err := parseStates(*stateList)
	if err != nil {
		logger.Error("Invalid -states flag", zap.Error(err))
		return
	}

	shutdownCtx, shutdownRelease := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer shutdownRelease()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	//
	// Simulator connection
	lib, err := native.LoadLibrary(*sdkPath)
	if err != nil {
		logger.Error("Failed to load SimConnect library", zap.String("path", *sdkPath), zap.Error(err))
		return
	}
	defer lib.Release()
	logger.Info("Loaded SimConnect library", zap.String("path", lib.Path()))

	client, err := simconnect.Open(shutdownCtx, simconnect.Config{
		ProgramName:  *programName,
		Library:      lib,
		PollInterval: *pollInterval,
		Logger:       logger,
		Registerer:   registry,
	})
	if err != nil {
		logger.Error("Failed to connect to the simulator", zap.Error(err))
		return
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("Simulator connection closed with errors", zap.Error(err))
		}
	}()

	if _, err := simconnect.RegisterStruct[Telemetry](client); err != nil {
		logger.Error("Failed to register telemetry structure", zap.Error(err))
		return
	}

	serializer := bridge.BridgeMessageSerializer{MagicNumber: bridgeMagicNumber, Version: bridgeVersion}

	//
	// WebSocket fan-out
	var r *relay
	wsServer, err := transport.CreateWebsocketBroadcaster(transport.WebsocketBroadcasterParams{
		ListenAddress:   fmt.Sprintf(":%d", *wsPort),
		ListenEndpoint:  *wsEndpoint,
		MetricsEndpoint: *metricsEndpoint,
		AllowAllHosts:   true,
		Greeting:        func() ([]byte, error) { return r.Hello() },
		Gatherer:        registry,
		Registerer:      registry,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("Failed to create WebSocket server", zap.Error(err))
		return
	}
	r = createRelay(client, serializer, wsServer.Broadcast, logger)
	r.events = events
	r.states = states

	if err := r.subscribe(); err != nil {
		logger.Error("Failed to subscribe to simulator events", zap.Error(err))
		return
	}

	period := simconnect.PeriodSecond
	if *visualFrames {
		period = simconnect.PeriodVisualFrame
	}
	if err := simconnect.RequestData[Telemetry](client, period); err != nil {
		logger.Error("Failed to request telemetry", zap.Error(err))
		return
	}

	serveCtx, stopServing := context.WithCancel(shutdownCtx)
	defer stopServing()

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		wsServer.Start(serveCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.pumpTelemetry(serveCtx); err != nil {
			logger.Error("Telemetry pump stopped", zap.Error(err))
		}
	}()

	go r.publishStates(serveCtx)

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown requested")
	case <-client.Done():
		logger.Info("Simulator connection ended", zap.Bool("sessionEnded", client.SessionEnded()), zap.Error(client.Err()))
	}
	stopServing()

	wg.Wait()
}
