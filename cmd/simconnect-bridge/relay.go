package main

import (
	"context"
	goerrs "errors"
	"fmt"
	"strings"
	"time"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/message/bridge"
	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
	"github.com/sessamekesh/simconnect-bridge/pkg/simconnect"
	"go.uber.org/zap"
)

// Telemetry is the structure the bridge streams to subscribers.
type Telemetry struct {
	Title     string  `simvar:"Title" msgpack:"title"`
	Altitude  float64 `simvar:"Indicated Altitude" unit:"feet" msgpack:"altitude"`
	Latitude  float64 `simvar:"Plane Latitude" unit:"degrees" msgpack:"latitude"`
	Longitude float64 `simvar:"Plane Longitude" unit:"degrees" msgpack:"longitude"`
	Airspeed  float64 `simvar:"Airspeed Indicated" unit:"knots" msgpack:"airspeed"`
	OnGround  int32   `simvar:"Sim On Ground" unit:"bool" msgpack:"onGround"`
}

var defaultEvents = []recv.SystemEvent{
	recv.SystemEvent_Pause,
	recv.SystemEvent_Sim,
	recv.SystemEvent_View,
	recv.SystemEvent_Crashed,
	recv.SystemEvent_AircraftLoaded,
	recv.SystemEvent_FlightLoaded,
}

var defaultStates = []recv.SimStateArgs{
	recv.SimStateArgs_AircraftLoaded,
}

// parseEvents reads a comma separated list of host event names.
func parseEvents(list string) ([]recv.SystemEvent, error) {
	out := []recv.SystemEvent{}
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		event, ok := recv.ParseSystemEvent(name)
		if !ok {
			return nil, fmt.Errorf("unknown system event %q", name)
		}
		out = append(out, event)
	}
	return out, nil
}

// parseStates reads a comma separated list of system state names.
func parseStates(list string) ([]recv.SimStateArgs, error) {
	out := []recv.SimStateArgs{}
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		state, ok := recv.ParseSimStateArgs(name)
		if !ok {
			return nil, fmt.Errorf("unknown system state %q", name)
		}
		out = append(out, state)
	}
	return out, nil
}

func joinNames[T interface{ SimName() string }](values []T) string {
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, v.SimName())
	}
	return strings.Join(names, ",")
}

// relay turns host data into bridge frames.
type relay struct {
	client     *simconnect.Client
	serializer bridge.BridgeMessageSerializer
	broadcast  func(frame []byte) int
	log        *zap.Logger
	now        func() int64

	events []recv.SystemEvent
	states []recv.SimStateArgs
}

func createRelay(client *simconnect.Client, serializer bridge.BridgeMessageSerializer, broadcast func([]byte) int, log *zap.Logger) *relay {
	return &relay{
		client:     client,
		serializer: serializer,
		broadcast:  broadcast,
		log:        log.With(zap.String("handler", "relay")),
		now:        func() int64 { return time.Now().UnixMilli() },
		events:     defaultEvents,
		states:     defaultStates,
	}
}

func (r *relay) send(msg *bridge.BridgeMessage) {
	frame, err := r.serializer.Serialize(msg)
	if err != nil {
		r.log.Error("Failed to serialize bridge frame", zap.Error(err))
		return
	}
	r.broadcast(frame)
}

// Hello builds the greeting frame for a new subscriber.
func (r *relay) Hello() ([]byte, error) {
	hello := &bridge.Hello{ProgramName: r.client.ProgramName()}
	if info := r.client.HostInfo(); info != nil {
		hello.ApplicationName = info.ApplicationName
		hello.ApplicationVersion = info.ApplicationVersion.String()
		hello.SimConnectVersion = info.SimConnectVersion.String()
	}
	return r.serializer.Serialize(&bridge.BridgeMessage{Hello: hello})
}

func (r *relay) HandleEvent(ev *recv.SystemEventData) {
	r.send(&bridge.BridgeMessage{
		SystemEvent: &bridge.SystemEvent{
			Event:     ev.Event.SimName(),
			Data:      ev.Data,
			Payload:   eventPayload(ev.Payload),
			Timestamp: r.now(),
		},
	})

	// A new aircraft or flight changes what the state queries answer. The
	// queries block on the dispatch goroutine this handler runs on.
	switch ev.Event {
	case recv.SystemEvent_AircraftLoaded, recv.SystemEvent_FlightLoaded:
		go r.publishStates(context.Background())
	}
}

func eventPayload(p recv.EventPayload) any {
	switch v := p.(type) {
	case nil:
		return nil
	case recv.ViewType:
		return v.String()
	case recv.SimObjectType:
		return v.String()
	case recv.State:
		return bool(v)
	case recv.PauseFlags:
		return uint32(v)
	default:
		return v
	}
}

func (r *relay) subscribe() error {
	for _, event := range r.events {
		if err := r.client.SubscribeEvent(event, r); err != nil {
			return err
		}
	}
	return nil
}

func (r *relay) publishStates(ctx context.Context) {
	for _, kind := range r.states {
		r.publishState(ctx, kind)
	}
}

func (r *relay) publishState(ctx context.Context, kind recv.SimStateArgs) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	state, err := r.client.RequestSystemState(ctx, kind)
	if err != nil {
		r.log.Warn("System state request failed", zap.Stringer("kind", kind), zap.Error(err))
		return
	}
	r.send(&bridge.BridgeMessage{
		SystemState: &bridge.SystemState{
			Kind:    state.Kind.SimName(),
			Path:    state.Path,
			Enabled: state.Enabled,
		},
	})
}

// pumpTelemetry forwards every Telemetry sample until ctx ends or the client
// stops.
func (r *relay) pumpTelemetry(ctx context.Context) error {
	for {
		sample, err := simconnect.Next[Telemetry](ctx, r.client)
		if err != nil {
			if goerrs.Is(err, errors.ErrChannelClosed) || goerrs.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		r.send(&bridge.BridgeMessage{
			Telemetry: &bridge.Telemetry{
				Stream:    "telemetry",
				Timestamp: r.now(),
				Data:      sample,
			},
		})
	}
}
