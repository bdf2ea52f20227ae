package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	utils "github.com/sessamekesh/simconnect-bridge/pkg/util"
	"go.uber.org/zap"
)

type wsConnectionChannels struct {
	OutgoingMessages chan<- []byte
	CloseRequest     chan<- struct{}
}

type WebsocketBroadcaster struct {
	upgrader *websocket.Upgrader

	params WebsocketBroadcasterParams

	nextConnectionId atomic.Uint32

	mut_connections sync.RWMutex
	connections     map[uint32]*wsConnectionChannels

	dropped prometheus.Counter

	log       *zap.Logger
	stringGen *utils.RandomStringGenerator
}

type WebsocketBroadcasterParams struct {
	ListenAddress    string
	ListenEndpoint   string
	MetricsEndpoint  string
	AllowAllHosts    bool
	AllowlistedHosts []string
	DenylistedHosts  []string

	MaxReadMessageSize   int64
	OutgoingBufferLength int
	WriteTimeout         time.Duration

	// Greeting, when set, builds the first frame sent to every new
	// subscriber.
	Greeting func() ([]byte, error)

	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer

	Logger *zap.Logger
}

func checkOrigin(r *http.Request, params WebsocketBroadcasterParams) bool {
	origin := r.Header.Get("Origin")
	if utils.Contains(origin, params.DenylistedHosts) {
		return false
	}

	if params.AllowAllHosts {
		return true
	}

	return utils.Contains(origin, params.AllowlistedHosts)
}

func CreateWebsocketBroadcaster(params WebsocketBroadcasterParams) (*WebsocketBroadcaster, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	if params.ListenEndpoint == "" {
		params.ListenEndpoint = "/ws"
	}
	if params.OutgoingBufferLength <= 0 {
		params.OutgoingBufferLength = 64
	}
	if params.MaxReadMessageSize <= 0 {
		params.MaxReadMessageSize = 4096
	}
	if params.WriteTimeout <= 0 {
		params.WriteTimeout = 5 * time.Second
	}

	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "simconnect",
		Subsystem: "bridge",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped because a subscriber's outgoing queue was full",
	})
	if params.Registerer != nil {
		if err := params.Registerer.Register(dropped); err != nil {
			return nil, err
		}
	}

	return &WebsocketBroadcaster{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, params)
			},
		},
		params: params,

		mut_connections: sync.RWMutex{},
		connections:     make(map[uint32]*wsConnectionChannels),

		dropped: dropped,

		log:       logger.With(zap.String("handler", "WebSocket")),
		stringGen: utils.CreateRandomstringGenerator(time.Now().UnixMicro()),
	}, nil
}

func (ws *WebsocketBroadcaster) ConnectionCount() int {
	ws.mut_connections.RLock()
	defer ws.mut_connections.RUnlock()
	return len(ws.connections)
}

// Broadcast queues frame for every connected subscriber and returns how many
// accepted it. Subscribers whose queue is full miss the frame.
func (ws *WebsocketBroadcaster) Broadcast(frame []byte) int {
	ws.mut_connections.RLock()
	defer ws.mut_connections.RUnlock()

	sent := 0
	for connectionId, route := range ws.connections {
		select {
		case route.OutgoingMessages <- frame:
			sent++
		default:
			ws.dropped.Inc()
			ws.log.Warn("Subscriber queue full, dropping frame", zap.Uint32("connectionId", connectionId))
		}
	}
	return sent
}

func (ws *WebsocketBroadcaster) onWsRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	connectionId := ws.nextConnectionId.Add(1)
	log := ws.log.With(
		zap.String("wsConnId", ws.stringGen.GetRandomString(6)),
		zap.Uint32("connectionId", connectionId),
	)

	log.Info("New WebSocket request")
	c, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade HTTP request to WebSocket connection", zap.Error(err))
		return
	}
	defer c.Close()

	c.SetReadLimit(ws.params.MaxReadMessageSize)

	outgoingMessages := make(chan []byte, ws.params.OutgoingBufferLength)
	closeRequest := make(chan struct{})

	if ws.params.Greeting != nil {
		greeting, err := ws.params.Greeting()
		if err != nil {
			log.Error("Failed to build greeting frame", zap.Error(err))
			return
		}
		outgoingMessages <- greeting
	}

	func() {
		ws.mut_connections.Lock()
		defer ws.mut_connections.Unlock()

		ws.connections[connectionId] = &wsConnectionChannels{
			OutgoingMessages: outgoingMessages,
			CloseRequest:     closeRequest,
		}
		log.Debug("Added subscriber to WebSocket handler connections map")
	}()

	defer func() {
		ws.mut_connections.Lock()
		defer ws.mut_connections.Unlock()
		delete(ws.connections, connectionId)
		log.Debug("Removed subscriber from WebSocket handler connections map")
	}()

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting subscriber writer goroutine")
		for {
			select {
			case <-ctx.Done():
				c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
					time.Now().Add(ws.params.WriteTimeout))
				c.Close()
				return
			case <-closeRequest:
				return
			case frame := <-outgoingMessages:
				c.SetWriteDeadline(time.Now().Add(ws.params.WriteTimeout))
				if err := c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					log.Warn("Failed to write frame, closing subscriber", zap.Error(err))
					c.Close()
					return
				}
			}
		}
	}()

	// Subscribers never send anything meaningful; reading only surfaces
	// close frames and errors.
	expectedCloseErrors := []int{websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived}
	for {
		msgType, payload, msgErr := c.ReadMessage()
		if msgErr != nil {
			if websocket.IsCloseError(msgErr, expectedCloseErrors...) {
				log.Info("Subscriber closed the connection")
			} else if strings.Contains(msgErr.Error(), "use of closed network connection") {
				log.Info("Closing connection, probably from bridge-initiated shutdown")
			} else {
				log.Warn("Unexpected WebSocket read error", zap.Error(msgErr))
			}
			break
		}
		log.Debug("Ignoring subscriber message", zap.Int("type", msgType), zap.Int("size", len(payload)))
	}

	close(closeRequest)
	wg.Wait()
}

// Handler serves the WebSocket endpoint and, when a gatherer is configured,
// the Prometheus metrics endpoint.
func (ws *WebsocketBroadcaster) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ws.params.ListenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		ws.onWsRequest(ctx, w, r)
	})
	if ws.params.Gatherer != nil && ws.params.MetricsEndpoint != "" {
		mux.Handle(ws.params.MetricsEndpoint, promhttp.HandlerFor(ws.params.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (ws *WebsocketBroadcaster) Start(ctx context.Context) error {
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	server := &http.Server{
		Addr:              ws.params.ListenAddress,
		Handler:           ws.Handler(serveCtx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg := sync.WaitGroup{}
	var serveErr error

	wg.Add(1)
	go func() {
		defer wg.Done()

		ws.log.Sugar().Infof("Starting WebSocket server at %s", ws.params.ListenAddress)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			ws.log.Error("Unexpected WebSocket server close!", zap.Error(err))
			serveErr = err
			stopServing()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		<-serveCtx.Done()

		shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownRelease()
		ws.log.Info("Attempting to trigger shutdown of WebSocket server")

		if err := server.Shutdown(shutdownCtx); err != nil {
			ws.log.Error("Failed to gracefully shut down WebSocket server", zap.Error(err))
			return
		}
		ws.log.Info("Successfully shutdown WebSocket server")
	}()

	wg.Wait()

	ws.log.Info("All WebSocket server goroutines finished. Exiting gracefully!")
	return serveErr
}
