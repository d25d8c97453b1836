package websocket

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/config"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/conversation"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/events/bus"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/logstream"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/task"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// Gateway is the assembled extension gateway: dispatcher, hub,
// connection handler, and the bridge from bus subjects to broadcast
// events.
type Gateway struct {
	Hub        *Hub
	Dispatcher *Dispatcher
	Handler    *Handler
	Service    *Service

	bus    bus.EventBus
	subs   []bus.Subscription
	logger *logger.Logger
}

// NewGateway wires the gateway together.
func NewGateway(
	cfg config.BusConfig,
	tasks *task.Manager,
	conv *conversation.Manager,
	capture *logstream.Capture,
	eventBus bus.EventBus,
	log *logger.Logger,
) *Gateway {
	dispatcher := NewDispatcher()
	hub := NewHub(dispatcher, log)
	handler := NewHandler(hub, cfg.ClientQueue, log)
	service := NewService(hub, tasks, conv, log)
	service.RegisterHandlers(dispatcher)

	replay := cfg.ReplayWindow
	hub.SetReplayProvider(func() ([]protocol.LogEvent, uint64) { return capture.Recent(replay) })
	hub.SetStatusProvider(tasks.Status)
	hub.SetDisconnectHandler(conv.Remove)

	return &Gateway{
		Hub:        hub,
		Dispatcher: dispatcher,
		Handler:    handler,
		Service:    service,
		bus:        eventBus,
		logger:     log.WithFields(zap.String("component", "ws_gateway")),
	}
}

// busBridge maps bus subjects to the extension events they broadcast as.
var busBridge = []struct {
	subject string
	event   string
}{
	{bus.SubjectLogEvent, protocol.EventLogEvent},
	{bus.SubjectTaskStatus, protocol.EventStatus},
	{bus.SubjectTaskStarted, protocol.EventTaskStarted},
	{bus.SubjectTaskResult, protocol.EventTaskResult},
	{bus.SubjectAgentHelp, protocol.EventAgentNeedsHelp},
}

// Start runs the hub and bridges bus subjects onto the broadcast
// channel. Bus delivery and the hub loop are both FIFO, so clients see
// events in commit order.
func (g *Gateway) Start(ctx context.Context) error {
	go g.Hub.Run(ctx)

	for _, route := range busBridge {
		event := route.event
		sub, err := g.bus.Subscribe(route.subject, func(_ context.Context, e *bus.Event) error {
			msg, err := protocol.NewNotification(event, e.Payload)
			if err != nil {
				return err
			}
			g.Hub.Broadcast(msg, e.Seq)
			return nil
		})
		if err != nil {
			return err
		}
		g.subs = append(g.subs, sub)
	}
	return nil
}

// Stop drops the bus subscriptions.
func (g *Gateway) Stop() {
	for _, sub := range g.subs {
		sub.Unsubscribe()
	}
	g.subs = nil
}

// SetupRoutes adds the WebSocket routes to the Gin engine.
func (g *Gateway) SetupRoutes(router *gin.Engine) {
	router.GET(protocol.Namespace, g.Handler.HandleConnection)
}
