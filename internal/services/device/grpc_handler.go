package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
	controller "github.com/LeonardoBeccarini/zone_irrigation/internal/services/irrigation-controller"
)

// DefaultMaxDuration caps a timed irrigation run.
const DefaultMaxDuration = 120 * time.Minute

// ZoneController is the engine surface the device service drives.
type ZoneController interface {
	IssueManualCommand(zoneID string, order int) (messages.CommandEvent, error)
	QueryLatest(zoneID string) (messages.ZoneSnapshot, error)
	SubscribeLive(zoneID string, obs controller.Observer) (controller.Handle, error)
	Unsubscribe(h controller.Handle) bool
}

type run struct {
	ticket string
	timer  *time.Timer
}

// GrpcHandler implementa DeviceService sopra il controller: start/stop
// manuali, run temporizzati e stream delle snapshot.
type GrpcHandler struct {
	ctrl        ZoneController
	logger      *slog.Logger
	maxDuration time.Duration
	unit        time.Duration
	watchBuffer int

	mu   sync.Mutex
	runs map[string]run // zone -> run temporizzato attivo
}

func NewGrpcHandler(ctrl ZoneController, logger *slog.Logger) *GrpcHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrpcHandler{
		ctrl:        ctrl,
		logger:      logger,
		maxDuration: DefaultMaxDuration,
		unit:        time.Minute,
		watchBuffer: 16,
		runs:        make(map[string]run),
	}
}

// SetMaxDuration changes the cap applied to duration_min.
func (h *GrpcHandler) SetMaxDuration(d time.Duration) {
	if d > 0 {
		h.maxDuration = d
	}
}

// ============== RPC: StartIrrigation ==============

func (h *GrpcHandler) StartIrrigation(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	zoneID := zoneField(req)
	if zoneID == "" {
		return nil, status.Error(codes.InvalidArgument, "area_id is required")
	}
	var dur time.Duration
	if v, ok := req.GetFields()["duration_min"]; ok {
		mins := v.GetNumberValue()
		if math.IsNaN(mins) || mins < 0 {
			return nil, status.Errorf(codes.InvalidArgument, "duration_min must be a non-negative number, got %v", mins)
		}
		// cap prima della conversione: valori enormi vanno in overflow
		if mins >= float64(h.maxDuration)/float64(h.unit) {
			dur = h.maxDuration
		} else {
			dur = time.Duration(mins * float64(h.unit))
		}
	}

	evt, err := h.ctrl.IssueManualCommand(zoneID, 1)
	if err != nil && !controller.IsDeliveryUncertain(err) {
		return nil, toStatus(err)
	}

	// un nuovo start sostituisce sempre il run precedente
	ticket := uuid.NewString()
	h.mu.Lock()
	h.cancelLocked(zoneID)
	if dur > 0 {
		h.runs[zoneID] = run{
			ticket: ticket,
			timer:  time.AfterFunc(dur, func() { h.finish(zoneID, ticket) }),
		}
	}
	h.mu.Unlock()

	msg := fmt.Sprintf("irrigation started for %s", zoneID)
	if dur > 0 {
		msg = fmt.Sprintf("irrigation started for %s (duration=%s)", zoneID, dur)
	}
	h.logger.Info("device: irrigation started", "zone", zoneID, "ticket", ticket, "duration", dur, "delivered", evt.Delivered)
	return commandReply(true, msg, ticket, evt.Delivered)
}

// ============== RPC: StopIrrigation ==============

func (h *GrpcHandler) StopIrrigation(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	zoneID := zoneField(req)
	if zoneID == "" {
		return nil, status.Error(codes.InvalidArgument, "area_id is required")
	}
	h.mu.Lock()
	h.cancelLocked(zoneID)
	h.mu.Unlock()

	evt, err := h.ctrl.IssueManualCommand(zoneID, 0)
	if err != nil && !controller.IsDeliveryUncertain(err) {
		return nil, toStatus(err)
	}
	h.logger.Info("device: irrigation stopped", "zone", zoneID, "delivered", evt.Delivered)
	return commandReply(true, fmt.Sprintf("irrigation stopped for %s", zoneID), "", evt.Delivered)
}

func (h *GrpcHandler) GetZone(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	snap, err := h.ctrl.QueryLatest(strings.TrimSpace(req.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return snapshotToStruct(snap)
}

// WatchZone streams every snapshot of the zone until the client goes away.
func (h *GrpcHandler) WatchZone(req *wrapperspb.StringValue, stream WatchZoneServer) error {
	obs := controller.NewChanObserver(h.watchBuffer)
	defer obs.Close()
	handle, err := h.ctrl.SubscribeLive(strings.TrimSpace(req.GetValue()), obs)
	if err != nil {
		return toStatus(err)
	}
	defer h.ctrl.Unsubscribe(handle)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-obs.C():
			if !ok {
				return status.Error(codes.ResourceExhausted, "watcher too slow")
			}
			msg, err := snapshotToStruct(snap)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Active reports the ticket of the timed run in progress for zoneID.
func (h *GrpcHandler) Active(zoneID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.runs[zoneID]
	return r.ticket, ok
}

// Close cancels every pending timed run.
func (h *GrpcHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.runs {
		h.cancelLocked(id)
	}
}

// ============== Helpers ==============

func (h *GrpcHandler) cancelLocked(zoneID string) {
	if r, ok := h.runs[zoneID]; ok {
		r.timer.Stop()
		delete(h.runs, zoneID)
	}
}

// finish spegne la pompa a fine run, solo se il ticket è ancora quello attivo.
func (h *GrpcHandler) finish(zoneID, ticket string) {
	h.mu.Lock()
	r, ok := h.runs[zoneID]
	if !ok || r.ticket != ticket {
		h.mu.Unlock()
		return
	}
	delete(h.runs, zoneID)
	h.mu.Unlock()

	evt, err := h.ctrl.IssueManualCommand(zoneID, 0)
	if err != nil && !controller.IsDeliveryUncertain(err) {
		h.logger.Error("device: timed stop failed", "zone", zoneID, "ticket", ticket, "err", err)
		return
	}
	h.logger.Info("device: timed run finished", "zone", zoneID, "ticket", ticket, "delivered", evt.Delivered)
}

func zoneField(req *structpb.Struct) string {
	return strings.TrimSpace(req.GetFields()["area_id"].GetStringValue())
}

func commandReply(success bool, msg, ticket string, delivered bool) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"success":   success,
		"message":   msg,
		"ticket_id": ticket,
		"delivered": delivered,
	})
}

// snapshotToStruct keeps the JSON shape served by the HTTP gateway.
func snapshotToStruct(snap messages.ZoneSnapshot) (*structpb.Struct, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, controller.ErrInvalidParameter):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
