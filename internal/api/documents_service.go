package api

import (
	"context"
	"time"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/matheus3301/rentchat/internal/files"
	"github.com/matheus3301/rentchat/internal/rpc"
	"github.com/matheus3301/rentchat/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Counter reports collection sizes for Status.
type Counter interface {
	DocumentCount(ctx context.Context, collection string) (int64, error)
}

// DocumentsService implements the rentchat.v1.Documents gRPC service.
type DocumentsService struct {
	docs        backend.Documents
	realtime    backend.Realtime
	files       *files.Resolver
	counter     Counter
	bus         *bus.Bus
	collections []string
	sessionName string
	started     time.Time
	logger      *zap.Logger
}

// DocumentsDeps groups the collaborators of DocumentsService.
type DocumentsDeps struct {
	Documents   backend.Documents
	Realtime    backend.Realtime
	Files       *files.Resolver
	Counter     Counter
	Bus         *bus.Bus
	Collections []string
	SessionName string
	Logger      *zap.Logger
}

// NewDocumentsService creates the gRPC adapter over the document service.
func NewDocumentsService(d DocumentsDeps) *DocumentsService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentsService{
		docs:        d.Documents,
		realtime:    d.Realtime,
		files:       d.Files,
		counter:     d.Counter,
		bus:         d.Bus,
		collections: d.Collections,
		sessionName: d.SessionName,
		started:     time.Now(),
		logger:      logger,
	}
}

func (s *DocumentsService) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	collection, q, err := rpc.DecodeQuery(req)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	docs, err := s.docs.List(ctx, collection, q)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return encoded(rpc.EncodeDocuments(docs))
}

func (s *DocumentsService) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := rpc.Decode(req)
	d, err := s.docs.Get(ctx, rpc.String(m, "collection"), rpc.String(m, "id"))
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return encoded(rpc.EncodeDocument(d))
}

func (s *DocumentsService) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := rpc.Decode(req)
	data, _ := m["data"].(map[string]any)
	d, err := s.docs.Create(ctx, rpc.String(m, "collection"), rpc.String(m, "id"), data)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return encoded(rpc.EncodeDocument(d))
}

func (s *DocumentsService) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := rpc.Decode(req)
	patch, _ := m["patch"].(map[string]any)
	incr, err := rpc.DecodeIncrements(m["incr"])
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	d, err := s.docs.Update(ctx, rpc.String(m, "collection"), rpc.String(m, "id"), patch, incr)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return encoded(rpc.EncodeDocument(d))
}

func (s *DocumentsService) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := rpc.Decode(req)
	if err := s.docs.Delete(ctx, rpc.String(m, "collection"), rpc.String(m, "id")); err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &structpb.Struct{}, nil
}

// Subscribe streams realtime events until the client goes away. A lagged
// subscription ends the stream with Unavailable so the client reconnects
// and reloads.
func (s *DocumentsService) Subscribe(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	channels := rpc.Channels(rpc.Strings(rpc.Decode(req), "channels"))
	sub, err := s.realtime.Subscribe(stream.Context(), channels)
	if err != nil {
		return rpc.ToStatus(err)
	}
	defer sub.Close()
	s.logger.Debug("subscriber attached", zap.Strings("channels", channels))

	for {
		select {
		case evt := <-sub.Events():
			msg, err := rpc.EncodeEvent(evt)
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("event_id", evt.ID), zap.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		case <-sub.Done():
			if err := sub.Err(); err != nil {
				s.logger.Warn("subscriber ended", zap.Strings("channels", channels), zap.Error(err))
				return grpcstatus.Errorf(codes.Unavailable, "subscription ended: %v", err)
			}
			return nil
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *DocumentsService) FileURL(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.files == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "file storage not configured")
	}
	m := rpc.Decode(req)
	u, err := s.files.URL(ctx, rpc.String(m, "bucket"), rpc.String(m, "fileId"))
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return encoded(rpc.Encode(map[string]any{"url": u}))
}

func (s *DocumentsService) RegisterFile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.files == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "file storage not configured")
	}
	m := rpc.Decode(req)
	err := s.files.Register(ctx, &store.File{
		Bucket:      rpc.String(m, "bucket"),
		ID:          rpc.String(m, "fileId"),
		ObjectKey:   rpc.String(m, "objectKey"),
		ContentType: rpc.String(m, "contentType"),
		Size:        rpc.Int(m, "size"),
	})
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &structpb.Struct{}, nil
}

// Status reports daemon health for rentchatctl status.
func (s *DocumentsService) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	counts := map[string]any{}
	if s.counter != nil {
		for _, c := range s.collections {
			n, err := s.counter.DocumentCount(ctx, c)
			if err != nil {
				return nil, grpcstatus.Errorf(codes.Internal, "count %s: %v", c, err)
			}
			counts[c] = n
		}
	}
	subscribers := 0
	if s.bus != nil {
		subscribers = s.bus.Len()
	}
	return encoded(rpc.Encode(map[string]any{
		"session":       s.sessionName,
		"startedAt":     backend.FormatTime(s.started),
		"uptimeSeconds": int64(time.Since(s.started).Seconds()),
		"subscribers":   subscribers,
		"documents":     counts,
	}))
}

func encoded(s *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}
