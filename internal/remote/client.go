// Package remote talks to rentchatd over its Unix domain socket and exposes
// the daemon as the backend collaborators the chat core consumes.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/matheus3301/rentchat/internal/backend"
	"github.com/matheus3301/rentchat/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
	docs *rpc.DocumentsClient
}

// New dials the daemon's Unix domain socket. userID is attached to every
// call so the daemon can rate limit per viewer.
func New(socketPath, userID string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			return invoker(withUser(ctx, userID), method, req, reply, cc, opts...)
		}),
		grpc.WithChainStreamInterceptor(func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
			return streamer(withUser(ctx, userID), desc, cc, method, opts...)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, docs: rpc.NewDocumentsClient(conn)}, nil
}

func withUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, rpc.UserMetadataKey, userID)
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) List(ctx context.Context, collection string, q backend.Query) ([]backend.Document, error) {
	req, err := rpc.EncodeQuery(collection, q)
	if err != nil {
		return nil, err
	}
	resp, err := c.docs.List(ctx, req)
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	return rpc.DecodeDocuments(resp)
}

func (c *Client) Get(ctx context.Context, collection, id string) (backend.Document, error) {
	req, err := rpc.Encode(map[string]any{"collection": collection, "id": id})
	if err != nil {
		return backend.Document{}, err
	}
	return c.document(c.docs.Get(ctx, req))
}

func (c *Client) Create(ctx context.Context, collection, id string, data map[string]any) (backend.Document, error) {
	req, err := rpc.Encode(map[string]any{"collection": collection, "id": id, "data": data})
	if err != nil {
		return backend.Document{}, err
	}
	return c.document(c.docs.Create(ctx, req))
}

func (c *Client) Update(ctx context.Context, collection, id string, patch map[string]any, incr map[string]int64) (backend.Document, error) {
	req, err := rpc.Encode(map[string]any{
		"collection": collection,
		"id":         id,
		"patch":      patch,
		"incr":       rpc.EncodeIncrements(incr),
	})
	if err != nil {
		return backend.Document{}, err
	}
	return c.document(c.docs.Update(ctx, req))
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	req, err := rpc.Encode(map[string]any{"collection": collection, "id": id})
	if err != nil {
		return err
	}
	_, err = c.docs.Delete(ctx, req)
	return rpc.FromStatus(err)
}

func (c *Client) document(resp *structpb.Struct, err error) (backend.Document, error) {
	if err != nil {
		return backend.Document{}, rpc.FromStatus(err)
	}
	return rpc.DecodeDocument(resp)
}

// URL implements backend.Files.
func (c *Client) URL(ctx context.Context, bucket, fileID string) (string, error) {
	req, err := rpc.Encode(map[string]any{"bucket": bucket, "fileId": fileID})
	if err != nil {
		return "", err
	}
	resp, err := c.docs.FileURL(ctx, req)
	if err != nil {
		return "", rpc.FromStatus(err)
	}
	return rpc.String(rpc.Decode(resp), "url"), nil
}

// RegisterFile records the object key backing a file id.
func (c *Client) RegisterFile(ctx context.Context, bucket, fileID, objectKey, contentType string, size int64) error {
	req, err := rpc.Encode(map[string]any{
		"bucket":      bucket,
		"fileId":      fileID,
		"objectKey":   objectKey,
		"contentType": contentType,
		"size":        size,
	})
	if err != nil {
		return err
	}
	_, err = c.docs.RegisterFile(ctx, req)
	return rpc.FromStatus(err)
}

// Status returns the daemon's health report.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	resp, err := c.docs.Status(ctx, &structpb.Struct{})
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	return rpc.Decode(resp), nil
}

// Subscribe implements backend.Realtime over the server stream.
func (c *Client) Subscribe(ctx context.Context, channels []string) (backend.Subscription, error) {
	list := make([]any, 0, len(channels))
	for _, ch := range rpc.Channels(channels) {
		list = append(list, ch)
	}
	req, err := rpc.Encode(map[string]any{"channels": list})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.docs.Subscribe(ctx, req)
	if err != nil {
		cancel()
		return nil, rpc.FromStatus(err)
	}
	sub := &subscription{
		events: make(chan backend.RawEvent),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go sub.run(ctx, stream)
	return sub, nil
}

type subscription struct {
	events chan backend.RawEvent
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *subscription) run(ctx context.Context, stream grpc.ServerStreamingClient[structpb.Struct]) {
	defer close(s.done)
	for {
		msg, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil {
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf("stream closed by daemon: %w", backend.ErrUnavailable)
				}
				s.setErr(rpc.FromStatus(err))
			}
			return
		}
		select {
		case s.events <- rpc.DecodeEvent(msg):
		case <-ctx.Done():
			return
		}
	}
}

func (s *subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *subscription) Events() <-chan backend.RawEvent { return s.events }
func (s *subscription) Done() <-chan struct{}           { return s.done }
func (s *subscription) Close()                          { s.cancel() }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
