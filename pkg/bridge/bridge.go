// Package bridge layers request/response file transfer on top of the
// fire-and-forget event transport.
package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/errs"
	"github.com/michaelluochen/zerg-tui/pkg/proto"
)

const DefaultTimeout = 30 * time.Second

type Transport interface {
	Emit(ctx context.Context, eventType string, payload any) error
	On(eventType string, h proto.Handler)
	Off(eventType string)
}

type result struct {
	data []byte
	err  error
}

type pending struct {
	id       string
	filename string
	done     chan result
}

// Bridge correlates one download at a time with its response. A second
// download while one is in flight fails with errs.ErrBusy.
type Bridge struct {
	t       Transport
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	slot *pending
}

// New returns a bridge over t. A non-positive timeout uses DefaultTimeout.
func New(t Transport, timeout time.Duration, logger zerolog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{
		t:       t,
		timeout: timeout,
		log:     logger.With().Str("component", "bridge").Logger(),
	}
}

// Download requests filename and waits for the service's response.
func (b *Bridge) Download(ctx context.Context, filename string) ([]byte, error) {
	b.mu.Lock()
	if b.slot != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("download %s: %w", filename, errs.ErrBusy)
	}
	p := &pending{id: uuid.NewString(), filename: filename, done: make(chan result, 1)}
	b.slot = p
	b.t.On(proto.EventDownloadResponse, b.handle)
	b.mu.Unlock()

	log := b.log.With().Str("request", p.id).Str("file", filename).Logger()
	log.Debug().Msg("download requested")

	if err := b.t.Emit(ctx, proto.EventRequestDownload, proto.DownloadRequest{Filename: filename}); err != nil {
		b.release(p)
		return nil, err
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	r := b.await(ctx, p, timer.C)
	var timeout *errs.TimeoutError
	switch {
	case errors.As(r.err, &timeout):
		log.Warn().Dur("timeout", b.timeout).Msg("download timed out")
	case r.err != nil:
		log.Warn().Err(r.err).Msg("download failed")
	default:
		log.Info().Int("bytes", len(r.data)).Msg("download complete")
	}
	return r.data, r.err
}

// await waits for p to resolve. A response that lands together with the
// deadline or cancellation still wins.
func (b *Bridge) await(ctx context.Context, p *pending, expired <-chan time.Time) result {
	select {
	case r := <-p.done:
		return r
	case <-expired:
		if !b.release(p) {
			return <-p.done
		}
		return result{err: &errs.TimeoutError{Op: "download", Target: p.filename}}
	case <-ctx.Done():
		if !b.release(p) {
			return <-p.done
		}
		return result{err: ctx.Err()}
	}
}

// Pending reports whether a download is in flight.
func (b *Bridge) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot != nil
}

// handle resolves the pending slot exactly once and deregisters itself.
func (b *Bridge) handle(ev proto.Event) {
	b.mu.Lock()
	p := b.slot
	if p == nil {
		b.mu.Unlock()
		b.log.Debug().Msg("unsolicited download response dropped")
		return
	}
	b.slot = nil
	b.t.Off(proto.EventDownloadResponse)
	b.mu.Unlock()

	p.done <- decodeResponse(p.filename, ev.Payload)
}

// release frees the slot if p still holds it. It reports false when the
// response handler already claimed p, so a result is on its way.
func (b *Bridge) release(p *pending) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slot != p {
		return false
	}
	b.slot = nil
	b.t.Off(proto.EventDownloadResponse)
	return true
}

func decodeResponse(filename string, payload map[string]any) result {
	var resp proto.DownloadResponse
	if err := proto.Decode(payload, &resp); err != nil {
		return result{err: fmt.Errorf("download %s: decode response: %w", filename, err)}
	}
	if resp.Error != nil {
		return result{err: &errs.RemoteOperationError{Op: "download " + filename, Message: *resp.Error}}
	}
	if resp.FileData == nil {
		return result{err: fmt.Errorf("download %s: response carries neither file_data nor error", filename)}
	}
	data, err := base64.StdEncoding.DecodeString(*resp.FileData)
	if err != nil {
		return result{err: fmt.Errorf("download %s: decode file data: %w", filename, err)}
	}
	return result{data: data}
}

// Upload sends content without waiting for an acknowledgement.
func (b *Bridge) Upload(ctx context.Context, filename string, content []byte) error {
	err := b.t.Emit(ctx, proto.EventUploadFile, proto.Upload{
		Filename: filename,
		FileData: base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return err
	}
	b.log.Info().Str("file", filename).Int("bytes", len(content)).Msg("upload sent")
	return nil
}
