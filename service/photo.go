package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
)

// PhotoSource returns the local profile photo, or nil if there is none.
type PhotoSource func() ([]byte, error)

// PhotoFile reads the profile photo from path. A missing file means no photo.
func PhotoFile(path string) PhotoSource {
	return func() ([]byte, error) {
		if path == "" {
			return nil, nil
		}
		b, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return b, err
	}
}

// PhotoService serves the local profile photo and fetches photos of others.
type PhotoService struct {
	d      Dispatcher
	source PhotoSource
	log    *slog.Logger
}

func NewPhotoService(d Dispatcher, source PhotoSource, log *slog.Logger) *PhotoService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &PhotoService{d: d, source: source, log: log.With("service", "photo")}
}

// FetchPhoto returns the profile photo of dest. core.ErrNotFound means dest
// has none.
func (p *PhotoService) FetchPhoto(ctx context.Context, dest state.Node) ([]byte, error) {
	resp, err := p.d.Request(ctx, &protocol.PhotoRequest{}, dest)
	if err != nil {
		return nil, fmt.Errorf("fetch photo of %s: %w", dest, err)
	}
	body, err := core.ExpectBody[*protocol.PhotoResponse](resp)
	if err != nil {
		return nil, err
	}
	return body.Photo, nil
}

func (p *PhotoService) Serve(ctx context.Context) error {
	return serve(ctx, p.d, p.log, p.handle)
}

func (p *PhotoService) handle(_ context.Context, m core.AcceptedMessage) {
	if _, ok := m.Payload.(*protocol.PhotoRequest); !ok {
		return
	}
	photo, err := p.source()
	if err != nil {
		p.log.Error("failed to load photo", "error", err)
	}
	if len(photo) == 0 {
		ack(p.d, p.log, m, protocol.NotFound)
		return
	}
	if err = p.d.Respond(m.Id, protocol.NoError, &protocol.PhotoResponse{Photo: photo}, m.Sender); err != nil {
		p.log.Debug("failed to send photo", "to", m.Sender, "error", err)
	}
}
