package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/encodeous/lattice/core"
	"github.com/encodeous/lattice/protocol"
	"github.com/encodeous/lattice/state"
)

var (
	// MaxChunkSize keeps a chunk response well under the packet size limit.
	MaxChunkSize     = uint32(256 << 10)
	DefaultChunkSize = uint32(64 << 10)
)

// SharedFile is a readable file offered for download.
type SharedFile interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// FileStore maps the message a file was attached to onto its contents.
type FileStore interface {
	Open(msgId uint64) (SharedFile, error)
}

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

// MemoryFileStore keeps shared files in memory.
type MemoryFileStore struct {
	mu    sync.Mutex
	files map[uint64][]byte
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[uint64][]byte)}
}

func (s *MemoryFileStore) Put(msgId uint64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[msgId] = data
}

func (s *MemoryFileStore) Open(msgId uint64) (SharedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[msgId]
	if !ok {
		return nil, core.ErrNotFound
	}
	return memFile{bytes.NewReader(data)}, nil
}

type osFile struct {
	*os.File
	size int64
}

func (f osFile) Size() int64 { return f.size }

// DirFileStore serves files from disk.
type DirFileStore struct {
	mu    sync.Mutex
	paths map[uint64]string
}

func NewDirFileStore() *DirFileStore {
	return &DirFileStore{paths: make(map[uint64]string)}
}

// Share offers the file at path for download as the attachment of msgId.
func (s *DirFileStore) Share(msgId uint64, path string) (*protocol.FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	s.mu.Lock()
	s.paths[msgId] = path
	s.mu.Unlock()
	return &protocol.FileInfo{
		Name: filepath.Base(path),
		Size: uint64(st.Size()),
		Mime: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

func (s *DirFileStore) Open(msgId uint64) (SharedFile, error) {
	s.mu.Lock()
	path, ok := s.paths[msgId]
	s.mu.Unlock()
	if !ok {
		return nil, core.ErrNotFound
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return osFile{f, st.Size()}, nil
}

// FileService transfers message attachments in chunks.
type FileService struct {
	d     Dispatcher
	store FileStore
	log   *slog.Logger
}

func NewFileService(d Dispatcher, store FileStore, log *slog.Logger) *FileService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &FileService{d: d, store: store, log: log.With("service", "file")}
}

// Download fetches the attachment of msgId from dest into w, one chunk per
// request, and returns the number of bytes written.
func (f *FileService) Download(ctx context.Context, dest state.Node, msgId uint64, chunkSize uint32, w io.Writer) (int64, error) {
	if chunkSize == 0 || chunkSize > MaxChunkSize {
		chunkSize = DefaultChunkSize
	}
	var offset uint64
	for {
		resp, err := f.d.Request(ctx, &protocol.FileDownloadRequest{
			MsgId:     msgId,
			ChunkSize: chunkSize,
			Offset:    offset,
		}, dest)
		if err != nil {
			return int64(offset), fmt.Errorf("download %d at %d: %w", msgId, offset, err)
		}
		chunk, err := core.ExpectBody[*protocol.FileChunkResponse](resp)
		if err != nil {
			return int64(offset), err
		}
		if chunk.Offset != offset || uint64(len(chunk.Data)) > uint64(chunkSize) {
			return int64(offset), fmt.Errorf("%w: chunk at %d for request at %d", core.ErrInvalidResponse, chunk.Offset, offset)
		}
		if _, err = w.Write(chunk.Data); err != nil {
			return int64(offset), err
		}
		offset += uint64(len(chunk.Data))
		if chunk.Last {
			if offset != chunk.TotalSize {
				return int64(offset), fmt.Errorf("%w: got %d of %d bytes", core.ErrInvalidResponse, offset, chunk.TotalSize)
			}
			return int64(offset), nil
		}
		if len(chunk.Data) == 0 {
			return int64(offset), fmt.Errorf("%w: empty chunk before the end", core.ErrInvalidResponse)
		}
	}
}

// DownloadFile is Download into a new file at path.
func (f *FileService) DownloadFile(ctx context.Context, dest state.Node, msgId uint64, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = f.Download(ctx, dest, msgId, DefaultChunkSize, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}

func (f *FileService) Serve(ctx context.Context) error {
	return serve(ctx, f.d, f.log, f.handle)
}

func (f *FileService) handle(_ context.Context, m core.AcceptedMessage) {
	req, ok := m.Payload.(*protocol.FileDownloadRequest)
	if !ok {
		return
	}
	chunk, err := f.readChunk(req)
	if err != nil {
		f.log.Debug("refused chunk", "msg", req.MsgId, "offset", req.Offset, "to", m.Sender, "error", err)
		ack(f.d, f.log, m, core.ErrorCode(err))
		return
	}
	if err = f.d.Respond(m.Id, protocol.NoError, chunk, m.Sender); err != nil {
		f.log.Debug("failed to send chunk", "to", m.Sender, "error", err)
	}
}

func (f *FileService) readChunk(req *protocol.FileDownloadRequest) (*protocol.FileChunkResponse, error) {
	if req.ChunkSize == 0 || req.ChunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d", core.ErrBadRequest, req.ChunkSize)
	}
	file, err := f.store.Open(req.MsgId)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	size := uint64(file.Size())
	if req.Offset > size {
		return nil, fmt.Errorf("%w: offset %d past end %d", core.ErrBadRequest, req.Offset, size)
	}
	data := make([]byte, min(uint64(req.ChunkSize), size-req.Offset))
	n, err := file.ReadAt(data, int64(req.Offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	end := req.Offset + uint64(n)
	return &protocol.FileChunkResponse{
		Offset:    req.Offset,
		Data:      data[:n],
		TotalSize: size,
		Last:      end == size,
	}, nil
}
