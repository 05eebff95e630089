package client

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"github.com/the127/resumable/internal/storage"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ObjectReadStream adapts a read source to io.ReadCloser. Full downloads are
// checked against the CRC32C reported by the service.
type ObjectReadStream struct {
	ctx    context.Context
	source storage.ObjectReadSource

	verify  bool
	crc32c  hash.Hash32
	hashes  storage.HashValues
	size    *int64
	eof     bool
	lastErr error
}

func newObjectReadStream(ctx context.Context, source storage.ObjectReadSource, request storage.ReadObjectRangeRequest) *ObjectReadStream {
	return &ObjectReadStream{
		ctx:    ctx,
		source: source,
		verify: request.ReadFromOffset == 0 && request.ReadRange == nil && request.ReadLast == nil,
		crc32c: crc32.New(castagnoli),
	}
}

func (s *ObjectReadStream) Read(p []byte) (int, error) {
	if s.lastErr != nil {
		return 0, s.lastErr
	}

	if s.eof {
		return 0, io.EOF
	}

	if len(p) == 0 {
		return 0, nil
	}

	for {
		result, err := s.source.Read(s.ctx, p)
		if err != nil {
			s.lastErr = err
			return 0, err
		}

		s.absorb(result)
		n := result.BytesReceived
		_, _ = s.crc32c.Write(p[:n])

		if result.Response.StatusCode == storage.ReadStatusDone {
			s.eof = true
			if err := s.checkHashes(); err != nil {
				s.lastErr = err
				return n, err
			}

			if n == 0 {
				return 0, io.EOF
			}
		}

		if n > 0 {
			return n, nil
		}
	}
}

func (s *ObjectReadStream) Close() error {
	_, err := s.source.Close()
	return err
}

func (s *ObjectReadStream) Size() *int64 {
	return s.size
}

func (s *ObjectReadStream) Hashes() storage.HashValues {
	return s.hashes
}

func (s *ObjectReadStream) absorb(result storage.ReadSourceResult) {
	if result.Size != nil && s.size == nil {
		v := *result.Size
		s.size = &v
	}

	if result.Hashes.Crc32c != "" {
		s.hashes.Crc32c = result.Hashes.Crc32c
	}

	if result.Hashes.Md5 != "" {
		s.hashes.Md5 = result.Hashes.Md5
	}

	if result.Transformation != nil && *result.Transformation == storage.TranscodingGunzipped {
		s.verify = false
	}
}

func (s *ObjectReadStream) checkHashes() error {
	if !s.verify || s.hashes.Crc32c == "" {
		return nil
	}

	computed := EncodeCrc32c(s.crc32c.Sum32())
	if computed != s.hashes.Crc32c {
		return status.Errorf(codes.DataLoss, "mismatched CRC32C checksum: service reported %s, computed %s", s.hashes.Crc32c, computed)
	}
	return nil
}

// EncodeCrc32c renders a checksum the way the service reports it.
func EncodeCrc32c(sum uint32) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], sum)
	return base64.StdEncoding.EncodeToString(buf[:])
}
