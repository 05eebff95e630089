package objecthandlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/The127/ioc"
	"github.com/The127/mediatr"
	"github.com/klauspost/compress/gzip"
	"github.com/the127/resumable/internal/commands"
	"github.com/the127/resumable/internal/logging"
	"github.com/the127/resumable/internal/middlewares"
	"github.com/the127/resumable/internal/queries"
	"github.com/the127/resumable/internal/storage"
	"github.com/the127/resumable/internal/utils"
	"github.com/the127/resumable/internal/utils/instructions"
	"github.com/the127/resumable/internal/utils/storageError"
	"google.golang.org/grpc/codes"
)

func errRangeNotSatisfiable(header string) error {
	return storageError.NewStorageError(codes.OutOfRange).
		WithHttpCode(http.StatusRequestedRangeNotSatisfiable).
		WithMessagef("The requested range %q cannot be satisfied.", header)
}

// parseRange resolves a single byte range against size. last is inclusive.
func parseRange(header string, size int64) (first int64, last int64, err error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, errRangeNotSatisfiable(header)
	}

	start, end, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, errRangeNotSatisfiable(header)
	}

	if start == "" {
		n, err := strconv.ParseInt(end, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, errRangeNotSatisfiable(header)
		}
		return max(0, size-n), size - 1, nil
	}

	first, err = strconv.ParseInt(start, 10, 64)
	if err != nil || first < 0 || first >= size {
		return 0, 0, errRangeNotSatisfiable(header)
	}

	last = size - 1
	if end != "" {
		last, err = strconv.ParseInt(end, 10, 64)
		if err != nil || last < first {
			return 0, 0, errRangeNotSatisfiable(header)
		}
		last = min(last, size-1)
	}

	return first, last, nil
}

func acceptsGzip(r *http.Request) bool {
	for _, value := range r.Header.Values("Accept-Encoding") {
		for _, encoding := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(encoding), ";")
			if strings.EqualFold(name, "gzip") {
				return true
			}
		}
	}
	return false
}

func downloadObject(w http.ResponseWriter, r *http.Request, ref objectRef) {
	faults, err := instructions.Parse(r.Header.Values(storage.HeaderEmulatorInstructions)...)
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}

	ctx := r.Context()
	scope := middlewares.GetScope(ctx)
	mediator := ioc.GetDependency[mediatr.Mediator](scope)

	response, err := mediatr.Send[*queries.OpenObjectResponse](ctx, mediator, queries.OpenObject{
		Bucket:     ref.bucket,
		Object:     ref.name,
		Generation: ref.generation,
	})
	if err != nil {
		storageError.HandleHttpError(w, r, err)
		return
	}
	defer utils.IgnoreError(response.Reader.Close)

	object := response.Object
	size := int64(object.Size)

	header := w.Header()
	header.Set(storage.HeaderGeneration, strconv.FormatInt(object.Generation, 10))
	header.Set(storage.HeaderMetageneration, strconv.FormatInt(object.Metageneration, 10))
	header.Set(storage.HeaderStoredContentLength, strconv.FormatInt(size, 10))
	header.Set(storage.HeaderHash, storage.FormatHashHeader(storage.HashValues{
		Crc32c: object.Crc32c,
		Md5:    object.Md5Hash,
	}))
	if object.ContentEncoding != "" {
		header.Set(storage.HeaderStoredContentEncoding, object.ContentEncoding)
	}
	if object.ContentType != "" {
		header.Set("Content-Type", object.ContentType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}

	var body io.Reader = response.Reader
	length := size
	status := http.StatusOK

	switch {
	case object.ContentEncoding == "gzip" && !acceptsGzip(r):
		// decompressive transcoding serves the whole object and ignores Range
		gz, err := gzip.NewReader(response.Reader)
		if err != nil {
			storageError.HandleHttpError(w, r, fmt.Errorf("opening gzip stream: %w", err))
			return
		}
		defer utils.IgnoreError(gz.Close)

		body = gz
		length = -1
		header.Set(storage.HeaderResponseTransformations, storage.TranscodingGunzipped)

	default:
		if object.ContentEncoding != "" {
			header.Set("Content-Encoding", object.ContentEncoding)
		}

		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" || size == 0 {
			break
		}

		first, last, err := parseRange(rangeHeader, size)
		if err != nil {
			storageError.HandleHttpError(w, r, err)
			return
		}

		_, err = response.Reader.Seek(first, io.SeekStart)
		if err != nil {
			storageError.HandleHttpError(w, r, fmt.Errorf("seeking blob: %w", err))
			return
		}

		length = last - first + 1
		body = io.LimitReader(response.Reader, length)
		status = http.StatusPartialContent
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, size))
	}

	if length >= 0 {
		header.Set("Content-Length", strconv.FormatInt(length, 10))
	}

	breakAfter := int64(-1)
	if fault, ok := instructions.Find(faults, instructions.ReturnBrokenStreamAfter); ok {
		fire, err := mediatr.Send[*commands.FireFaultResponse](ctx, mediator, commands.FireFault{
			Target:      fmt.Sprintf("%s/%s#%d", object.Bucket, object.Name, object.Generation),
			Instruction: fault,
		})
		if err != nil {
			storageError.HandleHttpError(w, r, err)
			return
		}
		if fire.Fire {
			breakAfter = fault.Bytes
		}
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	if breakAfter >= 0 {
		_, err = io.CopyN(w, body, breakAfter)
		if err != nil && err != io.EOF {
			logging.Logger.Warnf("failed to write object data: %v", err)
		}

		_ = http.NewResponseController(w).Flush()
		logging.Logger.Infof("injected broken stream into download of %s/%s after %d bytes", object.Bucket, object.Name, breakAfter)
		panic(http.ErrAbortHandler)
	}

	_, err = io.Copy(w, body)
	if err != nil {
		logging.Logger.Warnf("failed to write object data: %v", err)
	}
}
