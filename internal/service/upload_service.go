package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linkfield/linkfield-api/internal/dto"
	"github.com/linkfield/linkfield-api/internal/models"
	"github.com/linkfield/linkfield-api/internal/observability"
)

const (
	thumbnailMaxDim  = 200
	thumbnailQuality = 80
)

// ErrUploadTooLarge indicates the payload exceeded the configured limit.
var ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")

// FileStorage is the opaque blob collaborator: bytes in, URL out.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// UploadService validates and stores files, producing attachment records.
type UploadService interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (dto.UploadResponse, error)
	StoreAttachment(ctx context.Context, name string, data []byte) (models.Attachment, error)
}

type uploadService struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	return &uploadService{
		storage: storage,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/linkfield/linkfield-api/internal/service"),
	}
}

// Upload reads one multipart file, stores it, and reports the stored shape.
func (s *uploadService) Upload(ctx context.Context, file *multipart.FileHeader) (dto.UploadResponse, error) {
	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		return dto.UploadResponse{}, errors.New("file is required")
	}

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return dto.UploadResponse{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return dto.UploadResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return dto.UploadResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		return dto.UploadResponse{}, ErrUploadTooLarge
	}

	attachment, err := s.StoreAttachment(ctx, file.Filename, buf.Bytes())
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		return dto.UploadResponse{}, err
	}

	return dto.UploadResponse{
		Success:      true,
		FileName:     attachment.FileName,
		URL:          attachment.URL,
		Type:         attachment.Type,
		SizeBytes:    attachment.SizeBytes,
		ThumbnailURL: attachment.ThumbnailURL,
	}, nil
}

// StoreAttachment classifies the file by extension, pushes the bytes to the
// blob store, and for images also stores a bounded thumbnail. The returned
// record is not yet persisted; the message pipeline owns that.
func (s *uploadService) StoreAttachment(ctx context.Context, name string, data []byte) (models.Attachment, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store_attachment")
	defer span.End()

	sanitized := sanitizeFileName(name)
	fileType := ClassifyExtension(name)
	span.SetAttributes(
		attribute.String("upload.name", sanitized),
		attribute.String("upload.type", fileType),
		attribute.Int("upload.size_bytes", len(data)),
	)

	// Sniffed MIME is informational only; classification follows the
	// declared extension.
	sniffed := mimetype.Detect(data)
	s.logger.Debug().Str("file", sanitized).Str("type", fileType).Str("mime", sniffed.String()).Msg("storing attachment")

	url, err := s.storage.Upload(ctx, sanitized, bytes.NewReader(data))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return models.Attachment{}, fmt.Errorf("store %s: %w", sanitized, err)
	}

	attachment := models.Attachment{
		FileName:  sanitized,
		URL:       url,
		Type:      fileType,
		SizeBytes: int64(len(data)),
	}

	if fileType == models.MessageTypeImage {
		thumbURL, err := s.storeThumbnail(ctx, sanitized, data)
		if err != nil {
			// A missing thumbnail never fails the upload.
			s.logger.Warn().Err(err).Str("file", sanitized).Msg("thumbnail generation failed")
		} else {
			attachment.ThumbnailURL = thumbURL
		}
	}

	observability.UploadRequests().WithLabelValues(fileType).Inc()
	span.SetStatus(codes.Ok, "stored")
	return attachment, nil
}

// storeThumbnail fits the image within 200×200 preserving aspect ratio,
// re-encodes it as JPEG at fixed quality, and stores the result.
func (s *uploadService) storeThumbnail(ctx context.Context, name string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Fit(img, thumbnailMaxDim, thumbnailMaxDim, imaging.Lanczos)

	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return s.storage.Upload(ctx, "thumb_"+base+".jpg", bytes.NewReader(buf.Bytes()))
}

// ClassifyExtension buckets a file name into a message attachment type.
func ClassifyExtension(name string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "jpg", "jpeg", "png", "gif", "webp", "bmp":
		return models.MessageTypeImage
	case "mp4", "mov", "avi", "mkv", "webm":
		return models.MessageTypeVideo
	case "mp3", "wav", "ogg", "m4a", "flac":
		return models.MessageTypeAudio
	case "pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "md":
		return models.MessageTypeDocument
	case "zip", "rar", "7z", "tar", "gz":
		return models.MessageTypeArchive
	default:
		return models.MessageTypeOther
	}
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	return base + ext
}
