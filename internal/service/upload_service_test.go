package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/linkfield/linkfield-api/internal/models"
)

type fakeStorage struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeStorage) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[name] = data
	return "https://cdn.example.com/" + name, nil
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func makeFileHeader(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&buf, writer.Boundary()).ReadForm(64 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"][0]
}

func TestClassifyExtension(t *testing.T) {
	cases := map[string]string{
		"photo.PNG":    models.MessageTypeImage,
		"clip.mp4":     models.MessageTypeVideo,
		"song.flac":    models.MessageTypeAudio,
		"report.pdf":   models.MessageTypeDocument,
		"notes.md":     models.MessageTypeDocument,
		"backup.tar":   models.MessageTypeArchive,
		"binary.exe":   models.MessageTypeOther,
		"no-extension": models.MessageTypeOther,
	}
	for name, expected := range cases {
		require.Equal(t, expected, ClassifyExtension(name), name)
	}
}

func TestStoreAttachmentImageGetsThumbnail(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewUploadService(storage, 25, zerolog.Nop())

	data := pngBytes(t, 800, 600)
	attachment, err := svc.StoreAttachment(context.Background(), "photo.png", data)
	require.NoError(t, err)
	require.Equal(t, "photo.png", attachment.FileName)
	require.Equal(t, models.MessageTypeImage, attachment.Type)
	require.Equal(t, int64(len(data)), attachment.SizeBytes)
	require.Equal(t, "https://cdn.example.com/photo.png", attachment.URL)
	require.Equal(t, "https://cdn.example.com/thumb_photo.jpg", attachment.ThumbnailURL)

	thumb, ok := storage.uploads["thumb_photo.jpg"]
	require.True(t, ok)
	decoded, _, err := image.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	bounds := decoded.Bounds()
	require.LessOrEqual(t, bounds.Dx(), 200)
	require.LessOrEqual(t, bounds.Dy(), 200)
}

func TestStoreAttachmentThumbnailFailureIsNotFatal(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewUploadService(storage, 25, zerolog.Nop())

	attachment, err := svc.StoreAttachment(context.Background(), "broken.png", []byte("not an image"))
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeImage, attachment.Type)
	require.Empty(t, attachment.ThumbnailURL)
	require.Len(t, storage.uploads, 1)
}

func TestStoreAttachmentNonImageSkipsThumbnail(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewUploadService(storage, 25, zerolog.Nop())

	attachment, err := svc.StoreAttachment(context.Background(), "report.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, models.MessageTypeDocument, attachment.Type)
	require.Empty(t, attachment.ThumbnailURL)
	require.Len(t, storage.uploads, 1)
}

func TestStoreAttachmentSanitizesFileName(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewUploadService(storage, 25, zerolog.Nop())

	attachment, err := svc.StoreAttachment(context.Background(), "../evil name.pdf", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "evil-name.pdf", attachment.FileName)
}

func TestStoreAttachmentStorageFailure(t *testing.T) {
	svc := NewUploadService(&fakeStorage{err: errors.New("bucket down")}, 25, zerolog.Nop())

	_, err := svc.StoreAttachment(context.Background(), "photo.png", pngBytes(t, 10, 10))
	require.Error(t, err)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	svc := NewUploadService(&fakeStorage{}, 1, zerolog.Nop())

	header := makeFileHeader(t, "big.bin", bytes.Repeat([]byte{0xAB}, 1<<20+1))
	_, err := svc.Upload(context.Background(), header)
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestUploadStoresFile(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewUploadService(storage, 25, zerolog.Nop())

	data := pngBytes(t, 50, 50)
	response, err := svc.Upload(context.Background(), makeFileHeader(t, "avatar.png", data))
	require.NoError(t, err)
	require.True(t, response.Success)
	require.Equal(t, "avatar.png", response.FileName)
	require.Equal(t, models.MessageTypeImage, response.Type)
	require.Equal(t, int64(len(data)), response.SizeBytes)
	require.NotEmpty(t, response.ThumbnailURL)
}
