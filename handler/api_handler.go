package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gofiber/fiber/v2"
	"github.com/mohammadanang/video-upload-api/domain"
	"github.com/mohammadanang/video-upload-api/storage"
)

type Handler interface {
	UploadVideo(c *fiber.Ctx) error
	MethodNotAllowed(c *fiber.Ctx) error
	Health(c *fiber.Ctx) error
}

type ApiHandler struct {
	logger log.Logger
	store  storage.Store
}

func NewAPIHandler(logger log.Logger, store storage.Store) Handler {
	return &ApiHandler{
		logger: log.With(logger, "component", "handler"),
		store:  store,
	}
}

var errNoVideo = errors.New("no video part")

// UploadVideo saves the "video" form file. A request without that file part,
// including one that is not multipart at all, is rejected before the store
// is touched.
func (h *ApiHandler) UploadVideo(c *fiber.Ctx) error {
	src, filename, err := openVideo(c)
	if errors.Is(err, errNoVideo) {
		level.Debug(h.logger).Log("method", "UploadVideo", "msg", "no video part")
		return c.Status(fiber.StatusBadRequest).SendString(domain.MsgNoVideo)
	}
	if err != nil {
		return err
	}
	defer src.Close()

	saved, err := h.store.Save(c.UserContext(), src)
	if err != nil {
		return fmt.Errorf("failed to save upload %q: %w", filename, err)
	}

	level.Debug(h.logger).Log("method", "UploadVideo", "filename", filename, "path", saved.Path)
	return c.Status(fiber.StatusOK).SendString(domain.MsgUploaded)
}

// openVideo returns the content of the "video" file part. mime/multipart
// files a part sent with filename="" under the form values, so such a part
// is looked up again in the raw body. A part without any filename parameter
// is a text field, not a file.
func openVideo(c *fiber.Ctx) (io.ReadCloser, string, error) {
	file, err := c.FormFile(domain.VideoField)
	if err == nil {
		src, err := file.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open uploaded file: %w", err)
		}
		return src, file.Filename, nil
	}

	boundary := c.Request().Header.MultipartFormBoundary()
	if len(boundary) == 0 {
		return nil, "", errNoVideo
	}
	mr := multipart.NewReader(bytes.NewReader(c.Body()), string(boundary))
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, "", errNoVideo
		}
		if part.FormName() != domain.VideoField {
			continue
		}
		_, params, err := mime.ParseMediaType(part.Header.Get(fiber.HeaderContentDisposition))
		if err != nil {
			continue
		}
		if _, ok := params["filename"]; ok {
			return io.NopCloser(part), "", nil
		}
	}
}

func (h *ApiHandler) MethodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, fiber.MethodPost)
	return fiber.ErrMethodNotAllowed
}

func (h *ApiHandler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// ErrorHandler renders errors as plain text. Anything that is not a
// *fiber.Error is an internal failure and gets logged.
func ErrorHandler(logger log.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "Internal Server Error"
		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			msg = e.Message
		} else {
			level.Error(logger).Log("method", c.Method(), "path", c.Path(), "err", err)
		}

		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Status(code).SendString(msg)
	}
}
