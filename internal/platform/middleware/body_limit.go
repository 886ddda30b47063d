package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
)

// DefaultBodyLimit applies when the configured limit cannot be parsed.
const DefaultBodyLimit int64 = 1 << 20

// ParseBodyLimit converts a size such as "1M" or "512KB" to bytes.
func ParseBodyLimit(limit string) (int64, error) {
	n, err := bytes.Parse(limit)
	if err != nil {
		return 0, fmt.Errorf("parse body limit %q: %w", limit, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("body limit %q must be positive", limit)
	}
	return n, nil
}

// BodyLimit caps request bodies. A declared Content-Length over the limit is
// answered with 413 straight away; otherwise the body is wrapped so reading
// past the limit fails with a 413 HTTPError.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max, err := ParseBodyLimit(limit)
	if err != nil {
		max = DefaultBodyLimit
	}
	tooLarge := fmt.Sprintf("Request body exceeds maximum allowed size of %d bytes", max)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > max {
				return errorJSON(c, http.StatusRequestEntityTooLarge, tooLarge)
			}
			req.Body = &cappedBody{src: req.Body, left: max, msg: tooLarge}
			return next(c)
		}
	}
}

// cappedBody reads at most left bytes from src and fails on the first byte
// beyond that.
type cappedBody struct {
	src  io.ReadCloser
	left int64
	msg  string
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.left < 0 {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, b.msg)
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.src.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, b.msg)
	}
	return n, err
}

func (b *cappedBody) Close() error {
	return b.src.Close()
}

// BodyTooLarge finds the 413 raised by a capped body anywhere in err's chain,
// so handlers can return it unchanged when Bind fails.
func BodyTooLarge(err error) (*echo.HTTPError, bool) {
	for err != nil {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			return nil, false
		}
		if he.Code == http.StatusRequestEntityTooLarge {
			return he, true
		}
		err = he.Unwrap()
	}
	return nil, false
}
