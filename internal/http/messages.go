package http

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/jmehdipour/sms-relay/internal/export"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/service/relay"
	"github.com/labstack/echo/v4"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) uploadMessages(c echo.Context) error {
	var (
		in  []relay.UploadInput
		err error
	)

	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		in = []relay.UploadInput{relay.FormInput(c.FormValue)}
	} else {
		raw, rerr := io.ReadAll(c.Request().Body)
		if rerr != nil {
			return badRequest(c, "could not read request body")
		}
		in, err = relay.DecodeUploadJSON(raw)
		if err != nil {
			return s.fail(c, err)
		}
	}

	ids, err := s.Relay.Upload(c.Request().Context(), in)
	if err != nil {
		return s.fail(c, err)
	}

	return success(c, map[string]any{
		"count": len(ids),
		"ids":   ids,
	})
}

func (s *Server) listMessages(c echo.Context) error {
	order := model.ParseSortOrder(c.QueryParam("order"))

	msgs, err := s.Relay.ListMessages(c.Request().Context(), order)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) exportMessagesXLSX(c echo.Context) error {
	msgs, err := s.Relay.ListMessages(c.Request().Context(), model.NewestFirst)
	if err != nil {
		return s.fail(c, err)
	}

	var buf bytes.Buffer
	if err := export.WriteMessagesXLSX(&buf, msgs); err != nil {
		return s.fail(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="messages.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) listHistory(c echo.Context) error {
	hist, err := s.Relay.ListHistory(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, hist)
}
