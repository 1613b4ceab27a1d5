package http

import (
	"net/http"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/labstack/echo/v4"
)

func (s *Server) uploadExport(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return s.fail(c, apperr.MissingFields("file"))
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "could not read uploaded file")
	}
	defer f.Close()

	name, err := s.Exports.Save(c.QueryParam("type"), f)
	if err != nil {
		return s.fail(c, err)
	}
	metrics.ExportsTotal.WithLabelValues("upload").Inc()

	return success(c, map[string]any{"stored_as": name})
}

func (s *Server) latestExport(c echo.Context) error {
	_, data, err := s.Exports.Latest(c.Param("type"))
	if err != nil {
		return s.fail(c, err)
	}
	metrics.ExportsTotal.WithLabelValues("latest").Inc()
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, data)
}

func (s *Server) parsedExport(c echo.Context) error {
	recs, err := s.Exports.Parsed(c.Param("type"))
	if err != nil {
		return s.fail(c, err)
	}
	metrics.ExportsTotal.WithLabelValues("parsed").Inc()
	return c.JSON(http.StatusOK, recs)
}
