package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/sms-relay/internal/repository"
	"github.com/jmehdipour/sms-relay/internal/util"
	echo "github.com/labstack/echo/v4"
)

func listReportsHandler(archive repository.ArchiveRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		f := repository.ReportFilter{
			Sender: util.NormalizePhone(c.QueryParam("sender")),
			Kind:   strings.ToLower(strings.TrimSpace(c.QueryParam("kind"))),
			Limit:  limit,
			Offset: offset,
		}

		msgs, err := archive.ListMessages(c.Request().Context(), f)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, errorBody{Status: "error", Message: "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(msgs),
			"results": msgs,
		})
	}
}
