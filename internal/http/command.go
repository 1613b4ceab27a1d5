package http

import (
	"net/http"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/labstack/echo/v4"
)

type commandReq struct {
	Action        string `json:"action" form:"action"`
	TargetAddress string `json:"target_address" form:"target_address"`
	Body          string `json:"body" form:"body"`
}

type ackReq struct {
	Index *int `json:"index" form:"index"`
}

func (s *Server) issue(c echo.Context, cmd model.Command) error {
	var (
		stored model.Command
		err    error
	)
	ctx := c.Request().Context()
	if s.Queue != nil {
		stored, err = s.Queue.Set(ctx, cmd)
	} else {
		stored, err = s.Slot.Set(ctx, cmd)
	}
	if err != nil {
		return s.fail(c, err)
	}
	return success(c, map[string]any{"command": stored})
}

func (s *Server) setCommand(c echo.Context) error {
	var req commandReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	return s.issue(c, model.Command{
		Action:        req.Action,
		TargetAddress: req.TargetAddress,
		Body:          req.Body,
	})
}

// sendSMS is the dashboard shortcut for a send command.
func (s *Server) sendSMS(c echo.Context) error {
	var req commandReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	return s.issue(c, model.Command{
		Action:        model.ActionSend,
		TargetAddress: req.TargetAddress,
		Body:          req.Body,
	})
}

func (s *Server) pollCommand(c echo.Context) error {
	ctx := c.Request().Context()

	if s.Queue != nil {
		item, ok, err := s.Queue.Poll(ctx)
		if err != nil {
			return s.fail(c, err)
		}
		if !ok {
			return c.JSON(http.StatusOK, model.EmptyCommand())
		}
		return c.JSON(http.StatusOK, item)
	}

	cmd, err := s.Slot.Poll(ctx)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, cmd)
}

func (s *Server) listQueue(c echo.Context) error {
	items, err := s.Queue.List(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) ackCommand(c echo.Context) error {
	var req ackReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.Index == nil {
		return s.fail(c, apperr.MissingFields("index"))
	}
	if err := s.Queue.Ack(c.Request().Context(), *req.Index); err != nil {
		return s.fail(c, err)
	}
	return success(c, map[string]any{"index": *req.Index})
}
