package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"pharmacy-forecast/internal/engine"
	"pharmacy-forecast/internal/forecastapi"
	"pharmacy-forecast/internal/synth"
)

type selectTargetRequest struct {
	Key string `json:"key"`
}

type timeframeRequest struct {
	Timeframe string `json:"timeframe"`
}

type refreshRequest struct {
	Background bool `json:"background"`
}

type retrainRequest struct {
	Key string `json:"key"`
}

type bulkRetrainRequest struct {
	Keys []string `json:"keys"`
}

type bulkRetrainResponse struct {
	Summary  engine.RetrainSummary `json:"summary"`
	Progress []engine.Progress     `json:"progress"`
}

func (s *Server) handleTargets(c *fiber.Ctx) error {
	if c.QueryBool("reload") {
		if _, err := s.ctl.LoadCatalog(c.UserContext()); err != nil {
			return err
		}
	}
	return ok(c, s.ctl.Targets())
}

func (s *Server) handleTimeframes(c *fiber.Ctx) error {
	type frame struct {
		Name   synth.Timeframe `json:"name"`
		Points int             `json:"points"`
	}
	frames := make([]frame, 0, len(synth.Timeframes()))
	for _, tf := range synth.Timeframes() {
		frames = append(frames, frame{Name: tf, Points: tf.Points()})
	}
	return ok(c, frames)
}

func (s *Server) handleView(c *fiber.Ctx) error {
	return ok(c, s.ctl.View())
}

func (s *Server) handleSelectTarget(c *fiber.Ctx) error {
	var req selectTargetRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	view, err := s.ctl.SelectTarget(c.UserContext(), req.Key)
	if err != nil {
		return err
	}
	return ok(c, view)
}

func (s *Server) handleTimeframe(c *fiber.Ctx) error {
	var req timeframeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	view, err := s.ctl.ChangeTimeframe(c.UserContext(), req.Timeframe)
	if err != nil {
		return err
	}
	return ok(c, view)
}

func (s *Server) handleChart(c *fiber.Ctx) error {
	ds, err := s.ctl.Dataset()
	if err != nil {
		return err
	}
	return ok(c, ds)
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	bundle, err := s.ctl.Bundle()
	if err != nil {
		return err
	}
	return ok(c, bundle)
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	mode := engine.Manual
	if req.Background {
		mode = engine.Background
	}
	view, err := s.ctl.RefreshForecast(c.UserContext(), mode)
	if err != nil {
		return err
	}
	return ok(c, view)
}

func (s *Server) handleRetrain(c *fiber.Ctx) error {
	var req retrainRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Key == "" {
		return fmt.Errorf("%w: key is required", engine.ErrInvalidRequest)
	}
	if _, err := s.ctl.Retrain(c.UserContext(), req.Key); err != nil {
		return err
	}
	return ok(c, s.ctl.View())
}

func (s *Server) handleRetrainBulk(c *fiber.Ctx) error {
	var req bulkRetrainRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	var progress []engine.Progress
	summary, err := s.ctl.RetrainAll(c.UserContext(), req.Keys, func(p engine.Progress) {
		progress = append(progress, p)
	})
	if err != nil {
		return err
	}
	return ok(c, bulkRetrainResponse{Summary: summary, Progress: progress})
}

func (s *Server) handleNotices(c *fiber.Ctx) error {
	board := s.ctl.Notices()
	if board == nil {
		return ok(c, []any{})
	}
	return ok(c, board.List())
}

func (s *Server) handleDismiss(c *fiber.Ctx) error {
	board := s.ctl.Notices()
	if board == nil || !board.Dismiss(c.Params("id")) {
		return fiber.NewError(fiber.StatusNotFound, "notice not found")
	}
	return ok(c, fiber.Map{"dismissed": c.Params("id")})
}

func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidRequest, err)
	}
	return nil
}

func isUnavailable(err error) bool {
	return errors.Is(err, forecastapi.ErrUnavailable)
}
