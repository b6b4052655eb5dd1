package recorder

import (
	"errors"

	"github.com/JGarto/oss-mytracks/internal/track"

	"github.com/gofiber/fiber/v2"
)

func statusForError(err error) int {
	if errors.Is(err, ErrAlreadyRecording) || errors.Is(err, ErrNotRecording) {
		return fiber.StatusConflict
	}
	if errors.Is(err, track.ErrNotFound) {
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

func RegisterRoutes(r fiber.Router, session *Session, store *track.Store, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		id, err := session.StartNewTrack(c.Context(), req.Name, req.Description)
		if err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"track_id": id})
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		if err := session.EndCurrentTrack(c.Context()); err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.JSON(fiber.Map{"recording": false})
	})

	r.Get("/status", func(c *fiber.Ctx) error {
		stats, ok := session.Stats()
		resp := fiber.Map{
			"recording": session.IsRecording(),
			"track_id":  session.RecordingTrackID(),
		}
		if ok {
			resp["stats"] = stats
		}
		return c.JSON(resp)
	})

	// Push delivery from the positioning collaborator. Filtered-out fixes
	// are not an error; the response doesn't distinguish them.
	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var fix track.Fix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := session.RecordFix(c.Context(), fix); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/markers", authMiddleware, func(c *fiber.Ctx) error {
		var req track.Marker
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		id, err := session.InsertWaypointMarker(c.Context(), req)
		if err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"marker_id": id})
	})

	r.Post("/markers/statistics", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Fix track.Fix `json:"fix"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		id, err := session.InsertStatisticsMarker(c.Context(), req.Fix)
		if err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"marker_id": id})
	})

	r.Put("/settings", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Key                  string   `json:"key"`
			MinRecordingDistance *float64 `json:"min_recording_distance_m"`
			MaxRecordingDistance *float64 `json:"max_recording_distance_m"`
			MinRequiredAccuracy  *float64 `json:"min_required_accuracy_m"`
		}
		if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.MinRecordingDistance != nil || req.MaxRecordingDistance != nil || req.MinRequiredAccuracy != nil {
			min, max, acc := session.Thresholds()
			if req.MinRecordingDistance != nil {
				min = *req.MinRecordingDistance
			}
			if req.MaxRecordingDistance != nil {
				max = *req.MaxRecordingDistance
			}
			if req.MinRequiredAccuracy != nil {
				acc = *req.MinRequiredAccuracy
			}
			session.SetThresholds(c.Context(), min, max, acc)
		}
		session.OnPreferenceChanged(c.Context(), req.Key)
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/tracks/:id", func(c *fiber.Ctx) error {
		trk, err := store.GetTrack(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.JSON(trk)
	})

	r.Get("/tracks/:id/points", func(c *fiber.Ctx) error {
		points, err := store.Points(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.JSON(points)
	})

	r.Get("/tracks/:id/markers", func(c *fiber.Ctx) error {
		markers, err := store.Markers(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(statusForError(err), err.Error())
		}
		return c.JSON(markers)
	})
}
