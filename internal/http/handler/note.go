package handler

import (
	"github.com/gofiber/fiber/v2"

	"txrepo/internal/service"
)

// ListNotes returns a user's notes, newest first.
func ListNotes(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		notes, err := svc.ListByOwner(c.UserContext(), c.Params("username"))
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.JSON(fiber.Map{"data": notes, "total": len(notes)})
	}
}

func CreateNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.NoteInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		n, err := svc.Create(c.UserContext(), c.Params("username"), in)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.Status(fiber.StatusCreated).JSON(n)
	}
}
