package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"txrepo/internal/service"
)

type changeEmailRequest struct {
	Email string `json:"email"`
}

// ListUsers lists users with limit & offset.
func ListUsers(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.JSON(res)
	}
}

func RegisterUser(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.RegisterInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		u, err := svc.Register(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.Status(fiber.StatusCreated).JSON(u)
	}
}

// ImportUsers registers a JSON array of users atomically.
func ImportUsers(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in []service.RegisterInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		users, err := svc.Import(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": users, "total": len(users)})
	}
}

func GetUser(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := svc.Get(c.UserContext(), c.Params("username"))
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.JSON(u)
	}
}

func ChangeEmail(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req changeEmailRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		u, err := svc.ChangeEmail(c.UserContext(), c.Params("username"), req.Email)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.JSON(u)
	}
}

func DeleteUser(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Remove(c.UserContext(), c.Params("username")); err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
