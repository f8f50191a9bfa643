package httpapi

import (
	"dm-relay/domain"
	"dm-relay/errors"
	"dm-relay/observability"
	"dm-relay/services"
	stderrors "errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

type Handlers struct {
	log         *slog.Logger
	authService services.IAuthService
	chatService services.IChatService
}

func NewHandlers(log *slog.Logger, authService services.IAuthService, chatService services.IChatService) *Handlers {
	return &Handlers{log: log, authService: authService, chatService: chatService}
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

type HealthResponse struct {
	Status      string  `json:"status"`
	Users       int     `json:"users"`
	Connections int     `json:"connections"`
	RSS         uint64  `json:"rss_bytes"`
	CPUPercent  float64 `json:"cpu_percent"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handlers) Register(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	session, err := h.authService.Register(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return h.handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *Handlers) Login(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	session, err := h.authService.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(session)
}

// ListUsers answers GET /users?currentUserId=<id>, every user but the current one.
func (h *Handlers) ListUsers(c *fiber.Ctx) error {
	current, err := domain.ParseUserID(c.Query("currentUserId"))
	if err != nil {
		return h.handleError(c, err)
	}
	users, err := h.authService.ListUsers(c.UserContext(), current)
	if err != nil {
		return h.handleError(c, err)
	}
	return c.JSON(lo.Map(users, func(u domain.User, _ int) UserResponse {
		return UserResponse{ID: u.ID, Username: u.Username}
	}))
}

// Messages answers GET /messages/:senderId/:receiverId with both directions, oldest first.
func (h *Handlers) Messages(c *fiber.Ctx) error {
	sender, err := domain.ParseUserID(c.Params("senderId"))
	if err != nil {
		return h.handleError(c, err)
	}
	receiver, err := domain.ParseUserID(c.Params("receiverId"))
	if err != nil {
		return h.handleError(c, err)
	}
	messages, err := h.chatService.History(c.UserContext(), sender, receiver)
	if err != nil {
		return h.handleError(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(messages)
}

func (h *Handlers) Health(c *fiber.Ctx) error {
	users, connections := h.chatService.Presence()
	response := HealthResponse{Status: "ok", Users: users, Connections: connections}
	if stats, err := observability.SelfStats(); err != nil {
		h.log.Debug("Process stats unavailable", "error", err)
	} else {
		response.RSS = stats.RSS
		response.CPUPercent = stats.CPUPercent
	}
	return c.JSON(response)
}

func (h *Handlers) handleError(c *fiber.Ctx, err error) error {
	switch {
	case stderrors.Is(err, errors.ErrInvalidRequest),
		stderrors.Is(err, errors.ErrInvalidPassword),
		stderrors.Is(err, errors.ErrInvalidUserID):
		return badRequest(c, err.Error())
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "unauthorized", Message: "Invalid credentials"})
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: "conflict", Message: "Username already taken"})
	case stderrors.Is(err, errors.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "not_found", Message: err.Error()})
	default:
		h.log.Error("Request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal_error", Message: "Internal server error"})
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "bad_request", Message: message})
}
