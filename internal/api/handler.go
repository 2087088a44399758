package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/delivery-service/internal/cache"
	"github.com/fathima-sithara/delivery-service/internal/domain"
	"github.com/fathima-sithara/delivery-service/internal/media"
	"github.com/fathima-sithara/delivery-service/internal/presence"
	"github.com/fathima-sithara/delivery-service/internal/repository"
	"github.com/fathima-sithara/delivery-service/internal/service"
)

type LastSeenReader interface {
	GetPresence(ctx context.Context, userID string) (cache.PresenceRecord, bool, error)
}

type Handlers struct {
	cmd      *service.CommandService
	contacts *service.ContactsService
	registry *presence.Registry
	lastSeen LastSeenReader
	images   *media.ImageService
	maxBytes int64
	timeout  time.Duration
}

func (h *Handlers) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

type createRequest struct {
	ReceiverID          string `json:"receiverId"`
	Body                string `json:"body"`
	AttachmentRef       string `json:"attachmentRef"`
	ClientCorrelationID string `json:"clientCorrelationId"`
}

func created(c *fiber.Ctx, res service.Result) error {
	code := http.StatusCreated
	if res.Deduplicated {
		code = http.StatusOK
	}
	return c.Status(code).JSON(fiber.Map{"status": "ok", "data": res.Message, "deduplicated": res.Deduplicated})
}

func (h *Handlers) createMessage(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	res, err := h.cmd.Create(ctx, service.CreateInput{
		SenderID:            currentUser(c),
		ReceiverID:          req.ReceiverID,
		Body:                req.Body,
		AttachmentRef:       req.AttachmentRef,
		ClientCorrelationID: req.ClientCorrelationID,
	})
	if err != nil {
		return err
	}
	return created(c, res)
}

// uploadAttachment stores the multipart "image" and creates the message that
// carries it. Clients re-sending the same clientCorrelationId over the push
// path are reconciled onto this message.
func (h *Handlers) uploadAttachment(c *fiber.Ctx) error {
	if h.images == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "attachment storage is not configured")
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "image file is required")
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return fmt.Errorf("%w: image larger than %d bytes", domain.ErrValidation, h.maxBytes)
	}
	user := currentUser(c)
	receiver := strings.TrimSpace(c.FormValue("receiverId"))
	switch {
	case receiver == "":
		return fmt.Errorf("%w: receiverId is required", domain.ErrValidation)
	case receiver == user:
		// checked before the upload so a rejected send leaves no object behind
		return fmt.Errorf("%w: cannot message yourself", domain.ErrValidation)
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable upload")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 4*h.timeout)
	defer cancel()
	ref, err := h.images.Store(ctx, user, fh.Filename, fh.Header.Get(fiber.HeaderContentType), data)
	if err != nil {
		return err
	}
	res, err := h.cmd.Create(ctx, service.CreateInput{
		SenderID:            user,
		ReceiverID:          receiver,
		Body:                c.FormValue("body"),
		AttachmentRef:       ref,
		ClientCorrelationID: c.FormValue("clientCorrelationId"),
	})
	if err != nil {
		return err
	}
	return created(c, res)
}

// parseInstant accepts RFC 3339 or unix milliseconds.
func parseInstant(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is neither RFC 3339 nor unix millis", domain.ErrValidation, v)
	}
	return t, nil
}

func (h *Handlers) history(c *fiber.Ctx) error {
	before, err := parseInstant(c.Query("before"))
	if err != nil {
		return err
	}
	after, err := parseInstant(c.Query("after"))
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	msgs, err := h.cmd.History(ctx, currentUser(c), c.Params("counterpartId"), repository.Range{Before: before, After: after, Limit: limit})
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) markConversationRead(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	changed, err := h.cmd.MarkConversationRead(ctx, currentUser(c), c.Params("counterpartId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "modifiedCount": len(changed)})
}

func (h *Handlers) markRead(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	m, err := h.cmd.MarkRead(ctx, c.Params("id"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "data": m})
}

func (h *Handlers) markDelivered(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	m, err := h.cmd.MarkDelivered(ctx, c.Params("id"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "data": m})
}

func (h *Handlers) recentContacts(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	rows, err := h.contacts.Summarize(ctx, currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "data": rows})
}

func (h *Handlers) presence(c *fiber.Ctx) error {
	uid := c.Params("userId")
	n := h.registry.Connections(uid)
	resp := fiber.Map{"userId": uid, "online": n > 0, "connections": n}
	if n == 0 && h.lastSeen != nil {
		ctx, cancel := h.ctx(c)
		defer cancel()
		// best effort, the mirror may be behind or unreachable
		if rec, ok, err := h.lastSeen.GetPresence(ctx, uid); err == nil && ok {
			resp["lastSeen"] = rec.LastSeen
		}
	}
	return c.JSON(resp)
}
