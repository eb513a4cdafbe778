package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"findyourdeal_backend/internal/model"
	"findyourdeal_backend/pkg/database"
	"findyourdeal_backend/pkg/entitlement"
	"findyourdeal_backend/pkg/utils/jwt"
)

type CreateLinkInput struct {
	URL      string         `json:"url" validate:"required"`
	Name     string         `json:"name"`
	ChatID   string         `json:"chat_id"`
	ThreadID string         `json:"thread_id"`
	Filters  datatypes.JSON `json:"filters"`
}

type UpdateLinkInput struct {
	Name    *string         `json:"name"`
	Active  *bool           `json:"active"`
	Filters *datatypes.JSON `json:"filters"`
}

func DetectSource(url string) string {
	u := strings.ToLower(url)
	if strings.Contains(u, "olx.") {
		return "olx"
	}
	if strings.Contains(u, "vinted.") {
		return "vinted"
	}
	return "unknown"
}

func ListMyLinks(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var rows []model.Link
	if err := database.DB.Where("user_id = ?", claims.UserID).
		Order("id ASC").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "LINKS_QUERY_FAILED",
		})
	}

	return c.JSON(rows)
}

// CreateLink runs behind RequireActivePlan + CheckLinkLimit; here only the
// source restriction remains to be enforced.
func CreateLink(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(CreateLinkInput)
	if err := c.BodyParser(input); err != nil || input.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "MISSING_URL",
		})
	}

	src := DetectSource(input.URL)
	if ent, ok := c.Locals("entitlement").(*entitlement.Entitlement); ok {
		if ent.SourcesAllowed != nil && !contains(ent.SourcesAllowed, src) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":           "SOURCE_NOT_ALLOWED",
				"source":          src,
				"allowed_sources": ent.SourcesAllowed,
			})
		}
	}

	name := input.Name
	if name == "" {
		name = "Monitoring"
	}

	link := model.Link{
		UserID:   claims.UserID,
		Name:     name,
		URL:      input.URL,
		Source:   src,
		Active:   true,
		ChatID:   input.ChatID,
		ThreadID: input.ThreadID,
		Filters:  input.Filters,
	}
	if err := database.DB.Create(&link).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "INSERT_LINK_FAILED",
		})
	}

	return c.JSON(fiber.Map{"ok": true, "link": link})
}

func UpdateLink(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "BAD_ID"})
	}

	var link model.Link
	if err := database.DB.Where("id = ? AND user_id = ?", id, claims.UserID).
		First(&link).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "LINK_NOT_FOUND"})
	}

	input := new(UpdateLinkInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input"})
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Active != nil {
		updates["active"] = *input.Active
	}
	if input.Filters != nil {
		updates["filters"] = *input.Filters
	}
	if len(updates) > 0 {
		if err := database.DB.Model(&link).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "UPDATE_LINK_FAILED",
			})
		}
	}

	return c.JSON(fiber.Map{"ok": true, "link": link})
}

// ResetLinkBaseline clears last_key and prunes collected items, so the
// worker starts gathering offers from now.
func ResetLinkBaseline(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "BAD_ID"})
	}

	var link model.Link
	if err := database.DB.Where("id = ? AND user_id = ?", id, claims.UserID).
		First(&link).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "LINK_NOT_FOUND"})
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Link{}).Where("id = ?", link.ID).
			Update("last_key", nil).Error; err != nil {
			return err
		}
		return tx.Where("link_id = ?", link.ID).Delete(&model.LinkItem{}).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "RESET_FAILED",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// DeleteLink is the explicit remove flow: the link and its items go in one
// transaction.
func DeleteLink(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "BAD_ID"})
	}

	var link model.Link
	if err := database.DB.Where("id = ? AND user_id = ?", id, claims.UserID).
		First(&link).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "LINK_NOT_FOUND"})
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("link_id = ?", link.ID).Delete(&model.LinkItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&link).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "DELETE_LINK_FAILED",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
