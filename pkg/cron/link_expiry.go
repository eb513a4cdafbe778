package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"findyourdeal_backend/pkg/database"
	"findyourdeal_backend/pkg/telegram"
)

func InitLinkExpiryCron() {
	c := cron.New()

	_, err := c.AddFunc("30 4 * * *", func() {
		deactivateExpiredLinks()
	})
	if err != nil {
		log.Printf("Could not initialize link expiry cron: %v", err)
		return
	}

	c.Start()
	log.Println("Link expiry cron initialized")
}

// deactivateExpiredLinks disables monitoring for every user whose plan
// lapsed. Links stay in the table so re-activation restores them untouched.
func deactivateExpiredLinks() {
	log.Println("Deactivating links of expired plans...")

	var affected []struct {
		UserID         uint
		TelegramUserID int64
		LinkCount      int64
	}

	err := database.DB.Raw(`
		SELECT u.id AS user_id, u.telegram_user_id, COUNT(l.id) AS link_count
		FROM users u
		JOIN links l ON l.user_id = u.id AND l.active = TRUE
		WHERE u.plan_expires_at IS NOT NULL
		  AND u.plan_expires_at < NOW()
		  AND NOT EXISTS (
			SELECT 1 FROM subscriptions s
			WHERE s.user_id = u.id
			  AND s.status = 'active'
			  AND (s.current_period_end IS NULL OR s.current_period_end >= NOW())
		  )
		GROUP BY u.id, u.telegram_user_id
	`).Scan(&affected).Error
	if err != nil {
		log.Printf("Error fetching expired users: %v", err)
		return
	}
	if len(affected) == 0 {
		log.Println("No expired plans with active links")
		return
	}

	for _, row := range affected {
		res := database.DB.Exec(`
			UPDATE links
			SET active = FALSE
			WHERE user_id = ? AND active = TRUE
		`, row.UserID)
		if res.Error != nil {
			log.Printf("Error deactivating links for user %d: %v", row.UserID, res.Error)
			continue
		}
		log.Printf("Deactivated %d links for user %d (plan expired)", res.RowsAffected, row.UserID)

		if telegram.GlobalClient != nil && row.TelegramUserID != 0 {
			err := telegram.GlobalClient.SendMessage(row.TelegramUserID,
				"Your plan has expired, so your search links were paused. Renew to resume monitoring.")
			if err != nil {
				log.Printf("Error notifying user %d: %v", row.UserID, err)
			}
		}
	}
}

func InitSubscriptionExpiryCron() {
	c := cron.New()

	_, err := c.AddFunc("0 9 * * *", func() {
		warnExpiringSubscriptions()
	})
	if err != nil {
		log.Printf("Could not initialize subscription expiry cron: %v", err)
		return
	}

	c.Start()
}

func warnExpiringSubscriptions() {
	log.Println("Checking for expiring subscriptions...")

	warningDays := []int{3, 1}

	for _, days := range warningDays {
		targetDate := time.Now().AddDate(0, 0, days).Format("2006-01-02")

		var rows []struct {
			TelegramUserID int64
			PlanName       string
		}
		err := database.DB.Raw(`
			SELECT u.telegram_user_id, p.name AS plan_name
			FROM subscriptions s
			JOIN users u ON u.id = s.user_id
			JOIN plans p ON p.id = s.plan_id
			WHERE s.status = 'active' AND DATE(s.current_period_end) = ?
		`, targetDate).Scan(&rows).Error
		if err != nil {
			log.Printf("Error fetching expiring subscriptions: %v", err)
			continue
		}

		log.Printf("Found %d subscriptions expiring in %d days", len(rows), days)

		for _, row := range rows {
			if telegram.GlobalClient == nil || row.TelegramUserID == 0 {
				continue
			}
			text := "Your " + row.PlanName + " plan expires soon. Renew to keep your search links running."
			if err := telegram.GlobalClient.SendMessage(row.TelegramUserID, text); err != nil {
				log.Printf("Error sending expiry warning to %d: %v", row.TelegramUserID, err)
			}
		}
	}
}
