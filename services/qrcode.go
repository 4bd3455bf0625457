package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"qrattend_go/config"
	"qrattend_go/database"
	"qrattend_go/models"
	"qrattend_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

const qrTokenKeyPrefix = "qrtoken:"

// QRCodeService issues and resolves the short-lived tokens students scan.
// A session has at most one live token; issuing a new one replaces it.
type QRCodeService struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewQRCodeService creates a QRCodeService backed by the shared connections.
func NewQRCodeService() *QRCodeService {
	return &QRCodeService{
		db:    database.DB,
		redis: database.GetRedisClient(),
	}
}

// IssuedToken bundles the stored token with its rendered QR image.
type IssuedToken struct {
	Token    *models.QRToken `json:"token"`
	ImagePNG string          `json:"image_png"` // base64 PNG of the payload
}

// IssueToken generates a fresh opaque payload for a session, anchored at the
// teacher's coordinates. Any previous token for the session is overwritten,
// invalidating the old code even if unexpired.
func (s *QRCodeService) IssueToken(sessionID uint, lat, lon float64, actor *models.User) (*IssuedToken, error) {
	if !utils.IsValidCoordinate(lat, lon) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid anchor coordinates")
	}

	var session models.ClassSession
	if err := s.db.Preload("Class").First(&session, sessionID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "Session not found")
	}
	if err := requireClassOwner(&session.Class, actor); err != nil {
		return nil, err
	}

	now := time.Now()
	payload := uuid.NewString()

	token := models.QRToken{
		SessionID: sessionID,
		Payload:   payload,
		Latitude:  lat,
		Longitude: lon,
		IssuedAt:  now,
		ExpiresAt: now.Add(config.AppConfig.QRTokenTTL),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.QRToken
		err := tx.Where("session_id = ?", sessionID).First(&existing).Error
		if err == nil {
			// Replace in place so the session keeps a single token row.
			s.evictCached(existing.Payload)
			token.ID = existing.ID
			token.CreatedAt = existing.CreatedAt
			return tx.Save(&token).Error
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		return tx.Create(&token).Error
	})
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to issue QR token")
	}

	s.cacheToken(&token)

	png, err := qrcode.Encode(payload, qrcode.Medium, 300)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to render QR code")
	}

	return &IssuedToken{
		Token:    &token,
		ImagePNG: base64.StdEncoding.EncodeToString(png),
	}, nil
}

// ResolveToken looks up the token owning a scanned payload.
func (s *QRCodeService) ResolveToken(payload string) (*models.QRToken, error) {
	return s.resolveToken(s.db, payload)
}

// resolveToken is the transaction-aware lookup used by the scan path. A cache
// hit carries the full token record, so only the session needs loading; on a
// miss the database row stays authoritative (Redis may have restarted after
// issuance).
func (s *QRCodeService) resolveToken(tx *gorm.DB, payload string) (*models.QRToken, error) {
	if payload == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Missing QR code data")
	}

	if s.redis != nil {
		data, err := s.redis.Get(context.Background(), qrTokenKeyPrefix+payload).Bytes()
		switch {
		case err == nil:
			if cached, derr := decodeCachedToken(data); derr == nil && cached.Payload == payload {
				var session models.ClassSession
				if serr := tx.Preload("Class").First(&session, cached.SessionID).Error; serr == nil {
					cached.Session = session
					return cached, nil
				}
			}
		case err != redis.Nil:
			logrus.WithError(err).Warn("QR token cache read failed")
		}
	}

	var token models.QRToken
	err := tx.Preload("Session").Preload("Session.Class").
		Where("payload = ?", payload).First(&token).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fiber.NewError(fiber.StatusNotFound, "Invalid QR code")
	}
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to resolve QR code")
	}
	return &token, nil
}

func (s *QRCodeService) cacheToken(token *models.QRToken) {
	if s.redis == nil {
		return
	}
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return
	}
	data, err := encodeCachedToken(token)
	if err != nil {
		logrus.WithError(err).Warn("Failed to encode QR token for cache")
		return
	}
	if err := s.redis.Set(context.Background(), qrTokenKeyPrefix+token.Payload, data, ttl).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to cache QR token")
	}
}

// encodeCachedToken serializes a token for the cache with the session
// relation stripped; the session is loaded fresh on resolution.
func encodeCachedToken(token *models.QRToken) ([]byte, error) {
	cached := *token
	cached.Session = models.ClassSession{}
	return json.Marshal(&cached)
}

// decodeCachedToken deserializes a cached token and rejects entries missing
// the fields resolution depends on.
func decodeCachedToken(data []byte) (*models.QRToken, error) {
	var token models.QRToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	if token.Payload == "" || token.SessionID == 0 {
		return nil, fmt.Errorf("incomplete cached token")
	}
	return &token, nil
}

func (s *QRCodeService) evictCached(payload string) {
	if s.redis == nil || payload == "" {
		return
	}
	if err := s.redis.Del(context.Background(), qrTokenKeyPrefix+payload).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to evict cached QR token")
	}
}

// requireClassOwner enforces that the acting user owns the class. Admins may
// act on any class.
func requireClassOwner(class *models.Class, actor *models.User) error {
	if actor.Role == "admin" {
		return nil
	}
	if class.TeacherID != actor.ID {
		return fiber.NewError(fiber.StatusForbidden, "You do not own this class")
	}
	return nil
}
