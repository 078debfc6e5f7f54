package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// QRService issues scannable payment references for open invoices. A
// reference encodes the invoice identity and amount due; the redis copy
// bounds its lifetime so stale references stop resolving.
type QRService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewQRService(db *sql.DB, redisClient *redis.Client) *QRService {
	return &QRService{
		db:    db,
		redis: redisClient,
	}
}

const paymentReferenceTTL = 24 * time.Hour

// GeneratePaymentReference builds a payment reference QR for an invoice.
// Returns the reference token and a base64 PNG.
func (s *QRService) GeneratePaymentReference(ctx context.Context, companyID, invoiceID int) (string, string, error) {
	var invoiceNumber, currency string
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT invoice_number, total, COALESCE(currency, '')
		FROM invoices WHERE id = $1 AND company_id = $2
	`, invoiceID, companyID).Scan(&invoiceNumber, &total, &currency)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", fmt.Errorf("invoice %d not found", invoiceID)
		}
		return "", "", fmt.Errorf("loading invoice %d: %w", invoiceID, err)
	}

	refData := map[string]any{
		"invoiceId":     invoiceID,
		"invoiceNumber": invoiceNumber,
		"amount":        total,
		"currency":      currency,
		"timestamp":     time.Now().Unix(),
		"nonce":         s.generateNonce(),
	}

	jsonData, err := json.Marshal(refData)
	if err != nil {
		return "", "", err
	}

	reference := base64.URLEncoding.EncodeToString(jsonData)

	if s.redis != nil {
		key := fmt.Sprintf("payref:%s", reference)
		if err := s.redis.Set(ctx, key, jsonData, paymentReferenceTTL).Err(); err != nil {
			return "", "", err
		}
	}

	qr, err := qrcode.New(reference, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return reference, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ResolvePaymentReference resolves a scanned reference back to its invoice
// details and consumes it.
func (s *QRService) ResolvePaymentReference(ctx context.Context, reference string) (map[string]any, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("payment references unavailable without redis")
	}

	key := fmt.Sprintf("payref:%s", reference)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired payment reference")
	}
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return result, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
