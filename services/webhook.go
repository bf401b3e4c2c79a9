package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Pantane1/mpesa/database"
	"github.com/Pantane1/mpesa/helpers"
	"github.com/Pantane1/mpesa/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// STKCallbackEnvelope is the provider's outer payload shape.
type STKCallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []CallbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// CallbackResult reports what a delivery did. Duplicate means the event
// was already applied and this call had no side effects.
type CallbackResult struct {
	Duplicate  bool
	ResultCode int
	Reference  string
}

// IdempotencyKey fingerprints a callback by its two correlation ids, so
// replays of the same provider event collide on the same key.
func IdempotencyKey(merchantRequestID, checkoutRequestID string) string {
	sum := sha256.Sum256([]byte(merchantRequestID + "|" + checkoutRequestID))
	return hex.EncodeToString(sum[:])
}

// seenCallbacks is the in-process fast path in front of the persistent
// idempotency record. It is a latency optimization only: entries expire
// with the 24h window and other instances never see them, so the
// persistent record stays the sole authority.
var seenCallbacks = &callbackCache{entries: map[string]time.Time{}}

const callbackCacheMax = 10000

type callbackCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (c *callbackCache) hit(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.entries[key]
	if !ok {
		return false
	}
	if time.Since(at) > models.IdempotencyWindow {
		delete(c.entries, key)
		return false
	}
	return true
}

func (c *callbackCache) add(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= callbackCacheMax {
		for k, at := range c.entries {
			if time.Since(at) > models.IdempotencyWindow {
				delete(c.entries, k)
			}
		}
		for k := range c.entries {
			if len(c.entries) < callbackCacheMax {
				break
			}
			delete(c.entries, k)
		}
	}
	c.entries[key] = time.Now()
}

// ProcessCallback applies one payment-confirmation delivery. Duplicate
// deliveries inside the idempotency window are acknowledged without side
// effects; fresh deliveries complete or fail the matching pending
// transaction and, on success, post the ledger credit.
func ProcessCallback(cb *STKCallback) (*CallbackResult, error) {
	if cb.MerchantRequestID == "" || cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: callback missing correlation ids", ErrValidation)
	}
	key := IdempotencyKey(cb.MerchantRequestID, cb.CheckoutRequestID)

	if seenCallbacks.hit(key) {
		Audit("webhook_duplicate", "webhook", key, nil, map[string]any{"checkout_request_id": cb.CheckoutRequestID}, nil)
		return &CallbackResult{Duplicate: true, ResultCode: cb.ResultCode, Reference: cb.CheckoutRequestID}, nil
	}

	cutoff := time.Now().Add(-models.IdempotencyWindow)
	var record models.WebhookIdempotency
	err := database.DB.
		Where("idempotency_key = ? AND created_at >= ?", key, cutoff).
		First(&record).Error
	switch {
	case err == nil && record.Status != models.IdempotencyStatusFailed:
		// completed or in-flight: the event already has an owner
		if record.Status == models.IdempotencyStatusCompleted {
			seenCallbacks.add(key)
		}
		Audit("webhook_duplicate", "webhook", key, nil, map[string]any{"checkout_request_id": cb.CheckoutRequestID}, nil)
		return &CallbackResult{Duplicate: true, ResultCode: cb.ResultCode, Reference: cb.CheckoutRequestID}, nil

	case err == nil:
		// A failed attempt must not suppress redelivery: the redelivery
		// is the retry. Reclaim the record before reprocessing; losing
		// the reclaim means a concurrent retry already owns it.
		res := database.DB.Model(&record).
			Where("status = ?", models.IdempotencyStatusFailed).
			Update("status", models.IdempotencyStatusProcessing)
		if res.Error != nil {
			return nil, fmt.Errorf("reclaim idempotency record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &CallbackResult{Duplicate: true, ResultCode: cb.ResultCode, Reference: cb.CheckoutRequestID}, nil
		}
		helpers.Log.Infow("reprocessing previously failed delivery", "key", key)

	case errors.Is(err, gorm.ErrRecordNotFound):
		// Mark processing immediately to shrink the race window for a
		// concurrent duplicate delivery. The unique key turns the loser
		// of that race into a duplicate.
		record = models.WebhookIdempotency{
			IdempotencyKey: key,
			Status:         models.IdempotencyStatusProcessing,
		}
		if createErr := database.DB.Create(&record).Error; createErr != nil {
			var winner models.WebhookIdempotency
			if database.DB.First(&winner, "idempotency_key = ?", key).Error == nil {
				helpers.Log.Infow("concurrent delivery won the idempotency race", "key", key)
				return &CallbackResult{Duplicate: true, ResultCode: cb.ResultCode, Reference: cb.CheckoutRequestID}, nil
			}
			return nil, fmt.Errorf("create idempotency record: %w", createErr)
		}

	default:
		return nil, fmt.Errorf("check idempotency record: %w", err)
	}

	var procErr error
	if cb.ResultCode == 0 {
		procErr = applySuccessfulCallback(cb)
	} else {
		procErr = applyFailedCallback(cb)
	}

	now := time.Now()
	status := models.IdempotencyStatusCompleted
	if procErr != nil {
		status = models.IdempotencyStatusFailed
	}
	err = database.DB.Model(&record).Updates(map[string]any{
		"status":       status,
		"processed_at": &now,
		"metadata": datatypes.JSONMap{
			"result_code": cb.ResultCode,
			"result_desc": cb.ResultDesc,
		},
	}).Error
	if err != nil {
		helpers.Log.Errorw("failed to finalize idempotency record", "key", key, "error", err)
	}

	if procErr != nil {
		return nil, procErr
	}

	seenCallbacks.add(key)
	Audit("webhook_processed", "webhook", key, nil, map[string]any{
		"checkout_request_id": cb.CheckoutRequestID,
		"result_code":         cb.ResultCode,
	}, nil)
	return &CallbackResult{ResultCode: cb.ResultCode, Reference: cb.CheckoutRequestID}, nil
}

// callbackItems projects the provider's flat named item list into a map.
func callbackItems(cb *STKCallback) map[string]any {
	out := make(map[string]any, len(cb.CallbackMetadata.Item))
	for _, item := range cb.CallbackMetadata.Item {
		out[item.Name] = item.Value
	}
	return out
}

// itemString renders a metadata item value. Numeric items arrive as JSON
// numbers; phone numbers must not come out in scientific notation.
func itemString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func applySuccessfulCallback(cb *STKCallback) error {
	items := callbackItems(cb)
	receipt := itemString(items["MpesaReceiptNumber"])
	phone := itemString(items["PhoneNumber"])

	var tx models.Transaction
	err := database.DB.
		Where("reference = ? AND status = ?", cb.CheckoutRequestID, models.TxStatusPending).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: pending transaction %s", ErrNotFound, cb.CheckoutRequestID)
	}
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", cb.CheckoutRequestID, err)
	}

	if tx.Metadata == nil {
		tx.Metadata = datatypes.JSONMap{}
	}
	tx.Metadata["provider_amount"] = itemString(items["Amount"])

	if isSignup, _ := tx.Metadata["signup"].(bool); isSignup {
		return completeSignupTransaction(&tx, receipt, phone)
	}
	return completeTransaction(&tx, receipt, phone)
}

// completeSignupTransaction realizes the signup the pending transaction
// was created for: reuse the account if the email is already registered,
// otherwise create the user and attach the fingerprint captured at signup.
func completeSignupTransaction(tx *models.Transaction, receipt, phone string) error {
	email, _ := tx.Metadata["email"].(string)
	if email == "" {
		return fmt.Errorf("%w: signup transaction %s has no email", ErrValidation, tx.Reference)
	}

	var user models.User
	err := database.DB.First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Email:       email,
			PhoneNumber: phone,
			APIKey:      uuid.New().String(),
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return fmt.Errorf("create user %s: %w", email, err)
		}

		if hash, _ := tx.Metadata["fingerprint_hash"].(string); hash != "" {
			ua, _ := tx.Metadata["user_agent"].(string)
			ip, _ := tx.Metadata["ip_address"].(string)
			device := models.UserDevice{
				UserID:          user.ID,
				FingerprintHash: hash,
				UserAgent:       ua,
				IPAddress:       ip,
				LastSeenAt:      time.Now(),
			}
			if err := database.DB.Create(&device).Error; err != nil {
				helpers.Log.Warnw("failed to attach signup device", "user_id", user.ID, "error", err)
			}
		}
		Audit("user_created", "user", fmt.Sprint(user.ID), nil, map[string]any{"email": email}, nil)
	} else if err != nil {
		return fmt.Errorf("look up user %s: %w", email, err)
	}

	tx.UserID = &user.ID
	return completeTransaction(tx, receipt, phone)
}

func completeTransaction(tx *models.Transaction, receipt, phone string) error {
	now := time.Now()
	meta := tx.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	meta["mpesa_receipt_number"] = receipt
	meta["payer_phone_number"] = phone

	res := database.DB.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", tx.ID, models.TxStatusPending).
		Updates(map[string]any{
			"user_id":      tx.UserID,
			"status":       models.TxStatusCompleted,
			"processed_at": &now,
			"metadata":     meta,
		})
	if res.Error != nil {
		return fmt.Errorf("complete transaction %s: %w", tx.Reference, res.Error)
	}
	if res.RowsAffected == 0 {
		helpers.Log.Infow("transaction already completed", "reference", tx.Reference)
		return nil
	}

	tx.Status = models.TxStatusCompleted
	tx.ProcessedAt = &now
	tx.Metadata = meta

	if err := RecordTransaction(tx); err != nil {
		return err
	}
	if tx.UserID != nil {
		Notify.TransactionChanged(*tx.UserID, tx)
	}
	return nil
}

func applyFailedCallback(cb *STKCallback) error {
	var tx models.Transaction
	err := database.DB.
		Where("reference = ? AND status = ?", cb.CheckoutRequestID, models.TxStatusPending).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: pending transaction %s", ErrNotFound, cb.CheckoutRequestID)
	}
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", cb.CheckoutRequestID, err)
	}

	meta := tx.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	meta["error_code"] = cb.ResultCode
	meta["error_description"] = cb.ResultDesc

	res := database.DB.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", tx.ID, models.TxStatusPending).
		Updates(map[string]any{
			"status":   models.TxStatusFailed,
			"metadata": meta,
		})
	if res.Error != nil {
		return fmt.Errorf("fail transaction %s: %w", tx.Reference, res.Error)
	}

	if tx.UserID != nil {
		tx.Status = models.TxStatusFailed
		Notify.TransactionChanged(*tx.UserID, &tx)
	}
	return nil
}
