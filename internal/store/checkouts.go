package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// CreateCheckoutRecord inserts the audit row for a new session.
// Replayed events are a no-op thanks to the session id conflict clause.
func (s *Store) CreateCheckoutRecord(ctx context.Context, rec *models.CheckoutRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkout_records (session_id, target_kind, target_ref, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, rec.TargetKind, rec.TargetRef, rec.State)
	return err
}

// UpdateCheckoutState records a state transition for a session
func (s *Store) UpdateCheckoutState(ctx context.Context, sessionID, state, errorClass string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE checkout_records SET state = $1, error_class = $2, updated_at = NOW() WHERE session_id = $3",
		state, errorClass, sessionID)
	return err
}

// GetCheckoutRecord retrieves the audit row for a session
func (s *Store) GetCheckoutRecord(ctx context.Context, sessionID string) (*models.CheckoutRecord, error) {
	var rec models.CheckoutRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM checkout_records WHERE session_id = $1", sessionID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkout record not found: %s", sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetCheckoutRecordsByState retrieves sessions in a given state, newest first
func (s *Store) GetCheckoutRecordsByState(ctx context.Context, state string, limit int) ([]models.CheckoutRecord, error) {
	var recs []models.CheckoutRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM checkout_records WHERE state = $1 ORDER BY created_at DESC LIMIT $2",
		state, limit)
	return recs, err
}
