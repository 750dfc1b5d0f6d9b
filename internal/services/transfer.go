package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
)

// Transfer moves money between two of the user's accounts in one database
// transaction. Both rows are locked in id order, both balances move through
// guarded updates, and a linked pair of transfer entries is written.
func (s *accountService) Transfer(ctx context.Context, userID, sourceAccountID string, input TransferInput) (*TransferResult, error) {
	amount := models.RoundMoney(input.Amount)
	if !models.ValidAmount(amount) {
		return nil, apperrors.ErrInvalidAmount
	}
	if sourceAccountID == input.TargetAccountID {
		return nil, apperrors.ErrSameAccountTransfer
	}

	now := s.now()
	result := &TransferResult{
		Reference: fmt.Sprintf("TRF-%d", now.UnixNano()),
		Amount:    amount,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		first, second := sourceAccountID, input.TargetAccountID
		if second < first {
			first, second = second, first
		}
		locked := make(map[string]*models.Account, 2)
		for _, id := range []string{first, second} {
			account, err := lockAccount(tx, userID, id)
			if err != nil {
				return err
			}
			locked[id] = account
		}
		source, target := locked[sourceAccountID], locked[input.TargetAccountID]

		if !source.IsActive || !target.IsActive {
			return apperrors.ErrAccountInactive
		}
		if source.Currency != target.Currency {
			return apperrors.ErrCurrencyMismatch
		}

		if err := adjustBalance(tx, source, amount.Neg()); err != nil {
			return err
		}
		if err := adjustBalance(tx, target, amount); err != nil {
			return err
		}

		category, err := transferCategory(tx, userID)
		if err != nil {
			return err
		}

		description := strings.TrimSpace(input.Description)
		outgoing := &models.Transaction{
			UserID:            userID,
			AccountID:         source.ID,
			CategoryID:        &category.ID,
			Type:              models.TransactionTypeTransfer,
			TransferDirection: models.TransferOut,
			Amount:            amount,
			Date:              models.DateOnly(now),
			Reference:         result.Reference,
			Description:       description,
		}
		incoming := &models.Transaction{
			UserID:            userID,
			AccountID:         target.ID,
			CategoryID:        &category.ID,
			Type:              models.TransactionTypeTransfer,
			TransferDirection: models.TransferIn,
			Amount:            amount,
			Date:              models.DateOnly(now),
			Reference:         result.Reference,
			Description:       description,
		}
		if description == "" {
			outgoing.Description = "Transfer to " + target.Name
			incoming.Description = "Transfer from " + source.Name
		}

		outgoing.ID = models.NewID()
		incoming.ID = models.NewID()
		outgoing.LinkedTransactionID = &incoming.ID
		incoming.LinkedTransactionID = &outgoing.ID

		if err := tx.Create(outgoing).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Create(incoming).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		result.SourceAccount = AccountBalance{ID: source.ID, NewBalance: source.Balance}
		result.TargetAccount = AccountBalance{ID: target.ID, NewBalance: target.Balance}
		result.OutgoingTransactionID = outgoing.ID
		result.IncomingTransactionID = incoming.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.InvalidateUser(ctx, userID)
	return result, nil
}
