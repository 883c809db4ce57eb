package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type VerifyStatus int

const (
	StatusPending VerifyStatus = iota
	StatusConfirmed
	StatusInvalid
)

// Verification is the outcome of checking one proof transaction. On
// StatusConfirmed, Sender is the recovered signer and Payload the raw
// calldata; on StatusInvalid, Reason says which constraint failed.
type Verification struct {
	Status  VerifyStatus
	Sender  common.Address
	Payload []byte
	Reason  string
}

// PayloadMatcher is a predicate over the transaction's embedded data.
type PayloadMatcher func(payload []byte) bool

// PrefixMatcher accepts payloads starting with the literal tag.
func PrefixMatcher(tag string) PayloadMatcher {
	prefix := []byte(tag)
	return func(payload []byte) bool {
		return bytes.HasPrefix(payload, prefix)
	}
}

// DigestMatcher accepts payloads starting with the tag and containing the
// hex encoding of digest, so a transaction commits to a specific message.
func DigestMatcher(tag string, digest []byte) PayloadMatcher {
	prefix := []byte(tag)
	hexDigest := []byte(hex.EncodeToString(digest))
	return func(payload []byte) bool {
		return bytes.HasPrefix(payload, prefix) && bytes.Contains(payload, hexDigest)
	}
}

type Verifier struct {
	reader        TxReader
	chainID       *big.Int
	confirmations uint64
}

func NewVerifier(reader TxReader, chainID int64, confirmations uint64) *Verifier {
	if confirmations == 0 {
		confirmations = 1
	}
	return &Verifier{
		reader:        reader,
		chainID:       big.NewInt(chainID),
		confirmations: confirmations,
	}
}

// Verify checks that the transaction is mined to the configured depth,
// addressed to expectedRecipient, carries zero value, was signed by
// expectedSender (when non-zero), and that its calldata satisfies the
// matcher. It reads the chain only; all mutation belongs to the caller.
func (v *Verifier) Verify(ctx context.Context, txHash common.Hash, expectedRecipient, expectedSender common.Address, matcher PayloadMatcher) (*Verification, error) {
	tx, isPending, err := v.reader.TransactionByHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// not yet propagated; the caller retries with backoff
			return &Verification{Status: StatusPending}, nil
		}
		return nil, err
	}
	if isPending {
		return &Verification{Status: StatusPending}, nil
	}

	receipt, err := v.reader.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return &Verification{Status: StatusPending}, nil
		}
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return invalid("transaction reverted"), nil
	}
	head, err := v.reader.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	mined := receipt.BlockNumber.Uint64()
	if head < mined || head-mined+1 < v.confirmations {
		return &Verification{Status: StatusPending}, nil
	}

	if tx.To() == nil {
		return invalid("contract creation is not a valid proof"), nil
	}
	if *tx.To() != expectedRecipient {
		return invalid(fmt.Sprintf("recipient %s, want %s", tx.To().Hex(), expectedRecipient.Hex())), nil
	}
	// proofs must be economically inert
	if tx.Value().Sign() != 0 {
		return invalid("non-zero value"), nil
	}

	sender, err := types.Sender(types.LatestSignerForChainID(v.chainID), tx)
	if err != nil {
		return invalid("cannot recover sender"), nil
	}
	if (expectedSender != common.Address{}) && sender != expectedSender {
		return invalid(fmt.Sprintf("sender %s, want %s", sender.Hex(), expectedSender.Hex())), nil
	}

	payload := tx.Data()
	if matcher != nil && !matcher(payload) {
		return invalid("payload does not match"), nil
	}

	return &Verification{Status: StatusConfirmed, Sender: sender, Payload: payload}, nil
}

func invalid(reason string) *Verification {
	return &Verification{Status: StatusInvalid, Reason: reason}
}
