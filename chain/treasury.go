package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TxSender is the write-side chain surface the treasury needs.
// *ethclient.Client satisfies it.
type TxSender interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Treasury signs and broadcasts claim payouts from the configured hot key.
type Treasury struct {
	client     TxSender
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

func NewTreasury(client TxSender, privateKeyHex string, chainID int64) (*Treasury, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid treasury key: %w", err)
	}
	return &Treasury{
		client:     client,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(chainID),
	}, nil
}

func (t *Treasury) Address() common.Address {
	return t.address
}

// Disburse sends amountWei to the recipient and returns the broadcast
// transaction hash.
func (t *Treasury) Disburse(ctx context.Context, to common.Address, amountWei *big.Int) (string, error) {
	nonce, err := t.client.PendingNonceAt(ctx, t.address)
	if err != nil {
		return "", err
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}

	tx := types.NewTransaction(nonce, to, amountWei, uint64(21000), gasPrice, nil)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainID), t.privateKey)
	if err != nil {
		return "", err
	}

	if err := t.client.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}
	return signedTx.Hash().Hex(), nil
}
