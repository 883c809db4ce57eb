package service

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/castgate/chain"
	"github.com/castgate/model"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testTreasury = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testHash(i int) string {
	return fmt.Sprintf("0x%064x", i+1)
}

type stubVerifier struct {
	verification *chain.Verification
	calls        int
}

func (s *stubVerifier) Verify(_ context.Context, _ common.Hash, _, _ common.Address, _ chain.PayloadMatcher) (*chain.Verification, error) {
	s.calls++
	return s.verification, nil
}

func confirmedFrom(sender string) *stubVerifier {
	return &stubVerifier{verification: &chain.Verification{
		Status: chain.StatusConfirmed,
		Sender: common.HexToAddress(sender),
	}}
}

type stubDisburser struct {
	calls  int
	lastTo common.Address
	amount *big.Int
}

func (s *stubDisburser) Disburse(_ context.Context, to common.Address, amountWei *big.Int) (string, error) {
	s.calls++
	s.lastTo = to
	s.amount = amountWei
	return testHash(9000), nil
}
