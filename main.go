package main

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/castgate/chain"
	"github.com/castgate/config"
	"github.com/castgate/handler"
	"github.com/castgate/logger"
	"github.com/castgate/model"
	"github.com/castgate/repository"
	"github.com/castgate/router"
	"github.com/castgate/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	logger.Initialize(logger.Configuration{
		Level:   cfg.LogLevel,
		Console: cfg.Environment == "development",
	})

	if !common.IsHexAddress(cfg.TreasuryAddress) {
		logger.Fatal("TREASURY_ADDRESS is missing or invalid")
	}
	if cfg.TreasuryPrivKey == "" {
		logger.Fatal("TREASURY_PRIVATE_KEY is required")
	}
	claimAmount, ok := new(big.Int).SetString(cfg.ClaimAmountWei, 10)
	if !ok {
		logger.Fatal("CLAIM_AMOUNT_WEI is not a decimal integer", zap.String("value", cfg.ClaimAmountWei))
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	ethClient, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		logger.Fatal("dial rpc", zap.String("url", cfg.RPCURL), zap.Error(err))
	}

	treasuryAddr := common.HexToAddress(cfg.TreasuryAddress)
	verifier := chain.NewVerifier(ethClient, cfg.ChainID, cfg.Confirmations)
	treasury, err := chain.NewTreasury(ethClient, cfg.TreasuryPrivKey, cfg.ChainID)
	if err != nil {
		logger.Fatal("init treasury", zap.Error(err))
	}

	eligibilityRepo := repository.NewEligibilityRepository(db)
	tallyRepo := repository.NewTallyRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	disbursementRepo := repository.NewDisbursementRepository(db)

	claimSvc := service.NewClaimService(eligibilityRepo, disbursementRepo, verifier, treasury, treasuryAddr, claimAmount)
	feedbackSvc := service.NewFeedbackService(eligibilityRepo, feedbackRepo, verifier, treasuryAddr)
	predictionSvc := service.NewPredictionService(eligibilityRepo, tallyRepo, verifier, treasuryAddr, cfg.Candidates)

	r := router.SetupRouter(
		handler.NewClaimHandler(claimSvc),
		handler.NewFeedbackHandler(feedbackSvc),
		handler.NewPredictionHandler(predictionSvc),
	)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		logger.Info("castgate listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
