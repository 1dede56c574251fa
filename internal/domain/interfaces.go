package domain

import "context"

// PortfolioProvider produces portfolio snapshots on demand. Implemented by
// the external portfolio service client; the engine only reads.
type PortfolioProvider interface {
	GetPortfolioSnapshot(ctx context.Context) (*PortfolioSnapshot, error)
}

// TradingController is the trading-side collaborator the mitigation executor
// drives. All methods must return promptly; a controller whose action would
// block is expected to queue the work and report acceptance, not completion.
// The boolean reports whether the action was accepted.
type TradingController interface {
	StopTrading(ctx context.Context) (bool, error)
	RequestRebalance(ctx context.Context) (bool, error)
	ReducePositions(ctx context.Context, factor float64) (bool, error)
	LiquidatePositions(ctx context.Context, shouldLiquidate func(Position) bool) (bool, error)
	ReduceLeverage(ctx context.Context) (bool, error)
}
