package marketplace

import (
	"context"

	"wattswap-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// MarketStats summarises the currently available listings.
type MarketStats struct {
	AvailableListings  int     `json:"availableListings"`
	ActiveSellers      int     `json:"activeSellers"`
	AvailableEnergyKWh float64 `json:"availableEnergyKWh"`
	AveragePricePerKWh float64 `json:"averagePricePerKWh"`
	TotalValue         float64 `json:"totalValue"`
}

func (s *Service) Stats(ctx context.Context) (*MarketStats, error) {
	listings, err := s.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(listings), nil
}

// computeStats aggregates in decimal so sums of many small prices do not drift, then rounds to cents.
func computeStats(listings []domain.Listing) *MarketStats {
	stats := &MarketStats{AvailableListings: len(listings)}
	if len(listings) == 0 {
		return stats
	}
	sellers := map[string]struct{}{}
	energy := decimal.Zero
	priceSum := decimal.Zero
	value := decimal.Zero
	for _, l := range listings {
		sellers[l.SellerID] = struct{}{}
		amount := decimal.NewFromFloat(l.EnergyAmount)
		price := decimal.NewFromFloat(l.PricePerKWh)
		energy = energy.Add(amount)
		priceSum = priceSum.Add(price)
		value = value.Add(amount.Mul(price))
	}
	stats.ActiveSellers = len(sellers)
	stats.AvailableEnergyKWh = energy.Round(2).InexactFloat64()
	stats.AveragePricePerKWh = priceSum.Div(decimal.NewFromInt(int64(len(listings)))).Round(2).InexactFloat64()
	stats.TotalValue = value.Round(2).InexactFloat64()
	return stats
}
