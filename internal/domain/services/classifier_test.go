package services

import (
	"testing"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

func pricesFor(buckets ...models.Bucket) models.SKUPrices {
	prices := make(map[models.Bucket]decimal.Decimal)
	for _, b := range buckets {
		prices[b] = decimal.NewFromInt(100)
	}
	return models.SKUPrices{SKU: "SKU-1", Prices: prices}
}

func TestClassifyListing_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		listing models.Listing
		prices  models.SKUPrices
		want    models.Bucket
		ok      bool
	}{
		{
			name: "fulfillment wins over catalog",
			listing: models.Listing{
				FulfillmentMode: models.FulfillmentByMarketplace,
				CatalogMember:   true,
				ExposureTier:    models.ExposureStandard,
			},
			prices: pricesFor(models.BucketFull, models.BucketCatalog, models.BucketStandard),
			want:   models.BucketFull,
			ok:     true,
		},
		{
			name: "catalog wins over exposure tier",
			listing: models.Listing{
				FulfillmentMode: models.FulfillmentDropOff,
				CatalogMember:   true,
				ExposureTier:    models.ExposurePremium,
			},
			prices: pricesFor(models.BucketCatalog, models.BucketPremium),
			want:   models.BucketCatalog,
			ok:     true,
		},
		{
			name: "standard exposure",
			listing: models.Listing{
				FulfillmentMode: models.FulfillmentDropOff,
				ExposureTier:    models.ExposureStandard,
			},
			prices: pricesFor(models.BucketStandard),
			want:   models.BucketStandard,
			ok:     true,
		},
		{
			name: "premium exposure",
			listing: models.Listing{
				FulfillmentMode: models.FulfillmentCrossDocking,
				ExposureTier:    models.ExposurePremium,
			},
			prices: pricesFor(models.BucketPremium),
			want:   models.BucketPremium,
			ok:     true,
		},
		{
			name: "fulfillment without full price falls to next match",
			listing: models.Listing{
				FulfillmentMode: models.FulfillmentByMarketplace,
				ExposureTier:    models.ExposureStandard,
			},
			prices: pricesFor(models.BucketStandard),
			want:   models.BucketStandard,
			ok:     true,
		},
		{
			name: "no match without any price",
			listing: models.Listing{
				FulfillmentMode: models.FulfillmentDropOff,
				ExposureTier:    models.ExposureStandard,
			},
			prices: models.SKUPrices{SKU: "SKU-1"},
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ClassifyListing(&tt.listing, tt.prices)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if ok && got != tt.want {
				t.Errorf("expected bucket %s, got %s", tt.want, got)
			}
		})
	}
}

func TestClassifyListing_ZeroPriceDoesNotMatch(t *testing.T) {
	listing := models.Listing{
		FulfillmentMode: models.FulfillmentDropOff,
		ExposureTier:    models.ExposureStandard,
	}
	prices := models.SKUPrices{
		SKU: "SKU-1",
		Prices: map[models.Bucket]decimal.Decimal{
			models.BucketStandard: decimal.Zero,
		},
	}

	if _, ok := ClassifyListing(&listing, prices); ok {
		t.Error("zero price must not match a bucket")
	}
}

func standardListing(id string, prices models.SKUPrices) *runListing {
	return &runListing{
		listing: &models.Listing{ID: id, ExposureTier: models.ExposureStandard},
		prices:  prices,
		bucket:  models.BucketStandard,
	}
}

func premiumListing(id string, prices models.SKUPrices) *runListing {
	return &runListing{
		listing: &models.Listing{ID: id, ExposureTier: models.ExposurePremium},
		prices:  prices,
		bucket:  models.BucketPremium,
	}
}

func TestPlanRedistribution_StandardSurplus(t *testing.T) {
	prices := pricesFor(models.BucketStandard, models.BucketPremiumFree)
	standard := []*runListing{
		standardListing("L1", prices),
		standardListing("L2", prices),
	}

	plan := PlanRedistribution(standard, nil)
	if plan == nil {
		t.Fatal("expected redistribution plan")
	}
	if plan.Listing.listing.ID != "L2" {
		t.Errorf("expected last listing moved, got %s", plan.Listing.listing.ID)
	}
	if plan.From != models.BucketStandard || plan.To != models.BucketPremiumFree {
		t.Errorf("unexpected plan: %s -> %s", plan.From, plan.To)
	}
}

func TestPlanRedistribution_PremiumSurplus(t *testing.T) {
	prices := pricesFor(models.BucketPremium, models.BucketStandardFree)
	premium := []*runListing{
		premiumListing("L1", prices),
		premiumListing("L2", prices),
	}

	plan := PlanRedistribution(nil, premium)
	if plan == nil {
		t.Fatal("expected redistribution plan")
	}
	if plan.To != models.BucketStandardFree {
		t.Errorf("expected move to standard_free, got %s", plan.To)
	}
}

func TestPlanRedistribution_NoSurplus(t *testing.T) {
	prices := pricesFor(models.BucketStandard, models.BucketPremium, models.BucketPremiumFree)
	standard := []*runListing{standardListing("L1", prices), standardListing("L2", prices)}
	premium := []*runListing{premiumListing("L3", prices)}

	// Обе корзины покрыты: перераспределения нет
	if plan := PlanRedistribution(standard, premium); plan != nil {
		t.Errorf("expected no plan, got %s -> %s", plan.From, plan.To)
	}
}

func TestPlanRedistribution_SingleListingStays(t *testing.T) {
	prices := pricesFor(models.BucketStandard, models.BucketPremiumFree)
	standard := []*runListing{standardListing("L1", prices)}

	if plan := PlanRedistribution(standard, nil); plan != nil {
		t.Error("single listing must not be moved")
	}
}

func TestPlanRedistribution_NoTargetPrice(t *testing.T) {
	prices := pricesFor(models.BucketStandard)
	standard := []*runListing{
		standardListing("L1", prices),
		standardListing("L2", prices),
	}

	// Без цены premium_free перенос невозможен
	if plan := PlanRedistribution(standard, nil); plan != nil {
		t.Error("expected no plan without target bucket price")
	}
}

func TestPlanRedistribution_PicksLastWithPrice(t *testing.T) {
	withTarget := pricesFor(models.BucketStandard, models.BucketPremiumFree)
	withoutTarget := pricesFor(models.BucketStandard)
	standard := []*runListing{
		standardListing("L1", withTarget),
		standardListing("L2", withoutTarget),
	}

	plan := PlanRedistribution(standard, nil)
	if plan == nil {
		t.Fatal("expected redistribution plan")
	}
	if plan.Listing.listing.ID != "L1" {
		t.Errorf("expected last listing with target price, got %s", plan.Listing.listing.ID)
	}
}
