package services

import (
	"context"
	"errors"
	"testing"

	"github.com/athebyme/gomarket-platform/pricing-service/internal/adapters/marketplace"
	"github.com/athebyme/gomarket-platform/pricing-service/internal/domain/models"
)

func donorListing() *models.Listing {
	return &models.Listing{
		ID:           "L1",
		SKU:          "SKU-1",
		Title:        "Produto Teste",
		CategoryID:   "MLB1234",
		ExposureTier: models.ExposureStandard,
		Status:       models.ListingActive,
		Pictures: []models.Picture{
			{ID: "p1", Width: 100, Height: 100},
			{ID: "p2", Width: 800, Height: 600},
		},
		Attributes: map[string]string{"BRAND": "Acme"},
	}
}

func replicaAccount() *models.Account {
	return &models.Account{
		ID:          "acc-1",
		ShortName:   "main",
		Marketplace: models.MarketplaceMeli,
		Policy:      models.PricingPolicy{CanReplicate: true, DefaultStock: 25},
	}
}

func TestReplicate_BuildsDraftFromDonor(t *testing.T) {
	client := newFakeClient()
	client.createID = "NEW1"
	client.desc["L1"] = "описание донора"
	r := NewReplicator(nopLogger{})

	listing, err := r.Replicate(context.Background(), client, "token", donorListing(), replicaAccount(), models.BucketPremium, d("120.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if listing.ID != "NEW1" {
		t.Errorf("expected new listing id NEW1, got %s", listing.ID)
	}
	if listing.ExposureTier != models.ExposurePremium {
		t.Errorf("expected premium tier from target bucket, got %s", listing.ExposureTier)
	}
	if listing.FulfillmentMode != models.FulfillmentDropOff {
		t.Errorf("expected drop_off fulfillment, got %s", listing.FulfillmentMode)
	}
	if listing.Status != models.ListingActive {
		t.Errorf("expected active status, got %s", listing.Status)
	}

	draft := client.lastDraft
	if draft == nil {
		t.Fatal("expected draft captured")
	}
	if !draft.Price.Equal(d("120.00")) {
		t.Errorf("expected draft price 120.00, got %s", draft.Price)
	}
	if draft.AvailableQuantity != 25 {
		t.Errorf("expected default stock 25, got %d", draft.AvailableQuantity)
	}
	if draft.Attributes["BRAND"] != "Acme" {
		t.Error("expected donor attributes carried over")
	}

	if !client.called("SetDescription:NEW1") {
		t.Error("expected donor description copied")
	}
}

func TestReplicate_TierFallsBackToDonor(t *testing.T) {
	client := newFakeClient()
	client.createID = "NEW1"
	r := NewReplicator(nopLogger{})

	// У корзины full нет целевой экспозиции: берется экспозиция донора
	listing, err := r.Replicate(context.Background(), client, "token", donorListing(), replicaAccount(), models.BucketFull, d("100.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listing.ExposureTier != models.ExposureStandard {
		t.Errorf("expected donor tier standard, got %s", listing.ExposureTier)
	}
}

func TestReplicate_CreateFailure(t *testing.T) {
	client := newFakeClient()
	client.createErr = &marketplace.RemoteError{StatusCode: 400, Message: "invalid category"}
	r := NewReplicator(nopLogger{})

	listing, err := r.Replicate(context.Background(), client, "token", donorListing(), replicaAccount(), models.BucketPremium, d("120.00"))
	if listing != nil {
		t.Error("expected no listing on create failure")
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestReplicate_DescriptionCopyFailureKeepsListing(t *testing.T) {
	client := newFakeClient()
	client.createID = "NEW1"
	client.desc["L1"] = "описание донора"
	client.setDescErr = &marketplace.RemoteError{StatusCode: 500, Message: "backend error"}
	r := NewReplicator(nopLogger{})

	listing, err := r.Replicate(context.Background(), client, "token", donorListing(), replicaAccount(), models.BucketPremium, d("120.00"))
	if listing == nil {
		t.Fatal("listing must survive description copy failure")
	}
	if !errors.Is(err, ErrDescriptionCopy) {
		t.Errorf("expected ErrDescriptionCopy, got %v", err)
	}
}

func TestReplicate_SkipsFetchWhenDonorHasDescription(t *testing.T) {
	client := newFakeClient()
	client.createID = "NEW1"
	donor := donorListing()
	donor.Description = "уже загружено"
	r := NewReplicator(nopLogger{})

	if _, err := r.Replicate(context.Background(), client, "token", donor, replicaAccount(), models.BucketPremium, d("120.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.called("GetDescription:L1") {
		t.Error("description must not be re-fetched when donor already carries it")
	}
	if !client.called("SetDescription:NEW1") {
		t.Error("expected description written to replica")
	}
}

func TestReplicate_EmptyDescriptionSkipsWrite(t *testing.T) {
	client := newFakeClient()
	client.createID = "NEW1"
	r := NewReplicator(nopLogger{})

	listing, err := r.Replicate(context.Background(), client, "token", donorListing(), replicaAccount(), models.BucketPremium, d("120.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listing == nil {
		t.Fatal("expected listing")
	}
	if client.called("SetDescription:NEW1") {
		t.Error("empty description must not be written")
	}
}

func TestFilterReplicaPictures(t *testing.T) {
	tests := []struct {
		name     string
		pictures []models.Picture
		wantIDs  []string
	}{
		{
			name: "first kept unconditionally",
			pictures: []models.Picture{
				{ID: "p1", Width: 10, Height: 10},
			},
			wantIDs: []string{"p1"},
		},
		{
			name: "small extras dropped",
			pictures: []models.Picture{
				{ID: "p1", Width: 10, Height: 10},
				{ID: "p2", Width: 400, Height: 200},
			},
			wantIDs: []string{"p1"},
		},
		{
			name: "landscape extra kept",
			pictures: []models.Picture{
				{ID: "p1", Width: 10, Height: 10},
				{ID: "p2", Width: 500, Height: 250},
			},
			wantIDs: []string{"p1", "p2"},
		},
		{
			name: "portrait extra kept",
			pictures: []models.Picture{
				{ID: "p1", Width: 10, Height: 10},
				{ID: "p2", Width: 250, Height: 500},
			},
			wantIDs: []string{"p1", "p2"},
		},
		{
			name: "one long side is not enough",
			pictures: []models.Picture{
				{ID: "p1", Width: 10, Height: 10},
				{ID: "p2", Width: 900, Height: 100},
			},
			wantIDs: []string{"p1"},
		},
		{
			name:     "no pictures",
			pictures: nil,
			wantIDs:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept := filterReplicaPictures(tt.pictures)
			if len(kept) != len(tt.wantIDs) {
				t.Fatalf("expected %d pictures, got %d", len(tt.wantIDs), len(kept))
			}
			for i, id := range tt.wantIDs {
				if kept[i].ID != id {
					t.Errorf("position %d: expected %s, got %s", i, id, kept[i].ID)
				}
			}
		})
	}
}
