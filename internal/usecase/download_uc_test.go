//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"resource-marketplace/internal/domain"
	"resource-marketplace/internal/domain/model"
	"resource-marketplace/internal/infra/token"
	"resource-marketplace/internal/usecase"
)

type downloadDeps struct {
	purchases *MockPurchaseRepo
	tokens    *token.Issuer
	uc        usecase.DownloadUseCase
}

func newDownloadDeps() *downloadDeps {
	d := &downloadDeps{
		purchases: NewMockPurchaseRepo(),
		tokens:    token.NewIssuer("unit-test-token-secret"),
	}
	catalog := NewMockCatalog()
	catalog.Add(&model.Resource{
		ID: "res-1", Slug: "pro-theme", Title: "Pro Theme",
		IsPublished: true, FileKey: "themes/pro.zip",
	})
	d.uc = usecase.NewDownloadUseCase(d.purchases, catalog, d.tokens, newTestLogger())
	return d
}

func TestDownload_Authorize(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token for the owner streams the file", func(t *testing.T) {
		d := newDownloadDeps()
		d.purchases.Seed(completedPurchase())
		tok, _, err := d.tokens.Issue("pur-1", "user-1", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}

		grant, err := d.uc.Authorize(ctx, "pro-theme", tok)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if grant.FileKey != "themes/pro.zip" {
			t.Errorf("unexpected file key: %q", grant.FileKey)
		}
		if grant.FileName != "pro.zip" {
			t.Errorf("unexpected file name: %q", grant.FileName)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		d := newDownloadDeps()
		d.purchases.Seed(completedPurchase())
		tok, _, err := d.tokens.Issue("pur-1", "user-1", -time.Minute)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}

		if _, err := d.uc.Authorize(ctx, "pro-theme", tok); !errors.Is(err, domain.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got: %v", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		d := newDownloadDeps()
		if _, err := d.uc.Authorize(ctx, "pro-theme", "not.a.jwt"); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got: %v", err)
		}
	})

	t.Run("token signed with a different key", func(t *testing.T) {
		d := newDownloadDeps()
		d.purchases.Seed(completedPurchase())
		other := token.NewIssuer("some-other-secret")
		tok, _, err := other.Issue("pur-1", "user-1", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}

		if _, err := d.uc.Authorize(ctx, "pro-theme", tok); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got: %v", err)
		}
	})

	t.Run("token user does not own the purchase", func(t *testing.T) {
		d := newDownloadDeps()
		d.purchases.Seed(completedPurchase())
		tok, _, err := d.tokens.Issue("pur-1", "user-2", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}

		if _, err := d.uc.Authorize(ctx, "pro-theme", tok); !errors.Is(err, domain.ErrDownloadForbidden) {
			t.Fatalf("expected ErrDownloadForbidden, got: %v", err)
		}
	})

	t.Run("revoked license is rejected", func(t *testing.T) {
		d := newDownloadDeps()
		pu := completedPurchase()
		pu.LicenseStatus = model.LicenseStatusRevoked
		d.purchases.Seed(pu)
		tok, _, err := d.tokens.Issue("pur-1", "user-1", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}

		if _, err := d.uc.Authorize(ctx, "pro-theme", tok); !errors.Is(err, domain.ErrDownloadForbidden) {
			t.Fatalf("expected ErrDownloadForbidden, got: %v", err)
		}
	})

	t.Run("slug mismatch is rejected", func(t *testing.T) {
		d := newDownloadDeps()
		d.purchases.Seed(completedPurchase())
		tok, _, err := d.tokens.Issue("pur-1", "user-1", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}

		if _, err := d.uc.Authorize(ctx, "another-resource", tok); !errors.Is(err, domain.ErrDownloadForbidden) {
			t.Fatalf("expected ErrDownloadForbidden, got: %v", err)
		}
	})

	t.Run("purchase no longer exists", func(t *testing.T) {
		d := newDownloadDeps()
		tok, _, err := d.tokens.Issue("pur-gone", "user-1", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}

		if _, err := d.uc.Authorize(ctx, "pro-theme", tok); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})
}
