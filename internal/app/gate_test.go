package app_test

import (
	"errors"
	"testing"

	"github.com/ciclogit/opskernel/internal/app"
	"github.com/ciclogit/opskernel/internal/domain"
)

func dispatchDef(t *testing.T) domain.OperationDefinition {
	t.Helper()
	catalog, err := domain.DefaultCatalog()
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	def, err := catalog.Lookup(domain.OpMarketDispatchConfirm)
	if err != nil {
		t.Fatalf("looking up operation: %v", err)
	}
	return def
}

func TestAuthorize_AllowedRoleSameTenant(t *testing.T) {
	def := dispatchDef(t)
	p := domain.Principal{ID: "usr-1", Role: domain.RoleSupplier, TenantID: "tnt-1"}
	target := domain.Entity{TenantID: "tnt-1", Kind: domain.KindOrder}

	if err := (app.Gate{}).Authorize(p, def, target); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthorize_RoleNotInSet(t *testing.T) {
	def := dispatchDef(t)
	p := domain.Principal{ID: "usr-1", Role: domain.RoleProducer, TenantID: "tnt-1"}
	target := domain.Entity{TenantID: "tnt-1", Kind: domain.KindOrder}

	err := (app.Gate{}).Authorize(p, def, target)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorize_UnknownRole(t *testing.T) {
	def := dispatchDef(t)
	p := domain.Principal{ID: "usr-1", Role: "auditor", TenantID: "tnt-1"}
	target := domain.Entity{TenantID: "tnt-1", Kind: domain.KindOrder}

	if err := (app.Gate{}).Authorize(p, def, target); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorize_CrossTenantDeniedEvenForAdmin(t *testing.T) {
	def := dispatchDef(t)
	p := domain.Principal{ID: "usr-1", Role: domain.RoleAdmin, TenantID: "tnt-1"}
	target := domain.Entity{TenantID: "tnt-2", Kind: domain.KindOrder}

	err := (app.Gate{}).Authorize(p, def, target)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorize_EmptyTenantDenied(t *testing.T) {
	def := dispatchDef(t)
	p := domain.Principal{ID: "usr-1", Role: domain.RoleAdmin}
	target := domain.Entity{Kind: domain.KindOrder}

	if err := (app.Gate{}).Authorize(p, def, target); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthorize_DenialIsGeneric(t *testing.T) {
	def := dispatchDef(t)
	roleDenied := (app.Gate{}).Authorize(domain.Principal{ID: "u", Role: domain.RoleProducer, TenantID: "tnt-1"}, def, domain.Entity{TenantID: "tnt-1"})
	tenantDenied := (app.Gate{}).Authorize(domain.Principal{ID: "u", Role: domain.RoleAdmin, TenantID: "tnt-1"}, def, domain.Entity{TenantID: "tnt-2"})

	if roleDenied.Error() != tenantDenied.Error() {
		t.Errorf("denial reasons must be indistinguishable: %q vs %q", roleDenied, tenantDenied)
	}
}
