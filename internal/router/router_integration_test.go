//go:build integration

package router_test

// End-to-end tests against real Postgres and Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/config"
	"sourcedpos/internal/dto"
	"sourcedpos/internal/infra"
	"sourcedpos/internal/middleware"
	"sourcedpos/internal/model"
	"sourcedpos/internal/router"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

const jwtSecret = "e2e-secret"

type testEnv struct {
	server *httptest.Server
	db     *gorm.DB
	tokens map[string]string // by role
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.Run(ctx, "postgres:16-alpine",
		tcPostgres.WithDatabase("sourced_test"),
		tcPostgres.WithUsername("sourced"),
		tcPostgres.WithPassword("sourced"),
		tcPostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pgC)
	require.NoError(t, err)

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, rdC)
	require.NoError(t, err)

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:                   "test",
		JWTSecret:             jwtSecret,
		JWTExpirationHours:    1,
		DatabaseURL:           pgURL,
		RedisURL:              rdURL,
		RateLimitPerMinute:    10_000,
		MetricsNamespace:      "sourcedpos_e2e",
		CommissionEnabled:     true,
		CommissionDefaultRate: 5,
		CommissionBasis:       model.CommissionBasisRevenue,
		LowStockAlerts:        true,
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL, false)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(ctx, cfg.RedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	appCtx, stop := context.WithCancel(ctx)
	t.Cleanup(stop)
	srv := httptest.NewServer(router.New(appCtx, cfg, db, rdb))
	t.Cleanup(srv.Close)

	env := &testEnv{server: srv, db: db, tokens: map[string]string{}}
	for _, role := range []string{authz.RoleStaff, authz.RoleManager, authz.RoleOwner} {
		env.tokens[role] = mintToken(t, "e2e-"+role, role)
	}
	return env
}

func mintToken(t *testing.T, staffID, role string) string {
	t.Helper()
	claims := middleware.JWTClaims{
		StaffID: staffID,
		Name:    "E2E " + role,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, role, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok := e.tokens[role]; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func (e *testEnv) seedProduct(t *testing.T, p model.Product) model.Product {
	t.Helper()
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e *testEnv) stock(t *testing.T, id int64) int {
	t.Helper()
	var p model.Product
	require.NoError(t, e.db.First(&p, id).Error)
	return p.StockQuantity
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestE2E(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("health", func(t *testing.T) {
		resp := env.do(t, "", http.MethodGet, "/health", nil)
		var body map[string]any
		decodeJSON(t, resp, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "connected", body["db"])
		assert.Equal(t, "connected", body["redis"])
	})

	t.Run("unauthenticated", func(t *testing.T) {
		resp := env.do(t, "", http.MethodGet, "/v1/sales", nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("commit edit void cycle", func(t *testing.T) {
		supplier := model.Supplier{Name: "Estate Consignor", Active: true}
		require.NoError(t, env.db.Create(&supplier).Error)

		ring := env.seedProduct(t, model.Product{
			SKU: "E2E-RING", Name: "Gold ring", UnitPrice: money("100"), UnitCost: money("40"),
			TaxRate: money("20"), StockQuantity: 5, ReorderLevel: 1, TrackStock: true, Active: true,
		})
		brooch := env.seedProduct(t, model.Product{
			SKU: "E2E-BROOCH", Name: "Consigned brooch", UnitPrice: money("250"), UnitCost: money("150"),
			StockQuantity: 1, TrackStock: true, IsConsignment: true, SupplierID: &supplier.ID, Active: true,
		})

		resp := env.do(t, authz.RoleStaff, http.MethodPost, "/v1/sales", map[string]any{
			"items": []map[string]any{
				{"product_id": ring.ID, "quantity": 2},
				{"product_id": brooch.ID, "quantity": 1},
			},
			"discount":       map[string]any{"type": "percentage", "value": "10"},
			"part_exchanges": []map[string]any{{"title": "Old chain", "allowance": "50"}},
			"payment":        "cash",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var sale dto.SaleResponse
		decodeJSON(t, resp, &sale)

		// 450 subtotal, 45 off, tax 20% on the ring's 180 after its share of the discount.
		assert.True(t, money("450").Equal(sale.Subtotal), sale.Subtotal.String())
		assert.True(t, money("45").Equal(sale.DiscountTotal))
		assert.True(t, money("36").Equal(sale.TaxTotal))
		assert.True(t, money("441").Equal(sale.Total))
		assert.True(t, money("391").Equal(sale.NetTotal))
		require.Len(t, sale.Settlements, 1)
		assert.True(t, money("150").Equal(sale.Settlements[0].PayoutAmount))

		assert.Equal(t, 3, env.stock(t, ring.ID))
		assert.Equal(t, 0, env.stock(t, brooch.ID))

		var ringItem dto.SaleItemResponse
		for _, it := range sale.Items {
			if it.ProductID == ring.ID {
				ringItem = it
			}
		}

		// Staff cannot edit.
		editBody := map[string]any{
			"version": sale.Version,
			"lines": []map[string]any{{
				"item_id":    ringItem.ID,
				"original":   map[string]any{"quantity": ringItem.Quantity, "unit_price": ringItem.UnitPrice, "discount": ringItem.Discount},
				"quantity":   3,
				"unit_price": ringItem.UnitPrice,
				"discount":   ringItem.Discount,
			}},
			"reason": "added a ring",
		}
		resp = env.do(t, authz.RoleStaff, http.MethodPatch, fmt.Sprintf("/v1/sales/%d", sale.ID), editBody)
		resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = env.do(t, authz.RoleManager, http.MethodPatch, fmt.Sprintf("/v1/sales/%d", sale.ID), editBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var edited dto.EditSaleResponse
		decodeJSON(t, resp, &edited)
		assert.True(t, edited.HasChanges)
		assert.Equal(t, 2, edited.Sale.Version)
		assert.Equal(t, 2, env.stock(t, ring.ID))

		// Replaying the same edit is now stale.
		resp = env.do(t, authz.RoleManager, http.MethodPatch, fmt.Sprintf("/v1/sales/%d", sale.ID), editBody)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		resp = env.do(t, authz.RoleOwner, http.MethodPost, fmt.Sprintf("/v1/sales/%d/void", sale.ID),
			map[string]any{"reason": "customer returned everything"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var voided dto.SaleResponse
		decodeJSON(t, resp, &voided)
		assert.True(t, voided.IsVoided)

		assert.Equal(t, 5, env.stock(t, ring.ID))
		assert.Equal(t, 1, env.stock(t, brooch.ID))

		var cashSum decimal.Decimal
		require.NoError(t, env.db.Model(&model.CashMovement{}).
			Select("COALESCE(SUM(amount), 0)").Where("sale_id = ?", sale.ID).Scan(&cashSum).Error)
		assert.True(t, cashSum.IsZero(), cashSum.String())

		var settlement model.ConsignmentSettlement
		require.NoError(t, env.db.Where("sale_id = ?", sale.ID).First(&settlement).Error)
		assert.NotNil(t, settlement.CancelledAt)

		var audits int64
		require.NoError(t, env.db.Model(&model.SaleAuditEntry{}).Where("sale_id = ?", sale.ID).Count(&audits).Error)
		assert.EqualValues(t, 3, audits)

		resp = env.do(t, authz.RoleOwner, http.MethodPost, fmt.Sprintf("/v1/sales/%d/void", sale.ID),
			map[string]any{"reason": "again"})
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		resp = env.do(t, authz.RoleStaff, http.MethodGet, fmt.Sprintf("/v1/sales/%d", sale.ID), nil)
		var fetched dto.SaleResponse
		decodeJSON(t, resp, &fetched)
		assert.True(t, fetched.IsVoided)
		assert.Len(t, fetched.Items, 2)
	})

	t.Run("concurrent oversell of the last unit", func(t *testing.T) {
		last := env.seedProduct(t, model.Product{
			SKU: "E2E-LAST", Name: "Last pendant", UnitPrice: money("80"), UnitCost: money("30"),
			StockQuantity: 1, TrackStock: true, Active: true,
		})
		body := map[string]any{
			"items":   []map[string]any{{"product_id": last.ID, "quantity": 1}},
			"payment": "card",
		}

		var wg sync.WaitGroup
		codes := make([]int, 2)
		for i := range codes {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var buf bytes.Buffer
				_ = json.NewEncoder(&buf).Encode(body)
				req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/v1/sales", &buf)
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("Authorization", "Bearer "+env.tokens[authz.RoleStaff])
				resp, err := env.server.Client().Do(req)
				if err != nil {
					return
				}
				resp.Body.Close()
				codes[i] = resp.StatusCode
			}(i)
		}
		wg.Wait()

		assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)
		assert.Equal(t, 0, env.stock(t, last.ID))

		var sales int64
		require.NoError(t, env.db.Model(&model.SaleLineItem{}).Where("product_id = ?", last.ID).Count(&sales).Error)
		assert.EqualValues(t, 1, sales)
	})

	t.Run("summary excludes voided", func(t *testing.T) {
		resp := env.do(t, authz.RoleStaff, http.MethodGet, "/v1/sales/summary?voided=all", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var sum dto.SaleSummaryResponse
		decodeJSON(t, resp, &sum)
		// Only the pendant sale is still active.
		assert.EqualValues(t, 1, sum.Count)
		assert.True(t, money("80").Equal(sum.Total), sum.Total.String())
	})
}
