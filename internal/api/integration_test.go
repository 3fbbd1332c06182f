package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"keyward/internal/config"
	"keyward/internal/crypto"
	"keyward/internal/database"
	"keyward/internal/models"
	"keyward/internal/store"
)

func TestLicenseLifecycle(t *testing.T) {
	ctx := context.Background()

	dbName := "keyward_test"
	dbUser := "user"
	dbPassword := "password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %s", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %s", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := config.Config{
		DatabaseURL: connStr,
		AdminSecret: "test-secret",
		SyncDir:     t.TempDir(),
		RateLimitAdmin: config.RateLimitConfig{
			Enabled: false,
		},
		RateLimitDevice: config.RateLimitConfig{
			Enabled: false,
		},
		TrustedProxies: []string{"127.0.0.1"},
	}

	absPath, _ := filepath.Abs("../../migrations")
	err = database.Migrate(cfg.DatabaseURL, absPath)
	require.NoError(t, err)

	pool, err := database.New(ctx, cfg.DatabaseURL)
	require.NoError(t, err)
	defer pool.Close()

	ps := store.NewPostgresProductStore(pool)
	ls := store.NewPostgresLicenseStore(pool)
	rs := store.NewPostgresRegistrationStore(pool)
	cs := store.NewPostgresCustomerStore(pool)
	logs := store.NewPostgresLogStore(pool)
	statsStore := store.NewPostgresStatsStore(pool)
	syncStore := store.NewFileSyncStore(cfg.SyncDir)

	server := NewServer(cfg, pool, ps, ls, rs, cs, logs, statsStore, syncStore)

	// Generate JWT for auth
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "test-admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(cfg.AdminSecret))
	require.NoError(t, err)
	authHeader := "Bearer " + tokenString

	adminJSON := func(method, url string, reqBody map[string]interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if reqBody != nil {
			b, _ := json.Marshal(reqBody)
			buf.Write(b)
		}
		req, _ := http.NewRequest(method, url, &buf)
		req.Header.Set("Authorization", authHeader)
		w := httptest.NewRecorder()
		server.Router.ServeHTTP(w, req)
		return w
	}

	validate := func(apiKey, payload string) *httptest.ResponseRecorder {
		b, _ := json.Marshal(map[string]string{"apiKey": apiKey, "payload": payload})
		req, _ := http.NewRequest("POST", "/api/v1/validate", bytes.NewBuffer(b))
		w := httptest.NewRecorder()
		server.Router.ServeHTTP(w, req)
		return w
	}

	// Step 1: Create Product
	t.Log("Step 1: Create Product")
	var product models.Product
	{
		w := adminJSON("POST", "/admin/products", map[string]interface{}{
			"name":     "Integration Test Product",
			"category": "Desktop",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &product))
		require.NotEmpty(t, product.APIKey)
		require.NotEmpty(t, product.PublicKey)
	}

	// Step 2: Create Customer
	t.Log("Step 2: Create Customer")
	var customer models.Customer
	{
		w := adminJSON("POST", "/admin/customers", map[string]interface{}{
			"name":  "Integration Customer",
			"email": "integration@example.com",
			"phone": "12345678901",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &customer))
	}

	// Step 3: Create a single-seat license
	t.Log("Step 3: Create License")
	var license models.License
	{
		w := adminJSON("POST", "/admin/products/"+product.ID.String()+"/licenses", map[string]interface{}{
			"customer_id": customer.ID.String(),
			"max_devices": 1,
			"expiry_type": models.ExpiryFixedDate,
			"expiry_date": 0,
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var resp struct {
			Licenses []models.License `json:"licenses"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Licenses, 1)
		license = resp.Licenses[0]
		require.Len(t, license.SerialKey, 20)
	}

	payloadA, err := crypto.Encrypt(license.SerialKey, "hwid-aaa", product.PublicKey)
	require.NoError(t, err)
	payloadB, err := crypto.Encrypt(license.SerialKey, "hwid-bbb", product.PublicKey)
	require.NoError(t, err)

	// Step 4: First validation admits the device
	t.Log("Step 4: First validation admits the device")
	{
		w := validate(product.APIKey, payloadA)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "201", resp["HttpCode"])
		assert.Equal(t, "SUCCESS", resp["Code"])
		assert.Equal(t, license.SerialKey, resp["SerialKey"])
		assert.Equal(t, "hwid-aaa", resp["HardwareID"])
		assert.Equal(t, float64(-1), resp["ExpirationDate"]) // perpetual
	}

	// Step 5: Second validation from the same device renews
	t.Log("Step 5: Renewal from the same device")
	{
		w := validate(product.APIKey, payloadA)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "OKAY", resp["Code"])
	}

	// Step 6: A second device is turned away - the only seat is taken
	t.Log("Step 6: Second device exceeds the quota")
	{
		w := validate(product.APIKey, payloadB)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ERR_KEY_DEVICES_FULL", resp["Code"])
	}

	// Step 7: The registered device syncs data
	t.Log("Step 7: Sync upload")
	{
		b, _ := json.Marshal(map[string]interface{}{
			"apiKey":   product.APIKey,
			"payload":  payloadA,
			"jsonData": map[string]interface{}{"progress": 7},
		})
		req, _ := http.NewRequest("POST", "/api/v1/sync", bytes.NewBuffer(b))
		w := httptest.NewRecorder()
		server.Router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "SUCCESS", resp["Code"])
	}

	// Step 8: Unlink the device, freeing the seat for the second device
	t.Log("Step 8: Unlink and re-admit")
	{
		w := adminJSON("DELETE", "/admin/licenses/"+license.ID.String()+"/devices/hwid-aaa", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w2 := validate(product.APIKey, payloadB)
		require.Equal(t, http.StatusCreated, w2.Code)
	}

	// Step 9: Revoke the license; the bound device still renews, a new one
	// is rejected with the revocation code
	t.Log("Step 9: Revoke")
	{
		w := adminJSON("POST", "/admin/licenses/"+license.ID.String()+"/state", map[string]interface{}{
			"action": "SWITCHSTATE",
		})
		require.Equal(t, http.StatusOK, w.Code)

		wRenew := validate(product.APIKey, payloadB)
		require.Equal(t, http.StatusOK, wRenew.Code)

		wNew := validate(product.APIKey, payloadA)
		require.Equal(t, http.StatusForbidden, wNew.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(wNew.Body.Bytes(), &resp))
		assert.Equal(t, "ERR_KEY_REVOKED", resp["Code"])
	}

	// Step 10: Audit trails exist for both surfaces
	t.Log("Step 10: Verify logs")
	{
		// Changelog writes are asynchronous; give them a moment to land.
		time.Sleep(200 * time.Millisecond)

		w := adminJSON("GET", "/admin/logs/validation?serial_key="+license.SerialKey, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp models.PaginatedList[models.ValidationLog]
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		// Admission, renewal, quota rejection, re-admission, renewal,
		// revocation rejection all leave rows.
		assert.GreaterOrEqual(t, len(resp.Items), 6)

		wAdmin := adminJSON("GET", "/admin/logs/changelog?actor=test-admin", nil)
		require.Equal(t, http.StatusOK, wAdmin.Code)
		var adminResp models.PaginatedList[models.Changelog]
		require.NoError(t, json.Unmarshal(wAdmin.Body.Bytes(), &adminResp))
		assert.NotEmpty(t, adminResp.Items, "Should have changelog entries")
	}

	// Step 11: Dashboard stats reflect the lifecycle
	t.Log("Step 11: Dashboard stats")
	{
		w := adminJSON("GET", "/admin/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var stats models.DashboardStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, 1, stats.TotalProducts)
		assert.Equal(t, 1, stats.TotalLicenses)
		assert.GreaterOrEqual(t, stats.FailedValidations, 2)
	}
}
