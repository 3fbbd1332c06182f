package service

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"keyward/internal/crypto"
	"keyward/internal/models"
	"keyward/internal/store"
)

type syncFixture struct {
	syncer        *Syncer
	products      *MockProductStore
	licenses      *MockLicenseStore
	registrations *MockRegistrationStore
	files         *store.FileSyncStore
	product       *models.Product
	license       *models.License
	payload       string
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	publicKey, privateKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	product := &models.Product{ID: uuid.New(), APIKey: testAPIKey, PublicKey: publicKey, PrivateKey: privateKey}
	license := testLicense(product)
	license.Status = models.StatusActive
	license.Devices = 1

	payload, err := crypto.Encrypt(testSerialKey, testHWID, publicKey)
	require.NoError(t, err)

	f := &syncFixture{
		products:      new(MockProductStore),
		licenses:      new(MockLicenseStore),
		registrations: new(MockRegistrationStore),
		files:         store.NewFileSyncStore(t.TempDir()),
		product:       product,
		license:       license,
		payload:       payload,
	}
	f.syncer = NewSyncer(f.products, f.licenses, f.registrations, f.files)
	return f
}

func TestSync_StoresPayload(t *testing.T) {
	f := newSyncFixture(t)
	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(f.license, nil)
	f.registrations.On("GetRegistration", mock.Anything, f.license.ID.String(), testHWID).Return(&models.Registration{
		ID: uuid.New(), LicenseID: f.license.ID, HardwareID: testHWID,
	}, nil)

	data := json.RawMessage(`{"settings":{"theme":"dark"},"counter":42}`)
	outcome := f.syncer.Sync(context.Background(), testAPIKey, f.payload, data)

	assert.Equal(t, http.StatusOK, outcome.HTTPStatus)
	assert.Equal(t, CodeSuccess, outcome.Code)

	dir := filepath.Join(f.files.Root, f.product.ID.String(), f.license.ID.String(), testHWID)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	stored, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(stored, &roundTrip))
	assert.Equal(t, float64(42), roundTrip["counter"])
}

func TestSync_UnregisteredDevice(t *testing.T) {
	f := newSyncFixture(t)
	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(f.license, nil)
	f.registrations.On("GetRegistration", mock.Anything, f.license.ID.String(), testHWID).Return(nil, store.ErrNotFound)

	outcome := f.syncer.Sync(context.Background(), testAPIKey, f.payload, json.RawMessage(`{"a":1}`))

	// Sync never admits devices; an unknown hardware ID is turned away.
	assert.Equal(t, http.StatusUnauthorized, outcome.HTTPStatus)
	assert.Equal(t, CodeHWID, outcome.Code)
}

func TestSync_EmptyJSONData(t *testing.T) {
	f := newSyncFixture(t)
	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(f.license, nil)
	f.registrations.On("GetRegistration", mock.Anything, f.license.ID.String(), testHWID).Return(&models.Registration{
		ID: uuid.New(), LicenseID: f.license.ID, HardwareID: testHWID,
	}, nil)

	for _, data := range []json.RawMessage{nil, json.RawMessage(""), json.RawMessage("null"), json.RawMessage("  ")} {
		outcome := f.syncer.Sync(context.Background(), testAPIKey, f.payload, data)
		assert.Equal(t, http.StatusBadRequest, outcome.HTTPStatus)
		assert.Equal(t, CodeNoData, outcome.Code)
	}
}

func TestSync_InvalidAPIKey(t *testing.T) {
	f := newSyncFixture(t)
	f.products.On("GetProductByAPIKey", mock.Anything, "bogus").Return(nil, store.ErrNotFound)

	outcome := f.syncer.Sync(context.Background(), "bogus", f.payload, json.RawMessage(`{"a":1}`))

	assert.Equal(t, http.StatusUnauthorized, outcome.HTTPStatus)
	assert.Equal(t, CodeAPIKey, outcome.Code)
}
