package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"keyward/internal/crypto"
	"keyward/internal/models"
	"keyward/internal/store"
)

// MockProductStore is a mock implementation of store.ProductStore
type MockProductStore struct {
	mock.Mock
}

func (m *MockProductStore) ListProducts(ctx context.Context, pagination models.PaginationParams) ([]models.Product, int, error) {
	args := m.Called(ctx, pagination)
	return args.Get(0).([]models.Product), args.Int(1), args.Error(2)
}

func (m *MockProductStore) CreateProduct(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductStore) GetProductByAPIKey(ctx context.Context, apiKey string) (*models.Product, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductStore) UpdateProduct(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductStore) DeleteProduct(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockLicenseStore is a mock implementation of store.LicenseStore
type MockLicenseStore struct {
	mock.Mock
}

func (m *MockLicenseStore) CreateLicense(ctx context.Context, license *models.License) error {
	args := m.Called(ctx, license)
	return args.Error(0)
}

func (m *MockLicenseStore) GetLicense(ctx context.Context, id string) (*models.License, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.License), args.Error(1)
}

func (m *MockLicenseStore) GetLicenseBySerial(ctx context.Context, serialKey string, productID string) (*models.License, error) {
	args := m.Called(ctx, serialKey, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.License), args.Error(1)
}

func (m *MockLicenseStore) ListLicensesByProduct(ctx context.Context, productID string, pagination models.PaginationParams) ([]models.License, int, error) {
	args := m.Called(ctx, productID, pagination)
	return args.Get(0).([]models.License), args.Int(1), args.Error(2)
}

func (m *MockLicenseStore) SetStatus(ctx context.Context, id string, status models.LicenseStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockLicenseStore) AdmitDevice(ctx context.Context, licenseID string, hardwareID string, now time.Time) error {
	args := m.Called(ctx, licenseID, hardwareID, now)
	return args.Error(0)
}

func (m *MockLicenseStore) ResetLicense(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLicenseStore) DeleteLicense(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLicenseStore) DeleteExpiredLicenses(ctx context.Context, productID string) (int, error) {
	args := m.Called(ctx, productID)
	return args.Int(0), args.Error(1)
}

// MockRegistrationStore is a mock implementation of store.RegistrationStore
type MockRegistrationStore struct {
	mock.Mock
}

func (m *MockRegistrationStore) GetRegistration(ctx context.Context, licenseID string, hardwareID string) (*models.Registration, error) {
	args := m.Called(ctx, licenseID, hardwareID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Registration), args.Error(1)
}

func (m *MockRegistrationStore) ListRegistrations(ctx context.Context, licenseID string) ([]models.Registration, error) {
	args := m.Called(ctx, licenseID)
	return args.Get(0).([]models.Registration), args.Error(1)
}

func (m *MockRegistrationStore) DeleteRegistration(ctx context.Context, licenseID string, hardwareID string) error {
	args := m.Called(ctx, licenseID, hardwareID)
	return args.Error(0)
}

// MockLogStore is a mock implementation of store.LogStore
type MockLogStore struct {
	mock.Mock
}

func (m *MockLogStore) CreateChangelog(ctx context.Context, entry *models.Changelog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLogStore) CreateValidationLog(ctx context.Context, entry *models.ValidationLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLogStore) ListChangelogs(ctx context.Context, filter store.ChangelogFilter, pagination models.PaginationParams) ([]models.Changelog, int, error) {
	args := m.Called(ctx, filter, pagination)
	return args.Get(0).([]models.Changelog), args.Int(1), args.Error(2)
}

func (m *MockLogStore) ListValidationLogs(ctx context.Context, filter store.ValidationLogFilter, pagination models.PaginationParams) ([]models.ValidationLog, int, error) {
	args := m.Called(ctx, filter, pagination)
	return args.Get(0).([]models.ValidationLog), args.Int(1), args.Error(2)
}

type validatorFixture struct {
	validator     *Validator
	products      *MockProductStore
	licenses      *MockLicenseStore
	registrations *MockRegistrationStore
	logs          *MockLogStore
	product       *models.Product
	payload       string
}

const (
	testAPIKey    = "test-api-key"
	testSerialKey = "SERIAL1234567890ABCD"
	testHWID      = "hwid-0001"
)

// newValidatorFixture builds a validator over mocks, plus a product with a
// real RSA pair and a payload encrypted for it, so the envelope step runs
// for real.
func newValidatorFixture(t *testing.T) *validatorFixture {
	t.Helper()

	publicKey, privateKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	product := &models.Product{
		ID:         uuid.New(),
		Name:       "Test Product",
		APIKey:     testAPIKey,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}

	payload, err := crypto.Encrypt(testSerialKey, testHWID, publicKey)
	require.NoError(t, err)

	f := &validatorFixture{
		products:      new(MockProductStore),
		licenses:      new(MockLicenseStore),
		registrations: new(MockRegistrationStore),
		logs:          new(MockLogStore),
		product:       product,
		payload:       payload,
	}
	f.validator = NewValidator(f.products, f.licenses, f.registrations, f.logs)
	return f
}

func (f *validatorFixture) expectAuditRow(code string, result string) {
	f.logs.On("CreateValidationLog", mock.Anything, mock.MatchedBy(func(e *models.ValidationLog) bool {
		return e.Code == code && e.Result == result && e.APIKey == testAPIKey
	})).Return(nil).Once()
}

func testLicense(product *models.Product) *models.License {
	return &models.License{
		ID:         uuid.New(),
		ProductID:  product.ID,
		CustomerID: uuid.New(),
		SerialKey:  testSerialKey,
		Status:     models.StatusInactive,
		Devices:    0,
		MaxDevices: 3,
		ExpiryType: models.ExpiryFixedDate,
		ExpiryDate: 0,
	}
}

func TestValidate_InvalidAPIKey(t *testing.T) {
	f := newValidatorFixture(t)
	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(nil, store.ErrNotFound)
	f.logs.On("CreateValidationLog", mock.Anything, mock.MatchedBy(func(e *models.ValidationLog) bool {
		return e.Code == CodeAPIKey && e.Result == models.ResultError && e.SerialKey == nil && e.HardwareID == nil
	})).Return(nil).Once()

	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")

	assert.Equal(t, http.StatusUnauthorized, outcome.HTTPStatus)
	assert.Equal(t, CodeAPIKey, outcome.Code)
	assert.True(t, outcome.IsError())
	assert.Equal(t, int64(-1), outcome.ExpirationDate)
	f.logs.AssertExpectations(t)
}

func TestValidate_DecryptionFailure(t *testing.T) {
	f := newValidatorFixture(t)

	// Payload encrypted against a different product's key.
	otherPublic, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	wrongPayload, err := crypto.Encrypt(testSerialKey, testHWID, otherPublic)
	require.NoError(t, err)

	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.expectAuditRow(CodePubPrivKey, models.ResultError)

	outcome := f.validator.Validate(context.Background(), testAPIKey, wrongPayload, "192.0.2.1")

	assert.Equal(t, http.StatusUnauthorized, outcome.HTTPStatus)
	assert.Equal(t, CodePubPrivKey, outcome.Code)
	assert.Nil(t, outcome.SerialKey)
	f.logs.AssertExpectations(t)
}

func TestValidate_UnknownSerialKey(t *testing.T) {
	f := newValidatorFixture(t)
	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(nil, store.ErrNotFound)
	f.expectAuditRow(CodeSerialKey, models.ResultError)

	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")

	assert.Equal(t, http.StatusUnauthorized, outcome.HTTPStatus)
	assert.Equal(t, CodeSerialKey, outcome.Code)
	// The decrypted pair is still recorded on the audit row.
	require.NotNil(t, outcome.SerialKey)
	assert.Equal(t, testSerialKey, *outcome.SerialKey)
	require.NotNil(t, outcome.HardwareID)
	assert.Equal(t, testHWID, *outcome.HardwareID)
	f.logs.AssertExpectations(t)
}

func TestValidate_NewDeviceAdmitted(t *testing.T) {
	f := newValidatorFixture(t)
	license := testLicense(f.product)

	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(license, nil)
	f.registrations.On("GetRegistration", mock.Anything, license.ID.String(), testHWID).Return(nil, store.ErrNotFound)
	f.licenses.On("AdmitDevice", mock.Anything, license.ID.String(), testHWID, mock.Anything).Return(nil)
	f.expectAuditRow(CodeSuccess, models.ResultSuccess)

	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")

	assert.Equal(t, http.StatusCreated, outcome.HTTPStatus)
	assert.Equal(t, CodeSuccess, outcome.Code)
	assert.False(t, outcome.IsError())
	assert.Equal(t, int64(-1), outcome.ExpirationDate) // perpetual
	f.licenses.AssertExpectations(t)
	f.logs.AssertExpectations(t)
}

func TestValidate_FirstAdmissionStartsActivationClock(t *testing.T) {
	f := newValidatorFixture(t)
	license := testLicense(f.product)
	license.ExpiryType = models.ExpiryDaysFromActivation
	license.ExpiryDays = 30

	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(license, nil)
	f.registrations.On("GetRegistration", mock.Anything, license.ID.String(), testHWID).Return(nil, store.ErrNotFound)
	f.licenses.On("AdmitDevice", mock.Anything, license.ID.String(), testHWID, mock.Anything).Return(nil)
	f.expectAuditRow(CodeSuccess, models.ResultSuccess)

	before := time.Now().Unix()
	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")
	after := time.Now().Unix()

	assert.Equal(t, http.StatusCreated, outcome.HTTPStatus)
	// Before admission the clock had not started, so the reported expiry
	// must be 30 days from the admission instant, not -1.
	assert.GreaterOrEqual(t, outcome.ExpirationDate, before+30*86400)
	assert.LessOrEqual(t, outcome.ExpirationDate, after+30*86400)
}

func TestValidate_KnownDeviceRenewal(t *testing.T) {
	f := newValidatorFixture(t)
	license := testLicense(f.product)
	license.Status = models.StatusActive
	license.Devices = 1

	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(license, nil)
	f.registrations.On("GetRegistration", mock.Anything, license.ID.String(), testHWID).Return(&models.Registration{
		ID: uuid.New(), LicenseID: license.ID, HardwareID: testHWID,
	}, nil)
	f.expectAuditRow(CodeOkay, models.ResultSuccess)

	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")

	assert.Equal(t, http.StatusOK, outcome.HTTPStatus)
	assert.Equal(t, CodeOkay, outcome.Code)
	// A renewal never touches license state.
	f.licenses.AssertNotCalled(t, "AdmitDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.licenses.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
	f.logs.AssertExpectations(t)
}

func TestValidate_RenewalOnExpiredLicense(t *testing.T) {
	f := newValidatorFixture(t)
	license := testLicense(f.product)
	license.Status = models.StatusActive
	license.Devices = 1
	license.ExpiryDate = time.Now().Add(-time.Hour).Unix()

	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(license, nil)
	f.registrations.On("GetRegistration", mock.Anything, license.ID.String(), testHWID).Return(&models.Registration{
		ID: uuid.New(), LicenseID: license.ID, HardwareID: testHWID,
	}, nil)
	f.licenses.On("SetStatus", mock.Anything, license.ID.String(), models.StatusExpired).Return(nil).Once()
	f.expectAuditRow(CodeKeyExpired, models.ResultError)

	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")

	assert.Equal(t, http.StatusBadRequest, outcome.HTTPStatus)
	assert.Equal(t, CodeKeyExpired, outcome.Code)
	f.licenses.AssertExpectations(t)
	f.logs.AssertExpectations(t)
}

func TestValidate_RevokedLicenseRejectsNewDevice(t *testing.T) {
	f := newValidatorFixture(t)
	license := testLicense(f.product)
	license.Status = models.StatusRevoked

	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(license, nil)
	f.registrations.On("GetRegistration", mock.Anything, license.ID.String(), testHWID).Return(nil, store.ErrNotFound)
	f.expectAuditRow(CodeKeyRevoked, models.ResultError)

	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")

	assert.Equal(t, http.StatusForbidden, outcome.HTTPStatus)
	assert.Equal(t, CodeKeyRevoked, outcome.Code)
	// Revocation wins over expiration and quota; neither is consulted.
	f.licenses.AssertNotCalled(t, "AdmitDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.logs.AssertExpectations(t)
}

func TestValidate_ExpiredLicenseRejectsNewDevice(t *testing.T) {
	f := newValidatorFixture(t)
	license := testLicense(f.product)
	license.ExpiryDate = time.Now().Add(-time.Hour).Unix()

	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(license, nil)
	f.registrations.On("GetRegistration", mock.Anything, license.ID.String(), testHWID).Return(nil, store.ErrNotFound)
	f.licenses.On("SetStatus", mock.Anything, license.ID.String(), models.StatusExpired).Return(nil).Once()
	f.expectAuditRow(CodeKeyExpired, models.ResultError)

	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")

	assert.Equal(t, http.StatusBadRequest, outcome.HTTPStatus)
	assert.Equal(t, CodeKeyExpired, outcome.Code)
	f.licenses.AssertExpectations(t)
}

func TestValidate_DevicesFull(t *testing.T) {
	f := newValidatorFixture(t)
	license := testLicense(f.product)
	license.Status = models.StatusActive
	license.Devices = 3

	f.products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(f.product, nil)
	f.licenses.On("GetLicenseBySerial", mock.Anything, testSerialKey, f.product.ID.String()).Return(license, nil)
	f.registrations.On("GetRegistration", mock.Anything, license.ID.String(), testHWID).Return(nil, store.ErrNotFound)
	f.licenses.On("AdmitDevice", mock.Anything, license.ID.String(), testHWID, mock.Anything).Return(store.ErrDevicesFull)
	f.expectAuditRow(CodeDevicesFull, models.ResultError)

	outcome := f.validator.Validate(context.Background(), testAPIKey, f.payload, "192.0.2.1")

	assert.Equal(t, http.StatusBadRequest, outcome.HTTPStatus)
	assert.Equal(t, CodeDevicesFull, outcome.Code)
	f.logs.AssertExpectations(t)
}

// memLicenseStore is an in-memory LicenseStore whose AdmitDevice performs
// the same conditional increment as the Postgres implementation, so the
// admission race can be exercised without a database.
type memLicenseStore struct {
	mu      sync.Mutex
	license *models.License
}

func (m *memLicenseStore) CreateLicense(ctx context.Context, license *models.License) error {
	return nil
}

func (m *memLicenseStore) GetLicense(ctx context.Context, id string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.license
	return &cp, nil
}

func (m *memLicenseStore) GetLicenseBySerial(ctx context.Context, serialKey string, productID string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.license
	return &cp, nil
}

func (m *memLicenseStore) ListLicensesByProduct(ctx context.Context, productID string, pagination models.PaginationParams) ([]models.License, int, error) {
	return nil, 0, nil
}

func (m *memLicenseStore) SetStatus(ctx context.Context, id string, status models.LicenseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.license.Status = status
	return nil
}

func (m *memLicenseStore) AdmitDevice(ctx context.Context, licenseID string, hardwareID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.license.Devices >= m.license.MaxDevices {
		return store.ErrDevicesFull
	}
	m.license.Devices++
	m.license.Status = models.StatusActive
	if m.license.ActivationDate == nil {
		ts := now.Unix()
		m.license.ActivationDate = &ts
	}
	return nil
}

func (m *memLicenseStore) ResetLicense(ctx context.Context, id string) error { return nil }

func (m *memLicenseStore) DeleteLicense(ctx context.Context, id string) error { return nil }

func (m *memLicenseStore) DeleteExpiredLicenses(ctx context.Context, productID string) (int, error) {
	return 0, nil
}

func TestValidate_ConcurrentAdmissionsSingleSlot(t *testing.T) {
	publicKey, privateKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	product := &models.Product{ID: uuid.New(), APIKey: testAPIKey, PublicKey: publicKey, PrivateKey: privateKey}

	license := testLicense(product)
	license.MaxDevices = 1
	licenses := &memLicenseStore{license: license}

	products := new(MockProductStore)
	products.On("GetProductByAPIKey", mock.Anything, testAPIKey).Return(product, nil)
	registrations := new(MockRegistrationStore)
	registrations.On("GetRegistration", mock.Anything, mock.Anything, mock.Anything).Return(nil, store.ErrNotFound)
	logs := new(MockLogStore)
	logs.On("CreateValidationLog", mock.Anything, mock.Anything).Return(nil)

	v := NewValidator(products, licenses, registrations, logs)

	const workers = 16
	payloads := make([]string, workers)
	for i := range payloads {
		p, err := crypto.Encrypt(testSerialKey, fmt.Sprintf("hwid-%04d", i), publicKey)
		require.NoError(t, err)
		payloads[i] = p
	}

	outcomes := make([]Outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = v.Validate(context.Background(), testAPIKey, payloads[i], "192.0.2.1")
		}(i)
	}
	wg.Wait()

	successes, fulls := 0, 0
	for _, o := range outcomes {
		switch o.Code {
		case CodeSuccess:
			successes++
		case CodeDevicesFull:
			fulls++
		default:
			t.Fatalf("unexpected outcome code %q", o.Code)
		}
	}

	assert.Equal(t, 1, successes, "exactly one admission may win the last slot")
	assert.Equal(t, workers-1, fulls)
	assert.Equal(t, 1, licenses.license.Devices)
}
