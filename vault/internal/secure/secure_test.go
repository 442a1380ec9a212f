package secure

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cardvault/common/logging"
	"github.com/telhawk-systems/cardvault/vault/internal/authz"
	"github.com/telhawk-systems/cardvault/vault/internal/kvstore"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

// stubAuthorizer allows everything unless deny names the operation.
type stubAuthorizer struct {
	mu    sync.Mutex
	deny  map[string]bool
	calls []string
}

func (s *stubAuthorizer) ValidateAccess(ctx context.Context, resource, operation string, ac authz.AccessContext) authz.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, resource+":"+operation)
	if s.deny[operation] {
		return authz.Decision{Reason: authz.ReasonOperationNotPermitted}
	}
	return authz.Decision{Authorized: true}
}

type failingStore struct {
	kvstore.Store
}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("disk on fire")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("disk on fire") }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func setupEngine(t *testing.T, opts ...Option) (*Engine, *kvstore.MemoryStore, *stubAuthorizer, *testClock) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	auth := &stubAuthorizer{deny: map[string]bool{}}
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now), WithLogger(logging.Discard().Logger)}, opts...)
	engine, err := New(store, auth, testKey(), opts...)
	require.NoError(t, err)
	return engine, store, auth, clock
}

type card struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

func fakeCard() card {
	return card{
		Name:    gofakeit.Name(),
		Company: gofakeit.Company(),
		Email:   gofakeit.Email(),
		Phone:   gofakeit.Phone(),
	}
}

func TestNew_RejectsBadKey(t *testing.T) {
	_, err := New(kvstore.NewMemoryStore(), &stubAuthorizer{}, []byte("short"))
	assert.Error(t, err)
}

func TestValidateDataIntegrity(t *testing.T) {
	engine, _, _, _ := setupEngine(t)
	const helloHash = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

	res := engine.ValidateDataIntegrity("hello", "")
	assert.True(t, res.Valid)
	assert.Equal(t, helloHash, res.ActualHash)

	assert.True(t, engine.ValidateDataIntegrity("hello", res.ActualHash).Valid)
	assert.True(t, engine.ValidateDataIntegrity([]byte("hello"), helloHash).Valid)

	mismatch := engine.ValidateDataIntegrity("hello!", helloHash)
	assert.False(t, mismatch.Valid)
	assert.NotEqual(t, helloHash, mismatch.ActualHash)
}

func TestValidateDataIntegrity_Canonical(t *testing.T) {
	engine, _, _, _ := setupEngine(t)

	a := engine.ValidateDataIntegrity(map[string]any{"b": 1, "a": []int{1, 2}}, "")
	b := engine.ValidateDataIntegrity(json.RawMessage(`{ "a": [1, 2], "b": 1.0 }`), "")
	require.True(t, a.Valid)
	assert.Equal(t, a.ActualHash, b.ActualHash, "key order and number format do not change the digest")
}

func TestValidateDataIntegrity_Unencodable(t *testing.T) {
	engine, _, _, _ := setupEngine(t)

	res := engine.ValidateDataIntegrity(make(chan int), "")
	assert.False(t, res.Valid)
	assert.Empty(t, res.ActualHash)
	assert.NotEmpty(t, res.Error)
}

func TestSecureStorage_RoundTrip(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()
	c := fakeCard()

	res := engine.SecureStorage(ctx, "card:1", c, StorageOptions{Encrypt: true, Integrity: true})
	require.True(t, res.Success, res.Error)

	raw, err := store.Get(ctx, "card:1")
	require.NoError(t, err)
	assert.NotContains(t, raw, c.Email, "plaintext must not be persisted")

	got := engine.SecureRetrieve(ctx, "card:1", RetrieveOptions{Decrypt: true, VerifyIntegrity: true})
	require.True(t, got.Success, got.Error)

	var decoded card
	require.NoError(t, got.Unmarshal(&decoded))
	assert.Equal(t, c, decoded)
}

func TestSecureStorage_PlainWithIntegrity(t *testing.T) {
	engine, _, _, _ := setupEngine(t)
	ctx := context.Background()

	require.True(t, engine.SecureStorage(ctx, "k", "v", StorageOptions{Integrity: true}).Success)

	got := engine.SecureRetrieve(ctx, "k", RetrieveOptions{VerifyIntegrity: true})
	require.True(t, got.Success, got.Error)
	assert.Equal(t, "v", got.Data)
}

func TestSecureStorage_Envelope(t *testing.T) {
	engine, store, _, clock := setupEngine(t)
	ctx := context.Background()

	require.True(t, engine.SecureStorage(ctx, "k", "hello", StorageOptions{Encrypt: true, Integrity: true, Expiry: time.Hour}).Success)

	raw, err := store.Get(ctx, "k")
	require.NoError(t, err)
	var record models.SecureRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &record))

	assert.True(t, record.Metadata.Encrypted)
	assert.True(t, record.Metadata.HasIntegrity)
	assert.True(t, clock.Now().Equal(record.Metadata.Timestamp))
	require.NotNil(t, record.Metadata.Expiry)
	assert.True(t, clock.Now().Add(time.Hour).Equal(*record.Metadata.Expiry))
	assert.Equal(t, engine.ValidateDataIntegrity("hello", "").ActualHash, record.Metadata.Hash)

	var ct string
	require.NoError(t, json.Unmarshal(record.Value, &ct))
	sealed, err := base64.StdEncoding.DecodeString(ct)
	require.NoError(t, err)
	assert.Len(t, sealed, 12+len(`"hello"`)+16, "nonce + ciphertext + tag")
}

func TestSecureStorage_FreshNonce(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	require.True(t, engine.SecureStorage(ctx, "a", "same", StorageOptions{Encrypt: true}).Success)
	require.True(t, engine.SecureStorage(ctx, "b", "same", StorageOptions{Encrypt: true}).Success)

	a, _ := store.Get(ctx, "a")
	b, _ := store.Get(ctx, "b")
	var ra, rb models.SecureRecord
	require.NoError(t, json.Unmarshal([]byte(a), &ra))
	require.NoError(t, json.Unmarshal([]byte(b), &rb))
	assert.NotEqual(t, string(ra.Value), string(rb.Value))
}

func TestSecureStorage_AccessDenied(t *testing.T) {
	engine, store, auth, _ := setupEngine(t)
	ctx := context.Background()
	auth.deny[OperationWrite] = true

	res := engine.SecureStorage(ctx, "k", "v", StorageOptions{})
	assert.Equal(t, StorageResult{Error: "access denied"}, res)
	assert.Equal(t, 0, store.Len(), "denied write must not touch storage")
	assert.Equal(t, []string{"storage:write"}, auth.calls)

	auth.deny[OperationWrite] = false
	require.True(t, engine.SecureStorage(ctx, "k", "v", StorageOptions{}).Success)
	auth.deny[OperationRead] = true
	got := engine.SecureRetrieve(ctx, "k", RetrieveOptions{})
	assert.False(t, got.Success)
	assert.Equal(t, "access denied", got.Error)
	assert.Nil(t, got.Data)
}

func TestSecureStorage_InvalidInput(t *testing.T) {
	engine, _, _, _ := setupEngine(t)
	ctx := context.Background()

	assert.Equal(t, "invalid key", engine.SecureStorage(ctx, "", "v", StorageOptions{}).Error)
	assert.Equal(t, "operation failed", engine.SecureStorage(ctx, "k", make(chan int), StorageOptions{}).Error)
}

func TestSecureStorage_StoreFailureIsGeneric(t *testing.T) {
	engine, err := New(failingStore{}, &stubAuthorizer{}, testKey(), WithLogger(logging.Discard().Logger))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, StorageResult{Error: "operation failed"}, engine.SecureStorage(ctx, "k", "v", StorageOptions{}))
	got := engine.SecureRetrieve(ctx, "k", RetrieveOptions{})
	assert.Equal(t, "operation failed", got.Error)
}

func TestSecureRetrieve_NotFound(t *testing.T) {
	engine, _, _, _ := setupEngine(t)
	got := engine.SecureRetrieve(context.Background(), "missing", RetrieveOptions{})
	assert.Equal(t, RetrieveResult{Error: "not found"}, got)
}

func TestSecureRetrieve_ExpiryBoundary(t *testing.T) {
	engine, store, _, clock := setupEngine(t)
	ctx := context.Background()

	require.True(t, engine.SecureStorage(ctx, "k", "v", StorageOptions{Expiry: time.Millisecond}).Success)

	got := engine.SecureRetrieve(ctx, "k", RetrieveOptions{})
	assert.True(t, got.Success, "retrievable before expiry")

	clock.Advance(time.Millisecond)
	assert.True(t, engine.SecureRetrieve(ctx, "k", RetrieveOptions{}).Success, "retrievable at the expiry instant")

	clock.Advance(time.Millisecond)
	got = engine.SecureRetrieve(ctx, "k", RetrieveOptions{})
	assert.Equal(t, "expired", got.Error)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrNotFound, "expired record is evicted")
	assert.Equal(t, "not found", engine.SecureRetrieve(ctx, "k", RetrieveOptions{}).Error)
}

func TestSecureRetrieve_TamperedPlaintext(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	require.True(t, engine.SecureStorage(ctx, "k", map[string]string{"name": "Ada"}, StorageOptions{Integrity: true}).Success)

	raw, _ := store.Get(ctx, "k")
	var record models.SecureRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	record.Value = json.RawMessage(`{"name":"Eve"}`)
	b, _ := json.Marshal(record)
	require.NoError(t, store.Set(ctx, "k", string(b)))

	got := engine.SecureRetrieve(ctx, "k", RetrieveOptions{VerifyIntegrity: true})
	assert.Equal(t, RetrieveResult{Error: "integrity check failed"}, got)

	unverified := engine.SecureRetrieve(ctx, "k", RetrieveOptions{})
	assert.True(t, unverified.Success, "verification is opt-in")
}

func TestSecureRetrieve_TamperedCiphertext(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	require.True(t, engine.SecureStorage(ctx, "k", "secret", StorageOptions{Encrypt: true}).Success)

	raw, _ := store.Get(ctx, "k")
	var record models.SecureRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	var ct string
	require.NoError(t, json.Unmarshal(record.Value, &ct))
	sealed, _ := base64.StdEncoding.DecodeString(ct)
	sealed[len(sealed)-1] ^= 0xff
	record.Value, _ = json.Marshal(base64.StdEncoding.EncodeToString(sealed))
	b, _ := json.Marshal(record)
	require.NoError(t, store.Set(ctx, "k", string(b)))

	got := engine.SecureRetrieve(ctx, "k", RetrieveOptions{Decrypt: true})
	assert.Equal(t, "operation failed", got.Error)
}

func TestSecureRetrieve_EncryptedWithoutDecrypt(t *testing.T) {
	engine, _, _, _ := setupEngine(t)
	ctx := context.Background()

	require.True(t, engine.SecureStorage(ctx, "k", "secret", StorageOptions{Encrypt: true, Integrity: true}).Success)

	got := engine.SecureRetrieve(ctx, "k", RetrieveOptions{})
	require.True(t, got.Success)
	ct, ok := got.Data.(string)
	require.True(t, ok)
	assert.NotEqual(t, "secret", ct)

	got = engine.SecureRetrieve(ctx, "k", RetrieveOptions{VerifyIntegrity: true})
	assert.Equal(t, "integrity check failed", got.Error)
}

func TestSecureStorage_FeaturesDisabled(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	require.True(t, engine.SecureStorage(ctx, "old", "enc", StorageOptions{Encrypt: true}).Success)
	require.NoError(t, engine.Features().DisableAll(ctx))

	require.True(t, engine.SecureStorage(ctx, "new", "plain", StorageOptions{Encrypt: true, Integrity: true}).Success)
	raw, _ := store.Get(ctx, "new")
	var record models.SecureRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	assert.False(t, record.Metadata.Encrypted)
	assert.False(t, record.Metadata.HasIntegrity)
	assert.Empty(t, record.Metadata.Hash)

	got := engine.SecureRetrieve(ctx, "old", RetrieveOptions{Decrypt: true})
	require.True(t, got.Success, "existing encrypted records still decrypt")
	assert.Equal(t, "enc", got.Data)
}

func TestRetrieveResult_UnmarshalFailure(t *testing.T) {
	err := RetrieveResult{Error: "not found"}.Unmarshal(new(string))
	assert.EqualError(t, err, "not found")
}

func TestSanitizeOutput(t *testing.T) {
	engine, _, _, _ := setupEngine(t)
	assert.Equal(t, "&lt;b&gt;", engine.SanitizeOutput("<b>", "html"))
	assert.Equal(t, "[BLOCKED: potentially malicious content]", engine.SanitizeOutput("<script>x</script>", "text"))
	assert.Equal(t, "", engine.SanitizeOutput(nil, "html"))
}
