package field

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt/symmetric"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/datecipher"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	os.Exit(m.Run())
}

type recorder struct {
	mu           sync.Mutex
	hooks        map[string]int
	toggles      map[string]int
	castFailures int
}

func newRecorder() *recorder {
	return &recorder{hooks: map[string]int{}, toggles: map[string]int{}}
}

func (r *recorder) RecordHook(model, path, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[path+"/"+phase]++
}

func (r *recorder) RecordToggle(model, direction string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toggles[direction]++
}

func (r *recorder) RecordRewrite(model string, err error) {}

func (r *recorder) RecordCastFailure(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.castFailures++
}

func newPrimitive(t *testing.T) *crypt.Primitive {
	t.Helper()
	key, err := symmetric.GenerateKey()
	require.NoError(t, err)
	c, err := symmetric.NewEncryption(key)
	require.NoError(t, err)
	p, err := crypt.New(c)
	require.NoError(t, err)
	return p
}

func userModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.Compile(types.ModelDefinition{
		Name:       "User",
		Collection: "users",
		Properties: types.Properties{
			"name": {Type: types.FieldTypeString},
			"email_object": {Type: types.FieldTypeObject, Properties: types.Properties{
				"address":  {Type: types.FieldTypeString, Encrypt: true},
				"verified": {Type: types.FieldTypeBoolean},
			}},
			"ssn": {Type: types.FieldTypeString, Encrypt: true},
			"addresses": {Type: types.FieldTypeArray, Items: &types.Property{
				Type: types.FieldTypeObject,
				Properties: types.Properties{
					"street": {Type: types.FieldTypeString, Encrypt: true},
					"city":   {Type: types.FieldTypeString},
				},
			}},
			"tags": {Type: types.FieldTypeArray, Items: &types.Property{Type: types.FieldTypeString, Encrypt: true}},
			"profile": {Type: types.FieldTypeObject, Encrypt: true, Properties: types.Properties{
				"bio": {Type: types.FieldTypeString},
				"age": {Type: types.FieldTypeNumber},
			}},
			"notes":    {Type: types.FieldTypeMixed, Encrypt: true},
			"birthday": {Type: types.FieldTypeDateCipher},
		},
	})
	require.NoError(t, err)
	return m
}

func TestHooksLogNothingPerInvocation(t *testing.T) {
	ctx := context.Background()
	prim := newPrimitive(t)
	svc, err := NewService(prim)
	require.NoError(t, err)
	m := userModel(t)

	var buf bytes.Buffer
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	doc := map[string]any{"ssn": "123", "tags": []any{"a"}, "birthday": time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, svc.Save(ctx, m, doc))
	require.NoError(t, svc.Read(ctx, m, doc))
	assert.Empty(t, buf.String())
}

func TestSaveReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	prim := newPrimitive(t)
	svc, err := NewService(prim)
	require.NoError(t, err)
	m := userModel(t)

	id := bson.NewObjectID()
	birthday := time.Date(1990, 4, 1, 0, 0, 0, 0, time.UTC)
	doc := map[string]any{
		"_id":          id,
		"name":         "Ann",
		"email_object": map[string]any{"address": "a@b.com", "verified": true},
		"ssn":          "123-45-6789",
		"addresses":    []any{map[string]any{"street": "1 Main St", "city": "Springfield"}},
		"tags":         []any{"vip", "beta"},
		"profile":      map[string]any{"bio": "hello", "age": 30},
		"notes":        map[string]any{"free": "text", "__v": 3},
		"birthday":     birthday,
	}
	original := map[string]any{}
	for k, v := range doc {
		original[k] = v
	}
	original["email_object"] = map[string]any{"address": "a@b.com", "verified": true}
	original["addresses"] = []any{map[string]any{"street": "1 Main St", "city": "Springfield"}}
	original["tags"] = []any{"vip", "beta"}
	original["profile"] = map[string]any{"bio": "hello", "age": int64(30)}
	original["notes"] = map[string]any{"free": "text", "__v": 3}

	require.NoError(t, svc.Save(ctx, m, doc))

	email := doc["email_object"].(map[string]any)
	assert.True(t, prim.IsAlreadyEncrypted(email["address"]))
	assert.Equal(t, true, email["verified"])
	assert.True(t, prim.IsAlreadyEncrypted(doc["ssn"]))
	assert.Equal(t, "Ann", doc["name"])
	assert.Equal(t, id, doc["_id"])

	addr := doc["addresses"].([]any)[0].(map[string]any)
	assert.True(t, prim.IsAlreadyEncrypted(addr["street"]))
	assert.Equal(t, "Springfield", addr["city"])

	for _, tag := range doc["tags"].([]any) {
		assert.True(t, prim.IsAlreadyEncrypted(tag))
	}
	profile := doc["profile"].(map[string]any)
	assert.True(t, prim.IsAlreadyEncrypted(profile["bio"]))
	assert.True(t, prim.IsAlreadyEncrypted(profile["age"]))
	notes := doc["notes"].(map[string]any)
	assert.True(t, prim.IsAlreadyEncrypted(notes["free"]))
	assert.Equal(t, 3, notes["__v"])
	assert.True(t, prim.IsAlreadyEncrypted(doc["birthday"]))

	require.NoError(t, svc.Read(ctx, m, doc))

	got, ok := doc["birthday"].(time.Time)
	require.True(t, ok, "birthday read back as %T", doc["birthday"])
	assert.True(t, birthday.Equal(got))

	delete(doc, "birthday")
	delete(original, "birthday")
	assert.Equal(t, original, doc)
}

func TestSaveIsDeterministic(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(newPrimitive(t))
	require.NoError(t, err)
	m := userModel(t)

	a := bson.M{"email_object": bson.M{"address": "a@b.com"}}
	b := bson.D{{Key: "email_object", Value: bson.D{{Key: "address", Value: "a@b.com"}}}}
	require.NoError(t, svc.Save(ctx, m, a))
	require.NoError(t, svc.Save(ctx, m, b))

	ca := a["email_object"].(bson.M)["address"]
	cb := b[0].Value.(bson.D)[0].Value
	assert.Equal(t, ca, cb)
	assert.NotEqual(t, "a@b.com", ca)
}

func TestSaveContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	prim := newPrimitive(t)
	svc, err := NewService(prim)
	require.NoError(t, err)
	m := userModel(t)

	doc := map[string]any{
		"notes": bson.Regex{Pattern: "^a"},
		"ssn":   "123",
	}
	err = svc.Save(ctx, m, doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, crypt.ErrUnsupportedValue)
	assert.Contains(t, err.Error(), "field notes")
	assert.Equal(t, bson.Regex{Pattern: "^a"}, doc["notes"])
	assert.True(t, prim.IsAlreadyEncrypted(doc["ssn"]))

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalSaves)
	assert.Equal(t, uint64(1), stats.TotalFailures)
	assert.False(t, stats.LastFailureTime.IsZero())
}

func TestReadCastFailure(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	svc, err := NewService(newPrimitive(t), WithRecorder(rec))
	require.NoError(t, err)
	m := userModel(t)

	doc := map[string]any{"birthday": "yesterday"}
	err = svc.Read(ctx, m, doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, datecipher.ErrCast)
	assert.Equal(t, "yesterday", doc["birthday"])
	assert.Equal(t, 1, rec.castFailures)
}

func TestReadTogglesByState(t *testing.T) {
	ctx := context.Background()
	prim := newPrimitive(t)
	svc, err := NewService(prim)
	require.NoError(t, err)
	m := userModel(t)

	// the read phase flips whatever it finds; only paired invocations cancel out
	doc := map[string]any{"ssn": "123", "tags": []any{"a"}}
	require.NoError(t, svc.Read(ctx, m, doc))
	assert.True(t, prim.IsAlreadyEncrypted(doc["ssn"]))

	require.NoError(t, svc.Read(ctx, m, doc))
	assert.Equal(t, "123", doc["ssn"])
	assert.Equal(t, []any{"a"}, doc["tags"])

	parity := svc.Parity("User")
	for _, p := range parity {
		assert.False(t, p.Balanced(), p.Path)
	}
}

func TestParityAndRecorder(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	svc, err := NewService(newPrimitive(t), WithRecorder(rec))
	require.NoError(t, err)
	m := userModel(t)

	doc := bson.M{"ssn": "1", "tags": bson.A{"x"}}
	require.NoError(t, svc.Save(ctx, m, doc))
	require.NoError(t, svc.Read(ctx, m, doc))

	parity := svc.Parity("User")
	require.Len(t, parity, len(m.Hooks))
	for _, p := range parity {
		assert.Equal(t, uint64(1), p.Saves, p.Path)
		assert.Equal(t, uint64(1), p.Reads, p.Path)
		assert.True(t, p.Balanced(), p.Path)
	}
	assert.Nil(t, svc.Parity("Unknown"))

	assert.Equal(t, 1, rec.hooks["ssn/save"])
	assert.Equal(t, 1, rec.hooks["ssn/read"])
	assert.Equal(t, 2, rec.toggles[crypt.Encrypted.String()])
	assert.Equal(t, 2, rec.toggles[crypt.Decrypted.String()])
}

func TestAuditEvents(t *testing.T) {
	ctx := audit.WithUserContext(context.Background(), "u-1")
	logger := audit.NewMemoryAuditLogger(10)
	svc, err := NewService(newPrimitive(t), WithAuditLogger(logger))
	require.NoError(t, err)
	m := userModel(t)

	require.NoError(t, svc.Save(ctx, m, map[string]any{"ssn": "1"}))
	require.Error(t, svc.Read(ctx, m, map[string]any{"birthday": "nope"}))

	saves, err := logger.GetEvents(ctx, map[string]interface{}{"eventType": audit.EventTypeFieldSave})
	require.NoError(t, err)
	require.Len(t, saves, 1)
	assert.Equal(t, audit.StatusSuccess, saves[0].Status)
	assert.Equal(t, "users", saves[0].Context[string(audit.KeyCollection)])
	assert.Equal(t, "u-1", saves[0].Context[string(audit.KeyUserID)])

	failed, err := logger.GetEvents(ctx, map[string]interface{}{"status": audit.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, audit.EventTypeFieldRead, failed[0].EventType)
	assert.NotEmpty(t, failed[0].Context[string(audit.KeyError)])
}

func TestServiceRejects(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(newPrimitive(t))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Save(ctx, nil, map[string]any{}), ErrNilModel)
	assert.Error(t, svc.Save(ctx, userModel(t), []any{}))

	_, err = NewService(nil)
	assert.ErrorIs(t, err, crypt.ErrNilCipher)
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	_, err := NewFactory(&types.EncryptionConfig{Enabled: false}, nil, nil, nil).CreateFieldService(ctx)
	assert.ErrorIs(t, err, ErrEncryptionDisabled)

	key, err := symmetric.GenerateKey()
	require.NoError(t, err)
	f := NewFactory(&types.EncryptionConfig{
		Enabled:  true,
		Provider: types.ProviderLocal,
		FieldKey: base64.StdEncoding.EncodeToString(key),
	}, audit.NewMemoryAuditLogger(1), newRecorder(), nil)

	svc, err := f.CreateFieldService(ctx)
	require.NoError(t, err)
	again, err := f.CreateFieldService(ctx)
	require.NoError(t, err)
	assert.Same(t, svc.Primitive(), again.Primitive())

	_, err = NewFactory(&types.EncryptionConfig{Enabled: true, Provider: types.ProviderAWS}, nil, nil, nil).Primitive(ctx)
	assert.Error(t, err)
}
