package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "12345:test-bot-token"

// signInitData produces a valid initData query string the way the Telegram
// client does.
func signInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()

	pairs := make([]string, 0, len(fields))
	for key, value := range fields {
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func TestValidateInitDataSigned(t *testing.T) {
	v := NewValidator(testBotToken, "secret", false, 0)

	initData := signInitData(t, testBotToken, map[string]string{
		"auth_date": "1756600000",
		"query_id":  "AAE1",
		"user":      `{"id":90847291,"first_name":"Sasha","username":"sasha"}`,
	})

	user, err := v.ValidateInitData(initData)
	require.NoError(t, err)
	assert.Equal(t, int64(90847291), user.ID)
	assert.Equal(t, "Sasha", user.FirstName)
	assert.Equal(t, "sasha", user.Username)
}

func TestValidateInitDataWrongBotToken(t *testing.T) {
	v := NewValidator(testBotToken, "secret", false, 0)

	initData := signInitData(t, "99999:other-token", map[string]string{
		"auth_date": "1756600000",
		"user":      `{"id":1,"first_name":"X"}`,
	})

	_, err := v.ValidateInitData(initData)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidateInitDataTampered(t *testing.T) {
	v := NewValidator(testBotToken, "secret", false, 0)

	initData := signInitData(t, testBotToken, map[string]string{
		"auth_date": "1756600000",
		"user":      `{"id":1,"first_name":"X"}`,
	})
	initData = strings.Replace(initData, "auth_date=1756600000", "auth_date=1756600001", 1)

	_, err := v.ValidateInitData(initData)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidateInitDataMissingHash(t *testing.T) {
	v := NewValidator(testBotToken, "secret", false, 0)

	_, err := v.ValidateInitData("auth_date=1756600000")
	assert.ErrorIs(t, err, ErrMissingHash)
}

func TestValidateInitDataMockMode(t *testing.T) {
	v := NewValidator("", "secret", true, 90847291)

	user, err := v.ValidateInitData("query_id=dev&hash=mockhash123")
	require.NoError(t, err)
	assert.Equal(t, int64(90847291), user.ID)
}

func TestValidateInitDataMockModeUsesEmbeddedUser(t *testing.T) {
	v := NewValidator("", "secret", true, 90847291)

	values := url.Values{}
	values.Set("hash", "mock")
	values.Set("user", `{"id":551,"first_name":"Dev"}`)

	user, err := v.ValidateInitData(values.Encode())
	require.NoError(t, err)
	assert.Equal(t, int64(551), user.ID)
	assert.Equal(t, "Dev", user.FirstName)
}

func TestTokenRoundTrip(t *testing.T) {
	v := NewValidator(testBotToken, "secret", false, 0)

	token, err := v.IssueToken(90847291)
	require.NoError(t, err)

	id, err := v.VerifyToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, int64(90847291), id)
}

func TestVerifyTokenRejectsBadInput(t *testing.T) {
	v := NewValidator(testBotToken, "secret", false, 0)

	_, err := v.VerifyToken("Bearer garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.VerifyToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err := v.IssueToken(1)
	require.NoError(t, err)

	other := NewValidator(testBotToken, "different-secret", false, 0)
	_, err = other.VerifyToken("Bearer " + token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
