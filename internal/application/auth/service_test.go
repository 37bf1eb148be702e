package auth

import (
	"context"
	"testing"
	"time"

	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/infrastructure/database"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupAuthDB(t *testing.T) *gorm.DB {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func TestRegisterThenLogin(t *testing.T) {
	db := setupAuthDB(t)
	ctx := context.Background()

	u, err := RegisterUser(ctx, db, RegisterInput{Email: " Ada@Grid.io ", Password: "volt4ge!", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada@grid.io", u.Email)
	assert.NotEqual(t, "volt4ge!", u.PasswordHash)

	got, err := LoginUser(ctx, db, LoginInput{Email: "ada@grid.io", Password: "volt4ge!"})
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)

	id := IdentityOf(got)
	assert.Equal(t, u.UserID.String(), id.UID)
	assert.Equal(t, "Ada", id.NameOr("Anonymous"))
}

func TestRegister_Rejections(t *testing.T) {
	db := setupAuthDB(t)
	ctx := context.Background()

	_, err := RegisterUser(ctx, db, RegisterInput{Email: "", Password: "x"})
	assert.Equal(t, ErrEmailPasswordRequired, err)
	_, err = RegisterUser(ctx, db, RegisterInput{Email: "nope", Password: "volt4ge!"})
	assert.Equal(t, ErrInvalidEmail, err)
	_, err = RegisterUser(ctx, db, RegisterInput{Email: "a@b.io", Password: "short"})
	assert.Equal(t, ErrWeakPassword, err)
	_, err = RegisterUser(ctx, db, RegisterInput{Email: "a@b.io", Password: "volt4ge!", DisplayName: "<b>"})
	assert.Equal(t, ErrInvalidDisplayName, err)

	_, err = RegisterUser(ctx, db, RegisterInput{Email: "a@b.io", Password: "volt4ge!"})
	require.NoError(t, err)
	_, err = RegisterUser(ctx, db, RegisterInput{Email: "A@B.io", Password: "volt4ge!"})
	assert.Equal(t, ErrEmailTaken, err)
}

func TestLogin_Failures(t *testing.T) {
	db := setupAuthDB(t)
	ctx := context.Background()
	_, err := RegisterUser(ctx, db, RegisterInput{Email: "a@b.io", Password: "volt4ge!"})
	require.NoError(t, err)

	_, err = LoginUser(ctx, db, LoginInput{Email: "a@b.io"})
	assert.Equal(t, ErrEmailPasswordRequired, err)
	_, err = LoginUser(ctx, db, LoginInput{Email: "x@b.io", Password: "volt4ge!"})
	assert.Equal(t, ErrInvalidEmail, err)
	_, err = LoginUser(ctx, db, LoginInput{Email: "a@b.io", Password: "wrong-pass1!"})
	assert.Equal(t, ErrIncorrectPassword, err)
}

func TestVerifyUser(t *testing.T) {
	_, err := VerifyUser(nil)
	assert.Equal(t, ErrNotAuthenticated, err)
	_, err = VerifyUser(map[string]interface{}{"display_name": "Ada"})
	assert.Equal(t, ErrNotAuthenticated, err)
	_, err = VerifyUser("not-a-map")
	assert.Equal(t, ErrNotAuthenticated, err)

	id, err := VerifyUser(map[string]interface{}{"uid": "u-1", "display_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UID)
	assert.Equal(t, "Ada", id.NameOr(""))

	id, err = VerifyUser(map[string]interface{}{"uid": "u-2"})
	require.NoError(t, err)
	assert.Nil(t, id.DisplayName)
}

func TestTokenVerifier_RoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	name := "Grace"
	raw, err := v.Issue(domain.Identity{UID: "provider-uid-7", DisplayName: &name}, time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "provider-uid-7", id.UID)
	assert.Equal(t, "Grace", id.NameOr(""))
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	other := NewTokenVerifier("other-secret")

	forged, err := other.Issue(domain.Identity{UID: "u"}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Issue(domain.Identity{UID: "u"}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = v.Verify(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.Nil(t, NewTokenVerifier(""))
}
