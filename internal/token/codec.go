// Package token はセッショントークンの発行と検証を提供する。
//
// トークンはHS256署名のJWTで、ユーザーIDとメールアドレスを埋め込む。
// サーバー側には保存しない（ステートレス）ため、有効期限前の失効はできない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/thejerf/abtime"

	"github.com/hitoshi/leadman/internal/model"
)

const (
	// DefaultIssuer はトークンのissクレームに設定する発行者名。
	DefaultIssuer = "leadman"
	// MinSecretLength は署名鍵の最小バイト長。
	MinSecretLength = 32
)

var (
	// ErrMalformed はトークンを解析できない、または署名が一致しないことを示す。
	ErrMalformed = errors.New("token: malformed or unverifiable")
	// ErrExpired はトークンの署名は正しいが有効期限を過ぎていることを示す。
	ErrExpired = errors.New("token: expired")
	// ErrInvalidIdentity は発行対象のIdentityにIDまたはメールアドレスがないことを示す。
	ErrInvalidIdentity = errors.New("token: identity requires id and email")
	// ErrNoSecret は署名鍵が設定されていないことを示す。
	ErrNoSecret = errors.New("token: signing secret is not configured")
)

// Claims はトークンに埋め込むクレーム。subにユーザーIDを格納する。
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issued は発行済みトークンとその有効期間。
type Issued struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CodecConfig はCodecの設定。
type CodecConfig struct {
	Secret     []byte
	DefaultTTL time.Duration
	Issuer     string

	// Clock はテスト用に差し替え可能な時計。nilの場合は実時間を使用する。
	Clock abtime.AbstractTime
}

// Codec はセッショントークンの発行と検証を行う。
// 起動後は読み取り専用で、複数goroutineから同時に使用できる。
type Codec struct {
	secret     []byte
	defaultTTL time.Duration
	issuer     string
	clock      abtime.AbstractTime
	parser     *jwt.Parser
}

// NewCodec はCodecを生成する。署名鍵が短すぎる場合はエラーを返す。
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token: signing secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 7 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Clock == nil {
		cfg.Clock = abtime.NewRealTime()
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret:     secret,
		defaultTTL: cfg.DefaultTTL,
		issuer:     cfg.Issuer,
		clock:      cfg.Clock,
		// 有効期限の判定は時計を差し替えられるよう自前で行う。
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// DefaultTTL は設定済みのデフォルト有効期間を返す。
func (c *Codec) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Issue はIdentityに対するトークンを発行する。
// ttlが0以下の場合はデフォルトの有効期間を使用する。
// IssuedAtと有効期間はJWTの精度に合わせて秒単位に切り捨てる（有効期間の最小は1秒）。
// ExpiresAtはトークンに埋め込んだexpと常に一致する。
func (c *Codec) Issue(identity model.Identity, ttl time.Duration) (*Issued, error) {
	if identity.ID == "" || identity.Email == "" {
		return nil, ErrInvalidIdentity
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	// expクレームは秒精度のため、有効期間も秒単位に揃える。
	ttl = ttl.Truncate(time.Second)
	if ttl < time.Second {
		ttl = time.Second
	}

	issuedAt := c.clock.Now().Truncate(time.Second)

	claims := Claims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	expiresAt := claims.ExpiresAt.Time

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Issued{
		Token:     signed,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify はトークンの署名と有効期限を検証し、埋め込まれたIdentityを返す。
// 解析・署名検証に失敗した場合はErrMalformed、now >= expiresAtの場合はErrExpiredを返す。
func (c *Codec) Verify(raw string) (model.Identity, error) {
	identity, _, err := c.VerifyWithExpiry(raw)
	return identity, err
}

// VerifyWithExpiry はVerifyと同じ検証を行い、トークンの有効期限も返す。
func (c *Codec) VerifyWithExpiry(raw string) (model.Identity, time.Time, error) {
	claims, err := c.parse(raw)
	if err != nil {
		return model.Identity{}, time.Time{}, err
	}

	expiresAt := claims.ExpiresAt.Time
	if !c.clock.Now().Before(expiresAt) {
		return model.Identity{}, time.Time{}, ErrExpired
	}

	return model.Identity{
		ID:    claims.Subject,
		Email: claims.Email,
	}, expiresAt, nil
}

// ExpiresAt は検証済みトークンの有効期限を返す。検証に失敗した場合はVerifyと同じエラーを返す。
func (c *Codec) ExpiresAt(raw string) (time.Time, error) {
	claims, err := c.parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

// parse は署名を検証し、必須クレームが揃っていることを確認する。有効期限は見ない。
func (c *Codec) parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	tok, err := c.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if claims.Subject == "" || claims.Email == "" || claims.ExpiresAt == nil || claims.Issuer != c.issuer {
		return nil, ErrMalformed
	}

	return claims, nil
}
