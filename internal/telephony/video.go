package telephony

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VideoTokenService issues Twilio-style media access tokens (the JWT a
// browser exchanges for a video room connection). When the API key is not
// configured the capability is disabled: IssueToken fails with
// ErrNotConfigured and the process keeps running.
type VideoTokenService struct {
	accountSID   string
	apiKeySID    string
	apiKeySecret string
	ttl          time.Duration
}

func NewVideoTokenService(accountSID, apiKeySID, apiKeySecret string) *VideoTokenService {
	return &VideoTokenService{
		accountSID:   accountSID,
		apiKeySID:    apiKeySID,
		apiKeySecret: apiKeySecret,
		ttl:          time.Hour,
	}
}

func (s *VideoTokenService) Enabled() bool {
	return s.accountSID != "" && s.apiKeySID != "" && s.apiKeySecret != ""
}

// IssueToken mints an access token granting identity access to roomName.
func (s *VideoTokenService) IssueToken(now time.Time, identity, roomName string) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}
	if identity == "" || roomName == "" {
		return "", fmt.Errorf("telephony: identity and room are required")
	}

	claims := jwt.MapClaims{
		"jti": fmt.Sprintf("%s-%d", s.apiKeySID, now.Unix()),
		"iss": s.apiKeySID,
		"sub": s.accountSID,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
		"grants": map[string]any{
			"identity": identity,
			"video": map[string]any{
				"room": roomName,
			},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	// Twilio access tokens carry a content-type marker in the header.
	token.Header["cty"] = "twilio-fpa;v=2"

	signed, err := token.SignedString([]byte(s.apiKeySecret))
	if err != nil {
		return "", fmt.Errorf("telephony: token signing failed: %w", err)
	}
	return signed, nil
}
