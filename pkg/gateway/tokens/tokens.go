// Package tokens mints the credentials handed to interview clients.
package tokens

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/voxprep/voxprep/pkg/core"
)

// Minter produces the credential returned from session init.
type Minter interface {
	Mint(ctx context.Context) (string, error)
}

// Gemini mints short-lived single-use auth tokens, constrained to the live
// model the session will connect to. The long-lived API key stays on the
// gateway.
type Gemini struct {
	client *genai.Client
	model  string
	ttl    time.Duration
}

func NewGemini(ctx context.Context, apiKey, model string, ttl time.Duration) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewTransportError("genai client", "create client failed", err)
	}
	return &Gemini{client: client, model: model, ttl: ttl}, nil
}

func (g *Gemini) Mint(ctx context.Context) (string, error) {
	tok, err := g.client.AuthTokens.Create(ctx, &genai.CreateAuthTokenConfig{
		Uses:       genai.Ptr[int32](1),
		ExpireTime: time.Now().Add(g.ttl),
		LiveConnectConstraints: &genai.LiveConnectConstraints{
			Model: g.model,
		},
	})
	if err != nil {
		return "", core.NewAPIError("mint auth token: " + err.Error())
	}
	return tok.Name, nil
}

// Static hands out a fixed credential. Used when token minting is disabled
// and in tests.
type Static struct {
	Credential string
}

func (s Static) Mint(ctx context.Context) (string, error) {
	return s.Credential, nil
}
