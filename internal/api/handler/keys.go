package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardlens/internal/api/response"
	"github.com/kiranshivaraju/cardlens/internal/store"
	"github.com/kiranshivaraju/cardlens/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	rawKeyPrefix  = "cl_"
	rawKeyBytes   = 24
	keyPrefixSize = 8
)

// Keys serves the admin API-key routes.
type Keys struct {
	store    store.Store
	validate *validator.Validate
	cost     int
}

// NewKeys creates the key handlers. cost is the bcrypt cost; values outside
// bcrypt's range fall back to bcrypt.DefaultCost.
func NewKeys(s store.Store, cost int) *Keys {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Keys{store: s, validate: newValidator(), cost: cost}
}

type createdKey struct {
	*models.APIKey
	// Key is the raw secret. It is returned once and never stored.
	Key string `json:"key"`
}

// Create handles POST /api/v1/admin/keys.
func (h *Keys) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if !decodeAndValidate(w, r, h.validate, &req, false) {
		return
	}

	raw, err := generateRawKey()
	if err != nil {
		internalError(w, "generate api key", err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		internalError(w, "hash api key", err)
		return
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      req.Name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:keyPrefixSize],
		Scopes:    req.Scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, response.CodeKeyNameExists, "An active key with this name exists", nil)
			return
		}
		internalError(w, "create api key", err)
		return
	}

	slog.Info("api key created", "key_id", key.ID, "name", key.Name)
	response.Created(w, createdKey{APIKey: key, Key: raw})
}

// List handles GET /api/v1/admin/keys.
func (h *Keys) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		internalError(w, "list api keys", err)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	response.JSON(w, keys)
}

// Revoke handles DELETE /api/v1/admin/keys/{keyID}.
func (h *Keys) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "keyID", response.CodeInvalidKeyID)
	if !ok {
		return
	}
	if err := h.store.RevokeAPIKey(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.CodeKeyNotFound, "API key not found", nil)
			return
		}
		internalError(w, "revoke api key", err)
		return
	}
	slog.Info("api key revoked", "key_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func generateRawKey() (string, error) {
	b := make([]byte, rawKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return rawKeyPrefix + hex.EncodeToString(b), nil
}
