package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	keyvault "github.com/layer-3/keyvault"
	"github.com/layer-3/keyvault/core"
)

// Handlers contains HTTP handlers for the custody endpoints
type Handlers struct {
	client   keyvault.Client
	requests *RequestLog
}

// NewHandlers creates new handlers
func NewHandlers(client keyvault.Client, requests *RequestLog) *Handlers {
	return &Handlers{
		client:   client,
		requests: requests,
	}
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, core.BadRequest("invalid request body"))
		return false
	}
	return true
}

// Session exchanges the admin secret for a session token
func (h *Handlers) Session(c *gin.Context) {
	var req struct {
		AdminSecret string `json:"admin_secret"`
	}
	if !bind(c, &req) {
		return
	}

	token, ttl, err := h.client.IssueSession(c.Request.Context(), req.AdminSecret)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Session Key Generated",
		"session_key": token,
		"token_type":  "Bearer",
		"expires_in":  int(ttl.Seconds()),
	})
}

// Register creates a user
func (h *Handlers) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if !bind(c, &req) {
		return
	}

	user, err := h.client.Register(c.Request.Context(), req.Username, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

// GenerateAPIKey issues an API key to an allow-listed user
func (h *Handlers) GenerateAPIKey(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		AdminSecret string `json:"admin_secret"`
		Duration    int64  `json:"duration"` // seconds
	}
	if !bind(c, &req) {
		return
	}

	plaintext, key, err := h.client.IssueAPIKey(c.Request.Context(), req.Email, req.AdminSecret, time.Duration(req.Duration)*time.Second)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "API Key Generated",
		"api_key":    plaintext,
		"expires_at": key.ExpiresAt,
		"note":       "Save this key! It will not be shown again.",
	})
}

// CreateWallet stores a new custodied wallet
func (h *Handlers) CreateWallet(c *gin.Context) {
	var req struct {
		Label      string `json:"label"`
		Blockchain string `json:"blockchain"`
		Address    string `json:"wallet_address"`
		PrivateKey string `json:"private_key"`
	}
	if !bind(c, &req) {
		return
	}

	walletID, address, err := h.client.CreateWallet(c.Request.Context(), keyvault.CreateWalletParams{
		Label:      req.Label,
		Blockchain: req.Blockchain,
		Address:    req.Address,
		PrivateKey: req.PrivateKey,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"wallet_id":      walletID,
		"wallet_address": address,
	})
}

// Sign signs one transaction
func (h *Handlers) Sign(c *gin.Context) {
	var req struct {
		WalletID    string `json:"wallet_id"`
		Transaction string `json:"transaction"`
	}
	if !bind(c, &req) {
		return
	}

	signed, err := h.client.SignOne(c.Request.Context(), req.WalletID, req.Transaction)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"signed_transaction": signed})
}

// Multisend signs a batch of transactions with one decryption
func (h *Handlers) Multisend(c *gin.Context) {
	var req struct {
		WalletID     string   `json:"wallet_id"`
		Transactions []string `json:"transactions"`
	}
	if !bind(c, &req) {
		return
	}

	signed, err := h.client.SignBatch(c.Request.Context(), req.WalletID, req.Transactions)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"signed_transactions": signed})
}

// GetWallet returns wallet metadata
func (h *Handlers) GetWallet(c *gin.Context) {
	info, err := h.client.GetWallet(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Monitoring returns the recent request log
func (h *Handlers) Monitoring(c *gin.Context) {
	c.JSON(http.StatusOK, h.requests.Entries())
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
