package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/waveledger/internal/deploy"
	"github.com/jmerrifield20/waveledger/internal/network"
	"go.uber.org/zap"
)

// NetworkHandler exposes actor provisioning and deployments over HTTP.
type NetworkHandler struct {
	net         *network.Network
	deployments *deploy.Local
	auth        gin.HandlerFunc
	logger      *zap.Logger
}

// NewNetworkHandler creates a new NetworkHandler. auth guards the deploy route.
func NewNetworkHandler(net *network.Network, deployments *deploy.Local, auth gin.HandlerFunc, logger *zap.Logger) *NetworkHandler {
	return &NetworkHandler{net: net, deployments: deployments, auth: auth, logger: logger}
}

// Register mounts the network and deployment routes on the given router group.
func (h *NetworkHandler) Register(rg *gin.RouterGroup) {
	n := rg.Group("/network")
	{
		n.GET("", h.Overview)
		n.GET("/actors", h.Actors)
		n.POST("/reset", h.auth, h.Reset)
	}
	d := rg.Group("/deployments")
	{
		d.GET("", h.ListDeployments)
		d.POST("", h.auth, h.Deploy)
	}
}

// Overview handles GET /network.
func (h *NetworkHandler) Overview(c *gin.Context) {
	actors, err := h.net.ProvisionActors(c.Request.Context())
	if err != nil {
		h.logger.Error("provision actors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to provision actors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"network_id":  h.net.ID().String(),
		"actors":      len(actors),
		"deployments": h.deployments.Len(),
	})
}

type actorResponse struct {
	Address   string `json:"address"`
	PublicKey []byte `json:"public_key"`
	Token     string `json:"token"`
}

// Actors handles GET /network/actors, returning every actor with a fresh bearer token.
// The first actor is the default deployer.
func (h *NetworkHandler) Actors(c *gin.Context) {
	actors, err := h.net.ProvisionActors(c.Request.Context())
	if err != nil {
		h.logger.Error("provision actors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to provision actors"})
		return
	}

	out := make([]actorResponse, 0, len(actors))
	for _, a := range actors {
		token, err := h.net.IssueToken(a.Address)
		if err != nil {
			h.logger.Error("issue actor token", zap.String("address", a.Address), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue actor token"})
			return
		}
		out = append(out, actorResponse{Address: a.Address, PublicKey: a.PublicKey, Token: token})
	}
	c.JSON(http.StatusOK, gin.H{"actors": out})
}

// Reset handles POST /network/reset. It tears down every deployment and
// provisions a new generation of actors. Any current actor may reset.
func (h *NetworkHandler) Reset(c *gin.Context) {
	h.logger.Info("network reset requested", zap.String("actor", ActorFromCtx(c)))
	if err := h.deployments.Reset(); err != nil {
		h.logger.Error("reset environment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset network"})
		return
	}
	SetDeploymentsGauge(0)
	c.JSON(http.StatusOK, gin.H{"network_id": h.net.ID().String()})
}

// ListDeployments handles GET /deployments.
func (h *NetworkHandler) ListDeployments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"deployments": h.deployments.List()})
}

// Deploy handles POST /deployments: a fresh ledger deployed on behalf of the
// authenticated actor.
func (h *NetworkHandler) Deploy(c *gin.Context) {
	dep, err := h.deployments.DeployAs(c.Request.Context(), ActorFromCtx(c))
	if err != nil {
		if errors.Is(err, deploy.ErrDeploymentFailure) {
			h.logger.Warn("deployment failed", zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("deploy", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deploy ledger"})
		return
	}
	SetDeploymentsGauge(h.deployments.Len())
	c.JSON(http.StatusCreated, dep)
}
