package http

import (
	"net/http"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/api/http/converter"
	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthController struct {
	identities service.IdentityInteractor
}

func NewAuthController(identities service.IdentityInteractor) *AuthController {
	return &AuthController{identities: identities}
}

func (c *AuthController) CreateGuest(ctx *gin.Context) {
	type request struct {
		Name string `json:"name" binding:"max=255"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	guest, err := c.identities.IssueGuest(ctx.Request.Context(), req.Name)
	if err != nil {
		status, body := errorResponse(err)
		ctx.JSON(status, body)
		return
	}

	ctx.JSON(http.StatusCreated, converter.GuestTokenToApi(guest.Token, guest.ExpiresAt, guest.Identity))
}

func (c *AuthController) Me(ctx *gin.Context) {
	identity := identityFrom(ctx)
	ctx.JSON(http.StatusOK, gin.H{"identity": converter.IdentityResponse{
		Subject: identity.Subject,
		Name:    identity.Name,
		IsGuest: identity.IsGuest,
	}})
}
