package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/qlozet/stylefeed/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Events         *EventHandler
	Profile        *ProfileHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, svc *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Recommendation: NewRecommendationHandler(svc.Orchestrator, svc.Evaluator, logger),
		Events:         NewEventHandler(svc.Events, logger),
		Profile:        NewProfileHandler(svc.Profiles, logger),
		Admin:          NewAdminHandler(svc.Embedder, svc.Auth, logger),
	}
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// serviceError maps ErrInvalidRequest to 400 and everything else to 500
// under failureCode.
func serviceError(c *gin.Context, logger *logrus.Logger, err error, failureCode, failureMessage string) {
	if errors.Is(err, services.ErrInvalidRequest) {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	logger.WithError(err).WithField("path", c.FullPath()).Error(failureMessage)
	errorResponse(c, http.StatusInternalServerError, failureCode, failureMessage)
}

// bindingError reports the failed binding rules per field when the body
// parsed but did not validate.
func bindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid request body format")
		return
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), rule))
	}
	errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST_BODY", "Invalid fields: "+strings.Join(fields, ", "))
}
